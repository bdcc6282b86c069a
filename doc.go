// Package texdoctor diagnoses why a Markdown document fails to build into a
// PDF through the pandoc and pdflatex toolchain.
//
// # Quick Start
//
// Create a service and diagnose a document:
//
//	doc, err := texdoctor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := doc.Diagnose(ctx, texdoctor.Input{
//	    Markdown: "# Hello\n\nbroken $math\n",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report)
//
// The result carries the machine-readable outcome code, a one-line summary,
// and the full rendered report.
//
// # Diagnostic Pipeline
//
// A diagnosis runs through four sequential stages:
//
//  1. Mine: proof the markdown, convert it to TeX, attempt compilation
//  2. Investigate: specialists probe the compiler log and generated TeX
//  3. Remedy: every identified problem is mapped to at least one fix
//  4. Report: the record is rendered into the final report
//
// Stages communicate through a JSON job record and can also run as separate
// worker processes via the stage subcommand of the texdoctor binary.
//
// # Configuration
//
// Use functional options to customize the service:
//
//	doc, err := texdoctor.New(
//	    texdoctor.WithTimeout(2 * time.Minute),
//	    texdoctor.WithConverter("/opt/pandoc/bin/pandoc"),
//	    texdoctor.WithColor(true),
//	)
//
// # Tool Requirements
//
// Diagnosis requires pandoc and pdflatex (or compatible tools named through
// options) on the PATH. The doctor subcommand of the CLI checks for them.
package texdoctor
