package main

import (
	"fmt"
	"io"
)

// printHelp writes the top-level usage text.
func printHelp(w io.Writer) {
	fmt.Fprintf(w, `texdoctor diagnoses why a Markdown document fails to build into a PDF.

Usage:
  texdoctor [diagnose] [flags]   read markdown on stdin, write the report on stdout
  texdoctor stage <name> --process-job
                                 run one pipeline stage over a JSON job record
  texdoctor doctor [--json]      check that pandoc and pdflatex are usable
  texdoctor version              print the version
  texdoctor help                 print this help

Diagnose flags:
  -c, --config string      config file name or path
      --timeout string     overall run timeout (e.g. 2m)
      --converter string   markdown-to-TeX converter executable (default pandoc)
      --compiler string    TeX compiler executable (default pdflatex)
      --color              color the report output
      --show-tool-output   append raw tool output to the report
      --debug              keep the scratch directory and dump the record per stage
      --in-process         run stages inside this process instead of per-stage workers
  -v, --verbose            show stage-level logging

Exit codes:
  0  report produced (whatever the diagnosis says)
  1  pipeline failure
  2  usage, flag, or config error
  3  missing or unreadable input
  4  external tool missing or worker protocol violation
`)
}
