// Package classify maps raw TeX compiler log text to a stable error
// signature, a best-guess 1-based source line, and a log excerpt. It never
// returns an error: arbitrary or malformed tool output resolves to the
// "no error identified" signature.
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Signature is a stable classification tag for a recognized error pattern.
type Signature string

const (
	SigCompilationSuccess     Signature = "latex_compilation_success"
	SigNoOutputGenerated      Signature = "latex_no_output_generated"
	SigMissingMathDelimiters  Signature = "latex_missing_math_delimiters"
	SigUnbalancedBraces       Signature = "latex_unbalanced_braces"
	SigMismatchedDelimiters   Signature = "latex_mismatched_delimiters"
	SigMisplacedAlignmentTab  Signature = "latex_misplaced_alignment_tab"
	SigUndefinedControlSeq    Signature = "latex_undefined_control_sequence"
	SigCommandAlreadyDefined  Signature = "latex_command_already_defined"
	SigUndefinedCommand       Signature = "latex_undefined_command"
	SigMissingBeginDocument   Signature = "latex_missing_begin_document"
	SigMissingEndcsname       Signature = "latex_missing_endcsname"
	SigExtraEndcsname         Signature = "latex_extra_endcsname"
	SigMissingNumber          Signature = "latex_missing_number"
	SigIllegalUnit            Signature = "latex_illegal_unit"
	SigUnexpectedParagraphEnd Signature = "latex_unexpected_paragraph_end"
	SigRunawayArgument        Signature = "latex_runaway_argument"
	SigFileNotFound           Signature = "latex_file_not_found"
	SigPreambleOnlyCommand    Signature = "latex_preamble_only_command"
	SigMissingDocumentclass   Signature = "latex_missing_documentclass"
	SigUndefinedEnvironment   Signature = "latex_undefined_environment"
	SigMathModeRequired       Signature = "latex_math_mode_required"
	SigTooManyClosingBraces   Signature = "latex_too_many_closing_braces"
	SigEnvironmentMismatch    Signature = "latex_environment_mismatch"
	SigEnvironmentNotClosed   Signature = "latex_environment_not_closed"
	SigMissingEnd             Signature = "latex_missing_end"
	SigGenericError           Signature = "latex_generic_error"
	SigNoErrorIdentified      Signature = "latex_no_error_identified"
)

// Result is what classification always produces. Line is 1-based in the TeX
// source; 0 means no line could be located.
type Result struct {
	Signature  Signature
	Line       int
	Excerpt    string
	RawMessage string
}

// Excerpt window bounds. The first primary error block is analyzed; later
// errors in the same log are intentionally ignored.
const (
	maxExcerptLines    = 20 // lines collected after the "!" line
	maxLineSearchLines = 10 // sub-window searched for a source line indicator
)

// lineIndicatorRe matches the compiler's source line indication, with or
// without the leading continuation dot some wrappers prepend.
var lineIndicatorRe = regexp.MustCompile(`^\.?\s*l\.(\d+)`)

// sigRule is one entry of the ordered signature table.
type sigRule struct {
	re  *regexp.Regexp
	sig Signature
}

func rule(pattern string, sig Signature) sigRule {
	return sigRule{re: regexp.MustCompile(`(?is)` + pattern), sig: sig}
}

// signatureTable is evaluated in order, most specific first; the first
// matching rule wins. Order is part of the engine's contract.
var signatureTable = []sigRule{
	// Success and output state
	rule(`Output written on .*`, SigCompilationSuccess),
	rule(`No pages of output`, SigNoOutputGenerated),

	// Math mode
	rule(`Missing \$ inserted`, SigMissingMathDelimiters),
	rule(`Display math should end with \$`, SigMissingMathDelimiters),
	rule(`Extra \}, or forgotten \$`, SigUnbalancedBraces),
	rule(`Missing \$`, SigMissingMathDelimiters),
	rule(`Missing \\right\.`, SigMismatchedDelimiters),
	rule(`Missing \\left\.`, SigMismatchedDelimiters),
	rule(`Misplaced alignment tab character &`, SigMisplacedAlignmentTab),

	// Control sequences and commands
	rule(`Undefined control sequence`, SigUndefinedControlSeq),
	rule(`Command .* already defined`, SigCommandAlreadyDefined),
	rule(`Command .* undefined`, SigUndefinedCommand),
	rule(`Missing \\begin\{document\}`, SigMissingBeginDocument),
	rule(`Missing \\endcsname`, SigMissingEndcsname),
	rule(`Extra \\endcsname`, SigExtraEndcsname),
	rule(`Missing number, treated as zero`, SigMissingNumber),
	rule(`Illegal unit of measure`, SigIllegalUnit),
	rule(`Paragraph ended before .* was complete`, SigUnexpectedParagraphEnd),
	rule(`Runaway argument`, SigRunawayArgument),

	// File and package related
	rule(`I can't find file .*'`, SigFileNotFound),
	rule(`LaTeX Error: File .*' not found`, SigFileNotFound),
	rule(`LaTeX Error: Can be used only in preamble`, SigPreambleOnlyCommand),
	rule(`LaTeX Error: Missing documentclass`, SigMissingDocumentclass),
	rule(`LaTeX Error: Environment .* undefined`, SigUndefinedEnvironment),
	rule(`LaTeX Error: Can be used only in math mode`, SigMathModeRequired),

	// Document structure
	rule(`Too many \}'?s`, SigTooManyClosingBraces),
	rule(`\\begin\{.*\} .*ended by \\end\{document\}`, SigEnvironmentNotClosed),
	rule(`\\begin\{.*\} .*ended by \\end\{.*\}`, SigEnvironmentMismatch),
	rule(`Missing \\end`, SigMissingEnd),

	// Fallbacks, kept last
	rule(`LaTeX Error`, SigGenericError),
	rule(`(?m)^!`, SigGenericError),
}

// Classify analyzes compiler log text. Only the first primary error block
// (the first line starting with "! ") is considered.
func Classify(logText string) Result {
	none := Result{Signature: SigNoErrorIdentified}

	if strings.TrimSpace(logText) == "" {
		return none
	}

	lines := strings.Split(logText, "\n")

	markerIdx := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "! ") {
			markerIdx = i
			break
		}
	}

	if markerIdx < 0 {
		// A pure success report classifies as success even without a marker.
		if isSuccessReport(logText) {
			return Result{Signature: SigCompilationSuccess}
		}
		return none
	}

	raw := strings.TrimSpace(strings.TrimPrefix(lines[markerIdx], "! "))
	excerptLines := []string{lines[markerIdx]}
	line := 0

	for j := 1; markerIdx+j < len(lines) && j <= maxExcerptLines; j++ {
		ctx := lines[markerIdx+j]

		if line == 0 && j <= maxLineSearchLines {
			if m := lineIndicatorRe.FindStringSubmatch(ctx); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					line = n
				}
			}
		}

		// Stop markers end the excerpt before they join it, so a second
		// error block never leaks into signature matching.
		if stopExcerpt(ctx, len(excerptLines)) {
			break
		}
		excerptLines = append(excerptLines, ctx)
	}

	excerpt := strings.TrimSpace(strings.Join(excerptLines, "\n"))

	sig := SigNoErrorIdentified
	for _, r := range signatureTable {
		if r.re.MatchString(excerpt) {
			sig = r.sig
			break
		}
	}
	sig = applyOverrides(sig, excerpt)

	return Result{Signature: sig, Line: line, Excerpt: excerpt, RawMessage: raw}
}

// stopExcerpt reports whether ctx ends excerpt collection. The stopping
// line itself is excluded. count is the number of lines collected so far.
func stopExcerpt(ctx string, count int) bool {
	if strings.TrimSpace(ctx) == "" && count > 3 {
		return true
	}
	if strings.HasPrefix(ctx, "! ") {
		return true
	}
	if strings.HasPrefix(ctx, "Here is how much of TeX's memory") {
		return true
	}
	if strings.HasPrefix(ctx, "No pages of output.") {
		return true
	}
	return false
}

// applyOverrides runs the fixed override pass over the assembled excerpt.
// These replace the table's choice for narrow token combinations the generic
// patterns cannot disambiguate. Evaluation order is fixed in code.
func applyOverrides(sig Signature, excerpt string) Signature {
	if isSuccessReport(excerpt) {
		sig = SigCompilationSuccess
	}
	if strings.Contains(excerpt, `Missing \end`) {
		sig = SigMissingEnd
	}
	if strings.Contains(excerpt, `\left(`) && strings.Contains(excerpt, `\right]`) {
		sig = SigMismatchedDelimiters
	}
	if strings.Contains(excerpt, "Runaway argument") {
		sig = SigRunawayArgument
	}
	return sig
}

// isSuccessReport detects the compiler's "output written" phrase with no
// error tokens anywhere in the text.
func isSuccessReport(text string) bool {
	return strings.Contains(text, "Output written on") &&
		!strings.Contains(strings.ToLower(text), "error")
}
