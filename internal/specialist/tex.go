package specialist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"texdoctor/internal/job"
)

// Log probe specialists. They are redundant probes over the compiler log for
// the same broad failure class (a fatal TeX error), so callers dispatch them
// in FirstMatch mode.

var (
	logLineRe      = regexp.MustCompile(`(?m)^\.?\s*l\.(\d+)(.*)$`)
	controlSeqRe   = regexp.MustCompile(`\\[a-zA-Z@]+`)
	undefinedEnvRe = regexp.MustCompile(`Environment (\w+) undefined`)
	citationNameRe = regexp.MustCompile("Citation `([^']+)' .*undefined")
	beginEnvRe     = regexp.MustCompile(`\\begin\{([a-zA-Z*]+)\}`)
	endEnvRe       = regexp.MustCompile(`\\end\{([a-zA-Z*]+)\}`)
)

// logLine extracts the first source line indicator from the log, with the
// remainder of that line. Returns 0 when none is present.
func logLine(logText string) (int, string) {
	m := logLineRe.FindStringSubmatch(logText)
	if m == nil {
		return 0, ""
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ""
	}
	return n, strings.TrimSpace(m[2])
}

func logSnippet(logText string, line int) *job.Snippet {
	text := firstLines(logText, 6)
	if text == "" {
		return nil
	}
	return &job.Snippet{Kind: job.SnippetLog, Line: line, Text: text}
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// UndefinedCommandProbe reports the undefined control sequence named in the
// log, including which command the compiler choked on when recoverable.
type UndefinedCommandProbe struct{}

func (UndefinedCommandProbe) Name() string { return "undefined_command_probe" }

func (UndefinedCommandProbe) Examine(a Artifacts) Outcome {
	if !strings.Contains(a.Log, "Undefined control sequence") {
		return Miss()
	}
	line, rest := logLine(a.Log)

	desc := "Undefined LaTeX command"
	if cmd := controlSeqRe.FindString(rest); cmd != "" {
		desc = fmt.Sprintf("Undefined LaTeX command %s", cmd)
	}

	return Hit(Finding{
		Description: desc,
		Snippet:     logSnippet(a.Log, line),
		Details: map[string]string{
			job.DetailSignature: "latex_undefined_control_sequence",
			job.DetailErrorLine: strconv.Itoa(line),
		},
		Confidence: 0.9,
	})
}

// UndefinedEnvironmentProbe reports \begin{...} of an environment the
// compiler does not know.
type UndefinedEnvironmentProbe struct{}

func (UndefinedEnvironmentProbe) Name() string { return "undefined_environment_probe" }

func (UndefinedEnvironmentProbe) Examine(a Artifacts) Outcome {
	m := undefinedEnvRe.FindStringSubmatch(a.Log)
	if m == nil {
		return Miss()
	}
	line, _ := logLine(a.Log)
	return Hit(Finding{
		Description: fmt.Sprintf("Undefined LaTeX environment %q", m[1]),
		Snippet:     logSnippet(a.Log, line),
		Details: map[string]string{
			job.DetailSignature: "latex_undefined_environment",
			job.DetailErrorLine: strconv.Itoa(line),
		},
		Confidence: 0.9,
	})
}

// MismatchedDelimiterProbe reports paired delimiters that do not match,
// such as \left( closed by \right].
type MismatchedDelimiterProbe struct{}

func (MismatchedDelimiterProbe) Name() string { return "mismatched_delimiter_probe" }

func (MismatchedDelimiterProbe) Examine(a Artifacts) Outcome {
	mismatchedPair := strings.Contains(a.Log, `\left(`) && strings.Contains(a.Log, `\right]`)
	if !mismatchedPair &&
		!strings.Contains(a.Log, `Missing \right.`) &&
		!strings.Contains(a.Log, `Missing \left.`) {
		return Miss()
	}
	line, _ := logLine(a.Log)
	return Hit(Finding{
		Description: "Mismatched math delimiters, such as \\left( closed by \\right]",
		Snippet:     logSnippet(a.Log, line),
		Details: map[string]string{
			job.DetailSignature: "latex_mismatched_delimiters",
			job.DetailErrorLine: strconv.Itoa(line),
		},
		Confidence: 0.85,
	})
}

// RunawayArgumentProbe reports a command argument that was never closed,
// which makes the compiler read to end of file.
type RunawayArgumentProbe struct{}

func (RunawayArgumentProbe) Name() string { return "runaway_argument_probe" }

func (RunawayArgumentProbe) Examine(a Artifacts) Outcome {
	if !strings.Contains(a.Log, "Runaway argument") {
		return Miss()
	}
	line, _ := logLine(a.Log)
	return Hit(Finding{
		Description: "Runaway argument: a command is missing its closing brace",
		Snippet:     logSnippet(a.Log, line),
		Details: map[string]string{
			job.DetailSignature: "latex_runaway_argument",
			job.DetailErrorLine: strconv.Itoa(line),
		},
		Confidence: 0.85,
	})
}

// MissingDollarProbe reports math material found outside math mode.
type MissingDollarProbe struct{}

func (MissingDollarProbe) Name() string { return "missing_dollar_probe" }

func (MissingDollarProbe) Examine(a Artifacts) Outcome {
	if !strings.Contains(a.Log, "Missing $ inserted") &&
		!strings.Contains(a.Log, "Display math should end with $") {
		return Miss()
	}
	line, _ := logLine(a.Log)
	return Hit(Finding{
		Description: "Math expression outside math delimiters; the compiler inserted a missing $",
		Snippet:     logSnippet(a.Log, line),
		Details: map[string]string{
			job.DetailSignature: "latex_missing_math_delimiters",
			job.DetailErrorLine: strconv.Itoa(line),
		},
		Confidence: 0.85,
	})
}

// UnbalancedBraceProbe reports unequal opening and closing braces.
type UnbalancedBraceProbe struct{}

func (UnbalancedBraceProbe) Name() string { return "unbalanced_brace_probe" }

func (UnbalancedBraceProbe) Examine(a Artifacts) Outcome {
	if !strings.Contains(a.Log, "Too many }'s") &&
		!strings.Contains(a.Log, "Extra }, or forgotten $") {
		return Miss()
	}
	line, _ := logLine(a.Log)
	return Hit(Finding{
		Description: "Unbalanced curly braces in the document",
		Snippet:     logSnippet(a.Log, line),
		Details: map[string]string{
			job.DetailSignature: "latex_unbalanced_braces",
			job.DetailErrorLine: strconv.Itoa(line),
		},
		Confidence: 0.8,
	})
}

// TeX source checks. These probe disjoint failure classes over the generated
// TeX and the log's warning stream, so callers dispatch them in RunAll mode.

// CitationCheck reports citations the compiler could not resolve.
type CitationCheck struct{}

func (CitationCheck) Name() string { return "citation_check" }

func (CitationCheck) Examine(a Artifacts) Outcome {
	m := citationNameRe.FindStringSubmatch(a.Log)
	if m == nil {
		return Miss()
	}
	return Hit(Finding{
		Description: fmt.Sprintf("Citation %q is undefined; no bibliography entry matches it", m[1]),
		Details: map[string]string{
			job.DetailSignature: "latex_undefined_citation",
		},
		Confidence: 0.7,
	})
}

// EnvironmentBalanceCheck reports a \begin{...} in the generated TeX with no
// matching \end{...}, or the reverse.
type EnvironmentBalanceCheck struct{}

func (EnvironmentBalanceCheck) Name() string { return "environment_balance_check" }

func (EnvironmentBalanceCheck) Examine(a Artifacts) Outcome {
	if a.Tex == "" {
		return Miss()
	}

	opened := map[string]int{}
	var order []string
	for _, m := range beginEnvRe.FindAllStringSubmatch(a.Tex, -1) {
		if _, seen := opened[m[1]]; !seen {
			order = append(order, m[1])
		}
		opened[m[1]]++
	}
	for _, m := range endEnvRe.FindAllStringSubmatch(a.Tex, -1) {
		if _, seen := opened[m[1]]; !seen {
			order = append(order, m[1])
		}
		opened[m[1]]--
	}

	for _, env := range order {
		n := opened[env]
		if n > 0 {
			return Hit(Finding{
				Description: fmt.Sprintf("Environment %q is opened but never closed", env),
				Details: map[string]string{
					job.DetailSignature: "latex_environment_not_closed",
				},
				Confidence: 0.75,
			})
		}
		if n < 0 {
			return Hit(Finding{
				Description: fmt.Sprintf("Environment %q is closed more times than it is opened", env),
				Details: map[string]string{
					job.DetailSignature: "latex_environment_mismatch",
				},
				Confidence: 0.75,
			})
		}
	}
	return Miss()
}
