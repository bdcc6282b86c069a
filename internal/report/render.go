// Package report implements the final pipeline stage: it renders the
// record into the user-facing diagnostic report and writes the one-line
// summary every completed run must carry.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/fatih/color"

	"texdoctor/internal/job"
)

// highlightStyle is the chroma style used for colored snippets.
const highlightStyle = "monokai"

// Renderer turns a job record into report text. Color is driven purely by
// configuration; the renderer never sniffs the output device.
type Renderer struct {
	color     bool
	showTools bool

	heading *color.Color
	label   *color.Color
	good    *color.Color
	bad     *color.Color
	dim     *color.Color
}

// NewRenderer builds a renderer. showTools appends the raw tool output
// appendix to the report.
func NewRenderer(colored, showTools bool) *Renderer {
	r := &Renderer{
		color:     colored,
		showTools: showTools,
		heading:   color.New(color.FgCyan, color.Bold),
		label:     color.New(color.Bold),
		good:      color.New(color.FgGreen),
		bad:       color.New(color.FgRed),
		dim:       color.New(color.Faint),
	}
	if !colored {
		for _, c := range []*color.Color{r.heading, r.label, r.good, r.bad, r.dim} {
			c.DisableColor()
		}
	}
	return r
}

// Render produces the full report for a completed record.
func (r *Renderer) Render(rec *job.Record) string {
	var b strings.Builder

	fmt.Fprintln(&b, r.heading.Sprint("texdoctor diagnostic report"))
	fmt.Fprintf(&b, "%s %s\n", r.label.Sprint("case:"), rec.CaseID)
	fmt.Fprintf(&b, "%s %s\n\n", r.label.Sprint("outcome:"), r.outcomeText(rec.Outcome))

	fmt.Fprintln(&b, Summarize(rec))

	if len(rec.Leads) > 0 {
		fmt.Fprintf(&b, "\n%s\n", r.heading.Sprint("Problems found"))
		remediesByLead := indexRemedies(rec.Remedies)
		for i, lead := range rec.Leads {
			r.renderLead(&b, i+1, lead, remediesByLead[lead.ID])
		}
	}

	if rec.Outcome == job.OutcomeNoLeadsManualReview {
		r.renderManualReview(&b, rec)
	}

	if r.showTools && len(rec.ToolOutputs) > 0 {
		r.renderToolOutputs(&b, rec)
	}

	return b.String()
}

func (r *Renderer) outcomeText(o job.Outcome) string {
	switch o {
	case job.OutcomeCompilationSuccess:
		return r.good.Sprint(string(o))
	case job.OutcomeUnset:
		return r.dim.Sprint("(none)")
	default:
		return r.bad.Sprint(string(o))
	}
}

func (r *Renderer) renderLead(b *strings.Builder, n int, lead job.Lead, remedies []job.Remedy) {
	fmt.Fprintf(b, "\n%s %s\n", r.label.Sprintf("%d.", n), lead.Description)
	fmt.Fprintf(b, "   %s\n", r.dim.Sprintf("found by %s (confidence %.0f%%)", lead.Source, lead.Confidence*100))

	for _, s := range lead.Snippets {
		r.renderSnippet(b, s)
	}

	for _, rem := range remedies {
		if rem.Explanation != "" {
			fmt.Fprintf(b, "   %s %s\n", r.label.Sprint("why:"), rem.Explanation)
		}
		if rem.Fix != "" {
			fmt.Fprintf(b, "   %s %s\n", r.label.Sprint("fix:"), rem.Fix)
		}
		if rem.Snippet != nil {
			r.renderSnippet(b, *rem.Snippet)
		}
		if rem.AfterFix != "" {
			fmt.Fprintf(b, "   %s %s\n", r.label.Sprint("after:"), rem.AfterFix)
		}
	}
}

func (r *Renderer) renderSnippet(b *strings.Builder, s job.Snippet) {
	loc := string(s.Kind)
	if s.Line > 0 {
		loc = fmt.Sprintf("%s, line %d", s.Kind, s.Line)
	}
	fmt.Fprintf(b, "   %s\n", r.dim.Sprintf("(%s)", loc))
	for _, line := range strings.Split(r.highlight(s), "\n") {
		fmt.Fprintf(b, "   | %s\n", line)
	}
}

// highlight colorizes snippet text per its kind. Plain text comes back
// unchanged when color is off or the highlighter fails.
func (r *Renderer) highlight(s job.Snippet) string {
	text := strings.TrimRight(s.Text, "\n")
	if !r.color {
		return text
	}

	var lexer string
	switch s.Kind {
	case job.SnippetDocument:
		lexer = "markdown"
	case job.SnippetIntermediate:
		lexer = "latex"
	default:
		return text
	}

	var out strings.Builder
	if err := quick.Highlight(&out, text, lexer, "terminal256", highlightStyle); err != nil {
		return text
	}
	return strings.TrimRight(out.String(), "\n")
}

func (r *Renderer) renderManualReview(b *strings.Builder, rec *job.Record) {
	fmt.Fprintf(b, "\n%s\n", r.heading.Sprint("For manual review"))
	fmt.Fprintln(b, "No specialist recognized this failure. The first compiler error block:")

	excerpt := firstErrorBlock(rec.CompilerLog)
	if excerpt == "" {
		fmt.Fprintln(b, r.dim.Sprint("   (the compiler log contains no error marker)"))
		return
	}
	for _, line := range strings.Split(excerpt, "\n") {
		fmt.Fprintf(b, "   | %s\n", line)
	}
	if rec.CompilerLogPath != "" {
		fmt.Fprintf(b, "full log: %s\n", rec.CompilerLogPath)
	}
}

func (r *Renderer) renderToolOutputs(b *strings.Builder, rec *job.Record) {
	fmt.Fprintf(b, "\n%s\n", r.heading.Sprint("Tool output"))
	for _, key := range sortedKeys(rec.ToolOutputs) {
		out := strings.TrimSpace(rec.ToolOutputs[key])
		if out == "" {
			continue
		}
		fmt.Fprintf(b, "%s\n", r.label.Sprintf("[%s]", key))
		fmt.Fprintln(b, out)
	}
}

// firstErrorBlock returns the log lines from the first "!" marker up to the
// next blank line, capped at a dozen lines.
func firstErrorBlock(logText string) string {
	lines := strings.Split(logText, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "! ") {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	end := start + 1
	for end < len(lines) && end-start < 12 && strings.TrimSpace(lines[end]) != "" {
		end++
	}
	return strings.Join(lines[start:end], "\n")
}

func indexRemedies(remedies []job.Remedy) map[string][]job.Remedy {
	m := make(map[string][]job.Remedy, len(remedies))
	for _, rem := range remedies {
		m[rem.LeadID] = append(m[rem.LeadID], rem)
	}
	return m
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
