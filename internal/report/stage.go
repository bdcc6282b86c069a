package report

import (
	"fmt"
	"log/slog"
	"strings"

	"texdoctor/internal/job"
)

// Stage is the reporting stage. It runs for every record, including
// failures, and guarantees a non-empty summary on the way out.
type Stage struct {
	renderer *Renderer
	log      *slog.Logger
}

// NewStage builds a reporting stage. A nil logger defaults to
// slog.Default().
func NewStage(renderer *Renderer, log *slog.Logger) *Stage {
	if renderer == nil {
		renderer = NewRenderer(false, false)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stage{renderer: renderer, log: log}
}

// Process fills the record's summary and full report text.
func (s *Stage) Process(rec *job.Record) (*job.Record, error) {
	rec.Summary = Summarize(rec)
	rec.Report = s.renderer.Render(rec)
	s.log.Info("report rendered",
		slog.String("case_id", rec.CaseID),
		slog.String("outcome", string(rec.Outcome)),
	)
	return rec, nil
}

// Summarize produces the one-line outcome summary. It never returns an
// empty string.
func Summarize(rec *job.Record) string {
	switch rec.Outcome {
	case job.OutcomeCompilationSuccess:
		return "The document converts and compiles cleanly; no problems found."
	case job.OutcomeMarkdownProofing:
		return fmt.Sprintf("Markdown proofing found %s; conversion was not attempted.",
			countNoun(len(rec.Leads), "blocking problem"))
	case job.OutcomeConversionFailed:
		return "Markdown-to-TeX conversion failed; see the converter's diagnostics below."
	case job.OutcomeCompilationFailed, job.OutcomeTexErrorLeadsFound:
		return fmt.Sprintf("Compilation failed; %s identified.",
			countNoun(len(rec.Leads), "problem"))
	case job.OutcomeRemediesProvided:
		return fmt.Sprintf("%s; %s diagnosed with %s proposed.",
			failedStep(rec),
			countNoun(len(rec.Leads), "problem"),
			countNoun(len(rec.Remedies), "fix", "fixes"))
	case job.OutcomeNoLeadsManualReview:
		return "The document failed to build but no error could be identified automatically; manual review needed."
	case job.OutcomeInternalError:
		return "The diagnostic run itself failed; this is a bug in the pipeline, not in the document."
	default:
		return "Diagnostic run ended in an unrecognized state."
	}
}

// BuildInternalErrorReport renders the report for a run the pipeline could
// not complete. rec may be nil when even record creation failed.
func BuildInternalErrorReport(rec *job.Record, cause error) string {
	var b strings.Builder
	b.WriteString("texdoctor diagnostic report\n")
	if rec != nil {
		fmt.Fprintf(&b, "case: %s\n", rec.CaseID)
	}
	fmt.Fprintf(&b, "outcome: %s\n\n", job.OutcomeInternalError)
	b.WriteString("The diagnostic pipeline failed before producing a result.\n")
	if cause != nil {
		fmt.Fprintf(&b, "cause: %v\n", cause)
	}
	if rec != nil && rec.ScratchDir != "" {
		fmt.Fprintf(&b, "scratch directory kept for inspection: %s\n", rec.ScratchDir)
	}
	return b.String()
}

// failedStep names the pipeline step that stopped the run, read off the
// record's progress flags.
func failedStep(rec *job.Record) string {
	switch {
	case !rec.ConversionAttempted:
		return "Markdown proofing blocked the document"
	case !rec.ConversionSucceeded:
		return "Markdown-to-TeX conversion failed"
	default:
		return "Compilation failed"
	}
}

// countNoun formats "1 problem" / "3 problems". An explicit plural form
// overrides the default trailing s.
func countNoun(n int, singular string, plural ...string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	p := singular + "s"
	if len(plural) > 0 {
		p = plural[0]
	}
	return fmt.Sprintf("%d %s", n, p)
}
