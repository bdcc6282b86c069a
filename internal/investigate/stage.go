// Package investigate implements the second pipeline stage: specialists
// probe the compiler log and the generated TeX for the cause of a failed
// compilation, and the log classifier backstops them when none of them
// recognizes the failure.
package investigate

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"texdoctor/internal/classify"
	"texdoctor/internal/job"
	"texdoctor/internal/specialist"
)

// ErrNotInvestigable is returned when the record does not carry a failed
// compilation to investigate.
var ErrNotInvestigable = errors.New("investigate: record has no failed compilation")

// logProbes run in first-match-wins order: the most specific recognizers
// first, so one failure yields one precise lead.
var logProbes = []specialist.Specialist{
	specialist.MismatchedDelimiterProbe{},
	specialist.RunawayArgumentProbe{},
	specialist.UndefinedCommandProbe{},
	specialist.UndefinedEnvironmentProbe{},
	specialist.MissingDollarProbe{},
	specialist.UnbalancedBraceProbe{},
}

// texChecks run in run-all mode over the generated TeX and the log; each
// covers an independent defect, so several can fire on one document.
var texChecks = []specialist.Specialist{
	specialist.CitationCheck{},
	specialist.EnvironmentBalanceCheck{},
}

// Stage is the investigation stage.
type Stage struct {
	disp *specialist.Dispatcher
	log  *slog.Logger
}

// NewStage builds an investigation stage. A nil logger defaults to
// slog.Default().
func NewStage(log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	return &Stage{disp: specialist.NewDispatcher(log), log: log}
}

// Process examines the failed compilation and appends leads describing its
// cause. When every specialist misses, the log classifier contributes a
// fallback lead so the failure never goes completely undescribed.
func (s *Stage) Process(rec *job.Record) (*job.Record, error) {
	if !rec.CompilationAttempted || rec.CompilationSucceeded {
		return nil, fmt.Errorf("%w: case %s", ErrNotInvestigable, rec.CaseID)
	}

	arts := specialist.Artifacts{
		Markdown: rec.Markdown,
		Tex:      rec.TexContent,
		Log:      rec.CompilerLog,
	}

	before := len(rec.Leads)
	for _, r := range s.disp.Dispatch(specialist.FirstMatch, logProbes, arts) {
		rec.AddLead(r.Lead())
	}
	for _, r := range s.disp.Dispatch(specialist.RunAll, texChecks, arts) {
		rec.AddLead(r.Lead())
	}

	if len(rec.Leads) == before {
		if lead, ok := classifierLead(rec.CompilerLog); ok {
			rec.AddLead(lead)
		}
	}

	if len(rec.Leads) > before {
		rec.Outcome = job.OutcomeTexErrorLeadsFound
		s.log.Info("investigation produced leads",
			slog.String("case_id", rec.CaseID),
			slog.Int("leads", len(rec.Leads)-before),
		)
	} else {
		s.log.Info("investigation found nothing actionable",
			slog.String("case_id", rec.CaseID),
		)
	}

	return rec, nil
}

// classifierLead turns a log classification into a catch-all lead. It
// reports false when the classifier saw no error to describe.
func classifierLead(logText string) (job.Lead, bool) {
	res := classify.Classify(logText)
	switch res.Signature {
	case classify.SigNoErrorIdentified, classify.SigCompilationSuccess:
		return job.Lead{}, false
	}

	desc := res.RawMessage
	if desc == "" {
		desc = "Compiler reported an error of kind " + string(res.Signature)
	}
	lead := job.NewLead("log_classifier", desc, 0.6)
	lead.Details = map[string]string{
		job.DetailSignature: string(res.Signature),
	}
	if res.Line > 0 {
		lead.Details[job.DetailErrorLine] = strconv.Itoa(res.Line)
	}
	if res.Excerpt != "" {
		lead.Details[job.DetailLogExcerpt] = res.Excerpt
		lead.Snippets = append(lead.Snippets, job.Snippet{
			Kind: job.SnippetLog,
			Line: res.Line,
			Text: res.Excerpt,
		})
	}
	return lead, true
}
