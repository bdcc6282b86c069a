// Package specialist defines the analyzer contract and the dispatcher that
// runs ordered analyzer groups over a shared artifact set, merging their
// findings under a fixed precedence policy.
package specialist

import (
	"fmt"
	"log/slog"

	"texdoctor/internal/job"
)

// Artifacts is the shared input every specialist examines: the original
// document, the generated intermediate, and the compiler log. Any of the
// three may be empty depending on how far the pipeline got.
type Artifacts struct {
	Markdown string
	Tex      string
	Log      string
}

// Finding is one structured result from a specialist.
type Finding struct {
	Description string
	Snippet     *job.Snippet
	Details     map[string]string
	Confidence  float64
}

// outcomeKind discriminates the tagged Outcome variant.
type outcomeKind int

const (
	kindMiss outcomeKind = iota
	kindHit
	kindFail
)

// Outcome is the tagged result of one specialist examination: exactly one
// of no-finding, a finding, or an internal failure. Failures never carry a
// finding and vice versa.
type Outcome struct {
	kind    outcomeKind
	finding Finding
	err     error
}

// Miss reports that the specialist found nothing.
func Miss() Outcome { return Outcome{kind: kindMiss} }

// Hit reports exactly one finding.
func Hit(f Finding) Outcome { return Outcome{kind: kindHit, finding: f} }

// Fail reports an internal specialist failure. The dispatcher treats it as
// no finding and logs it for operators.
func Fail(err error) Outcome { return Outcome{kind: kindFail, err: err} }

// Found returns the finding and whether one exists.
func (o Outcome) Found() (Finding, bool) { return o.finding, o.kind == kindHit }

// Err returns the failure error, nil unless the specialist failed.
func (o Outcome) Err() error {
	if o.kind != kindFail {
		return nil
	}
	return o.err
}

// Specialist is one independent analyzer probing a single failure class.
type Specialist interface {
	Name() string
	Examine(a Artifacts) Outcome
}

// Mode selects the dispatch policy for a specialist group.
type Mode int

const (
	// FirstMatch stops at the first specialist that returns a finding.
	// Used for redundant probes of the same failure class, so one root
	// cause yields one lead.
	FirstMatch Mode = iota
	// RunAll invokes every specialist and accumulates every finding.
	// Used for specialists probing disjoint failure classes.
	RunAll
)

// Report pairs a finding with the specialist that produced it.
type Report struct {
	Specialist string
	Finding    Finding
}

// Dispatcher runs specialist groups sequentially, in the configured order,
// never in parallel.
type Dispatcher struct {
	log *slog.Logger
}

// NewDispatcher creates a dispatcher logging specialist failures to log.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

// Dispatch runs the group against the artifacts. A specialist's internal
// failure or panic is caught here, logged, and treated as no finding; it
// never aborts the dispatch.
func (d *Dispatcher) Dispatch(mode Mode, group []Specialist, a Artifacts) []Report {
	var reports []Report
	for _, s := range group {
		out := d.examine(s, a)
		if err := out.Err(); err != nil {
			d.log.Warn("specialist failed", "specialist", s.Name(), "err", err)
			continue
		}
		f, ok := out.Found()
		if !ok {
			continue
		}
		reports = append(reports, Report{Specialist: s.Name(), Finding: f})
		if mode == FirstMatch {
			break
		}
	}
	return reports
}

// examine invokes one specialist, converting panics into failures.
func (d *Dispatcher) examine(s Specialist, a Artifacts) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Fail(fmt.Errorf("specialist %s panicked: %v", s.Name(), r))
		}
	}()
	return s.Examine(a)
}

// Lead converts a report into a job lead.
func (r Report) Lead() job.Lead {
	l := job.NewLead(r.Specialist, r.Finding.Description, r.Finding.Confidence)
	if r.Finding.Snippet != nil {
		l.Snippets = append(l.Snippets, *r.Finding.Snippet)
	}
	l.Details = r.Finding.Details
	return l
}
