package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"texdoctor/internal/fileutil"
	"texdoctor/internal/job"
)

// ErrStageContract marks a stage that returned a record violating the
// pipeline's postconditions. It is a bug in the stage, never in the
// document under diagnosis.
var ErrStageContract = errors.New("pipeline: stage broke its contract")

// Orchestrator owns the stage state machine. It is the only component that
// writes the record's Stage field.
type Orchestrator struct {
	inv   StageInvoker
	log   *slog.Logger
	debug bool
}

// NewOrchestrator builds an orchestrator over a stage invoker. With debug
// enabled, the record is dumped to the scratch directory after every stage.
func NewOrchestrator(inv StageInvoker, log *slog.Logger, debug bool) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{inv: inv, log: log, debug: debug}
}

// Run drives one record through the pipeline. Stage errors and contract
// violations abort the run immediately; every completed run comes back in
// the completed state with a non-empty summary.
func (o *Orchestrator) Run(ctx context.Context, rec *job.Record) (*job.Record, error) {
	rec, err := o.step(ctx, job.StageMine, rec)
	if err != nil {
		return rec, err
	}
	if rec.Outcome == job.OutcomeUnset {
		return rec, fmt.Errorf("%w: %s stage set no outcome", ErrStageContract, job.StageMine)
	}

	if rec.Outcome == job.OutcomeCompilationFailed {
		rec, err = o.step(ctx, job.StageInvestigate, rec)
		if err != nil {
			return rec, err
		}
	}

	if rec.Outcome == job.OutcomeTexErrorLeadsFound && len(rec.Leads) == 0 {
		return rec, fmt.Errorf("%w: leads-found outcome with no leads", ErrStageContract)
	}

	// Every lead gets mapped to remedies, whichever stage produced it:
	// proofing, conversion, or investigation. A failure nothing could
	// explain is reported as such rather than silently completing.
	if rec.Outcome != job.OutcomeCompilationSuccess {
		if len(rec.Leads) == 0 {
			rec.Outcome = job.OutcomeNoLeadsManualReview
		} else {
			rec, err = o.step(ctx, job.StageRemedy, rec)
			if err != nil {
				return rec, err
			}
			if err := checkRemedyCoverage(rec); err != nil {
				return rec, err
			}
		}
	}

	rec, err = o.step(ctx, job.StageReport, rec)
	if err != nil {
		return rec, err
	}
	if rec.Summary == "" {
		return rec, fmt.Errorf("%w: %s stage left the summary empty", ErrStageContract, job.StageReport)
	}

	rec.Stage = job.StageCompleted
	o.log.Info("diagnostic run completed",
		slog.String("case_id", rec.CaseID),
		slog.String("outcome", string(rec.Outcome)),
	)
	return rec, nil
}

// step marks the stage on the record, invokes it, and validates the
// returned record.
func (o *Orchestrator) step(ctx context.Context, stage string, rec *job.Record) (*job.Record, error) {
	rec.Stage = stage
	o.log.Debug("entering stage",
		slog.String("case_id", rec.CaseID),
		slog.String("stage", stage),
	)

	updated, err := o.inv.Invoke(ctx, stage, rec)
	if err != nil {
		return rec, fmt.Errorf("stage %s: %w", stage, err)
	}
	if updated == nil {
		return rec, fmt.Errorf("%w: %s stage returned no record", ErrStageContract, stage)
	}
	if err := updated.Validate(); err != nil {
		return rec, fmt.Errorf("%w: %s stage: %v", ErrStageContract, stage, err)
	}

	o.dump(updated, stage)
	return updated, nil
}

// dump writes the post-stage record to the scratch directory for debugging.
// Dump failures are logged, never fatal.
func (o *Orchestrator) dump(rec *job.Record, stage string) {
	if !o.debug || rec.ScratchDir == "" {
		return
	}
	data, err := job.Marshal(rec)
	if err == nil {
		name := fmt.Sprintf("%s_%s.json", rec.CaseID, stage)
		_, err = fileutil.WriteScratchFile(rec.ScratchDir, name, string(data))
	}
	if err != nil {
		o.log.Warn("debug dump failed",
			slog.String("case_id", rec.CaseID),
			slog.String("stage", stage),
			slog.Any("error", err),
		)
	}
}

func checkRemedyCoverage(rec *job.Record) error {
	covered := make(map[string]bool, len(rec.Remedies))
	for _, rem := range rec.Remedies {
		covered[rem.LeadID] = true
	}
	for _, l := range rec.Leads {
		if !covered[l.ID] {
			return fmt.Errorf("%w: lead %s has no remedy", ErrStageContract, l.ID)
		}
	}
	return nil
}
