package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"texdoctor/internal/job"
	"texdoctor/internal/pipeline"
)

// fakeInvoker records the stage sequence and runs scripted handlers.
type fakeInvoker struct {
	calls    []string
	handlers map[string]pipeline.HandlerFunc
}

func (f *fakeInvoker) Invoke(ctx context.Context, stage string, rec *job.Record) (*job.Record, error) {
	f.calls = append(f.calls, stage)
	h, ok := f.handlers[stage]
	if !ok {
		return nil, errors.New("unexpected stage " + stage)
	}
	return h(ctx, rec)
}

func setOutcome(o job.Outcome) pipeline.HandlerFunc {
	return func(_ context.Context, rec *job.Record) (*job.Record, error) {
		rec.Outcome = o
		return rec, nil
	}
}

func summarize(_ context.Context, rec *job.Record) (*job.Record, error) {
	rec.Summary = "summary for " + string(rec.Outcome)
	return rec, nil
}

func addLeadAndOutcome(o job.Outcome) pipeline.HandlerFunc {
	return func(_ context.Context, rec *job.Record) (*job.Record, error) {
		rec.AddLead(job.NewLead("probe", "a problem", 0.8))
		rec.Outcome = o
		return rec, nil
	}
}

func remedyAll(_ context.Context, rec *job.Record) (*job.Record, error) {
	for _, l := range rec.Leads {
		rec.AddRemedy(job.NewRemedy(l.ID, "mapper", "explained", "fixed", 0.8))
	}
	rec.Outcome = job.OutcomeRemediesProvided
	return rec, nil
}

func quietOrchestrator(inv pipeline.StageInvoker, debug bool) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(inv, slog.New(slog.NewTextHandler(io.Discard, nil)), debug)
}

func newRecord(t *testing.T) *job.Record {
	t.Helper()
	rec, err := job.NewRecord("# Doc\n\nbody\n")
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestRun_SuccessSkipsInvestigationAndRemedy(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine:   setOutcome(job.OutcomeCompilationSuccess),
		job.StageReport: summarize,
	}}

	got, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantCalls := []string{job.StageMine, job.StageReport}
	if !reflect.DeepEqual(inv.calls, wantCalls) {
		t.Errorf("stage sequence = %v, want %v", inv.calls, wantCalls)
	}
	if got.Stage != job.StageCompleted {
		t.Errorf("Stage = %q, want %q", got.Stage, job.StageCompleted)
	}
	if got.Outcome != job.OutcomeCompilationSuccess {
		t.Errorf("Outcome = %q, want success preserved", got.Outcome)
	}
}

func TestRun_FullDiagnosticPath(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine:        setOutcome(job.OutcomeCompilationFailed),
		job.StageInvestigate: addLeadAndOutcome(job.OutcomeTexErrorLeadsFound),
		job.StageRemedy:      remedyAll,
		job.StageReport:      summarize,
	}}

	got, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantCalls := []string{job.StageMine, job.StageInvestigate, job.StageRemedy, job.StageReport}
	if !reflect.DeepEqual(inv.calls, wantCalls) {
		t.Errorf("stage sequence = %v, want %v", inv.calls, wantCalls)
	}
	if got.Outcome != job.OutcomeRemediesProvided {
		t.Errorf("Outcome = %q, want %q", got.Outcome, job.OutcomeRemediesProvided)
	}
	if got.Summary == "" {
		t.Error("Summary is empty after report stage")
	}
}

func TestRun_ProofingLeadsAreMappedToRemedies(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine:   addLeadAndOutcome(job.OutcomeMarkdownProofing),
		job.StageRemedy: remedyAll,
		job.StageReport: summarize,
	}}

	got, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantCalls := []string{job.StageMine, job.StageRemedy, job.StageReport}
	if !reflect.DeepEqual(inv.calls, wantCalls) {
		t.Errorf("stage sequence = %v, want %v", inv.calls, wantCalls)
	}
	if len(got.Remedies) != len(got.Leads) {
		t.Errorf("remedies = %d for %d leads, want every lead covered", len(got.Remedies), len(got.Leads))
	}
	if got.Outcome != job.OutcomeRemediesProvided {
		t.Errorf("Outcome = %q, want %q", got.Outcome, job.OutcomeRemediesProvided)
	}
}

func TestRun_ConversionLeadsAreMappedToRemedies(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine:   addLeadAndOutcome(job.OutcomeConversionFailed),
		job.StageRemedy: remedyAll,
		job.StageReport: summarize,
	}}

	got, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantCalls := []string{job.StageMine, job.StageRemedy, job.StageReport}
	if !reflect.DeepEqual(inv.calls, wantCalls) {
		t.Errorf("stage sequence = %v, want %v", inv.calls, wantCalls)
	}
	if len(got.Remedies) == 0 {
		t.Error("conversion lead reached the report with no remedies")
	}
}

func TestRun_AdvisoryLeadsWithSilentInvestigationStillGetRemedies(t *testing.T) {
	t.Parallel()

	// Mine produces an advisory lead but compilation still runs and fails;
	// investigation then finds nothing new. The advisory lead must reach
	// the remedy stage and the intermediate outcome must not survive.
	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine: addLeadAndOutcome(job.OutcomeCompilationFailed),
		job.StageInvestigate: func(_ context.Context, rec *job.Record) (*job.Record, error) {
			return rec, nil // nothing found, outcome untouched
		},
		job.StageRemedy: remedyAll,
		job.StageReport: summarize,
	}}

	got, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantCalls := []string{job.StageMine, job.StageInvestigate, job.StageRemedy, job.StageReport}
	if !reflect.DeepEqual(inv.calls, wantCalls) {
		t.Errorf("stage sequence = %v, want %v", inv.calls, wantCalls)
	}
	if got.Outcome == job.OutcomeCompilationFailed {
		t.Errorf("Outcome = %q, intermediate outcome leaked into the final record", got.Outcome)
	}
	if len(got.Remedies) == 0 {
		t.Error("advisory lead reached the report with no remedies")
	}
}

func TestRun_NoLeadsForcesManualReview(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine: setOutcome(job.OutcomeCompilationFailed),
		job.StageInvestigate: func(_ context.Context, rec *job.Record) (*job.Record, error) {
			return rec, nil // nothing found, outcome untouched
		},
		job.StageReport: summarize,
	}}

	got, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Outcome != job.OutcomeNoLeadsManualReview {
		t.Errorf("Outcome = %q, want %q", got.Outcome, job.OutcomeNoLeadsManualReview)
	}
	for _, c := range inv.calls {
		if c == job.StageRemedy {
			t.Error("remedy stage ran with no leads")
		}
	}
}

func TestRun_StageErrorAbortsImmediately(t *testing.T) {
	t.Parallel()

	boom := errors.New("worker exploded")
	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine: func(_ context.Context, _ *job.Record) (*job.Record, error) {
			return nil, boom
		},
	}}

	_, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want the stage failure", err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("stage sequence = %v, want abort after the failing stage", inv.calls)
	}
}

func TestRun_ContractViolations(t *testing.T) {
	t.Parallel()

	t.Run("mine sets no outcome", func(t *testing.T) {
		inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
			job.StageMine: func(_ context.Context, rec *job.Record) (*job.Record, error) {
				return rec, nil
			},
		}}
		_, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
		if !errors.Is(err, pipeline.ErrStageContract) {
			t.Errorf("error = %v, want ErrStageContract", err)
		}
	})

	t.Run("remedy leaves a lead uncovered", func(t *testing.T) {
		inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
			job.StageMine:        setOutcome(job.OutcomeCompilationFailed),
			job.StageInvestigate: addLeadAndOutcome(job.OutcomeTexErrorLeadsFound),
			job.StageRemedy: func(_ context.Context, rec *job.Record) (*job.Record, error) {
				rec.Outcome = job.OutcomeRemediesProvided
				return rec, nil // no remedies added
			},
		}}
		_, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
		if !errors.Is(err, pipeline.ErrStageContract) {
			t.Errorf("error = %v, want ErrStageContract", err)
		}
	})

	t.Run("report leaves the summary empty", func(t *testing.T) {
		inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
			job.StageMine: setOutcome(job.OutcomeCompilationSuccess),
			job.StageReport: func(_ context.Context, rec *job.Record) (*job.Record, error) {
				return rec, nil
			},
		}}
		_, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
		if !errors.Is(err, pipeline.ErrStageContract) {
			t.Errorf("error = %v, want ErrStageContract", err)
		}
	})

	t.Run("stage returns an invalid record", func(t *testing.T) {
		inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
			job.StageMine: func(_ context.Context, rec *job.Record) (*job.Record, error) {
				rec.Outcome = "made_up_outcome"
				return rec, nil
			},
		}}
		_, err := quietOrchestrator(inv, false).Run(context.Background(), newRecord(t))
		if !errors.Is(err, pipeline.ErrStageContract) {
			t.Errorf("error = %v, want ErrStageContract", err)
		}
	})
}

func TestRun_DebugDumpsRecordPerStage(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	inv := &fakeInvoker{handlers: map[string]pipeline.HandlerFunc{
		job.StageMine:   setOutcome(job.OutcomeCompilationSuccess),
		job.StageReport: summarize,
	}}

	rec := newRecord(t)
	rec.ScratchDir = scratch
	got, err := quietOrchestrator(inv, true).Run(context.Background(), rec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, stage := range []string{job.StageMine, job.StageReport} {
		path := filepath.Join(scratch, got.CaseID+"_"+stage+".json")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("debug dump for %s stage: %v", stage, err)
		}
	}
}
