package report_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"texdoctor/internal/job"
	"texdoctor/internal/report"
)

func quietStage(colored, showTools bool) *report.Stage {
	return report.NewStage(report.NewRenderer(colored, showTools), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newRecord(t *testing.T) *job.Record {
	t.Helper()
	rec, err := job.NewRecord("# Doc\n\nbody\n")
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func diagnosedRecord(t *testing.T) *job.Record {
	t.Helper()
	rec := newRecord(t)
	rec.ConversionAttempted = true
	rec.ConversionSucceeded = true
	rec.CompilationAttempted = true

	lead := job.NewLead("undefined_command_probe", `Undefined control sequence \badcmd`, 0.9)
	lead.Snippets = []job.Snippet{{Kind: job.SnippetLog, Line: 42, Text: "l.42 \\badcmd"}}
	rec.AddLead(lead)
	rec.AddRemedy(job.NewRemedy(lead.ID, "remedy_mapper",
		"The compiler does not know this command.",
		`Check the spelling of \badcmd.`, 0.9))
	rec.Outcome = job.OutcomeRemediesProvided
	return rec
}

func TestProcess_FillsSummaryAndReport(t *testing.T) {
	t.Parallel()

	rec := diagnosedRecord(t)
	got, err := quietStage(false, false).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got.Summary == "" {
		t.Error("Summary is empty")
	}
	if got.Report == "" {
		t.Error("Report is empty")
	}
	if !strings.Contains(got.Report, got.CaseID) {
		t.Error("report does not mention the case id")
	}
}

func TestRender_DiagnosedRun(t *testing.T) {
	t.Parallel()

	rec := diagnosedRecord(t)
	got, err := quietStage(false, false).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	for _, want := range []string{
		`Undefined control sequence \badcmd`,
		"found by undefined_command_probe",
		`Check the spelling of \badcmd.`,
		"log, line 42",
		"1 problem diagnosed with 1 fix proposed",
	} {
		if !strings.Contains(got.Report, want) {
			t.Errorf("report missing %q\nreport:\n%s", want, got.Report)
		}
	}
}

func TestRender_ColorDisabledEmitsNoEscapes(t *testing.T) {
	t.Parallel()

	got, err := quietStage(false, false).Process(diagnosedRecord(t))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if strings.Contains(got.Report, "\x1b[") {
		t.Error("report contains ANSI escapes with color disabled")
	}
}

func TestRender_ManualReviewShowsErrorBlock(t *testing.T) {
	t.Parallel()

	rec := newRecord(t)
	rec.CompilationAttempted = true
	rec.CompilerLog = "preamble noise\n! Something strange.\nl.3 x\n\nlater lines\n"
	rec.CompilerLogPath = "/tmp/scratch/doc.log"
	rec.Outcome = job.OutcomeNoLeadsManualReview

	got, err := quietStage(false, false).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !strings.Contains(got.Report, "! Something strange.") {
		t.Errorf("report missing the first error block:\n%s", got.Report)
	}
	if strings.Contains(got.Report, "later lines") {
		t.Error("report includes log lines past the error block")
	}
	if !strings.Contains(got.Report, "/tmp/scratch/doc.log") {
		t.Error("report does not point at the full log")
	}
	if !strings.Contains(got.Summary, "manual review") {
		t.Errorf("summary = %q, want manual review wording", got.Summary)
	}
}

func TestRender_ToolOutputAppendix(t *testing.T) {
	t.Parallel()

	rec := diagnosedRecord(t)
	rec.RecordToolOutput("compiler_stdout", "This is pdfTeX\n")

	t.Run("shown when enabled", func(t *testing.T) {
		got, err := quietStage(false, true).Process(rec)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if !strings.Contains(got.Report, "This is pdfTeX") {
			t.Error("tool output appendix missing")
		}
	})

	t.Run("hidden when disabled", func(t *testing.T) {
		got, err := quietStage(false, false).Process(rec)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if strings.Contains(got.Report, "This is pdfTeX") {
			t.Error("tool output shown despite being disabled")
		}
	})
}

func TestSummarize_CoversEveryOutcome(t *testing.T) {
	t.Parallel()

	outcomes := []job.Outcome{
		job.OutcomeUnset,
		job.OutcomeCompilationSuccess,
		job.OutcomeMarkdownProofing,
		job.OutcomeConversionFailed,
		job.OutcomeCompilationFailed,
		job.OutcomeTexErrorLeadsFound,
		job.OutcomeRemediesProvided,
		job.OutcomeNoLeadsManualReview,
		job.OutcomeInternalError,
	}

	for _, o := range outcomes {
		rec := newRecord(t)
		rec.Outcome = o
		if got := report.Summarize(rec); got == "" {
			t.Errorf("Summarize() = empty for outcome %q", o)
		}
	}
}

func TestSummarize_RemediesNameTheFailedStep(t *testing.T) {
	t.Parallel()

	withRemedy := func(rec *job.Record) *job.Record {
		lead := job.NewLead("probe", "a problem", 0.9)
		rec.AddLead(lead)
		rec.AddRemedy(job.NewRemedy(lead.ID, "remedy_mapper", "explained", "fixed", 0.9))
		rec.Outcome = job.OutcomeRemediesProvided
		return rec
	}

	t.Run("proofing blocked before conversion", func(t *testing.T) {
		rec := withRemedy(newRecord(t))
		got := report.Summarize(rec)
		if !strings.Contains(got, "proofing") {
			t.Errorf("Summarize() = %q, want the proofing step named", got)
		}
		if strings.Contains(got, "Compilation failed") {
			t.Errorf("Summarize() = %q, compilation never ran", got)
		}
	})

	t.Run("conversion failed", func(t *testing.T) {
		rec := withRemedy(newRecord(t))
		rec.ConversionAttempted = true
		got := report.Summarize(rec)
		if !strings.Contains(got, "conversion failed") {
			t.Errorf("Summarize() = %q, want the conversion step named", got)
		}
	})

	t.Run("compilation failed", func(t *testing.T) {
		rec := withRemedy(newRecord(t))
		rec.ConversionAttempted = true
		rec.ConversionSucceeded = true
		rec.CompilationAttempted = true
		got := report.Summarize(rec)
		if !strings.Contains(got, "Compilation failed") {
			t.Errorf("Summarize() = %q, want the compilation step named", got)
		}
	})
}

func TestBuildInternalErrorReport(t *testing.T) {
	t.Parallel()

	t.Run("with record", func(t *testing.T) {
		rec := newRecord(t)
		rec.ScratchDir = "/tmp/scratch-xyz"
		got := report.BuildInternalErrorReport(rec, errors.New("stage worker exited with failure"))
		for _, want := range []string{rec.CaseID, "internal_error", "stage worker exited", "/tmp/scratch-xyz"} {
			if !strings.Contains(got, want) {
				t.Errorf("report missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("without record", func(t *testing.T) {
		got := report.BuildInternalErrorReport(nil, errors.New("boom"))
		if !strings.Contains(got, "internal_error") || !strings.Contains(got, "boom") {
			t.Errorf("report = %q, want outcome and cause", got)
		}
	})
}
