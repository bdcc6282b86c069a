// Package mine implements the first pipeline stage: proof the markdown
// document, convert it to TeX, and attempt compilation. It classifies the
// first failing step into the record's outcome; later stages only run when
// compilation produced an error log to investigate.
package mine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"texdoctor/internal/config"
	"texdoctor/internal/fileutil"
	"texdoctor/internal/job"
	"texdoctor/internal/process"
	"texdoctor/internal/specialist"
)

// Sentinel errors for stage failures. Tool exits are data, not errors;
// these cover the cases where the stage itself cannot proceed.
var (
	ErrToolNotFound = errors.New("mine: external tool not found")
	ErrToolTimeout  = errors.New("mine: external tool timed out")
)

// blockThreshold is the proofing confidence at or above which a finding is
// considered certain enough to skip conversion entirely. Advisory findings
// below it become leads but do not stop the run.
const blockThreshold = 0.8

// documentclassWindow is how many leading non-empty TeX lines are searched
// for \documentclass before the output is declared defective.
const documentclassWindow = 5

// Scratch artifact names.
const (
	docMarkdownName = "doc.md"
	docTexName      = "doc.tex"
	docLogName      = "doc.log"
)

// ToolRunner executes one external tool invocation in dir. A non-zero exit
// is reported through exitErr with the captured streams still populated;
// err covers failures to run the tool at all.
type ToolRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// execToolRunner runs tools through os/exec with process-group teardown on
// timeout.
type execToolRunner struct{}

func (execToolRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- tool paths come from validated config
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	process.SetProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			process.KillProcessGroup(cmd.Process.Pid)
		}
		return cmd.Process.Kill()
	}

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Stage is the mining stage.
type Stage struct {
	cfg   *config.Config
	tools ToolRunner
	disp  *specialist.Dispatcher
	log   *slog.Logger
}

// NewStage builds a mining stage. A nil tools runner defaults to os/exec;
// a nil logger defaults to slog.Default().
func NewStage(cfg *config.Config, tools ToolRunner, log *slog.Logger) *Stage {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if tools == nil {
		tools = execToolRunner{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stage{
		cfg:   cfg,
		tools: tools,
		disp:  specialist.NewDispatcher(log),
		log:   log,
	}
}

// proofers are the document checks run before any conversion.
var proofers = []specialist.Specialist{
	specialist.UnclosedFenceProofer{},
	specialist.UnbalancedDollarProofer{},
	specialist.RawTexCommandProofer{},
	specialist.CitationSyntaxProofer{},
}

// Process proofs, converts, and compiles the record's document. The record
// comes back with an outcome describing the first failing step, or the
// success outcome when the document compiles cleanly.
func (s *Stage) Process(ctx context.Context, rec *job.Record) (*job.Record, error) {
	if rec.ScratchDir == "" {
		dir, err := fileutil.NewScratchDir("texdoctor")
		if err != nil {
			return nil, fmt.Errorf("creating scratch dir: %w", err)
		}
		rec.ScratchDir = dir
	}

	if blocked := s.proof(rec); blocked {
		rec.Outcome = job.OutcomeMarkdownProofing
		return rec, nil
	}

	if ok, err := s.convert(ctx, rec); err != nil {
		return nil, err
	} else if !ok {
		rec.Outcome = job.OutcomeConversionFailed
		return rec, nil
	}

	if !hasDocumentclass(rec.TexContent) {
		rec.AddLead(job.NewLead("converter_output_check",
			`Converted TeX has no \documentclass near the top; the converter did not emit a standalone document`,
			0.9))
		rec.Outcome = job.OutcomeConversionFailed
		return rec, nil
	}

	if ok, err := s.compile(ctx, rec); err != nil {
		return nil, err
	} else if !ok {
		rec.Outcome = job.OutcomeCompilationFailed
		return rec, nil
	}

	rec.Outcome = job.OutcomeCompilationSuccess
	return rec, nil
}

// proof runs the document checks, records every finding as a lead, and
// reports whether a finding is confident enough to block conversion.
func (s *Stage) proof(rec *job.Record) bool {
	reports := s.disp.Dispatch(specialist.RunAll, proofers, specialist.Artifacts{Markdown: rec.Markdown})

	blocked := false
	for _, r := range reports {
		rec.AddLead(r.Lead())
		if r.Finding.Confidence >= blockThreshold {
			blocked = true
		}
	}
	if blocked {
		s.log.Info("document proofing blocked conversion",
			slog.String("case_id", rec.CaseID),
			slog.Int("findings", len(reports)),
		)
	}
	return blocked
}

// convert runs the markdown-to-TeX converter. Returns false when the tool
// exited non-zero; errors cover a missing binary or a timeout.
func (s *Stage) convert(ctx context.Context, rec *job.Record) (bool, error) {
	docPath, err := fileutil.WriteScratchFile(rec.ScratchDir, docMarkdownName, rec.Markdown)
	if err != nil {
		return false, fmt.Errorf("writing document to scratch: %w", err)
	}

	args := []string{"-f", "markdown", "-t", "latex", "--standalone"}
	args = append(args, s.cfg.Tools.ConverterExtraArgs...)
	args = append(args, docPath)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConvertTimeout())
	defer cancel()

	rec.ConversionAttempted = true
	stdout, stderr, runErr := s.tools.Run(cctx, rec.ScratchDir, s.cfg.Tools.Converter, args...)
	rec.ConverterLog = stderr
	rec.RecordToolOutput("converter_stderr", stderr)

	if runErr != nil {
		if toolErr := s.classifyToolError(cctx, runErr, s.cfg.Tools.Converter); toolErr != nil {
			return false, toolErr
		}
		s.log.Info("conversion failed",
			slog.String("case_id", rec.CaseID),
			slog.String("tool", s.cfg.Tools.Converter),
		)
		lead := job.NewLead("conversion_probe", converterFailureDescription(stderr), 0.9)
		if msg := strings.TrimSpace(stderr); msg != "" {
			lead.Snippets = append(lead.Snippets, job.Snippet{
				Kind: job.SnippetLog,
				Text: firstLogLines(msg, 10),
			})
		}
		rec.AddLead(lead)
		return false, nil
	}

	rec.ConversionSucceeded = true
	rec.TexContent = stdout
	if _, err := fileutil.WriteScratchFile(rec.ScratchDir, docTexName, stdout); err != nil {
		return false, fmt.Errorf("writing TeX to scratch: %w", err)
	}
	return true, nil
}

// compile runs the TeX compiler over the generated document and captures
// its log. Returns false when compilation failed.
func (s *Stage) compile(ctx context.Context, rec *job.Record) (bool, error) {
	args := []string{"-interaction=nonstopmode", "-halt-on-error", "-output-directory", rec.ScratchDir}
	args = append(args, s.cfg.Tools.CompilerExtraArgs...)
	args = append(args, docTexName)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CompileTimeout())
	defer cancel()

	rec.CompilationAttempted = true
	stdout, stderr, runErr := s.tools.Run(cctx, rec.ScratchDir, s.cfg.Tools.Compiler, args...)
	rec.RecordToolOutput("compiler_stdout", stdout)
	rec.RecordToolOutput("compiler_stderr", stderr)

	if runErr != nil {
		if toolErr := s.classifyToolError(cctx, runErr, s.cfg.Tools.Compiler); toolErr != nil {
			return false, toolErr
		}
	}

	// The compiler writes its real diagnostics to the log file; the
	// console stream is a fallback when the log is missing.
	logPath := filepath.Join(rec.ScratchDir, docLogName)
	if logText, err := fileutil.ReadFileString(logPath); err == nil {
		rec.CompilerLog = logText
		rec.CompilerLogPath = logPath
	} else {
		rec.CompilerLog = stdout
	}

	if runErr != nil {
		s.log.Info("compilation failed",
			slog.String("case_id", rec.CaseID),
			slog.String("tool", s.cfg.Tools.Compiler),
		)
		return false, nil
	}

	rec.CompilationSucceeded = true
	return true, nil
}

// classifyToolError separates environment failures (missing binary, stage
// timeout) from ordinary tool exits. It returns nil for a plain non-zero
// exit, which callers handle as diagnostic data.
func (s *Stage) classifyToolError(ctx context.Context, err error, tool string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolTimeout, tool, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return fmt.Errorf("running %s: %w", tool, err)
}

// hasDocumentclass reports whether \documentclass appears in the first few
// non-empty lines of the TeX output. Converters place it at the top; its
// absence means the output is a fragment, not a compilable document.
func hasDocumentclass(tex string) bool {
	seen := 0
	for _, line := range strings.Split(tex, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, `\documentclass`) {
			return true
		}
		seen++
		if seen >= documentclassWindow {
			break
		}
	}
	return false
}

func converterFailureDescription(stderr string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return "Markdown-to-TeX conversion failed with no diagnostic output"
	}
	first := msg
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		first = msg[:i]
	}
	return "Markdown-to-TeX conversion failed: " + strings.TrimSpace(first)
}

func firstLogLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
