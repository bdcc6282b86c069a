// Package worker implements the stage invocation protocol: a stage runs as a
// subprocess that receives a job record as JSON on stdin and writes the
// updated record as JSON on stdout. Any deviation from the protocol is a
// contract violation and aborts the run.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"texdoctor/internal/job"
)

// Sentinel errors for protocol violations.
var (
	ErrWorkerExit            = errors.New("stage worker exited with failure")
	ErrWorkerEmptyOutput     = errors.New("stage worker produced no output")
	ErrWorkerMalformedOutput = errors.New("stage worker produced malformed output")
	ErrWorkerInvalidRecord   = errors.New("stage worker returned an invalid job record")
)

// ProcessJobFlag marks an invocation as a stage subprocess run.
const ProcessJobFlag = "--process-job"

// StageRef identifies a stage executable. Args are placed before the
// protocol flag, so a stage hosted in a multi-command binary can be
// addressed as {Path: "texdoctor", Args: ["stage", "mine"]}.
type StageRef struct {
	Name string
	Path string
	Args []string
}

// Runner invokes stage subprocesses.
type Runner struct {
	log *slog.Logger
}

// NewRunner returns a Runner logging through log, or slog.Default() when nil.
func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

// Invoke runs the stage subprocess over rec and returns the updated record.
// The record travels as JSON on stdin and stdout. Stage stderr is captured
// and logged but never parsed. A non-zero exit, empty stdout, or stdout that
// does not decode into a valid record is returned as an error; callers treat
// every such error as fatal.
func (r *Runner) Invoke(ctx context.Context, ref StageRef, rec *job.Record) (*job.Record, error) {
	input, err := job.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record for stage %s: %w", ref.Name, err)
	}

	args := append(append([]string{}, ref.Args...), ProcessJobFlag)
	cmd := exec.CommandContext(ctx, ref.Path, args...) // #nosec G204 -- stage path comes from the local registry
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "TEXDOCTOR_STAGE="+ref.Name)

	r.log.Debug("invoking stage worker",
		slog.String("stage", ref.Name),
		slog.String("path", ref.Path),
		slog.String("case_id", rec.CaseID),
	)

	runErr := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		r.log.Debug("stage worker stderr",
			slog.String("stage", ref.Name),
			slog.String("stderr", msg),
		)
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: stage %s: %v (stderr: %s)",
			ErrWorkerExit, ref.Name, runErr, strings.TrimSpace(stderr.String()))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: stage %s", ErrWorkerEmptyOutput, ref.Name)
	}

	updated, err := job.Unmarshal(out)
	if err != nil {
		if errors.Is(err, job.ErrMalformedJSON) || errors.Is(err, job.ErrEmptyInput) {
			return nil, fmt.Errorf("%w: stage %s: %v", ErrWorkerMalformedOutput, ref.Name, err)
		}
		return nil, fmt.Errorf("%w: stage %s: %v", ErrWorkerInvalidRecord, ref.Name, err)
	}

	if updated.CaseID != rec.CaseID {
		return nil, fmt.Errorf("%w: stage %s changed case id from %s to %s",
			ErrWorkerInvalidRecord, ref.Name, rec.CaseID, updated.CaseID)
	}

	return updated, nil
}
