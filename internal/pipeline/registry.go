// Package pipeline drives a diagnostic run through its stages: mine,
// investigate, remedy, report. The orchestrator owns all stage sequencing;
// stages only transform the record they are handed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"texdoctor/internal/config"
	"texdoctor/internal/investigate"
	"texdoctor/internal/job"
	"texdoctor/internal/mine"
	"texdoctor/internal/remedy"
	"texdoctor/internal/report"
	"texdoctor/internal/worker"
)

// Sentinel errors for stage registration and lookup.
var (
	ErrUnknownStage   = errors.New("pipeline: unknown stage")
	ErrStageConflict  = errors.New("pipeline: stage already registered")
	ErrEmptyStageName = errors.New("pipeline: stage name cannot be empty")
)

// StageInvoker runs one named stage over a record. The in-process registry
// and the subprocess invoker both satisfy it, so the orchestrator does not
// care where stages execute.
type StageInvoker interface {
	Invoke(ctx context.Context, stage string, rec *job.Record) (*job.Record, error)
}

// HandlerFunc is the in-process body of a stage.
type HandlerFunc func(ctx context.Context, rec *job.Record) (*job.Record, error)

// Registry maps stage names to in-process handlers.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a stage name to a handler.
func (r *Registry) Register(name string, h HandlerFunc) error {
	if name == "" {
		return ErrEmptyStageName
	}
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrStageConflict, name)
	}
	r.handlers[name] = h
	return nil
}

// Handler returns the handler for a stage name.
func (r *Registry) Handler(name string) (HandlerFunc, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Invoke runs the named stage in process.
func (r *Registry) Invoke(ctx context.Context, stage string, rec *job.Record) (*job.Record, error) {
	h, ok := r.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return h(ctx, rec)
}

// NewDefaultRegistry wires the four standard stages with the given
// configuration.
func NewDefaultRegistry(cfg *config.Config, log *slog.Logger) (*Registry, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	mapper, err := remedy.NewDefaultMapper(log)
	if err != nil {
		return nil, fmt.Errorf("building remedy mapper: %w", err)
	}

	mineStage := mine.NewStage(cfg, nil, log)
	invStage := investigate.NewStage(log)
	repStage := report.NewStage(report.NewRenderer(cfg.Report.Color, cfg.Report.ShowToolOutput), log)

	r := NewRegistry()
	register := func(name string, h HandlerFunc) {
		if err == nil {
			err = r.Register(name, h)
		}
	}
	register(job.StageMine, func(ctx context.Context, rec *job.Record) (*job.Record, error) {
		return mineStage.Process(ctx, rec)
	})
	register(job.StageInvestigate, func(_ context.Context, rec *job.Record) (*job.Record, error) {
		return invStage.Process(rec)
	})
	register(job.StageRemedy, func(_ context.Context, rec *job.Record) (*job.Record, error) {
		return mapper.Process(rec)
	})
	register(job.StageReport, func(_ context.Context, rec *job.Record) (*job.Record, error) {
		return repStage.Process(rec)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SubprocessInvoker runs stages through the worker protocol, one subprocess
// per stage invocation.
type SubprocessInvoker struct {
	runner *worker.Runner
	refs   map[string]worker.StageRef
}

// NewSubprocessInvoker builds an invoker over per-stage executable
// references.
func NewSubprocessInvoker(runner *worker.Runner, refs map[string]worker.StageRef) *SubprocessInvoker {
	return &SubprocessInvoker{runner: runner, refs: refs}
}

// Invoke dispatches the stage to its subprocess.
func (s *SubprocessInvoker) Invoke(ctx context.Context, stage string, rec *job.Record) (*job.Record, error) {
	ref, ok := s.refs[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return s.runner.Invoke(ctx, ref, rec)
}
