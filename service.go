package texdoctor

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"texdoctor/internal/config"
	"texdoctor/internal/fileutil"
	"texdoctor/internal/job"
	"texdoctor/internal/pipeline"
	"texdoctor/internal/report"
)

// Service runs diagnostic pipelines. It is safe to reuse across documents;
// each run gets its own job record and scratch directory.
type Service struct {
	cfg serviceConfig
	inv pipeline.StageInvoker
	log *slog.Logger
}

// New creates a Service with default configuration.
// Use options to customize behavior (e.g., WithTimeout).
func New(opts ...Option) (*Service, error) {
	s := &Service{
		cfg: serviceConfig{timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = s.cfg.logger
	if s.log == nil {
		s.log = slog.Default()
	}

	// Stage invoker left injectable for tests.
	if s.inv == nil {
		reg, err := pipeline.NewDefaultRegistry(s.pipelineConfig(), s.log)
		if err != nil {
			return nil, fmt.Errorf("building stage registry: %w", err)
		}
		s.inv = reg
	}

	return s, nil
}

// pipelineConfig translates service options into the pipeline configuration.
func (s *Service) pipelineConfig() *config.Config {
	cfg := config.DefaultConfig()
	if s.cfg.converter != "" {
		cfg.Tools.Converter = s.cfg.converter
	}
	if s.cfg.compiler != "" {
		cfg.Tools.Compiler = s.cfg.compiler
	}
	cfg.Report.Color = s.cfg.color
	cfg.Report.ShowToolOutput = s.cfg.showTools
	cfg.Debug = s.cfg.debug
	return cfg
}

// Diagnose runs the full pipeline over one document. A Result comes back
// for every run the pipeline completed, including the manual-review case.
// When the pipeline itself fails, the returned Result still carries an
// internal error report and the error wraps ErrPipelineFailed.
func (s *Service) Diagnose(ctx context.Context, input Input) (Result, error) {
	rec, err := job.NewRecord(input.Markdown)
	if err != nil {
		return Result{}, err
	}

	scratch, err := fileutil.NewScratchDir("texdoctor")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPipelineFailed, err)
	}
	rec.ScratchDir = scratch
	if !s.cfg.debug {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				s.log.Warn("scratch cleanup failed",
					slog.String("dir", scratch),
					slog.Any("error", err),
				)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()

	orch := pipeline.NewOrchestrator(s.inv, s.log, s.cfg.debug)
	done, runErr := orch.Run(ctx, rec)
	if runErr != nil {
		if done == nil {
			done = rec
		}
		done.Outcome = job.OutcomeInternalError
		return Result{
			CaseID:  done.CaseID,
			Outcome: string(job.OutcomeInternalError),
			Summary: report.Summarize(done),
			Report:  report.BuildInternalErrorReport(done, runErr),
		}, fmt.Errorf("%w: %v", ErrPipelineFailed, runErr)
	}

	return Result{
		CaseID:  done.CaseID,
		Outcome: string(done.Outcome),
		Summary: done.Summary,
		Report:  done.Report,
	}, nil
}
