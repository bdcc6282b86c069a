package texdoctor

import (
	"log/slog"
	"time"
)

// Input contains the document to diagnose.
type Input struct {
	Markdown string // Markdown content (required)
}

// Result is the outcome of one diagnostic run.
type Result struct {
	CaseID  string // unique id of this run
	Outcome string // machine-readable outcome code
	Summary string // one-line human summary
	Report  string // full rendered report
}

// Option configures a Service.
type Option func(*Service)

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	timeout   time.Duration
	converter string
	compiler  string
	color     bool
	showTools bool
	debug     bool
	logger    *slog.Logger
}

// defaultTimeout bounds a whole diagnostic run when no timeout is specified.
const defaultTimeout = 5 * time.Minute

// WithTimeout sets the overall diagnosis timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("texdoctor: WithTimeout duration must be positive")
	}
	return func(s *Service) {
		s.cfg.timeout = d
	}
}

// WithConverter overrides the markdown-to-TeX converter executable.
func WithConverter(path string) Option {
	return func(s *Service) {
		s.cfg.converter = path
	}
}

// WithCompiler overrides the TeX compiler executable.
func WithCompiler(path string) Option {
	return func(s *Service) {
		s.cfg.compiler = path
	}
}

// WithColor enables ANSI color in the rendered report. Color is driven
// only by this option, never by terminal detection.
func WithColor(enabled bool) Option {
	return func(s *Service) {
		s.cfg.color = enabled
	}
}

// WithToolOutput appends the raw converter and compiler output to the
// report.
func WithToolOutput(enabled bool) Option {
	return func(s *Service) {
		s.cfg.showTools = enabled
	}
}

// WithDebug keeps the scratch directory after the run and dumps the job
// record there after every stage.
func WithDebug(enabled bool) Option {
	return func(s *Service) {
		s.cfg.debug = enabled
	}
}

// WithLogger sets the structured logger used by all pipeline components.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.cfg.logger = log
	}
}
