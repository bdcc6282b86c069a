package main

import (
	"errors"
	"os"

	flag "github.com/spf13/pflag"

	"texdoctor/internal/config"
	"texdoctor/internal/job"
	"texdoctor/internal/mine"
	"texdoctor/internal/worker"
)

// Exit codes for the texdoctor CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Report produced (regardless of the diagnostic outcome)
	ExitGeneral = 1 // General/unexpected error, including pipeline failures
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // Missing input, file not found, permission denied
	ExitTool    = 4 // External tool missing or broken worker protocol
)

// ErrNoInput is returned when no markdown arrives on stdin.
var ErrNoInput = errors.New("no markdown on stdin")

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Tool and worker protocol errors (exit 4)
	if errors.Is(err, mine.ErrToolNotFound) ||
		errors.Is(err, mine.ErrToolTimeout) ||
		errors.Is(err, worker.ErrWorkerExit) ||
		errors.Is(err, worker.ErrWorkerEmptyOutput) ||
		errors.Is(err, worker.ErrWorkerMalformedOutput) ||
		errors.Is(err, worker.ErrWorkerInvalidRecord) {
		return ExitTool
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrEmptyToolPath) ||
		errors.Is(err, config.ErrInvalidTimeout) ||
		errors.Is(err, job.ErrEmptyMarkdown) ||
		errors.Is(err, flag.ErrHelp) ||
		errors.Is(err, ErrUsage) {
		return ExitUsage
	}

	return ExitGeneral
}
