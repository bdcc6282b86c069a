package main

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Now    func() time.Time
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// logger returns the configured logger, building a stderr text logger at
// the requested verbosity on first use.
func (e *Environment) logger(verbose bool) *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	e.Logger = slog.New(slog.NewTextHandler(e.Stderr, &slog.HandlerOptions{Level: level}))
	return e.Logger
}
