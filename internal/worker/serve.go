package worker

import (
	"errors"
	"fmt"
	"io"

	"texdoctor/internal/job"
)

// ErrNilHandler is returned by Serve when no handler is provided.
var ErrNilHandler = errors.New("stage handler cannot be nil")

// Handler transforms a job record. It is the in-process body of a stage.
type Handler interface {
	Process(rec *job.Record) (*job.Record, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(rec *job.Record) (*job.Record, error)

func (f HandlerFunc) Process(rec *job.Record) (*job.Record, error) { return f(rec) }

// Serve runs one protocol exchange on the stage side: decode a record from
// in, apply h, encode the result to out. Any error means the worker must
// exit non-zero without writing a record, which the invoking side reports
// as a contract violation.
func Serve(in io.Reader, out io.Writer, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}

	rec, err := job.Decode(in)
	if err != nil {
		return fmt.Errorf("reading job record: %w", err)
	}

	updated, err := h.Process(rec)
	if err != nil {
		return fmt.Errorf("processing job record: %w", err)
	}

	if err := job.Encode(out, updated); err != nil {
		return fmt.Errorf("writing job record: %w", err)
	}
	return nil
}
