package texdoctor

import (
	"errors"

	"texdoctor/internal/job"
)

// Sentinel errors for library operations.
var (
	// ErrEmptyMarkdown is returned when the input document is empty.
	ErrEmptyMarkdown = job.ErrEmptyMarkdown

	// ErrPipelineFailed wraps any failure of the diagnostic pipeline
	// itself. The document under diagnosis is never the cause; callers
	// should surface the internal error report alongside it.
	ErrPipelineFailed = errors.New("diagnostic pipeline failed")
)
