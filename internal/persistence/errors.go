package persistence

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNoFileOpen is returned by operations that need an open document.
var ErrNoFileOpen = errors.New("no file open")

type WriteFailedError struct {
	Path   string
	Reason error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Reason)
}

func (e *WriteFailedError) Unwrap() error {
	return e.Reason
}

type TimeoutError struct {
	Path     string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("write of %s timed out after %dms", e.Path, e.Duration.Milliseconds())
}
