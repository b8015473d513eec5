// Package storage reads and writes documents. It is the only place that
// touches a file system.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// IOError is any other failure of the underlying file system.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

type Metadata struct {
	Size     int64
	ModTime  time.Time
	MIMEType string
}

type File struct {
	Path     string
	Content  string
	Metadata Metadata
}

// Backend is a document store. Implementations must be safe for concurrent
// use and Write must be all-or-nothing: a reader never observes a partially
// written file.
type Backend interface {
	Read(ctx context.Context, path string) (*File, error)
	Stat(ctx context.Context, path string) (Metadata, error)
	Write(ctx context.Context, path, content string) error
}
