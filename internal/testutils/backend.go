// Package testutils provides a storage backend for tests with controllable
// latency and failures.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/stateful/dualdoc/internal/storage"
)

type Write struct {
	Path    string
	Content string
}

// Backend is an in-memory storage.Backend that records every write and
// every read.
type Backend struct {
	mu         sync.Mutex
	files      map[string]string
	writes     []Write
	reads      []string
	writeDelay time.Duration
	writeErr   map[string]error
}

var _ storage.Backend = (*Backend)(nil)

func NewBackend(files map[string]string) *Backend {
	b := &Backend{
		files:    make(map[string]string, len(files)),
		writeErr: make(map[string]error),
	}
	for path, content := range files {
		b.files[path] = content
	}
	return b
}

// SetWriteDelay makes every following write take d. The delay ignores
// context cancellation, like a stuck disk would.
func (b *Backend) SetWriteDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeDelay = d
}

// FailWrites makes writes to path fail with err. A nil err clears it.
func (b *Backend) FailWrites(path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.writeErr, path)
		return
	}
	b.writeErr[path] = err
}

func (b *Backend) Read(ctx context.Context, path string) (*storage.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reads = append(b.reads, path)

	content, ok := b.files[path]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, path)
	}
	return &storage.File{
		Path:     path,
		Content:  content,
		Metadata: storage.Metadata{Size: int64(len(content)), MIMEType: "text/plain; charset=utf-8"},
	}, nil
}

func (b *Backend) Stat(ctx context.Context, path string) (storage.Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	content, ok := b.files[path]
	if !ok {
		return storage.Metadata{}, errors.Wrap(storage.ErrNotFound, path)
	}
	return storage.Metadata{Size: int64(len(content))}, nil
}

func (b *Backend) Write(ctx context.Context, path, content string) error {
	b.mu.Lock()
	delay := b.writeDelay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes = append(b.writes, Write{Path: path, Content: content})

	if err := b.writeErr[path]; err != nil {
		return err
	}
	b.files[path] = content
	return nil
}

// Writes returns every write attempt in order, failed ones included.
func (b *Backend) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Write(nil), b.writes...)
}

func (b *Backend) Reads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.reads...)
}

func (b *Backend) Content(path string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.files[path]
	return content, ok
}
