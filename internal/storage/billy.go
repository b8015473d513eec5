package storage

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const filePerm = 0o644

// Billy is a Backend on top of a billy file system.
type Billy struct {
	fs     billy.Filesystem
	logger *zap.Logger
}

var _ Backend = (*Billy)(nil)

type Option func(*Billy)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Billy) {
		b.logger = logger
	}
}

func NewBilly(fs billy.Filesystem, opts ...Option) *Billy {
	b := &Billy{fs: fs}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// NewOS returns a backend for the host file system.
func NewOS(opts ...Option) *Billy {
	return NewBilly(osfs.New("/"), opts...)
}

// NewMemory returns a backend keeping files in memory.
func NewMemory(opts ...Option) *Billy {
	return NewBilly(memfs.New(), opts...)
}

// Filesystem returns the underlying file system.
func (b *Billy) Filesystem() billy.Filesystem {
	return b.fs
}

func (b *Billy) Read(ctx context.Context, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	data, err := util.ReadFile(b.fs, path)
	if err != nil {
		return nil, classify("read", path, err)
	}

	info, err := b.fs.Stat(path)
	if err != nil {
		return nil, classify("stat", path, err)
	}

	b.logger.Debug("read file", zap.String("path", path), zap.Int("size", len(data)))

	return &File{
		Path:    path,
		Content: string(data),
		Metadata: Metadata{
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			MIMEType: mimetype.Detect(data).String(),
		},
	}, nil
}

func (b *Billy) Stat(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, errors.WithStack(err)
	}

	info, err := b.fs.Stat(path)
	if err != nil {
		return Metadata{}, classify("stat", path, err)
	}
	if info.IsDir() {
		return Metadata{}, &IOError{Op: "stat", Path: path, Err: errors.New("is a directory")}
	}

	return Metadata{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Write stores content in a temporary file next to path and renames it
// over path.
func (b *Billy) Write(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	dir := filepath.Dir(path)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return classify("create directory", dir, err)
	}

	tmp, err := util.TempFile(b.fs, dir, "."+filepath.Base(path)+".")
	if err != nil {
		return classify("create temporary file for", path, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if err := b.fs.Remove(tmpName); err != nil {
			b.logger.Info("failed to remove temporary file", zap.String("path", tmpName), zap.Error(err))
		}
	}

	if _, err := tmp.Write([]byte(content)); err != nil {
		_ = tmp.Close()
		cleanup()
		return classify("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return classify("write", path, err)
	}

	if err := ctx.Err(); err != nil {
		cleanup()
		return errors.WithStack(err)
	}

	if err := b.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return classify("replace", path, err)
	}

	b.logger.Debug("wrote file", zap.String("path", path), zap.Int("size", len(content)))

	return nil
}

func classify(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errors.Wrapf(ErrNotFound, "failed to %s %s", op, path)
	case errors.Is(err, fs.ErrPermission):
		return errors.Wrapf(ErrPermissionDenied, "failed to %s %s", op, path)
	default:
		return &IOError{Op: op, Path: path, Err: err}
	}
}
