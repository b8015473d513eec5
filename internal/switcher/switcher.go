// Package switcher changes the active document without losing unsaved edits
// of the previous one.
package switcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/persistence"
	"github.com/stateful/dualdoc/internal/storage"
)

const (
	DefaultSavingNoticeBytes = 10 * 1024
	DefaultLargeFileBytes    = 5 * 1024 * 1024
)

// Persister is the part of the persistence coordinator a switch needs.
type Persister interface {
	Load(ctx context.Context, path string) error
	SaveSync(ctx context.Context) persistence.Result
	State() (persistence.State, bool)
}

type Stater interface {
	Stat(ctx context.Context, path string) (storage.Metadata, error)
}

// Watcher subscribes to changes below a root directory.
type Watcher interface {
	Watch(root string) error
	Unwatch(root string) error
}

type SignalKind string

const (
	// SavingLarge is sent before a blocking save of a large document.
	SavingLarge SignalKind = "saving_large"
	// LargeFile is sent before a large document is loaded.
	LargeFile SignalKind = "large_file"
	// RootChanged is sent after the watched root moved.
	RootChanged SignalKind = "root_changed"
)

type Signal struct {
	Kind SignalKind
	Path string
	Size int64
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s (%d bytes)", s.Kind, s.Path, s.Size)
}

type SignalFunc func(Signal)

// SwitchBlockedError is returned when the previous document could not be
// saved. The target was not loaded.
type SwitchBlockedError struct {
	Path   string
	Target string
	Err    error
}

func (e *SwitchBlockedError) Error() string {
	return fmt.Sprintf("switch to %s blocked: failed to save %s: %v", e.Target, e.Path, e.Err)
}

func (e *SwitchBlockedError) Unwrap() error {
	return e.Err
}

// Outcome describes a switch request. Active is the active document after
// the request, whatever its outcome.
type Outcome struct {
	Active   string
	Previous string
	Switched bool
	Dropped  bool
	Err      error
}

type Coordinator struct {
	persister Persister
	stater    Stater
	watcher   Watcher
	signal    SignalFunc
	logger    *zap.Logger

	savingNoticeBytes int64
	largeFileBytes    int64

	switching atomic.Bool

	mu       sync.Mutex
	active   string
	previous string
	root     string
}

type Option func(*Coordinator)

func WithWatcher(w Watcher) Option {
	return func(c *Coordinator) {
		c.watcher = w
	}
}

func WithSignal(fn SignalFunc) Option {
	return func(c *Coordinator) {
		c.signal = fn
	}
}

func WithThresholds(savingNoticeBytes, largeFileBytes int64) Option {
	return func(c *Coordinator) {
		c.savingNoticeBytes = savingNoticeBytes
		c.largeFileBytes = largeFileBytes
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(persister Persister, stater Stater, opts ...Option) *Coordinator {
	c := &Coordinator{
		persister:         persister,
		stater:            stater,
		savingNoticeBytes: DefaultSavingNoticeBytes,
		largeFileBytes:    DefaultLargeFileBytes,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.signal == nil {
		c.signal = func(Signal) {}
	}

	return c
}

func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) Previous() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous
}

func (c *Coordinator) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Switch makes target the active document. A request made while another
// switch is running is dropped.
func (c *Coordinator) Switch(ctx context.Context, target string) Outcome {
	if !c.switching.CompareAndSwap(false, true) {
		c.logger.Info("dropped switch request", zap.String("target", target))
		return Outcome{Active: c.Active(), Dropped: true}
	}
	defer c.switching.Store(false)

	c.mu.Lock()
	current := c.active
	c.active = target
	c.mu.Unlock()

	if err := c.savePrevious(ctx, target); err != nil {
		c.revert(current)
		c.logger.Info("switch blocked", zap.String("target", target), zap.Error(err))
		return Outcome{Active: current, Previous: c.Previous(), Err: err}
	}

	if meta, err := c.stater.Stat(ctx, target); err != nil {
		c.logger.Debug("failed to stat switch target", zap.String("target", target), zap.Error(err))
	} else if meta.Size > c.largeFileBytes {
		c.signal(Signal{Kind: LargeFile, Path: target, Size: meta.Size})
	}

	if err := c.persister.Load(ctx, target); err != nil {
		c.revert(current)
		return Outcome{Active: current, Previous: c.Previous(), Err: errors.Wrap(err, "failed to switch")}
	}

	c.mu.Lock()
	if current != "" && current != target {
		c.previous = current
	}
	previous := c.previous
	c.mu.Unlock()

	if c.watcher != nil {
		if _, err := c.EnsureDirectoryContext(target); err != nil {
			c.logger.Info("failed to update watched root", zap.String("path", target), zap.Error(err))
		}
	}

	c.logger.Debug("switched document", zap.String("active", target), zap.String("previous", previous))

	return Outcome{Active: target, Previous: previous, Switched: true}
}

func (c *Coordinator) savePrevious(ctx context.Context, target string) error {
	state, ok := c.persister.State()
	if !ok || !state.IsDirty {
		return nil
	}

	if size := int64(len(state.Content)); size > c.savingNoticeBytes {
		c.signal(Signal{Kind: SavingLarge, Path: state.FilePath, Size: size})
	}

	result := c.persister.SaveSync(ctx)
	if result.Err != nil {
		return &SwitchBlockedError{Path: state.FilePath, Target: target, Err: result.Err}
	}
	return nil
}

func (c *Coordinator) revert(active string) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
}

// EnsureDirectoryContext moves the watched root to the directory of path
// when path lies outside of it. The check compares path prefixes only and
// does not resolve "..".
func (c *Coordinator) EnsureDirectoryContext(path string) (bool, error) {
	c.mu.Lock()
	oldRoot := c.root
	if oldRoot != "" && strings.HasPrefix(path, withSeparator(oldRoot)) {
		c.mu.Unlock()
		return false, nil
	}
	newRoot := filepath.Dir(path)
	c.root = newRoot
	c.mu.Unlock()

	var err error
	if c.watcher != nil {
		if oldRoot != "" {
			err = multierr.Append(err, c.watcher.Unwatch(oldRoot))
		}
		err = multierr.Append(err, c.watcher.Watch(newRoot))
	}

	c.signal(Signal{Kind: RootChanged, Path: newRoot})
	c.logger.Debug("watched root changed", zap.String("old", oldRoot), zap.String("new", newRoot))

	return true, err
}

// ReleaseDirectoryContext stops watching the current root.
func (c *Coordinator) ReleaseDirectoryContext() error {
	c.mu.Lock()
	root := c.root
	c.root = ""
	c.mu.Unlock()

	if root == "" || c.watcher == nil {
		return nil
	}
	return errors.Wrapf(c.watcher.Unwatch(root), "failed to release %s", root)
}

func withSeparator(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}
