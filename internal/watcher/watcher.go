// Package watcher notifies about changes to documents below watched
// directories.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type EventType string

const (
	Created  EventType = "created"
	Modified EventType = "modified"
	Removed  EventType = "removed"
	Renamed  EventType = "renamed"
)

type Event struct {
	// Path is the absolute path of the changed file.
	Path string
	// Rel is Path relative to the watched root it was found under.
	Rel  string
	Type EventType
}

// Channel is a change notification channel.
type Channel interface {
	Watch(root string) error
	Unwatch(root string) error
	Events() <-chan Event
}

var DefaultPatterns = []string{"*.md", "*.markdown"}

type Watcher struct {
	watcher  *fsnotify.Watcher
	patterns []glob.Glob
	filter   *Filter
	logger   *zap.Logger

	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu    sync.Mutex
	roots map[string]struct{}
	dirs  map[string]struct{}
}

var _ Channel = (*Watcher)(nil)

type Option func(*Watcher) error

// WithPatterns restricts events to files whose relative path or base name
// matches one of the glob patterns.
func WithPatterns(patterns ...string) Option {
	return func(w *Watcher) error {
		w.patterns = w.patterns[:0]
		for _, p := range patterns {
			g, err := glob.Compile(filepath.ToSlash(p), '/')
			if err != nil {
				return errors.Wrapf(err, "invalid watch pattern %q", p)
			}
			w.patterns = append(w.patterns, g)
		}
		return nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) error {
		w.logger = logger
		return nil
	}
}

func New(opts ...Option) (*Watcher, error) {
	w := &Watcher{
		events: make(chan Event, 64),
		errs:   make(chan error, 8),
		done:   make(chan struct{}),
		roots:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
		logger: zap.NewNop(),
	}

	if err := WithPatterns(DefaultPatterns...)(w); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Watch starts watching root and all directories below it.
func (w *Watcher) Watch(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return errors.WithStack(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.roots[root]; ok {
		return nil
	}
	if err := w.addRecursiveUnsafe(root); err != nil {
		return err
	}
	w.roots[root] = struct{}{}

	w.logger.Debug("watching", zap.String("root", root))

	return nil
}

// Unwatch stops watching root and every directory below it.
func (w *Watcher) Unwatch(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return errors.WithStack(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.roots, root)

	var result error
	for dir := range w.dirs {
		if !isWithin(root, dir) || w.coveredUnsafe(dir) {
			continue
		}
		if err := w.watcher.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			result = multierr.Append(result, errors.Wrapf(err, "failed to unwatch %s", dir))
		}
		delete(w.dirs, dir)
	}

	w.logger.Debug("unwatched", zap.String("root", root))

	return result
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return errors.WithStack(err)
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.mu.Lock()
					err := w.addRecursiveUnsafe(event.Name)
					w.mu.Unlock()
					if err != nil {
						w.sendError(err)
					}
					continue
				}
			}

			e, ok := w.translate(event)
			if !ok {
				continue
			}

			select {
			case w.events <- e:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errs <- err:
	default:
		w.logger.Info("dropped watcher error", zap.Error(err))
	}
}

func (w *Watcher) translate(event fsnotify.Event) (Event, bool) {
	var typ EventType
	switch {
	case event.Has(fsnotify.Create):
		typ = Created
	case event.Has(fsnotify.Write):
		typ = Modified
	case event.Has(fsnotify.Remove):
		typ = Removed
	case event.Has(fsnotify.Rename):
		typ = Renamed
	default:
		return Event{}, false
	}

	rel, ok := w.relativePath(event.Name)
	if !ok || !w.Matches(rel) {
		return Event{}, false
	}

	e := Event{Path: event.Name, Rel: rel, Type: typ}

	if w.filter != nil {
		keep, err := w.filter.Evaluate(e)
		if err != nil {
			w.sendError(err)
			return Event{}, false
		}
		if !keep {
			return Event{}, false
		}
	}

	return e, true
}

// Matches reports whether a path relative to a watched root passes the
// pattern filter.
func (w *Watcher) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, g := range w.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) relativePath(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for root := range w.roots {
		if !isWithin(root, path) {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return rel, true
	}
	return "", false
}

func (w *Watcher) addRecursiveUnsafe(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return filepath.SkipDir
			}
			return errors.WithStack(err)
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := w.dirs[path]; ok {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		w.dirs[path] = struct{}{}
		return nil
	})
}

// coveredUnsafe reports whether dir is still below another watched root.
func (w *Watcher) coveredUnsafe(dir string) bool {
	for root := range w.roots {
		if isWithin(root, dir) {
			return true
		}
	}
	return false
}

func isWithin(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
