// Package persistence owns the content of the active document and decides
// when it is written to storage.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/storage"
	"github.com/stateful/dualdoc/internal/ulid"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultSaveTimeout = 30 * time.Second
)

// State is the persistence state of the active document.
type State struct {
	ID              string
	FilePath        string
	Content         string
	OriginalContent string
	IsDirty         bool
	Saving          bool
	Err             error
	Metadata        storage.Metadata
}

// Result is the outcome of a save. A clean document yields a Result with
// Saved == false and a nil Err.
type Result struct {
	Path     string
	Saved    bool
	Err      error
	Duration time.Duration
}

type Coordinator struct {
	backend storage.Backend
	logger  *zap.Logger

	debounce    time.Duration
	saveTimeout time.Duration
	beforeSave  func(State)
	afterSave   func(Result)

	mu         sync.Mutex
	state      *State
	timer      *time.Timer
	timerSeq   uint64
	generation uint64
	inFlight   int
}

type Option func(*Coordinator)

func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		c.debounce = d
	}
}

func WithSaveTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.saveTimeout = d
	}
}

// WithBeforeSave registers a hook called before each write attempt.
func WithBeforeSave(fn func(State)) Option {
	return func(c *Coordinator) {
		c.beforeSave = fn
	}
}

// WithAfterSave registers a hook called after each write attempt,
// whatever its outcome.
func WithAfterSave(fn func(Result)) Option {
	return func(c *Coordinator) {
		c.afterSave = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(backend storage.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:     backend,
		debounce:    DefaultDebounce,
		saveTimeout: DefaultSaveTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	return c
}

// Load reads path and makes it the active document, discarding the previous
// state and any pending autosave.
func (c *Coordinator) Load(ctx context.Context, path string) error {
	file, err := c.backend.Read(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerUnsafe()
	c.state = &State{
		ID:              ulid.GenerateID(),
		FilePath:        path,
		Content:         file.Content,
		OriginalContent: file.Content,
		Metadata:        file.Metadata,
	}

	c.logger.Debug("loaded document", zap.String("path", path), zap.String("id", c.state.ID))

	return nil
}

// State returns a snapshot of the active state.
func (c *Coordinator) State() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return State{}, false
	}
	return *c.state, true
}

// UpdateContent sets the content of the active document and restarts the
// autosave timer.
func (c *Coordinator) UpdateContent(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil {
		return ErrNoFileOpen
	}

	c.state.Content = text
	c.state.IsDirty = text != c.state.OriginalContent

	c.stopTimerUnsafe()
	c.timerSeq++
	seq, path := c.timerSeq, c.state.FilePath
	c.timer = time.AfterFunc(c.debounce, func() {
		c.autosave(seq, path)
	})

	return nil
}

func (c *Coordinator) autosave(seq uint64, path string) {
	c.mu.Lock()
	if seq != c.timerSeq || c.timer == nil {
		// Superseded or cancelled after it fired.
		c.mu.Unlock()
		return
	}
	if c.state == nil || c.state.FilePath != path {
		c.mu.Unlock()
		c.logger.Debug("skipped autosave for inactive document", zap.String("path", path))
		return
	}
	dirty := c.state.IsDirty
	c.timer = nil
	c.mu.Unlock()

	if !dirty {
		return
	}

	result := c.SaveNow(context.Background())
	if result.Err != nil {
		c.logger.Info("autosave failed", zap.String("path", path), zap.Error(result.Err))
	}
}

// SaveNow writes the active document if it is dirty. The write is raced
// against the save timeout; on failure the document stays dirty.
func (c *Coordinator) SaveNow(ctx context.Context) Result {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return Result{Err: ErrNoFileOpen}
	}
	if !c.state.IsDirty {
		path := c.state.FilePath
		c.mu.Unlock()
		return Result{Path: path}
	}

	c.generation++
	generation := c.generation
	c.inFlight++
	c.state.Saving = true
	snapshot := *c.state
	c.mu.Unlock()

	if c.beforeSave != nil {
		c.beforeSave(snapshot)
	}

	start := time.Now()
	err := c.write(ctx, snapshot.FilePath, snapshot.Content)
	result := Result{
		Path:     snapshot.FilePath,
		Saved:    err == nil,
		Err:      err,
		Duration: time.Since(start),
	}

	c.mu.Lock()
	c.inFlight--
	if c.state != nil && c.state.ID == snapshot.ID {
		c.state.Saving = c.inFlight > 0
		c.state.Err = err
		if err == nil {
			c.state.OriginalContent = snapshot.Content
			c.state.IsDirty = c.state.Content != snapshot.Content
		}
	}
	c.mu.Unlock()

	c.logger.Debug(
		"save finished",
		zap.String("path", result.Path),
		zap.Uint64("generation", generation),
		zap.Bool("saved", result.Saved),
		zap.Duration("duration", result.Duration),
		zap.Error(err),
	)

	if c.afterSave != nil {
		c.afterSave(result)
	}

	return result
}

func (c *Coordinator) write(ctx context.Context, path, content string) error {
	ctx, cancel := context.WithTimeout(ctx, c.saveTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.backend.Write(ctx, path, content)
	}()

	var err error
	select {
	case err = <-done:
		if err == nil {
			return nil
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Path: path, Duration: c.saveTimeout}
	}
	return &WriteFailedError{Path: path, Reason: err}
}

// SaveSync cancels a pending autosave and then saves. A save that is already
// in flight is neither cancelled nor awaited.
func (c *Coordinator) SaveSync(ctx context.Context) Result {
	c.mu.Lock()
	c.stopTimerUnsafe()
	if c.inFlight > 0 {
		c.logger.Info(
			"save started while another is in flight",
			zap.Uint64("generation", c.generation),
			zap.Int("in_flight", c.inFlight),
		)
	}
	c.mu.Unlock()

	return c.SaveNow(ctx)
}

// Close cancels a pending autosave and discards the state without saving.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerUnsafe()
	c.state = nil
}

func (c *Coordinator) stopTimerUnsafe() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
