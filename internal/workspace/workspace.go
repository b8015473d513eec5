// Package workspace wires the view, persistence and switch coordinators
// around one active document.
package workspace

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/persistence"
	"github.com/stateful/dualdoc/internal/surface"
	"github.com/stateful/dualdoc/internal/switcher"
	"github.com/stateful/dualdoc/internal/view"
	"github.com/stateful/dualdoc/internal/watcher"
)

var ErrSwitchInProgress = errors.New("another document is being opened")

type Workspace struct {
	persistence *persistence.Coordinator
	switcher    *switcher.Coordinator
	surface     *surface.HTML
	view        *view.Coordinator
	watcher     *watcher.Watcher
	onReload    func(content string)
	logger      *zap.Logger
}

type Option func(*options)

type options struct {
	logger      *zap.Logger
	watcher     *watcher.Watcher
	viewOptions []view.Option
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWatcher hands the watcher the switch coordinator reports to over to
// the workspace. Close closes it.
func WithWatcher(w *watcher.Watcher) Option {
	return func(o *options) {
		o.watcher = w
	}
}

func WithViewOptions(opts ...view.Option) Option {
	return func(o *options) {
		o.viewOptions = append(o.viewOptions, opts...)
	}
}

func New(
	p *persistence.Coordinator,
	sw *switcher.Coordinator,
	s *surface.HTML,
	opts ...Option,
) *Workspace {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	w := &Workspace{
		persistence: p,
		switcher:    sw,
		surface:     s,
		watcher:     o.watcher,
		logger:      o.logger,
	}

	viewOptions := append([]view.Option{view.WithLogger(o.logger)}, o.viewOptions...)
	viewOptions = append(viewOptions, view.WithListener(w.onChange))
	w.view = view.New(s, viewOptions...)

	return w
}

func (w *Workspace) View() *view.Coordinator {
	return w.view
}

func (w *Workspace) Surface() *surface.HTML {
	return w.surface
}

// OnReload registers fn to be called with the new content after the active
// document was reloaded from disk. It must be called before Run or Follow.
func (w *Workspace) OnReload(fn func(content string)) {
	w.onReload = fn
}

// State returns the persistence state of the active document.
func (w *Workspace) State() (persistence.State, bool) {
	return w.persistence.State()
}

// Open makes path the active document, saving the previous one first.
func (w *Workspace) Open(ctx context.Context, path string) error {
	outcome := w.switcher.Switch(ctx, path)
	if outcome.Dropped {
		return ErrSwitchInProgress
	}
	if outcome.Err != nil {
		return outcome.Err
	}

	state, ok := w.persistence.State()
	if !ok {
		return persistence.ErrNoFileOpen
	}
	return w.view.LoadExternalContent(state.Content)
}

func (w *Workspace) EnterRendered() error {
	return w.view.EnterRendered()
}

func (w *Workspace) LeaveRendered() string {
	return w.view.LeaveRendered()
}

func (w *Workspace) EditSource(text string) error {
	return w.view.UserEditInSource(text)
}

// EditRendered applies serialized surface output as a user edit and returns
// the resulting markup.
func (w *Workspace) EditRendered(serialized string) (string, error) {
	if mode := w.view.Session().Mode; mode != view.Rendered {
		return "", errors.Wrapf(view.ErrWrongMode, "rendered edit in %s view", mode)
	}
	w.surface.Edit(serialized)
	return w.view.Content(), nil
}

func (w *Workspace) Save(ctx context.Context) persistence.Result {
	return w.persistence.SaveSync(ctx)
}

// Close discards the active document without saving it and stops watching
// its directory.
func (w *Workspace) Close() error {
	w.persistence.Close()

	err := w.switcher.ReleaseDirectoryContext()
	if w.watcher != nil {
		err = multierr.Append(err, w.watcher.Close())
	}
	return err
}

// Follow handles the events of the watcher passed with WithWatcher until
// ctx is done.
func (w *Workspace) Follow(ctx context.Context) error {
	if w.watcher == nil {
		return errors.New("workspace has no watcher")
	}
	return w.Run(ctx, w.watcher.Events())
}

// HandleEvent reloads the active document when it changed on disk. Local
// unsaved edits take precedence over the change.
func (w *Workspace) HandleEvent(ctx context.Context, event watcher.Event) error {
	if event.Type != watcher.Modified && event.Type != watcher.Created {
		return nil
	}

	state, ok := w.persistence.State()
	if !ok || state.FilePath != event.Path {
		return nil
	}
	if state.IsDirty || state.Saving {
		w.logger.Info("kept unsaved edits over external change", zap.String("path", event.Path))
		return nil
	}

	if err := w.persistence.Load(ctx, event.Path); err != nil {
		return err
	}
	reloaded, _ := w.persistence.State()
	if reloaded.Content == state.Content {
		return nil
	}

	w.logger.Debug("reloaded externally changed document", zap.String("path", event.Path))
	if err := w.view.ContentChanged(reloaded.Content); err != nil {
		return err
	}
	if w.onReload != nil {
		w.onReload(reloaded.Content)
	}
	return nil
}

// Run handles events until ctx is done or events is closed.
func (w *Workspace) Run(ctx context.Context, events <-chan watcher.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := w.HandleEvent(ctx, event); err != nil {
				w.logger.Info("failed to handle change event", zap.String("path", event.Path), zap.Error(err))
			}
		}
	}
}

func (w *Workspace) onChange(change view.Change) {
	if change.Origin != view.OriginUser {
		return
	}
	if err := w.persistence.UpdateContent(change.Text); err != nil {
		w.logger.Info("failed to update content", zap.Error(err))
	}
}
