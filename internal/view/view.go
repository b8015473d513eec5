// Package view keeps the markup text of an open document and its rendered
// projection in sync.
//
// The markup text is the single canonical owner of the document. The
// rendered surface shows a tree derived from it; text derived back from the
// surface replaces the canonical text only after a user edit in the
// rendered view.
package view

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/lru"
	"github.com/stateful/dualdoc/internal/surface"
	"github.com/stateful/dualdoc/internal/ulid"
	"github.com/stateful/dualdoc/pkg/document"
	"github.com/stateful/dualdoc/pkg/document/converter"
	"github.com/stateful/dualdoc/pkg/document/frontmatter"
)

type Mode int

const (
	Source Mode = iota
	Rendered
)

func (m Mode) String() string {
	switch m {
	case Source:
		return "source"
	case Rendered:
		return "rendered"
	default:
		return "unknown"
	}
}

type Origin string

const (
	// OriginUser marks text typed by the user in either view.
	OriginUser Origin = "user"
	// OriginNormalization marks text the coordinator produced by
	// converting the rendered tree back to markup.
	OriginNormalization Origin = "normalization"
	// OriginExternal marks text loaded from outside, e.g. from disk.
	OriginExternal Origin = "external"
)

type Change struct {
	Text   string
	Origin Origin
}

type ChangeListener func(Change)

// ErrWrongMode is returned for edits that do not belong to the active view.
var ErrWrongMode = errors.New("edit does not match the active view")

// Session is the editing state of one open document.
type Session struct {
	ID               string
	Mode             Mode
	Raw              string
	Normalized       string
	HasRenderedEdits bool
	Frontmatter      *frontmatter.Frontmatter
}

const DefaultParseCacheSize = 16

type Coordinator struct {
	mu       sync.Mutex
	session  Session
	surface  surface.Surface
	conv     *converter.Converter
	cache    *lru.Cache[[sha256.Size]byte, *document.Node]
	listener ChangeListener
	logger   *zap.Logger

	cacheSize int

	// pendingSelfTriggeredChange is read without holding mu, because the
	// surface reports changes synchronously from inside SetContent.
	pendingSelfTriggeredChange atomic.Bool
}

type Option func(*Coordinator)

func WithConverter(conv *converter.Converter) Option {
	return func(c *Coordinator) {
		c.conv = conv
	}
}

func WithListener(fn ChangeListener) Option {
	return func(c *Coordinator) {
		c.listener = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithParseCacheSize(size int) Option {
	return func(c *Coordinator) {
		c.cacheSize = size
	}
}

// New creates a coordinator in the Source view with empty content and
// subscribes it to s.
func New(s surface.Surface, opts ...Option) *Coordinator {
	c := &Coordinator{
		surface:   s,
		cacheSize: DefaultParseCacheSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.conv == nil {
		c.conv = converter.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.cache = lru.NewCache[[sha256.Size]byte, *document.Node](c.cacheSize)
	c.session = Session{ID: ulid.GenerateID(), Mode: Source}

	s.OnChange(c.surfaceChanged)

	return c
}

// Session returns a snapshot of the current session.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Content returns the text that currently represents the document.
func (c *Coordinator) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentUnsafe()
}

func (c *Coordinator) contentUnsafe() string {
	if c.session.Mode == Rendered && c.session.HasRenderedEdits {
		return c.session.Normalized
	}
	return c.session.Raw
}

// EnterRendered pushes the parsed raw content into the surface. It does not
// count as a user edit.
func (c *Coordinator) EnterRendered() error {
	c.mu.Lock()

	if c.session.Mode == Rendered {
		c.mu.Unlock()
		return nil
	}

	normalized, err := c.syncSurfaceUnsafe()
	if err != nil {
		c.mu.Unlock()
		return errors.Wrap(err, "failed to enter rendered view")
	}

	c.session.Mode = Rendered
	c.session.HasRenderedEdits = false

	c.logger.Debug("entered rendered view", zap.String("session", c.session.ID))
	c.mu.Unlock()

	c.onNormalizationProduced(normalized)

	return nil
}

// LeaveRendered switches back to the Source view and returns the source
// text. Without a rendered edit the raw content is restored exactly.
func (c *Coordinator) LeaveRendered() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Mode != Rendered {
		return c.session.Raw
	}

	if c.session.HasRenderedEdits {
		c.session.Raw = c.session.Normalized
	}
	c.session.Mode = Source
	c.session.HasRenderedEdits = false

	c.logger.Debug("left rendered view", zap.String("session", c.session.ID))

	return c.session.Raw
}

// LoadExternalContent replaces the document with text and starts a new
// session. In the Rendered view the surface is re-synchronized.
func (c *Coordinator) LoadExternalContent(text string) error {
	c.mu.Lock()

	mode := c.session.Mode
	c.session = Session{
		ID:   ulid.GenerateID(),
		Mode: mode,
		Raw:  text,
	}

	var (
		normalized string
		err        error
	)
	if mode == Rendered {
		normalized, err = c.syncSurfaceUnsafe()
	}

	c.logger.Debug("loaded external content", zap.String("session", c.session.ID), zap.Int("length", len(text)))
	c.mu.Unlock()

	c.emit(Change{Text: text, Origin: OriginExternal})

	if err != nil {
		return errors.Wrap(err, "failed to refresh rendered view")
	}
	if mode == Rendered {
		c.onNormalizationProduced(normalized)
	}

	return nil
}

// UserEditInRendered converts the surface output of a user edit back to
// markup and returns it with the preserved frontmatter reattached.
func (c *Coordinator) UserEditInRendered(serialized string) (string, error) {
	c.mu.Lock()

	if c.session.Mode != Rendered {
		c.mu.Unlock()
		return "", errors.Wrapf(ErrWrongMode, "rendered edit in %s view", c.session.Mode)
	}

	markup, warnings := c.conv.TreeToMarkup(serialized)
	c.logWarnings(warnings)

	normalized := c.session.Frontmatter.Join(markup)
	c.session.Normalized = normalized
	c.session.HasRenderedEdits = true
	c.mu.Unlock()

	c.emit(Change{Text: normalized, Origin: OriginUser})

	return normalized, nil
}

// UserEditInSource replaces the raw content as typed by the user.
func (c *Coordinator) UserEditInSource(text string) error {
	c.mu.Lock()

	if c.session.Mode != Source {
		c.mu.Unlock()
		return errors.Wrapf(ErrWrongMode, "source edit in %s view", c.session.Mode)
	}

	c.session.Raw = text
	c.mu.Unlock()

	c.emit(Change{Text: text, Origin: OriginUser})

	return nil
}

// ContentChanged handles a content change notification. Notifications that
// the coordinator triggered itself are ignored; all others are handled as
// an external load.
func (c *Coordinator) ContentChanged(text string) error {
	if c.pendingSelfTriggeredChange.Load() {
		c.logger.Debug("ignored self-triggered content change")
		return nil
	}
	return c.LoadExternalContent(text)
}

func (c *Coordinator) surfaceChanged(serialized string) {
	if c.pendingSelfTriggeredChange.Load() {
		return
	}
	if _, err := c.UserEditInRendered(serialized); err != nil {
		c.logger.Info("ignored surface change", zap.Error(err))
	}
}

func (c *Coordinator) onNormalizationProduced(markup string) {
	c.selfTriggered(func() {
		c.emit(Change{Text: markup, Origin: OriginNormalization})
	})
}

// syncSurfaceUnsafe replaces the surface content with the parsed raw content
// and returns the normalized text read back from the surface.
func (c *Coordinator) syncSurfaceUnsafe() (string, error) {
	fm, body := frontmatter.Split(c.session.Raw)
	tree := c.parse(body)

	var (
		serialized string
		err        error
	)
	c.selfTriggered(func() {
		if err = c.surface.SetContent(tree); err != nil {
			return
		}
		serialized = c.surface.Serialize()
	})
	if err != nil {
		return "", err
	}

	markup, warnings := c.conv.TreeToMarkup(serialized)
	c.logWarnings(warnings)

	c.session.Frontmatter = fm
	c.session.Normalized = fm.Join(markup)

	return c.session.Normalized, nil
}

func (c *Coordinator) selfTriggered(fn func()) {
	c.pendingSelfTriggeredChange.Store(true)
	defer c.pendingSelfTriggeredChange.Store(false)
	fn()
}

func (c *Coordinator) parse(body string) *document.Node {
	key := sha256.Sum256([]byte(body))
	if tree, ok := c.cache.Get(key); ok {
		return tree.Clone()
	}
	tree := c.conv.ParseToTree(body)
	c.cache.Add(key, tree.Clone())
	return tree
}

func (c *Coordinator) emit(change Change) {
	if c.listener != nil {
		c.listener(change)
	}
}

func (c *Coordinator) logWarnings(warnings []converter.Warning) {
	for _, w := range warnings {
		c.logger.Info("conversion warning", zap.Stringer("warning", w))
	}
}
