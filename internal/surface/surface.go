// Package surface defines the rendering surface the document view drives
// and provides an HTML implementation of it.
package surface

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/pkg/document"
	"github.com/stateful/dualdoc/pkg/document/converter"
)

// Surface is a rich-text rendering surface. It accepts a DocumentTree and
// reports its content as serialized HTML whenever it changes, including
// changes caused by SetContent itself.
type Surface interface {
	SetContent(tree *document.Node) error
	Serialize() string
	OnChange(fn func(serialized string))
}

// ErrRejected is returned by SetContent for trees that break structural
// invariants.
var ErrRejected = errors.New("surface rejected content")

type HTML struct {
	mu         sync.Mutex
	tree       *document.Node
	serialized string
	listeners  []func(string)
	logger     *zap.Logger
}

var _ Surface = (*HTML)(nil)

type Option func(*HTML)

func WithLogger(logger *zap.Logger) Option {
	return func(s *HTML) {
		s.logger = logger
	}
}

func NewHTML(opts ...Option) *HTML {
	s := &HTML{tree: document.NewDoc()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// SetContent replaces the surface content and notifies listeners
// synchronously before returning.
func (s *HTML) SetContent(tree *document.Node) error {
	if err := document.Validate(tree); err != nil {
		s.logger.Info("rejected tree", zap.Error(err))
		return errors.Wrap(ErrRejected, err.Error())
	}

	serialized, err := converter.RenderHTML(tree)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tree = tree.Clone()
	s.serialized = serialized
	s.mu.Unlock()

	s.logger.Debug("content set", zap.Int("length", len(serialized)))
	s.emit(serialized)

	return nil
}

func (s *HTML) Serialize() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serialized
}

// Tree returns a copy of the last tree passed to SetContent.
func (s *HTML) Tree() *document.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Clone()
}

func (s *HTML) OnChange(fn func(serialized string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Edit replaces the serialized content as a user typing into the surface
// would, and notifies listeners.
func (s *HTML) Edit(serialized string) {
	s.mu.Lock()
	s.serialized = serialized
	s.mu.Unlock()

	s.emit(serialized)
}

func (s *HTML) emit(serialized string) {
	s.mu.Lock()
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(serialized)
	}
}
