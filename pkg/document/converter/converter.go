// Package converter turns markdown into a DocumentTree and turns the
// rendering surface's serialized HTML back into markdown.
//
// The forward path walks goldmark's token tree directly and never goes
// through HTML, so no structural wrappers are auto-inserted. The reverse
// path is rule based: each HTML element maps to a tree node or a mark, and
// the resulting tree is serialized to markdown. Reconverting an already
// normalized document yields the same result.
package converter

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/pkg/document"
	"github.com/stateful/dualdoc/pkg/document/sanitize"
)

type WarningKind string

const (
	// MergedCellWarning is emitted for table cells spanning several rows or
	// columns. Pipe tables cannot represent them.
	MergedCellWarning WarningKind = "merged_cell"
	// MalformedInputWarning is emitted when the serialized output could not
	// be read at all.
	MalformedInputWarning WarningKind = "malformed_input"
)

type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// ParseError describes a failure inside the markdown walk. It is never
// returned to callers; the converter recovers and keeps the partial tree.
type ParseError struct {
	Cause any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse markdown: %v", e.Cause)
}

// Report collects what happened during ParseToTree.
type Report struct {
	// UnsafeURLs lists link and image addresses that were rejected and
	// degraded to text.
	UnsafeURLs []string
	// Err is set when the walk failed and the tree is partial.
	Err error
}

type Converter struct {
	parser         parser.Parser
	linkProtocols  []string
	imageProtocols []string
	logger         *zap.Logger
}

type Option func(*Converter)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// WithExtraLinkProtocols allows additional protocols for links and images.
func WithExtraLinkProtocols(protocols ...string) Option {
	return func(c *Converter) {
		for _, p := range protocols {
			p = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(p)), ":")
			if p == "" {
				continue
			}
			c.linkProtocols = append(c.linkProtocols, p)
			c.imageProtocols = append(c.imageProtocols, p)
		}
	}
}

func New(opts ...Option) *Converter {
	c := &Converter{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		).Parser(),
		linkProtocols:  append([]string(nil), sanitize.LinkProtocols...),
		imageProtocols: append([]string(nil), sanitize.ImageProtocols...),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	return c
}

var defaultConverter = New()

// ParseToTree converts markup into a DocumentTree using the default converter.
func ParseToTree(markup string) *document.Node {
	return defaultConverter.ParseToTree(markup)
}

// TreeToMarkup converts serialized surface output into markup using the
// default converter.
func TreeToMarkup(serialized string) (string, []Warning) {
	return defaultConverter.TreeToMarkup(serialized)
}

// ParseToTree converts markup into a DocumentTree. It never fails; see Parse
// for details about degraded content.
func (c *Converter) ParseToTree(markup string) *document.Node {
	tree, _ := c.Parse(markup)
	return tree
}

// TreeToMarkup converts the rendering surface's serialized HTML into
// markdown.
func (c *Converter) TreeToMarkup(serialized string) (string, []Warning) {
	tree, err := c.ParseHTML(serialized)
	if err != nil {
		c.logger.Warn("failed to read serialized surface output", zap.Error(err))
		return "", []Warning{{Kind: MalformedInputWarning, Message: err.Error()}}
	}
	return c.Serialize(tree)
}

// Serialize converts a DocumentTree into markdown.
func (c *Converter) Serialize(tree *document.Node) (string, []Warning) {
	s := &serializer{}
	out := s.blocks(tree.Content)
	if out != "" {
		out += "\n"
	}
	for _, w := range s.warnings {
		c.logger.Debug("serialization warning", zap.Stringer("warning", w))
	}
	return out, s.warnings
}

// Convert runs markup through the full round trip: markdown to tree, tree
// to surface HTML, and surface HTML back to markdown.
func (c *Converter) Convert(markup string) (string, []Warning, error) {
	serialized, err := RenderHTML(c.ParseToTree(markup))
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to render tree")
	}
	result, warnings := c.TreeToMarkup(serialized)
	return result, warnings, nil
}

func (c *Converter) sanitizeLink(raw string) string {
	return sanitize.Sanitize(raw, c.linkProtocols)
}

func (c *Converter) sanitizeImage(raw string) string {
	return sanitize.Sanitize(raw, c.imageProtocols)
}

// appendText adds text with marks to out, merging it into the previous run
// when the mark sets are equal. Empty text is dropped.
func appendText(out *[]*document.Node, text string, marks document.Marks) {
	if text == "" {
		return
	}
	if n := len(*out); n > 0 {
		last := (*out)[n-1]
		if last.Type == document.TextType && last.Marks.Equal(marks) {
			last.Text += text
			return
		}
	}
	*out = append(*out, document.NewText(text, marks...))
}

// trimInline removes whitespace at the edges of a textblock and hard
// breaks at its end. Code runs are left untouched.
func trimInline(nodes []*document.Node) []*document.Node {
	for len(nodes) > 0 {
		last := nodes[len(nodes)-1]
		if last.Type == document.HardBreakType {
			nodes = nodes[:len(nodes)-1]
			continue
		}
		if last.Type == document.TextType && !last.Marks.Has(document.CodeMark) {
			last.Text = strings.TrimRight(last.Text, " \t\n")
			if last.Text == "" {
				nodes = nodes[:len(nodes)-1]
				continue
			}
		}
		break
	}
	for len(nodes) > 0 {
		first := nodes[0]
		if first.Type == document.TextType && !first.Marks.Has(document.CodeMark) {
			first.Text = strings.TrimLeft(first.Text, " \t\n")
			if first.Text == "" {
				nodes = nodes[1:]
				continue
			}
		}
		break
	}
	if len(nodes) == 0 {
		return nil
	}
	return nodes
}
