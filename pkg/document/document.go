// Package document defines the DocumentTree: the typed, ordered node tree
// a rich-text rendering surface consumes. Formatting is stored as a flat
// set of marks on text leaves, never as nested wrapper nodes.
package document

import (
	"fmt"

	"go.uber.org/multierr"
)

// InvariantError describes a single structural problem found by Validate.
type InvariantError struct {
	Path   string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Validate checks the structural invariants of a tree and returns all
// violations combined into one error, or nil.
//
// Checked invariants:
//   - the root is a doc node
//   - text nodes are never empty and have no children
//   - inline nodes have no children
//   - table rows hold only cells and every cell holds exactly one paragraph
//   - headings have a level between 1 and 6
//   - marks are only attached to text nodes and a link mark has an href
func Validate(root *Node) error {
	if root == nil {
		return &InvariantError{Path: "$", Reason: "nil tree"}
	}
	var err error
	if root.Type != DocType {
		err = multierr.Append(err, &InvariantError{Path: "$", Reason: fmt.Sprintf("root is %q, not doc", root.Type)})
	}
	return multierr.Append(err, validateNode(root, "$"))
}

func validateNode(n *Node, path string) error {
	var err error

	fail := func(format string, args ...any) {
		err = multierr.Append(err, &InvariantError{Path: path, Reason: fmt.Sprintf(format, args...)})
	}

	switch n.Type {
	case TextType:
		if n.Text == "" {
			fail("empty text node")
		}
		if link, ok := n.Marks.Get(LinkMark); ok && (link.Attrs == nil || link.Attrs.Href == "") {
			fail("link mark without href")
		}
	case HeadingType:
		if level := n.Attr().Level; level < 1 || level > 6 {
			fail("heading level %d out of range", level)
		}
	case TableRowType:
		for i, c := range n.Content {
			if c != nil && !c.Type.IsCell() {
				fail("%s at %d in table row", c.Type, i)
			}
		}
	case ImageType:
		if n.Attr().Src == "" {
			fail("image without src")
		}
	}

	if n.Type.IsCell() && (len(n.Content) != 1 || n.Content[0] == nil || n.Content[0].Type != ParagraphType) {
		fail("table cell must contain exactly one paragraph")
	}
	if n.Type.IsInline() && len(n.Content) > 0 {
		fail("%s node with children", n.Type)
	}

	if n.Type != TextType && len(n.Marks) > 0 {
		fail("marks on %s node", n.Type)
	}

	for i, c := range n.Content {
		if c == nil {
			fail("nil child at %d", i)
			continue
		}
		err = multierr.Append(err, validateNode(c, fmt.Sprintf("%s.content[%d]", path, i)))
	}

	return err
}
