package document

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type NodeType string

const (
	DocType            NodeType = "doc"
	HeadingType        NodeType = "heading"
	ParagraphType      NodeType = "paragraph"
	BulletListType     NodeType = "bulletList"
	OrderedListType    NodeType = "orderedList"
	ListItemType       NodeType = "listItem"
	BlockquoteType     NodeType = "blockquote"
	CodeBlockType      NodeType = "codeBlock"
	TableType          NodeType = "table"
	TableRowType       NodeType = "tableRow"
	TableHeaderType    NodeType = "tableHeader"
	TableCellType      NodeType = "tableCell"
	ImageType          NodeType = "image"
	HorizontalRuleType NodeType = "horizontalRule"
	HardBreakType      NodeType = "hardBreak"
	TextType           NodeType = "text"
)

// IsCell reports whether t is one of the two table cell types.
func (t NodeType) IsCell() bool {
	return t == TableHeaderType || t == TableCellType
}

// IsInline reports whether nodes of type t live inside a textblock.
func (t NodeType) IsInline() bool {
	switch t {
	case TextType, ImageType, HardBreakType:
		return true
	default:
		return false
	}
}

// Attrs is a union of attributes used by all node types. Only the fields
// meaningful for a given type are set; the rest stay zero and are omitted
// from the JSON form.
type Attrs struct {
	Level    int    `json:"level,omitempty"`
	Start    int    `json:"start,omitempty"`
	Language string `json:"language,omitempty"`
	Colspan  int    `json:"colspan,omitempty"`
	Rowspan  int    `json:"rowspan,omitempty"`
	Src      string `json:"src,omitempty"`
	Alt      string `json:"alt,omitempty"`
	Title    string `json:"title,omitempty"`
}

func (a *Attrs) isZero() bool {
	return a == nil || *a == Attrs{}
}

// Node is a single node of a DocumentTree. The root is always a node of
// DocType. Content is nil for nodes without children so that the JSON
// form omits the "content" field entirely.
type Node struct {
	Type    NodeType `json:"type"`
	Attrs   *Attrs   `json:"attrs,omitempty"`
	Content []*Node  `json:"content,omitempty"`
	Marks   Marks    `json:"marks,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func NewDoc(content ...*Node) *Node {
	return newNode(DocType, nil, content)
}

func NewHeading(level int, content ...*Node) *Node {
	return newNode(HeadingType, &Attrs{Level: level}, content)
}

func NewParagraph(content ...*Node) *Node {
	return newNode(ParagraphType, nil, content)
}

func NewBulletList(items ...*Node) *Node {
	return newNode(BulletListType, nil, items)
}

func NewOrderedList(start int, items ...*Node) *Node {
	var attrs *Attrs
	if start != 1 {
		attrs = &Attrs{Start: start}
	}
	return newNode(OrderedListType, attrs, items)
}

func NewListItem(content ...*Node) *Node {
	return newNode(ListItemType, nil, content)
}

func NewBlockquote(content ...*Node) *Node {
	return newNode(BlockquoteType, nil, content)
}

func NewCodeBlock(language, code string) *Node {
	var attrs *Attrs
	if language != "" {
		attrs = &Attrs{Language: language}
	}
	var content []*Node
	if code != "" {
		content = []*Node{{Type: TextType, Text: code}}
	}
	return newNode(CodeBlockType, attrs, content)
}

func NewTable(rows ...*Node) *Node {
	return newNode(TableType, nil, rows)
}

func NewTableRow(cells ...*Node) *Node {
	return newNode(TableRowType, nil, cells)
}

// NewTableCell wraps the inline content into the single paragraph every
// table cell must contain.
func NewTableCell(header bool, inline ...*Node) *Node {
	typ := TableCellType
	if header {
		typ = TableHeaderType
	}
	return newNode(typ, nil, []*Node{NewParagraph(inline...)})
}

func NewImage(src, alt, title string) *Node {
	return &Node{Type: ImageType, Attrs: &Attrs{Src: src, Alt: alt, Title: title}}
}

func NewHorizontalRule() *Node {
	return &Node{Type: HorizontalRuleType}
}

func NewHardBreak() *Node {
	return &Node{Type: HardBreakType}
}

// NewText returns a text node or nil if text is empty. Text nodes never
// carry empty content.
func NewText(text string, marks ...Mark) *Node {
	if text == "" {
		return nil
	}
	return &Node{Type: TextType, Text: text, Marks: Marks(nil).With(marks...)}
}

func newNode(typ NodeType, attrs *Attrs, content []*Node) *Node {
	n := &Node{Type: typ}
	if !attrs.isZero() {
		n.Attrs = attrs
	}
	for _, c := range content {
		if c != nil {
			n.Content = append(n.Content, c)
		}
	}
	return n
}

// Append adds non-nil children to n.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Content = append(n.Content, c)
		}
	}
	return n
}

// Attr returns the node attributes or a zero value when unset.
func (n *Node) Attr() Attrs {
	if n == nil || n.Attrs == nil {
		return Attrs{}
	}
	return *n.Attrs
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := &Node{
		Type:  n.Type,
		Text:  n.Text,
		Marks: n.Marks.clone(),
	}
	if n.Attrs != nil {
		attrs := *n.Attrs
		clone.Attrs = &attrs
	}
	if n.Content != nil {
		clone.Content = make([]*Node, 0, len(n.Content))
		for _, c := range n.Content {
			clone.Content = append(clone.Content, c.Clone())
		}
	}
	return clone
}

// TextContent concatenates the text of all text leaves under n in
// document order.
func (n *Node) TextContent() string {
	var b strings.Builder
	Walk(n, func(node *Node) bool {
		if node.Type == TextType {
			_, _ = b.WriteString(node.Text)
		}
		return true
	})
	return b.String()
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the visited node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Content {
		Walk(c, fn)
	}
}

func Encode(w io.Writer, n *Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(n))
}

func Decode(r io.Reader) (*Node, error) {
	var n Node
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, errors.Wrap(err, "failed to decode document tree")
	}
	if n.Type != DocType {
		return nil, errors.Errorf("unexpected root node type %q", n.Type)
	}
	return &n, nil
}
