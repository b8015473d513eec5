package converter

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/stateful/dualdoc/pkg/document"
)

// RenderHTML serializes a DocumentTree the way the rendering surface does.
// Tables are emitted with a tbody and every cell wraps its paragraph.
func RenderHTML(root *document.Node) (string, error) {
	if root == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, n := range root.Content {
		for _, el := range toDOM(n) {
			if err := html.Render(&sb, el); err != nil {
				return "", errors.Wrap(err, "failed to render html")
			}
		}
	}
	return sb.String(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func appendAll(parent *html.Node, children []*html.Node) *html.Node {
	for _, c := range children {
		parent.AppendChild(c)
	}
	return parent
}

var headingAtoms = [...]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

func toDOM(n *document.Node) []*html.Node {
	attrs := n.Attr()

	switch n.Type {
	case document.ParagraphType:
		return []*html.Node{appendAll(element(atom.P), inlineDOM(n.Content))}

	case document.HeadingType:
		level := min(max(attrs.Level, 1), 6)
		return []*html.Node{appendAll(element(headingAtoms[level-1]), inlineDOM(n.Content))}

	case document.BulletListType:
		return []*html.Node{appendAll(element(atom.Ul), blockDOM(n.Content))}

	case document.OrderedListType:
		ol := element(atom.Ol)
		if attrs.Start != 0 && attrs.Start != 1 {
			ol.Attr = append(ol.Attr, html.Attribute{Key: "start", Val: strconv.Itoa(attrs.Start)})
		}
		return []*html.Node{appendAll(ol, blockDOM(n.Content))}

	case document.ListItemType:
		return []*html.Node{appendAll(element(atom.Li), blockDOM(n.Content))}

	case document.BlockquoteType:
		return []*html.Node{appendAll(element(atom.Blockquote), blockDOM(n.Content))}

	case document.CodeBlockType:
		code := element(atom.Code)
		if attrs.Language != "" {
			code.Attr = append(code.Attr, html.Attribute{Key: "class", Val: "language-" + attrs.Language})
		}
		if text := n.TextContent(); text != "" {
			code.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		}
		pre := element(atom.Pre)
		pre.AppendChild(code)
		return []*html.Node{pre}

	case document.HorizontalRuleType:
		return []*html.Node{element(atom.Hr)}

	case document.TableType:
		tbody := appendAll(element(atom.Tbody), blockDOM(n.Content))
		table := element(atom.Table)
		table.AppendChild(tbody)
		return []*html.Node{table}

	case document.TableRowType:
		return []*html.Node{appendAll(element(atom.Tr), blockDOM(n.Content))}

	case document.TableHeaderType, document.TableCellType:
		cell := element(atom.Td)
		if n.Type == document.TableHeaderType {
			cell = element(atom.Th)
		}
		if attrs.Colspan > 1 {
			cell.Attr = append(cell.Attr, html.Attribute{Key: "colspan", Val: strconv.Itoa(attrs.Colspan)})
		}
		if attrs.Rowspan > 1 {
			cell.Attr = append(cell.Attr, html.Attribute{Key: "rowspan", Val: strconv.Itoa(attrs.Rowspan)})
		}
		return []*html.Node{appendAll(cell, blockDOM(n.Content))}

	case document.TextType, document.ImageType, document.HardBreakType:
		return []*html.Node{appendAll(element(atom.P), inlineDOM([]*document.Node{n}))}

	default:
		return blockDOM(n.Content)
	}
}

func blockDOM(nodes []*document.Node) []*html.Node {
	var result []*html.Node
	for _, n := range nodes {
		result = append(result, toDOM(n)...)
	}
	return result
}

// inlineDOM wraps every run in its marks, outermost first in canonical
// order.
func inlineDOM(nodes []*document.Node) []*html.Node {
	result := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		switch n.Type {
		case document.HardBreakType:
			result = append(result, element(atom.Br))
		case document.ImageType:
			attrs := n.Attr()
			img := element(atom.Img,
				html.Attribute{Key: "src", Val: attrs.Src},
				html.Attribute{Key: "alt", Val: attrs.Alt},
			)
			if attrs.Title != "" {
				img.Attr = append(img.Attr, html.Attribute{Key: "title", Val: attrs.Title})
			}
			result = append(result, img)
		case document.TextType:
			node := &html.Node{Type: html.TextNode, Data: n.Text}
			for i := len(n.Marks) - 1; i >= 0; i-- {
				wrapper := markElement(n.Marks[i])
				wrapper.AppendChild(node)
				node = wrapper
			}
			result = append(result, node)
		}
	}
	return result
}

func markElement(m document.Mark) *html.Node {
	switch m.Type {
	case document.BoldMark:
		return element(atom.Strong)
	case document.ItalicMark:
		return element(atom.Em)
	case document.StrikeMark:
		return element(atom.S)
	case document.CodeMark:
		return element(atom.Code)
	case document.LinkMark:
		a := element(atom.A)
		if m.Attrs != nil {
			a.Attr = append(a.Attr, html.Attribute{Key: "href", Val: m.Attrs.Href})
			if m.Attrs.Title != "" {
				a.Attr = append(a.Attr, html.Attribute{Key: "title", Val: m.Attrs.Title})
			}
		}
		return a
	}
	return element(atom.Span)
}
