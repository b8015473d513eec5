package converter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/stateful/dualdoc/pkg/document"
)

// ParseHTML reads the rendering surface's serialized HTML into a
// DocumentTree. Elements without a rule are transparent: their children
// are read as if the element was not there.
func (c *Converter) ParseHTML(serialized string) (*document.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(serialized), context)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse serialized html")
	}
	p := &domParser{converter: c}
	return document.NewDoc(p.blocks(nodes)...), nil
}

type domParser struct {
	converter *Converter
}

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Hr:         true,
	atom.Table:      true,
	atom.Div:        true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Header:     true,
	atom.Footer:     true,
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1,
	atom.H2: 2,
	atom.H3: 3,
	atom.H4: 4,
	atom.H5: 5,
	atom.H6: 6,
}

func isBlockElement(n *html.Node) bool {
	return n.Type == html.ElementNode && blockElements[n.DataAtom]
}

func children(n *html.Node) []*html.Node {
	var result []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result = append(result, c)
	}
	return result
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func intAttr(n *html.Node, key string) int {
	v, ok := attr(n, key)
	if !ok {
		return 0
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return i
}

// blocks reads a sequence of sibling nodes. Runs of inline nodes between
// block elements become paragraphs.
func (p *domParser) blocks(nodes []*html.Node) []*document.Node {
	var (
		out    []*document.Node
		inline []*html.Node
	)

	flush := func() {
		if content := p.inlines(inline); len(content) > 0 {
			out = append(out, document.NewParagraph(content...))
		}
		inline = nil
	}

	for _, n := range nodes {
		switch {
		case isBlockElement(n):
			flush()
			out = append(out, p.block(n)...)
		case n.Type == html.TextNode, n.Type == html.ElementNode:
			inline = append(inline, n)
		}
	}
	flush()

	return out
}

func (p *domParser) block(n *html.Node) []*document.Node {
	if level, ok := headingLevels[n.DataAtom]; ok {
		return []*document.Node{document.NewHeading(level, p.inlines(children(n))...)}
	}

	switch n.DataAtom {
	case atom.P:
		return []*document.Node{document.NewParagraph(p.inlines(children(n))...)}

	case atom.Ul:
		list := document.NewBulletList()
		p.listItems(n, list)
		return []*document.Node{list}

	case atom.Ol:
		start := 1
		if _, ok := attr(n, "start"); ok {
			start = intAttr(n, "start")
		}
		list := document.NewOrderedList(start)
		p.listItems(n, list)
		return []*document.Node{list}

	case atom.Li:
		return []*document.Node{p.listItem(n)}

	case atom.Blockquote:
		content := p.blocks(children(n))
		if len(content) == 0 {
			content = []*document.Node{document.NewParagraph()}
		}
		return []*document.Node{document.NewBlockquote(content...)}

	case atom.Pre:
		return []*document.Node{p.codeBlock(n)}

	case atom.Hr:
		return []*document.Node{document.NewHorizontalRule()}

	case atom.Table:
		return []*document.Node{p.table(n)}

	default:
		return p.blocks(children(n))
	}
}

func (p *domParser) listItems(n *html.Node, list *document.Node) {
	var stray []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			list.Append(p.listItem(c))
			continue
		}
		stray = append(stray, c)
	}
	// Content outside of list items is attached to the last item.
	if content := p.blocks(stray); len(content) > 0 {
		if len(list.Content) == 0 {
			list.Append(document.NewListItem())
		}
		last := list.Content[len(list.Content)-1]
		last.Append(content...)
	}
}

func (p *domParser) listItem(n *html.Node) *document.Node {
	content := p.blocks(children(n))
	if len(content) == 0 {
		content = []*document.Node{document.NewParagraph()}
	}
	return document.NewListItem(content...)
}

func (p *domParser) codeBlock(n *html.Node) *document.Node {
	var language string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Code {
			continue
		}
		class, _ := attr(c, "class")
		for _, field := range strings.Fields(class) {
			if lang, ok := strings.CutPrefix(field, "language-"); ok {
				language = lang
				break
			}
		}
		break
	}
	return document.NewCodeBlock(language, strings.TrimSuffix(textContent(n), "\n"))
}

// table reads rows in document order from any thead, tbody or tfoot
// sections. A row is a header row if its cells are th elements.
func (p *domParser) table(n *html.Node) *document.Node {
	table := document.NewTable()

	var visit func(*html.Node)
	visit = func(parent *html.Node) {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				visit(c)
			case atom.Tr:
				table.Append(p.tableRow(c))
			}
		}
	}
	visit(n)

	return table
}

func (p *domParser) tableRow(n *html.Node) *document.Node {
	row := document.NewTableRow()
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Th && c.DataAtom != atom.Td) {
			continue
		}
		cell := document.NewTableCell(c.DataAtom == atom.Th, p.cellContent(c)...)
		colspan, rowspan := intAttr(c, "colspan"), intAttr(c, "rowspan")
		if colspan > 0 || rowspan > 0 {
			cell.Attrs = &document.Attrs{Colspan: colspan, Rowspan: rowspan}
		}
		row.Append(cell)
	}
	return row
}

// cellContent keeps the inline content of a cell wrapped in exactly one
// paragraph. Any other shape is flattened to its text.
func (p *domParser) cellContent(n *html.Node) []*document.Node {
	var elements []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.ElementNode:
			elements = append(elements, c)
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) != "":
			return flattened(n)
		}
	}
	if len(elements) == 1 && elements[0].DataAtom == atom.P {
		return p.inlines(children(elements[0]))
	}
	if len(elements) == 0 {
		return nil
	}
	return flattened(n)
}

func flattened(n *html.Node) []*document.Node {
	text := strings.TrimSpace(collapseSpace(textContent(n)))
	if text == "" {
		return nil
	}
	return []*document.Node{document.NewText(text)}
}

func (p *domParser) inlines(nodes []*html.Node) []*document.Node {
	var out []*document.Node
	for _, n := range nodes {
		p.inline(n, nil, &out)
	}
	return trimInline(out)
}

func (p *domParser) inline(n *html.Node, marks document.Marks, out *[]*document.Node) {
	switch n.Type {
	case html.TextNode:
		appendText(out, collapseSpace(n.Data), marks)
		return
	case html.ElementNode:
	default:
		return
	}

	recurse := func(marks document.Marks) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.inline(c, marks, out)
		}
	}

	switch n.DataAtom {
	case atom.Br:
		*out = append(*out, document.NewHardBreak())

	case atom.Img:
		src, _ := attr(n, "src")
		alt, _ := attr(n, "alt")
		title, _ := attr(n, "title")
		if safe := p.converter.sanitizeImage(src); safe != "" {
			*out = append(*out, document.NewImage(safe, alt, title))
		} else {
			appendText(out, alt, marks)
		}

	case atom.Strong, atom.B:
		recurse(marks.With(document.Bold()))

	case atom.Em, atom.I:
		recurse(marks.With(document.Italic()))

	case atom.S, atom.Del, atom.Strike:
		recurse(marks.With(document.Strike()))

	case atom.Code:
		appendText(out, textContent(n), marks.With(document.Code()))

	case atom.A:
		href, _ := attr(n, "href")
		title, _ := attr(n, "title")
		if safe := p.converter.sanitizeLink(href); safe != "" {
			recurse(marks.With(document.Link(safe, title)))
		} else {
			recurse(marks)
		}

	default:
		recurse(marks)
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_, _ = sb.WriteString(textContent(c))
	}
	return sb.String()
}

var layoutSpace = regexp.MustCompile(`[ \t\r\n\f]*[\t\r\n\f][ \t\r\n\f]*`)

// collapseSpace replaces layout whitespace, which is any run containing a
// line break or tab, with a single space. Plain spaces are significant.
func collapseSpace(s string) string {
	return layoutSpace.ReplaceAllString(s, " ")
}
