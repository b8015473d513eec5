package converter

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/pkg/document"
)

// Parse converts markup into a DocumentTree and reports degraded content.
// A failure inside the walk is recovered; the tree built so far is
// returned and Report.Err is set.
func (c *Converter) Parse(markup string) (root *document.Node, report Report) {
	source := []byte(markup)
	root = document.NewDoc()

	defer func() {
		if r := recover(); r != nil {
			report.Err = &ParseError{Cause: r}
			c.logger.Warn("markdown walk failed, keeping partial tree", zap.Error(report.Err))
		}
	}()

	b := &treeBuilder{
		converter: c,
		source:    source,
		report:    &report,
	}
	b.blocks(c.parser.Parse(text.NewReader(source)), root)

	if len(report.UnsafeURLs) > 0 {
		c.logger.Debug("degraded unsafe addresses", zap.Strings("urls", report.UnsafeURLs))
	}

	return root, report
}

type treeBuilder struct {
	converter *Converter
	source    []byte
	report    *Report
}

func (b *treeBuilder) blocks(parent ast.Node, into *document.Node) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if !isKnownBlock(n) {
			// Unknown containers are transparent.
			b.blocks(n, into)
			continue
		}
		into.Append(b.block(n))
	}
}

func isKnownBlock(n ast.Node) bool {
	switch n.(type) {
	case *ast.Heading, *ast.Paragraph, *ast.TextBlock, *ast.List, *ast.ListItem,
		*ast.Blockquote, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.ThematicBreak,
		*ast.HTMLBlock, *extast.Table:
		return true
	}
	return false
}

func (b *treeBuilder) block(n ast.Node) *document.Node {
	switch n := n.(type) {
	case *ast.Heading:
		return document.NewHeading(n.Level, b.inlines(n)...)

	case *ast.Paragraph, *ast.TextBlock:
		content := b.inlines(n)
		if len(content) == 0 {
			return nil
		}
		return document.NewParagraph(content...)

	case *ast.List:
		var list *document.Node
		if n.IsOrdered() {
			list = document.NewOrderedList(n.Start)
		} else {
			list = document.NewBulletList()
		}
		b.blocks(n, list)
		return list

	case *ast.ListItem:
		item := document.NewListItem()
		b.blocks(n, item)
		if len(item.Content) == 0 {
			item.Append(document.NewParagraph())
		}
		return item

	case *ast.Blockquote:
		quote := document.NewBlockquote()
		b.blocks(n, quote)
		if len(quote.Content) == 0 {
			quote.Append(document.NewParagraph())
		}
		return quote

	case *ast.FencedCodeBlock:
		return document.NewCodeBlock(string(n.Language(b.source)), b.lines(n.Lines()))

	case *ast.CodeBlock:
		return document.NewCodeBlock("", b.lines(n.Lines()))

	case *ast.ThematicBreak:
		return document.NewHorizontalRule()

	case *ast.HTMLBlock:
		// Raw HTML is never interpreted; it is kept as literal text.
		raw := b.lines(n.Lines())
		if n.HasClosure() {
			raw += "\n" + string(n.ClosureLine.Value(b.source))
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		return document.NewParagraph(document.NewText(raw))

	case *extast.Table:
		return b.table(n)

	default:
		return nil
	}
}

// lines joins block lines and drops the final line break.
func (b *treeBuilder) lines(segments *text.Segments) string {
	var sb strings.Builder
	for i := 0; i < segments.Len(); i++ {
		segment := segments.At(i)
		_, _ = sb.Write(segment.Value(b.source))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *treeBuilder) table(n *extast.Table) *document.Node {
	table := document.NewTable()
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*extast.TableHeader)
		tr := document.NewTableRow()
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			// Cells keep their paragraph even when empty. Pipe tables have no
			// spans; colspan and rowspan only arrive from surface HTML.
			tr.Append(document.NewTableCell(header, b.inlines(cell)...))
		}
		table.Append(tr)
	}
	return table
}

func (b *treeBuilder) inlines(parent ast.Node) []*document.Node {
	var out []*document.Node
	b.inline(parent, nil, &out)
	return trimInline(out)
}

// inline walks the inline children of parent. Marks of enclosing
// formatting nodes are flattened onto every text run below them.
func (b *treeBuilder) inline(parent ast.Node, marks document.Marks, out *[]*document.Node) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Text:
			appendText(out, unescape(n.Segment.Value(b.source)), marks)
			switch {
			case n.HardLineBreak():
				*out = append(*out, document.NewHardBreak())
			case n.SoftLineBreak():
				appendText(out, " ", marks)
			}

		case *ast.String:
			if n.IsCode() || n.IsRaw() {
				appendText(out, string(n.Value), marks)
			} else {
				appendText(out, unescape(n.Value), marks)
			}

		case *ast.CodeSpan:
			appendText(out, b.codeSpan(n), marks.With(document.Code()))

		case *ast.Emphasis:
			mark := document.Italic()
			if n.Level >= 2 {
				mark = document.Bold()
			}
			b.inline(n, marks.With(mark), out)

		case *extast.Strikethrough:
			b.inline(n, marks.With(document.Strike()), out)

		case *ast.Link:
			href := b.converter.sanitizeLink(unescape(n.Destination))
			if href == "" {
				b.report.UnsafeURLs = append(b.report.UnsafeURLs, string(n.Destination))
				b.inline(n, marks, out)
				continue
			}
			b.inline(n, marks.With(document.Link(href, unescape(n.Title))), out)

		case *ast.AutoLink:
			label := string(n.Label(b.source))
			href := string(n.URL(b.source))
			if n.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(href), "mailto:") {
				href = "mailto:" + href
			}
			if safe := b.converter.sanitizeLink(href); safe != "" {
				appendText(out, label, marks.With(document.Link(safe, "")))
			} else {
				b.report.UnsafeURLs = append(b.report.UnsafeURLs, href)
				appendText(out, label, marks)
			}

		case *ast.Image:
			alt := b.plainText(n)
			src := b.converter.sanitizeImage(unescape(n.Destination))
			if src == "" {
				b.report.UnsafeURLs = append(b.report.UnsafeURLs, string(n.Destination))
				appendText(out, alt, marks)
				continue
			}
			*out = append(*out, document.NewImage(src, alt, unescape(n.Title)))

		case *ast.RawHTML:
			for i := 0; i < n.Segments.Len(); i++ {
				segment := n.Segments.At(i)
				appendText(out, string(segment.Value(b.source)), marks)
			}

		default:
			b.inline(n, marks, out)
		}
	}
}

func (b *treeBuilder) codeSpan(n *ast.CodeSpan) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			_, _ = sb.Write(c.Segment.Value(b.source))
		case *ast.String:
			_, _ = sb.Write(c.Value)
		}
	}
	return strings.ReplaceAll(sb.String(), "\n", " ")
}

// plainText returns the text of all descendants, used for image alt text.
func (b *treeBuilder) plainText(n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := node.(type) {
		case *ast.Text:
			_, _ = sb.WriteString(unescape(node.Segment.Value(b.source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				_ = sb.WriteByte(' ')
			}
		case *ast.String:
			_, _ = sb.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// unescape resolves backslash escapes and character references in a
// single pass, so that an escaped "\&amp;" stays literal.
func unescape(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\' && i+1 < len(raw) && util.IsPunct(raw[i+1]):
			i++
			_ = sb.WriteByte(raw[i])
		case c == '&':
			end := referenceEnd(raw[i:])
			if end < 0 {
				_ = sb.WriteByte(c)
				continue
			}
			ref := raw[i : i+end+1]
			_, _ = sb.Write(util.ResolveNumericReferences(util.ResolveEntityNames(ref)))
			i += end
		default:
			_ = sb.WriteByte(c)
		}
	}
	return sb.String()
}

// referenceEnd returns the index of the ";" closing a character reference
// at the start of b, or -1.
func referenceEnd(b []byte) int {
	for i := 1; i < len(b) && i <= 32; i++ {
		c := b[i]
		switch {
		case c == ';':
			if i == 1 {
				return -1
			}
			return i
		case c == '#' && i == 1:
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return -1
		}
	}
	return -1
}
