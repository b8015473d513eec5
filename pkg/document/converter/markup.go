package converter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/stateful/dualdoc/pkg/document"
)

type serializer struct {
	warnings []Warning
}

func (s *serializer) warn(kind WarningKind, format string, args ...any) {
	s.warnings = append(s.warnings, Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// blocks serializes sibling blocks separated by a blank line. Two adjacent
// lists of the same kind would merge into one when parsed again, so every
// other one switches to the alternative marker.
func (s *serializer) blocks(nodes []*document.Node) string {
	var (
		parts []string
		prev  document.NodeType
		alt   bool
	)
	for _, n := range nodes {
		if n.Type == document.BulletListType || n.Type == document.OrderedListType {
			if prev == n.Type {
				alt = !alt
			} else {
				alt = false
			}
		}
		part := s.block(n, alt)
		if part == "" {
			continue
		}
		parts = append(parts, part)
		prev = n.Type
	}
	return strings.Join(parts, "\n\n")
}

func (s *serializer) block(n *document.Node, alt bool) string {
	switch n.Type {
	case document.HeadingType:
		return s.heading(n)
	case document.ParagraphType:
		return s.paragraph(n.Content)
	case document.BulletListType, document.OrderedListType:
		return s.list(n, alt)
	case document.ListItemType:
		return s.blocks(n.Content)
	case document.BlockquoteType:
		return quote(s.blocks(n.Content))
	case document.CodeBlockType:
		return codeBlock(n.Attr().Language, n.TextContent())
	case document.HorizontalRuleType:
		return "---"
	case document.TableType:
		return s.table(n)
	case document.TextType, document.ImageType, document.HardBreakType:
		return s.paragraph([]*document.Node{n})
	default:
		return s.blocks(n.Content)
	}
}

func (s *serializer) heading(n *document.Node) string {
	level := n.Attr().Level
	if level < 1 {
		level = 1
	} else if level > 6 {
		level = 6
	}
	marker := strings.Repeat("#", level)

	// Headings are a single line.
	inline := make([]*document.Node, 0, len(n.Content))
	for _, c := range n.Content {
		switch c.Type {
		case document.HardBreakType:
			c = document.NewText(" ")
		case document.TextType:
			c = &document.Node{Type: document.TextType, Text: strings.ReplaceAll(c.Text, "\n", " "), Marks: c.Marks}
		}
		inline = append(inline, c)
	}
	content := s.inline(inline)
	if content == "" {
		return marker
	}
	// A closing sequence of "#" would be stripped when parsed again.
	if strings.HasSuffix(content, "#") && !strings.HasSuffix(content, "\\#") {
		content = content[:len(content)-1] + "\\#"
	}
	return marker + " " + content
}

func (s *serializer) paragraph(content []*document.Node) string {
	text := s.inline(content)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = escapeLineStart(line)
	}
	return strings.Join(lines, "\n")
}

// list serializes a list. It is tight unless an item holds more than a
// paragraph optionally followed by a nested list.
func (s *serializer) list(n *document.Node, alt bool) string {
	ordered := n.Type == document.OrderedListType
	start := n.Attr().Start
	if start == 0 {
		start = 1
	}

	tight := true
	for _, item := range n.Content {
		if !isSimpleItem(item) {
			tight = false
			break
		}
	}

	items := make([]string, 0, len(n.Content))
	for i, item := range n.Content {
		var marker string
		switch {
		case ordered && alt:
			marker = strconv.Itoa(start+i) + ")"
		case ordered:
			marker = strconv.Itoa(start+i) + "."
		case alt:
			marker = "*"
		default:
			marker = "-"
		}

		var body string
		if tight {
			parts := make([]string, 0, len(item.Content))
			for _, c := range item.Content {
				if part := s.block(c, false); part != "" {
					parts = append(parts, part)
				}
			}
			body = strings.Join(parts, "\n")
		} else {
			body = s.blocks(item.Content)
		}

		items = append(items, indentItem(marker, body))
	}

	separator := "\n"
	if !tight {
		separator = "\n\n"
	}
	return strings.Join(items, separator)
}

func isSimpleItem(item *document.Node) bool {
	switch len(item.Content) {
	case 0:
		return true
	case 1:
		return item.Content[0].Type == document.ParagraphType
	case 2:
		second := item.Content[1].Type
		return item.Content[0].Type == document.ParagraphType &&
			(second == document.BulletListType || second == document.OrderedListType)
	}
	return false
}

func indentItem(marker, body string) string {
	if body == "" {
		return marker
	}
	indent := strings.Repeat(" ", len(marker)+1)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = marker + " " + line
		case line == "":
		default:
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

func quote(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}

func codeBlock(language, code string) string {
	fence := strings.Repeat("`", max(3, longestRun(code, '`')+1))
	if code == "" {
		return fence + language + "\n" + fence
	}
	return fence + language + "\n" + code + "\n" + fence
}

// table emits a pipe table. Inline formatting in cells is flattened to
// plain text and merged cells are reported as warnings.
func (s *serializer) table(n *document.Node) string {
	var (
		rows    [][]string
		columns int
	)
	for i, row := range n.Content {
		var cells []string
		for j, cell := range row.Content {
			attrs := cell.Attr()
			if attrs.Colspan > 1 || attrs.Rowspan > 1 {
				s.warn(MergedCellWarning,
					"cell at row %d, column %d spans %d columns and %d rows, pipe tables cannot merge cells",
					i+1, j+1, max(attrs.Colspan, 1), max(attrs.Rowspan, 1))
			}
			cells = append(cells, cellText(cell))
		}
		rows = append(rows, cells)
		columns = max(columns, len(cells))
	}
	if columns == 0 {
		return ""
	}

	lines := make([]string, 0, len(rows)+1)
	for i, cells := range rows {
		for len(cells) < columns {
			cells = append(cells, "")
		}
		lines = append(lines, tableLine(cells))
		if i == 0 {
			separator := make([]string, columns)
			for j := range separator {
				separator[j] = "---"
			}
			lines = append(lines, tableLine(separator))
		}
	}
	return strings.Join(lines, "\n")
}

func tableLine(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func cellText(cell *document.Node) string {
	var sb strings.Builder
	document.Walk(cell, func(n *document.Node) bool {
		switch n.Type {
		case document.TextType:
			_, _ = sb.WriteString(n.Text)
		case document.HardBreakType:
			_ = sb.WriteByte(' ')
		case document.ImageType:
			_, _ = sb.WriteString(n.Attr().Alt)
		}
		return true
	})
	text := strings.TrimSpace(collapseSpace(sb.String()))
	return strings.ReplaceAll(escapeText(text), "|", "\\|")
}

// inline serializes inline content. Open marks are kept on a stack and a
// mark stays open across runs as long as they share it; marks that
// continue further are opened first so that they enclose shorter ones.
func (s *serializer) inline(content []*document.Node) string {
	nodes := normalizeInline(content)

	var (
		out    inlineWriter
		active []document.Mark
	)

	closeTo := func(keep int) {
		for len(active) > keep {
			m := active[len(active)-1]
			out.delimiter(closeMark(m), m.Type == document.StrikeMark)
			active = active[:len(active)-1]
		}
	}

	for i, n := range nodes {
		want := runMarks(n).Without(document.CodeMark)

		keep := 0
		for keep < len(active) && hasMark(want, active[keep]) {
			keep++
		}
		closeTo(keep)

		var open []document.Mark
		for _, m := range want {
			if !hasMark(active, m) {
				open = append(open, m)
			}
		}
		sort.SliceStable(open, func(a, b int) bool {
			return spanLength(nodes, i, open[a]) > spanLength(nodes, i, open[b])
		})
		for _, m := range open {
			out.delimiter(openMark(m), m.Type == document.StrikeMark)
			active = append(active, m)
		}

		switch n.Type {
		case document.TextType:
			if n.Marks.Has(document.CodeMark) {
				out.raw(codeSpan(n.Text))
			} else {
				out.text(escapeText(n.Text))
			}
		case document.HardBreakType:
			out.raw("\\\n")
		case document.ImageType:
			attrs := n.Attr()
			out.raw("![" + escapeText(attrs.Alt) + "](" + destination(attrs.Src, attrs.Title) + ")")
		}
	}
	closeTo(0)

	return out.String()
}

type inlinePartKind int

const (
	rawPart inlinePartKind = iota
	textPart
	strikePart
)

type inlinePart struct {
	kind  inlinePartKind
	value string
}

// inlineWriter collects serialized inline pieces so that escaped text can
// be adjusted against the delimiters around it.
type inlineWriter struct {
	parts []inlinePart
}

func (w *inlineWriter) raw(s string) {
	w.parts = append(w.parts, inlinePart{kind: rawPart, value: s})
}

func (w *inlineWriter) text(s string) {
	w.parts = append(w.parts, inlinePart{kind: textPart, value: s})
}

func (w *inlineWriter) delimiter(s string, strike bool) {
	kind := rawPart
	if strike {
		kind = strikePart
	}
	w.parts = append(w.parts, inlinePart{kind: kind, value: s})
}

// String joins the parts. An escaped tilde touching a strikethrough
// delimiter is still counted into the delimiter run, so it is written as a
// character reference instead.
func (w *inlineWriter) String() string {
	var sb strings.Builder
	for i, p := range w.parts {
		v := p.value
		if p.kind == textPart {
			if i > 0 && w.parts[i-1].kind == strikePart && strings.HasPrefix(v, "\\~") {
				v = tildeReference + v[2:]
			}
			if i+1 < len(w.parts) && w.parts[i+1].kind == strikePart && strings.HasSuffix(v, "\\~") {
				v = v[:len(v)-2] + tildeReference
			}
		}
		_, _ = sb.WriteString(v)
	}
	return sb.String()
}

const tildeReference = "&#126;"

func runMarks(n *document.Node) document.Marks {
	if n.Type != document.TextType {
		return nil
	}
	return n.Marks
}

func hasMark(ms []document.Mark, m document.Mark) bool {
	for _, o := range ms {
		if o.Equal(m) {
			return true
		}
	}
	return false
}

func spanLength(nodes []*document.Node, from int, m document.Mark) int {
	n := 0
	for _, node := range nodes[from:] {
		if !hasMark(runMarks(node), m) {
			break
		}
		n++
	}
	return n
}

func openMark(m document.Mark) string {
	switch m.Type {
	case document.BoldMark:
		return "**"
	case document.ItalicMark:
		return "*"
	case document.StrikeMark:
		return "~~"
	case document.LinkMark:
		return "["
	}
	return ""
}

func closeMark(m document.Mark) string {
	if m.Type == document.LinkMark {
		var href, title string
		if m.Attrs != nil {
			href, title = m.Attrs.Href, m.Attrs.Title
		}
		return "](" + destination(href, title) + ")"
	}
	return openMark(m)
}

func destination(href, title string) string {
	if strings.ContainsAny(href, " ()<>") {
		href = "<" + strings.NewReplacer("<", "\\<", ">", "\\>").Replace(href) + ">"
	}
	if title == "" {
		return href
	}
	return href + ` "` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(title) + `"`
}

func codeSpan(text string) string {
	fence := strings.Repeat("`", longestRun(text, '`')+1)
	pad := strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") ||
		(strings.HasPrefix(text, " ") && strings.HasSuffix(text, " ") && strings.TrimSpace(text) != "")
	if pad {
		return fence + " " + text + " " + fence
	}
	return fence + text + fence
}

func longestRun(s string, c byte) int {
	longest, current := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			current++
			longest = max(longest, current)
		} else {
			current = 0
		}
	}
	return longest
}

// normalizeInline merges runs with equal marks and moves whitespace at the
// edges of formatted runs outside of the marks it does not share with its
// neighbor, since emphasis delimiters must not touch whitespace on their
// inner side.
func normalizeInline(content []*document.Node) []*document.Node {
	var out []*document.Node
	for i, n := range content {
		if n == nil {
			continue
		}
		if n.Type != document.TextType || len(n.Marks) == 0 || n.Marks.Has(document.CodeMark) {
			out = appendInline(out, n)
			continue
		}

		core := strings.TrimLeft(n.Text, " ")
		lead := n.Text[:len(n.Text)-len(core)]
		trimmed := strings.TrimRight(core, " ")
		trail := core[len(trimmed):]

		if lead != "" {
			out = appendInline(out, &document.Node{Type: document.TextType, Text: lead, Marks: sharedMarks(n.Marks, content, i-1)})
		}
		if trimmed != "" {
			out = appendInline(out, &document.Node{Type: document.TextType, Text: trimmed, Marks: n.Marks})
		}
		if trail != "" {
			out = appendInline(out, &document.Node{Type: document.TextType, Text: trail, Marks: sharedMarks(n.Marks, content, i+1)})
		}
	}
	return out
}

func sharedMarks(marks document.Marks, content []*document.Node, neighbor int) document.Marks {
	if neighbor < 0 || neighbor >= len(content) || content[neighbor] == nil {
		return nil
	}
	other := runMarks(content[neighbor])
	var shared document.Marks
	for _, m := range marks {
		if hasMark(other, m) {
			shared = append(shared, m)
		}
	}
	return shared
}

func appendInline(out []*document.Node, n *document.Node) []*document.Node {
	if len(out) > 0 && n.Type == document.TextType {
		last := out[len(out)-1]
		if last.Type == document.TextType && last.Marks.Equal(n.Marks) {
			merged := *last
			merged.Text += n.Text
			out[len(out)-1] = &merged
			return out
		}
	}
	return append(out, n)
}

// escapeText escapes characters that would otherwise be read as markdown
// syntax anywhere in a line.
func escapeText(text string) string {
	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\\', '*', '`', '[', ']', '<', '~':
			_ = sb.WriteByte('\\')
		case '_':
			if !(isWordBefore(text, i) && isWordAfter(text, i+1)) {
				_ = sb.WriteByte('\\')
			}
		case '&':
			if referenceEnd([]byte(text[i:])) > 0 {
				_ = sb.WriteByte('\\')
			}
		}
		_ = sb.WriteByte(c)
	}
	return sb.String()
}

func isWordBefore(s string, i int) bool {
	r, size := utf8.DecodeLastRuneInString(s[:i])
	return size > 0 && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isWordAfter(s string, i int) bool {
	r, size := utf8.DecodeRuneInString(s[i:])
	return size > 0 && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// escapeLineStart escapes characters that start a block construct when
// they open a line.
func escapeLineStart(line string) string {
	if line == "" {
		return line
	}
	switch line[0] {
	case '#', '>', '-', '+', '=':
		return "\\" + line
	}
	digits := 0
	for digits < len(line) && digits < 10 && line[digits] >= '0' && line[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(line) && (line[digits] == '.' || line[digits] == ')') {
		rest := line[digits+1:]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			return line[:digits] + "\\" + line[digits:]
		}
	}
	return line
}
