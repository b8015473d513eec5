package converter_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/dualdoc/pkg/document"
	"github.com/stateful/dualdoc/pkg/document/converter"
)

func TestParseToTree(t *testing.T) {
	testCases := []struct {
		name     string
		markup   string
		expected *document.Node
	}{
		{
			name:   "bold and italic flatten into one run",
			markup: "***text***",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("text", document.Bold(), document.Italic())),
			),
		},
		{
			name:   "blank lines produce no empty paragraphs",
			markup: "Line 1\n\n\n\nLine 2",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("Line 1")),
				document.NewParagraph(document.NewText("Line 2")),
			),
		},
		{
			name:   "unsafe link degrades to text",
			markup: "[click](javascript:alert(1))",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("click")),
			),
		},
		{
			name:   "unsafe image degrades to alt text",
			markup: "![diagram](javascript:alert(1))",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("diagram")),
			),
		},
		{
			name:   "unterminated fence",
			markup: "```go\nfmt.Println()\n",
			expected: document.NewDoc(
				document.NewCodeBlock("go", "fmt.Println()"),
			),
		},
		{
			name:   "pipe table",
			markup: "| H1 | H2 |\n|---|---|\n| C1 | C2 |",
			expected: document.NewDoc(
				document.NewTable(
					document.NewTableRow(
						document.NewTableCell(true, document.NewText("H1")),
						document.NewTableCell(true, document.NewText("H2")),
					),
					document.NewTableRow(
						document.NewTableCell(false, document.NewText("C1")),
						document.NewTableCell(false, document.NewText("C2")),
					),
				),
			),
		},
		{
			name:   "link with title",
			markup: `[docs](https://example.com "Docs")`,
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("docs", document.Link("https://example.com", "Docs"))),
			),
		},
		{
			name:   "email autolink",
			markup: "<me@example.com>",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("me@example.com", document.Link("mailto:me@example.com", ""))),
			),
		},
		{
			name:   "escapes and references",
			markup: `a \*b\* &amp; c`,
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("a *b* & c")),
			),
		},
		{
			name:   "soft break becomes a space",
			markup: "a\nb",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("a b")),
			),
		},
		{
			name:   "hard break",
			markup: "a\\\nb",
			expected: document.NewDoc(
				document.NewParagraph(document.NewText("a"), document.NewHardBreak(), document.NewText("b")),
			),
		},
		{
			name:   "ordered list start",
			markup: "3. a\n4. b",
			expected: document.NewDoc(
				document.NewOrderedList(3,
					document.NewListItem(document.NewParagraph(document.NewText("a"))),
					document.NewListItem(document.NewParagraph(document.NewText("b"))),
				),
			),
		},
		{
			name:   "inline code",
			markup: "run `make test` now",
			expected: document.NewDoc(
				document.NewParagraph(
					document.NewText("run "),
					document.NewText("make test", document.Code()),
					document.NewText(" now"),
				),
			),
		},
		{
			name:   "strikethrough and image",
			markup: "~~old~~ ![logo](https://example.com/logo.png)",
			expected: document.NewDoc(
				document.NewParagraph(
					document.NewText("old", document.Strike()),
					document.NewText(" "),
					document.NewImage("https://example.com/logo.png", "logo", ""),
				),
			),
		},
		{
			name:     "empty",
			markup:   "",
			expected: document.NewDoc(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := converter.ParseToTree(tc.markup)
			if diff := cmp.Diff(tc.expected, tree); diff != "" {
				t.Fatalf("tree mismatch (-want +got):\n%s", diff)
			}
			require.NoError(t, document.Validate(tree))
		})
	}
}

func TestParse_ReportsUnsafeURLs(t *testing.T) {
	c := converter.New()
	_, report := c.Parse("[a](javascript:x) and [b](https://example.com)")
	assert.Equal(t, []string{"javascript:x"}, report.UnsafeURLs)
	assert.NoError(t, report.Err)
}

func TestParseToTree_OmitsEmptyContent(t *testing.T) {
	tree := converter.ParseToTree("# Title\n\n\n\n- item\n\n---\n\nText")

	var buf bytes.Buffer
	require.NoError(t, document.Encode(&buf, tree))
	assert.NotContains(t, buf.String(), `"content": []`)
	assert.NotContains(t, buf.String(), `"text": ""`)

	document.Walk(tree, func(n *document.Node) bool {
		if n.Type == document.TextType {
			assert.NotEmpty(t, n.Text)
		}
		return true
	})
}

func TestParseToTree_TextContent(t *testing.T) {
	testCases := []struct {
		markup   string
		expected string
	}{
		{"# Title\n\nSome *emphasis* and **bold**.", "TitleSome emphasis and bold."},
		{"- one\n- two\n  - nested\n", "onetwonested"},
		{"1. first\n2. second\n", "firstsecond"},
		{"> quote\n>\n> more\n", "quotemore"},
		{"```go\nfmt.Println(\"hi\")\n```\n", "fmt.Println(\"hi\")"},
		{"Text with `code` span and ~~gone~~\n", "Text with code span and gone"},
		{"***both***\n", "both"},
		{"A [link](https://example.com) here\n", "A link here"},
		{"Line 1\n\n\n\nLine 2", "Line 1Line 2"},
	}

	for _, tc := range testCases {
		t.Run(tc.markup, func(t *testing.T) {
			assert.Equal(t, tc.expected, converter.ParseToTree(tc.markup).TextContent())
		})
	}
}

func TestConverter_WithExtraLinkProtocols(t *testing.T) {
	c := converter.New(converter.WithExtraLinkProtocols("ftp:"))
	tree := c.ParseToTree("[file](ftp://example.com/file)")
	expected := document.NewDoc(
		document.NewParagraph(document.NewText("file", document.Link("ftp://example.com/file", ""))),
	)
	if diff := cmp.Diff(expected, tree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_Table(t *testing.T) {
	c := converter.New()
	result, warnings, err := c.Convert("| H1 | H2 |\n|---|---|\n| C1 | C2 |")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "| H1 | H2 |\n| --- | --- |\n| C1 | C2 |\n", result)
}

func TestConvert_Idempotent(t *testing.T) {
	sources := []string{
		"# Title\n\nSome *emphasis* and **bold** text.\n",
		"- one\n- two\n  - nested\n",
		"1. first\n2. second\n",
		"> quote\n>\n> more\n",
		"```go\nfmt.Println(\"hi\")\n```\n",
		"| H1 | H2 |\n|---|---|\n| **C1** | C2 |\n",
		"A [link](https://example.com \"Title\") and ![img](https://example.com/a.png)\n",
		"Snake_case and 2*3 and a_b_c\n",
		"line one  \nline two\n",
		"Text with `code` span and ~~gone~~\n",
		"***both***\n",
		"- a\n- b\n\n\n* c\n",
		"# Heading #\n\n#hashtag\n\n1986\\. A great year\n",
		"<div>\nraw\n</div>\n",
		"Line 1\n\n\n\nLine 2",
		"~~0~",
		"a ~ b and ~~c~~",
	}

	c := converter.New()
	for _, source := range sources {
		first, _, err := c.Convert(source)
		require.NoError(t, err)
		second, _, err := c.Convert(first)
		require.NoError(t, err)
		assert.Equal(t, first, second, "source: %q", source)
	}
}

func TestConvert_TildeNextToStrikethrough(t *testing.T) {
	c := converter.New()

	first, _, err := c.Convert("~~0~")
	require.NoError(t, err)
	assert.Equal(t, "&#126;~~0~~\n", first)

	tree := c.ParseToTree(first)
	expected := document.NewDoc(
		document.NewParagraph(
			document.NewText("~"),
			document.NewText("0", document.Strike()),
		),
	)
	if diff := cmp.Diff(expected, tree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_PreservesStructure(t *testing.T) {
	c := converter.New()
	result, _, err := c.Convert("# Title\n\nSome *emphasis* and **bold** text.\n\n- one\n- two\n")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nSome *emphasis* and **bold** text.\n\n- one\n- two\n", result)
}

func TestParseHTML_ReadsRenderedTree(t *testing.T) {
	trees := []*document.Node{
		converter.ParseToTree("***text***"),
		converter.ParseToTree("| H1 | H2 |\n|---|---|\n| C1 | C2 |"),
		converter.ParseToTree("> quote\n\n```go\ncode\n```\n\n3. a\n4. b"),
		converter.ParseToTree("[docs](https://example.com \"Docs\") ![logo](https://example.com/logo.png)"),
	}

	c := converter.New()
	for _, tree := range trees {
		serialized, err := converter.RenderHTML(tree)
		require.NoError(t, err)
		parsed, err := c.ParseHTML(serialized)
		require.NoError(t, err)
		if diff := cmp.Diff(tree, parsed); diff != "" {
			t.Fatalf("tree mismatch for %q (-want +got):\n%s", serialized, diff)
		}
	}
}

func TestTreeToMarkup_MergedCells(t *testing.T) {
	serialized := `<table><tbody>` +
		`<tr><th colspan="2"><p>A</p></th></tr>` +
		`<tr><td><p>B</p></td><td><p>C</p></td></tr>` +
		`</tbody></table>`

	markup, warnings := converter.TreeToMarkup(serialized)
	assert.Equal(t, "| A |  |\n| --- | --- |\n| B | C |\n", markup)
	require.Len(t, warnings, 1)
	assert.Equal(t, converter.MergedCellWarning, warnings[0].Kind)
}

func TestTreeToMarkup_UnknownElementsAreTransparent(t *testing.T) {
	markup, warnings := converter.TreeToMarkup(`<div><section><p>Hello <span>there</span></p></section></div>`)
	assert.Empty(t, warnings)
	assert.Equal(t, "Hello there\n", markup)
}

func TestTreeToMarkup_UnsafeHref(t *testing.T) {
	markup, _ := converter.TreeToMarkup(`<p><a href="javascript:alert(1)">click</a></p>`)
	assert.Equal(t, "click\n", markup)
}

func TestTreeToMarkup_CellFormattingIsFlattened(t *testing.T) {
	serialized := `<table><tbody>` +
		`<tr><th><p><strong>Name</strong></p></th></tr>` +
		`<tr><td><p>a | b</p></td></tr>` +
		`</tbody></table>`

	markup, warnings := converter.TreeToMarkup(serialized)
	assert.Empty(t, warnings)
	assert.Equal(t, "| Name |\n| --- |\n| a \\| b |\n", markup)
}
