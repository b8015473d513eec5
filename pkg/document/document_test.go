package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestMarks_SetSemantics(t *testing.T) {
	marks := Marks(nil).With(Italic(), Bold(), Italic())
	require.Len(t, marks, 2)
	assert.Equal(t, BoldMark, marks[0].Type)
	assert.Equal(t, ItalicMark, marks[1].Type)

	assert.True(t, Marks{Italic(), Bold()}.Equal(Marks{Bold(), Italic()}))
	assert.False(t, Marks{Bold()}.Equal(Marks{Bold(), Italic()}))
	assert.False(t, Marks{Link("a", "")}.Equal(Marks{Link("b", "")}))

	withLink := marks.With(Link("https://a.example", ""), Link("https://b.example", "t"))
	link, ok := withLink.Get(LinkMark)
	require.True(t, ok)
	assert.Equal(t, "https://b.example", link.Attrs.Href)
	assert.Equal(t, LinkMark, withLink[0].Type)

	assert.False(t, withLink.Without(LinkMark).Has(LinkMark))
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		doc := NewDoc(
			NewHeading(1, NewText("Title")),
			NewTable(NewTableRow(NewTableCell(true, NewText("H")), NewTableCell(false))),
		)
		assert.NoError(t, Validate(doc))
	})

	t.Run("Violations", func(t *testing.T) {
		doc := &Node{
			Type: DocType,
			Content: []*Node{
				{Type: ParagraphType, Content: []*Node{{Type: TextType}}},
				{Type: HeadingType, Attrs: &Attrs{Level: 7}},
				{Type: TableType, Content: []*Node{
					{Type: TableRowType, Content: []*Node{{Type: TableCellType}}},
				}},
				{Type: ParagraphType, Marks: Marks{Bold()}},
			},
		}
		err := Validate(doc)
		require.Error(t, err)
		errs := multierr.Errors(err)
		assert.Len(t, errs, 4)
		assert.Contains(t, err.Error(), "$.content[0].content[0]: empty text node")
		assert.Contains(t, err.Error(), "table cell must contain exactly one paragraph")
	})

	t.Run("MisplacedNodes", func(t *testing.T) {
		doc := NewDoc(
			NewTable(NewTableRow(NewParagraph(NewText("x")))),
			&Node{Type: ImageType, Attrs: &Attrs{Src: "a.png"}, Content: []*Node{NewText("alt")}},
		)
		err := Validate(doc)
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 2)
		assert.Contains(t, err.Error(), "$.content[0].content[0]: paragraph at 0 in table row")
		assert.Contains(t, err.Error(), "$.content[1]: image node with children")
	})

	t.Run("NonDocRoot", func(t *testing.T) {
		assert.Error(t, Validate(NewParagraph()))
		assert.Error(t, Validate(nil))
	})
}
