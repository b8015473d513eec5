package document

import "sort"

type MarkType string

const (
	BoldMark   MarkType = "bold"
	ItalicMark MarkType = "italic"
	StrikeMark MarkType = "strike"
	CodeMark   MarkType = "code"
	LinkMark   MarkType = "link"
)

// markOrder is the canonical order of marks, outermost first, used when
// marks are serialized.
var markOrder = map[MarkType]int{
	LinkMark:   0,
	BoldMark:   1,
	ItalicMark: 2,
	StrikeMark: 3,
	CodeMark:   4,
}

type MarkAttrs struct {
	Href  string `json:"href"`
	Title string `json:"title,omitempty"`
}

type Mark struct {
	Type  MarkType   `json:"type"`
	Attrs *MarkAttrs `json:"attrs,omitempty"`
}

func Bold() Mark   { return Mark{Type: BoldMark} }
func Italic() Mark { return Mark{Type: ItalicMark} }
func Strike() Mark { return Mark{Type: StrikeMark} }
func Code() Mark   { return Mark{Type: CodeMark} }

func Link(href, title string) Mark {
	return Mark{Type: LinkMark, Attrs: &MarkAttrs{Href: href, Title: title}}
}

func (m Mark) Equal(other Mark) bool {
	if m.Type != other.Type {
		return false
	}
	if m.Attrs == nil || other.Attrs == nil {
		return m.Attrs == nil && other.Attrs == nil
	}
	return *m.Attrs == *other.Attrs
}

// Marks is a set of marks keyed by type. A run holds at most one mark of
// each type; adding a mark of a present type replaces it.
type Marks []Mark

func (ms Marks) Has(typ MarkType) bool {
	_, ok := ms.Get(typ)
	return ok
}

func (ms Marks) Get(typ MarkType) (Mark, bool) {
	for _, m := range ms {
		if m.Type == typ {
			return m, true
		}
	}
	return Mark{}, false
}

// With returns a new set containing ms and marks, kept in canonical order.
func (ms Marks) With(marks ...Mark) Marks {
	if len(ms) == 0 && len(marks) == 0 {
		return nil
	}
	result := make(Marks, 0, len(ms)+len(marks))
	for _, m := range ms {
		result = result.put(m)
	}
	for _, m := range marks {
		result = result.put(m)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return markOrder[result[i].Type] < markOrder[result[j].Type]
	})
	return result
}

func (ms Marks) Without(typ MarkType) Marks {
	var result Marks
	for _, m := range ms {
		if m.Type != typ {
			result = append(result, m)
		}
	}
	return result
}

// Equal compares two sets ignoring order.
func (ms Marks) Equal(other Marks) bool {
	if len(ms) != len(other) {
		return false
	}
	for _, m := range ms {
		o, ok := other.Get(m.Type)
		if !ok || !m.Equal(o) {
			return false
		}
	}
	return true
}

func (ms Marks) put(m Mark) Marks {
	if m.Attrs != nil {
		attrs := *m.Attrs
		m.Attrs = &attrs
	}
	for i := range ms {
		if ms[i].Type == m.Type {
			ms[i] = m
			return ms
		}
	}
	return append(ms, m)
}

func (ms Marks) clone() Marks {
	if ms == nil {
		return nil
	}
	return Marks(nil).With(ms...)
}
