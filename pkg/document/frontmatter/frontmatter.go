// Package frontmatter splits a YAML ("---") or TOML ("+++") header off a
// markdown source so that it can be kept outside the document tree and
// reattached verbatim.
package frontmatter

import (
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Frontmatter is a header split off a source. Raw holds the header exactly
// as it appeared, delimiters and trailing line break included.
type Frontmatter struct {
	Raw    string
	Format Format
	Data   map[string]any
}

// Join reattaches the header to body.
func (f *Frontmatter) Join(body string) string {
	if f == nil {
		return body
	}
	return f.Raw + body
}

// Split separates the frontmatter from the rest of source. If source has no
// frontmatter, or the header does not decode, it returns nil and source
// unchanged. For a non-nil result f.Join(body) == source.
func Split(source string) (*Frontmatter, string) {
	l := &lexer{input: source}
	for state := lexInit; state != nil; {
		state = state(l)
	}
	if l.err != nil || l.end == 0 {
		return nil, source
	}

	raw := source[:l.end]
	data, err := decode(l.format, source[l.bodyStart:l.bodyEnd])
	if err != nil {
		return nil, source
	}

	return &Frontmatter{Raw: raw, Format: l.format, Data: data}, source[l.end:]
}

func decode(format Format, data string) (map[string]any, error) {
	result := make(map[string]any)
	if strings.TrimSpace(data) == "" {
		return result, nil
	}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(data), &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode yaml frontmatter")
		}
	case FormatTOML:
		if err := toml.Unmarshal([]byte(data), &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode toml frontmatter")
		}
	default:
		return nil, errors.Errorf("unknown frontmatter format %q", format)
	}
	return result, nil
}

type lexer struct {
	input string
	pos   int

	format    Format
	delimiter string
	bodyStart int
	bodyEnd   int
	end       int
	err       error
}

type stateFunc func(*lexer) stateFunc

var errUnterminated = errors.New("unterminated frontmatter")

func lexInit(l *lexer) stateFunc {
	switch {
	case strings.HasPrefix(l.input, "---"):
		l.format, l.delimiter = FormatYAML, "---"
	case strings.HasPrefix(l.input, "+++"):
		l.format, l.delimiter = FormatTOML, "+++"
	default:
		return nil
	}
	l.pos = len(l.delimiter)
	if !l.consumeLineBreak() {
		return nil
	}
	l.bodyStart = l.pos
	return lexBody
}

func lexBody(l *lexer) stateFunc {
	for l.pos <= len(l.input) {
		lineEnd := strings.IndexByte(l.input[l.pos:], '\n')
		var line string
		if lineEnd < 0 {
			line = l.input[l.pos:]
		} else {
			line = l.input[l.pos : l.pos+lineEnd]
		}
		if strings.TrimRight(line, "\r \t") == l.delimiter {
			l.bodyEnd = l.pos
			l.pos += len(line)
			l.consumeLineBreak()
			l.end = l.pos
			return nil
		}
		if lineEnd < 0 {
			break
		}
		l.pos += lineEnd + 1
	}
	l.err = errUnterminated
	return nil
}

func (l *lexer) consumeLineBreak() bool {
	switch {
	case strings.HasPrefix(l.input[l.pos:], "\r\n"):
		l.pos += 2
	case strings.HasPrefix(l.input[l.pos:], "\n"):
		l.pos++
	default:
		return false
	}
	return true
}
