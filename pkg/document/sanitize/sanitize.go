// Package sanitize validates and normalizes link and image addresses
// against an allow-list of protocols.
package sanitize

import (
	"net/url"
	"strings"
	"unicode"
)

var (
	LinkProtocols  = []string{"http", "https", "mailto"}
	ImageProtocols = []string{"http", "https", "mailto", "data"}
)

// deniedPrefixes are rejected before any structured parsing takes place.
// "data:" is handled separately for images.
var deniedPrefixes = []string{
	"javascript:",
	"vbscript:",
	"livescript:",
	"file:",
}

const safeBase = "https://sanitize.invalid/"

// Link sanitizes a link address. It returns an empty string when the
// address is unsafe.
func Link(raw string) string {
	return Sanitize(raw, LinkProtocols)
}

// Image sanitizes an image source. In addition to link protocols it allows
// data addresses restricted to the image media type.
func Image(raw string) string {
	return Sanitize(raw, ImageProtocols)
}

// Sanitize returns the normalized form of raw if its protocol is in allowed,
// or an empty string otherwise. Relative addresses starting with "/", "#"
// or "." pass through unchanged. Sanitize is idempotent.
func Sanitize(raw string, allowed []string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if isRelative(trimmed) {
		return trimmed
	}

	probe := strings.ToLower(stripInvisible(decode(trimmed)))
	if probe == "" {
		return ""
	}

	allowData := contains(allowed, "data")
	if strings.HasPrefix(probe, "data:") {
		if allowData && isImageData(probe) {
			return trimmed
		}
		return ""
	}
	for _, prefix := range deniedPrefixes {
		if strings.HasPrefix(probe, prefix) {
			return ""
		}
	}

	base, _ := url.Parse(safeBase)
	u, err := base.Parse(trimmed)
	if err != nil {
		return ""
	}

	// The address had no scheme and resolved against the safe base. Keep it
	// as written, it is a relative reference.
	if !hasScheme(trimmed) {
		if strings.HasPrefix(trimmed, "//") {
			return ""
		}
		return trimmed
	}

	if !contains(allowed, strings.ToLower(u.Scheme)) {
		return ""
	}

	if u.Opaque == "" && u.Path == "/" && u.RawQuery == "" && u.Fragment == "" && strings.HasSuffix(trimmed, "/") {
		return strings.TrimSuffix(trimmed, "/")
	}

	return trimmed
}

func isRelative(s string) bool {
	switch s[0] {
	case '/':
		// Protocol-relative addresses inherit the page scheme and host and
		// are not considered relative here.
		return !strings.HasPrefix(s, "//")
	case '#', '.':
		return true
	}
	return false
}

func hasScheme(s string) bool {
	for i, r := range s {
		switch {
		case r == ':':
			return i > 0
		case unicode.IsLetter(r), r == '+', r == '-', r == '.':
			continue
		case unicode.IsDigit(r) && i > 0:
			continue
		default:
			return false
		}
	}
	return false
}

// decode percent-decodes s repeatedly to defeat double-encoding. It returns
// the last successfully decoded value.
func decode(s string) string {
	for i := 0; i < 3; i++ {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = decoded
	}
	return s
}

// stripInvisible drops whitespace and control characters that browsers
// ignore inside a scheme, like "java\tscript:".
func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func isImageData(lower string) bool {
	rest := strings.TrimPrefix(lower, "data:")
	mediaType, _, ok := strings.Cut(rest, ",")
	if !ok {
		return false
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	typ, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || typ != "image" || subtype == "" {
		return false
	}
	// Scripted image formats are rejected.
	return !strings.HasPrefix(subtype, "svg")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
