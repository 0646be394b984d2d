// Package version compares tool version strings as segmented tuples.
//
// A version is split on '.', '-' and '+'. Numeric segments compare
// numerically, other segments lexically, and a numeric segment sorts before
// an alphanumeric one. When one tuple is a prefix of the other the shorter
// tuple is smaller, so "" (never run) sorts before every real version.
package version

import (
	"strings"
)

// Version is a parsed, comparable version tuple.
type Version struct {
	raw      string
	segments []segment
}

type segment struct {
	text    string
	numeric bool
}

// Parse splits raw into comparable segments. It never fails: any string is a
// valid version, the empty string being the minimum.
func Parse(raw string) Version {
	trimmed := strings.TrimSpace(raw)
	body := trimmed
	if len(body) > 1 && (body[0] == 'v' || body[0] == 'V') && isDigit(body[1]) {
		body = body[1:]
	}
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == '.' || r == '-' || r == '+'
	})
	segments := make([]segment, 0, len(fields))
	for _, field := range fields {
		segments = append(segments, newSegment(field))
	}
	return Version{raw: trimmed, segments: segments}
}

func newSegment(text string) segment {
	numeric := text != ""
	for i := 0; i < len(text); i++ {
		if !isDigit(text[i]) {
			numeric = false
			break
		}
	}
	if numeric {
		text = strings.TrimLeft(text, "0")
	}
	return segment{text: text, numeric: numeric}
}

// String returns the version as it was given (trimmed).
func (v Version) String() string { return v.raw }

// IsZero reports whether v has no segments.
func (v Version) IsZero() bool { return len(v.segments) == 0 }

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than o.
func (v Version) Compare(o Version) int {
	for i := 0; i < len(v.segments) && i < len(o.segments); i++ {
		if c := compareSegment(v.segments[i], o.segments[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(v.segments) < len(o.segments):
		return -1
	case len(v.segments) > len(o.segments):
		return 1
	default:
		return 0
	}
}

// Compare parses both strings and compares them.
func Compare(a, b string) int {
	return Parse(a).Compare(Parse(b))
}

// AtLeast reports whether a >= b.
func AtLeast(a, b string) bool {
	return Compare(a, b) >= 0
}

func compareSegment(a, b segment) int {
	switch {
	case a.numeric && b.numeric:
		// Leading zeros are stripped, so a longer digit string is larger.
		if len(a.text) != len(b.text) {
			if len(a.text) < len(b.text) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.text, b.text)
	case a.numeric:
		return -1
	case b.numeric:
		return 1
	default:
		return strings.Compare(a.text, b.text)
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
