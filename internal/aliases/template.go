package aliases

import (
	"strings"
)

// SegmentKind classifies a piece of a parsed format template.
type SegmentKind int

const (
	SegmentLiteral SegmentKind = iota
	SegmentRequired
	SegmentOptional
)

// Segment is one element of a parsed template: literal text, a required
// placeholder {{name}} or an optional placeholder {{name=default}}.
type Segment struct {
	Kind    SegmentKind
	Text    string // literal text (SegmentLiteral)
	Name    string // placeholder name
	Default string // default value (SegmentOptional)
}

// ParseTemplate splits a template into literal and placeholder segments.
// Unterminated or empty "{{" sequences are kept as literal text.
func ParseTemplate(template string) []Segment {
	var (
		segs []Segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Kind: SegmentLiteral, Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(template); {
		if !strings.HasPrefix(template[i:], "{{") {
			lit.WriteByte(template[i])
			i++
			continue
		}
		seg, n, ok := parsePlaceholder(template[i+2:])
		if !ok {
			lit.WriteString("{{")
			i += 2
			continue
		}
		flush()
		segs = append(segs, seg)
		i += 2 + n
	}
	flush()
	return segs
}

// parsePlaceholder parses the body after "{{" and returns the segment and
// the number of bytes consumed including the closing "}}".
func parsePlaceholder(s string) (Segment, int, bool) {
	end := strings.Index(s, "}}")
	if end < 0 {
		return Segment{}, 0, false
	}

	eq := strings.IndexByte(s[:end], '=')
	if eq < 0 {
		name := strings.TrimSpace(s[:end])
		if name == "" {
			return Segment{}, 0, false
		}
		return Segment{Kind: SegmentRequired, Name: name}, end + 2, true
	}

	name := strings.TrimSpace(s[:eq])
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return Segment{}, 0, false
	}

	rest := s[eq+1:]
	lead := len(rest) - len(strings.TrimLeft(rest, " \t\r\n"))
	body := rest[lead:]

	// Structured defaults like {{x={"a": 1}}} contain braces; match them by depth.
	if strings.HasPrefix(body, "{") {
		if closeAt := matchBrace(body); closeAt >= 0 {
			after := body[closeAt+1:]
			trail := len(after) - len(strings.TrimLeft(after, " \t\r\n"))
			if strings.HasPrefix(after[trail:], "}}") {
				consumed := eq + 1 + lead + closeAt + 1 + trail + 2
				return Segment{Kind: SegmentOptional, Name: name, Default: body[:closeAt+1]}, consumed, true
			}
		}
	}

	def := strings.TrimSpace(s[eq+1 : end])
	if def == "" {
		return Segment{}, 0, false
	}
	return Segment{Kind: SegmentOptional, Name: name, Default: def}, end + 2, true
}

// matchBrace returns the index of the brace closing s[0], or -1.
func matchBrace(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
