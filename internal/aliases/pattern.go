package aliases

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	// valuePattern lazily captures one or more characters including newlines,
	// so parameter values may hold pasted multi-line text. The first character
	// must not be whitespace.
	valuePattern = `(\S[\s\S]*?)`

	// extrasPattern accepts trailing key=value pairs after any command. Values
	// may be double- or single-quoted, a brace-delimited literal, or a bare token.
	extrasPattern = `((?:\s+\S+?\s*=(?:"[\s\S]*?"|'[\s\S]*?'|\{[\s\S]*?\}|\S+)\s*)*)`
)

// InvalidFormatError is returned when a template cannot be compiled.
type InvalidFormatError struct {
	Template string
	Reason   string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid alias format %q: %s", e.Template, e.Reason)
}

// Slot is a placeholder captured by a Matcher.
type Slot struct {
	Name     string
	Default  string
	Optional bool
	group    int
}

// Params holds values extracted from a matched command.
type Params struct {
	Values map[string]string // placeholder name -> value (default when an optional one is omitted)
	Extra  map[string]string // trailing key=value pairs
}

// Matcher is the compiled, immutable form of one template string.
type Matcher struct {
	template string
	pattern  string
	re       *regexp.Regexp
	slots    []Slot
	extras   int // capture group holding the trailing key=value region
}

// Compile turns a template into an anchored, case-insensitive matcher.
func Compile(template string) (*Matcher, error) {
	trimmed := strings.TrimSpace(template)
	if trimmed == "" {
		return nil, &InvalidFormatError{Template: template, Reason: "format should be non-empty"}
	}

	body, slots, groups := buildPattern(ParseTemplate(trimmed))
	pattern := `(?i)^\s*` + body + extrasPattern + `\s*$`

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidFormatError{Template: template, Reason: err.Error()}
	}

	return &Matcher{
		template: template,
		pattern:  pattern,
		re:       re,
		slots:    slots,
		extras:   groups + 1,
	}, nil
}

// buildPattern renders parsed segments into a regular expression body.
// Whitespace the author wrote next to a required placeholder becomes a
// mandatory separator. Whitespace next to an optional placeholder moves
// inside its optional group so omitting the parameter also omits the
// spacing.
func buildPattern(segs []Segment) (string, []Slot, int) {
	var (
		b      strings.Builder
		slots  []Slot
		groups int
	)

	kind := func(i int) SegmentKind {
		if i < 0 || i >= len(segs) {
			return SegmentLiteral
		}
		return segs[i].Kind
	}

	for i, seg := range segs {
		switch seg.Kind {
		case SegmentLiteral:
			b.WriteString(literalPattern(seg.Text, kind(i-1), kind(i+1)))

		case SegmentRequired:
			groups++
			slots = append(slots, Slot{Name: seg.Name, group: groups})
			b.WriteString(valuePattern)

		case SegmentOptional:
			lead, trail := "", ""
			if i > 0 && segs[i-1].Kind == SegmentLiteral && endsWithSpace(segs[i-1].Text) &&
				!(isBlank(segs[i-1].Text) && kind(i-2) == SegmentOptional) {
				// A blank gap between two optionals belongs to the first one.
				lead = `\s+`
			}
			if i+1 < len(segs) && segs[i+1].Kind == SegmentLiteral && startsWithSpace(segs[i+1].Text) {
				trail = `\s+`
			}
			groups += 2
			slots = append(slots, Slot{Name: seg.Name, Default: seg.Default, Optional: true, group: groups})
			// Lazy: text that also parses as trailing extras keeps the default.
			b.WriteString(`\s*(` + lead + valuePattern + trail + `)??\s*`)
		}
	}

	return b.String(), slots, groups
}

// literalPattern quotes literal text, rewriting its edge whitespace by the
// kind of placeholder it touches.
func literalPattern(text string, prev, next SegmentKind) string {
	core := strings.TrimFunc(text, unicode.IsSpace)
	if core == "" {
		if prev == SegmentRequired && next == SegmentRequired {
			return `\s+`
		}
		if prev == SegmentLiteral && next == SegmentLiteral {
			return regexp.QuoteMeta(text)
		}
		return ""
	}

	lead := text[:len(text)-len(strings.TrimLeftFunc(text, unicode.IsSpace))]
	trail := text[len(strings.TrimRightFunc(text, unicode.IsSpace)):]
	return edgeSpace(lead, prev) + regexp.QuoteMeta(core) + edgeSpace(trail, next)
}

func edgeSpace(ws string, neighbor SegmentKind) string {
	switch {
	case ws == "":
		return ""
	case neighbor == SegmentRequired:
		return `\s+`
	case neighbor == SegmentOptional:
		return ""
	default:
		return regexp.QuoteMeta(ws)
	}
}

// Template returns the source template string.
func (m *Matcher) Template() string { return m.template }

// Pattern returns the compiled regular expression source.
func (m *Matcher) Pattern() string { return m.pattern }

// Slots returns the placeholders in template order.
func (m *Matcher) Slots() []Slot {
	out := make([]Slot, len(m.slots))
	copy(out, m.slots)
	return out
}

// Match tests text against the template, returning extracted parameters.
func (m *Matcher) Match(text string) (Params, bool) {
	idx := m.re.FindStringSubmatchIndex(text)
	if idx == nil {
		return Params{}, false
	}

	p := Params{
		Values: make(map[string]string, len(m.slots)),
		Extra:  map[string]string{},
	}
	for _, s := range m.slots {
		start, end := idx[2*s.group], idx[2*s.group+1]
		if start < 0 {
			if s.Optional {
				p.Values[s.Name] = s.Default
			}
			continue
		}
		p.Values[s.Name] = text[start:end]
	}

	if start, end := idx[2*m.extras], idx[2*m.extras+1]; start >= 0 && end > start {
		p.Extra = parseExtras(text[start:end])
	}
	return p, true
}

func endsWithSpace(s string) bool {
	return s != "" && unicode.IsSpace(rune(s[len(s)-1]))
}

func startsWithSpace(s string) bool {
	return s != "" && unicode.IsSpace(rune(s[0]))
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// parseExtras scans a region already accepted by extrasPattern.
func parseExtras(region string) map[string]string {
	out := map[string]string{}
	s := region
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		eq := strings.IndexByte(s, '=')
		if s == "" || eq <= 0 {
			return out
		}
		key := strings.TrimRightFunc(s[:eq], unicode.IsSpace)
		s = s[eq+1:]

		var value string
		switch {
		case s == "":
		case s[0] == '"' || s[0] == '\'':
			if end := strings.IndexByte(s[1:], s[0]); end >= 0 {
				value, s = s[1:end+1], s[end+2:]
			} else {
				value, s = s[1:], ""
			}
		case s[0] == '{':
			if end := matchBrace(s); end >= 0 {
				value, s = s[:end+1], s[end+1:]
			} else {
				value, s = nextToken(s)
			}
		default:
			value, s = nextToken(s)
		}
		out[key] = value
	}
}

func nextToken(s string) (string, string) {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}
