package channels

import (
	"html"
	"regexp"
	"strings"
)

var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`,
	"‘", "'", "’", "'", "‚", "'",
)

// NormalizeCommand replaces typographic quotes with ASCII ones and trims
// surrounding whitespace, so quoted extras parse the same on every client.
func NormalizeCommand(text string) string {
	return strings.TrimSpace(smartQuotes.Replace(text))
}

// slackMarkup matches <target|label> and <target> spans.
var slackMarkup = regexp.MustCompile(`<([^<>|]+)(?:\|([^<>]*))?>`)

// NormalizeSlack undoes Slack's message markup: links and mailto targets
// are replaced by their visible label, labelled user and channel
// references become "@name" and "#name", and HTML entities are decoded.
func NormalizeSlack(text string) string {
	text = slackMarkup.ReplaceAllStringFunc(text, func(span string) string {
		m := slackMarkup.FindStringSubmatch(span)
		target, label := m[1], m[2]
		switch {
		case strings.HasPrefix(target, "#"):
			if label != "" {
				return "#" + strings.TrimLeft(label, "#")
			}
			return span
		case strings.HasPrefix(target, "@"), strings.HasPrefix(target, "!"):
			if label != "" {
				return "@" + strings.TrimLeft(label, "@")
			}
			return span
		case label != "":
			return label
		default:
			return strings.TrimPrefix(target, "mailto:")
		}
	})
	return NormalizeCommand(html.UnescapeString(text))
}
