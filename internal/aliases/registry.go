package aliases

import (
	"log/slog"
	"strings"
	"sync/atomic"
)

// Entry is one compiled template bound to the alias that declared it.
type Entry struct {
	Alias   *Definition
	Display string // help form of the format the template came from
	Matcher *Matcher
}

// Match is the outcome of a successful lookup.
type Match struct {
	Alias   *Definition
	Format  string // template that matched
	Display string
	Command string // normalized text that was matched
	Params  Params
}

// generation is an immutable set of entries in declaration order.
type generation struct {
	entries []Entry
	help    []string
}

// Registry owns the live matcher set. Reload swaps whole generations, so a
// concurrent Match always sees one complete set.
type Registry struct {
	current atomic.Pointer[generation]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&generation{})
	return r
}

// Reload compiles defs into a fresh generation and publishes it. Disabled
// aliases and invalid formats are skipped. It returns the live matcher count.
func (r *Registry) Reload(defs []Definition) int {
	next := &generation{}
	defs = append([]Definition(nil), defs...)

	for i := range defs {
		def := &defs[i]
		if !def.IsEnabled() {
			slog.Debug("aliases: skipping disabled alias", "alias", def.Name)
			continue
		}
		for fi, f := range def.Formats {
			templates := f.templates()
			if len(templates) == 0 {
				slog.Warn("aliases: skipping format with no display or representation",
					"alias", def.Name, "format_index", fi)
				continue
			}
			display := f.displayOr(templates[0])
			added := false
			for _, t := range templates {
				m, err := Compile(t)
				if err != nil {
					slog.Warn("aliases: skipping invalid format", "alias", def.Name, "error", err)
					continue
				}
				next.entries = append(next.entries, Entry{Alias: def, Display: display, Matcher: m})
				added = true
			}
			if added {
				next.help = append(next.help, helpLine(display, def.Description))
			}
		}
	}

	r.current.Store(next)
	return len(next.entries)
}

// Match normalizes text and returns the first entry, in declaration order,
// whose matcher accepts it. normalize may be nil.
func (r *Registry) Match(text string, normalize func(string) string) (*Match, bool) {
	if normalize != nil {
		text = normalize(text)
	}
	gen := r.current.Load()
	for _, e := range gen.entries {
		params, ok := e.Matcher.Match(text)
		if !ok {
			continue
		}
		return &Match{
			Alias:   e.Alias,
			Format:  e.Matcher.Template(),
			Display: e.Display,
			Command: text,
			Params:  params,
		}, true
	}
	return nil, false
}

// Len returns the number of live matchers.
func (r *Registry) Len() int {
	return len(r.current.Load().entries)
}

// Entries returns a copy of the current generation.
func (r *Registry) Entries() []Entry {
	gen := r.current.Load()
	out := make([]Entry, len(gen.entries))
	copy(out, gen.entries)
	return out
}

// Commands returns help lines, optionally filtered by a case-insensitive substring.
func (r *Registry) Commands(filter string) []string {
	gen := r.current.Load()
	filter = strings.ToLower(strings.TrimSpace(filter))
	out := make([]string, 0, len(gen.help))
	for _, line := range gen.help {
		if filter == "" || strings.Contains(strings.ToLower(line), filter) {
			out = append(out, line)
		}
	}
	return out
}

func helpLine(display, description string) string {
	if description == "" {
		return display
	}
	return display + " - " + description
}
