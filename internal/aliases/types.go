// Package aliases compiles remote action alias formats into exact matchers
// and keeps the live, atomically replaced set of them.
package aliases

import (
	"encoding/json"
	"fmt"
)

// Definition is one action alias as listed by the automation API.
type Definition struct {
	Name        string   `json:"name"`
	Ref         string   `json:"ref,omitempty"`
	Pack        string   `json:"pack,omitempty"`
	Description string   `json:"description"`
	Enabled     *bool    `json:"enabled,omitempty"` // nil = enabled
	ActionRef   string   `json:"action_ref,omitempty"`
	Formats     []Format `json:"formats"`
	Ack         *Ack     `json:"ack,omitempty"`
	Extra       *Extra   `json:"extra,omitempty"`
}

// IsEnabled reports whether the alias should produce matchers.
func (d *Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// RequiresTwoFactor reports whether the alias declares a two-factor security block.
func (d *Definition) RequiresTwoFactor() bool {
	return d.Extra != nil && d.Extra.Security != nil && len(d.Extra.Security.TwoFactor) > 0 &&
		string(d.Extra.Security.TwoFactor) != "null"
}

// Ack controls the acknowledgment posted after a successful submission.
type Ack struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	AppendURL *bool  `json:"append_url,omitempty"`
	Format    string `json:"format,omitempty"`
}

// Extra carries free-form alias metadata. Only the security block is interpreted.
type Extra struct {
	Security *Security `json:"security,omitempty"`
}

// Security holds alias security options.
type Security struct {
	TwoFactor json.RawMessage `json:"twofactor,omitempty"`
}

// Format is either a bare template string or a display form with
// alternate representations. Both shapes appear on the wire.
type Format struct {
	Display        string   `json:"display,omitempty"`
	Representation []string `json:"representation,omitempty"`
	bare           bool
}

// UnmarshalJSON accepts "template" and {"display": ..., "representation": [...]}.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Format{Display: s, bare: true}
		return nil
	}
	var obj struct {
		Display        string   `json:"display"`
		Representation []string `json:"representation"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("alias format must be a string or an object: %w", err)
	}
	*f = Format{Display: obj.Display, Representation: obj.Representation}
	return nil
}

// MarshalJSON writes bare formats back as strings.
func (f Format) MarshalJSON() ([]byte, error) {
	if f.bare {
		return json.Marshal(f.Display)
	}
	return json.Marshal(struct {
		Display        string   `json:"display,omitempty"`
		Representation []string `json:"representation,omitempty"`
	}{f.Display, f.Representation})
}

// BareFormat builds a plain string format.
func BareFormat(template string) Format {
	return Format{Display: template, bare: true}
}

// templates returns the template strings this format compiles, in order:
// one per representation when present, else the display form.
func (f Format) templates() []string {
	if len(f.Representation) > 0 {
		return f.Representation
	}
	if f.Display != "" {
		return []string{f.Display}
	}
	return nil
}

// displayOr returns the display form, falling back to the given template.
func (f Format) displayOr(template string) string {
	if f.Display != "" {
		return f.Display
	}
	return template
}
