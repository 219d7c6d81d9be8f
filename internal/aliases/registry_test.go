package aliases

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func def(name string, formats ...string) Definition {
	d := Definition{Name: name, Description: name + " description"}
	for _, f := range formats {
		d.Formats = append(d.Formats, BareFormat(f))
	}
	return d
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	r.Reload([]Definition{
		def("a", "deploy {{app}}"),
		def("b", "deploy {{app}} to {{env}}"),
	})

	m, ok := r.Match("deploy web to prod", nil)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Alias.Name != "a" {
		t.Errorf("matched alias %q, want a", m.Alias.Name)
	}
	if m.Params.Values["app"] != "web to prod" {
		t.Errorf("app = %q", m.Params.Values["app"])
	}
}

func TestRegistrySkipsDisabled(t *testing.T) {
	disabled := def("off", "secret")
	disabled.Enabled = boolPtr(false)
	enabled := def("on", "public")
	enabled.Enabled = boolPtr(true)

	r := NewRegistry()
	if n := r.Reload([]Definition{disabled, enabled}); n != 1 {
		t.Fatalf("Reload = %d matchers, want 1", n)
	}
	if _, ok := r.Match("secret", nil); ok {
		t.Error("disabled alias matched")
	}
	if _, ok := r.Match("public", nil); !ok {
		t.Error("enabled alias did not match")
	}
}

func TestRegistrySkipsInvalidFormats(t *testing.T) {
	d := Definition{
		Name: "mixed",
		Formats: []Format{
			BareFormat(""),
			{},
			BareFormat("ping {{host}}"),
		},
	}
	r := NewRegistry()
	if n := r.Reload([]Definition{d}); n != 1 {
		t.Fatalf("Reload = %d matchers, want 1", n)
	}
	m, ok := r.Match("ping web-1", nil)
	if !ok || m.Params.Values["host"] != "web-1" {
		t.Fatalf("Match = %+v, %v", m, ok)
	}
}

func TestRegistryRepresentations(t *testing.T) {
	var d Definition
	raw := `{
		"name": "restart",
		"description": "restart a service",
		"formats": [
			"bounce {{svc}}",
			{"display": "restart {{svc}}", "representation": ["restart {{svc}}", "reboot {{svc}} please"]}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	r := NewRegistry()
	if n := r.Reload([]Definition{d}); n != 3 {
		t.Fatalf("Reload = %d matchers, want 3", n)
	}

	m, ok := r.Match("reboot nginx please", nil)
	if !ok {
		t.Fatal("representation did not match")
	}
	if m.Format != "reboot {{svc}} please" || m.Display != "restart {{svc}}" {
		t.Errorf("format=%q display=%q", m.Format, m.Display)
	}
	if m.Params.Values["svc"] != "nginx" {
		t.Errorf("svc = %q", m.Params.Values["svc"])
	}

	help := r.Commands("")
	want := []string{"bounce {{svc}} - restart a service", "restart {{svc}} - restart a service"}
	if strings.Join(help, "|") != strings.Join(want, "|") {
		t.Errorf("Commands = %v, want %v", help, want)
	}
	if got := r.Commands("BOUNCE"); len(got) != 1 {
		t.Errorf("filtered Commands = %v", got)
	}
}

func TestRegistryNormalize(t *testing.T) {
	r := NewRegistry()
	r.Reload([]Definition{def("say", `say "{{text}}"`)})

	smart := func(s string) string {
		return strings.NewReplacer("“", `"`, "”", `"`).Replace(s)
	}
	m, ok := r.Match("say “hello”", smart)
	if !ok {
		t.Fatal("normalized text did not match")
	}
	if m.Command != `say "hello"` {
		t.Errorf("Command = %q", m.Command)
	}
}

func TestRegistryReloadReplaces(t *testing.T) {
	r := NewRegistry()
	r.Reload([]Definition{def("old", "old command")})
	r.Reload([]Definition{def("new", "new command")})

	if _, ok := r.Match("old command", nil); ok {
		t.Error("previous generation still live")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryReloadIsAtomic(t *testing.T) {
	genA := []Definition{def("a1", "a one"), def("a2", "a two"), def("a3", "a three")}
	genB := []Definition{def("b1", "b one"), def("b2", "b two"), def("b3", "b three"), def("b4", "b four")}

	r := NewRegistry()
	r.Reload(genA)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				entries := r.Entries()
				prefix := entries[0].Alias.Name[:1]
				for _, e := range entries {
					if e.Alias.Name[:1] != prefix {
						select {
						case errs <- "mixed generation observed":
						default:
						}
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			r.Reload(genB)
		} else {
			r.Reload(genA)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}

func TestRequiresTwoFactor(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{"name":"x","formats":[]}`, false},
		{`{"name":"x","formats":[],"extra":{}}`, false},
		{`{"name":"x","formats":[],"extra":{"security":{"twofactor":null}}}`, false},
		{`{"name":"x","formats":[],"extra":{"security":{"twofactor":true}}}`, true},
		{`{"name":"x","formats":[],"extra":{"security":{"twofactor":{"approvers":["ops"]}}}}`, true},
	}
	for _, tt := range tests {
		var d Definition
		if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if got := d.RequiresTwoFactor(); got != tt.want {
			t.Errorf("RequiresTwoFactor(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
