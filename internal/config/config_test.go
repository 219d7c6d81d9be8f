package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.ST2.APIURL != "http://localhost:9101" {
		t.Errorf("APIURL = %q", cfg.ST2.APIURL)
	}
	if cfg.Reload.IntervalSec != 120 || cfg.Chat.MaxMessageLength != 500 {
		t.Errorf("reload=%d maxlen=%d", cfg.Reload.IntervalSec, cfg.Chat.MaxMessageLength)
	}
	if cfg.Channels.Slack.SuccessColor != "dfdfdf" || cfg.Channels.Slack.FailColor != "danger" {
		t.Errorf("slack colors = %q/%q", cfg.Channels.Slack.SuccessColor, cfg.Channels.Slack.FailColor)
	}
	if !cfg.ExitOnInitialFailure() {
		t.Error("initial failure should be fatal by default")
	}
	if cfg.NotificationRoute() != "hubot" {
		t.Errorf("route = %q", cfg.NotificationRoute())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		// json5 comments are allowed
		st2: {api_url: "https://st2.example.com/api", route: "chatops"},
		reload: {interval_sec: 30},
		channels: {slack: {enabled: true, bot_token: "xoxb-file", app_token: "xapp-file"}},
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ST2_AUTH_TOKEN", "tok-env")
	t.Setenv("ST2_COMMANDS_RELOAD_INTERVAL", "45")
	t.Setenv("HUBOT_2FA", "ops.confirm")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ST2.APIURL != "https://st2.example.com/api" {
		t.Errorf("APIURL = %q", cfg.ST2.APIURL)
	}
	if cfg.ST2.AuthToken != "tok-env" {
		t.Errorf("AuthToken = %q", cfg.ST2.AuthToken)
	}
	if cfg.Reload.IntervalSec != 45 {
		t.Errorf("env should win: interval = %d", cfg.Reload.IntervalSec)
	}
	if !cfg.TwoFactor.Enabled() || cfg.TwoFactor.Action != "ops.confirm" {
		t.Errorf("two factor = %+v", cfg.TwoFactor)
	}
	if cfg.NotificationRoute() != "chatops" {
		t.Errorf("route = %q", cfg.NotificationRoute())
	}
	if cfg.Credential() != CredentialToken {
		t.Errorf("credential = %s", cfg.Credential())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reload.IntervalSec != 120 {
		t.Errorf("interval = %d", cfg.Reload.IntervalSec)
	}
}

func TestLegacyAPIEnv(t *testing.T) {
	t.Setenv("ST2_API_URL", "")
	t.Setenv("ST2_API", "http://legacy:9101")
	cfg, _ := Load(filepath.Join(t.TempDir(), "absent.json"))
	if cfg.ST2.APIURL != "http://legacy:9101" {
		t.Errorf("APIURL = %q", cfg.ST2.APIURL)
	}

	t.Setenv("ST2_API_URL", "http://current:9101")
	cfg, _ = Load(filepath.Join(t.TempDir(), "absent.json"))
	if cfg.ST2.APIURL != "http://current:9101" {
		t.Errorf("ST2_API_URL should win, got %q", cfg.ST2.APIURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"password without auth url", func(c *Config) {
			c.ST2.Username, c.ST2.Password = "bot", "secret"
		}, "should only be used together"},
		{"full password triple", func(c *Config) {
			c.ST2.Username, c.ST2.Password, c.ST2.AuthURL = "bot", "secret", "https://st2/auth"
		}, ""},
		{"bad cron", func(c *Config) { c.Reload.Cron = "every now and then" }, "reload.cron"},
		{"cron replaces interval", func(c *Config) {
			c.Reload.Cron, c.Reload.IntervalSec = "*/5 * * * *", 0
		}, ""},
		{"zero interval", func(c *Config) { c.Reload.IntervalSec = 0 }, "interval_sec"},
		{"relative api url", func(c *Config) { c.ST2.APIURL = "st2/api" }, "api_url"},
		{"slack without tokens", func(c *Config) { c.Channels.Slack.Enabled = true }, "channels.slack"},
		{"unknown default platform", func(c *Config) { c.Chat.DefaultPlatform = "irc" }, "default_platform"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			_, err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWarnsOnMultipleCredentials(t *testing.T) {
	cfg := Default()
	cfg.ST2.APIKey = "key"
	cfg.ST2.AuthToken = "token"
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "using api_key") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestStreamBaseURL(t *testing.T) {
	tests := []struct {
		api, stream, want string
	}{
		{"https://st2.example.com/api", "", "https://st2.example.com/stream"},
		{"https://st2.example.com/api/", "", "https://st2.example.com/stream"},
		{"http://localhost:9101", "", "http://localhost:9102"},
		{"http://localhost:9101", "http://events:9999/", "http://events:9999"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.ST2.APIURL, cfg.ST2.StreamURL = tt.api, tt.stream
		got, err := cfg.StreamBaseURL()
		if err != nil || got != tt.want {
			t.Errorf("StreamBaseURL(%q, %q) = %q, %v; want %q", tt.api, tt.stream, got, err, tt.want)
		}
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.ST2.APIKey = "real-key"
	cfg.Channels.Discord.Token = "real-token"
	cp := cfg.MaskedCopy()
	if cp.ST2.APIKey != secretMask || cp.Channels.Discord.Token != secretMask {
		t.Errorf("secrets not masked: %+v", cp.ST2)
	}
	if cfg.ST2.APIKey != "real-key" {
		t.Error("original modified")
	}
}
