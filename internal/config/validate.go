package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/adhocore/gronx"
)

// ValidationError lists every configuration problem found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// CredentialKind names the authentication method the relay will use.
type CredentialKind string

const (
	CredentialNone     CredentialKind = "none"
	CredentialAPIKey   CredentialKind = "api_key"
	CredentialToken    CredentialKind = "auth_token"
	CredentialPassword CredentialKind = "username_password"
)

// Credential returns the effective credential kind. API key takes precedence
// over a static token, which takes precedence over username/password.
func (c *Config) Credential() CredentialKind {
	switch {
	case c.ST2.APIKey != "":
		return CredentialAPIKey
	case c.ST2.AuthToken != "":
		return CredentialToken
	case c.ST2.Username != "" || c.ST2.Password != "":
		return CredentialPassword
	default:
		return CredentialNone
	}
}

// Validate checks the config once at startup. It returns non-fatal warnings
// and a *ValidationError when the relay cannot run with these settings.
func (c *Config) Validate() ([]string, error) {
	var problems, warnings []string

	if u, err := url.Parse(c.ST2.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("st2.api_url %q is not an absolute URL", c.ST2.APIURL))
	}
	if c.ST2.StreamURL != "" {
		if u, err := url.Parse(c.ST2.StreamURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("st2.stream_url %q is not an absolute URL", c.ST2.StreamURL))
		}
	}

	usingPassword := c.ST2.Username != "" || c.ST2.Password != ""
	if usingPassword && (c.ST2.Username == "" || c.ST2.Password == "" || c.ST2.AuthURL == "") {
		problems = append(problems, "st2.username, st2.password and st2.auth_url should only be used together")
	}

	kinds := 0
	for _, set := range []bool{c.ST2.APIKey != "", c.ST2.AuthToken != "", usingPassword} {
		if set {
			kinds++
		}
	}
	switch {
	case kinds == 0:
		warnings = append(warnings, "no st2 credentials configured; requests will be unauthenticated")
	case kinds > 1:
		warnings = append(warnings, fmt.Sprintf("multiple st2 credentials configured; using %s", c.Credential()))
	}

	if c.Reload.Cron != "" {
		if !gronx.New().IsValid(c.Reload.Cron) {
			problems = append(problems, fmt.Sprintf("reload.cron %q is not a valid cron expression", c.Reload.Cron))
		}
	} else if c.Reload.IntervalSec <= 0 {
		problems = append(problems, "reload.interval_sec must be positive")
	}

	if c.Chat.MaxMessageLength < 0 {
		problems = append(problems, "chat.max_message_length must not be negative")
	}
	if c.Chat.MaxConcurrentDispatch <= 0 {
		problems = append(problems, "chat.max_concurrent_dispatch must be positive")
	}
	if c.TwoFactor.Enabled() {
		if c.TwoFactor.TTLSec <= 0 {
			problems = append(problems, "two_factor.ttl_sec must be positive")
		}
		if c.TwoFactor.MaxPending <= 0 {
			problems = append(problems, "two_factor.max_pending must be positive")
		}
	}
	if c.ST2.StreamMaxReconnects < 0 {
		problems = append(problems, "st2.stream_max_reconnects must not be negative")
	}

	if c.Chat.DefaultPlatform != "" && !contains(c.Channels.EnabledNames(), c.Chat.DefaultPlatform) {
		problems = append(problems, fmt.Sprintf("chat.default_platform %q is not an enabled channel", c.Chat.DefaultPlatform))
	}
	if c.Channels.Slack.Enabled && (c.Channels.Slack.BotToken == "" || c.Channels.Slack.AppToken == "") {
		problems = append(problems, "channels.slack requires bot_token and app_token")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		problems = append(problems, "channels.discord requires token")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		problems = append(problems, "channels.telegram requires token")
	}
	if len(c.Channels.EnabledNames()) == 0 {
		warnings = append(warnings, "no chat channels enabled; only the webhook will deliver messages")
	}

	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		problems = append(problems, fmt.Sprintf("telemetry.protocol %q must be grpc or http", c.Telemetry.Protocol))
	}

	if len(problems) > 0 {
		return warnings, &ValidationError{Problems: problems}
	}
	return warnings, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
