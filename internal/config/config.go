package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the OpsClaw relay.
type Config struct {
	ST2       ST2Config       `json:"st2"`
	Chat      ChatConfig      `json:"chat"`
	TwoFactor TwoFactorConfig `json:"two_factor"`
	Reload    ReloadConfig    `json:"reload"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// ST2Config points at the automation API and carries its credentials.
// Exactly one of APIKey, AuthToken or Username+Password+AuthURL should be set.
type ST2Config struct {
	APIURL              string `json:"api_url"`                         // e.g. "https://st2.example.com/api"
	StreamURL           string `json:"stream_url,omitempty"`            // derived from APIURL when empty
	AuthURL             string `json:"auth_url,omitempty"`              // required with Username/Password
	WebUIURL            string `json:"webui_url,omitempty"`             // enables "details available at" links
	Username            string `json:"username,omitempty"`
	Password            string `json:"password,omitempty"`
	AuthToken           string `json:"auth_token,omitempty"`
	APIKey              string `json:"api_key,omitempty"`
	Route               string `json:"route,omitempty"`                 // notification route tag (default "hubot")
	RequestTimeoutSec   int    `json:"request_timeout_sec,omitempty"`   // per API call (default 30)
	StreamMaxReconnects int    `json:"stream_max_reconnects,omitempty"` // dropped-connection retries before fatal (default 3)
	InsecureSkipVerify  bool   `json:"insecure_skip_verify,omitempty"`  // accept self-signed API certificates
}

// ChatConfig tunes how commands are read from and answered in chat.
type ChatConfig struct {
	MaxMessageLength      int    `json:"max_message_length,omitempty"`      // outbound truncation (default 500, 0 = unlimited)
	MaxConcurrentDispatch int    `json:"max_concurrent_dispatch,omitempty"` // parallel submissions (default 8)
	DefaultPlatform       string `json:"default_platform,omitempty"`        // channel used for payloads with no platform hint
	HelpCommand           string `json:"help_command,omitempty"`            // builtin help trigger (default "help", "-" disables)
}

// TwoFactorConfig enables confirmation-gated aliases when Action is set.
type TwoFactorConfig struct {
	Action     string `json:"action,omitempty"`      // action ref executed to request confirmation
	TTLSec     int    `json:"ttl_sec,omitempty"`     // pending lifetime (default 300)
	MaxPending int    `json:"max_pending,omitempty"` // pending table bound (default 256)
}

// Enabled reports whether two-factor gating is active.
func (t TwoFactorConfig) Enabled() bool { return t.Action != "" }

// ReloadConfig controls alias re-synchronization.
type ReloadConfig struct {
	IntervalSec          int      `json:"interval_sec,omitempty"`            // fixed timer (default 120)
	Cron                 string   `json:"cron,omitempty"`                    // cron expression, replaces the timer when set
	WatchPaths           []string `json:"watch_paths,omitempty"`             // reload when any of these files change
	ExitOnInitialFailure *bool    `json:"exit_on_initial_failure,omitempty"` // default true
}

// GatewayConfig configures the HTTP listener for the webhook and health endpoints.
type GatewayConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	WebhookPath  string `json:"webhook_path,omitempty"`   // default "/hubot/st2"
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"` // per remote address (default 60, 0 = unlimited)
}

// Addr returns the listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "opsclaw")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// RequestTimeout returns the per-call API timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.ST2.RequestTimeoutSec) * time.Second
}

// ReloadInterval returns the alias reload timer period.
func (c *Config) ReloadInterval() time.Duration {
	return time.Duration(c.Reload.IntervalSec) * time.Second
}

// TwoFactorTTL returns how long a pending confirmation stays open.
func (c *Config) TwoFactorTTL() time.Duration {
	return time.Duration(c.TwoFactor.TTLSec) * time.Second
}

// ExitOnInitialFailure reports whether a failed startup alias load is fatal.
func (c *Config) ExitOnInitialFailure() bool {
	return c.Reload.ExitOnInitialFailure == nil || *c.Reload.ExitOnInitialFailure
}

// NotificationRoute returns the route tag sent with executions.
func (c *Config) NotificationRoute() string {
	if c.ST2.Route == "" {
		return protocol.DefaultNotificationRoute
	}
	return c.ST2.Route
}

// HelpEnabled reports whether the builtin help command answers.
func (c *Config) HelpEnabled() bool {
	return c.Chat.HelpCommand != "-"
}
