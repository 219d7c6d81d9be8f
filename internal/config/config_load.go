package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

const (
	defaultAPIURL      = "http://localhost:9101"
	defaultStreamPort  = "9102"
	defaultWebhookPath = "/hubot/st2"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	exitOnFailure := true
	return &Config{
		ST2: ST2Config{
			APIURL:              defaultAPIURL,
			RequestTimeoutSec:   30,
			StreamMaxReconnects: 3,
		},
		Chat: ChatConfig{
			MaxMessageLength:      500,
			MaxConcurrentDispatch: 8,
			HelpCommand:           "help",
		},
		TwoFactor: TwoFactorConfig{
			TTLSec:     300,
			MaxPending: 256,
		},
		Reload: ReloadConfig{
			IntervalSec:          120,
			ExitOnInitialFailure: &exitOnFailure,
		},
		Channels: ChannelsConfig{
			Slack:   SlackConfig{SuccessColor: "dfdfdf", FailColor: "danger"},
			Discord: DiscordConfig{SuccessColor: "dfdfdf", FailColor: "f35a00"},
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			WebhookPath:  defaultWebhookPath,
			RateLimitRPM: 60,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	// ST2_API is the legacy name; ST2_API_URL wins when both are set.
	envStr("ST2_API", &c.ST2.APIURL)
	envStr("ST2_API_URL", &c.ST2.APIURL)
	envStr("ST2_STREAM_URL", &c.ST2.StreamURL)
	envStr("ST2_AUTH_URL", &c.ST2.AuthURL)
	envStr("ST2_WEBUI_URL", &c.ST2.WebUIURL)
	envStr("ST2_AUTH_USERNAME", &c.ST2.Username)
	envStr("ST2_AUTH_PASSWORD", &c.ST2.Password)
	envStr("ST2_AUTH_TOKEN", &c.ST2.AuthToken)
	envStr("ST2_API_KEY", &c.ST2.APIKey)
	envStr("ST2_ROUTE", &c.ST2.Route)
	envInt("ST2_COMMANDS_RELOAD_INTERVAL", &c.Reload.IntervalSec)
	envInt("ST2_MAX_MESSAGE_LENGTH", &c.Chat.MaxMessageLength)
	envStr("ST2_SLACK_SUCCESS_COLOR", &c.Channels.Slack.SuccessColor)
	envStr("ST2_SLACK_FAIL_COLOR", &c.Channels.Slack.FailColor)
	envStr("HUBOT_2FA", &c.TwoFactor.Action)

	envStr("OPSCLAW_RELOAD_CRON", &c.Reload.Cron)
	envStr("OPSCLAW_DEFAULT_PLATFORM", &c.Chat.DefaultPlatform)
	envStr("OPSCLAW_SLACK_BOT_TOKEN", &c.Channels.Slack.BotToken)
	envStr("OPSCLAW_SLACK_APP_TOKEN", &c.Channels.Slack.AppToken)
	envStr("OPSCLAW_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("OPSCLAW_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)

	// Auto-enable channels if credentials are provided via env
	if c.Channels.Slack.BotToken != "" && c.Channels.Slack.AppToken != "" {
		c.Channels.Slack.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}

	// Gateway host/port
	envStr("OPSCLAW_HOST", &c.Gateway.Host)
	if v := os.Getenv("OPSCLAW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Telemetry
	envStr("OPSCLAW_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("OPSCLAW_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("OPSCLAW_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("OPSCLAW_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OPSCLAW_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Watch paths from env (comma-separated)
	if v := os.Getenv("OPSCLAW_RELOAD_WATCH"); v != "" {
		c.Reload.WatchPaths = strings.Split(v, ",")
	}
}

// StreamBaseURL returns the event stream base URL. Without an explicit
// stream URL it is derived from the API URL: a trailing "/api" path becomes
// "/stream", otherwise the stream port 9102 is used on the same host.
func (c *Config) StreamBaseURL() (string, error) {
	if c.ST2.StreamURL != "" {
		return strings.TrimRight(c.ST2.StreamURL, "/"), nil
	}
	u, err := url.Parse(c.ST2.APIURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	path := strings.TrimRight(u.Path, "/")
	if strings.HasSuffix(path, "/api") {
		u.Path = strings.TrimSuffix(path, "/api") + "/stream"
	} else {
		u.Host = u.Hostname() + ":" + defaultStreamPort
	}
	return strings.TrimRight(u.String(), "/"), nil
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by the doctor command to print effective settings.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.ST2.Password)
	maskNonEmpty(&cp.ST2.AuthToken)
	maskNonEmpty(&cp.ST2.APIKey)
	maskNonEmpty(&cp.Channels.Slack.BotToken)
	maskNonEmpty(&cp.Channels.Slack.AppToken)
	maskNonEmpty(&cp.Channels.Discord.Token)
	maskNonEmpty(&cp.Channels.Telegram.Token)
	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
