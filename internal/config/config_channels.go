package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack"`
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
}

type SlackConfig struct {
	Enabled      bool                `json:"enabled"`
	BotToken     string              `json:"bot_token"`
	AppToken     string              `json:"app_token"`
	AllowFrom    FlexibleStringSlice `json:"allow_from"`
	SuccessColor string              `json:"success_color,omitempty"` // attachment color for acks (default "dfdfdf")
	FailColor    string              `json:"fail_color,omitempty"`    // attachment color for errors (default "danger")
}

type DiscordConfig struct {
	Enabled      bool                `json:"enabled"`
	Token        string              `json:"token"`
	AllowFrom    FlexibleStringSlice `json:"allow_from"`
	SuccessColor string              `json:"success_color,omitempty"` // embed color, hex (default "dfdfdf")
	FailColor    string              `json:"fail_color,omitempty"`    // embed color, hex (default "f35a00")
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

// EnabledNames returns enabled channel names in a stable order.
func (c ChannelsConfig) EnabledNames() []string {
	var names []string
	if c.Slack.Enabled {
		names = append(names, "slack")
	}
	if c.Discord.Enabled {
		names = append(names, "discord")
	}
	if c.Telegram.Enabled {
		names = append(names, "telegram")
	}
	return names
}
