package protocol

import "strings"

// ChatPayload is a message pushed by the automation platform for delivery
// to chat, either over the event stream or the webhook.
type ChatPayload struct {
	Channel string         `json:"channel"`
	User    string         `json:"user,omitempty"`
	Whisper bool           `json:"whisper,omitempty"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// ExtraString returns a string value from Extra, or "".
func (p ChatPayload) ExtraString(key string) string {
	if p.Extra == nil {
		return ""
	}
	s, _ := p.Extra[key].(string)
	return s
}

// SplitPlatform splits a "platform:room" channel into its parts. A channel
// without a known-looking prefix is returned whole with an empty platform.
func SplitPlatform(channel string, known func(string) bool) (platform, room string) {
	if before, after, ok := strings.Cut(channel, ":"); ok && known(before) {
		return before, after
	}
	return "", channel
}
