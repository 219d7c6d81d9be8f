package bus

import "context"

// InboundMessage represents a message received from a channel (Slack, Discord, Telegram).
// Channels only publish text addressed to the bot, with any mention stripped.
type InboundMessage struct {
	Channel  string            `json:"channel"`             // channel name, e.g. "slack"
	SenderID string            `json:"sender_id"`           // platform user id
	UserName string            `json:"user_name,omitempty"` // display name used as the execution user
	ChatID   string            `json:"chat_id"`             // room / conversation id
	Content  string            `json:"content"`
	PeerKind string            `json:"peer_kind,omitempty"` // "direct" or "group"
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"` // protocol.Meta* keys
}

// Meta returns a metadata value, tolerating a nil map.
func (m OutboundMessage) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// MessageRouter abstracts inbound/outbound message routing between channels and the dispatcher.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
