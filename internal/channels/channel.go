// Package channels provides the chat platform abstraction layer.
// Channels connect external platforms (Slack, Discord, Telegram) to the
// dispatcher via the message bus. A channel only publishes text addressed
// to the bot: direct messages, or group messages that mention it, with the
// mention stripped.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/nextlevelbuilder/opsclaw/internal/bus"
)

// Peer kinds carried on inbound messages.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram", "discord", "slack").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// Normalizer is implemented by channels whose platform rewrites user text
// (smart quotes, link markup) before it reaches the bot. The returned text
// is what alias formats are matched against.
type Normalizer interface {
	Normalize(text string) string
}

// DirectSender is implemented by channels that can address a user directly,
// used for whispered notifications.
type DirectSender interface {
	SendDirect(ctx context.Context, userID string, msg bus.OutboundMessage) error
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.MessageRouter
	running   atomic.Bool
	allowList []string
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, router bus.MessageRouter, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       router,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Bus returns the message router.
func (c *BaseChannel) Bus() bus.MessageRouter { return c.bus }

// Normalize applies the platform-independent cleanup. Channels with extra
// markup override it.
func (c *BaseChannel) Normalize(text string) string { return NormalizeCommand(text) }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart, _ := strings.Cut(senderID, "|")

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == allowed || senderID == trimmed || idPart == trimmed {
			return true
		}
		if userPart != "" && strings.EqualFold(userPart, trimmed) {
			return true
		}
	}
	return false
}

// HandleMessage publishes a bot-addressed message to the bus.
// peerKind should be PeerDirect or PeerGroup.
func (c *BaseChannel) HandleMessage(senderID, userName, chatID, content string, metadata map[string]string, peerKind string) {
	if !c.IsAllowed(senderID) {
		return
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	userID, _, _ := strings.Cut(senderID, "|")
	if userName == "" {
		userName = userID
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		SenderID: userID,
		UserName: userName,
		ChatID:   chatID,
		Content:  content,
		PeerKind: peerKind,
		Metadata: metadata,
	})
}
