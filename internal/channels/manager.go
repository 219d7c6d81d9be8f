package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

// ErrNoRoute is returned when a payload names no deliverable channel.
var ErrNoRoute = errors.New("no channel to deliver to")

// ManagerOptions configures outbound delivery.
type ManagerOptions struct {
	MaxMessageLength int    // display width; 0 = unlimited
	DefaultPlatform  string // used when a payload names no platform
}

// Manager manages all registered channels, handling their lifecycle
// and routing outbound messages to the correct channel.
type Manager struct {
	channels     map[string]Channel
	bus          bus.MessageRouter
	opts         ManagerOptions
	dispatchTask *asyncTask
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new channel manager.
// Channels are registered externally via RegisterChannel.
func NewManager(router bus.MessageRouter, opts ManagerOptions) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      router,
		opts:     opts,
	}
}

// StartAll starts all registered channels and the outbound dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchTask = &asyncTask{cancel: cancel, done: make(chan struct{})}
	go m.dispatchOutbound(dispatchCtx, m.dispatchTask.done)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	slog.Info("starting all channels")

	var errs []error
	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == len(m.channels) {
		return fmt.Errorf("no channel could start: %w", errors.Join(errs...))
	}

	slog.Info("all channels started")
	return nil
}

// StopAll gracefully stops all channels and the outbound dispatch loop.
func (m *Manager) StopAll(ctx context.Context) error {
	slog.Info("stopping all channels")

	// The dispatch loop takes the read lock per message, so it is drained
	// before the write lock is held.
	m.mu.Lock()
	task := m.dispatchTask
	m.dispatchTask = nil
	m.mu.Unlock()
	if task != nil {
		task.cancel()
		<-task.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}

	slog.Info("all channels stopped")
	return nil
}

// dispatchOutbound consumes outbound messages from the bus and routes them
// to the appropriate channel.
func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	slog.Info("outbound dispatcher started")

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}
		if err := m.deliver(ctx, msg); err != nil {
			slog.Error("error sending message to channel",
				"channel", msg.Channel,
				"error", err,
			)
		}
	}
}

// PostPayload delivers a notification pushed by the automation platform.
// The platform is taken from extra.platform, then a "platform:" prefix on
// the channel, then the configured default, then the only registered
// channel.
func (m *Manager) PostPayload(ctx context.Context, p protocol.ChatPayload) error {
	platform, room := m.route(p)
	if platform == "" {
		return fmt.Errorf("%w: channel %q", ErrNoRoute, p.Channel)
	}

	meta := map[string]string{}
	if p.User != "" {
		meta[protocol.MetaUser] = p.User
	}
	if p.Whisper {
		meta[protocol.MetaWhisper] = "true"
	}
	if color := p.ExtraString("color"); color != "" {
		meta[protocol.MetaColor] = color
	}

	return m.deliver(ctx, bus.OutboundMessage{
		Channel:  platform,
		ChatID:   room,
		Content:  p.Message,
		Metadata: meta,
	})
}

func (m *Manager) route(p protocol.ChatPayload) (platform, room string) {
	if platform = p.ExtraString("platform"); platform != "" {
		_, room = protocol.SplitPlatform(p.Channel, m.hasChannel)
		return platform, room
	}
	if platform, room = protocol.SplitPlatform(p.Channel, m.hasChannel); platform != "" {
		return platform, room
	}
	if m.opts.DefaultPlatform != "" {
		return m.opts.DefaultPlatform, p.Channel
	}
	if names := m.GetEnabledChannels(); len(names) == 1 {
		return names[0], p.Channel
	}
	return "", p.Channel
}

func (m *Manager) hasChannel(name string) bool {
	_, ok := m.GetChannel(name)
	return ok
}

func (m *Manager) deliver(ctx context.Context, msg bus.OutboundMessage) error {
	channel, ok := m.GetChannel(msg.Channel)
	if !ok {
		return fmt.Errorf("channel %s not found", msg.Channel)
	}

	msg.Content = Truncate(msg.Content, m.opts.MaxMessageLength)

	if msg.Meta(protocol.MetaWhisper) == "true" {
		if ds, ok := channel.(DirectSender); ok && msg.Meta(protocol.MetaUser) != "" {
			return ds.SendDirect(ctx, msg.Meta(protocol.MetaUser), msg)
		}
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for %s", msg.Channel)
	}
	return channel.Send(ctx, msg)
}

// Normalizer returns the command normalizer for a channel.
func (m *Manager) Normalizer(name string) func(string) string {
	if ch, ok := m.GetChannel(name); ok {
		if n, ok := ch.(Normalizer); ok {
			return n.Normalize
		}
	}
	return NormalizeCommand
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]any, len(m.channels))
	for name, channel := range m.channels {
		status[name] = map[string]any{
			"enabled": true,
			"running": channel.IsRunning(),
		}
	}
	return status
}

// GetEnabledChannels returns the names of all registered channels, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// Truncate shortens s to maxWidth display columns, appending "..." when
// cut. maxWidth <= 0 leaves s unchanged.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
