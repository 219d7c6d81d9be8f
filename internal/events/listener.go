// Package events consumes the automation platform's event stream and fans
// events out to chat posting, two-factor confirmation and alias reloads.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/opsclaw/internal/st2"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

// Source is a subscribable event stream.
type Source interface {
	Listen(ctx context.Context, opts st2.StreamOptions, handle func(st2.Event)) error
}

// Poster delivers a chat payload to the right platform.
type Poster interface {
	PostPayload(ctx context.Context, p protocol.ChatPayload) error
}

// Confirmer resumes a two-factor gated execution.
type Confirmer interface {
	Confirm(ctx context.Context, token string) bool
}

// Listener demultiplexes stream events by name.
type Listener struct {
	source    Source
	poster    Poster
	confirmer Confirmer // nil when two-factor is disabled
	onAlias   func()    // nil disables reload on alias changes
	opts      st2.StreamOptions
}

// NewListener creates a listener. confirmer and onAliasChange may be nil.
func NewListener(source Source, poster Poster, confirmer Confirmer, onAliasChange func(), opts st2.StreamOptions) *Listener {
	return &Listener{
		source:    source,
		poster:    poster,
		confirmer: confirmer,
		onAlias:   onAliasChange,
		opts:      opts,
	}
}

// Run holds the subscription until ctx is done. A stream failure is
// returned and is fatal for the relay.
func (l *Listener) Run(ctx context.Context) error {
	return l.source.Listen(ctx, l.opts, func(ev st2.Event) { l.Handle(ctx, ev) })
}

type envelope struct {
	Payload json.RawMessage `json:"payload"`
}

// Handle processes one event. Malformed and unrecognized events are logged
// and dropped.
func (l *Listener) Handle(ctx context.Context, ev st2.Event) {
	switch ev.Name {
	case protocol.EventChatopsAnnouncement:
		slog.Debug("chatops message received", "data", ev.Data)
		var p protocol.ChatPayload
		if !decodePayload(ev, &p) {
			return
		}
		if err := l.poster.PostPayload(ctx, p); err != nil {
			slog.Warn("failed to post chatops message", "channel", p.Channel, "error", err)
		}

	case protocol.EventTwoFactorConfirmed:
		if l.confirmer == nil {
			return
		}
		slog.Debug("two-factor confirmation received", "data", ev.Data)
		var p struct {
			UUID string `json:"uuid"`
		}
		if !decodePayload(ev, &p) || p.UUID == "" {
			return
		}
		l.confirmer.Confirm(ctx, p.UUID)

	case protocol.EventAliasCreate, protocol.EventAliasUpdate, protocol.EventAliasDelete:
		if l.onAlias != nil {
			slog.Debug("alias changed, scheduling reload", "event", ev.Name)
			l.onAlias()
		}

	default:
		slog.Debug("ignoring stream event", "event", ev.Name)
	}
}

func decodePayload(ev st2.Event, dst any) bool {
	if ev.Data == "" {
		slog.Warn("stream event without data", "event", ev.Name)
		return false
	}
	var env envelope
	if err := json.Unmarshal([]byte(ev.Data), &env); err != nil || len(env.Payload) == 0 {
		slog.Warn("malformed stream event", "event", ev.Name, "error", err)
		return false
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		slog.Warn("malformed stream event payload", "event", ev.Name, "error", err)
		return false
	}
	return true
}
