package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/internal/dispatch"
)

type matchDispatcher interface {
	Go(ctx context.Context, m *aliases.Match, cc dispatch.ChatContext)
}

// inboundConsumer matches bot-addressed chat text against the live alias
// generation and hands matches to the dispatcher. Text that matches no alias
// is ignored, except for the builtin help command.
type inboundConsumer struct {
	router     bus.MessageRouter
	registry   *aliases.Registry
	normalizer func(channel string) func(string) string
	dispatcher matchDispatcher
	help       string // empty disables the builtin
}

// Run consumes until ctx is done.
func (c *inboundConsumer) Run(ctx context.Context) {
	slog.Info("inbound message consumer started")
	for {
		msg, ok := c.router.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *inboundConsumer) handle(ctx context.Context, msg bus.InboundMessage) {
	normalize := c.normalizer(msg.Channel)

	m, ok := c.registry.Match(msg.Content, normalize)
	if ok {
		slog.Info("command matched",
			"alias", m.Alias.Name,
			"format", m.Format,
			"channel", msg.Channel,
			"user", msg.UserName,
		)
		c.dispatcher.Go(ctx, m, dispatch.FromInbound(msg))
		return
	}

	if filter, isHelp := c.helpFilter(normalize(msg.Content)); isHelp {
		c.router.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: c.helpText(filter),
		})
		return
	}

	slog.Debug("no command matched", "channel", msg.Channel, "preview", msg.Content)
}

func (c *inboundConsumer) helpFilter(text string) (string, bool) {
	if c.help == "" {
		return "", false
	}
	word, rest, _ := strings.Cut(text, " ")
	if !strings.EqualFold(word, c.help) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (c *inboundConsumer) helpText(filter string) string {
	lines := c.registry.Commands(filter)
	if len(lines) == 0 {
		if filter == "" {
			return "No commands are available."
		}
		return fmt.Sprintf("No commands match %q.", filter)
	}
	return strings.Join(lines, "\n")
}
