// Package slack connects the relay to Slack over Socket Mode.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/internal/channels"
	"github.com/nextlevelbuilder/opsclaw/internal/config"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

// Channel receives app mentions and direct messages from Slack and posts
// replies as colored attachments.
type Channel struct {
	*channels.BaseChannel
	api       *slack.Client
	socket    *socketmode.Client
	config    config.SlackConfig
	botUserID string
	users     sync.Map // user name -> user ID, learned from inbound messages
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Slack channel from config.
func New(cfg config.SlackConfig, router bus.MessageRouter) (*Channel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack requires bot_token and app_token")
	}
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &Channel{
		BaseChannel: channels.NewBaseChannel("slack", router, cfg.AllowFrom),
		api:         api,
		socket:      socketmode.New(api),
		config:      cfg,
	}, nil
}

// Start authenticates the bot and begins the Socket Mode event loop.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting slack bot (socket mode)")

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()
	go c.consume(runCtx)

	c.SetRunning(true)
	slog.Info("slack bot connected", "user", auth.User, "id", auth.UserID, "team", auth.Team)
	return nil
}

// Stop ends the Socket Mode session.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping slack bot")
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

func (c *Channel) consume(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				slog.Debug("slack connecting")
			case socketmode.EventTypeConnectionError:
				slog.Warn("slack connection error", "data", evt.Data)
			case socketmode.EventTypeEventsAPI:
				ev, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					c.socket.Ack(*evt.Request)
				}
				if ev.Type == slackevents.CallbackEvent {
					c.handleInner(ctx, ev.InnerEvent)
				}
			}
		}
	}
}

func (c *Channel) handleInner(ctx context.Context, inner slackevents.EventsAPIInnerEvent) {
	switch ev := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == c.botUserID {
			return
		}
		c.forward(ctx, ev.User, ev.Channel, ev.Text, channels.PeerGroup)
	case *slackevents.MessageEvent:
		// Group mentions arrive as AppMentionEvent; only DMs are taken here.
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" || ev.User == c.botUserID {
			return
		}
		c.forward(ctx, ev.User, ev.Channel, ev.Text, channels.PeerDirect)
	}
}

func (c *Channel) forward(ctx context.Context, userID, channelID, text, peerKind string) {
	text = stripMention(text, c.botUserID)
	name := userID
	if info, err := c.api.GetUserInfoContext(ctx, userID); err == nil && info.Name != "" {
		name = info.Name
		c.users.Store(name, userID)
	} else if err != nil {
		slog.Debug("slack user lookup failed", "user_id", userID, "error", err)
	}

	slog.Debug("slack message received",
		"user_id", userID,
		"channel_id", channelID,
		"peer_kind", peerKind,
		"preview", channels.Truncate(text, 50),
	)
	c.HandleMessage(userID+"|"+name, name, channelID, text, map[string]string{"user_id": userID}, peerKind)
}

// Normalize undoes Slack link and entity markup.
func (c *Channel) Normalize(text string) string { return channels.NormalizeSlack(text) }

// Send posts msg to a Slack conversation.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("slack bot not running")
	}
	_, _, err := c.api.PostMessageContext(ctx, msg.ChatID, c.messageOptions(msg)...)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	return nil
}

// SendDirect opens (or reuses) a DM with user and posts msg there.
func (c *Channel) SendDirect(ctx context.Context, user string, msg bus.OutboundMessage) error {
	userID := user
	if id, ok := c.users.Load(user); ok {
		userID = id.(string)
	}
	conv, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return fmt.Errorf("open slack dm with %s: %w", user, err)
	}
	msg.ChatID = conv.ID
	return c.Send(ctx, msg)
}

func (c *Channel) messageOptions(msg bus.OutboundMessage) []slack.MsgOption {
	return []slack.MsgOption{
		slack.MsgOptionText("", false),
		slack.MsgOptionAttachments(slack.Attachment{
			Color:      c.color(msg),
			Text:       msg.Content,
			Fallback:   msg.Content,
			MarkdownIn: []string{"text", "pretext"},
		}),
	}
}

func (c *Channel) color(msg bus.OutboundMessage) string {
	color := c.config.SuccessColor
	if msg.Meta(protocol.MetaStatus) == protocol.StatusFailure {
		color = c.config.FailColor
	}
	if explicit := msg.Meta(protocol.MetaColor); explicit != "" {
		color = explicit
	}
	return attachmentColor(color)
}

// attachmentColor passes Slack's named colors through and gives hex codes
// their leading "#".
func attachmentColor(color string) string {
	switch color {
	case "", "good", "warning", "danger":
		return color
	}
	return "#" + strings.TrimPrefix(color, "#")
}

// stripMention removes a leading "<@BOT>" reference and any ":" after it.
func stripMention(text, botID string) string {
	text = strings.TrimSpace(text)
	if botID == "" {
		return text
	}
	mention := "<@" + botID + ">"
	if strings.HasPrefix(text, mention) {
		text = strings.TrimLeft(text[len(mention):], ": \t")
	} else {
		text = strings.ReplaceAll(text, mention, "")
	}
	return strings.TrimSpace(text)
}
