package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/internal/channels"
	"github.com/nextlevelbuilder/opsclaw/internal/config"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

// maxEmbedDescription is Discord's limit on an embed description.
const maxEmbedDescription = 4096

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string   // populated on start
	users     sync.Map // username -> user ID, learned from inbound messages
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, router bus.MessageRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", router, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send posts msg to a Discord channel as an embed colored by outcome.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	embed := &discordgo.MessageEmbed{
		Description: channels.Truncate(msg.Content, maxEmbedDescription),
		Color:       c.color(msg),
	}
	content := ""
	if user := msg.Meta(protocol.MetaUser); user != "" && msg.Meta(protocol.MetaWhisper) != "true" {
		if id, ok := c.users.Load(user); ok {
			content = "<@" + id.(string) + ">"
		}
	}

	_, err := c.session.ChannelMessageSendComplex(msg.ChatID, &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

// SendDirect posts msg in the user's DM channel.
func (c *Channel) SendDirect(ctx context.Context, user string, msg bus.OutboundMessage) error {
	userID := user
	if id, ok := c.users.Load(user); ok {
		userID = id.(string)
	}
	dm, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open discord dm with %s: %w", user, err)
	}
	msg.ChatID = dm.ID
	return c.Send(ctx, msg)
}

// handleMessage forwards DMs and messages that mention the bot.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	peerKind := channels.PeerGroup
	if isDM {
		peerKind = channels.PeerDirect
	}

	if !isDM && !mentions(m, c.botUserID) {
		return
	}

	senderID := m.Author.ID + "|" + m.Author.Username
	if !c.IsAllowed(senderID) {
		slog.Debug("discord message rejected by allowlist",
			"user_id", m.Author.ID,
			"username", m.Author.Username,
		)
		return
	}
	c.users.Store(m.Author.Username, m.Author.ID)

	content := stripMention(m.Content, c.botUserID)

	slog.Debug("discord message received",
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"is_dm", isDM,
		"preview", channels.Truncate(content, 50),
	)

	metadata := map[string]string{
		"message_id":   m.ID,
		"display_name": resolveDisplayName(m),
		"guild_id":     m.GuildID,
	}
	c.HandleMessage(senderID, m.Author.Username, m.ChannelID, content, metadata, peerKind)
}

func (c *Channel) color(msg bus.OutboundMessage) int {
	hex := c.config.SuccessColor
	if msg.Meta(protocol.MetaStatus) == protocol.StatusFailure {
		hex = c.config.FailColor
	}
	if explicit := msg.Meta(protocol.MetaColor); explicit != "" {
		hex = explicit
	}
	return parseColor(hex)
}

// parseColor converts "f35a00" or "#F35A00" to an embed color, 0 on error.
func parseColor(hex string) int {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

func mentions(m *discordgo.MessageCreate, botID string) bool {
	for _, u := range m.Mentions {
		if u.ID == botID {
			return true
		}
	}
	return false
}

// stripMention removes "<@ID>" and "<@!ID>" references to the bot.
func stripMention(text, botID string) string {
	if botID != "" {
		text = strings.ReplaceAll(text, "<@"+botID+">", "")
		text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	}
	return strings.TrimLeft(strings.TrimSpace(text), ": ")
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
