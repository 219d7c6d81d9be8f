package telegram

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/opsclaw/internal/channels"
)

// handleMessage forwards private messages and group messages addressed to
// the bot.
func (c *Channel) handleMessage(message *telego.Message) {
	user := message.From
	if user == nil || user.IsBot || message.Text == "" {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = userID + "|" + user.Username
	}

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"
	peerKind := channels.PeerDirect
	botUsername := c.bot.Username()
	text := message.Text

	if isGroup {
		peerKind = channels.PeerGroup
		if !detectMention(message, botUsername) {
			return
		}
	}
	text = stripMention(text, botUsername)

	name := user.Username
	if name == "" {
		name = userID
	} else {
		c.users.Store(name, userID)
	}

	slog.Debug("telegram message received",
		"sender_id", senderID,
		"chat_id", message.Chat.ID,
		"is_group", isGroup,
		"preview", channels.Truncate(text, 50),
	)

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"first_name": user.FirstName,
	}
	c.HandleMessage(senderID, name, fmt.Sprintf("%d", message.Chat.ID), text, metadata, peerKind)
}

// detectMention checks if a Telegram message mentions the bot.
func detectMention(msg *telego.Message, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	lowerBot := strings.ToLower(botUsername)

	for _, entity := range msg.Entities {
		if entity.Offset+entity.Length > len(msg.Text) {
			continue
		}
		span := msg.Text[entity.Offset : entity.Offset+entity.Length]
		switch entity.Type {
		case "mention":
			if strings.EqualFold(span, "@"+botUsername) {
				return true
			}
		case "bot_command":
			if strings.Contains(strings.ToLower(span), "@"+lowerBot) {
				return true
			}
		}
	}

	// Fallback: substring check
	if strings.Contains(strings.ToLower(msg.Text), "@"+lowerBot) {
		return true
	}

	// Reply to bot's message = implicit mention
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		if msg.ReplyToMessage.From.Username == botUsername {
			return true
		}
	}

	return false
}

// stripMention removes the leading "@bot" address, case-insensitively, plus
// a leading "/" so "/status@bot" reads as "status".
func stripMention(text, botUsername string) string {
	text = strings.TrimSpace(text)
	if botUsername != "" {
		mention := "@" + strings.ToLower(botUsername)
		if i := strings.Index(strings.ToLower(text), mention); i >= 0 {
			text = text[:i] + text[i+len(mention):]
		}
	}
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	return strings.TrimLeft(strings.TrimSpace(text), ":, ")
}
