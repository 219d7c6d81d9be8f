package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/internal/config"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

func TestStripMention(t *testing.T) {
	tests := []struct{ in, want string }{
		{"<@42> deploy web", "deploy web"},
		{"<@!42>: status", "status"},
		{"status", "status"},
	}
	for _, tt := range tests {
		if got := stripMention(tt.in, "42"); got != tt.want {
			t.Errorf("stripMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseColor(t *testing.T) {
	if got := parseColor("#F35A00"); got != 0xF35A00 {
		t.Errorf("parseColor = %x", got)
	}
	if got := parseColor("dfdfdf"); got != 0xdfdfdf {
		t.Errorf("parseColor = %x", got)
	}
	if got := parseColor("danger"); got != 0 {
		t.Errorf("parseColor(named) = %x", got)
	}
}

func TestColorByStatus(t *testing.T) {
	c := &Channel{config: config.DiscordConfig{SuccessColor: "dfdfdf", FailColor: "f35a00"}}
	fail := bus.OutboundMessage{Metadata: map[string]string{protocol.MetaStatus: protocol.StatusFailure}}
	if got := c.color(fail); got != 0xf35a00 {
		t.Errorf("failure color = %x", got)
	}
	if got := c.color(bus.OutboundMessage{}); got != 0xdfdfdf {
		t.Errorf("success color = %x", got)
	}
}

func TestMentions(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{Mentions: []*discordgo.User{{ID: "7"}, {ID: "42"}}}}
	if !mentions(m, "42") {
		t.Error("mention not detected")
	}
	if mentions(m, "1") {
		t.Error("false mention")
	}
}
