package events

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/opsclaw/internal/st2"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

type recordingPoster struct{ posts []protocol.ChatPayload }

func (r *recordingPoster) PostPayload(_ context.Context, p protocol.ChatPayload) error {
	r.posts = append(r.posts, p)
	return nil
}

type recordingConfirmer struct{ tokens []string }

func (r *recordingConfirmer) Confirm(_ context.Context, token string) bool {
	r.tokens = append(r.tokens, token)
	return true
}

type scriptedSource struct {
	events []st2.Event
	err    error
}

func (s *scriptedSource) Listen(_ context.Context, _ st2.StreamOptions, handle func(st2.Event)) error {
	for _, ev := range s.events {
		handle(ev)
	}
	return s.err
}

func TestListenerDemux(t *testing.T) {
	src := &scriptedSource{
		events: []st2.Event{
			{Name: protocol.EventChatopsAnnouncement, Data: `{"payload":{"channel":"C1","user":"alice","message":"done","extra":{"color":"good"}}}`},
			{Name: protocol.EventTwoFactorConfirmed, Data: `{"payload":{"uuid":"tok-1"}}`},
			{Name: protocol.EventAliasUpdate, Data: `{"payload":{}}`},
			{Name: "st2.execution__update", Data: `{"payload":{}}`},
			{Name: protocol.EventChatopsAnnouncement, Data: `not json`},
			{Name: protocol.EventChatopsAnnouncement},
		},
		err: st2.ErrStreamClosed,
	}
	poster := &recordingPoster{}
	confirmer := &recordingConfirmer{}
	reloads := 0

	l := NewListener(src, poster, confirmer, func() { reloads++ }, st2.StreamOptions{})
	err := l.Run(context.Background())
	if !errors.Is(err, st2.ErrStreamClosed) {
		t.Errorf("Run error = %v", err)
	}

	if len(poster.posts) != 1 {
		t.Fatalf("posts = %+v", poster.posts)
	}
	p := poster.posts[0]
	if p.Channel != "C1" || p.Message != "done" || p.ExtraString("color") != "good" {
		t.Errorf("payload = %+v", p)
	}
	if len(confirmer.tokens) != 1 || confirmer.tokens[0] != "tok-1" {
		t.Errorf("confirmations = %v", confirmer.tokens)
	}
	if reloads != 1 {
		t.Errorf("reloads = %d", reloads)
	}
}

func TestListenerIgnoresTwoFactorWhenDisabled(t *testing.T) {
	poster := &recordingPoster{}
	l := NewListener(&scriptedSource{}, poster, nil, nil, st2.StreamOptions{})
	l.Handle(context.Background(), st2.Event{Name: protocol.EventTwoFactorConfirmed, Data: `{"payload":{"uuid":"x"}}`})
	l.Handle(context.Background(), st2.Event{Name: protocol.EventAliasCreate, Data: `{"payload":{}}`})
	if len(poster.posts) != 0 {
		t.Errorf("posts = %v", poster.posts)
	}
}
