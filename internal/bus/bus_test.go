package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := NewWithBuffer(2)
	b.PublishInbound(InboundMessage{Channel: "slack", Content: "one"})
	b.PublishInbound(InboundMessage{Channel: "slack", Content: "two"})
	b.PublishInbound(InboundMessage{Channel: "slack", Content: "dropped"})

	ctx := context.Background()
	for _, want := range []string{"one", "two"} {
		msg, ok := b.ConsumeInbound(ctx)
		if !ok || msg.Content != want {
			t.Fatalf("ConsumeInbound = %q, %v; want %q", msg.Content, ok, want)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if msg, ok := b.ConsumeInbound(ctx); ok {
		t.Fatalf("expected empty queue, got %q", msg.Content)
	}
}

func TestSubscribeOutboundCancelled(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.SubscribeOutbound(ctx); ok {
		t.Fatal("expected cancelled subscribe to return false")
	}

	b.PublishOutbound(OutboundMessage{Channel: "discord", Content: "hi"})
	msg, ok := b.SubscribeOutbound(context.Background())
	if !ok || msg.Content != "hi" || msg.Meta("missing") != "" {
		t.Fatalf("SubscribeOutbound = %+v, %v", msg, ok)
	}
}
