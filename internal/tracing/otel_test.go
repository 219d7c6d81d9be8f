package tracing

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/opsclaw/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true, Protocol: "carrier-pigeon"}, "test")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestProtocolDefault(t *testing.T) {
	if got := protocolOf(config.TelemetryConfig{}); got != "grpc" {
		t.Errorf("protocolOf = %q", got)
	}
}
