package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

type fakePoster struct {
	mu  sync.Mutex
	got []protocol.ChatPayload
	err error
}

func (f *fakePoster) PostPayload(_ context.Context, p protocol.ChatPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
	return f.err
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func serve(t *testing.T, h *WebhookHandler, req *http.Request) (*httptest.ResponseRecorder, WebhookResponse) {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp WebhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestWebhookBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        protocol.ChatPayload
	}{
		{
			name:        "payload string field",
			contentType: "application/json",
			body:        `{"payload": "{\"message\":\"hi\"}"}`,
			want:        protocol.ChatPayload{Message: "hi"},
		},
		{
			name:        "raw body",
			contentType: "application/json",
			body:        `{"channel":"ops","user":"alice","whisper":true,"message":"done"}`,
			want:        protocol.ChatPayload{Channel: "ops", User: "alice", Whisper: true, Message: "done"},
		},
		{
			name:        "payload object field",
			contentType: "application/json",
			body:        `{"payload": {"channel":"ops","message":"obj"}}`,
			want:        protocol.ChatPayload{Channel: "ops", Message: "obj"},
		},
		{
			name:        "form payload",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"payload": {`{"channel":"ops","message":"form"}`}}.Encode(),
			want:        protocol.ChatPayload{Channel: "ops", Message: "form"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poster := &fakePoster{}
			h := NewWebhookHandler(poster, "", nil)
			req := httptest.NewRequest(http.MethodPost, "/hubot/st2", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			rec, resp := serve(t, h, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if resp.Status != protocol.WebhookStatusCompleted || resp.Msg != "Message posted successfully" {
				t.Errorf("response = %+v", resp)
			}
			if len(poster.got) != 1 {
				t.Fatalf("posted %d payloads", len(poster.got))
			}
			got := poster.got[0]
			if got.Channel != tt.want.Channel || got.Message != tt.want.Message || got.User != tt.want.User || got.Whisper != tt.want.Whisper {
				t.Errorf("payload = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWebhookFailures(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		poster := &fakePoster{}
		req := httptest.NewRequest(http.MethodPost, "/hubot/st2", strings.NewReader(`{not json`))
		rec, resp := serve(t, NewWebhookHandler(poster, "", nil), req)
		if rec.Code != http.StatusBadRequest || resp.Status != protocol.WebhookStatusFailed {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
		if !strings.HasPrefix(resp.Msg, "An error occurred trying to post the message:\n") {
			t.Errorf("msg = %q", resp.Msg)
		}
		if len(poster.got) != 0 {
			t.Error("invalid payload was posted")
		}
	})

	t.Run("delivery error", func(t *testing.T) {
		poster := &fakePoster{err: errors.New("no channel to deliver to")}
		req := httptest.NewRequest(http.MethodPost, "/hubot/st2", strings.NewReader(`{"message":"x"}`))
		rec, resp := serve(t, NewWebhookHandler(poster, "", nil), req)
		if rec.Code != http.StatusBadGateway || resp.Status != protocol.WebhookStatusFailed {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		poster := &fakePoster{}
		req := httptest.NewRequest(http.MethodPost, "/hubot/st2", strings.NewReader(`{"message":"x"}`))
		rec, _ := serve(t, NewWebhookHandler(poster, "", denyAll{}), req)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d", rec.Code)
		}
		if len(poster.got) != 0 {
			t.Error("rate-limited payload was posted")
		}
	})
}

func TestWebhookCustomPath(t *testing.T) {
	poster := &fakePoster{}
	mux := http.NewServeMux()
	NewWebhookHandler(poster, "/notify", nil).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(`{"message":"x"}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notify", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(HealthSources{
		Matchers: func() int { return 4 },
		Pending:  func() int { return 1 },
		Channels: func() map[string]any { return map[string]any{"slack": map[string]any{"running": true}} },
	}, "v1.2.3")
	srv := httptest.NewServer(NewServer("", h).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["matchers"] != float64(4) || body["pending_confirmations"] != float64(1) || body["version"] != "v1.2.3" {
		t.Errorf("health = %v", body)
	}
	if _, ok := body["channels"].(map[string]any)["slack"]; !ok {
		t.Errorf("channels = %v", body["channels"])
	}
}
