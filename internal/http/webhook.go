// Package http serves the relay's inbound HTTP surface: the notification
// webhook and the health endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

// maxWebhookBody bounds the accepted request body.
const maxWebhookBody = 1 << 20

// Poster delivers a decoded payload to chat.
type Poster interface {
	PostPayload(ctx context.Context, p protocol.ChatPayload) error
}

// Limiter decides whether a remote key may make another request.
type Limiter interface {
	Allow(key string) bool
}

// WebhookHandler accepts chat payloads posted by the automation platform,
// a delivery path parallel to the event stream.
type WebhookHandler struct {
	poster  Poster
	path    string
	limiter Limiter // nil = unlimited
}

// WebhookResponse is the envelope returned for every webhook request.
type WebhookResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// NewWebhookHandler creates a webhook handler served at path.
func NewWebhookHandler(poster Poster, path string, limiter Limiter) *WebhookHandler {
	if path == "" {
		path = "/hubot/st2"
	}
	return &WebhookHandler{poster: poster, path: path, limiter: limiter}
}

// RegisterRoutes registers the webhook on mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+h.path, h.handlePost)
}

func (h *WebhookHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		key := remoteKey(r)
		if !h.limiter.Allow(key) {
			slog.Warn("security.webhook_rate_limited", "remote", key, "path", h.path)
			writeJSON(w, http.StatusTooManyRequests, failed(errors.New("rate limit exceeded")))
			return
		}
	}

	payload, err := decodeWebhook(w, r)
	if err != nil {
		slog.Error("unable to decode webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, failed(err))
		return
	}

	if err := h.poster.PostPayload(r.Context(), payload); err != nil {
		slog.Error("webhook delivery failed", "channel", payload.Channel, "error", err)
		writeJSON(w, http.StatusBadGateway, failed(err))
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Status: protocol.WebhookStatusCompleted,
		Msg:    "Message posted successfully",
	})
}

func failed(err error) WebhookResponse {
	return WebhookResponse{
		Status: protocol.WebhookStatusFailed,
		Msg:    "An error occurred trying to post the message:\n" + err.Error(),
	}
}

// decodeWebhook accepts a raw JSON payload, a JSON object whose "payload"
// field is a JSON-encoded string, or a form with a "payload" field.
func decodeWebhook(w http.ResponseWriter, r *http.Request) (protocol.ChatPayload, error) {
	var p protocol.ChatPayload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		raw := r.FormValue("payload")
		if raw == "" {
			return p, errors.New("form has no payload field")
		}
		return p, decodePayload([]byte(raw), &p)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return p, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxWebhookBody {
		return p, errors.New("body too large")
	}

	var wrapper struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return p, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(wrapper.Payload) > 0 {
		var inner string
		if err := json.Unmarshal(wrapper.Payload, &inner); err == nil {
			return p, decodePayload([]byte(inner), &p)
		}
		return p, decodePayload(wrapper.Payload, &p)
	}
	return p, decodePayload(body, &p)
}

func decodePayload(data []byte, p *protocol.ChatPayload) error {
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("invalid payload JSON: %w", err)
	}
	return nil
}

func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
