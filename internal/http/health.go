package http

import (
	"net/http"
)

// HealthSources reports live relay state. Nil fields are omitted.
type HealthSources struct {
	Matchers func() int
	Pending  func() int
	Channels func() map[string]any
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	src     HealthSources
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(src HealthSources, version string) *HealthHandler {
	return &HealthHandler{src: src, version: version}
}

// RegisterRoutes registers the health endpoint on mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	if h.src.Matchers != nil {
		resp["matchers"] = h.src.Matchers()
	}
	if h.src.Pending != nil {
		resp["pending_confirmations"] = h.src.Pending()
	}
	if h.src.Channels != nil {
		resp["channels"] = h.src.Channels()
	}
	writeJSON(w, http.StatusOK, resp)
}
