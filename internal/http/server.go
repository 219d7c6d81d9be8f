package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps the HTTP listener for the registered handlers.
type Server struct {
	addr       string
	mux        *http.ServeMux
	httpServer *http.Server
}

// RouteRegistrar is implemented by handlers that install routes on a mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// NewServer builds a server listening on addr with the given handlers.
func NewServer(addr string, handlers ...RouteRegistrar) *Server {
	mux := http.NewServeMux()
	for _, h := range handlers {
		h.RegisterRoutes(mux)
	}
	return &Server{addr: addr, mux: mux}
}

// Handler returns the routing mux.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
