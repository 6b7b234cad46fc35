package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Server wraps HTTP server with liveness and readiness checks.
type Server struct {
	server *http.Server
	mux    *http.ServeMux
	ready  atomic.Bool
	check  atomic.Pointer[func() bool]
	log    *slog.Logger
}

// New creates a new HTTP server.
func New(addr string, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux: mux,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
	s.registerHealth()
	return s
}

// Handle registers a handler.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// SetReady updates readiness state.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetReadyCheck adds a condition that must hold for /readyz to succeed, on top of SetReady.
func (s *Server) SetReadyCheck(check func() bool) {
	s.check.Store(&check)
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) isReady() bool {
	if !s.ready.Load() {
		return false
	}
	if check := s.check.Load(); check != nil && *check != nil {
		return (*check)()
	}
	return true
}

func (s *Server) registerHealth() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.isReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
