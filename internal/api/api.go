// Package api provides the HTTP surface for SlotLine.
//
// It exposes endpoints for dialogue turns (text and voice), the secure
// contact-details form, booking lookups, and a health check. Handlers are
// thin: all orchestration lives in the booking service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/NovaLine/SlotLine/internal/booking"
	"github.com/NovaLine/SlotLine/internal/interpret"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	Transcriber interpret.Transcriber
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTranscriber enables the voice-turn endpoint.
func WithTranscriber(t interpret.Transcriber) Option {
	return func(o *Opts) { o.Transcriber = t }
}

// Server hosts the SlotLine HTTP API.
type Server struct {
	svc         *booking.Service
	transcriber interpret.Transcriber
	addr        string
}

// NewServer creates the API server around the booking service.
func NewServer(svc *booking.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{svc: svc, transcriber: cfg.Transcriber, addr: cfg.Addr}
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/turn", s.turnHandler)
	mux.HandleFunc("/api/voice-turn", s.voiceTurnHandler)
	mux.HandleFunc("/api/secure-details", s.secureDetailsHandler)
	mux.HandleFunc("/api/bookings/", s.bookingHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
			return err
		}
		slog.Info("API server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}
