// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/agentsig/internal/config"
	"github.com/jeranaias/agentsig/internal/hook"
	"github.com/jeranaias/agentsig/internal/session"
	"github.com/jeranaias/agentsig/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is loopback only; the service signs arbitrary tool input.
	DefaultAddr = "127.0.0.1:4141"

	// DefaultMaxBodyBytes caps event bodies (1MB).
	DefaultMaxBodyBytes = 1 << 20

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 5 * time.Second
)

// ============================================================================
// CONFIG
// ============================================================================

// Config holds the listener and middleware settings.
type Config struct {
	Addr string

	// Token enables bearer authentication when non-empty.
	Token string

	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int

	MaxBodyBytes int64

	// Version is reported by /health.
	Version string
}

// ConfigFrom converts the [server] config section.
func ConfigFrom(c config.ServerConfig, version string) Config {
	return Config{
		Addr:              c.Listen,
		Token:             c.Token,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxBodyBytes:      c.MaxBodyBytes,
		Version:           version,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP transport.
type Server struct {
	cfg     Config
	handler *hook.Handler
	logger  *zap.Logger
	mux     *http.ServeMux
	limiter *RateLimiter

	ledger *storage.Ledger
	writer *storage.Writer

	started  time.Time
	requests atomic.Int64
	events   atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLedger exposes ledger totals on /v1/stats.
func WithLedger(l *storage.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithWriter exposes async writer counters on /v1/stats.
func WithWriter(w *storage.Writer) Option {
	return func(s *Server) { s.writer = w }
}

// New creates a Server dispatching events to handler.
func New(cfg Config, handler *hook.Handler, logger *zap.Logger, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.Named("http"),
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/events", s.eventHandler(""))
	s.mux.HandleFunc("POST /v1/events/model", s.eventHandler(hook.EventChatParams))
	s.mux.HandleFunc("POST /v1/events/tool", s.eventHandler(hook.EventToolBefore))

	s.mux.HandleFunc("GET /v1/session", s.handleSession)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	count := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.requests.Add(1)
			next.ServeHTTP(w, r)
		})
	}
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		count,
		AuthMiddleware(s.cfg.Token, s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
		BodyLimitMiddleware(s.cfg.MaxBodyBytes),
	)(s.mux)
}

// ============================================================================
// EVENT HANDLERS
// ============================================================================

// eventHandler serves an event endpoint. A non-empty family restricts the
// endpoint to that event family and supplies the type when the body omits it.
func (s *Server) eventHandler(family string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
				return
			}
			writeError(w, http.StatusBadRequest, "could not read body")
			return
		}

		if family != "" {
			if typ := peekType(body); typ != "" && !sameFamily(family, typ) {
				writeError(w, http.StatusBadRequest,
					fmt.Sprintf("event type %q not accepted on %s", typ, r.URL.Path))
				return
			}
		}

		s.events.Add(1)
		writeJSON(w, http.StatusOK, s.handler.HandleTyped(body, family))
	}
}

// peekType returns the body's "type" when it is a string.
func peekType(body []byte) string {
	var envelope struct {
		Type any `json:"type"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	typ, _ := envelope.Type.(string)
	return typ
}

func sameFamily(family, typ string) bool {
	if hook.IsModelEvent(family) {
		return hook.IsModelEvent(typ)
	}
	return family == typ
}

// ============================================================================
// SESSION AND STATS
// ============================================================================

// SessionResponse is the body of GET /v1/session.
type SessionResponse struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
	Signature   string `json:"signature"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	coord := s.handler.Coordinator()
	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:   coord.SessionID(),
		DisplayName: coord.DisplayName(),
		Signature:   coord.Signature(),
	})
}

// ServerStats counts HTTP traffic.
type ServerStats struct {
	Requests      int64 `json:"requests"`
	Events        int64 `json:"events"`
	UptimeSeconds int64 `json:"uptime_seconds"`
	Clients       int   `json:"rate_limited_clients"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Session session.Stats        `json:"session"`
	Server  ServerStats          `json:"server"`
	Ledger  *storage.Stats       `json:"ledger,omitempty"`
	Writer  *storage.WriterStats `json:"writer,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Session: s.handler.Coordinator().Stats(),
		Server: ServerStats{
			Requests:      s.requests.Load(),
			Events:        s.events.Load(),
			UptimeSeconds: int64(time.Since(s.started).Seconds()),
		},
	}
	if s.limiter != nil {
		resp.Server.Clients = s.limiter.Clients()
	}

	if s.ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if stats, err := s.ledger.Stats(ctx); err == nil {
			resp.Ledger = &stats
		} else {
			s.logger.Warn("ledger stats failed", zap.Error(err))
		}
	}
	if s.writer != nil {
		ws := s.writer.Stats()
		resp.Writer = &ws
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Session string `json:"session_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
		Session: s.handler.Coordinator().SessionID(),
	})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	var resp ErrorResponse
	resp.Error.Message = message
	resp.Error.Code = status
	writeJSON(w, status, resp)
}
