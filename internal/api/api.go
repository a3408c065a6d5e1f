// Package api provides the HTTP server for LeadPipe.
//
// It mounts the transport webhooks, a health check, and read-only operator views of leads and
// sessions. Webhook handlers come from the messaging services; the server only routes to them.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Default server settings.
const (
	DefaultAddr            = ":3000"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
)

// LeadLister lists finalized leads.
type LeadLister interface {
	ListLeads(ctx context.Context) ([]models.Lead, error)
}

// SessionReader loads a session by canonical phone number. A nil session means none exists.
type SessionReader interface {
	Get(ctx context.Context, phone string) (*models.Session, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
	Webhooks        map[string]http.Handler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithShutdownTimeout bounds how long Run waits for in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// WithWebhook mounts an inbound webhook handler at path (POST only).
func WithWebhook(path string, h http.Handler) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.Handler)
		}
		o.Webhooks[path] = h
	}
}

// Server is the LeadPipe HTTP server.
type Server struct {
	msgService      messaging.Service
	leads           LeadLister
	sessions        SessionReader
	addr            string
	shutdownTimeout time.Duration
	webhooks        map[string]http.Handler
	started         time.Time
}

// NewServer creates a server. leads and sessions may be nil, in which case their endpoints
// answer 503.
func NewServer(msgService messaging.Service, leads LeadLister, sessions SessionReader, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		msgService:      msgService,
		leads:           leads,
		sessions:        sessions,
		addr:            cfg.Addr,
		shutdownTimeout: cfg.ShutdownTimeout,
		webhooks:        cfg.Webhooks,
		started:         time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/leads", s.leadsHandler)
	mux.HandleFunc("/sessions/{phone}", s.sessionHandler)
	for path, h := range s.webhooks {
		mux.Handle(path, postOnly(h))
		slog.Debug("Server.Handler: webhook mounted", "path", path)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: LeadPipe API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}

func postOnly(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if methodNotAllowed(w, r, http.MethodPost) {
			return
		}
		h.ServeHTTP(w, r)
	}
}

// healthHandler reports liveness, degraded when the lead store is missing or cannot be read.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	if counter, ok := s.sessions.(interface{ Len() int }); ok {
		healthData["cached_sessions"] = counter.Len()
	}
	if s.leads == nil {
		healthData["status"] = "degraded"
		healthData["store"] = "unavailable"
	} else if leads, err := s.leads.ListLeads(ctx); err != nil {
		slog.Warn("Server.healthHandler: failed to list leads", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to read lead store"
	} else {
		healthData["leads"] = len(leads)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}

// leadsHandler returns all finalized leads (GET /leads).
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.leadsHandler: processing leads request", "method", r.Method, "path", r.URL.Path)
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	if s.leads == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Lead store not configured"))
		return
	}
	leads, err := s.leads.ListLeads(r.Context())
	if err != nil {
		slog.Error("Server.leadsHandler: failed to list leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch leads"))
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	slog.Debug("Server.leadsHandler: leads fetched", "count", len(leads))
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

// sessionHandler returns one conversation session (GET /sessions/{phone}).
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionHandler: processing session request", "method", r.Method, "path", r.URL.Path)
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	if s.sessions == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Session store not configured"))
		return
	}

	phone := r.PathValue("phone")
	if s.msgService != nil {
		canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(phone)
		if err != nil {
			slog.Warn("Server.sessionHandler: phone validation failed", "error", err, "phone", phone)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid phone number: "+err.Error()))
			return
		}
		phone = canonical
	}

	sess, err := s.sessions.Get(r.Context(), phone)
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}
