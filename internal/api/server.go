// Package api provides the read-only operator HTTP surface for Turnero.
//
// It exposes session and tool-call inspection endpoints for debugging live
// conversations, plus a health check and the Twilio inbound webhook mount.
// Everything under /admin requires the operator bearer token.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

const (
	// DefaultAddr is the default listen address for the operator API.
	DefaultAddr = ":8080"
	// defaultToolCallLimit caps the tool-call trace returned per request.
	defaultToolCallLimit = 50
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	Token          string           // operator bearer token, required for /admin
	WebhookHandler http.HandlerFunc // optional inbound transport webhook
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithToken sets the operator bearer token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithWebhookHandler mounts an inbound transport webhook at /webhooks/inbound.
func WithWebhookHandler(h http.HandlerFunc) Option {
	return func(o *Opts) { o.WebhookHandler = h }
}

// Server serves the operator API.
type Server struct {
	st     store.Store
	opts   Opts
	server *http.Server
}

// NewServer creates the operator API server over the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{st: st, opts: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/admin/sessions/", s.requireToken(s.sessionsHandler))
	mux.HandleFunc("/admin/tool-calls/", s.requireToken(s.toolCallsHandler))
	if cfg.WebhookHandler != nil {
		mux.HandleFunc("/webhooks/inbound", cfg.WebhookHandler)
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("API server listening", "addr", s.opts.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requireToken guards a handler with the operator bearer token.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token == "" {
			slog.Warn("Server.requireToken: no operator token configured, rejecting request", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Operator token not configured"))
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or missing bearer token"))
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) != 1 {
			slog.Warn("Server.requireToken: invalid token", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or missing bearer token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// sessionsHandler handles GET /admin/sessions/{phone}: every session for a
// phone number across businesses and flows, including terminal ones.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	phone := strings.TrimPrefix(r.URL.Path, "/admin/sessions/")
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Phone number required"))
		return
	}
	sessions, err := s.st.ListSessionsByPhone(phone)
	if err != nil {
		slog.Error("Server.sessionsHandler: list failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	slog.Debug("Server.sessionsHandler succeeded", "phone", phone, "count", len(sessions))
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// toolCallsHandler handles GET /admin/tool-calls/{phone}?limit=N: the most
// recent tool invocations recorded for a phone number, newest first.
func (s *Server) toolCallsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	phone := strings.TrimPrefix(r.URL.Path, "/admin/tool-calls/")
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Phone number required"))
		return
	}
	limit := defaultToolCallLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		limit = parsed
	}
	records, err := s.st.ListToolCallRecords(phone, limit)
	if err != nil {
		slog.Error("Server.toolCallsHandler: list failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tool calls"))
		return
	}
	slog.Debug("Server.toolCallsHandler succeeded", "phone", phone, "count", len(records))
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}
