// Package server exposes the sync engine over an authenticated JSON API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/harrisonrobin/hubsync/pkg/profile"
	"github.com/harrisonrobin/hubsync/pkg/roster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authenticator resolves sign-in credentials.
type Authenticator interface {
	Authenticate(id, password string, tasks []model.Task) (roster.Identity, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
	Save(ctx context.Context, id string, p profile.Profile) (*profile.Profile, error)
}

// Options configures a Server.
type Options struct {
	Addr      string
	Secret    string
	TokenTTL  time.Duration
	Engine    *engine.Engine
	Scheduler *engine.Scheduler
	Roster    Authenticator
	Profiles  ProfileStore        // optional
	Gatherer  prometheus.Gatherer // optional, serves /metrics when set
	Logger    *slog.Logger
}

// Server is the hubsync HTTP server.
type Server struct {
	opts    Options
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger
	now     func() time.Time

	sessMu   sync.Mutex
	sessions map[string]time.Time // token id -> expiry
	active   bool
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:     opts,
		mux:      http.NewServeMux(),
		logger:   opts.Logger,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", s.opts.Addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	// Public routes
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/logout", s.handleLogout)
	api.HandleFunc("GET /api/packets", s.handlePackets)
	api.HandleFunc("GET /api/packets/detail", s.handlePacketDetail)
	api.HandleFunc("POST /api/packets/select", s.handleSelect)
	api.HandleFunc("POST /api/tasks/{id}/complete", s.handleComplete)
	api.HandleFunc("POST /api/refresh", s.handleRefresh)
	api.HandleFunc("GET /api/stations", s.handleStations)
	api.HandleFunc("GET /api/insight", s.handleInsight)
	api.HandleFunc("GET /api/profile", s.handleGetProfile)
	api.HandleFunc("PUT /api/profile", s.handlePutProfile)
	api.HandleFunc("PUT /api/auto-refresh", s.handleAutoRefresh)

	s.mux.Handle("/api/", s.authMiddleware(api))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"scheduler": string(s.opts.Scheduler.State()),
	})
}
