package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"voting-escrow/internal/config"
	"voting-escrow/internal/service"
)

// SenderHeader carries the caller identity. The host in front of the API is
// responsible for authenticating it.
const SenderHeader = "X-Sender"

// Server is the ledger HTTP API server.
type Server struct {
	svc     *service.Service
	router  chi.Router
	logger  zerolog.Logger
	version string
	started time.Time
}

// New creates a Server over svc.
func New(svc *service.Service, version string, logger zerolog.Logger) *Server {
	s := &Server{
		svc:     svc,
		logger:  logger.With().Str("component", "server").Logger(),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer wraps the router with the configured timeouts.
func (s *Server) HTTPServer(cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/locks", s.handleCreateLock)
		r.Post("/locks/extend", s.handleExtendLock)
		r.Post("/locks/withdraw", s.handleWithdraw)
		r.Post("/locks/{account}/deposit", s.handleDeposit)
		r.Get("/locks/{account}", s.handleGetLock)

		r.Get("/blacklist", s.handleGetBlacklist)
		r.Post("/blacklist", s.handleUpdateBlacklist)

		r.Get("/voting-power", s.handleTotalPower)
		r.Get("/voting-power/{account}", s.handleAccountPower)

		r.Post("/ownership/propose", s.handleProposeOwner)
		r.Post("/ownership/drop", s.handleDropProposal)
		r.Post("/ownership/claim", s.handleClaimOwnership)
	})

	s.router = r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.Config(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"uptime":       time.Since(s.started).Seconds(),
		"instantiated": err == nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
