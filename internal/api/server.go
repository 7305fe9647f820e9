package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/scheduler"
	"github.com/rs/zerolog"
)

const maxQueryLimit = 1000

// Store is the read side of the agent's persistence plus a liveness probe.
type Store interface {
	RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error)
	TradeStats(ctx context.Context) (models.TradeStats, error)
	RecentLogs(ctx context.Context, limit int) ([]models.LogEntry, error)
	LogsAfter(ctx context.Context, ts time.Time) ([]models.LogEntry, error)
	LatestLogAt(ctx context.Context) (*time.Time, error)
	LatestBalance(ctx context.Context) (*models.BalanceSnapshot, error)
	Ping(ctx context.Context) error
}

// Agent is the part of the cycle scheduler the dashboard may touch.
type Agent interface {
	State() scheduler.State
	Stop(reason string)
}

type Options struct {
	Port       int
	APIKey     string
	CORSOrigin string
}

type Server struct {
	store      Store
	agent      Agent
	events     *eventlog.Log
	hub        *Hub
	router     chi.Router
	httpServer *http.Server
	apiKey     string
	startedAt  time.Time
	now        func() time.Time
	log        zerolog.Logger
}

func NewServer(store Store, agent Agent, events *eventlog.Log, hub *Hub, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		store:     store,
		agent:     agent,
		events:    events,
		hub:       hub,
		apiKey:    opts.APIKey,
		startedAt: time.Now(),
		now:       time.Now,
		log:       logger.With().Str("component", "api").Logger(),
	}

	origin := opts.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.authMiddleware)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/trades", s.handleTrades)
		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stream", s.handleLogStream)
		r.Get("/balances/latest", s.handleLatestBalance)
		r.Get("/agent/status", s.handleAgentStatus)
		r.Post("/agent/control", s.handleAgentControl)
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.apiKey != "").Msg("REST API server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

// authMiddleware checks the Bearer token. Browsers cannot set headers on a
// websocket handshake, so the stream also accepts ?access_token=.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if r.URL.Path == "/v1/logs/stream" {
			if tok := r.URL.Query().Get("access_token"); tok != "" {
				if tok != s.apiKey {
					writeError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// --- validation helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
