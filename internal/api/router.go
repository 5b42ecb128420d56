// Package api exposes evidence ingestion, recalculation triggers and the
// metric ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Devdesai111/RevUp-sub000/internal/health"
	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// Recalculator runs a recomputation inline. A nil metric means it was skipped.
type Recalculator interface {
	RecalcJob(ctx context.Context, job jobs.Job) (*store.Metric, error)
}

// OutcomeSnapshotter reads recomputation outcome counters.
type OutcomeSnapshotter interface {
	Snapshot(ctx context.Context, outcomes ...string) (map[string]int64, error)
}

// PoolStatser reports worker pool progress.
type PoolStatser interface {
	Stats() jobs.PoolStats
}

// Server handles HTTP requests
type Server struct {
	store    store.Store
	queue    jobs.Queue
	engine   Recalculator
	tokens   *TokenService
	hub      *notify.Hub
	outcomes OutcomeSnapshotter
	names    []string
	pool     PoolStatser
	probes   []health.Probe
	timeout  time.Duration
	log      *slog.Logger
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithHub enables the notification websocket.
func WithHub(h *notify.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithOutcomes exposes the named outcome counters on /v1/stats.
func WithOutcomes(o OutcomeSnapshotter, names ...string) Option {
	return func(s *Server) {
		s.outcomes = o
		s.names = names
	}
}

// WithPool exposes worker pool stats on /v1/stats.
func WithPool(p PoolStatser) Option {
	return func(s *Server) { s.pool = p }
}

// WithHealth makes /health ping the given dependencies.
func WithHealth(probes ...health.Probe) Option {
	return func(s *Server) { s.probes = probes }
}

// WithTimeout bounds every non-streaming request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server
func NewServer(st store.Store, queue jobs.Queue, engine Recalculator, tokens *TokenService, opts ...Option) *Server {
	s := &Server{
		store:   st,
		queue:   queue,
		engine:  engine,
		tokens:  tokens,
		timeout: 30 * time.Second,
		log:     logging.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthCheck)

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.AuthMiddleware)

		// The stream outlives any request timeout.
		r.Get("/v1/ws", s.streamNotifications)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))

			r.Post("/v1/recalc", s.triggerRecalc)
			r.Get("/v1/stats", s.stats)

			r.Route("/v1/users/{userID}", func(r chi.Router) {
				r.Use(s.userMiddleware)

				r.Put("/executions/{date}", s.putExecution)
				r.Put("/reflections/{date}", s.putReflection)
				r.Get("/metrics", s.listMetrics)
				r.Get("/metrics/{date}", s.getMetric)
			})
		})
	})

	return r
}

// userMiddleware restricts /v1/users/{userID} to that user or an admin.
func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := GetPrincipal(r.Context())
		userID := chi.URLParam(r, "userID")
		if !p.CanAccess(userID) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		ctx := logging.ContextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type healthResponse struct {
	Status       string         `json:"status"`
	Dependencies []health.Check `json:"dependencies,omitempty"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if len(s.probes) == 0 {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	report := health.RunChecks(r.Context(), s.probes, health.DefaultTimeout)
	if report.HasErrors() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Dependencies: report.Dependencies})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Dependencies: report.Dependencies})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
