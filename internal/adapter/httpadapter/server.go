// Package httpadapter serves the watershed finder over HTTP: health and
// metrics probes, the websocket map channel, and a one-shot lookup API.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/watershed-finder/internal/observability"
	"github.com/couchcryptid/watershed-finder/internal/pipeline"
)

// LookupService hands out orchestrators and reports readiness.
type LookupService interface {
	sharedobs.ReadinessChecker
	NewOrchestrator(r pipeline.Renderer, l pipeline.StatusListener) (*pipeline.Orchestrator, error)
}

// Options configures the HTTP surface.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// LookupRate limits /api and /ws requests per second across all clients.
	// Zero or negative disables throttling.
	LookupRate  float64
	LookupBurst int
}

// Server exposes health, readiness, metrics, the websocket channel, and the
// lookup API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the HTTP server. mapHandler serves GET /ws.
func NewServer(opts Options, svc LookupService, mapHandler http.Handler, metrics *observability.Metrics, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(svc))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	lookup := &lookupHandler{svc: svc, logger: logger}
	r.Group(func(r chi.Router) {
		r.Use(throttle(opts.LookupRate, opts.LookupBurst, metrics, logger))
		r.Method(http.MethodGet, "/ws", mapHandler)
		r.Post("/api/v1/lookup", lookup.ServeHTTP)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// throttle rejects requests beyond the shared token bucket with 429. Every
// lookup fans out to the geocoder, whose own spacing would otherwise turn a
// burst into a long queue.
func throttle(limit float64, burst int, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(limit), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				metrics.Throttled.Inc()
				logger.Warn("request throttled", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
				w.Header().Set("Retry-After", "1")
				sharedobs.WriteJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", Kind: "throttled"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
