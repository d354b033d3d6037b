// Package http serves the calculator as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"taxcalc/internal/core"
	"taxcalc/internal/log"
	"taxcalc/internal/middleware/ratelimit"
	"taxcalc/internal/middleware/security"
	"taxcalc/internal/tax"
)

// Calculator is the service the API exposes
type Calculator interface {
	Years() []int
	Compute(ctx context.Context, year int, gross core.Money) (tax.Calculation, error)
	Calculate(ctx context.Context, year int, gross core.Money) (tax.Calculation, error)
	Enqueue(ctx context.Context, year int, gross core.Money) (string, error)
	History(ctx context.Context, limit int) ([]tax.Calculation, error)
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

type Config struct {
	Addr              string
	RequestsPerMinute int
	// ReadinessChecks are run by /readyz, keyed by dependency name
	ReadinessChecks map[string]ReadinessCheck
}

type Server struct {
	http.Server
	calc         Calculator
	limiter      *ratelimit.Limiter
	checks       map[string]ReadinessCheck
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server
func NewServer(cfg Config, calc Calculator, logger *log.Logger) *Server {
	logger = logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		calc:    calc,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
		checks:  cfg.ReadinessChecks,
		logger:  logger,
	}

	r := mux.NewRouter()
	r.Use(log.Middleware(logger, ClientIP))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.Middleware(ClientIP, s.onRateLimit))
	api.HandleFunc("/years", s.handleYears).Methods(http.MethodGet)
	api.HandleFunc("/tax/{year:[0-9]+}", s.handleTax).Methods(http.MethodGet)
	api.HandleFunc("/tax/{year:[0-9]+}/pdf", s.handleTaxPDF).Methods(http.MethodGet)
	api.HandleFunc("/calculations", s.handleCreateCalculation).Methods(http.MethodPost)
	api.HandleFunc("/calculations", s.handleListCalculations).Methods(http.MethodGet)
	api.HandleFunc("/calculations/queue", s.handleEnqueueCalculation).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// RateLimitMetrics reports rate limiter activity for the API routes
func (s *Server) RateLimitMetrics() ratelimit.Metrics {
	return s.limiter.Metrics()
}

// Shutdown stops the rate limiter and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
