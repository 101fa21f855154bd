// Package server exposes the detection and redaction pipeline over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/veildata/veil/internal/audit"
	"github.com/veildata/veil/internal/detect"
	veilotel "github.com/veildata/veil/internal/otel"
	"github.com/veildata/veil/internal/redact"
)

const defaultTimeout = 30 * time.Second

// Default rate limits: a global bucket for the whole process and one
// bucket per caller.
const (
	DefaultGlobalRPS = 100
	DefaultCallerRPS = 25
)

// Server wires the pattern library, external detectors, and the audit
// store to the HTTP surface.
type Server struct {
	router    *chi.Mux
	library   *detect.Library
	detector  *detect.PatternDetector
	externals []detect.ExternalDetector
	store     *audit.Store
	apiKeys   map[string]string
	strategy  string
	fields    []string
	stripHTML bool
	verify    bool
	limiter   *callerLimiter
	validate  *validator.Validate
	startTime time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables the /v1/jobs routes.
func WithAuditStore(store *audit.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithAPIKeys enables authentication. keys maps API key to caller name.
// Without keys the API is open, for local use.
func WithAPIKeys(keys map[string]string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithExternalDetectors adds detectors consulted after the pattern scan.
func WithExternalDetectors(detectors ...detect.ExternalDetector) Option {
	return func(s *Server) { s.externals = append(s.externals, detectors...) }
}

// WithDefaultStrategy sets the strategy used when requests omit one.
func WithDefaultStrategy(name string) Option {
	return func(s *Server) { s.strategy = name }
}

// WithFields sets the default record fields for /v1/records.
func WithFields(fields []string) Option {
	return func(s *Server) { s.fields = fields }
}

// WithStripHTML strips markup from fields before detection.
func WithStripHTML(enabled bool) Option {
	return func(s *Server) { s.stripHTML = enabled }
}

// WithVerification re-checks redacted text for residual PII and reports
// warnings in responses.
func WithVerification(enabled bool) Option {
	return func(s *Server) { s.verify = enabled }
}

// WithRateLimit overrides the default global and per-caller rates.
// Non-positive rates disable that bucket; a non-positive burst defaults
// to two seconds' worth.
func WithRateLimit(globalRPS, callerRPS, callerBurst int) Option {
	return func(s *Server) { s.limiter = newCallerLimiter(globalRPS, callerRPS, callerBurst) }
}

// NewServer builds a Server around a compiled pattern library.
func NewServer(library *detect.Library, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		library:   library,
		detector:  detect.NewPatternDetector(library),
		strategy:  redact.StrategyPlaceholder,
		verify:    true,
		validate:  validator.New(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = newCallerLimiter(DefaultGlobalRPS, DefaultCallerRPS, 0)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(veilotel.MiddlewareWithStatus())

	// Unauthenticated
	r.Get("/healthz", s.handleHealth)

	// Authenticated API group
	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/detect", s.handleDetect)
		r.Post("/redact", s.handleRedact)
		r.Post("/records", s.handleRecords)
		r.Get("/patterns", s.handlePatterns)

		r.Get("/jobs", s.handleJobsList)
		r.Get("/jobs/{id}", s.handleJobGet)
		r.Get("/jobs/{id}/verify", s.handleJobVerify)
	})

	return r
}
