package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cariya/internal/amqp"
	applog "cariya/internal/log"
	"cariya/internal/middleware/ratelimit"
	"cariya/internal/middleware/security"
	"cariya/internal/middleware/trace"
	"cariya/internal/scoring"
	"cariya/internal/services"
)

// Scheduler queues a month-end processing run for the worker.
type Scheduler interface {
	PublishScoreMonth(ctx context.Context, msg *amqp.ScoreMonthMessage) error
}

// Deps are the collaborators the handlers call into. Scheduler and Ready
// are optional.
type Deps struct {
	Users     *services.UserService
	Batch     *services.BatchProcessor
	Reports   *services.Reports
	Engine    *scoring.Engine
	Scheduler Scheduler
	Ready     func(ctx context.Context) error
	Logger    *applog.Logger
	RateLimit ratelimit.Config
	// TrustedProxies are CIDRs whose forwarding headers are believed, in
	// addition to loopback and private networks.
	TrustedProxies []string
}

type Server struct {
	http.Server

	users     *services.UserService
	batch     *services.BatchProcessor
	reports   *services.Reports
	engine    *scoring.Engine
	scheduler Scheduler
	ready     func(ctx context.Context) error
	logger    *applog.Logger
	events    *applog.StructuredLogger

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	trace       *trace.Middleware
	appMetrics  *appMetrics

	shutdownOnce sync.Once
}

// appMetrics counts domain writes since startup.
type appMetrics struct {
	registrations int64
	savings       int64
	activities    int64
	runs          int64
	uptime        time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}

	s := &Server{
		users:       deps.Users,
		batch:       deps.Batch,
		reports:     deps.Reports,
		engine:      deps.Engine,
		scheduler:   deps.Scheduler,
		ready:       deps.Ready,
		logger:      logger,
		events:      applog.NewStructuredLogger(logger),
		detector:    detector,
		rateLimiter: ratelimit.NewLimiter(deps.RateLimit),
		trace:       trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics:  &appMetrics{uptime: time.Now()},
	}

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentSecurity,
			applog.FieldClientIP, detector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})

	mux := http.NewServeMux()
	mux.Handle("POST /register", limited(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /login", limited(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("GET /users/{id}", s.handleUserSummary)
	mux.HandleFunc("POST /users/{id}/savings", s.handleRecordSavings)
	mux.HandleFunc("POST /users/{id}/activities", s.handleRecordActivity)
	mux.HandleFunc("GET /users/{id}/compliance", s.handleCompliance)
	mux.HandleFunc("POST /calculate-scores", s.handleCalculateScores)
	mux.HandleFunc("GET /donor-view", s.handleDonorView)
	mux.HandleFunc("GET /segments", s.handleSegments)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.trace.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
