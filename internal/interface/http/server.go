// Package http implements the REST API of the admissions hub: catalog search,
// score estimates, student applications and the admin matching endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/admissions-hub/admissions-hub/config"
	"github.com/admissions-hub/admissions-hub/internal/application/command"
	"github.com/admissions-hub/admissions-hub/internal/application/query"
	"github.com/admissions-hub/admissions-hub/internal/interface/http/handlers"
	"github.com/admissions-hub/admissions-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64
	AllowedOrigins []string

	// RateLimitPerMinute is per client IP; 0 disables the limiter.
	RateLimitPerMinute int

	// CatalogMaxAge is the Cache-Control max-age of public catalog reads.
	CatalogMaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       60 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		CatalogMaxAge:      5 * time.Minute,
	}
}

// FromAppConfig overlays the non-zero values of the process configuration
// on DefaultConfig.
func FromAppConfig(c config.HTTPConfig) Config {
	cfg := DefaultConfig()
	overlay(&cfg.Addr, c.Addr)
	overlay(&cfg.ReadTimeout, c.ReadTimeout)
	overlay(&cfg.WriteTimeout, c.WriteTimeout)
	overlay(&cfg.IdleTimeout, c.IdleTimeout)
	if len(c.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = c.AllowedOrigins
	}
	return cfg
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// Dependencies are the command and query handlers behind the routes.
type Dependencies struct {
	SubmitApplication *command.SubmitApplicationHandler
	ReorderWishes     *command.ReorderWishesHandler
	UpdateProfile     *command.UpdateProfileHandler
	RunMatching       *command.RunMatchingHandler

	EstimateScore    *query.EstimateScoreHandler
	ListApplications *query.ListApplicationsHandler
	SearchCatalog    *query.SearchCatalogHandler
	ComparePrograms  *query.CompareProgramsHandler
	LatestRun        *query.LatestRunHandler

	Auth     *handlers.Authenticator
	Features *config.FeatureFlags
	Logger   *logger.Logger

	// HealthChecker is optional; without it /health and /ready always pass.
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config  Config
	deps    Dependencies
	logger  *logger.Logger
	handler http.Handler
	srv     *http.Server
	limiter *rateLimiter

	// startedAt is zero while the server is not serving.
	startedAt atomic.Pointer[time.Time]
}

func NewServer(cfg Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Server{config: cfg, deps: deps, logger: log.With(logger.Component("http"))}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	s.handler = handlers.ChainHandler(s.routes(), s.middleware()...)
	s.srv = &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
	return s
}

// Handler is the router wrapped in the full middleware stack.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)

	var (
		public  = handlers.CacheControlMiddleware(s.config.CatalogMaxAge)
		student = handlers.Chain(s.deps.Auth.Middleware, handlers.NoCacheMiddleware)
		admin   = handlers.Chain(s.deps.Auth.Middleware, handlers.RequireAdmin, handlers.NoCacheMiddleware)
	)
	api := r.PathPrefix("/api/v1").Subrouter()
	route := func(method, path string, guard handlers.MiddlewareFunc, h http.HandlerFunc) {
		api.Handle(path, guard(h)).Methods(method)
	}

	route(http.MethodGet, "/programs", public, s.handleSearchPrograms)
	route(http.MethodGet, "/programs/compare", public, s.handleComparePrograms)
	route(http.MethodGet, "/programs/{id}", public, s.handleGetProgram)

	route(http.MethodGet, "/programs/{id}/estimate", student, s.handleEstimate)
	route(http.MethodGet, "/applications", student, s.handleListApplications)
	route(http.MethodPost, "/applications", student, s.handleSubmitApplication)
	route(http.MethodPut, "/applications/order", student, s.handleReorderWishes)
	route(http.MethodPut, "/profile", student, s.handleUpdateProfile)

	route(http.MethodPost, "/admin/matching-runs", admin, s.handleRunMatching)
	route(http.MethodGet, "/admin/matching-runs/latest", admin, s.handleLatestRun)
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	now := time.Now()
	if !s.startedAt.CompareAndSwap(nil, &now) {
		return errors.New("server already running")
	}

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.startedAt.Store(nil)
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields at most one
// error and is closed when Start returns.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.startedAt.Swap(nil) == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) IsRunning() bool { return s.startedAt.Load() != nil }

func (s *Server) Uptime() time.Duration {
	if t := s.startedAt.Load(); t != nil {
		return time.Since(*t)
	}
	return 0
}
