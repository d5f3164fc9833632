package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"schoolhub/internal/auth"
	"schoolhub/internal/config"
	"schoolhub/internal/metrics"
	"schoolhub/internal/rbac"
)

type appLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Deps struct {
	DB         Pinger
	Authn      auth.Authenticator
	Metrics    *metrics.Metrics
	Tenants    existenceChecker
	Migrations *MigrationHandler
	TenantAPI  *TenantHandler
}

type Server struct {
	cfg     config.Config
	logger  appLogger
	deps    Deps
	limiter *TenantRateLimiter
}

func New(cfg config.Config, logger appLogger, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		deps:    deps,
		limiter: NewTenantRateLimiter(cfg.TenantLimit.RPS, cfg.TenantLimit.Burst),
	}
}

func (s *Server) Start(ctx context.Context) error {
	defer s.limiter.Stop()

	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(RequestLogger(s.logger, s.deps.Metrics))

	authMiddleware := NewAuthMiddleware(s.deps.Authn, s.logger)

	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Method(http.MethodGet, "/health", HealthHandler{DB: s.deps.DB})

		api.Group(func(authenticated chi.Router) {
			authenticated.Use(authMiddleware.RequireAuth)
			authenticated.Use(authMiddleware.RequireRoles(rbac.RoleOperator, rbac.RoleAdmin))

			authenticated.Get("/migrations", s.deps.Migrations.List)

			authenticated.Route("/tenants", func(tr chi.Router) {
				tr.Get("/", s.deps.TenantAPI.List)
				tr.With(authMiddleware.RequireRoles(rbac.RoleAdmin)).Post("/", s.deps.TenantAPI.Create)

				tr.Get("/{schema}/schema", s.deps.TenantAPI.Schema)
				tr.Get("/{schema}/exists", s.deps.TenantAPI.Exists)
				tr.With(ResolveTenant(s.deps.Tenants), s.limiter.Middleware).Get("/{schema}/stats", s.deps.TenantAPI.Stats)
			})
		})
	})

	return r
}
