package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"schoolhub/internal/cache"
	"schoolhub/internal/config"
	"schoolhub/internal/db"
	"schoolhub/internal/introspect"
	"schoolhub/internal/metrics"
	"schoolhub/internal/migrate"
	"schoolhub/internal/store"
	"schoolhub/internal/tenant"
)

// App holds the components shared by the server and the operator CLI.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	Metrics      *metrics.Metrics
	Tracker      *migrate.Tracker
	Runner       *migrate.Runner
	Catalog      *db.Catalog
	Introspector *introspect.Introspector
	Scope        *tenant.Scope
	Provisioner  *tenant.Provisioner
	Registry     *store.Registry

	closeCache func() error
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	pool, err := store.Connect(ctx, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		return nil, err
	}
	c, closeCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	m := metrics.New()
	var locker migrate.Locker = migrate.NoopLock{}
	if cfg.Migrations.Lock {
		locker = migrate.NewPostgresLock(pool)
	}

	tracker := migrate.NewTracker(pool, cfg.Migrations.Table)
	runner := migrate.NewRunner(tracker, pool, migrate.SourceFS(cfg.Migrations.Dir),
		migrate.WithLocker(locker),
		migrate.WithLogger(logger),
		migrate.WithMetrics(m),
	)
	catalog := db.NewCatalog(pool)
	inspector := introspect.New(catalog,
		introspect.WithCache(c, cfg.Cache.TTL),
		introspect.WithLogger(logger),
		introspect.WithMetrics(m),
	)
	scope := tenant.NewScope(pool, tenant.WithScopeLogger(logger), tenant.WithScopeMetrics(m))

	return &App{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Metrics:      m,
		Tracker:      tracker,
		Runner:       runner,
		Catalog:      catalog,
		Introspector: inspector,
		Scope:        scope,
		Provisioner:  tenant.NewProvisioner(scope, logger),
		Registry:     store.NewRegistry(pool),
		closeCache:   closeCache,
	}, nil
}

func (a *App) Close() {
	if err := a.closeCache(); err != nil {
		a.Logger.Warn("close cache failed", "error", err)
	}
	a.Pool.Close()
}
