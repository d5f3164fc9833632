package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolhub/internal/app"
	"schoolhub/internal/audit"
	"schoolhub/internal/auth"
	"schoolhub/internal/config"
	httpserver "schoolhub/internal/http"
	"schoolhub/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := runMigrations(ctx, a); err != nil {
		logger.Error("migrations failed", "error", err)
		a.Close()
		os.Exit(1)
	}

	_ = audit.LogEvent(ctx, a.Pool, logger, audit.Event{
		Action:     audit.ActionServerStarted,
		EntityType: "system",
		Payload: map[string]any{
			"http_addr": cfg.HTTPAddress,
			"ts":        time.Now().UTC(),
		},
	})

	authn := auth.NewTokenAuthenticator(cfg.AdminToken, cfg.OperatorToken)
	if !authn.Enabled() {
		logger.Warn("no admin or operator token configured; protected routes will reject every request")
	}

	server := httpserver.New(cfg, logger, httpserver.Deps{
		DB:         a.Pool,
		Authn:      authn,
		Metrics:    a.Metrics,
		Tenants:    a.Introspector,
		Migrations: httpserver.NewMigrationHandler(a.Tracker, a.Runner, logger),
		TenantAPI:  httpserver.NewTenantHandler(a.Registry, a.Provisioner, a.Introspector, a.Scope, logger),
	})

	if err := server.Start(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
}

// runMigrations applies pending files and records the outcome in the audit
// log. A failure aborts startup.
func runMigrations(ctx context.Context, a *app.App) error {
	summary, err := a.Runner.Run(ctx)
	executed, skipped, failed := summary.Counts()
	event := audit.Event{
		Action:     audit.ActionMigrationsApplied,
		EntityType: "migration",
		Payload: map[string]any{
			"executed": summary.Executed,
			"skipped":  skipped,
		},
	}
	if err != nil {
		event.Action = audit.ActionMigrationFailed
		event.Payload["error"] = err.Error()
		event.Payload["failed"] = summary.Failed
		if failed == 0 {
			// lock or ledger failure before any file ran; audit table may not exist yet
			return err
		}
	} else if executed == 0 {
		return nil
	}
	_ = audit.LogEvent(context.WithoutCancel(ctx), a.Pool, a.Logger, event)
	return err
}
