package tenant

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"schoolhub/internal/audit"
	"schoolhub/internal/store"
)

//go:embed baseline.sql
var baselineDDL string

// BaselineDDL returns the statements that create a tenant's tables. They are
// unqualified and land in whatever schema search_path selects.
func BaselineDDL() string { return baselineDDL }

type txScope interface {
	WithTenantTx(ctx context.Context, schema string, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type CreateInput struct {
	DisplayName string `json:"display_name"`
	SchemaName  string `json:"schema_name"`
	Actor       string `json:"-"`
}

// Provisioner registers a tenant and builds its schema in one transaction.
type Provisioner struct {
	scope  txScope
	logger *slog.Logger
}

func NewProvisioner(scope *Scope, logger *slog.Logger) *Provisioner {
	return newProvisioner(scope, logger)
}

func newProvisioner(scope txScope, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{scope: scope, logger: logger}
}

func (p *Provisioner) Create(ctx context.Context, in CreateInput) (*store.Tenant, error) {
	quoted, err := QuoteSchema(in.SchemaName)
	if err != nil {
		return nil, err
	}

	var created *store.Tenant
	err = p.scope.WithTenantTx(ctx, in.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		t, err := store.CreateTenant(ctx, tx, in.DisplayName, in.SchemaName)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "CREATE SCHEMA "+quoted); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42P06" {
				return store.ErrTenantExists
			}
			return fmt.Errorf("create schema %s: %w", in.SchemaName, err)
		}
		if _, err := tx.Exec(ctx, baselineDDL); err != nil {
			return fmt.Errorf("create baseline tables in %s: %w", in.SchemaName, err)
		}
		if err := audit.LogEvent(ctx, tx, p.logger, audit.Event{
			Actor:      in.Actor,
			Action:     audit.ActionTenantCreated,
			EntityType: "tenant",
			EntityID:   t.ID.String(),
			Payload:    map[string]any{"schema_name": t.SchemaName, "display_name": t.DisplayName},
		}); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("tenant created", "schema", created.SchemaName, "tenant_id", created.ID)
	return created, nil
}
