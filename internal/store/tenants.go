package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"schoolhub/internal/db"
)

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantExists    = errors.New("tenant schema already registered")
	ErrTenantNameEmpty = errors.New("tenant display name required")
)

// Tenant is one registered school. SchemaName is fixed at creation.
type Tenant struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	SchemaName  string    `json:"schema_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func CreateTenant(ctx context.Context, q db.DBTX, displayName, schemaName string) (*Tenant, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrTenantNameEmpty
	}
	t := Tenant{ID: uuid.New(), DisplayName: displayName, SchemaName: schemaName}
	err := q.QueryRow(ctx, `
INSERT INTO public.tenants (id, display_name, schema_name)
VALUES ($1, $2, $3)
RETURNING created_at`, t.ID, t.DisplayName, t.SchemaName).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrTenantExists
		}
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return &t, nil
}

func GetTenantBySchema(ctx context.Context, q db.DBTX, schemaName string) (*Tenant, error) {
	var t Tenant
	err := q.QueryRow(ctx, `
SELECT id, display_name, schema_name, created_at
FROM public.tenants
WHERE schema_name = $1`, schemaName).Scan(&t.ID, &t.DisplayName, &t.SchemaName, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func ListTenants(ctx context.Context, q db.DBTX) ([]Tenant, error) {
	rows, err := q.Query(ctx, `
SELECT id, display_name, schema_name, created_at
FROM public.tenants
ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []Tenant{}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.SchemaName, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// TenantSchemas returns only the schema names, for fan-out inspection.
func TenantSchemas(ctx context.Context, q db.DBTX) ([]string, error) {
	tenants, err := ListTenants(ctx, q)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tenants))
	for _, t := range tenants {
		names = append(names, t.SchemaName)
	}
	return names, nil
}

// Registry binds the tenant functions to one query surface.
type Registry struct {
	db db.DBTX
}

func NewRegistry(q db.DBTX) *Registry {
	return &Registry{db: q}
}

func (r *Registry) ListTenants(ctx context.Context) ([]Tenant, error) {
	return ListTenants(ctx, r.db)
}

func (r *Registry) GetTenantBySchema(ctx context.Context, schemaName string) (*Tenant, error) {
	return GetTenantBySchema(ctx, r.db, schemaName)
}

func (r *Registry) Schemas(ctx context.Context) ([]string, error) {
	return TenantSchemas(ctx, r.db)
}
