package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

type rowDB struct {
	sql  string
	args []any
	row  rowFunc
}

func (d *rowDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported")
}

func (d *rowDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *rowDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.sql, d.args = sql, args
	return d.row
}

func TestCreateTenantTrimsNameAndReturnsRow(t *testing.T) {
	created := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	d := &rowDB{row: func(dest ...any) error {
		*dest[0].(*time.Time) = created
		return nil
	}}

	tn, err := CreateTenant(context.Background(), d, "  Oak Hill  ", "tenant_oak")
	require.NoError(t, err)
	assert.Equal(t, "Oak Hill", tn.DisplayName)
	assert.Equal(t, "tenant_oak", tn.SchemaName)
	assert.Equal(t, created, tn.CreatedAt)
	assert.Contains(t, d.sql, "INSERT INTO public.tenants")
	assert.Equal(t, []any{tn.ID, "Oak Hill", "tenant_oak"}, d.args)
}

func TestCreateTenantErrors(t *testing.T) {
	_, err := CreateTenant(context.Background(), &rowDB{}, "   ", "tenant_oak")
	assert.ErrorIs(t, err, ErrTenantNameEmpty)

	dup := &rowDB{row: func(...any) error { return &pgconn.PgError{Code: "23505"} }}
	_, err = CreateTenant(context.Background(), dup, "Oak", "tenant_oak")
	assert.ErrorIs(t, err, ErrTenantExists)

	boom := errors.New("conn refused")
	_, err = CreateTenant(context.Background(), &rowDB{row: func(...any) error { return boom }}, "Oak", "tenant_oak")
	assert.ErrorIs(t, err, boom)
}

func TestGetTenantBySchemaNotFound(t *testing.T) {
	d := &rowDB{row: func(...any) error { return pgx.ErrNoRows }}
	_, err := GetTenantBySchema(context.Background(), d, "tenant_ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.Equal(t, []any{"tenant_ghost"}, d.args)
}
