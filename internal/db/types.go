package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema holds the introspected structure of a tenant schema.
type Schema struct {
	Name   string
	Tables map[string]Table
}

// Table describes a table and its columns.
type Table struct {
	Name       string
	Columns    map[string]Column
	PrimaryKey []string
}

// Column describes a table column.
type Column struct {
	Name         string
	DataType     string
	IsNullable   bool
	DefaultValue *string
}
