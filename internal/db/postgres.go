package db

import (
	"context"
	"fmt"
	"strings"
)

// Catalog runs read-only information_schema queries. Schema names are always
// bound as parameters here, never interpolated.
type Catalog struct {
	db DBTX
}

func NewCatalog(db DBTX) *Catalog {
	return &Catalog{db: db}
}

// ListTables returns the base tables of schema ordered by name.
func (c *Catalog) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := c.db.Query(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema=$1 AND table_type='BASE TABLE'
ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (c *Catalog) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := c.db.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM information_schema.schemata WHERE schema_name=$1
)`, schema).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query schema existence: %w", err)
	}
	return exists, nil
}

func (c *Catalog) CountTables(ctx context.Context, schema string) (int, error) {
	var n int
	err := c.db.QueryRow(ctx, `
SELECT count(*)
FROM information_schema.tables
WHERE table_schema=$1 AND table_type='BASE TABLE'`, schema).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tables: %w", err)
	}
	return n, nil
}

// FetchSchema loads tables, columns and primary keys of schema.
func (c *Catalog) FetchSchema(ctx context.Context, schema string) (Schema, error) {
	result := Schema{Name: schema, Tables: map[string]Table{}}

	tables, err := c.ListTables(ctx, schema)
	if err != nil {
		return result, err
	}
	for _, name := range tables {
		result.Tables[name] = Table{
			Name:       name,
			Columns:    map[string]Column{},
			PrimaryKey: []string{},
		}
	}

	colsRows, err := c.db.Query(ctx, `
SELECT table_name, column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema=$1`, schema)
	if err != nil {
		return result, fmt.Errorf("query columns: %w", err)
	}
	defer colsRows.Close()

	for colsRows.Next() {
		var tbl, col, dataType, nullable string
		var def *string
		if err := colsRows.Scan(&tbl, &col, &dataType, &nullable, &def); err != nil {
			return result, fmt.Errorf("scan column: %w", err)
		}
		t, ok := result.Tables[tbl]
		if !ok {
			continue
		}
		t.Columns[col] = Column{
			Name:         col,
			DataType:     dataType,
			IsNullable:   strings.EqualFold(nullable, "YES"),
			DefaultValue: def,
		}
	}
	if err := colsRows.Err(); err != nil {
		return result, err
	}

	pkRows, err := c.db.Query(ctx, `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.table_name = kcu.table_name
WHERE tc.table_schema=$1 AND tc.constraint_type='PRIMARY KEY'
ORDER BY tc.table_name, kcu.ordinal_position`, schema)
	if err != nil {
		return result, fmt.Errorf("query primary keys: %w", err)
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var tbl, col string
		if err := pkRows.Scan(&tbl, &col); err != nil {
			return result, fmt.Errorf("scan primary key: %w", err)
		}
		t, ok := result.Tables[tbl]
		if !ok {
			continue
		}
		t.PrimaryKey = append(t.PrimaryKey, col)
		result.Tables[tbl] = t
	}
	return result, pkRows.Err()
}

// QuoteIdent double-quotes an identifier. Callers validate the name first.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
