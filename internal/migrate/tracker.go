package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"schoolhub/internal/db"
)

const DefaultLedgerTable = "migration_executions"

// Record is one ledger row. A non-nil ErrorMessage marks a failed attempt.
type Record struct {
	File            string    `json:"migration_file"`
	ExecutedAt      time.Time `json:"executed_at"`
	ExecutionTimeMs *int64    `json:"execution_time_ms,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
}

func (r Record) Succeeded() bool { return r.ErrorMessage == nil }

var _ Ledger = (*Tracker)(nil)

// Tracker reads and writes the migration ledger. The ledger holds the latest
// outcome per file; retries overwrite the row in place.
type Tracker struct {
	db    db.DBTX
	table string
}

// NewTracker binds a tracker to table. The table name must already be a safe
// identifier; config validation guarantees that for configured names.
func NewTracker(q db.DBTX, table string) *Tracker {
	if table == "" {
		table = DefaultLedgerTable
	}
	return &Tracker{db: q, table: table}
}

func (t *Tracker) EnsureMigrationTable(ctx context.Context) error {
	tableName := db.QuoteIdent(t.table)
	indexName := db.QuoteIdent("idx_" + t.table + "_file")
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	migration_file    TEXT PRIMARY KEY,
	executed_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	execution_time_ms INTEGER,
	error_message     TEXT
);
CREATE INDEX IF NOT EXISTS %s ON %s(migration_file);
`, tableName, indexName, tableName)
	if _, err := t.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

// IsMigrationExecuted reports whether any attempt, successful or not, is recorded.
func (t *Tracker) IsMigrationExecuted(ctx context.Context, file string) (bool, error) {
	var exists bool
	stmt := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE migration_file=$1)`, db.QuoteIdent(t.table))
	if err := t.db.QueryRow(ctx, stmt, file).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", file, err)
	}
	return exists, nil
}

func (t *Tracker) IsMigrationSucceeded(ctx context.Context, file string) (bool, error) {
	var ok bool
	stmt := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE migration_file=$1 AND error_message IS NULL)`, db.QuoteIdent(t.table))
	if err := t.db.QueryRow(ctx, stmt, file).Scan(&ok); err != nil {
		return false, fmt.Errorf("check migration %s: %w", file, err)
	}
	return ok, nil
}

// RecordMigrationExecution upserts the outcome for file. An empty
// errorMessage records success.
func (t *Tracker) RecordMigrationExecution(ctx context.Context, file string, durationMs int64, errorMessage string) error {
	var errText *string
	if errorMessage != "" {
		errText = &errorMessage
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s (migration_file, executed_at, execution_time_ms, error_message)
VALUES ($1, now(), $2, $3)
ON CONFLICT (migration_file) DO UPDATE
SET executed_at = EXCLUDED.executed_at,
    execution_time_ms = EXCLUDED.execution_time_ms,
    error_message = EXCLUDED.error_message
`, db.QuoteIdent(t.table))
	if _, err := t.db.Exec(ctx, stmt, file, durationMs, errText); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return nil
}

// GetExecutedMigrations returns recorded files in application order.
func (t *Tracker) GetExecutedMigrations(ctx context.Context) ([]string, error) {
	records, err := t.ListMigrationRecords(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(records))
	for _, r := range records {
		files = append(files, r.File)
	}
	return files, nil
}

func (t *Tracker) ListMigrationRecords(ctx context.Context) ([]Record, error) {
	stmt := fmt.Sprintf(`
SELECT migration_file, executed_at, execution_time_ms, error_message
FROM %s
ORDER BY executed_at ASC, migration_file ASC`, db.QuoteIdent(t.table))
	rows, err := t.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query migration ledger: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.File, &r.ExecutedAt, &r.ExecutionTimeMs, &r.ErrorMessage)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan migration ledger: %w", err)
	}
	return records, nil
}

// ForgetMigration deletes the ledger row for file so the next run retries it.
func (t *Tracker) ForgetMigration(ctx context.Context, file string) (bool, error) {
	if file == "" {
		return false, errors.New("migration file required")
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE migration_file=$1`, db.QuoteIdent(t.table))
	tag, err := t.db.Exec(ctx, stmt, file)
	if err != nil {
		return false, fmt.Errorf("forget migration %s: %w", file, err)
	}
	return tag.RowsAffected() > 0, nil
}
