package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type recordingDB struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (d *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.calls = append(d.calls, execCall{sql: sql, args: args})
	return d.tag, d.err
}

func (d *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestRecordMigrationExecutionMapsEmptyMessageToNull(t *testing.T) {
	d := &recordingDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	tr := NewTracker(d, "")

	require.NoError(t, tr.RecordMigrationExecution(context.Background(), "001_a.sql", 12, ""))
	require.NoError(t, tr.RecordMigrationExecution(context.Background(), "002_b.sql", 3, "syntax error"))
	require.Len(t, d.calls, 2)

	ok := d.calls[0]
	assert.Contains(t, ok.sql, `INSERT INTO "migration_executions"`)
	assert.Contains(t, ok.sql, "ON CONFLICT (migration_file) DO UPDATE")
	assert.Equal(t, "001_a.sql", ok.args[0])
	assert.Equal(t, int64(12), ok.args[1])
	assert.Nil(t, ok.args[2].(*string))

	failed := d.calls[1]
	msg, isPtr := failed.args[2].(*string)
	require.True(t, isPtr)
	require.NotNil(t, msg)
	assert.Equal(t, "syntax error", *msg)
}

func TestRecordMigrationExecutionWrapsError(t *testing.T) {
	boom := errors.New("conn closed")
	tr := NewTracker(&recordingDB{err: boom}, "ledger")
	err := tr.RecordMigrationExecution(context.Background(), "001_a.sql", 1, "")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "001_a.sql")
}

func TestEnsureMigrationTableQuotesConfiguredName(t *testing.T) {
	d := &recordingDB{}
	require.NoError(t, NewTracker(d, "ledger").EnsureMigrationTable(context.Background()))
	require.Len(t, d.calls, 1)
	assert.Contains(t, d.calls[0].sql, `CREATE TABLE IF NOT EXISTS "ledger"`)
	assert.Contains(t, d.calls[0].sql, `"idx_ledger_file"`)
}

func TestForgetMigration(t *testing.T) {
	d := &recordingDB{tag: pgconn.NewCommandTag("DELETE 1")}
	tr := NewTracker(d, "")

	_, err := tr.ForgetMigration(context.Background(), "")
	require.Error(t, err)
	assert.Empty(t, d.calls)

	removed, err := tr.ForgetMigration(context.Background(), "001_a.sql")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []any{"001_a.sql"}, d.calls[0].args)

	d.tag = pgconn.NewCommandTag("DELETE 0")
	removed, err = tr.ForgetMigration(context.Background(), "002_b.sql")
	require.NoError(t, err)
	assert.False(t, removed)
}
