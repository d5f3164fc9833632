//go:build integration

package migrate

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub/internal/testutil"
	"schoolhub/migrations"
)

func TestTrackerUpsertKeepsOneRow(t *testing.T) {
	pool, _ := testutil.StartPostgres(t)
	ctx := context.Background()
	tracker := NewTracker(pool, "")

	require.NoError(t, tracker.EnsureMigrationTable(ctx))
	require.NoError(t, tracker.EnsureMigrationTable(ctx))

	require.NoError(t, tracker.RecordMigrationExecution(ctx, "001_a.sql", 5, "syntax error"))
	executed, err := tracker.IsMigrationExecuted(ctx, "001_a.sql")
	require.NoError(t, err)
	assert.True(t, executed)
	succeeded, err := tracker.IsMigrationSucceeded(ctx, "001_a.sql")
	require.NoError(t, err)
	assert.False(t, succeeded)

	require.NoError(t, tracker.RecordMigrationExecution(ctx, "001_a.sql", 7, ""))
	records, err := tracker.ListMigrationRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Succeeded())
	assert.EqualValues(t, 7, *records[0].ExecutionTimeMs)

	removed, err := tracker.ForgetMigration(ctx, "001_a.sql")
	require.NoError(t, err)
	assert.True(t, removed)
	files, err := tracker.GetExecutedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunnerAppliesEmbeddedMigrations(t *testing.T) {
	pool, _ := testutil.StartPostgres(t)
	ctx := context.Background()
	tracker := NewTracker(pool, "")

	runner := NewRunner(tracker, pool, migrations.FS(), WithLocker(NewPostgresLock(pool)))
	summary, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_tenants.sql", "002_create_audit_events.sql"}, summary.Executed)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables WHERE table_schema='public' AND table_name IN ('tenants','audit_events')`).Scan(&n))
	assert.Equal(t, 2, n)

	summary, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, summary.Skipped, 2)
	assert.Empty(t, summary.Executed)
}

func TestRunnerStopsAndRetries(t *testing.T) {
	pool, _ := testutil.StartPostgres(t)
	ctx := context.Background()
	tracker := NewTracker(pool, "")

	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a (id int); CREATE TABLE a2 (id int);")},
		"002_b.sql": {Data: []byte("CREATE TABLE b (id int); CREATE TABLE b (id int);")},
		"003_c.sql": {Data: []byte("CREATE TABLE c (id int);")},
	}
	_, err := NewRunner(tracker, pool, fsys).Run(ctx)
	var execErr *MigrationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "002_b.sql", execErr.File)

	var exists bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.b') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists, "failed batch must not leave partial tables")
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.c') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists)

	fsys["002_b.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (id int);")}
	summary, err := NewRunner(tracker, pool, fsys).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_b.sql", "003_c.sql"}, summary.Executed)

	records, err := tracker.ListMigrationRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestConcurrentRunnersApplyOnce(t *testing.T) {
	pool, _ := testutil.StartPostgres(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE once (id int);")},
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner := NewRunner(NewTracker(pool, ""), pool, fsys, WithLocker(NewPostgresLock(pool)))
			_, errs[i] = runner.Run(ctx)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}
