package tenant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub/internal/db"
)

type fakeConn struct {
	execs    []string
	failOn   string
	released int
	closed   bool
	tx       *fakeTx
	beginErr error
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	if c.failOn != "" && strings.HasPrefix(sql, c.failOn) {
		return pgconn.CommandTag{}, errors.New("boom: " + sql)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	c.tx = &fakeTx{}
	return c.tx, nil
}

func (c *fakeConn) Release() { c.released++ }

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

type fakeTx struct {
	pgx.Tx
	execs      []string
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeAcquirer struct {
	conn     *fakeConn
	acquired int
	err      error
}

func (a *fakeAcquirer) Acquire(context.Context) (conn, error) {
	a.acquired++
	if a.err != nil {
		return nil, a.err
	}
	return a.conn, nil
}

func newTestScope(c *fakeConn) (*Scope, *fakeAcquirer) {
	a := &fakeAcquirer{conn: c}
	return newScope(a), a
}

func TestWithTenant_InvalidNameFailsClosed(t *testing.T) {
	c := &fakeConn{}
	scope, acq := newTestScope(c)

	called := false
	err := scope.WithTenant(context.Background(), "evil; DROP SCHEMA public", func(context.Context, db.DBTX) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, ErrInvalidSchemaName)
	assert.False(t, called)
	assert.Zero(t, acq.acquired)
	assert.Empty(t, c.execs)
}

func TestWithTenant_ScopesAndResets(t *testing.T) {
	c := &fakeConn{}
	scope, _ := newTestScope(c)

	err := scope.WithTenant(context.Background(), "greenwood", func(ctx context.Context, q db.DBTX) error {
		_, err := q.Exec(ctx, "INSERT INTO students (name) VALUES ($1)", "Ada")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		`SET search_path TO "greenwood"`,
		"INSERT INTO students (name) VALUES ($1)",
		"RESET search_path",
	}, c.execs)
	assert.Equal(t, 1, c.released)
	assert.False(t, c.closed)
}

func TestWithTenant_CallbackErrorStillReleases(t *testing.T) {
	c := &fakeConn{}
	scope, _ := newTestScope(c)
	want := errors.New("callback failed")

	err := scope.WithTenant(context.Background(), "greenwood", func(context.Context, db.DBTX) error {
		return want
	})

	require.ErrorIs(t, err, want)
	assert.Equal(t, "RESET search_path", c.execs[len(c.execs)-1])
	assert.Equal(t, 1, c.released)
}

func TestWithTenant_PanicStillReleases(t *testing.T) {
	c := &fakeConn{}
	scope, _ := newTestScope(c)

	assert.Panics(t, func() {
		_ = scope.WithTenant(context.Background(), "greenwood", func(context.Context, db.DBTX) error {
			panic("handler bug")
		})
	})
	assert.Equal(t, 1, c.released)
}

func TestWithTenant_ResetFailureDiscardsConnection(t *testing.T) {
	c := &fakeConn{failOn: "RESET"}
	scope, _ := newTestScope(c)

	err := scope.WithTenant(context.Background(), "greenwood", func(context.Context, db.DBTX) error {
		return nil
	})

	require.NoError(t, err)
	assert.True(t, c.closed)
	assert.Equal(t, 1, c.released)
}

func TestWithTenant_SetFailureSkipsCallback(t *testing.T) {
	c := &fakeConn{failOn: "SET search_path"}
	scope, _ := newTestScope(c)

	called := false
	err := scope.WithTenant(context.Background(), "greenwood", func(context.Context, db.DBTX) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, 1, c.released)
}

func TestWithTenant_AcquireFailure(t *testing.T) {
	a := &fakeAcquirer{err: errors.New("pool exhausted")}
	scope := newScope(a)

	err := scope.WithTenant(context.Background(), "greenwood", func(context.Context, db.DBTX) error {
		t.Fatal("callback must not run")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestWithTenantTx_CommitsWithLocalPath(t *testing.T) {
	c := &fakeConn{}
	scope, _ := newTestScope(c)

	err := scope.WithTenantTx(context.Background(), "greenwood", func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "CREATE TABLE schools (id int)")
		return err
	})

	require.NoError(t, err)
	require.NotNil(t, c.tx)
	assert.Equal(t, []string{`SET LOCAL search_path TO "greenwood"`, "CREATE TABLE schools (id int)"}, c.tx.execs)
	assert.True(t, c.tx.committed)
	assert.False(t, c.tx.rolledBack)
	assert.Equal(t, 1, c.released)
}

func TestWithTenantTx_RollsBackOnError(t *testing.T) {
	c := &fakeConn{}
	scope, _ := newTestScope(c)

	err := scope.WithTenantTx(context.Background(), "greenwood", func(context.Context, pgx.Tx) error {
		return errors.New("nope")
	})

	require.Error(t, err)
	assert.False(t, c.tx.committed)
	assert.True(t, c.tx.rolledBack)
	assert.Equal(t, 1, c.released)
}

func TestWithTenantTx_InvalidNameFailsClosed(t *testing.T) {
	c := &fakeConn{}
	scope, acq := newTestScope(c)

	err := scope.WithTenantTx(context.Background(), "Bad Name", func(context.Context, pgx.Tx) error {
		return nil
	})

	require.ErrorIs(t, err, ErrInvalidSchemaName)
	assert.Zero(t, acq.acquired)
}
