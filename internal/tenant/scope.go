package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolhub/internal/db"
	"schoolhub/internal/metrics"
)

const resetTimeout = 5 * time.Second

type conn interface {
	db.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
	Close(ctx context.Context) error
}

type acquirer interface {
	Acquire(ctx context.Context) (conn, error)
}

type poolAcquirer struct {
	pool *pgxpool.Pool
}

func (p poolAcquirer) Acquire(ctx context.Context) (conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pooledConn{c}, nil
}

type pooledConn struct {
	*pgxpool.Conn
}

// Close closes the underlying connection; the following Release then
// destroys it instead of returning it to the pool.
func (c pooledConn) Close(ctx context.Context) error {
	return c.Conn.Conn().Close(ctx)
}

// Scope runs queries against exactly one tenant schema on a connection that
// is checked out for the duration of the call.
type Scope struct {
	pool    acquirer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type ScopeOption func(*Scope)

func WithScopeLogger(logger *slog.Logger) ScopeOption {
	return func(s *Scope) { s.logger = logger }
}

func WithScopeMetrics(m *metrics.Metrics) ScopeOption {
	return func(s *Scope) { s.metrics = m }
}

func NewScope(pool *pgxpool.Pool, opts ...ScopeOption) *Scope {
	return newScope(poolAcquirer{pool: pool}, opts...)
}

func newScope(pool acquirer, opts ...ScopeOption) *Scope {
	s := &Scope{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTenant sets the session search_path of a checked-out connection to
// schema, runs fn, then resets the path and releases the connection. An
// invalid schema name fails before a connection is touched.
func (s *Scope) WithTenant(ctx context.Context, schema string, fn func(ctx context.Context, q db.DBTX) error) error {
	quoted, err := QuoteSchema(schema)
	if err != nil {
		s.metrics.ObserveScope("rejected")
		return err
	}

	c, err := s.pool.Acquire(ctx)
	if err != nil {
		s.metrics.ObserveScope("acquire_failed")
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer s.resetAndRelease(ctx, c, schema)

	if _, err := c.Exec(ctx, "SET search_path TO "+quoted); err != nil {
		s.metrics.ObserveScope("error")
		return fmt.Errorf("set search_path for %s: %w", schema, err)
	}

	if err := fn(ctx, c); err != nil {
		s.metrics.ObserveScope("error")
		return err
	}
	s.metrics.ObserveScope("ok")
	return nil
}

// WithTenantTx runs fn in a transaction whose search_path is set with
// SET LOCAL, so the setting ends with the transaction.
func (s *Scope) WithTenantTx(ctx context.Context, schema string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	quoted, err := QuoteSchema(schema)
	if err != nil {
		s.metrics.ObserveScope("rejected")
		return err
	}

	c, err := s.pool.Acquire(ctx)
	if err != nil {
		s.metrics.ObserveScope("acquire_failed")
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer c.Release()

	tx, err := c.Begin(ctx)
	if err != nil {
		s.metrics.ObserveScope("error")
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+quoted); err != nil {
		s.metrics.ObserveScope("error")
		return fmt.Errorf("set local search_path for %s: %w", schema, err)
	}
	if err := fn(ctx, tx); err != nil {
		s.metrics.ObserveScope("error")
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		s.metrics.ObserveScope("error")
		return fmt.Errorf("commit tenant tx: %w", err)
	}
	s.metrics.ObserveScope("ok")
	return nil
}

func (s *Scope) resetAndRelease(ctx context.Context, c conn, schema string) {
	defer c.Release()

	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
	defer cancel()
	if _, err := c.Exec(resetCtx, "RESET search_path"); err != nil {
		s.metrics.ObserveScope("reset_failed")
		s.logger.Warn("reset search_path failed, discarding connection", "schema", schema, "error", err)
		if cerr := c.Close(resetCtx); cerr != nil {
			s.logger.Warn("close connection failed", "schema", schema, "error", cerr)
		}
	}
}
