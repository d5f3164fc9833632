package migrate

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker serializes migration runs across processes.
type Locker interface {
	// Acquire blocks until the lock for key is held. release must be called
	// exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// PostgresLock holds a session-level advisory lock. The lock belongs to the
// connection that took it, so that connection stays checked out until release.
type PostgresLock struct {
	pool *pgxpool.Pool
}

func NewPostgresLock(pool *pgxpool.Pool) *PostgresLock {
	return &PostgresLock{pool: pool}
}

func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	lockID := lockKey(key)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}
	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
			// closing the session drops the lock
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

type NoopLock struct{}

func (NoopLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}

func lockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
