package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// Locker serialises runs across processes. Without one, two processes can
// race on the same pending migration; the loser then fails on the tracking
// table's primary key.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// PostgresLock takes a session-level advisory lock. The lock lives on one
// dedicated connection so that lock and unlock hit the same session.
type PostgresLock struct {
	db  *sql.DB
	key int64
}

// NewPostgresLock derives the advisory lock key from name.
func NewPostgresLock(db *sql.DB, name string) *PostgresLock {
	return &PostgresLock{db: db, key: lockKey(name)}
}

func (l *PostgresLock) Acquire(ctx context.Context) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, l.key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", l.key, err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Close()
	}, nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // truncation is fine for a lock key
}
