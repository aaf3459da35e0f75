package db

import (
	"context"
	"fmt"
)

// Sessions hands a task a single connection for the span of fn, so every
// query in the task sees one consistent session. Tests substitute a mock
// that passes a pgxmock pool straight through.
type Sessions interface {
	WithConn(ctx context.Context, fn func(conn DBTX) error) error
}

// PoolSessions acquires connections from the pgx pool.
type PoolSessions struct {
	DB *DB
}

func (s PoolSessions) WithConn(ctx context.Context, fn func(conn DBTX) error) error {
	conn, err := s.DB.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(conn)
}

// StaticSessions always hands out the same connection. Used by tests.
type StaticSessions struct {
	Conn DBTX
}

func (s StaticSessions) WithConn(ctx context.Context, fn func(conn DBTX) error) error {
	return fn(s.Conn)
}
