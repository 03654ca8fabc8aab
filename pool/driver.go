package pool

import (
	"context"
	"database/sql"
)

// Conn is one physical session against the database. Implementations must be
// safe for use by a single lease holder at a time; the pool guarantees
// exclusive ownership for the lifetime of a lease.
type Conn interface {
	// Begin disables auto-commit and opens a transaction at the given
	// isolation level.
	Begin(ctx context.Context, iso sql.IsolationLevel) error
	// Commit commits the open transaction.
	Commit(ctx context.Context) error
	// Rollback rolls back the open transaction. Rolling back when no
	// transaction is open must be a no-op.
	Rollback(ctx context.Context) error
	// Validate is a lightweight liveness check.
	Validate(ctx context.Context) bool
	// Reset restores the session to pool defaults: auto-commit on, default
	// isolation level, no open transaction.
	Reset(ctx context.Context) error
	// Close terminates the physical session.
	Close() error
}

// Driver opens physical connections. This is the only place where real
// network I/O for connection setup happens.
type Driver interface {
	Open(ctx context.Context) (Conn, error)
}

// DriverFunc adapts an open function to the Driver interface.
type DriverFunc func(ctx context.Context) (Conn, error)

func (f DriverFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}
