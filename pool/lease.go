package pool

import "time"

// pooledConn is a physical connection owned by the pool. It is either in the
// idle set, leased out, or in flight to a waiter, never two at once.
type pooledConn struct {
	id        string
	conn      Conn
	createdAt time.Time
	idleSince time.Time
}

func (c *pooledConn) age(now time.Time) time.Duration {
	return now.Sub(c.createdAt)
}

// Lease is the handle for a borrowed connection. The holder may use the
// connection but must return it exactly once through Pool.Release (directly,
// or via the commit/rollback path of a transaction manager). Never close the
// physical connection from a lease.
type Lease struct {
	id         string
	conn       *pooledConn
	borrowedAt time.Time

	// leakWarned is guarded by the pool mutex.
	leakWarned bool
}

func (l *Lease) ID() string {
	return l.id
}

func (l *Lease) BorrowedAt() time.Time {
	return l.borrowedAt
}

// Age is how long the lease has been held.
func (l *Lease) Age() time.Duration {
	return time.Since(l.borrowedAt)
}

// Conn exposes the borrowed connection.
func (l *Lease) Conn() Conn {
	return l.conn.conn
}
