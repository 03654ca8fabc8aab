// Package mock provides a scriptable in-memory driver for tests.
package mock

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/go-txn/txman/pool"
)

// Driver opens mock connections and remembers every connection it opened.
type Driver struct {
	mu    sync.Mutex
	conns []*Conn
	next  int

	// OpenErr, when set, makes Open fail.
	OpenErr error
	// Setup, when set, is applied to every new connection before it is
	// returned.
	Setup func(*Conn)
}

var _ pool.Driver = (*Driver)(nil)

func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Open(ctx context.Context) (pool.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.next++
	c := &Conn{ID: d.next, ValidateOK: true}
	if d.Setup != nil {
		d.Setup(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

// Opened returns every connection the driver has opened so far.
func (d *Driver) Opened() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// Conn is a mock physical connection. Zero value behavior: everything
// succeeds and validation passes. Error fields make the matching operation
// fail. All counters are safe to read after the fact.
type Conn struct {
	mu sync.Mutex

	ID         int
	ValidateOK bool

	BeginErr    error
	CommitErr   error
	RollbackErr error
	ExecErr     error

	InTx       bool
	Begins     int
	Commits    int
	Rollbacks  int
	Resets     int
	Closed     bool
	Statements []string
}

var _ pool.Conn = (*Conn)(nil)

func (c *Conn) Begin(ctx context.Context, iso sql.IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BeginErr != nil {
		return c.BeginErr
	}
	if c.InTx {
		return errors.New("mock: transaction already open")
	}
	c.InTx = true
	c.Begins++
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CommitErr != nil {
		return c.CommitErr
	}
	c.InTx = false
	c.Commits++
	return nil
}

func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RollbackErr != nil {
		c.InTx = false
		return c.RollbackErr
	}
	c.InTx = false
	c.Rollbacks++
	return nil
}

func (c *Conn) Validate(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ValidateOK && !c.Closed
}

func (c *Conn) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InTx = false
	c.Resets++
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// ExecContext records the statement and fails with ExecErr when set. The
// result is always nil; mock rows are not supported.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statements = append(c.Statements, query)
	if c.ExecErr != nil {
		return nil, c.ExecErr
	}
	return nil, nil
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statements = append(c.Statements, query)
	if c.ExecErr != nil {
		return nil, c.ExecErr
	}
	return nil, errors.New("mock: rows are not supported")
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statements = append(c.Statements, query)
	return nil
}
