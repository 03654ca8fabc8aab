// Package stdsql adapts any database/sql driver to the pool.Driver
// interface. Each physical connection is a dedicated *sql.Conn, so session
// state and transactions stay pinned to one real connection. Configure the
// wrapped *sql.DB with enough MaxOpenConns for the pool's MaxSize.
package stdsql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-txn/txman/pool"
)

// Driver opens dedicated connections from a *sql.DB.
type Driver struct {
	db *sql.DB
}

var _ pool.Driver = (*Driver)(nil)

// New creates a Driver over db.
func New(db *sql.DB) *Driver {
	return &Driver{db: db}
}

func (d *Driver) Open(ctx context.Context) (pool.Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c}, nil
}

// Conn is one dedicated database/sql connection. Statements route through the
// open transaction when there is one. Not safe for concurrent use; the pool's
// exclusive lease ownership provides that.
type Conn struct {
	conn *sql.Conn
	tx   *sql.Tx
}

var _ pool.Conn = (*Conn)(nil)

func (c *Conn) Begin(ctx context.Context, iso sql.IsolationLevel) error {
	if c.tx != nil {
		return errors.New("stdsql: transaction already open")
	}
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{Isolation: iso})
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errors.New("stdsql: no open transaction")
	}
	err := c.tx.Commit()
	// database/sql invalidates the Tx whether or not Commit succeeded.
	c.tx = nil
	return err
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (c *Conn) Validate(ctx context.Context) bool {
	return c.conn.PingContext(ctx) == nil
}

// Reset rolls back any transaction left open, restoring auto-commit.
func (c *Conn) Reset(ctx context.Context) error {
	if c.tx != nil {
		err := c.tx.Rollback()
		c.tx = nil
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			return err
		}
	}
	return nil
}

func (c *Conn) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.conn.Close()
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *Conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if c.tx != nil {
		return c.tx.PrepareContext(ctx, query)
	}
	return c.conn.PrepareContext(ctx, query)
}
