// Package pgx adapts native pgx connections to the pool.Driver interface.
package pgx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/go-txn/txman/pool"
)

// closeTimeout bounds the terminate message sent on Close.
const closeTimeout = 5 * time.Second

// Driver opens pgx connections from a connection string.
type Driver struct {
	connString string
}

var _ pool.Driver = (*Driver)(nil)

// New creates a Driver. connString accepts both URL and DSN form.
func New(connString string) *Driver {
	return &Driver{connString: connString}
}

func (d *Driver) Open(ctx context.Context) (pool.Conn, error) {
	c, err := pgx.Connect(ctx, d.connString)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c}, nil
}

// Conn is one physical pgx session.
type Conn struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

var _ pool.Conn = (*Conn)(nil)

// Raw exposes the underlying pgx connection for statement execution.
func (c *Conn) Raw() *pgx.Conn {
	return c.conn
}

func isoLevel(iso sql.IsolationLevel) (pgx.TxIsoLevel, error) {
	switch iso {
	case sql.LevelDefault:
		return "", nil
	case sql.LevelReadUncommitted:
		return pgx.ReadUncommitted, nil
	case sql.LevelReadCommitted:
		return pgx.ReadCommitted, nil
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		return pgx.RepeatableRead, nil
	case sql.LevelSerializable:
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("pgx: unsupported isolation level %s", iso)
	}
}

func (c *Conn) Begin(ctx context.Context, iso sql.IsolationLevel) error {
	if c.tx != nil {
		return errors.New("pgx: transaction already open")
	}
	level, err := isoLevel(iso)
	if err != nil {
		return err
	}
	tx, err := c.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errors.New("pgx: no open transaction")
	}
	err := c.tx.Commit(ctx)
	c.tx = nil
	return err
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback(ctx)
	c.tx = nil
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (c *Conn) Validate(ctx context.Context) bool {
	return c.conn.Ping(ctx) == nil
}

// Reset rolls back any transaction left open and clears session settings.
func (c *Conn) Reset(ctx context.Context) error {
	if c.tx != nil {
		err := c.tx.Rollback(ctx)
		c.tx = nil
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			return err
		}
	}
	_, err := c.conn.Exec(ctx, "reset all")
	return err
}

func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}
