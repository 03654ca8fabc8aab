package txman

import (
	"context"
	"database/sql"
)

// Queryer is the statement execution surface a driver adapter may expose on
// its connections. The manager never inspects statement text, it only
// forwards driver errors to the Translator.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor runs statements on whatever connection the Accessor resolves for
// the calling context, translating driver errors on the way out. Repositories
// built on it work identically inside and outside a transaction.
type Executor struct {
	accessor   *Accessor
	translator *Translator
}

// NewExecutor creates an Executor.
func NewExecutor(a *Accessor, t *Translator) *Executor {
	if t == nil {
		t = NewTranslator(nil)
	}
	return &Executor{accessor: a, translator: t}
}

// Exec runs a statement that returns no rows. op labels the operation for
// error messages.
func (e *Executor) Exec(ctx context.Context, op, stmt string, args ...any) (sql.Result, error) {
	h, err := e.accessor.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.accessor.Release(ctx, h)
	q, ok := h.Queryer()
	if !ok {
		return nil, NewError(Unknown, "connection does not expose a SQL surface", nil)
	}
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, e.translator.Translate(op, stmt, err)
	}
	return res, nil
}

// Query runs a statement returning rows and passes them to scan. The handle
// is held until scan returns so the rows stay valid.
func (e *Executor) Query(ctx context.Context, op, stmt string, scan func(rows *sql.Rows) error, args ...any) error {
	h, err := e.accessor.Acquire(ctx)
	if err != nil {
		return err
	}
	defer e.accessor.Release(ctx, h)
	q, ok := h.Queryer()
	if !ok {
		return NewError(Unknown, "connection does not expose a SQL surface", nil)
	}
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return e.translator.Translate(op, stmt, err)
	}
	defer rows.Close()
	if err := scan(rows); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return e.translator.Translate(op, stmt, err)
	}
	return nil
}
