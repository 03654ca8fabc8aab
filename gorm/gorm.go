// Package gorm lets gorm models read and write through the connection the
// resource accessor resolves for the calling context, so gorm statements
// transparently join an active transaction.
package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/go-txn/txman"
)

var (
	// ErrNoSQLSurface is returned when the pool's driver adapter does not
	// expose database/sql statement execution (the stdsql adapter does).
	ErrNoSQLSurface = errors.New("gorm: driver connection does not implement gorm.ConnPool")
)

// DB returns a gorm session bound to the connection the accessor resolves
// for ctx: the transaction's connection inside a unit of work, a scratch
// lease outside one. The returned release function must be called when the
// session is no longer used; for transactional sessions it is a no-op.
func DB(ctx context.Context, base *gorm.DB, accessor *txman.Accessor) (*gorm.DB, func(), error) {
	h, err := accessor.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	cp, ok := h.Conn().(gorm.ConnPool)
	if !ok {
		accessor.Release(ctx, h)
		return nil, nil, ErrNoSQLSurface
	}
	// Same move gorm makes when it begins its own transaction: a fresh
	// session whose statements run on one pinned connection.
	sess := base.Session(&gorm.Session{Context: ctx, NewDB: true, SkipDefaultTransaction: true})
	sess.Statement.ConnPool = cp
	release := func() {
		accessor.Release(ctx, h)
	}
	return sess, release, nil
}
