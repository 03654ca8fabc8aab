package txman

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-txn/txman/pool"
)

// Handle is a usable connection obtained through the Accessor. It is either
// the connection bound to the current transaction or a scratch lease for a
// single autonomous operation.
type Handle struct {
	lease    *pool.Lease
	tx       bool
	released atomic.Bool
}

// Conn exposes the underlying connection. Holders of a transactional handle
// must not commit, roll back or close it, the Manager owns its lifecycle.
func (h *Handle) Conn() pool.Conn {
	return h.lease.Conn()
}

// Transactional reports whether the handle belongs to an active transaction.
func (h *Handle) Transactional() bool {
	return h.tx
}

// Queryer returns the connection's SQL surface when the driver adapter
// provides one (the stdsql adapter does).
func (h *Handle) Queryer() (Queryer, bool) {
	q, ok := h.lease.Conn().(Queryer)
	return q, ok
}

// Accessor is the facade data-access code calls to obtain the current
// connection. Inside a unit of work every Acquire returns the transaction's
// bound connection; outside, it leases a scratch connection for one
// operation. This is what lets data-access code be written once and run
// correctly both inside and outside an explicit transaction.
type Accessor struct {
	pool   *pool.Pool
	binder *Binder
}

// NewAccessor creates an Accessor over the given pool and binder. The binder
// must be the one the Manager binds transactions into.
func NewAccessor(p *pool.Pool, binder *Binder) *Accessor {
	return &Accessor{pool: p, binder: binder}
}

// Acquire returns the connection bound to ctx's transaction, or a scratch
// lease when ctx has no active transaction. A bound transaction that is no
// longer active fails with TransactionClosed.
func (a *Accessor) Acquire(ctx context.Context) (*Handle, error) {
	if id, ok := ContextIDFromContext(ctx); ok {
		if d, ok := a.binder.Lookup(id); ok {
			if d.Status() != StatusActive {
				return nil, NewError(TransactionClosed, fmt.Sprintf("transaction %s is %s", d.ID(), d.Status()), nil)
			}
			return &Handle{lease: d.Lease(), tx: true}, nil
		}
	}
	lease, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, poolError(err)
	}
	return &Handle{lease: lease}, nil
}

// Release returns a scratch handle's lease to the pool. For transactional
// handles it is a no-op: the Manager releases the lease on commit/rollback.
// Releasing the same handle twice is safe.
func (a *Accessor) Release(ctx context.Context, h *Handle) {
	if h == nil || h.tx {
		return
	}
	if h.released.CompareAndSwap(false, true) {
		a.pool.Release(h.lease)
	}
}
