package txman

import (
	"database/sql"
	"sync"

	"github.com/go-txn/txman/pool"
)

// Status is the lifecycle state of a transaction descriptor.
// Transitions are Active -> Committed or Active -> RolledBack, both terminal.
type Status int32

const (
	StatusActive Status = iota
	StatusCommitted
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Propagation decides how Begin behaves when the execution context already
// has an active transaction.
type Propagation int

const (
	// Required joins the existing transaction, or begins a new one when
	// there is none.
	Required Propagation = iota
	// RequiresNew suspends any existing transaction and begins an
	// independent one; the suspended transaction is resumed afterwards.
	RequiresNew
)

// Descriptor represents one unit of work. It is created by Manager.Begin and
// mutated only by the Manager.
type Descriptor struct {
	id          string
	ctxID       ContextID
	propagation Propagation
	isolation   sql.IsolationLevel
	lease       *pool.Lease

	// suspended is the descriptor parked by a RequiresNew begin, resumed
	// when this one ends.
	suspended *Descriptor

	mu         sync.Mutex
	status     Status
	depth      int
	onCommit   []func()
	onRollback []func()
}

func (d *Descriptor) ID() string {
	return d.id
}

func (d *Descriptor) ContextID() ContextID {
	return d.ctxID
}

func (d *Descriptor) Propagation() Propagation {
	return d.propagation
}

func (d *Descriptor) Isolation() sql.IsolationLevel {
	return d.isolation
}

func (d *Descriptor) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Lease exposes the bound connection lease. Callers must not release it, the
// Manager owns its lifecycle.
func (d *Descriptor) Lease() *pool.Lease {
	return d.lease
}

// OnCommit registers fn to run after the transaction commits. Hooks run after
// the connection is released; failures inside hooks cannot affect the commit.
func (d *Descriptor) OnCommit(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCommit = append(d.onCommit, fn)
}

// OnRollback registers fn to run after the transaction rolls back.
func (d *Descriptor) OnRollback(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRollback = append(d.onRollback, fn)
}

func (d *Descriptor) fireCommit() {
	d.mu.Lock()
	hooks := d.onCommit
	d.onCommit = nil
	d.onRollback = nil
	d.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (d *Descriptor) fireRollback() {
	d.mu.Lock()
	hooks := d.onRollback
	d.onCommit = nil
	d.onRollback = nil
	d.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
