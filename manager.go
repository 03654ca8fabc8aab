// Package txman is a transactional resource manager: it lets many independent
// data-access operations share one physical database connection for the
// lifetime of a unit of work, hands out independent connections outside of
// one, and reduces raw driver failures to a small semantic error taxonomy.
package txman

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/go-txn/txman/pool"
)

var (
	// ErrNoContext is returned by Begin when ctx carries no execution
	// context id. Wrap the context with WithContextID, or use Manager.Do
	// which assigns one.
	ErrNoContext = errors.New("no execution context id, wrap with WithContextID or Manager.Do")
)

// Manager drives the lifecycle of units of work.
type Manager interface {
	// Begin starts or joins a transaction on the execution context carried
	// by ctx, honoring the configured propagation.
	Begin(ctx context.Context, opts ...TxOption) (*Descriptor, error)
	// Commit ends the transaction. A joined (Required) commit only leaves
	// the join; the outermost commit performs the driver commit, releases
	// the lease and unbinds the context.
	Commit(ctx context.Context, d *Descriptor) error
	// Rollback rolls the transaction back immediately, at any join depth,
	// and always releases the lease. Rolling back a descriptor that is
	// already rolled back is a no-op.
	Rollback(ctx context.Context, d *Descriptor) error
	// Do runs fn inside a transaction: commit on nil error, rollback on
	// error or panic (the panic is re-raised after rollback).
	Do(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error
}

// IdGenerator creates ids for transactions and execution contexts.
type IdGenerator func(ctx context.Context) string

var (
	DefaultIdGenerator IdGenerator = func(ctx context.Context) string {
		return uuid.New().String()
	}
)

// TxOption configures one Begin call.
type TxOption func(*txOptions)

type txOptions struct {
	propagation Propagation
	isolation   sql.IsolationLevel
}

// WithPropagation sets the propagation mode. Default is Required.
func WithPropagation(p Propagation) TxOption {
	return func(o *txOptions) {
		o.propagation = p
	}
}

// WithIsolation sets the isolation level for a newly begun transaction.
// Ignored when joining an existing one.
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(o *txOptions) {
		o.isolation = level
	}
}

// Config carries manager-wide settings.
type Config struct {
	idGen      IdGenerator
	logger     log.Logger
	translator *Translator
}

// Option configures the Manager.
type Option func(*Config)

func WithIdGenerator(idGen IdGenerator) Option {
	return func(c *Config) {
		c.idGen = idGen
	}
}

func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// WithTranslator sets the error translator applied to driver errors from
// begin, commit and rollback. Without one, driver errors surface as kind
// Unknown with the cause attached.
func WithTranslator(t *Translator) Option {
	return func(c *Config) {
		c.translator = t
	}
}

type manager struct {
	pool       *pool.Pool
	binder     *Binder
	cfg        *Config
	logh       *log.Helper
	translator *Translator
}

var _ Manager = (*manager)(nil)

// NewManager creates a Manager over the given pool and binder.
func NewManager(p *pool.Pool, binder *Binder, opts ...Option) Manager {
	cfg := &Config{
		idGen:  DefaultIdGenerator,
		logger: log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	tr := cfg.translator
	if tr == nil {
		tr = NewTranslator(nil)
	}
	return &manager{
		pool:       p,
		binder:     binder,
		cfg:        cfg,
		logh:       log.NewHelper(cfg.logger),
		translator: tr,
	}
}

func (m *manager) Begin(ctx context.Context, opts ...TxOption) (*Descriptor, error) {
	o := &txOptions{}
	for _, opt := range opts {
		opt(o)
	}

	id, ok := ContextIDFromContext(ctx)
	if !ok {
		return nil, ErrNoContext
	}

	var suspended *Descriptor
	switch o.propagation {
	case Required:
		if d, ok := m.binder.Lookup(id); ok {
			if d.Status() != StatusActive {
				return nil, NewError(TransactionClosed, fmt.Sprintf("cannot join transaction %s: %s", d.ID(), d.Status()), nil)
			}
			d.mu.Lock()
			d.depth++
			d.mu.Unlock()
			return d, nil
		}
	case RequiresNew:
		suspended, _ = m.binder.Suspend(id)
	}

	lease, err := m.pool.Acquire(ctx)
	if err != nil {
		m.resume(id, suspended)
		return nil, poolError(err)
	}

	if err := lease.Conn().Begin(ctx, o.isolation); err != nil {
		m.pool.Release(lease)
		m.resume(id, suspended)
		return nil, m.translator.Translate("begin transaction", "", err)
	}

	d := &Descriptor{
		id:          m.cfg.idGen(ctx),
		ctxID:       id,
		propagation: o.propagation,
		isolation:   o.isolation,
		lease:       lease,
		suspended:   suspended,
		status:      StatusActive,
	}
	if err := m.binder.Bind(id, d); err != nil {
		// Raced with another begin on the same context id. The lease must
		// not leak regardless.
		if rerr := lease.Conn().Rollback(ctx); rerr != nil {
			m.logh.Errorf("rollback after bind failure: %v", rerr)
		}
		m.pool.Release(lease)
		m.resume(id, suspended)
		return nil, err
	}
	m.logh.Debugf("begin transaction %s on context %s", d.id, id)
	return d, nil
}

func (m *manager) Commit(ctx context.Context, d *Descriptor) error {
	if d == nil {
		return NewError(TransactionClosed, "commit on nil descriptor", nil)
	}
	d.mu.Lock()
	if d.status != StatusActive {
		status := d.status
		d.mu.Unlock()
		return NewError(TransactionClosed, fmt.Sprintf("commit transaction %s: %s", d.id, status), nil)
	}
	if d.depth > 0 {
		d.depth--
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.lease.Conn().Commit(ctx); err != nil {
		// Status stays active and the lease stays bound so the caller can
		// still roll back explicitly.
		return m.translator.Translate("commit transaction "+d.id, "", err)
	}

	d.mu.Lock()
	d.status = StatusCommitted
	d.mu.Unlock()
	m.finish(d)
	d.fireCommit()
	m.logh.Debugf("committed transaction %s", d.id)
	return nil
}

func (m *manager) Rollback(ctx context.Context, d *Descriptor) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	switch d.status {
	case StatusRolledBack:
		d.mu.Unlock()
		return nil
	case StatusCommitted:
		d.mu.Unlock()
		return NewError(TransactionClosed, fmt.Sprintf("rollback transaction %s: committed", d.id), nil)
	}
	d.status = StatusRolledBack
	d.mu.Unlock()

	err := d.lease.Conn().Rollback(ctx)
	// The lease is released even when the driver rollback failed, it must
	// never leak.
	m.finish(d)
	d.fireRollback()
	if err != nil {
		m.logh.Errorf("rollback transaction %s: %v", d.id, err)
		return m.translator.Translate("rollback transaction "+d.id, "", err)
	}
	m.logh.Debugf("rolled back transaction %s", d.id)
	return nil
}

// finish releases the lease, unbinds the context and resumes any transaction
// suspended by RequiresNew.
func (m *manager) finish(d *Descriptor) {
	m.pool.Release(d.lease)
	m.binder.Unbind(d.ctxID)
	m.resume(d.ctxID, d.suspended)
}

func (m *manager) resume(id ContextID, suspended *Descriptor) {
	if suspended == nil {
		return
	}
	if err := m.binder.Resume(id, suspended); err != nil {
		m.logh.Errorf("resume transaction %s on context %s: %v", suspended.ID(), id, err)
	}
}

func (m *manager) Do(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) (err error) {
	if _, ok := ContextIDFromContext(ctx); !ok {
		ctx = WithContextID(ctx, ContextID(m.cfg.idGen(ctx)))
	}
	d, err := m.Begin(ctx, opts...)
	if err != nil {
		return err
	}
	panicked := true
	defer func() {
		if panicked || err != nil {
			if rerr := m.Rollback(ctx, d); rerr != nil {
				err = fmt.Errorf("rolling back transaction fail: %v\n %w", rerr, err)
			}
		}
	}()
	if err = fn(ctx); err != nil {
		panicked = false
		return
	}
	panicked = false
	if cerr := m.Commit(ctx, d); cerr != nil {
		// The deferred rollback cleans up after a failed commit.
		err = fmt.Errorf("committing transaction fail: %w", cerr)
	}
	return
}

// poolError maps pool failures into the semantic taxonomy.
func poolError(err error) error {
	if errors.Is(err, pool.ErrExhausted) {
		return &SemanticError{Kind: PoolExhausted, Message: "acquire connection", Cause: err}
	}
	return &SemanticError{Kind: Unknown, Message: "acquire connection", Cause: err}
}
