// Package pool implements a bounded pool of physical database connections.
// Connections are handed out as leases with exclusive ownership; returning a
// lease resets and validates the connection before it becomes reusable.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	orderedmap "github.com/elliotchance/orderedmap/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrExhausted is returned when no connection became available within
	// the acquire timeout.
	ErrExhausted = errors.New("pool exhausted")
)

// resetTimeout bounds the network I/O spent resetting and validating a
// connection on release.
const resetTimeout = 5 * time.Second

type waiter struct {
	ch chan *pooledConn
}

// Pool owns a bounded set of physical connections.
type Pool struct {
	driver Driver
	cfg    Config
	logh   *log.Helper
	idGen  func() string

	mu      sync.Mutex
	idle    *orderedmap.OrderedMap[string, *pooledConn]
	leased  map[string]*Lease
	waiters []*waiter
	open    int
	closed  bool

	done chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for leak warnings and maintenance errors.
func WithLogger(l log.Logger) Option {
	return func(p *Pool) {
		p.logh = log.NewHelper(l)
	}
}

// WithIDGenerator overrides how lease and connection ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pool) {
		p.idGen = gen
	}
}

// New creates a pool and starts its background maintenance loop.
func New(driver Driver, cfg Config, opts ...Option) *Pool {
	p := &Pool{
		driver: driver,
		cfg:    cfg.withDefaults(),
		logh:   log.NewHelper(log.DefaultLogger),
		idGen:  uuid.NewString,
		idle:   orderedmap.NewOrderedMap[string, *pooledConn](),
		leased: make(map[string]*Lease),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.maintain()
	return p
}

// Acquire returns a lease over an idle connection, opening a new one when the
// pool is below MaxSize, otherwise blocking until a connection is released,
// the acquire timeout elapses, or ctx is done. Timeout and cancellation are
// reported as ErrExhausted; the leased count is unchanged on failure.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Prefer the most recently returned idle connection.
		if el := p.idle.Back(); el != nil {
			pc := el.Value
			p.idle.Delete(el.Key)
			if p.stale(pc, time.Now()) {
				p.open--
				p.mu.Unlock()
				_ = pc.conn.Close()
				continue
			}
			lease := p.lend(pc)
			p.mu.Unlock()
			return lease, nil
		}

		if p.open < p.cfg.MaxSize {
			// Reserve a slot before the network I/O so two racing
			// acquires cannot both open the last connection.
			p.open++
			p.mu.Unlock()
			conn, err := p.driver.Open(ctx)
			if err != nil {
				p.mu.Lock()
				p.open--
				p.mu.Unlock()
				return nil, fmt.Errorf("open connection: %w", err)
			}
			pc := &pooledConn{id: p.idGen(), conn: conn, createdAt: time.Now()}
			p.mu.Lock()
			lease := p.lend(pc)
			p.mu.Unlock()
			return lease, nil
		}

		p.mu.Unlock()
		return p.wait(ctx)
	}
}

func (p *Pool) wait(ctx context.Context) (*Lease, error) {
	w := &waiter{ch: make(chan *pooledConn, 1)}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case pc := <-w.ch:
		p.mu.Lock()
		lease := p.lend(pc)
		p.mu.Unlock()
		return lease, nil
	case <-timer.C:
		if pc, ok := p.abandon(w); ok {
			p.mu.Lock()
			lease := p.lend(pc)
			p.mu.Unlock()
			return lease, nil
		}
		return nil, fmt.Errorf("%w: no connection available within %s", ErrExhausted, p.cfg.AcquireTimeout)
	case <-ctx.Done():
		if pc, ok := p.abandon(w); ok {
			p.mu.Lock()
			lease := p.lend(pc)
			p.mu.Unlock()
			return lease, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrExhausted, ctx.Err())
	case <-p.done:
		if pc, ok := p.abandon(w); ok {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
			_ = pc.conn.Close()
		}
		return nil, ErrPoolClosed
	}
}

// abandon removes w from the waiter queue. When w is no longer queued, a
// releaser already popped it and is committed to sending a connection, so
// abandon must wait for that handoff; a non-blocking peek here would strand
// the connection in the buffered channel forever.
func (p *Pool) abandon(w *waiter) (*pooledConn, bool) {
	p.mu.Lock()
	for i, o := range p.waiters {
		if o == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()
	pc := <-w.ch
	return pc, true
}

// lend must be called with mu held.
func (p *Pool) lend(pc *pooledConn) *Lease {
	l := &Lease{id: p.idGen(), conn: pc, borrowedAt: time.Now()}
	p.leased[l.id] = l
	return l
}

// Release returns a lease to the pool. The connection is reset to session
// defaults and validated; invalid connections are discarded and replaced when
// someone is waiting or the idle set dropped below MinIdle. Absent such
// demand the slot is simply freed and the next Acquire opens a fresh
// connection, rather than replacing eagerly up to MaxSize. Releasing the same
// lease twice is a no-op.
func (p *Pool) Release(l *Lease) {
	if l == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.leased[l.id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.leased, l.id)
	closed := p.closed
	p.mu.Unlock()

	pc := l.conn
	if closed {
		p.retire(pc)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := pc.conn.Reset(ctx); err != nil {
		p.logh.Warnf("discarding connection %s: reset failed: %v", pc.id, err)
		p.retire(pc)
		p.replace()
		return
	}
	if !pc.conn.Validate(ctx) {
		p.logh.Warnf("discarding connection %s: failed validation on release", pc.id)
		p.retire(pc)
		p.replace()
		return
	}
	p.repool(pc)
}

// retire closes a connection and gives up its slot.
func (p *Pool) retire(pc *pooledConn) {
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
	_ = pc.conn.Close()
}

// repool hands the connection to the oldest waiter, or returns it to the idle
// set when nobody is waiting.
func (p *Pool) repool(pc *pooledConn) {
	p.mu.Lock()
	if p.closed {
		p.open--
		p.mu.Unlock()
		_ = pc.conn.Close()
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w.ch <- pc
		return
	}
	pc.idleSince = time.Now()
	p.idle.Set(pc.id, pc)
	p.mu.Unlock()
}

// replace opens a fresh connection for a discarded one, asynchronously, when
// the pool still has demand for it.
func (p *Pool) replace() {
	p.mu.Lock()
	need := !p.closed && p.open < p.cfg.MaxSize &&
		(len(p.waiters) > 0 || p.idle.Len() < p.cfg.MinIdle)
	if !need {
		p.mu.Unlock()
		return
	}
	p.open++
	p.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
		defer cancel()
		conn, err := p.driver.Open(ctx)
		if err != nil {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
			p.logh.Errorf("replace connection: %v", err)
			return
		}
		p.repool(&pooledConn{id: p.idGen(), conn: conn, createdAt: time.Now()})
	}()
}

func (p *Pool) stale(pc *pooledConn, now time.Time) bool {
	if p.cfg.MaxLifetime > 0 && pc.age(now) > p.cfg.MaxLifetime {
		return true
	}
	if p.cfg.IdleTimeout > 0 && !pc.idleSince.IsZero() && now.Sub(pc.idleSince) > p.cfg.IdleTimeout {
		return true
	}
	return false
}

func (p *Pool) maintain() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.sweep(time.Now())
		}
	}
}

// sweep retires stale idle connections, refills the idle set up to MinIdle
// and warns about leases held past the leak threshold.
func (p *Pool) sweep(now time.Time) {
	var retired []*pooledConn

	p.mu.Lock()
	for el := p.idle.Front(); el != nil; el = el.Next() {
		if p.stale(el.Value, now) {
			retired = append(retired, el.Value)
		}
	}
	for _, pc := range retired {
		p.idle.Delete(pc.id)
		p.open--
	}

	refill := 0
	if p.cfg.MinIdle > 0 {
		refill = p.cfg.MinIdle - p.idle.Len()
		if max := p.cfg.MaxSize - p.open; refill > max {
			refill = max
		}
		if refill < 0 {
			refill = 0
		}
		p.open += refill
	}

	if p.cfg.LeakThreshold > 0 {
		for _, l := range p.leased {
			if !l.leakWarned && now.Sub(l.borrowedAt) > p.cfg.LeakThreshold {
				l.leakWarned = true
				p.logh.Warnf("possible connection leak: lease %s borrowed at %s, held for %s",
					l.id, l.borrowedAt.Format(time.RFC3339), now.Sub(l.borrowedAt))
			}
		}
	}
	p.mu.Unlock()

	for _, pc := range retired {
		_ = pc.conn.Close()
	}
	for i := 0; i < refill; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
		conn, err := p.driver.Open(ctx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.open -= refill - i
			p.mu.Unlock()
			p.logh.Errorf("refill idle connections: %v", err)
			return
		}
		p.repool(&pooledConn{id: p.idGen(), conn: conn, createdAt: time.Now()})
	}
}

// LeaseInfo describes one outstanding lease.
type LeaseInfo struct {
	ID         string
	BorrowedAt time.Time
	Age        time.Duration
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Open    int
	Idle    int
	Leased  int
	Waiting int
	Leases  []LeaseInfo
}

// Stats returns a snapshot of connection and lease counts.
func (p *Pool) Stats() Stats {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Open:    p.open,
		Idle:    p.idle.Len(),
		Leased:  len(p.leased),
		Waiting: len(p.waiters),
	}
	for _, l := range p.leased {
		s.Leases = append(s.Leases, LeaseInfo{
			ID:         l.id,
			BorrowedAt: l.borrowedAt,
			Age:        now.Sub(l.borrowedAt),
		})
	}
	return s
}

// Close stops maintenance, wakes waiters and closes all idle connections.
// Outstanding leases are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	close(p.done)
	var conns []*pooledConn
	for el := p.idle.Front(); el != nil; el = el.Next() {
		conns = append(conns, el.Value)
	}
	p.idle = orderedmap.NewOrderedMap[string, *pooledConn]()
	p.open -= len(conns)
	p.mu.Unlock()

	for _, pc := range conns {
		_ = pc.conn.Close()
	}
	return nil
}
