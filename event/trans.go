// Package event provides a transactional producer: events sent inside a unit
// of work are buffered and only handed to the real producer after the
// transaction commits; a rollback drops them.
package event

import (
	"context"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/go-txn/txman"
)

// TransactionalProducer wraps a Producer. Sends from inside an active
// transaction are buffered per descriptor and flushed by a commit hook;
// sends outside a transaction pass straight through.
type TransactionalProducer struct {
	wrap   Producer
	binder *txman.Binder
	logh   *log.Helper

	mu      sync.Mutex
	buffers map[string]*buffer
}

var _ Producer = (*TransactionalProducer)(nil)

type buffer struct {
	ctx    context.Context
	events []Event
}

func NewTransactionalProducer(wrap Producer, binder *txman.Binder) *TransactionalProducer {
	return &TransactionalProducer{
		wrap:    wrap,
		binder:  binder,
		logh:    log.NewHelper(log.DefaultLogger),
		buffers: make(map[string]*buffer),
	}
}

func (t *TransactionalProducer) Close() error {
	return t.wrap.Close()
}

func (t *TransactionalProducer) Send(ctx context.Context, msg Event) error {
	return t.send(ctx, msg)
}

func (t *TransactionalProducer) BatchSend(ctx context.Context, msg []Event) error {
	return t.send(ctx, msg...)
}

func (t *TransactionalProducer) send(ctx context.Context, msgs ...Event) error {
	if id, ok := txman.ContextIDFromContext(ctx); ok {
		if d, bound := t.binder.Lookup(id); bound {
			t.mu.Lock()
			b, ok := t.buffers[d.ID()]
			if !ok {
				b = &buffer{ctx: ctx}
				t.buffers[d.ID()] = b
				descID := d.ID()
				d.OnCommit(func() { t.flush(descID) })
				d.OnRollback(func() { t.drop(descID) })
			}
			b.events = append(b.events, msgs...)
			t.mu.Unlock()
			return nil
		}
	}
	return t.wrap.BatchSend(ctx, msgs)
}

// flush runs after the commit already happened, so a send failure can only be
// logged, not turned into a rollback.
func (t *TransactionalProducer) flush(descID string) {
	t.mu.Lock()
	b, ok := t.buffers[descID]
	delete(t.buffers, descID)
	t.mu.Unlock()
	if !ok || len(b.events) == 0 {
		return
	}
	if err := t.wrap.BatchSend(b.ctx, b.events); err != nil {
		t.logh.Errorf("flush %d events after commit of %s: %v", len(b.events), descID, err)
	}
}

func (t *TransactionalProducer) drop(descID string) {
	t.mu.Lock()
	delete(t.buffers, descID)
	t.mu.Unlock()
}
