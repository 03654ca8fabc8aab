package txman

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// binderShards trades memory for lock granularity so unrelated execution
// contexts never contend on one lock.
const binderShards = 32

type binding struct {
	active *Descriptor
	// suspended holds descriptors parked by REQUIRES_NEW, most recent last.
	suspended []*Descriptor
}

type binderShard struct {
	mu sync.Mutex
	m  map[ContextID]*binding
}

// Binder associates an execution context with at most one active transaction
// descriptor. It replaces thread-local storage with an explicit, injectable
// registry so the same manager works under goroutines, request contexts or
// any other unit of scheduling.
type Binder struct {
	shards [binderShards]binderShard
}

// NewBinder creates an empty Binder.
func NewBinder() *Binder {
	b := &Binder{}
	for i := range b.shards {
		b.shards[i].m = make(map[ContextID]*binding)
	}
	return b
}

func (b *Binder) shard(id ContextID) *binderShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &b.shards[h.Sum32()%binderShards]
}

// Bind records that id currently owns d. It fails with AlreadyBound when id
// already has an active, non-suspended binding.
func (b *Binder) Bind(id ContextID, d *Descriptor) error {
	s := b.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.m[id]
	if bd == nil {
		bd = &binding{}
		s.m[id] = bd
	}
	if bd.active != nil {
		return NewError(AlreadyBound, fmt.Sprintf("context %s already has an active transaction %s", id, bd.active.ID()), nil)
	}
	bd.active = d
	return nil
}

// Lookup returns the active descriptor bound to id. Pure read.
func (b *Binder) Lookup(id ContextID) (*Descriptor, bool) {
	s := b.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.m[id]
	if bd == nil || bd.active == nil {
		return nil, false
	}
	return bd.active, true
}

// Unbind removes the active binding for id. Unbinding an unbound context is a
// no-op: cleanup paths may run twice under error handling.
func (b *Binder) Unbind(id ContextID) {
	s := b.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.m[id]
	if bd == nil {
		return
	}
	bd.active = nil
	if len(bd.suspended) == 0 {
		delete(s.m, id)
	}
}

// Suspend parks the active binding for id and returns it. The parked
// descriptor is invisible to Lookup until Resume restores it.
func (b *Binder) Suspend(id ContextID) (*Descriptor, bool) {
	s := b.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.m[id]
	if bd == nil || bd.active == nil {
		return nil, false
	}
	d := bd.active
	bd.active = nil
	bd.suspended = append(bd.suspended, d)
	return d, true
}

// Resume restores a previously suspended descriptor as the active binding for
// id. Resuming over an existing active binding is refused.
func (b *Binder) Resume(id ContextID, d *Descriptor) error {
	s := b.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	bd := s.m[id]
	if bd == nil {
		bd = &binding{}
		s.m[id] = bd
	}
	if bd.active != nil {
		return NewError(AlreadyBound, fmt.Sprintf("cannot resume transaction %s: context %s is already bound", d.ID(), id), nil)
	}
	for i := len(bd.suspended) - 1; i >= 0; i-- {
		if bd.suspended[i] == d {
			bd.suspended = append(bd.suspended[:i], bd.suspended[i+1:]...)
			break
		}
	}
	bd.active = d
	return nil
}
