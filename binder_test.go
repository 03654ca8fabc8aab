package txman

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindLookupUnbind(t *testing.T) {
	b := NewBinder()
	d := &Descriptor{id: "tx-1", ctxID: "ctx-1"}

	_, ok := b.Lookup("ctx-1")
	assert.False(t, ok)

	assert.NoError(t, b.Bind("ctx-1", d))

	got, ok := b.Lookup("ctx-1")
	assert.True(t, ok)
	assert.Same(t, d, got)

	b.Unbind("ctx-1")
	_, ok = b.Lookup("ctx-1")
	assert.False(t, ok)

	//double unbind is a no-op
	b.Unbind("ctx-1")
}

func TestBindAlreadyBound(t *testing.T) {
	b := NewBinder()
	assert.NoError(t, b.Bind("ctx-1", &Descriptor{id: "tx-1"}))

	err := b.Bind("ctx-1", &Descriptor{id: "tx-2"})
	assert.Error(t, err)
	assert.Equal(t, AlreadyBound, KindOf(err))

	//a different context is unaffected
	assert.NoError(t, b.Bind("ctx-2", &Descriptor{id: "tx-3"}))
}

func TestSuspendResume(t *testing.T) {
	b := NewBinder()
	outer := &Descriptor{id: "tx-outer"}
	inner := &Descriptor{id: "tx-inner"}

	assert.NoError(t, b.Bind("ctx-1", outer))

	got, ok := b.Suspend("ctx-1")
	assert.True(t, ok)
	assert.Same(t, outer, got)

	//suspended descriptor is invisible to lookups
	_, ok = b.Lookup("ctx-1")
	assert.False(t, ok)

	assert.NoError(t, b.Bind("ctx-1", inner))
	b.Unbind("ctx-1")

	assert.NoError(t, b.Resume("ctx-1", outer))
	got, ok = b.Lookup("ctx-1")
	assert.True(t, ok)
	assert.Same(t, outer, got)
}

func TestSuspendNothing(t *testing.T) {
	b := NewBinder()
	_, ok := b.Suspend("ctx-1")
	assert.False(t, ok)
}

func TestResumeOverActive(t *testing.T) {
	b := NewBinder()
	assert.NoError(t, b.Bind("ctx-1", &Descriptor{id: "tx-1"}))
	err := b.Resume("ctx-1", &Descriptor{id: "tx-2"})
	assert.Equal(t, AlreadyBound, KindOf(err))
}

func TestConcurrentContexts(t *testing.T) {
	b := NewBinder()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ContextID(fmt.Sprintf("ctx-%d", i))
			d := &Descriptor{id: fmt.Sprintf("tx-%d", i), ctxID: id}
			assert.NoError(t, b.Bind(id, d))
			got, ok := b.Lookup(id)
			assert.True(t, ok)
			assert.Same(t, d, got)
			b.Unbind(id)
		}(i)
	}
	wg.Wait()
}
