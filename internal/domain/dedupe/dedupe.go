// Package dedupe tracks which matches have been claimed for settlement so a
// match is handed to the rating pipeline at most once per process.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records claimed ids.
type Deduper interface {
	// Claim atomically records id. It returns false when id was already claimed.
	Claim(ctx context.Context, id string) bool

	// Release forgets a claim so the id can be retried, e.g. after a
	// transient failure or a rejected enqueue.
	Release(ctx context.Context, id string)

	// Claimed reports whether id is currently held.
	Claimed(id string) bool

	Size() int
}

// inMemoryDeduper evicts the oldest claim once maxSize is reached. A
// non-positive maxSize keeps every claim.
type inMemoryDeduper struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List // oldest at the front
	maxSize int
}

// NewInMemoryDeduper creates an empty claim set.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		claims:  make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claims[id]; ok {
		return false
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.claims, oldest.Value.(string))
	}
	d.claims[id] = d.order.PushBack(id)
	return true
}

func (d *inMemoryDeduper) Release(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.claims[id]; ok {
		d.order.Remove(e)
		delete(d.claims, id)
	}
}

func (d *inMemoryDeduper) Claimed(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.claims[id]
	return ok
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
