// Package dedupe tracks job submission idempotency keys.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper maps idempotency keys to the job that first claimed them.
type Deduper interface {
	// Claim atomically binds key to jobID unless the key is already bound.
	// It returns the bound job ID and true when key was seen before, or
	// jobID and false when the claim succeeded.
	Claim(ctx context.Context, key, jobID string) (string, bool)

	// Release drops key so it can be claimed again. Used when a claimed
	// submission could not be enqueued (e.g. queue backpressure).
	Release(ctx context.Context, key string)

	// Lookup returns the job bound to key, if any.
	Lookup(ctx context.Context, key string) (string, bool)

	Size() int64
}

type entry struct {
	key   string
	jobID string
}

// inMemoryDeduper keeps keys in claim order. For bounded mode (maxSize > 0)
// the oldest claim is evicted first; maxSize <= 0 never evicts.
type inMemoryDeduper struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // front is the oldest claim
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	d.index = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Claim(ctx context.Context, key, jobID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		return el.Value.(*entry).jobID, true
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.index[key] = d.order.PushBack(&entry{key: key, jobID: jobID})
	d.size.Add(1)
	return jobID, false
}

func (d *inMemoryDeduper) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.order.Remove(el)
		delete(d.index, key)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Lookup(ctx context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		return el.Value.(*entry).jobID, true
	}
	return "", false
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	el := d.order.Front()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.index, el.Value.(*entry).key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
