// Package dedupe tracks identifiers in first-seen order.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Seen returns the recorded IDs in first-seen order.
	Seen() []string
}

// inMemoryDeduper keeps a set for lookups and a slice for order.
type inMemoryDeduper struct {
	mu    sync.Mutex
	index map[string]int
	order []string
	fold  func(string) string
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	return d
}

func (d *inMemoryDeduper) key(id string) string {
	if d.fold != nil {
		return d.fold(id)
	}
	return id
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := d.key(id)
	if _, exists := d.index[k]; exists {
		return true
	}
	d.index[k] = len(d.order)
	d.order = append(d.order, id)
	return false
}

// Seen implements Deduper.
func (d *inMemoryDeduper) Seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Unique returns ids without repeats, keeping the first occurrence of each.
func Unique(ids []string, opts ...Option) []string {
	if ids == nil {
		return nil
	}
	d := NewInMemoryDeduper(append([]Option{WithCapacity(len(ids))}, opts...)...)
	for _, id := range ids {
		d.SeenAndRecord(context.Background(), id)
	}
	return d.Seen()
}

