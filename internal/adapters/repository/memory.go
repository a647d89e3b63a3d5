package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/pkg/metrics"
)

const defaultMaxBatches = 16

// MemoryStore is an in-memory Store. Batches are immutable, so readers share
// them without copying.
type MemoryStore struct {
	mu         sync.RWMutex
	batches    map[string]*model.Batch
	order      []string // oldest first
	maxBatches int
}

// NewMemoryStore creates a new store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		batches:    make(map[string]*model.Batch),
		maxBatches: defaultMaxBatches,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, b *model.Batch) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: batch must have an id", ErrInvalidBatch)
	}
	if b.ID == CurrentID {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidBatch, CurrentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID]; exists {
		s.removeLocked(b.ID)
	}
	for len(s.order) >= s.maxBatches {
		s.removeLocked(s.order[0])
	}
	s.batches[b.ID] = b
	s.order = append(s.order, b.ID)
	metrics.UpdateBatchesStored(len(s.order))
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Batch, error) {
	if id == CurrentID {
		return s.Latest(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, fmt.Errorf("%w: no batches stored", ErrNotFound)
	}
	return s.batches[s.order[len(s.order)-1]], nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, len(s.order))
	for i, id := range s.order {
		out[i] = Info{ID: id, Records: len(s.batches[id].Records)}
	}
	return out
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// removeLocked must be called with s.mu held.
func (s *MemoryStore) removeLocked(id string) {
	delete(s.batches, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
