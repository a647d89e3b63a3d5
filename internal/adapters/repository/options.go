package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMaxBatches bounds the number of stored batches. The oldest batch is
// evicted first. n <= 0 keeps the default.
func WithMaxBatches(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}
