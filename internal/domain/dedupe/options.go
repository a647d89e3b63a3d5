package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithCapacity preallocates room for n IDs.
func WithCapacity(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.index = make(map[string]int, n)
			d.order = make([]string, 0, n)
		}
	}
}

// WithFold sets a key function, e.g. strings.TrimSpace, applied before
// comparing IDs. The first spelling seen is the one kept.
func WithFold(fold func(string) string) Option {
	return func(d *inMemoryDeduper) {
		d.fold = fold
	}
}
