package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/factorlens/internal/adapters/mq/queue"
	"github.com/okian/factorlens/pkg/logger"
	"github.com/okian/factorlens/pkg/metrics"
)

// Func processes job i. Jobs must write their results by index so that the
// combined output does not depend on scheduling.
type Func func(ctx context.Context, i int) error

// inMemoryWorker drains job indices from a queue.
type inMemoryWorker struct {
	name   string
	jobs   <-chan int
	fn     Func
	logger logger.Logger
}

// run processes jobs until the channel closes or ctx is done. It returns the
// first job error.
func (w *inMemoryWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case i, ok := <-w.jobs:
			if !ok {
				return nil
			}
			if err := w.process(ctx, i); err != nil {
				w.logger.Debug(ctx, "job failed", logger.Int("job", i), logger.Error(err))
				return err
			}
		}
	}
}

func (w *inMemoryWorker) process(ctx context.Context, i int) error {
	start := time.Now()
	metrics.AddWorkerBusy(1)
	defer func() {
		metrics.AddWorkerBusy(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	if err := w.fn(ctx, i); err != nil {
		metrics.RecordErrorByComponent("worker", "job_error")
		return fmt.Errorf("%s job %d: %w", w.name, i, err)
	}
	return nil
}

// Pool runs batches of indexed jobs on at most size goroutines.
type Pool struct {
	size   int
	name   string
	logger logger.Logger
}

// NewPool creates a new worker pool. size < 1 means runtime.NumCPU().
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		size:   size,
		name:   "worker-pool",
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	metrics.UpdateWorkerCount(size)
	return p
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return p.size }

// Run calls fn for every index in [0, n) and waits for all of them. The first
// failure cancels the remaining jobs and is returned.
func (p *Pool) Run(ctx context.Context, n int, fn Func) error {
	if n <= 0 {
		return nil
	}
	workers := p.size
	if workers > n {
		workers = n
	}
	if workers == 1 {
		w := &inMemoryWorker{name: p.name + "-0", fn: fn, logger: p.logger}
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}
			if err := w.process(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	q := queue.NewInMemoryQueue[int](queue.WithCapacity(n))
	for i := 0; i < n; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			return fmt.Errorf("enqueue job %d: %w", i, err)
		}
	}
	_ = q.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for id := 0; id < workers; id++ {
		w := &inMemoryWorker{
			name:   p.name + "-" + strconv.Itoa(id),
			jobs:   q.Dequeue(runCtx),
			fn:     fn,
			logger: p.logger,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.run(runCtx); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return nil
}
