// Package dispatch runs line-parallel work on a persistent worker pool.
//
// A Dispatcher is created once and reused for every pass of every image, so
// the many short rounds of the sorting network do not pay for goroutine
// creation. ParallelFor is the synchronisation point between passes: it only
// returns once every chunk it handed out has finished.
//
// Usage:
//
//	d, err := dispatch.New(runtime.NumCPU(), logger)
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	d.ParallelFor(lines, func(start, end int) {
//	    for line := start; line < end; line++ {
//	        processLine(line)
//	    }
//	})
package dispatch

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Dispatcher splits index ranges across a fixed set of workers
type Dispatcher struct {
	workers int
	pool    *ants.Pool
	logger  *zap.Logger
}

// New creates a dispatcher with the given number of workers.
// If workers <= 0, uses GOMAXPROCS.
func New(workers int, logger *zap.Logger) (*Dispatcher, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create worker pool")
	}

	return &Dispatcher{workers: workers, pool: pool, logger: logger}, nil
}

// Workers returns the number of workers in the pool
func (d *Dispatcher) Workers() int {
	return d.workers
}

// ParallelFor executes fn over [0, n) split into contiguous chunks, one per
// worker, and blocks until all chunks complete.
//
// fn receives (start, end) indices where work should process [start, end).
// Chunks are disjoint, so fn may write to per-index state without locking.
func (d *Dispatcher) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}

	workers := min(d.workers, n)
	if workers == 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(start, end)
		}
		if err := d.pool.Submit(task); err != nil {
			// Pool closed or saturated: keep the barrier semantics by running inline
			d.logger.Debug("running chunk inline", zap.Error(err), zap.Int("start", start), zap.Int("end", end))
			task()
		}
	}
	wg.Wait()
}

// Close releases the workers. Work submitted afterwards runs on the caller's
// goroutine. Calling Close multiple times is safe.
func (d *Dispatcher) Close() {
	d.pool.Release()
}
