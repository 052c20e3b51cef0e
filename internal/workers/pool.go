// Package workers runs independent jobs on a fixed set of goroutines and
// returns their results in job order.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ProgressCallback reports completed jobs; calls may come from any worker.
type ProgressCallback func(current, total int, message string)

// JobFunc computes the value of job index.
type JobFunc func(index int) (float64, error)

// WorkerPool manages a pool of worker goroutines for parallel shot evaluation
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10 // Default to 10 workers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// NumWorkers returns the pool size
func (wp *WorkerPool) NumWorkers() int {
	return wp.numWorkers
}

// Map runs fn for every index in [0, n) and returns the values indexed by
// job, so the output does not depend on scheduling. The first error stops
// dispatch and is returned.
func (wp *WorkerPool) Map(ctx context.Context, n int, fn JobFunc, progress ProgressCallback) ([]float64, error) {
	if n <= 0 {
		return []float64{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan jobItem, n)
	results := make(chan resultItem, n)

	// Start workers
	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than jobs
	}

	var completed atomic.Int64
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, fn, func() {
				if progress != nil {
					done := int(completed.Add(1))
					progress(done, n, fmt.Sprintf("Evaluating shot %d of %d", done, n))
				}
			})
		}()
	}

	// Send jobs to workers
	for idx := 0; idx < n; idx++ {
		jobs <- jobItem{index: idx}
	}
	close(jobs)

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	values := make([]float64, n)
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("job %d: %w", result.index, result.err)
				cancel()
			}
			continue
		}
		values[result.index] = result.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// jobItem represents a single job
type jobItem struct {
	index int
}

// resultItem represents the result of a job
type resultItem struct {
	index int
	value float64
	err   error
}

// worker is the worker goroutine that processes jobs
func worker(
	ctx context.Context,
	jobs <-chan jobItem,
	results chan<- resultItem,
	fn JobFunc,
	done func(),
) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- resultItem{index: job.index, err: err}
			continue
		}

		value, err := fn(job.index)

		// Send result
		results <- resultItem{
			index: job.index,
			value: value,
			err:   err,
		}
		if err == nil {
			done()
		}
	}
}
