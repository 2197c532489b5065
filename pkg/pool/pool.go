package pool

import (
	"context"
	"errors"
	"sync"
)

// WorkerFunc processes a single item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run processes items concurrently with at most numWorkers goroutines.
// The returned slice is aligned with items: errs[i] is the result of
// items[i], nil on success. Items never started because ctx ended get
// ctx.Err().
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	errs := make([]error, len(items))
	started := make([]bool, len(items))

	var wg sync.WaitGroup
	taskChan := make(chan int, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if ctx.Err() != nil {
					continue
				}
				started[idx] = true
				errs[idx] = workerFunc(ctx, items[idx])
			}
		}()
	}

OUT:
	for i := range items {
		select {
		case taskChan <- i:
		case <-ctx.Done():
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	for i := range items {
		if !started[i] {
			errs[i] = ctx.Err()
		}
	}
	return errs
}

// Join combines the non-nil errors returned by Run.
func Join(errs []error) error {
	return errors.Join(errs...)
}
