// Package parallel runs a function over a slice with bounded concurrency.
package parallel

import (
	"context"
	"sync"
)

// ForEach calls fn for every input using at most limit goroutines. The
// first error cancels the context handed to the remaining calls, stops
// feeding new inputs and is returned. fn receives the input's index so
// results can be stored without locking.
func ForEach[T any](ctx context.Context, inputs []T, limit int, fn func(ctx context.Context, i int, in T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	limit = max(1, min(limit, len(inputs)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan int)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for range limit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				if err := fn(ctx, i, inputs[i]); err != nil {
					select {
					case errCh <- err:
						cancel()
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for i := range inputs {
			select {
			case <-ctx.Done():
				return
			case tasks <- i:
			}
		}
	}()

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}
