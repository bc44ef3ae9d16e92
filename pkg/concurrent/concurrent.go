// Package concurrent runs slices of work on bounded goroutine pools.
package concurrent

import (
	"golang.org/x/sync/errgroup"
)

// ForEach calls action for every element using at most workers goroutines
// and waits for all of them. Errors do not cancel the remaining calls; the
// first one is returned.
func ForEach[T any](items []T, workers int, action func(T) error) error {
	if workers <= 1 || len(items) <= 1 {
		var first error
		for _, item := range items {
			if err := action(item); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, item := range items {
		g.Go(func() error {
			return action(item)
		})
	}
	return g.Wait()
}

// Map applies fn to every element with at most workers goroutines,
// preserving order.
func Map[T, R any](items []T, workers int, fn func(T) R) []R {
	out := make([]R, len(items))
	indexes := make([]int, len(items))
	for i := range indexes {
		indexes[i] = i
	}
	_ = ForEach(indexes, workers, func(i int) error {
		out[i] = fn(items[i])
		return nil
	})
	return out
}
