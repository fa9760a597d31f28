// Package workpool runs independent, CPU-bound jobs on a fixed number of workers
// and folds their results.
package workpool

import (
	"runtime"
	"sync"
)

// Run evaluates fn for every index in [0, n) on up to workers goroutines and
// folds the results into zero with reduce in index order. The fold order is fixed,
// so results do not depend on the worker count. workers <= 0 uses GOMAXPROCS.
//
// Run has no cancellation: it returns after every job has finished.
func Run[T any](workers, n int, fn func(i int) T, zero T, reduce func(acc, v T) T) T {
	if n <= 0 {
		return zero
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	type result struct {
		idx int
		val T
	}

	jobs := make(chan int)
	results := make(chan result, n)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- result{idx: idx, val: fn(idx)}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	ordered := make([]T, n)
	for res := range results {
		ordered[res.idx] = res.val
	}

	acc := zero
	for _, v := range ordered {
		acc = reduce(acc, v)
	}
	return acc
}
