package extract

import (
	"context"
	"sync"
)

// DefaultWorkers bounds concurrent extraction calls per extractor.
const DefaultWorkers = 4

// runJobs runs fn for each index in [0, n) with at most workers running at
// once. The first error wins; remaining jobs still run to completion.
func runJobs(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(ctx, i)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
