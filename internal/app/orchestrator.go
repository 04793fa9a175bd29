package app

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"serp_reviews/internal/domain"
)

// Orchestrator fans a multi-place query out to the paginator, bounded by a
// worker semaphore, and stitches the results back in input order. A place
// that fails upstream simply contributes an empty result; only a dead
// context aborts the whole fan-out.
type Orchestrator struct {
	pag     *Paginator
	workers int64
}

func NewOrchestrator(pag *Paginator, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{pag: pag, workers: int64(workers)}
}

func (o *Orchestrator) FetchAll(ctx context.Context, queries []domain.PlaceQuery) ([]domain.FetchResult, error) {
	results := make([]domain.FetchResult, len(queries))
	sem := semaphore.NewWeighted(o.workers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, q := range queries {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(slot int, pq domain.PlaceQuery) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := o.pag.FetchPlace(ctx, pq)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			// each goroutine owns exactly one slot, so no lock is needed
			results[slot] = res
		}(i, q)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
