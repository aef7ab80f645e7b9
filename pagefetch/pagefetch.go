// Package pagefetch implements the bounded-parallel page fetcher from spec
// §4.5: page 0 is fetched sequentially; once it proves full, pages 1..N are
// submitted to a bounded worker pool, stopping as soon as any worker
// returns a short page. Page order is preserved on concatenation
// regardless of completion order (spec §5 "Ordering guarantees").
package pagefetch

import (
	"context"
	"sync"

	"github.com/mitayan0/WaveQL/batch"
)

// FetchPageFunc fetches the zero-indexed page i.
type FetchPageFunc func(ctx context.Context, page int) (*batch.Batch, error)

// Fetcher drives a paginated adapter read.
type Fetcher struct {
	PageSize    int
	MaxParallel int
}

// New returns a Fetcher with the given page size and parallelism bound.
func New(pageSize, maxParallel int) *Fetcher {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Fetcher{PageSize: pageSize, MaxParallel: maxParallel}
}

// Fetch drives fetchPage across as many pages as needed to either exhaust
// the source (a short page seen) or satisfy limit, then concatenates pages
// in index order and truncates to limit. On any worker error the whole
// fetch aborts and partial results are discarded (spec §4.5, §8 invariant
// "pagination exactness").
func (f *Fetcher) Fetch(ctx context.Context, hasLimit bool, limit int, fetchPage FetchPageFunc) (*batch.Batch, error) {
	first, err := fetchPage(ctx, 0)
	if err != nil {
		return nil, err
	}

	pages := map[int]*batch.Batch{0: first}
	lastIndex := 0
	full := first.RowCount() >= f.PageSize && f.PageSize > 0
	satisfied := hasLimit && first.RowCount() >= limit

	next := 1
	for full && !satisfied {
		round := f.MaxParallel
		results := make([]*batch.Batch, round)
		errs := make([]error, round)

		var wg sync.WaitGroup
		for i := 0; i < round; i++ {
			i := i
			page := next + i
			wg.Add(1)
			go func() {
				defer wg.Done()
				b, err := fetchPage(ctx, page)
				results[i] = b
				errs[i] = err
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}

		for i := 0; i < round; i++ {
			page := next + i
			pages[page] = results[i]
			lastIndex = page
			if results[i].RowCount() < f.PageSize {
				full = false
			}
			if hasLimit {
				total := 0
				for p := 0; p <= lastIndex; p++ {
					if b, ok := pages[p]; ok {
						total += b.RowCount()
					}
				}
				if total >= limit {
					satisfied = true
				}
			}
			if !full || satisfied {
				break
			}
		}
		next += round
	}

	ordered := make([]*batch.Batch, 0, lastIndex+1)
	for i := 0; i <= lastIndex; i++ {
		if b, ok := pages[i]; ok {
			ordered = append(ordered, b)
		}
	}

	combined, err := batch.Concat(ordered...)
	if err != nil {
		return nil, err
	}
	if hasLimit && combined.RowCount() > limit {
		combined = combined.Slice(0, limit)
	}
	return combined, nil
}
