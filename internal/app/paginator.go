package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"serp_reviews/internal/domain"
)

const (
	// DefaultMaxPages caps a fetch_all walk so a place with endless reviews
	// cannot pin a request (and its upstream quota) forever.
	DefaultMaxPages = 20
	// DefaultPageDelay spaces out consecutive page requests per place.
	DefaultPageDelay = 200 * time.Millisecond
)

// Paginator walks the page chain for a single place. Upstream failures are
// absorbed: whatever pages were fetched before the failure are returned as a
// partial result, so one flaky place never poisons a whole aggregation.
type Paginator struct {
	src      domain.ReviewSource
	maxPages int
	delay    time.Duration
	log      zerolog.Logger
}

func NewPaginator(src domain.ReviewSource, maxPages int, delay time.Duration, log zerolog.Logger) *Paginator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if delay < 0 {
		delay = DefaultPageDelay
	}
	return &Paginator{src: src, maxPages: maxPages, delay: delay, log: log}
}

// FetchPlace fetches one page, or the whole chain when q.FetchAll is set.
// The returned error is non-nil only when ctx dies; upstream errors end the
// walk early and are reported through the log instead.
func (p *Paginator) FetchPlace(ctx context.Context, q domain.PlaceQuery) (domain.FetchResult, error) {
	res := domain.FetchResult{PlaceID: q.PlaceID}
	token := q.StartToken

	for {
		page, err := p.src.FetchPage(ctx, domain.PageRequest{
			PlaceID:   q.PlaceID,
			APIKey:    q.APIKey,
			Language:  q.Language,
			SortMode:  q.SortMode,
			PageToken: token,
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.log.Warn().Err(err).
				Str("place_id", q.PlaceID).
				Int("pages", res.Pages).
				Msg("review page fetch failed, keeping partial result")
			return res, nil
		}

		for _, r := range page.Reviews {
			r.TagSource(q.PlaceID)
		}
		res.Reviews = append(res.Reviews, page.Reviews...)
		res.Pages++
		token = page.NextPageToken

		if !q.FetchAll || token == "" || res.Pages >= p.maxPages {
			return res, nil
		}
		// pause between pages, never before the first or after the last
		if !sleepCtx(ctx, p.delay) {
			return res, ctx.Err()
		}
	}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
