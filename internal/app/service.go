package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"serp_reviews/internal/adapters/observability"
	"serp_reviews/internal/domain"
)

// Outcome is a ready-to-send response body plus where it came from, so the
// handler can mark cache-served answers without re-deciding anything.
type Outcome struct {
	Body        []byte
	CacheServed bool
}

// ReviewService runs the fetch pipeline and wraps it in cache-aside logic:
// live results are stored write-behind, and the cache doubles as a fallback
// when the live fetch comes back empty or dies entirely.
type ReviewService struct {
	orch  *Orchestrator
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
	wg    sync.WaitGroup
}

func NewReviewService(orch *Orchestrator, cache domain.Cache, ttl time.Duration, log zerolog.Logger) *ReviewService {
	return &ReviewService{orch: orch, cache: cache, ttl: ttl, log: log}
}

// GetReviews resolves q to a response body. The error is non-nil only when
// the pipeline failed AND no cached body could stand in; everything else is
// a 200-shaped outcome.
func (s *ReviewService) GetReviews(ctx context.Context, q domain.ReviewQuery) (Outcome, error) {
	key := CacheKey(q.Raw)

	body, err := s.live(ctx, q)
	if err == nil && body != nil {
		s.storeAsync(key, body)
		return Outcome{Body: body}, nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("review fetch pipeline failed")
	}

	// zero live results and pipeline failures share one fallback:
	// yesterday's data beats an empty answer
	if cached, ok := s.fromCache(ctx, key); ok {
		return Outcome{Body: cached, CacheServed: true}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	empty, _ := json.Marshal(domain.EmptyAggregate())
	return Outcome{Body: empty}, nil
}

// live runs the fetch pipeline. A nil body with nil error means the upstream
// produced zero matching reviews.
func (s *ReviewService) live(ctx context.Context, q domain.ReviewQuery) ([]byte, error) {
	results, err := s.orch.FetchAll(ctx, q.PlaceQueries())
	if err != nil {
		return nil, err
	}
	agg := Combine(results, q)
	if agg.TotalCount == 0 {
		return nil, nil
	}
	return json.Marshal(agg)
}

func (s *ReviewService) fromCache(ctx context.Context, key string) ([]byte, bool) {
	body, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	observability.ObserveCache("reviews", "fallback")
	return body, true
}

// storeAsync writes the body behind the response. The write gets its own
// context so a canceled request cannot abort it.
func (s *ReviewService) storeAsync(key string, body []byte) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}()
}

// Flush blocks until all pending write-behind stores have finished. Callers
// that exit right after a request (the fetch CLI, graceful shutdown) use it
// to keep writes from being lost.
func (s *ReviewService) Flush() { s.wg.Wait() }
