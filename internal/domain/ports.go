package domain

import (
	"context"
	"net/url"
	"time"
)

// ReviewSource fetches one page of upstream review search. Implementations
// own the engine identifier and transport concerns; callers drive pagination
// through the returned continuation token.
type ReviewSource interface {
	FetchPage(ctx context.Context, req PageRequest) (ReviewPage, error)
}

// Cache is the single shared store: best-effort get/put with TTL. Entries are
// never deleted explicitly; they age out.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// PageRequest is the upstream parameter set for one page fetch.
type PageRequest struct {
	PlaceID   string
	APIKey    string
	Language  string
	SortMode  string
	PageToken string // continuation token; empty for the first page
}

// ReviewPage is one decoded upstream page.
type ReviewPage struct {
	Reviews       []Review
	NextPageToken string
}

// PlaceQuery drives one place's pagination loop.
type PlaceQuery struct {
	PlaceID    string
	APIKey     string
	Language   string
	SortMode   string
	StartToken string
	FetchAll   bool
}

// FetchResult is one place's contribution: its tagged reviews and how many
// pages were actually retrieved. Never shared across places.
type FetchResult struct {
	PlaceID string
	Reviews []Review
	Pages   int
}

// ReviewQuery is the caller's request, validated once at the boundary. Raw
// holds the full original parameter set and is the sole input of cache
// keying, so equivalent requests land on the same entry whatever the
// parameter order.
type ReviewQuery struct {
	APIKey       string
	PlaceIDs     []string
	FetchAll     bool
	SortMode     string // default SortNewest
	Language     string // default DefaultLanguage
	RatingFilter string // raw comma-separated list; parsed by the aggregator
	OnlyWithText bool
	Limit        int    // 0 = no truncation
	PageToken    string // applied to the first page of every place
	Raw          url.Values
}

// PlaceQueries expands the query into one pagination request per place. The
// caller's continuation token fans out to every place identically; that is
// only meaningful for single-place requests and kept as-is.
func (q ReviewQuery) PlaceQueries() []PlaceQuery {
	out := make([]PlaceQuery, 0, len(q.PlaceIDs))
	for _, id := range q.PlaceIDs {
		out = append(out, PlaceQuery{
			PlaceID:    id,
			APIKey:     q.APIKey,
			Language:   q.Language,
			SortMode:   q.SortMode,
			StartToken: q.PageToken,
			FetchAll:   q.FetchAll,
		})
	}
	return out
}
