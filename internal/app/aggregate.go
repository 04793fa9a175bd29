package app

import (
	"sort"
	"strconv"
	"strings"

	"serp_reviews/internal/domain"
)

// Combine flattens per-place results into one response aggregate.
//
// Order matters: filters run before counting so total_count reflects what
// matched, and the limit runs last so it never influences the counts.
func Combine(results []domain.FetchResult, q domain.ReviewQuery) domain.Aggregate {
	var pages int
	var flat []domain.Review
	for _, res := range results {
		pages += res.Pages
		flat = append(flat, res.Reviews...)
	}

	if wanted := parseRatings(q.RatingFilter); len(wanted) > 0 {
		kept := flat[:0]
		for _, r := range flat {
			if f, ok := r.Rating(); ok && wanted[f] {
				kept = append(kept, r)
			}
		}
		flat = kept
	}

	if q.OnlyWithText {
		kept := flat[:0]
		for _, r := range flat {
			if r.HasText() {
				kept = append(kept, r)
			}
		}
		flat = kept
	}

	sortReviews(flat, q.SortMode)

	total := len(flat)
	if q.Limit > 0 && len(flat) > q.Limit {
		flat = flat[:q.Limit]
	}

	// reviews must serialize as [] rather than null
	out := make([]domain.Review, len(flat))
	copy(out, flat)

	return domain.Aggregate{
		TotalCount:    total,
		ReturnedCount: len(out),
		PagesFetched:  pages,
		Reviews:       out,
	}
}

// parseRatings turns a raw "4,5"-style filter into a lookup set. Entries
// that do not parse are dropped; an empty set disables the filter.
func parseRatings(raw string) map[float64]bool {
	if raw == "" {
		return nil
	}
	set := map[float64]bool{}
	for _, part := range strings.Split(raw, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			continue
		}
		set[f] = true
	}
	return set
}

func sortReviews(rs []domain.Review, mode string) {
	switch mode {
	case domain.SortNewest:
		sort.SliceStable(rs, func(i, j int) bool {
			return rs[i].EffectiveTime().After(rs[j].EffectiveTime())
		})
	case domain.SortHighest:
		sort.SliceStable(rs, func(i, j int) bool {
			return ratingOrZero(rs[i]) > ratingOrZero(rs[j])
		})
	case domain.SortLowest:
		sort.SliceStable(rs, func(i, j int) bool {
			return ratingOrZero(rs[i]) < ratingOrZero(rs[j])
		})
	}
	// any other mode keeps the flatten order
}

func ratingOrZero(r domain.Review) float64 {
	f, ok := r.Rating()
	if !ok {
		return 0
	}
	return f
}
