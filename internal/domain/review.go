package domain

import (
	"strconv"
	"strings"
	"time"
)

// Keys this gateway reads from (or adds to) the otherwise opaque upstream
// review payload. Everything else passes through untouched.
const (
	SourcePlaceKey = "source_place_id"
	ratingKey      = "rating"
	snippetKey     = "snippet"
	dateKey        = "iso_date"
	editedDateKey  = "iso_date_of_last_edit"
)

// Sort modes accepted by the gateway and forwarded upstream. Anything else
// leaves the merged sequence in flatten order.
const (
	SortNewest  = "newestFirst"
	SortHighest = "highestRating"
	SortLowest  = "lowestRating"
)

// DefaultLanguage is the hl value applied when the caller sends none.
const DefaultLanguage = "de"

// NoReviewsWarning is the fixed warning text served when neither upstream nor
// cache produced anything.
const NoReviewsWarning = "No reviews found and no cache available."

// Review is one upstream review object, passed through verbatim. The upstream
// schema is deliberately not typed out: fields we never heard of must survive
// the trip unmodified. The gateway enforces exactly one addition,
// source_place_id.
type Review map[string]any

// TagSource stamps the review with the place identifier it was fetched for.
func (r Review) TagSource(placeID string) { r[SourcePlaceKey] = placeID }

// SourcePlaceID returns the place identifier stamped by TagSource, or "".
func (r Review) SourcePlaceID() string {
	s, _ := r[SourcePlaceKey].(string)
	return s
}

// Rating returns the numeric rating. Upstream sends JSON numbers; int and
// string forms are coerced too since hand-built payloads use them.
func (r Review) Rating() (float64, bool) {
	switch v := r[ratingKey].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Snippet returns the review text or "".
func (r Review) Snippet() string {
	s, _ := r[snippetKey].(string)
	return s
}

// HasText reports whether the snippet is non-empty after trimming.
func (r Review) HasText() bool { return strings.TrimSpace(r.Snippet()) != "" }

// EffectiveTime is the timestamp reviews sort by under newestFirst: the last
// edit when present, else the original post date. Edited reviews therefore
// sort by their edit time. Unparseable dates collapse to the zero time and
// sink to the old end of the ordering.
func (r Review) EffectiveTime() time.Time {
	if t, ok := r.timeField(editedDateKey); ok {
		return t
	}
	t, _ := r.timeField(dateKey)
	return t
}

func (r Review) timeField(key string) (time.Time, bool) {
	s, ok := r[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Aggregate is the unit of caching and the exact body shape served to the
// caller, live or from cache. Counts are always serialized; Reviews is never
// null. Invariant: ReturnedCount == len(Reviews) <= TotalCount.
type Aggregate struct {
	TotalCount    int      `json:"total_count"`
	ReturnedCount int      `json:"returned_count"`
	PagesFetched  int      `json:"pages_fetched"`
	Reviews       []Review `json:"reviews"`
	Warning       string   `json:"warning,omitempty"`
}

// EmptyAggregate is the fixed terminal body when upstream yielded nothing and
// no cached aggregate exists.
func EmptyAggregate() Aggregate {
	return Aggregate{Reviews: []Review{}, Warning: NoReviewsWarning}
}
