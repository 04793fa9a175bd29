// internal/adapters/serpapi/client.go
package serpapi

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"serp_reviews/internal/adapters/observability"
	"serp_reviews/internal/domain"
)

const engine = "google_maps_reviews"

// ErrUpstream marks an error reported inside a SerpAPI payload
// (invalid key, unknown place, quota exhausted) as opposed to a
// transport or HTTP-level failure.
var ErrUpstream = errors.New("serpapi: upstream error")

type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// FetchPage requests one page of reviews for a single place. The caller's
// API key rides along on every request; pagination is driven by the token
// returned in the previous page.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (domain.ReviewPage, error) {
	if req.APIKey == "" {
		return domain.ReviewPage{}, fmt.Errorf("serpapi: api key is required")
	}
	if req.PlaceID == "" {
		return domain.ReviewPage{}, fmt.Errorf("serpapi: place id is required")
	}

	q := url.Values{}
	q.Set("engine", engine)
	q.Set("place_id", req.PlaceID)
	q.Set("api_key", req.APIKey)
	if req.Language != "" {
		q.Set("hl", req.Language)
	}
	if req.SortMode != "" {
		q.Set("sort_by", req.SortMode)
	}
	if req.PageToken != "" {
		q.Set("next_page_token", req.PageToken)
	}

	var out searchPayload
	if err := c.get(ctx, c.base+"/search.json?"+q.Encode(), &out); err != nil {
		return domain.ReviewPage{}, err
	}
	if out.Error != "" {
		return domain.ReviewPage{}, fmt.Errorf("%w: %s", ErrUpstream, out.Error)
	}
	return domain.ReviewPage{
		Reviews:       out.Reviews,
		NextPageToken: out.Pagination.NextPageToken,
	}, nil
}

// searchPayload is the slice of the SerpAPI response envelope we care
// about. Review objects stay untyped maps so unknown upstream fields
// survive verbatim.
type searchPayload struct {
	Reviews    []domain.Review `json:"reviews"`
	Pagination struct {
		NextPageToken string `json:"next_page_token"`
	} `json:"serpapi_pagination"`
	Error string `json:"error"`
}

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, url string, out *searchPayload) error {
	// client-side rate limiting
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "serp_reviews/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("serpapi", "search", 0, time.Since(start))
			// network error or context canceled
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			// context-aware sleep before retry
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			// no more retries or context canceled
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("serpapi", "search", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("serpapi: remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			// SerpAPI answers bad keys and unknown places with a 4xx plus
			// an error field in the JSON body. Surface that message when
			// present, otherwise keep a small body excerpt for diagnostics.
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			var pe struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(b, &pe) == nil && pe.Error != "" {
				return fmt.Errorf("%w: %s (status %d)", ErrUpstream, pe.Error, resp.StatusCode)
			}
			return fmt.Errorf("serpapi: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
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

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	// seconds form
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	// HTTP-date form
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	// concurrency-safe jitter using crypto/rand
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0                  // 0..1
	j := time.Duration(0.5 * f * float64(base)) // up to +50%
	return base + j
}
