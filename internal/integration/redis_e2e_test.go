//go:build integration || !unit

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpserver "serp_reviews/internal/adapters/http_server"
	redisad "serp_reviews/internal/adapters/redis"
	"serp_reviews/internal/adapters/serpapi"
	"serp_reviews/internal/app"
	"serp_reviews/internal/domain"
)

// ---------- upstream stub ----------

// upstream mimics the review-search API: two places with one page each,
// switchable into a failure mode that reports an error payload.
type upstream struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (u *upstream) handler(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	q := r.URL.Query()
	if q.Get("engine") != "google_maps_reviews" {
		http.Error(w, "wrong engine", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if u.down.Load() {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "quota exceeded"})
		return
	}

	switch q.Get("place_id") {
	case "place-a":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{
				{"rating": 5, "snippet": "great", "iso_date": "2024-03-01T10:00:00Z"},
				{"rating": 3, "snippet": "", "iso_date": "2024-02-01T10:00:00Z"},
			},
		})
	case "place-b":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{
				{"rating": 4, "snippet": "solid", "iso_date": "2024-01-01T10:00:00Z"},
			},
		})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"reviews": []any{}})
	}
}

// ---------- redis container ----------

func startRedis(t *testing.T) string {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run redis: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	addr := fmt.Sprintf("127.0.0.1:%s", resource.GetPort("6379/tcp"))
	if err := pool.Retry(func() error {
		return redisad.New(addr, "", 0).Ping(context.Background())
	}); err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	return addr
}

// ---------- the test ----------

func TestHTTP_EndToEnd_AggregationAndFallback(t *testing.T) {
	redisAddr := startRedis(t)

	up := &upstream{}
	upstreamSrv := httptest.NewServer(http.HandlerFunc(up.handler))
	defer upstreamSrv.Close()

	cache := redisad.New(redisAddr, "", 0)
	client := serpapi.New(upstreamSrv.URL, 100)
	pag := app.NewPaginator(client, 20, 0, zerolog.Nop())
	svc := app.NewReviewService(app.NewOrchestrator(pag, 4), cache, 7*24*time.Hour, zerolog.Nop())

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Svc: svc})
	api := httptest.NewServer(srv.Mux())
	defer api.Close()

	params := url.Values{
		"api_key":           {"test-key"},
		"place_id":          {"place-a,place-b"},
		"only_with_reviews": {"true"},
		"sort_by":           {"highestRating"},
		"limit":             {"2"},
	}
	reqURL := api.URL + "/v1/reviews?" + params.Encode()

	// 1) live aggregation across both places
	res, err := http.Get(reqURL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	liveBody, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, liveBody)
	}
	if res.Header.Get("X-Cache") != "" {
		t.Fatal("live response must not be cache-marked")
	}

	var agg domain.Aggregate
	if err := json.Unmarshal(liveBody, &agg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// empty-snippet review dropped, rest sorted desc by rating
	if agg.TotalCount != 2 || agg.ReturnedCount != 2 || agg.PagesFetched != 2 {
		t.Fatalf("counts: %+v", agg)
	}
	r0, _ := agg.Reviews[0].Rating()
	r1, _ := agg.Reviews[1].Rating()
	if r0 != 5 || r1 != 4 {
		t.Fatalf("ratings: %v %v", r0, r1)
	}
	if agg.Reviews[0].SourcePlaceID() != "place-a" || agg.Reviews[1].SourcePlaceID() != "place-b" {
		t.Fatalf("source tags: %+v", agg.Reviews)
	}

	// 2) write-behind landed in redis under the normalized key, with a TTL
	svc.Flush()
	key := app.CacheKey(params)
	stored, ok, err := cache.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("cache entry missing: ok=%v err=%v", ok, err)
	}
	if string(stored) != string(liveBody) {
		t.Fatalf("cached body differs from served body")
	}
	rc := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer rc.Close()
	if ttl := rc.TTL(context.Background(), key).Val(); ttl <= 0 {
		t.Fatalf("expected a TTL on the cache entry, got %v", ttl)
	}

	// 3) upstream failure: the identical request now serves the cached body
	up.down.Store(true)
	res2, err := http.Get(reqURL)
	if err != nil {
		t.Fatalf("GET after outage: %v", err)
	}
	fallbackBody, _ := io.ReadAll(res2.Body)
	res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("fallback status %d", res2.StatusCode)
	}
	if res2.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache HIT, got %q", res2.Header.Get("X-Cache"))
	}
	if string(fallbackBody) != string(liveBody) {
		t.Fatalf("fallback must be byte-identical to the cached aggregate")
	}

	// 4) unknown place during the outage, nothing cached: fixed warning body
	res3, err := http.Get(api.URL + "/v1/reviews?api_key=test-key&place_id=nowhere")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	warnBody, _ := io.ReadAll(res3.Body)
	res3.Body.Close()
	if res3.StatusCode != http.StatusOK {
		t.Fatalf("warning status %d", res3.StatusCode)
	}
	want := `{"total_count":0,"returned_count":0,"pages_fetched":0,"reviews":[],"warning":"No reviews found and no cache available."}`
	if string(warnBody) != want {
		t.Fatalf("warning body:\n got %s\nwant %s", warnBody, want)
	}
}

func TestHTTP_EndToEnd_FetchAllPagination(t *testing.T) {
	redisAddr := startRedis(t)

	// a three-page chain for one place
	pages := map[string]map[string]any{
		"": {
			"reviews":            []map[string]any{{"rating": 5, "snippet": "p1"}},
			"serpapi_pagination": map[string]any{"next_page_token": "t1"},
		},
		"t1": {
			"reviews":            []map[string]any{{"rating": 4, "snippet": "p2"}},
			"serpapi_pagination": map[string]any{"next_page_token": "t2"},
		},
		"t2": {
			"reviews": []map[string]any{{"rating": 3, "snippet": "p3"}},
		},
	}
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pages[r.URL.Query().Get("next_page_token")])
	}))
	defer upstreamSrv.Close()

	cache := redisad.New(redisAddr, "", 0)
	client := serpapi.New(upstreamSrv.URL, 100)
	pag := app.NewPaginator(client, 20, time.Millisecond, zerolog.Nop())
	svc := app.NewReviewService(app.NewOrchestrator(pag, 4), cache, time.Hour, zerolog.Nop())

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Svc: svc})
	api := httptest.NewServer(srv.Mux())
	defer api.Close()

	res, err := http.Get(api.URL + "/v1/reviews?api_key=k&place_id=p&fetch_all=true")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()

	var agg domain.Aggregate
	if err := json.NewDecoder(res.Body).Decode(&agg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if agg.PagesFetched != 3 || agg.TotalCount != 3 {
		t.Fatalf("expected full 3-page walk: %+v", agg)
	}

	// without fetch_all only the first page is taken
	res2, err := http.Get(api.URL + "/v1/reviews?api_key=k&place_id=p")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res2.Body.Close()
	if err := json.NewDecoder(res2.Body).Decode(&agg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if agg.PagesFetched != 1 || agg.TotalCount != 1 {
		t.Fatalf("expected single page: %+v", agg)
	}
}
