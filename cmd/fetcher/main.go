// Command fetcher runs the review pipeline once from the command line:
// useful for smoke-testing an API key, inspecting what a request would
// return, and pre-seeding the cache before traffic arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	memcache "serp_reviews/internal/adapters/memory"
	"serp_reviews/internal/adapters/observability"
	redisad "serp_reviews/internal/adapters/redis"
	"serp_reviews/internal/adapters/serpapi"
	"serp_reviews/internal/app"
	"serp_reviews/internal/domain"
	"serp_reviews/internal/shared"
)

// noopCache keeps dry runs away from the shared store: every read misses
// and writes vanish.
type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (noopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopCache) Ping(context.Context) error                               { return nil }

func main() {
	var (
		place    = flag.String("place", "", "comma-separated place ids (required)")
		key      = flag.String("key", os.Getenv("SERPAPI_KEY"), "upstream api key (default $SERPAPI_KEY)")
		all      = flag.Bool("all", false, "walk every page, not just the first")
		sortBy   = flag.String("sort", domain.SortNewest, "sort mode: newestFirst|highestRating|lowestRating")
		hl       = flag.String("hl", domain.DefaultLanguage, "language code")
		rating   = flag.String("rating", "", "comma-separated rating filter, e.g. 4,5")
		withText = flag.Bool("with-text", false, "drop reviews without snippet text")
		limit    = flag.Int("limit", 0, "truncate the aggregate, 0 = no limit")
		token    = flag.String("token", "", "continuation token for the first page")
		seed     = flag.Bool("seed-cache", false, "store the aggregate in the configured cache backend")
		timeout  = flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	)
	flag.Parse()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	if *place == "" {
		log.Fatal().Msg("-place is required")
	}
	if *key == "" {
		log.Fatal().Msg("-key or SERPAPI_KEY is required")
	}

	// mirror an HTTP caller: only explicitly set flags appear in the raw
	// parameter bag, so the derived cache key matches a request passing
	// exactly the same parameters
	raw := url.Values{}
	raw.Set("api_key", *key)
	raw.Set("place_id", *place)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "all":
			raw.Set("fetch_all", "true")
		case "sort":
			raw.Set("sort_by", *sortBy)
		case "hl":
			raw.Set("hl", *hl)
		case "rating":
			raw.Set("rating", *rating)
		case "with-text":
			raw.Set("only_with_reviews", "true")
		case "limit":
			raw.Set("limit", fmt.Sprintf("%d", *limit))
		case "token":
			raw.Set("next_page_token", *token)
		}
	})

	var cache domain.Cache = noopCache{}
	if *seed {
		if cfg.CacheBackend == "memory" {
			// an in-process cache dies with this process; warn, still run
			log.Warn().Msg("seeding a memory cache only lasts for this run")
			cache = memcache.New(cfg.CacheSize)
		} else {
			rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
			if err := rc.Ping(context.Background()); err != nil {
				log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
			}
			cache = rc
		}
	}

	client := serpapi.New(cfg.SerpBase, cfg.SerpRPS)
	pag := app.NewPaginator(client, cfg.MaxPages, cfg.PageDelay, log.Logger)
	svc := app.NewReviewService(app.NewOrchestrator(pag, cfg.Workers), cache, cfg.CacheTTL, log.Logger)

	q := domain.ReviewQuery{
		APIKey:       *key,
		PlaceIDs:     splitPlaces(*place),
		FetchAll:     *all,
		SortMode:     *sortBy,
		Language:     *hl,
		RatingFilter: *rating,
		OnlyWithText: *withText,
		Limit:        *limit,
		PageToken:    *token,
		Raw:          raw,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	out, err := svc.GetReviews(ctx, q)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch failed")
	}
	if out.CacheServed {
		log.Info().Msg("result served from cache fallback")
	}
	if *seed {
		svc.Flush()
		log.Info().Str("key", app.CacheKey(raw)).Msg("cache seeded")
	}
	log.Info().Dur("took", time.Since(start)).Int("bytes", len(out.Body)).Msg("fetch done")

	fmt.Println(string(out.Body))
}

func splitPlaces(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
