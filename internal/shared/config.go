package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv       string
	HTTPAddr     string
	MetricsAddr  string
	SerpBase     string
	SerpRPS      int
	RedisAddr    string
	RedisDB      int
	RedisPass    string
	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
	MaxPages     int
	PageDelay    time.Duration
	Workers      int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:       env("APP_ENV", "prod"),
		HTTPAddr:     env("HTTP_ADDR", ":8080"),
		MetricsAddr:  env("METRICS_ADDR", ":9100"),
		SerpBase:     env("SERPAPI_BASE_URL", "https://serpapi.com"),
		SerpRPS:      atoi("SERPAPI_RPS", 10),
		RedisAddr:    env("REDIS_ADDR", "localhost:6379"),
		RedisDB:      atoi("REDIS_DB", 0),
		RedisPass:    env("REDIS_PASSWORD", ""),
		CacheBackend: env("CACHE_BACKEND", "redis"),
		CacheSize:    atoi("MEMORY_CACHE_SIZE", 1024),
		CacheTTL:     time.Duration(atoi("CACHE_TTL_SECONDS", 604800)) * time.Second,
		MaxPages:     atoi("MAX_PAGES", 20),
		PageDelay:    time.Duration(atoi("PAGE_DELAY_MS", 200)) * time.Millisecond,
		Workers:      atoi("FETCH_WORKERS", 4),
	}
	if c.CacheBackend != "redis" && c.CacheBackend != "memory" {
		log.Warn().Str("backend", c.CacheBackend).Msg("unknown CACHE_BACKEND, falling back to redis")
		c.CacheBackend = "redis"
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
