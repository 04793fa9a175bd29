package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "serp_reviews/internal/adapters/http_server"
	memcache "serp_reviews/internal/adapters/memory"
	"serp_reviews/internal/adapters/observability"
	redisad "serp_reviews/internal/adapters/redis"
	"serp_reviews/internal/adapters/serpapi"
	"serp_reviews/internal/app"
	"serp_reviews/internal/domain"
	"serp_reviews/internal/shared"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// cache backend
	var cache domain.Cache
	if cfg.CacheBackend == "memory" {
		cache = memcache.New(cfg.CacheSize)
		log.Info().Int("size", cfg.CacheSize).Msg("using in-memory cache")
	} else {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(context.Background()); err != nil {
			// not fatal: live fetches work without redis, only fallback suffers
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis connection ok")
		}
		cache = rc
	}

	// deps
	client := serpapi.New(cfg.SerpBase, cfg.SerpRPS)
	pag := app.NewPaginator(client, cfg.MaxPages, cfg.PageDelay, log.Logger)
	orch := app.NewOrchestrator(pag, cfg.Workers)
	svc := app.NewReviewService(orch, cache, cfg.CacheTTL, log.Logger)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Svc: svc})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	// let pending write-behind cache stores land before exit
	svc.Flush()
}
