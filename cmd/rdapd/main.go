// Command rdapd serves RDAP lookups over HTTP. main wires configuration,
// storage, delegation data, and the HTTP boundary together and owns the
// process lifecycle; query logic lives in the internal packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rdapd/internal/bootstrap"
	"rdapd/internal/bootstrap/iana"
	"rdapd/internal/cache"
	"rdapd/internal/platform/config"
	"rdapd/internal/platform/httpserver"
	"rdapd/internal/platform/logger"
	"rdapd/internal/platform/metrics"
	"rdapd/internal/platform/middleware"
	platformredis "rdapd/internal/platform/redis"
	"rdapd/internal/qlog"
	"rdapd/internal/resolver"
	resolvermetrics "rdapd/internal/resolver/metrics"
	"rdapd/internal/storage"
	"rdapd/internal/storage/memory"
	"rdapd/internal/storage/postgres"
	"rdapd/internal/storage/seed"
	httptransport "rdapd/internal/transport/http"
)

func main() {
	// .env is optional; absent files fall back to process env.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("rdapd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if cfg.SeedDemo {
		if err := seed.Demo(ctx, backend); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		log.Info("demo data seeded")
	}

	store := bootstrap.NewStore()
	fetcherOpts := []iana.Option{
		iana.WithBaseURL(cfg.BootstrapBaseURL),
		iana.WithInterval(cfg.BootstrapRefresh),
		iana.WithLogger(log),
	}
	if cfg.BootstrapCachePath != "" {
		bootCache, err := iana.OpenCache(cfg.BootstrapCachePath)
		if err != nil {
			log.Warn("bootstrap cache unavailable, refreshes run uncached",
				"path", cfg.BootstrapCachePath, "error", err)
		} else {
			defer bootCache.Close()
			fetcherOpts = append(fetcherOpts, iana.WithCache(bootCache))
		}
	}
	fetcher := iana.New(store, fetcherOpts...)
	go func() {
		// Run logs per-refresh failures itself and only returns when ctx
		// ends.
		_ = fetcher.Run(ctx)
	}()

	publisher, err := buildPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close query log publisher", "error", err)
		}
	}()

	responseCache, cacheCleanup, err := buildCache(cfg)
	if err != nil {
		return err
	}
	defer cacheCleanup()

	res, err := resolver.New(backend, store, resolver.WithMetrics(resolvermetrics.New()))
	if err != nil {
		return fmt.Errorf("build resolver: %w", err)
	}

	handler := httptransport.New(res, responseCache, publisher, log)
	httpMetrics := metrics.New()

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(httpMetrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	handler.Register(r)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("rdapd listening",
			"addr", cfg.Addr,
			"backend", cfg.Backend,
			"cache", cfg.Cache,
			"query_log", cfg.QueryLog,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// openBackend builds and initializes the configured storage backend. The
// choice is fixed for the process lifetime.
func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case "memory":
		backend := memory.New(memory.WithMaxSearch(cfg.MaxSearch))
		if err := backend.Init(ctx); err != nil {
			return nil, fmt.Errorf("init memory backend: %w", err)
		}
		return backend, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("RDAP_POSTGRES_DSN is required for the postgres backend")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		backend := postgres.New(db, postgres.WithMaxSearch(cfg.MaxSearch))
		if err := backend.Init(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("init postgres backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func buildCache(cfg config.Config) (cache.Cache, func(), error) {
	switch cfg.Cache {
	case "off", "":
		return cache.Nop{}, func() {}, nil
	case "memory":
		mem := cache.NewMemory(cache.WithTTL(cfg.CacheTTL))
		return mem, func() { mem.Close() }, nil
	case "redis":
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		c := cache.NewRedis(client.Client, cache.WithRedisTTL(cfg.CacheTTL))
		return c, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache %q", cfg.Cache)
	}
}

func buildPublisher(cfg config.Config, log *slog.Logger) (qlog.Publisher, error) {
	switch cfg.QueryLog {
	case "off", "":
		return qlog.Nop{}, nil
	case "log":
		return qlog.NewPipeline(qlog.NewLogSink(log), qlog.WithPipelineLogger(log)), nil
	case "kafka":
		sink, err := qlog.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, qlog.WithKafkaLogger(log))
		if err != nil {
			return nil, fmt.Errorf("kafka query log: %w", err)
		}
		return qlog.NewPipeline(sink, qlog.WithPipelineLogger(log)), nil
	default:
		return nil, fmt.Errorf("unknown query log publisher %q", cfg.QueryLog)
	}
}
