package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/resilience"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve queries over HTTP and reload on index.built events",
	Args:  cobra.NoArgs,
	RunE:  serveCmdRun,
}

func serveCmdRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	exec, err := openExecutor(cfg, m, false)
	if err != nil {
		return err
	}
	defer exec.Close()
	if !exec.Ready() {
		slog.Warn("no index loaded, serving 503 until the next index.built event")
	}

	var (
		redisClient *redis.Client
		queryCache  *cache.QueryCache
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m, cache.WithIndexVersion(exec.IndexVersion))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt, reloadHandler(exec, queryCache))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("index.built consumer stopped", "error", err)
			}
		}()
		slog.Info("watching for index builds", "topic", cfg.Kafka.Topics.IndexBuilt)
	}

	checker := health.NewChecker()
	checker.Register("index", health.FromError(health.StatusDown, func(context.Context) error {
		if !exec.Ready() {
			return errors.New("index not loaded")
		}
		return nil
	}))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.FromError(health.StatusDegraded, redisClient.Ping)(ctx)
	})

	h := handler.New(exec, queryCache, cfg.Search.MaxResults)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes(cfg, h, checker, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "docs", exec.DocCount())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	slog.Info("search service stopped")
	return nil
}

func routes(cfg *config.Config, h *handler.Handler, checker *health.Checker, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.Metrics(m)(chain)
	return chain
}

// reloadHandler swaps in the index announced by an IndexBuilt event and
// drops cached results computed against the old one.
func reloadHandler(exec *executor.Executor, queryCache *cache.QueryCache) kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[kafka.IndexBuilt](value)
		if err != nil {
			return err
		}
		slog.Info("index.built received", "build_id", event.BuildID, "docs", event.Docs, "terms", event.Terms)
		// The files may reach a shared volume after the event does.
		err = resilience.Retry(ctx, "index-reload", resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
			Retryable: func(err error) bool {
				return errors.Is(err, apperrors.ErrMissingIndexFile)
			},
		}, func() error {
			return exec.Load(event.DictionaryPath, event.PostingsPath)
		})
		if err != nil {
			return fmt.Errorf("reloading build %s: %w", event.BuildID, err)
		}
		if queryCache != nil {
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("cache invalidation after reload failed", "error", err)
			}
		}
		return nil
	}
}
