package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/server"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("shard reader failed", "error", err)
		os.Exit(1)
	}
	slog.Info("shard reader stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	readerOpts := shard.Options{MMap: cfg.Reader.MMap, DefaultLimit: cfg.Reader.DefaultLimit}
	reader, err := shard.Open(cfg.Reader.IndexDir, readerOpts)
	if err != nil {
		return fmt.Errorf("opening index %s: %w", cfg.Reader.IndexDir, err)
	}
	st, err := reader.Stats()
	if err != nil {
		reader.Close()
		return err
	}
	slog.Info("index opened",
		"path", st.Path,
		"generation", st.Generation,
		"segments", st.Segments,
		"num_live", st.NumLive,
		"max_doc", st.MaxDoc,
		"terms", st.Terms,
		"mapped_files", st.MappedFiles,
	)
	reload.SetGauges(m, reader)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{})
			queryCache = cache.New(cache.NewRedisStore(redisClient), cfg.Redis.CacheTTL,
				cache.WithMetrics(m), cache.WithBreaker(breaker))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	hooks := []reload.SwapHook{reload.GaugeHook(m)}
	if queryCache != nil {
		hooks = append(hooks, reload.InvalidateHook(queryCache))
	}
	manager := reload.NewManager(reader, readerOpts, hooks...)
	defer manager.Close()

	if cfg.Kafka.ReloadTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.ReloadTopic, manager.HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("reload consumer error", "error", err)
			}
		}()
		slog.Info("reload consumer started", "topic", cfg.Kafka.ReloadTopic, "group", cfg.Kafka.ConsumerGroup)
	}

	checker := health.NewChecker()
	checker.Register("index", health.Required(func(context.Context) error {
		_, err := manager.Current().DocumentCount()
		return err
	}))
	if redisClient != nil {
		checker.Register("redis", health.Optional(redisClient.Ping))
	}

	if cfg.RPC.Enabled {
		rpcServer := rpc.NewServer(cfg.RPC.Timeout)
		server.RegisterRPC(rpcServer, manager, cfg.Reader.MaxResults)
		go func() {
			if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		defer rpcServer.Stop()
	}

	h := server.New(manager, queryCache, m, cfg.Reader.MaxResults,
		server.WithAnalytics(analytics.NewAggregator()))
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m, mux),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)))
	}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer limiter.Close()
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("shard reader listening", "addr", srv.Addr, "rpc", cfg.RPC.Enabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
