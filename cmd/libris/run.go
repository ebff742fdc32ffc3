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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/app"
	"github.com/eugener/libris/internal/auth"
	"github.com/eugener/libris/internal/cache"
	"github.com/eugener/libris/internal/circuitbreaker"
	"github.com/eugener/libris/internal/config"
	"github.com/eugener/libris/internal/external"
	"github.com/eugener/libris/internal/logging"
	"github.com/eugener/libris/internal/ratelimit"
	"github.com/eugener/libris/internal/server"
	"github.com/eugener/libris/internal/storage"
	"github.com/eugener/libris/internal/storage/postgres"
	"github.com/eugener/libris/internal/storage/sqlite"
	"github.com/eugener/libris/internal/telemetry"
	"github.com/eugener/libris/internal/worker"
)

func run(configPath, envPath string) error {
	if err := config.LoadDotEnv(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	slog.Info("starting libris", "version", version, "addr", cfg.Server.Addr,
		"database", cfg.Database.Driver, "cache", cfg.Cache.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracing shutdown", "error", err)
			}
		}()
	}

	// Open database
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	// Bootstrap from config
	if err := config.Bootstrap(ctx, cfg, store); err != nil {
		return err
	}
	if err := ensureAdminKey(ctx, store); err != nil {
		return err
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// List cache
	tagStore, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()
	var cacheOpts []cache.Option
	if metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(metrics))
	}
	listCache := cache.NewTagged(tagStore, cfg.Cache.TTL, cacheOpts...)

	// Workers
	keyUsage := worker.NewKeyUsageRecorder(store)
	resolver := &dnscache.Resolver{}
	limiter := ratelimit.NewRegistry()
	workers := []worker.Worker{
		keyUsage,
		worker.NewDNSRefresher(resolver, cfg.External.DNSRefresh),
		worker.NewLimiterSweeper(limiter, 0, 0),
	}

	// Wire services
	apiKeyAuth, err := auth.NewAPIKeyAuth(store, auth.WithUsageRecorder(keyUsage))
	if err != nil {
		return err
	}
	var jwtAuth *auth.JWTAuth
	if cfg.Auth.JWTSecret != "" {
		jwtAuth, err = auth.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			return err
		}
	}
	authChain := auth.NewChain(apiKeyAuth, jwtAuth)

	var recorder app.MutationRecorder
	var upstream external.Recorder
	if metrics != nil {
		recorder, upstream = metrics, metrics
	}
	catalogSvc := app.NewCatalogService(store, listCache, recorder)
	keys := app.NewKeyManager(store, authChain)
	var breakerOpts []circuitbreaker.Option
	if metrics != nil {
		breakerOpts = append(breakerOpts, circuitbreaker.WithStateHook(func(from, to circuitbreaker.State) {
			metrics.SetCircuitState("github", to)
			slog.Warn("github circuit changed", "from", from.String(), "to", to.String())
		}))
	}
	github, err := external.NewGitHub(external.GitHubOptions{
		BaseURL: cfg.External.GitHubBaseURL,
		Repo:    cfg.External.GitHubRepo,
		Token:   cfg.External.GitHubToken,
		Timeout: cfg.External.Timeout,
		Breaker: circuitbreaker.New(cfg.External.Breaker, breakerOpts...),
	}, resolver, upstream)
	if err != nil {
		return err
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Auth:             authChain,
		Catalog:          catalogSvc,
		Keys:             keys,
		External:         github,
		Limiter:          limiter,
		RateLimits:       cfg.API.RateLimits,
		ReadyCheck:       readyCheck(store, tagStore),
		Metrics:          metrics,
		MetricsHandler:   metricsHandler,
		DefaultVersion:   cfg.API.DefaultVersion,
		DefaultPageLimit: cfg.API.DefaultPageLimit,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.NewRunner(workers...).Run(workerCtx) }()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("libris ready", "addr", cfg.Server.Addr)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		cancelWorkers()
		<-workerDone
		return err
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Stop workers after the server so in-flight key usages are drained.
	cancelWorkers()
	if err := <-workerDone; err != nil {
		slog.Error("worker error", "error", err)
	}

	slog.Info("libris stopped")
	return nil
}

// openStore opens the configured catalog database.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	if cfg.Driver == config.DriverPostgres {
		s, err := postgres.New(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := sqlite.New(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openCache builds the backing store of the list cache and its closer.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.TagStore, func(), error) {
	if cfg.Backend == config.CacheRedis {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}
	mem, err := cache.NewMemory(cfg.MaxSize, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewIndex(mem), func() {}, nil
}

// ensureAdminKey mints an admin key when the store holds none, so a fresh
// install is reachable. The plaintext is printed once to stderr.
func ensureAdminKey(ctx context.Context, store storage.APIKeyStore) error {
	n, err := store.CountKeys(ctx)
	if err != nil || n > 0 {
		return err
	}
	plaintext := catalog.GenerateKey()
	if err := store.CreateKey(ctx, catalog.NewAPIKey(plaintext, "bootstrap-admin", catalog.RoleAdmin, nil)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "generated admin API key (shown once): %s\n", plaintext)
	return nil
}

// readyCheck reports ready when the store and, for shared backends, the
// cache answer a ping.
func readyCheck(store storage.Store, c cache.TagStore) server.ReadyChecker {
	pinger, _ := c.(interface{ Ping(context.Context) error })
	return func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return err
		}
		if pinger != nil {
			return pinger.Ping(ctx)
		}
		return nil
	}
}
