// Command gateway is the Wozif edge gateway: it rewrites subdomain
// requests to path form, resolves the tenant, enforces the access-guard
// chain and proxies allowed traffic to the storefront application.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/nocodeci/wozif-gateway/internal/backend"
	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/config"
	"github.com/nocodeci/wozif-gateway/internal/guard"
	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/metrics"
	"github.com/nocodeci/wozif-gateway/internal/rewrite"
	"github.com/nocodeci/wozif-gateway/internal/session"
	"github.com/nocodeci/wozif-gateway/internal/storage"
	memorystore "github.com/nocodeci/wozif-gateway/internal/storage/memory"
	postgresstore "github.com/nocodeci/wozif-gateway/internal/storage/postgres"
	redisstore "github.com/nocodeci/wozif-gateway/internal/storage/redis"
	"github.com/nocodeci/wozif-gateway/internal/store"
	"github.com/nocodeci/wozif-gateway/internal/tenant"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config/gateway.yaml", "path to the gateway config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("gateway", logging.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON || cfg.IsProduction(),
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("gateway exited")
	}
}

func run(cfg config.Config, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer port.Close()

	api := backend.New(backend.Config{BaseURL: cfg.BackendURL})

	// Shared caches. Hit/miss/eviction counts feed Prometheus.
	users := cache.New[backend.User](
		cache.WithDefaultTTL[backend.User](cfg.Cache.TTL),
		cache.WithCallbacks[backend.User](metrics.CacheHits.Inc, metrics.CacheMisses.Inc, func(string) { metrics.CacheEvictions.Inc() }),
	)
	lists := cache.New[[]store.Store](
		cache.WithDefaultTTL[[]store.Store](cfg.Cache.TTL),
		cache.WithCallbacks[[]store.Store](metrics.CacheHits.Inc, metrics.CacheMisses.Inc, func(string) { metrics.CacheEvictions.Inc() }),
	)
	slugChecks := cache.New[tenant.Availability](
		cache.WithDefaultTTL[tenant.Availability](cfg.Cache.TTL),
	)

	sessions := session.NewManager(api, port, users, log)
	stores := store.NewRegistry(api, port, lists, log)
	sessions.OnDrop(stores.Drop)

	checker := tenant.NewChecker(api, slugChecks, log)
	chain := guard.New(sessions, stores, cfg.ExemptRoutes, log)
	rewriter := rewrite.New(cfg.RootDomain, cfg.SubdomainAliases)

	// Background cache and session sweep for the lifetime of the process.
	sweeper := cron.New()
	schedule := fmt.Sprintf("@every %s", cfg.Cache.SweepInterval)
	if _, err := sweeper.AddFunc(schedule, func() {
		n := users.Cleanup() + lists.Cleanup() + slugChecks.Cleanup()
		n += sessions.Sweep(cfg.Session.IdleTTL)
		if n > 0 {
			log.WithField("evicted", n).Debug("cache sweep")
		}
	}); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(cfg, log, sessions, stores, checker, chain, rewriter, users, lists),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        cfg.ListenAddr,
			"root_domain": cfg.RootDomain,
			"storage":     cfg.Storage.Backend,
		}).Info("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStorage builds the configured storage backend, running migrations
// for postgres.
func openStorage(ctx context.Context, cfg config.Config, log *logging.Logger) (storage.Port, error) {
	switch cfg.Storage.Backend {
	case "memory":
		log.Warn("using in-memory storage; sessions will not survive a restart")
		return memorystore.New(), nil

	case "redis":
		return redisstore.New(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)

	case "postgres":
		m, err := migrate.New("file://"+cfg.Storage.MigrationsDir, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open migrations: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			return nil, srcErr
		}
		if dbErr != nil {
			return nil, dbErr
		}
		return postgresstore.New(ctx, cfg.Storage.PostgresDSN)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
