package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/cache"
	"stationpos/backend/internal/catalog"
	"stationpos/backend/internal/config"
	"stationpos/backend/internal/httpapi"
	"stationpos/backend/internal/logx"
	"stationpos/backend/internal/metrics"
	"stationpos/backend/internal/scheduler"
	"stationpos/backend/internal/service"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/store/memory"
	pgstore "stationpos/backend/internal/store/postgres"
	"stationpos/backend/internal/store/sqlstore"
)

const submitLockTTL = 60 * time.Second

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logx.New(cfg.LogLevel, os.Stdout)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("repository unavailable: %v", err)
	}

	searchCache := cache.SearchCache(cache.NewLocalSearchCache())
	guard := cache.SubmitGuard(cache.NewLocalSubmitGuard())
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, using local cache and submit guard")
			_ = client.Close()
		} else {
			searchCache = cache.NewRedisSearchCache(client)
			guard = cache.NewRedisSubmitGuard(client, submitLockTTL)
			closers = append(closers, client.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: local")
	}

	recorder := metrics.New()
	lookup := catalog.NewLookup(repo, searchCache, cfg.SearchCacheTTL(), logger)
	svc := service.New(repo, lookup, logger, recorder)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		SiteID:        cfg.SiteID,
		Guard:         guard,
		Metrics:       recorder,
		Logger:        logger,
	})

	var jobs *scheduler.Scheduler
	if every := cfg.ReconcileEvery(); every > 0 {
		jobs, err = scheduler.New(svc, every, logger)
		if err != nil {
			logger.Fatalf("scheduler: %v", err)
		}
		jobs.Start()
		logger.WithField("every", every.String()).Info("stock reconciliation scheduled")
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("station POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if jobs != nil {
		jobs.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Error("close error")
		}
	}
	logger.Info("server stopped")
}

// openRepository picks the backend from DATABASE_URL. A configured database
// that cannot be reached is fatal; there is no silent in-memory fallback.
func openRepository(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store.Repository, []func() error, error) {
	switch cfg.Backend() {
	case config.BackendPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, []func() error{pg.Close}, seedIfEmpty(ctx, pg, logger)
	case config.BackendSQLite:
		sq, err := sqlstore.Open(cfg.SQLitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.WithField("path", cfg.SQLitePath()).Info("repository: sqlite")
		return sq, []func() error{sq.Close}, seedIfEmpty(ctx, sq, logger)
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

// seedIfEmpty loads the demo catalogue and the development accounts into a
// fresh database so the terminal is usable on first start.
func seedIfEmpty(ctx context.Context, repo store.Repository, logger logrus.FieldLogger) error {
	articles, err := repo.ListArticles(ctx)
	if err != nil {
		return fmt.Errorf("seed: list articles: %w", err)
	}
	if len(articles) == 0 {
		for _, article := range memory.DemoArticles() {
			if err := repo.PutArticle(ctx, article); err != nil {
				return fmt.Errorf("seed article %s: %w", article.ID, err)
			}
		}
		logger.Warn("empty catalogue, demo articles loaded")
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("seed: list users: %w", err)
	}
	if len(users) == 0 {
		for _, user := range memory.DevUsers() {
			if err := repo.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", user.Username, err)
			}
		}
		logger.Warn("no operator accounts, development users created; change their passwords")
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SiteID == "" {
		return fmt.Errorf("SITE_ID must not be empty")
	}
	return nil
}
