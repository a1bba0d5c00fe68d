package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tiendapos/backend/internal/access"
	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/config"
	"tiendapos/backend/internal/events"
	"tiendapos/backend/internal/httpapi"
	"tiendapos/backend/internal/logging"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
	"tiendapos/backend/internal/store/seed"
	"tiendapos/backend/internal/store/sqlstore"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}

	permCache := cache.PermissionCache(cache.NoopPermissionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisPermissionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop permission cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			permCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("permission cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("permission cache: noop")
	}

	publisher := events.Publisher(events.NoopPublisher{})
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = kafkaPublisher
		closers = append(closers, kafkaPublisher.Close)
		logger.Info("sale events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		logger.Info("sale events: disabled")
	}

	resolver := access.NewResolver(repo, permCache, time.Duration(cfg.PermissionCacheTTLSeconds)*time.Second, logger)
	svc := service.New(repo, resolver, publisher, logger, service.WithSaleNumberAttempts(cfg.SaleNumberAttempts))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openRepository picks postgres when DATABASE_URL is set, SQLite when
// SQLITE_PATH is set and the seeded in-memory store otherwise. A configured
// database that cannot be reached is fatal; there is no silent fallback.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	var (
		db  *sqlstore.Store
		err error
	)
	switch {
	case cfg.DatabaseURL != "":
		db, err = sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("repository: postgres")
	case cfg.SQLitePath != "":
		db, err = sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("repository: sqlite", zap.String("path", cfg.SQLitePath))
	default:
		logger.Info("repository: in-memory")
		if cfg.SeedData {
			return memory.NewSeeded(), nil, nil
		}
		return memory.New(), nil, nil
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg.SeedData {
		ds, err := seed.Default()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("seed dataset: %w", err)
		}
		seeded, err := db.Seed(ctx, ds)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("seed: %w", err)
		}
		if seeded {
			logger.Info("seeded demo dataset")
			if ds.DefaultPasswords {
				logger.Warn("seed users were created with default passwords; set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD")
			}
		}
	}
	return db, []func() error{db.Close}, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DatabaseURL != "" && cfg.SQLitePath != "" {
		return fmt.Errorf("set only one of DATABASE_URL and SQLITE_PATH")
	}
	return nil
}
