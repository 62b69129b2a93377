package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"naming-registry/internal/config"
	"naming-registry/internal/convention"
	httpapi "naming-registry/internal/http"
	"naming-registry/internal/repository"
	"naming-registry/internal/service"
	"naming-registry/internal/store"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg)
	defer logger.Sync()

	// Storage: Postgres when enabled and reachable, in-memory fallback otherwise.
	var repo repository.Store
	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := openPostgres(cfg); err == nil {
			db = d
			repo = repository.NewPostgresStore(db)
			logger.Info("DB enabled for naming-registry")
		} else {
			logger.Warn("DB enabled but connection failed, falling back to in-memory store", zap.Error(err))
		}
	}
	if repo == nil {
		repo = repository.NewMemoryStore()
	}

	// Optional Redis cache for the tree projection.
	var redisClient *redis.Client
	var kv store.KV
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		kv = store.NewRedisKV(redisClient)
	}

	conv := convention.NewStandardConvention()
	partsSvc := service.NewNamePartService(repo, conv, logger)
	devicesSvc := service.NewDeviceService(repo, conv, logger)
	treeSvc := service.NewTreeService(repo, kv, time.Duration(cfg.TreeCacheTTL)*time.Second, logger)

	router := httpapi.NewRouter(logger)
	router.Register(
		httpapi.NewNamePartHandler(partsSvc, treeSvc, logger),
		httpapi.NewDeviceHandler(devicesSvc, treeSvc, logger),
	)

	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zc zap.Config
	if cfg.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func openPostgres(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
