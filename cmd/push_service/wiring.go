package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/config"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/repository"
	"github.com/CyberwizD/fcm-push-dispatcher/internal/services"
	"github.com/CyberwizD/fcm-push-dispatcher/pkg/logger"
	"github.com/CyberwizD/fcm-push-dispatcher/pkg/metrics"
)

// runtime holds everything built once at process start.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tokens    *repository.DeviceTokenStore
	redis     *repository.RedisRepository
	processor *services.PushProcessor
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat)
	logr.Info("starting push service", slog.String("app", cfg.AppName))

	credential, err := services.ParseCredential([]byte(cfg.ServiceAccountJSON))
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	tokens := repository.NewDeviceTokenStore(db, cfg.DeviceTokenTable)
	if err := tokens.Migrate(); err != nil {
		logr.Warn("device token migration failed", slog.Any("error", err))
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logr,
		metrics: metrics.New(),
		tokens:  tokens,
	}

	var cache services.SuppressionCache
	if cfg.RedisURL != "" {
		rt.redis = repository.NewRedisRepository(redis.NewClient(&redis.Options{Addr: cfg.RedisURL}), cfg.SuppressionTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.redis.Ping(ctx); err != nil {
			logr.Warn("redis unavailable, token suppression disabled", slog.Any("error", err))
			_ = rt.redis.Close()
			rt.redis = nil
		} else {
			cache = rt.redis
		}
	}

	exchanger := services.NewTokenExchanger(&http.Client{Timeout: cfg.ProviderTimeout}, time.Now)
	provider := services.NewFCMProvider(cfg.FCMEndpoint, cfg.ProviderTimeout, logr)
	dispatcher := services.NewDispatcher(provider, logr)

	rt.processor = services.NewPushProcessor(
		credential,
		tokens,
		services.NewAssertionBuilder(),
		exchanger,
		dispatcher,
		cache,
		rt.metrics,
		logr,
	).WithSuppressionTTL(cfg.SuppressionTTL)

	return rt, nil
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}
