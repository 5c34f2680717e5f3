package main

import (
	"context"
	"log/slog"

	"classifier-gateway/config"
	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/infra"

	"github.com/redis/go-redis/v9"
)

// services reúne os componentes que compartilham o mesmo client Redis.
type services struct {
	rdb       *redis.Client
	metrics   *infra.PrometheusRecorder
	cache     *application.Cache
	admission *application.AdmissionService
	analytics *application.Analytics
}

func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	rdb, err := infra.NewRedisClient(ctx, infra.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}

	metrics := infra.NewPrometheusRecorder()

	cache := application.NewCache(
		infra.NewLocalCache(cfg.Cache.LocalCapacity),
		infra.NewRedisCache(rdb, infra.WithCacheTimeout(cfg.Redis.Timeout)),
		application.WithLocalTTL(cfg.Cache.LocalTTL),
		application.WithFallbackTTL(cfg.Cache.DefaultTTL),
		application.WithCacheLogger(logger.With("component", "cache")),
		application.WithCacheMetrics(metrics),
	)

	admission := application.NewAdmissionService(
		infra.NewRedisAdmissionStore(rdb, infra.WithAdmissionTimeout(cfg.Redis.Timeout)),
		application.WithQuotas(cfg.Admission.Quotas),
		application.WithInspector(application.NewInspector(
			application.WithMaxRequestSize(cfg.Admission.MaxRequestSize),
		)),
		application.WithBlockDuration(cfg.Admission.BlockDuration),
		application.WithSuspicion(cfg.Admission.SuspicionThreshold, cfg.Admission.SuspicionTTL),
		application.WithAPIKeyTTL(cfg.Admission.APIKeyTTL),
		application.WithSweepEvery(cfg.Admission.SweepEvery),
		application.WithAdmissionLogger(logger.With("component", "admission")),
		application.WithAdmissionMetrics(metrics),
	)

	analytics := application.NewAnalytics(
		infra.NewRedisAnalyticsStore(rdb, infra.WithAnalyticsTimeout(cfg.Redis.Timeout)),
		application.WithAnalyticsLogger(logger.With("component", "analytics")),
		application.WithAnalyticsMetrics(metrics),
	)

	return &services{
		rdb:       rdb,
		metrics:   metrics,
		cache:     cache,
		admission: admission,
		analytics: analytics,
	}, nil
}

func (s *services) Close() error { return s.rdb.Close() }
