package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classifier-gateway/middleware/gateway"
	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/infra"
)

func main() {
	// Exemplo: os middlewares direto no webserver do classificador (sem proxy)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisAddr := getenvDefault("REDIS_ADDR", "localhost:6379")
	rdb, err := infra.NewRedisClient(ctx, infra.RedisOptions{Addr: redisAddr})
	if err != nil {
		logger.Error("redis unavailable", "addr", redisAddr, "err", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	metrics := infra.NewPrometheusRecorder()
	cache := application.NewCache(infra.NewLocalCache(500), infra.NewRedisCache(rdb), application.WithCacheMetrics(metrics))
	admission := application.NewAdmissionService(infra.NewRedisAdmissionStore(rdb), application.WithAdmissionMetrics(metrics))
	analytics := application.NewAnalytics(infra.NewRedisAnalyticsStore(rdb), application.WithAnalyticsMetrics(metrics))

	burst := infra.NewBurstStore(5, 10)
	burst.StartJanitor(ctx)
	admission.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "honeypot"})
	})
	mux.HandleFunc("POST /honeypot/interact", handleInteract)

	h := http.Handler(mux)
	h = gateway.ConcurrencyMiddleware(gateway.ConcurrencyOptions{Max: 50})(h)
	h = gateway.CacheMiddleware(gateway.CacheOptions{Cache: cache, Routes: []string{"/honeypot/interact"}})(h)
	h = gateway.AnalyticsMiddleware(gateway.AnalyticsOptions{Analytics: analytics, Security: admission, Metrics: metrics, Async: true})(h)
	h = gateway.AdmissionMiddleware(gateway.AdmissionOptions{Service: admission, AddressFn: gateway.ClientAddressFunc(true)})(h)
	h = gateway.BurstMiddleware(gateway.BurstOptions{
		Store:               burst,
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	root := http.NewServeMux()
	root.Handle("/_gateway/", http.StripPrefix("/_gateway", gateway.NewDashboardRouter(gateway.DashboardOptions{
		Analytics:    analytics,
		Admission:    admission,
		Cache:        cache,
		DashboardTTL: 5 * time.Minute,
		Metrics:      metrics.Handler(),
		Logger:       logger,
	})))
	root.Handle("/", h)

	addr := getenvDefault("LISTEN_ADDR", ":8003")
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr, "redis", redisAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
