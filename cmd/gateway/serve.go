package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"classifier-gateway/config"
	"classifier-gateway/middleware/gateway"
	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/infra"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// adminPrefix é onde o dashboard fica quando não há listener próprio.
const adminPrefix = "/_gateway"

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway in front of the classifier upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream_url: %w", err)
	}

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", "path", r.URL.Path, "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"bad gateway"}`))
	}

	addr := gateway.ClientAddressFunc(cfg.TrustXFF)

	h := http.Handler(proxy)
	h = gateway.ConcurrencyMiddleware(gateway.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.AcquireTimeout,
		Metrics:        svc.metrics,
	})(h)
	if cfg.Cache.Enabled {
		h = gateway.CacheMiddleware(gateway.CacheOptions{
			Cache:     svc.cache,
			Namespace: cfg.Cache.Namespace,
			Routes:    cfg.Cache.Routes,
			Logger:    logger,
		})(h)
	}
	if cfg.Analytics.Enabled {
		h = gateway.AnalyticsMiddleware(gateway.AnalyticsOptions{
			Analytics: svc.analytics,
			Security:  svc.admission,
			Metrics:   svc.metrics,
			Async:     cfg.Analytics.Async,
			AddressFn: addr,
			Logger:    logger,
		})(h)
	}
	if cfg.Admission.Enabled {
		h = gateway.AdmissionMiddleware(gateway.AdmissionOptions{
			Service:       svc.admission,
			AddressFn:     addr,
			RequireAPIKey: cfg.Admission.RequireAPIKey,
			Logger:        logger,
		})(h)
		svc.admission.StartJanitor(ctx)
	}
	if cfg.Burst.Enabled {
		burst := infra.NewBurstStore(cfg.Burst.RPS, cfg.Burst.Burst)
		burst.StartJanitor(ctx)
		h = gateway.BurstMiddleware(gateway.BurstOptions{
			Store:               burst,
			Metrics:             svc.metrics,
			KeyFn:               addr,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.Burst.RetryAfter,
			AddRateLimitHeaders: cfg.Burst.AddHeaders,
		})(h)
	}

	// o dashboard em cache fica velho quando as classificações são limpas
	inv := application.NewInvalidator(svc.cache)
	inv.AddDependency(cfg.Cache.Namespace, "analytics")

	dashboard := gateway.NewDashboardRouter(gateway.DashboardOptions{
		Analytics:    svc.analytics,
		Admission:    svc.admission,
		Cache:        svc.cache,
		Invalidator:  inv,
		DashboardTTL: cfg.Cache.DashboardTTL,
		AdminTier:    cfg.Admission.AdminTier,
		Metrics:      svc.metrics.Handler(),
		Logger:       logger,
	})

	servers := []*http.Server{}
	if cfg.AdminListen != "" {
		servers = append(servers, newServer(cfg.Listen, h), newServer(cfg.AdminListen, dashboard))
	} else {
		mux := http.NewServeMux()
		mux.Handle(adminPrefix+"/", http.StripPrefix(adminPrefix, dashboard))
		mux.Handle("/", h)
		servers = append(servers, newServer(cfg.Listen, mux))
	}

	logger.Info("gateway listening", "addr", cfg.Listen, "upstream", target.String(), "admin", cfg.AdminListen)
	logger.Info("burst", "enabled", cfg.Burst.Enabled, "rps", cfg.Burst.RPS, "burst", cfg.Burst.Burst, "trust_xff", cfg.TrustXFF)
	logger.Info("admission", "enabled", cfg.Admission.Enabled, "require_api_key", cfg.Admission.RequireAPIKey)
	logger.Info("cache", "enabled", cfg.Cache.Enabled, "namespace", cfg.Cache.Namespace, "routes", cfg.Cache.Routes)
	logger.Info("concurrency", "max", cfg.Concurrency.Max, "acquire_timeout", cfg.Concurrency.AcquireTimeout)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("gateway stopped")
	return err
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
