package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quota-gateway/internal/config"
	"quota-gateway/middleware/ratelimit"
	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"
	"quota-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Error("invalid UPSTREAM_URL", slog.Any("error", err))
		os.Exit(1)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.LogAttrs(r.Context(), slog.LevelError, "proxy error",
			append([]slog.Attr{slog.Any("error", err)}, application.LogAttrs(r.Context())...)...)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := infra.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	var (
		backend    domain.Backend
		statsStore domain.StatsStore
	)
	switch cfg.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,

			// REDIS_TIMEOUT chega como deadline do context
			ContextTimeoutEnabled: true,
		})
		defer func() { _ = rdb.Close() }()

		// sem Redis o gateway sobe mesmo assim: as decisões caem em fail-open
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis ping failed, rate limit will fail open until it recovers",
				slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
		}
		pingCancel()

		backend = infra.NewRedis(rdb, infra.WithPrefix(cfg.Redis.Prefix), infra.WithTimeout(cfg.Redis.Timeout))

		if cfg.Stats.Enabled {
			statsStore = infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.Stats.Prefix),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			)
		}
	default:
		local := infra.NewLocal()
		backend = local
		if cfg.Stats.Enabled {
			statsStore = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
		}

		sweeper := cron.New()
		if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
			removed := local.Sweep()
			metrics.ObserveSweep(removed)
			logger.Debug("local rate limit sweep", slog.Int("removed", removed), slog.Int("remaining", local.Len()))
		}); err != nil {
			logger.Error("invalid SWEEP_SCHEDULE", slog.String("schedule", cfg.SweepSchedule), slog.Any("error", err))
			os.Exit(1)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	reg := application.NewRegistry(backend,
		application.WithMetrics(metrics),
		application.WithLogger(logger),
	)

	policy, err := buildPolicy(cfg, reg)
	if err != nil {
		logger.Error("invalid rate limit policy", slog.String("policy", cfg.Policy), slog.Any("error", err))
		os.Exit(1)
	}

	opts := ratelimit.Options{
		Policy:              policy,
		Stats:               statsStore,
		Logger:              logger,
		KeyHeader:           cfg.KeyHeader,
		TrustXForwardedFor:  cfg.TrustXFF,
		TierFn:              tierFromHeader(cfg.TierHeader),
		SizeFn:              sizeFromHeader(cfg.SizeHeader),
		AddRateLimitHeaders: cfg.AddHeaders,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID())

	r.Handle("/metrics", promhttp.Handler())
	adminOpts := ratelimit.AdminOptions{
		Admin: application.NewAdmin(reg, application.WithSlotPool(infra.NewChanPool(cfg.AdminMaxParallel))),
		Guard: rate.NewLimiter(rate.Limit(cfg.AdminRPS), cfg.AdminBurst),
	}
	if sr, ok := statsStore.(domain.StatsReader); ok {
		adminOpts.Stats = sr
	}
	r.Mount(cfg.AdminPrefix, ratelimit.AdminHandler(adminOpts))

	login, err := buildLogin(cfg, reg)
	if err != nil {
		logger.Error("invalid login limiter", slog.Any("error", err))
		os.Exit(1)
	}
	if login != nil {
		loginOpts := opts
		loginOpts.Scope = "login"
		r.Handle(cfg.LoginPath, ratelimit.FailureMiddleware(login, loginOpts)(proxy))
	}
	r.Handle("/*", ratelimit.Middleware(opts)(proxy))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("upstream", target.String()),
		slog.String("backend", cfg.Backend),
		slog.String("policy", cfg.Policy),
		slog.Any("limiters", reg.Names()),
		slog.Bool("trust_xff", cfg.TrustXFF),
		slog.Bool("stats", statsStore != nil),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
