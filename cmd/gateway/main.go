package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
	"admission-gateway/submission"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Fatal().Err(err).Msg("load .env")
	}

	cfg, err := readConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("config error")
	}
	logger := newLogger(cfg.logLevel, cfg.logFormat)

	limiter := infra.NewWindowLimiter(cfg.profiles,
		infra.WithManualBlockDuration(cfg.manualBlock),
		infra.WithCleanupEvery(cfg.cleanupEvery),
		infra.WithLimiterLogger(logger.With().Str("component", "ratelimit").Logger()),
	)
	abuse := infra.NewAbuseTracker(cfg.abusePolicy,
		infra.WithAbuseLogger(logger.With().Str("component", "abuse").Logger()),
	)

	var (
		stores   infra.MultiStatsStore
		requests *infra.MemoryStatsStore
	)
	switch cfg.statsBackend {
	case statsMemory:
		requests = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys))
		stores = append(stores, requests)
	case statsRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.statsRedisAddr).Msg("redis stats ping error")
		}

		stores = append(stores, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		))
	}

	var reg *prometheus.Registry
	if cfg.metricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := infra.NewPrometheusStatsStore(reg)
		if err != nil {
			logger.Fatal().Err(err).Msg("metrics setup")
		}
		if err := infra.RegisterStateGauges(reg, limiter, abuse); err != nil {
			logger.Fatal().Err(err).Msg("metrics setup")
		}
		stores = append(stores, prom)
	}

	var stats domain.StatsStore
	switch len(stores) {
	case 0:
	case 1:
		stats = stores[0]
	default:
		stats = stores
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	limiter.StartJanitor(ctx)

	pool := infra.NewChanPool(cfg.concurrencyMax)
	if cfg.concurrencyMax == 0 {
		pool = nil
	}

	app := http.NewServeMux()
	app.Handle(cfg.adminPath, admission.AdminHandler(admission.AdminOptions{
		Token:    cfg.adminToken,
		Limiter:  limiter,
		Abuse:    abuse,
		Requests: requests,
		Pool:     pool,
		Logger:   ptr(logger.With().Str("component", "admin").Logger()),
	}))
	app.Handle(cfg.submitPath, submission.NewHandler(submission.HandlerOptions{
		Relay:  newRelay(cfg, logger),
		Abuse:  abuse,
		Logger: ptr(logger.With().Str("component", "submission").Logger()),
	}))
	app.Handle("/", upstreamHandler(cfg.upstreamURL, logger))

	exempt := []string{cfg.adminPath, cfg.submitPath}
	for _, rt := range cfg.sensitiveRoutes {
		exempt = append(exempt, rt.Path)
	}

	h := http.Handler(app)
	if pool != nil {
		h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
			Pool:           pool,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.concurrencyTimeout,
		})(h)
	}
	h = admission.Middleware(admission.Options{
		Limiter:    limiter,
		Abuse:      abuse,
		Stats:      stats,
		KeyHeader:  cfg.keyHeader,
		Classify:   admission.RouteClassifier(cfg.sensitiveRoutes),
		Suspicious: admission.DefaultSuspicion(exempt...),
		Logger:     ptr(logger.With().Str("component", "admission").Logger()),
	})(h)
	if cfg.secHeaders {
		h = admission.SecurityHeaders(admission.SecurityHeadersOptions{})(h)
	}

	root := http.NewServeMux()
	if reg != nil {
		root.Handle(cfg.metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	root.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           root,
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

	logger.Info().
		Str("addr", cfg.listenAddr).
		Str("upstream", cfg.upstreamURL).
		Msg("gateway listening")
	logger.Info().
		Dur("sensitive_window", cfg.profiles.Sensitive.Window).
		Int("sensitive_max", cfg.profiles.Sensitive.MaxRequests).
		Dur("general_window", cfg.profiles.General.Window).
		Int("general_max", cfg.profiles.General.MaxRequests).
		Int("abuse_threshold", cfg.abusePolicy.Threshold).
		Msg("admission profiles")
	logger.Info().
		Str("stats", cfg.statsBackend).
		Bool("metrics", cfg.metricsEnabled).
		Int("concurrency_max", cfg.concurrencyMax).
		Bool("admin_enabled", cfg.adminToken != "").
		Msg("gateway features")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "admission-gateway").Logger()
}

func newRelay(cfg config, logger zerolog.Logger) submission.Relay {
	if cfg.relayURL == "" {
		logger.Warn().Msg("RELAY_URL not set, submissions will fail with CONFIG_ERROR")
		return nil
	}
	relay, err := submission.NewHTTPRelay(cfg.relayURL,
		submission.WithRelayTimeout(cfg.relayTimeout),
		submission.WithRelayRate(cfg.relayRPS, cfg.relayBurst),
		submission.WithRelayUserAgent(cfg.relayUA),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid RELAY_URL")
	}
	return relay
}

func upstreamHandler(rawURL string, logger zerolog.Logger) http.Handler {
	if rawURL == "" {
		return http.NotFoundHandler()
	}

	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		logger.Fatal().Err(err).Str("url", rawURL).Msg("invalid UPSTREAM_URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}

func ptr[T any](v T) *T { return &v }
