package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/rs/zerolog"
)

func main() {
	// Exemplo: injetando a admissão diretamente no seu webserver (sem proxy)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	limiter := infra.NewWindowLimiter(domain.DefaultProfiles(), infra.WithLimiterLogger(logger))
	abuse := infra.NewAbuseTracker(domain.DefaultAbusePolicy(), infra.WithAbuseLogger(logger))
	stats := infra.NewMemoryStatsStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	limiter.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("POST /api/contact", func(w http.ResponseWriter, r *http.Request) {
		logger.Info().Str("client", string(admission.ClientFromRequest(r))).Msg("contact form received")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.Handle("/api/security-status", admission.AdminHandler(admission.AdminOptions{
		Token:    os.Getenv("ADMIN_TOKEN"),
		Limiter:  limiter,
		Abuse:    abuse,
		Requests: stats,
		Logger:   &logger,
	}))

	h := http.Handler(mux)
	h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{Max: 50})(h)
	h = admission.Middleware(admission.Options{
		Limiter:    limiter,
		Abuse:      abuse,
		Stats:      stats,
		KeyHeader:  "X-Api-Key", // ou vazio para usar só os headers de proxy
		Classify:   admission.RouteClassifier([]admission.Route{{Method: http.MethodPost, Path: "/api/contact"}}),
		Suspicious: admission.DefaultSuspicion("/api/contact", "/api/security-status"),
		Logger:     &logger,
	})(h)
	h = admission.SecurityHeaders(admission.SecurityHeadersOptions{})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
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

	logger.Info().Str("addr", addr).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
