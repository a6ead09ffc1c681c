package admission

import (
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

type Options struct {
	Limiter domain.RateLimiter
	Abuse   domain.AbuseTracker
	Stats   domain.StatsStore

	KeyFn     KeyFunc
	KeyHeader string
	// Classify escolhe o perfil; nil trata tudo como tráfego geral.
	Classify ClassifyFunc
	// Suspicious é opcional; quando dispara, registra suspicious_request.
	Suspicious SuspicionFunc

	// DeniedStatus é o status para clientes bloqueados por abuso (padrão 403).
	DeniedStatus int
	// ThrottledStatus é o status para rate limit (padrão 429).
	ThrottledStatus int

	Logger *zerolog.Logger
}

const (
	HeaderRetryAfter       = "Retry-After"
	HeaderRateLimitBlocked = "X-RateLimit-Blocked"
)

// Middleware aplica a admissão: abuso (403) -> heurísticas -> rate limit por perfil (429).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.DeniedStatus == 0 {
		opts.DeniedStatus = http.StatusForbidden
	}
	if opts.ThrottledStatus == 0 {
		opts.ThrottledStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader)
	}
	if opts.Classify == nil {
		opts.Classify = func(*http.Request) domain.Profile { return domain.ProfileGeneral }
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	svc := application.Service{
		Limiter: opts.Limiter,
		Abuse:   opts.Abuse,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := opts.KeyFn(r)
			req := domain.Request{
				Client:     client,
				Profile:    opts.Classify(r),
				Suspicious: opts.Suspicious != nil && opts.Suspicious(r),
			}

			v := svc.Admit(req)
			if req.Suspicious && v.Outcome != domain.OutcomeDenied {
				logger.Warn().
					Str("client", string(client)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("user_agent", r.UserAgent()).
					Msg("suspicious request")
			}

			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Client:  client,
					Profile: req.Profile,
					Outcome: v.Outcome,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
				if err != nil {
					logger.Warn().Err(err).Msg("admission stats record failed")
				}
			}

			switch v.Outcome {
			case domain.OutcomeDenied:
				http.Error(w, "Access denied", opts.DeniedStatus)
				return
			case domain.OutcomeThrottled:
				secs := v.Decision.RetryAfterSeconds()
				logger.Info().
					Str("client", string(client)).
					Stringer("profile", req.Profile).
					Int("retry_after", secs).
					Msg("request throttled")
				w.Header().Set(HeaderRetryAfter, retryAfterHeader(secs))
				w.Header().Set(HeaderRateLimitBlocked, "true")
				writeJSON(w, opts.ThrottledStatus, throttledBody{Error: v.Decision.Message, RetryAfter: secs})
				return
			}

			next.ServeHTTP(w, r.WithContext(withClient(r.Context(), client)))
		})
	}
}
