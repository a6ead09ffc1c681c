package admission

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// AdminLimiter é o que o admin precisa do rate limiter.
type AdminLimiter interface {
	ManuallyBlock(client domain.ClientID, d time.Duration)
	Unblock(client domain.ClientID)
	Cleanup() int
	Stats() domain.LimiterStats
}

// AdminAbuse é o que o admin precisa do rastreador de abuso.
type AdminAbuse interface {
	Unblock(client domain.ClientID)
	Stats() domain.AbuseStats
}

type AdminOptions struct {
	// Token é comparado com "Authorization: Bearer <token>". Vazio recusa tudo.
	Token   string
	Limiter AdminLimiter
	Abuse   AdminAbuse
	// Requests e Pool são opcionais e só enriquecem o snapshot.
	Requests *infra.MemoryStatsStore
	Pool     domain.SlotPool

	Logger *zerolog.Logger
	Now    func() time.Time
}

type adminSnapshot struct {
	Timestamp    string              `json:"timestamp"`
	RateLimiter  domain.LimiterStats `json:"rateLimiter"`
	AbuseTracker domain.AbuseStats   `json:"abuseTracker"`
	Requests     *infra.Counters     `json:"requests,omitempty"`
	InFlight     *int                `json:"inFlight,omitempty"`
	Status       string              `json:"status"`
}

type adminAction struct {
	Action   string `json:"action"`
	IP       string `json:"ip"`
	Duration string `json:"duration"`
}

type adminResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Removed   *int   `json:"removed,omitempty"`
	Timestamp string `json:"timestamp"`
}

// AdminHandler expõe o snapshot (GET) e as ações administrativas (POST):
//
//	{"action": "unblock", "ip": "1.2.3.4"}              -> limiter + abuse
//	{"action": "block", "ip": "1.2.3.4", "duration": "2h"} -> limiter (duração padrão se vazio)
//	{"action": "cleanup"}                               -> limiter
func AdminHandler(opts AdminOptions) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	token := []byte(opts.Token)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
		if len(token) == 0 || subtle.ConstantTimeCompare([]byte(presented), token) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Invalid token"})
			return
		}

		ts := opts.Now().UTC().Format(time.RFC3339)

		switch r.Method {
		case http.MethodGet:
			snap := adminSnapshot{
				Timestamp:    ts,
				RateLimiter:  opts.Limiter.Stats(),
				AbuseTracker: opts.Abuse.Stats(),
				Status:       "operational",
			}
			if opts.Requests != nil {
				total := opts.Requests.Total()
				snap.Requests = &total
			}
			if opts.Pool != nil {
				n := opts.Pool.InFlight()
				snap.InFlight = &n
			}
			writeJSON(w, http.StatusOK, snap)

		case http.MethodPost:
			var act adminAction
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&act); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
				return
			}
			client := domain.ClientID(strings.TrimSpace(act.IP))

			switch {
			case act.Action == "unblock" && client != "":
				opts.Limiter.Unblock(client)
				opts.Abuse.Unblock(client)
				logger.Info().Str("client", string(client)).Msg("admin unblock")
				writeJSON(w, http.StatusOK, adminResult{Success: true, Message: "IP " + string(client) + " has been unblocked", Timestamp: ts})

			case act.Action == "block" && client != "":
				var d time.Duration
				if act.Duration != "" {
					parsed, err := time.ParseDuration(act.Duration)
					if err != nil || parsed <= 0 {
						writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid duration"})
						return
					}
					d = parsed
				}
				opts.Limiter.ManuallyBlock(client, d)
				logger.Info().Str("client", string(client)).Dur("duration", d).Msg("admin block")
				writeJSON(w, http.StatusOK, adminResult{Success: true, Message: "IP " + string(client) + " has been blocked", Timestamp: ts})

			case act.Action == "cleanup":
				n := opts.Limiter.Cleanup()
				logger.Info().Int("removed", n).Msg("admin cleanup")
				writeJSON(w, http.StatusOK, adminResult{Success: true, Message: "Cleanup completed", Removed: &n, Timestamp: ts})

			default:
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid action"})
			}

		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		}
	})
}
