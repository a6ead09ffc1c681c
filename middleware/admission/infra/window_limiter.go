package infra

import (
	"slices"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

const blockedMessage = "IP temporarily blocked due to excessive requests"

// WindowLimiter é o RateLimiter de janela fixa. Os contadores são por cliente e
// classe de tráfego; o bloqueio temporário, ao estourar qualquer cota, vale para
// o cliente em todas as classes.
//
// Toda a lógica roda sob um único mutex: check-then-increment é atômico.
// Bloqueios expiram de forma preguiçosa (avaliados em Check contra o relógio),
// o janitor só libera memória.
type WindowLimiter struct {
	mu           sync.Mutex
	entries      map[windowKey]*windowEntry
	profiles     domain.Profiles
	manualBlock  time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

type windowKey struct {
	client  domain.ClientID
	profile domain.Profile
}

type windowEntry struct {
	count       int
	windowEnd   time.Time
	blocked     bool
	blockExpiry time.Time // só vale quando blocked
}

func (e *windowEntry) activeBlock(now time.Time) bool {
	return e.blocked && now.Before(e.blockExpiry)
}

type LimiterOption func(*WindowLimiter)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) LimiterOption {
	return func(l *WindowLimiter) { l.now = now }
}

// WithManualBlockDuration define a duração usada por ManuallyBlock quando nenhuma é informada.
func WithManualBlockDuration(d time.Duration) LimiterOption {
	return func(l *WindowLimiter) { l.manualBlock = d }
}

func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(l *WindowLimiter) { l.cleanupEvery = d }
}

func WithLimiterLogger(logger zerolog.Logger) LimiterOption {
	return func(l *WindowLimiter) { l.logger = logger }
}

func NewWindowLimiter(profiles domain.Profiles, opts ...LimiterOption) *WindowLimiter {
	l := &WindowLimiter{
		entries:      make(map[windowKey]*windowEntry),
		profiles:     profiles,
		manualBlock:  24 * time.Hour,
		cleanupEvery: 5 * time.Minute,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *WindowLimiter) Profiles() domain.Profiles { return l.profiles }
func (l *WindowLimiter) CleanupEvery() time.Duration { return l.cleanupEvery }

// Check implementa domain.RateLimiter.
func (l *WindowLimiter) Check(client domain.ClientID, profile domain.Profile) domain.Decision {
	cfg := l.profiles.For(profile)
	key := windowKey{client: client, profile: profile}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, blocked := l.blockedUntil(client, now); blocked {
		return domain.Decision{
			Allowed:    false,
			Message:    blockedMessage,
			RetryAfter: expiry.Sub(now),
		}
	}

	ent, ok := l.entries[key]
	if !ok || now.After(ent.windowEnd) {
		l.entries[key] = &windowEntry{count: 1, windowEnd: now.Add(cfg.Window)}
		return domain.Decision{Allowed: true}
	}

	ent.count++
	if ent.count > cfg.MaxRequests {
		ent.blocked = true
		ent.blockExpiry = now.Add(cfg.BlockDuration)
		return domain.Decision{
			Allowed:    false,
			Message:    cfg.Message,
			RetryAfter: cfg.BlockDuration,
		}
	}
	return domain.Decision{Allowed: true}
}

// blockedUntil olha as entradas do cliente em todas as classes: o bloqueio vale
// para o cliente, não só para a classe que estourou. Bloqueios vencidos são
// limpos aqui (único ponto) e zeram o contador da classe. Chamar com l.mu travado.
func (l *WindowLimiter) blockedUntil(client domain.ClientID, now time.Time) (time.Time, bool) {
	var (
		expiry  time.Time
		blocked bool
	)
	for _, p := range domain.AllProfiles {
		ent, ok := l.entries[windowKey{client: client, profile: p}]
		if !ok || !ent.blocked {
			continue
		}
		if ent.activeBlock(now) {
			if !blocked || ent.blockExpiry.After(expiry) {
				expiry = ent.blockExpiry
			}
			blocked = true
			continue
		}
		ent.blocked = false
		ent.blockExpiry = time.Time{}
		ent.count = 0
	}
	return expiry, blocked
}

// ManuallyBlock bloqueia o cliente em todas as classes, ignorando os contadores.
// d <= 0 usa a duração padrão (WithManualBlockDuration).
func (l *WindowLimiter) ManuallyBlock(client domain.ClientID, d time.Duration) {
	if d <= 0 {
		d = l.manualBlock
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, p := range domain.AllProfiles {
		key := windowKey{client: client, profile: p}
		ent, ok := l.entries[key]
		if !ok {
			ent = &windowEntry{windowEnd: now}
			l.entries[key] = ent
		}
		ent.blocked = true
		ent.blockExpiry = now.Add(d)
	}
}

// Unblock limpa o bloqueio, mas mantém contador e janela: o cliente não ganha
// uma janela nova por ter sido desbloqueado.
func (l *WindowLimiter) Unblock(client domain.ClientID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range domain.AllProfiles {
		if ent, ok := l.entries[windowKey{client: client, profile: p}]; ok {
			ent.blocked = false
			ent.blockExpiry = time.Time{}
		}
	}
}

// Cleanup remove entradas com janela vencida e sem bloqueio ativo.
// Retorna quantas foram removidas.
func (l *WindowLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, ent := range l.entries {
		if now.After(ent.windowEnd) && !ent.activeBlock(now) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Stats não altera estado: bloqueios vencidos só não são contados.
func (l *WindowLimiter) Stats() domain.LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	seen := make(map[domain.ClientID]struct{})
	blocked := make([]domain.ClientID, 0)
	for k, ent := range l.entries {
		if !ent.activeBlock(now) {
			continue
		}
		if _, dup := seen[k.client]; dup {
			continue
		}
		seen[k.client] = struct{}{}
		blocked = append(blocked, k.client)
	}
	slices.Sort(blocked)

	return domain.LimiterStats{
		TrackedEntries: len(l.entries),
		BlockedClients: len(blocked),
		BlockedList:    blocked,
	}
}

// StartJanitor inicia uma goroutine que limpa entradas vencidas periodicamente.
// Pare cancelando o contexto.
func (l *WindowLimiter) StartJanitor(ctx DoneContext) {
	if l.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.Cleanup(); n > 0 {
					l.logger.Debug().Int("removed", n).Msg("rate limiter cleanup")
				}
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
