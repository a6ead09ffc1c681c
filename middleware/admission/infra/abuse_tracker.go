package infra

import (
	"slices"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

// AbuseTracker conta eventos suspeitos por (cliente, categoria) e bloqueia o cliente
// quando alguma categoria passa do limiar.
//
// Contagens são monotônicas: só Unblock (ou o TTL da política, se houver) zera.
type AbuseTracker struct {
	mu      sync.Mutex
	counts  map[domain.ClientID]map[domain.Category]int
	blocked map[domain.ClientID]time.Time // valor: instante do bloqueio
	policy  domain.AbusePolicy
	now     func() time.Time
	logger  zerolog.Logger
}

type AbuseOption func(*AbuseTracker)

func WithAbuseClock(now func() time.Time) AbuseOption {
	return func(t *AbuseTracker) { t.now = now }
}

func WithAbuseLogger(logger zerolog.Logger) AbuseOption {
	return func(t *AbuseTracker) { t.logger = logger }
}

func NewAbuseTracker(policy domain.AbusePolicy, opts ...AbuseOption) *AbuseTracker {
	if policy.Threshold <= 0 {
		policy.Threshold = domain.DefaultAbusePolicy().Threshold
	}
	t := &AbuseTracker{
		counts:  make(map[domain.ClientID]map[domain.Category]int),
		blocked: make(map[domain.ClientID]time.Time),
		policy:  policy,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *AbuseTracker) Policy() domain.AbusePolicy { return t.policy }

// Record implementa domain.AbuseTracker.
func (t *AbuseTracker) Record(client domain.ClientID, category domain.Category) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.expireLocked(client, now)

	cats := t.counts[client]
	if cats == nil {
		cats = make(map[domain.Category]int)
		t.counts[client] = cats
	}
	cats[category]++

	if cats[category] <= t.policy.Threshold {
		return
	}
	if _, already := t.blocked[client]; already {
		return
	}
	t.blocked[client] = now
	t.logger.Warn().
		Str("client", string(client)).
		Str("category", string(category)).
		Int("count", cats[category]).
		Msg("client blocked for suspicious activity")
}

func (t *AbuseTracker) IsBlocked(client domain.ClientID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(client, t.now())
	_, ok := t.blocked[client]
	return ok
}

// Unblock tira o cliente do conjunto de bloqueio e apaga todas as suas contagens.
func (t *AbuseTracker) Unblock(client domain.ClientID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.blocked, client)
	delete(t.counts, client)
}

// Count retorna a contagem atual de uma categoria para o cliente.
func (t *AbuseTracker) Count(client domain.ClientID, category domain.Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[client][category]
}

func (t *AbuseTracker) Stats() domain.AbuseStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	// não altera estado: cliente com bloqueio vencido conta como já desbloqueado
	now := t.now()
	blocked := make([]domain.ClientID, 0, len(t.blocked))
	for client, at := range t.blocked {
		if t.lapsed(at, now) {
			continue
		}
		blocked = append(blocked, client)
	}
	slices.Sort(blocked)

	rows := 0
	for client, cats := range t.counts {
		if at, ok := t.blocked[client]; ok && t.lapsed(at, now) {
			continue
		}
		rows += len(cats)
	}

	return domain.AbuseStats{
		TrackedRows:    rows,
		BlockedClients: len(blocked),
		BlockedList:    blocked,
	}
}

func (t *AbuseTracker) lapsed(blockedAt, now time.Time) bool {
	return t.policy.BlockTTL > 0 && !now.Before(blockedAt.Add(t.policy.BlockTTL))
}

// expireLocked aplica o TTL da política: bloqueio vencido equivale a um Unblock.
func (t *AbuseTracker) expireLocked(client domain.ClientID, now time.Time) {
	at, ok := t.blocked[client]
	if !ok || !t.lapsed(at, now) {
		return
	}
	delete(t.blocked, client)
	delete(t.counts, client)
}
