package infra

import (
	"context"
	"maps"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

type Counters struct {
	Allowed   int64 `json:"allowed"`
	Throttled int64 `json:"throttled"`
	Denied    int64 `json:"denied"`
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeAllowed:
		c.Allowed++
	case domain.OutcomeThrottled:
		c.Throttled++
	case domain.OutcomeDenied:
		c.Denied++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// É o backend padrão do gateway e aparece no snapshot do admin.
//
// Não faz expiração; byKey só é preenchido com WithTrackKeys(true).
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	byProfile map[string]Counters
	byRoute   map[string]Counters
	byKey     map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byProfile: make(map[string]Counters),
		byRoute:   make(map[string]Counters),
		byKey:     make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	bump(s.byProfile, ev.Profile.String(), ev.Outcome)
	bump(s.byRoute, route, ev.Outcome)
	if s.trackKeys {
		bump(s.byKey, string(ev.Client), ev.Outcome)
	}
	return nil
}

func bump(m map[string]Counters, k string, o domain.Outcome) {
	c := m[k]
	c.add(o)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByProfile() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byProfile)
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}
