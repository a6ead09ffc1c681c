package domain

import (
	"context"
	"time"
)

// Outcome é o resultado final da admissão de uma requisição.
type Outcome int

const (
	OutcomeAllowed Outcome = iota
	// OutcomeThrottled: negado pelo RateLimiter (429).
	OutcomeThrottled
	// OutcomeDenied: cliente no conjunto de bloqueio do AbuseTracker (403).
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// StatsEvent representa um evento de decisão da admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Client/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Client  ClientID
	Profile Profile
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas da admissão.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// LimiterStats é o snapshot somente-leitura do RateLimiter.
type LimiterStats struct {
	TrackedEntries int        `json:"trackedEntries"`
	BlockedClients int        `json:"blockedClients"`
	BlockedList    []ClientID `json:"blockedList"`
}

// AbuseStats é o snapshot somente-leitura do AbuseTracker.
type AbuseStats struct {
	TrackedRows    int        `json:"trackedRows"`
	BlockedClients int        `json:"blockedClients"`
	BlockedList    []ClientID `json:"blockedList"`
}
