package domain

import "time"

// Category é o rótulo de um evento suspeito reportado por handlers/middleware.
type Category string

const (
	CategorySuspiciousRequest   Category = "suspicious_request"
	CategoryRateLimitExceeded   Category = "rate_limit_exceeded"
	CategoryInvalidFormData     Category = "invalid_form_data"
	CategoryHoneypotTriggered   Category = "honeypot_triggered"
	CategorySuspiciousUserAgent Category = "suspicious_user_agent"
	CategorySubmissionError     Category = "submission_error"
)

// AbuseTracker acumula eventos suspeitos por (cliente, categoria) e mantém
// o conjunto de clientes bloqueados.
//
// Diferente do RateLimiter, o bloqueio aqui não expira sozinho (a não ser que
// a política configure um TTL): precisa de Unblock administrativo.
type AbuseTracker interface {
	Record(client ClientID, category Category)
	IsBlocked(client ClientID) bool
}

// AbusePolicy controla quando um cliente entra no conjunto de bloqueio.
type AbusePolicy struct {
	// Threshold: o bloqueio acontece quando a contagem de uma categoria passa
	// estritamente desse valor (o evento Threshold+1 bloqueia).
	Threshold int
	// BlockTTL: 0 significa bloqueio permanente até Unblock.
	BlockTTL time.Duration
}

func DefaultAbusePolicy() AbusePolicy {
	return AbusePolicy{Threshold: 5}
}
