package application

import (
	"admission-gateway/middleware/admission/domain"
)

// Service concentra a regra de admissão: bloqueio por abuso, depois rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um Verdict.
type Service struct {
	Limiter domain.RateLimiter
	Abuse   domain.AbuseTracker
}

// Admit decide uma requisição.
//
// A ordem importa: um bloqueio do AbuseTracker nega antes do RateLimiter,
// mesmo que a janela do cliente tenha acabado de reiniciar.
func (s Service) Admit(req domain.Request) domain.Verdict {
	if s.Abuse != nil {
		if s.Abuse.IsBlocked(req.Client) {
			return domain.Verdict{Outcome: domain.OutcomeDenied}
		}
		if req.Suspicious {
			s.Abuse.Record(req.Client, domain.CategorySuspiciousRequest)
		}
	}

	if s.Limiter == nil {
		return domain.Verdict{Outcome: domain.OutcomeAllowed}
	}

	dec := s.Limiter.Check(req.Client, req.Profile)
	if dec.Allowed {
		return domain.Verdict{Outcome: domain.OutcomeAllowed, Decision: dec}
	}

	// estourar a cota do formulário também conta como atividade suspeita
	if req.Profile == domain.ProfileSensitive && s.Abuse != nil {
		s.Abuse.Record(req.Client, domain.CategoryRateLimitExceeded)
	}
	return domain.Verdict{Outcome: domain.OutcomeThrottled, Decision: dec}
}
