package domain

// Request é o que a camada de aplicação precisa saber de uma requisição
// para decidir a admissão.
type Request struct {
	Client  ClientID
	Profile Profile
	// Suspicious indica que alguma heurística (UA, path) disparou.
	// Não bloqueia a requisição atual; só acumula no AbuseTracker.
	Suspicious bool
}

type Verdict struct {
	Outcome Outcome
	// Decision vem do RateLimiter; vazio quando Outcome == OutcomeDenied.
	Decision Decision
}

func (v Verdict) Allowed() bool { return v.Outcome == OutcomeAllowed }
