package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// ClientID identifica o cliente para fins de contagem (normalmente o IP resolvido).
// Não é validado como endereço de rede; é só chave de map.
type ClientID string

// UnknownClient é usado quando nenhum header de proxy traz o IP.
// Todos os clientes nessa situação compartilham o mesmo bucket.
const UnknownClient ClientID = "unknown"

// Profile é a classe de tráfego de uma requisição.
type Profile int

const (
	ProfileGeneral Profile = iota
	ProfileSensitive
)

func (p Profile) String() string {
	switch p {
	case ProfileSensitive:
		return "sensitive"
	case ProfileGeneral:
		return "general"
	default:
		return "unknown"
	}
}

// AllProfiles lista as classes conhecidas, na ordem usada para iterar entradas por cliente.
var AllProfiles = [...]Profile{ProfileGeneral, ProfileSensitive}

// ProfileConfig é a cota estática de uma classe de tráfego.
type ProfileConfig struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
	Message       string
}

// Profiles mapeia cada Profile para sua configuração.
type Profiles struct {
	Sensitive ProfileConfig
	General   ProfileConfig
}

func (p Profiles) For(profile Profile) ProfileConfig {
	if profile == ProfileSensitive {
		return p.Sensitive
	}
	return p.General
}

// DefaultProfiles: formulário (poucas requisições, bloqueio longo) e tráfego geral.
func DefaultProfiles() Profiles {
	return Profiles{
		Sensitive: ProfileConfig{
			Window:        15 * time.Minute,
			MaxRequests:   3,
			BlockDuration: time.Hour,
			Message:       "Too many form submissions. Please try again later.",
		},
		General: ProfileConfig{
			Window:        time.Minute,
			MaxRequests:   30,
			BlockDuration: 5 * time.Minute,
			Message:       "Rate limit exceeded. Please slow down.",
		},
	}
}

// RateLimiter decide se a requisição de um cliente é permitida agora.
//
// A implementação deve ser atômica por cliente: checar e incrementar
// acontecem sob o mesmo lock.
type RateLimiter interface {
	Check(client ClientID, profile Profile) Decision
}

type Decision struct {
	Allowed bool
	// Message é a mensagem legível quando bloqueado.
	Message string
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// RetryAfterSeconds arredonda RetryAfter para cima, em segundos inteiros.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}
