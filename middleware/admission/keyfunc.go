package admission

import (
	"context"
	"net/http"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// KeyFunc resolve o identificador do cliente de uma requisição.
type KeyFunc func(r *http.Request) domain.ClientID

// Headers de proxy, na ordem de preferência.
const (
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderRealIP         = "X-Real-IP"
	HeaderCFConnectingIP = "CF-Connecting-IP"
)

// DefaultKeyFunc usa keyHeader (se informado e presente), senão o primeiro IP do
// X-Forwarded-For, senão X-Real-IP, senão CF-Connecting-IP, senão "unknown".
//
// O gateway roda atrás de proxy/CDN, então RemoteAddr não é usado: seria sempre o proxy.
func DefaultKeyFunc(keyHeader string) KeyFunc {
	return func(r *http.Request) domain.ClientID {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return domain.ClientID(v)
			}
		}

		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return domain.ClientID(ip)
			}
		}
		if v := strings.TrimSpace(r.Header.Get(HeaderRealIP)); v != "" {
			return domain.ClientID(v)
		}
		if v := strings.TrimSpace(r.Header.Get(HeaderCFConnectingIP)); v != "" {
			return domain.ClientID(v)
		}
		return domain.UnknownClient
	}
}

type clientCtxKey struct{}

func withClient(ctx context.Context, id domain.ClientID) context.Context {
	return context.WithValue(ctx, clientCtxKey{}, id)
}

// ClientFromRequest devolve o identificador resolvido pelo Middleware.
// Fora do Middleware, resolve pelos headers de proxy.
func ClientFromRequest(r *http.Request) domain.ClientID {
	if id, ok := r.Context().Value(clientCtxKey{}).(domain.ClientID); ok {
		return id
	}
	return DefaultKeyFunc("")(r)
}
