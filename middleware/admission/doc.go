// Package admission fornece adapters HTTP (net/http) para a admissão de requisições:
// rate limit por janela fixa, bloqueio por abuso, limite de concorrência e admin.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allowed/throttled/denied, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa, rastreador de abuso, semáforo, stats)
//   - admission (este pacote): middlewares HTTP + wiring/extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai o identificador do cliente (X-Forwarded-For / X-Real-IP / CF-Connecting-IP)
//  2. Se o cliente está bloqueado por abuso, responde 403 sem consultar o rate limit
//  3. Heurísticas de UA/path registram suspicious_request (não bloqueiam a requisição atual)
//  4. Classifica a rota (sensível ou geral) e consulta o rate limit do perfil
//  5. Se negado, responde 429 com Retry-After; se permitido, chama o próximo handler
//
// Handlers (ex.: o endpoint de submissão) reportam eventos de abuso direto no AbuseTracker.
package admission
