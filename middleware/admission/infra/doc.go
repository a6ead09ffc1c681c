// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowLimiter: janela fixa por cliente/classe, com bloqueio temporário
//   - AbuseTracker: contagem de eventos suspeitos e conjunto de bloqueio
//   - ChanPool: semáforo simples para limite de concorrência
//   - StatsStore: memória, Redis (go-redis) e Prometheus
package infra
