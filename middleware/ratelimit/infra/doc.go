// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Local: contadores em memória do processo, com janela fixa e bloqueio
//   - Redis: contadores distribuídos com consumo atômico via script Lua
//   - ChanPool: semáforo simples usado para limitar fan-out administrativo
//   - RedisStatsStore / MemoryStatsStore: contadores best-effort de decisões
//   - PrometheusMetrics: métricas das decisões
package infra
