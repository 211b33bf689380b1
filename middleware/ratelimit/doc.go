// Package ratelimit fornece adapters HTTP (net/http) para o núcleo de cotas.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: motor de consumo, registry, políticas e operações administrativas
//   - infra: implementações concretas (Redis, memória local, métricas, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Extrai a chave do cliente (header de identidade, XFF ou RemoteAddr)
//   2) Chama a política (simples, por plano, progressiva, em lote) para obter a decisão
//   3) Se bloqueado, responde 429 com Retry-After e corpo JSON
//   4) Se permitido ou se o storage falhou (fail-open), chama o próximo handler
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_BACKEND, RATE_POLICY, RATE_POLICY_FILE e REDIS_ADDR.
package ratelimit
