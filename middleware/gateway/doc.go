// Package gateway fornece os adapters HTTP (net/http) do gateway de classificação.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (sem net/http)
//   - application: casos de uso (cache, admissão, analytics, burst, concorrência)
//   - infra: Redis, golang-lru, x/time/rate, Prometheus
//   - gateway (este pacote): middlewares, extração de cliente/API key,
//     tradução de erros para status/headers e o router do dashboard
//
// Ordem dos middlewares no gateway (de fora para dentro):
//
//  1. BurstMiddleware: token bucket local por cliente (429)
//  2. AdmissionMiddleware: bloqueio → API key → quota → suspeita (403/401/429/400)
//  3. AnalyticsMiddleware: mede latência e registra o resultado do classificador
//  4. CacheMiddleware: respostas de classificação em cache (X-Cache: HIT/MISS)
//  5. ConcurrencyMiddleware: limite de requisições simultâneas no upstream (503)
//
// O binário cmd/gateway monta a cadeia na frente de um reverse proxy.
package gateway
