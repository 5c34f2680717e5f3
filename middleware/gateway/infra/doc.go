// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - BurstStore: token bucket local por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência no upstream
//   - LocalCache: tier local do cache (golang-lru, despejo por ordem de inserção)
//   - RedisCache, RedisAdmissionStore, RedisAnalyticsStore: Remote Store em Redis
//   - PrometheusRecorder: domain.MetricsRecorder sobre client_golang
//
// Os stores Redis aplicam um timeout a cada chamada (WithTimeout) e devolvem os
// erros como estão; a política de fail-open/fail-closed fica na camada application.
package infra
