// Package application contém os casos de uso do gateway, sem conhecer net/http.
//
//   - BurstGuard e ConcurrencyService: proteção local (token bucket e semáforo).
//   - Cache, ComputeOrFetch e Invalidator: cache de dois tiers.
//   - AdmissionService e Inspector: controle de admissão e escalonamento de suspeitas.
//   - Analytics: contadores de requisições e snapshots de leitura.
//
// Os serviços recebem os contratos do pacote domain e aplicam a política de
// falha (fail-open/fail-closed) sobre os erros do Remote Store.
package application
