// Package domain define contratos e tipos de domínio do gateway de classificação:
// cache em dois níveis, controle de admissão e agregação de analytics.
//
// Este pacote não depende de net/http, de Redis nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
//
// Namespaces no Remote Store (cada store é dono de um prefixo e nunca toca outro):
//
//	cache:*          CacheEntry
//	rate_limit:*     RateWindow
//	api_key:*        APIKeyRecord
//	blocked_ip:*     bloqueios com TTL
//	suspicious_ip:*  contador de suspeitas por IP
//	security_events  lista limitada de SecurityEvent
//	analytics:*      contadores e séries do agregador
package domain
