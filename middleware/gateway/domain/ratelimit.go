package domain

// Burst guard local (token bucket em processo) que roda antes do controle de
// admissão. Não substitui a quota por tier: só protege o Remote Store de rajadas.

import "time"

type Key string

// Limiter decide se uma ação é permitida agora, sem I/O.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP do cliente).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
