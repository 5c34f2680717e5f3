package domain

import (
	"errors"
	"time"
)

// Taxonomia de erros do gateway.
var (
	// ErrUnauthorized: API key ausente, desconhecida ou ilegível.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited: quota do tier esgotada na janela atual.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden: IP bloqueado.
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest: requisição isolada considerada suspeita.
	ErrBadRequest = errors.New("bad request")

	// ErrStoreUnavailable é falha de infraestrutura. Nunca sai do controle de
	// admissão: é sempre convertida em allow/deny.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformed: registro persistido que não pode ser decodificado.
	ErrMalformed = errors.New("malformed record")

	// ErrNotFound: chave inexistente no Remote Store.
	ErrNotFound = errors.New("not found")
)

// RejectionError é a falha visível ao chamador, com um motivo curto.
type RejectionError struct {
	// Kind é um dos sentinels acima (ErrUnauthorized, ErrRateLimited, ...).
	Kind error
	// Cause é opcional (ex: ErrMalformed por trás de um ErrUnauthorized).
	Cause error

	Reason     string
	RetryAfter time.Duration
}

func (e *RejectionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "rejected"
}

func (e *RejectionError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Reject cria um RejectionError do tipo kind.
func Reject(kind error, reason string) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason}
}

// AsRejection extrai o RejectionError de err, se houver.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
