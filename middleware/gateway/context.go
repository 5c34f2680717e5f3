package gateway

import (
	"context"

	"classifier-gateway/middleware/gateway/domain"
)

type ctxKey int

const (
	admissionKey ctxKey = iota
	metaKey
)

func withAdmission(ctx context.Context, a domain.Admission, meta domain.RequestMeta) context.Context {
	ctx = context.WithValue(ctx, admissionKey, a)
	return context.WithValue(ctx, metaKey, meta)
}

// AdmissionFrom retorna o resultado da admissão gravado pelo AdmissionMiddleware.
func AdmissionFrom(ctx context.Context) (domain.Admission, bool) {
	a, ok := ctx.Value(admissionKey).(domain.Admission)
	return a, ok
}

// RequestMetaFromContext retorna o RequestMeta já extraído pelo AdmissionMiddleware.
func RequestMetaFromContext(ctx context.Context) (domain.RequestMeta, bool) {
	m, ok := ctx.Value(metaKey).(domain.RequestMeta)
	return m, ok
}
