package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"classifier-gateway/middleware/gateway/domain"
)

// envelope é o formato de resposta do dashboard.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data"`
	Format    string    `json:"format,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json response failed", "err", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// statusFor traduz a taxonomia de erros do domínio para status HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeRejection responde a uma recusa da admissão com {detail} e, para 429,
// Retry-After.
func writeRejection(w http.ResponseWriter, err error) {
	status := statusFor(err)
	detail := http.StatusText(status)

	if re, ok := domain.AsRejection(err); ok {
		detail = re.Error()
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", retryAfterSeconds(re.RetryAfter))
		}
	}
	writeError(w, status, detail)
}
