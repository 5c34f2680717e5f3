package gateway

import (
	"log/slog"
	"net/http"

	"classifier-gateway/middleware/gateway/application"
)

type AdmissionOptions struct {
	Service *application.AdmissionService
	// AddressFn extrai o endereço do cliente (default: RemoteAddr).
	AddressFn KeyFunc
	// RequireAPIKey recusa com 401 requisições sem API key.
	RequireAPIKey bool
	Logger        *slog.Logger
}

// AdmissionMiddleware aplica o controle de admissão. Em caso de sucesso, o
// resultado e o RequestMeta ficam no contexto da requisição.
func AdmissionMiddleware(opts AdmissionOptions) func(next http.Handler) http.Handler {
	if opts.Service == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.AddressFn == nil {
		opts.AddressFn = ClientAddressFunc(false)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := RequestMetaFrom(r, opts.AddressFn)

			if opts.RequireAPIKey && meta.APIKey == "" {
				writeError(w, http.StatusUnauthorized, "API key required")
				return
			}

			adm, err := opts.Service.Admit(r.Context(), meta)
			if err != nil {
				opts.Logger.Info("request rejected",
					"addr", meta.ClientAddress,
					"method", meta.Method,
					"path", meta.Path,
					"status", statusFor(err),
					"reason", err.Error(),
				)
				writeRejection(w, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", formatInt(adm.Window.Limit))
			h.Set("X-RateLimit-Remaining", formatInt(adm.Window.Remaining()))
			if adm.Window.ResetIn > 0 {
				h.Set("X-RateLimit-Reset", retryAfterSeconds(adm.Window.ResetIn))
			}

			next.ServeHTTP(w, r.WithContext(withAdmission(r.Context(), adm, meta)))
		})
	}
}
