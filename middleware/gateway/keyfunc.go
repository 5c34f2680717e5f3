package gateway

import (
	"net"
	"net/http"
	"strings"

	"classifier-gateway/middleware/gateway/domain"
)

// KeyFunc extrai uma chave de cliente da requisição.
type KeyFunc func(r *http.Request) string

// APIKeyHeader e APIKeyParam são onde a API key é procurada, nessa ordem.
const (
	APIKeyHeader = "X-API-Key"
	APIKeyParam  = "api_key"
)

// ClientAddressFunc retorna o endereço do cliente. Com trustXFF, usa o primeiro
// IP do X-Forwarded-For (só faz sentido atrás de um proxy confiável).
func ClientAddressFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// APIKeyFromRequest lê a API key do header X-API-Key ou do query param api_key.
func APIKeyFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(APIKeyHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(APIKeyParam))
}

// RequestMetaFrom monta o domain.RequestMeta consumido por admissão e analytics.
// Headers e query params com vários valores ficam com o primeiro; a API key
// não entra nos headers/params inspecionados.
func RequestMetaFrom(r *http.Request, addr KeyFunc) domain.RequestMeta {
	if addr == nil {
		addr = ClientAddressFunc(false)
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) == 0 || http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(APIKeyHeader) {
			continue
		}
		headers[k] = v[0]
	}

	query := r.URL.Query()
	params := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) == 0 || k == APIKeyParam {
			continue
		}
		params[k] = v[0]
	}

	return domain.RequestMeta{
		ClientAddress: addr(r),
		APIKey:        APIKeyFromRequest(r),
		Method:        r.Method,
		Path:          r.URL.Path,
		UserAgent:     r.UserAgent(),
		Headers:       headers,
		QueryParams:   params,
	}
}
