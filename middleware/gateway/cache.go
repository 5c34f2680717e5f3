package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/application"
)

const (
	// CacheHeader informa se a resposta veio do cache.
	CacheHeader = "X-Cache"

	defaultMaxCachedBody = 1 << 20
)

type CacheOptions struct {
	Cache *application.Cache
	// Namespace prefixa as chaves (ex: "scam_detection").
	Namespace string
	// Routes restringe o cache a esses paths (vazio = todos). Só POST é cacheado.
	Routes []string
	// TTL 0 usa a regra do namespace.
	TTL     time.Duration
	MaxBody int
	Logger  *slog.Logger
}

// cacheInput é o que identifica uma resposta cacheada: rota e corpo.
type cacheInput struct {
	Path string          `json:"path"`
	Body json.RawMessage `json:"body,omitempty"`
	Raw  string          `json:"raw,omitempty"`
}

// CacheMiddleware serve respostas de classificação já conhecidas a partir do
// cache de dois tiers. A chave é DeriveKey(namespace, rota + corpo), então
// corpos JSON com campos em outra ordem compartilham a entrada e rotas
// diferentes nunca.
func CacheMiddleware(opts CacheOptions) func(next http.Handler) http.Handler {
	if opts.Cache == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Namespace == "" {
		opts.Namespace = "scam_detection"
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxCachedBody
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cacheable := func(r *http.Request) bool {
		if r.Method != http.MethodPost {
			return false
		}
		return len(opts.Routes) == 0 || slices.Contains(opts.Routes, r.URL.Path)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cacheable(r) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, int64(opts.MaxBody)+1))
			_ = r.Body.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			if len(body) > opts.MaxBody || len(body) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			in := cacheInput{Path: r.URL.Path}
			if json.Valid(body) {
				in.Body = json.RawMessage(body)
			} else {
				in.Raw = string(body)
			}
			key, err := application.DeriveKey(opts.Namespace, in)
			if err != nil {
				opts.Logger.Warn("cache key derivation failed", "path", r.URL.Path, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			if cached, ok := opts.Cache.Get(r.Context(), key); ok {
				w.Header().Set(CacheHeader, "HIT")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			}

			w.Header().Set(CacheHeader, "MISS")
			cw := newCaptureWriter(w, opts.MaxBody)
			next.ServeHTTP(cw, r)

			out := cw.Body()
			if cw.Status() != http.StatusOK || len(out) == 0 || !isJSON(cw.Header()) {
				return
			}
			opts.Cache.Set(r.Context(), key, bytes.Clone(out), opts.TTL)
		})
	}
}

func isJSON(h http.Header) bool {
	return strings.HasPrefix(strings.ToLower(h.Get("Content-Type")), "application/json")
}
