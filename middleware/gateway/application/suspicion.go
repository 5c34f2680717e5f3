package application

import (
	"bytes"
	"encoding/json"
	"net/textproto"
	"regexp"
	"strings"

	"classifier-gateway/middleware/gateway/domain"
)

// DefaultMaxRequestSize é o teto, em bytes, da forma serializada da requisição.
const DefaultMaxRequestSize = 10000

type suspicionRule struct {
	name string
	re   *regexp.Regexp
}

// Avaliadas em ordem; a primeira que casa define o motivo.
var defaultSuspicionRules = []suspicionRule{
	{"sql_injection", regexp.MustCompile(`\b(union|select|insert|update|delete|drop|exec|script)\b`)},
	{"xss", regexp.MustCompile(`(<script|javascript:|onload=|onerror=)`)},
	{"path_traversal", regexp.MustCompile(`(\.\./|\.\.\\)`)},
	{"command_injection", regexp.MustCompile("(;|\\||&|`|\\$\\()")},
	{"excessive_length", regexp.MustCompile(`[^\s",:{}\[\]]{1000,}`)},
}

// DefaultSkippedHeaders não entram na inspeção: navegadores e clientes HTTP
// comuns mandam ";" e "," neles o tempo todo.
var DefaultSkippedHeaders = []string{
	"Accept", "Accept-Encoding", "Accept-Language", "User-Agent", "Content-Type", "Cookie",
}

// Inspector decide se uma requisição isolada parece um ataque. Não tem estado.
type Inspector struct {
	maxSize int
	rules   []suspicionRule
	skip    map[string]struct{}
}

type InspectorOption func(*Inspector)

func WithMaxRequestSize(n int) InspectorOption {
	return func(i *Inspector) {
		if n > 0 {
			i.maxSize = n
		}
	}
}

// WithSkippedHeaders substitui a lista de headers ignorados.
func WithSkippedHeaders(names ...string) InspectorOption {
	return func(i *Inspector) {
		i.skip = make(map[string]struct{}, len(names))
		for _, n := range names {
			i.skip[textproto.CanonicalMIMEHeaderKey(n)] = struct{}{}
		}
	}
}

func NewInspector(opts ...InspectorOption) *Inspector {
	i := &Inspector{
		maxSize: DefaultMaxRequestSize,
		rules:   defaultSuspicionRules,
	}
	WithSkippedHeaders(DefaultSkippedHeaders...)(i)
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect retorna (true, motivo) quando a requisição excede o teto de tamanho
// ou casa com alguma assinatura de ataque.
func (i *Inspector) Inspect(meta domain.RequestMeta) (bool, string) {
	raw := i.serialize(meta)
	if len(raw) > i.maxSize {
		return true, "request too large"
	}

	content := strings.ToLower(string(raw))
	for _, r := range i.rules {
		if r.re.MatchString(content) {
			return true, "suspicious pattern detected: " + r.name
		}
	}
	return false, ""
}

func (i *Inspector) serialize(meta domain.RequestMeta) []byte {
	headers := make(map[string]string, len(meta.Headers))
	for k, v := range meta.Headers {
		if _, skip := i.skip[textproto.CanonicalMIMEHeaderKey(k)]; skip {
			continue
		}
		headers[k] = v
	}

	doc := struct {
		Headers     map[string]string `json:"headers"`
		QueryParams map[string]string `json:"query_params"`
		Path        string            `json:"path"`
	}{headers, meta.QueryParams, meta.Path}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(doc) // map[string]string e string sempre serializam
	return bytes.TrimRight(buf.Bytes(), "\n")
}
