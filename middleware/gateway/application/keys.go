package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DeriveKey monta a chave de cache "namespace:<xxhash64 hex>" a partir da forma
// canônica do payload.
//
// A forma canônica leva um marcador de tipo ("s:" texto, "n:" número, "b:"
// bool, "j:" JSON), então 1 e "1" geram chaves diferentes. Estruturas são
// serializadas em JSON com chaves de mapa ordenadas, então mapas logicamente
// iguais geram a mesma chave.
func DeriveKey(namespace string, payload any) (string, error) {
	canon, err := canonical(payload)
	if err != nil {
		return "", fmt.Errorf("derive key %s: %w", namespace, err)
	}
	return namespace + ":" + strconv.FormatUint(xxhash.Sum64(canon), 16), nil
}

func canonical(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("j:null"), nil
	case string:
		return append([]byte("s:"), v...), nil
	case []byte:
		return append([]byte("s:"), v...), nil
	case json.RawMessage:
		return tagJSON(CanonicalJSON(v))
	case bool:
		return []byte("b:" + strconv.FormatBool(v)), nil
	case int:
		return []byte("n:" + strconv.Itoa(v)), nil
	case int64:
		return []byte("n:" + strconv.FormatInt(v, 10)), nil
	case float64:
		return []byte("n:" + strconv.FormatFloat(v, 'g', -1, 64)), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return tagJSON(CanonicalJSON(raw))
}

func tagJSON(canon []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return append([]byte("j:"), canon...), nil
}

// CanonicalJSON reserializa raw com as chaves dos objetos ordenadas e sem
// espaços. Números são preservados literalmente.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json ordena as chaves de map[string]any
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// globMatcher converte um glob estilo Redis em matcher de chave, com a mesma
// sintaxe do SCAN MATCH: "*", "?", classes "[abc]", "[^a]", "[a-z]" e escape
// com "\".
func globMatcher(pattern string) func(string) bool {
	p := []rune(pattern)

	var b strings.Builder
	b.WriteString("(?s)^")
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '\\':
			if i+1 < len(p) {
				i++
			}
			b.WriteString(regexp.QuoteMeta(string(p[i])))
		case '[':
			end := classEnd(p, i+1)
			b.WriteString(globClass(p[i+1 : end]))
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(p[i])))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		// globClass só gera expressões válidas; cai para comparação literal
		return func(key string) bool { return key == pattern }
	}
	return re.MatchString
}

// classEnd acha o "]" que fecha a classe aberta antes de from. Sem "]", a
// classe vai até o fim do padrão, como no Redis.
func classEnd(p []rune, from int) int {
	for j := from; j < len(p); j++ {
		switch p[j] {
		case '\\':
			j++
		case ']':
			return j
		}
	}
	return len(p)
}

func globClass(body []rune) string {
	negate := len(body) > 0 && body[0] == '^'
	if negate {
		body = body[1:]
	}

	var items strings.Builder
	for j := 0; j < len(body); j++ {
		r := body[j]
		if r == '\\' && j+1 < len(body) {
			j++
			r = body[j]
		} else if j+2 < len(body) && body[j+1] == '-' {
			lo, hi := r, body[j+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			items.WriteString(classRune(lo) + "-" + classRune(hi))
			j += 2
			continue
		}
		items.WriteString(classRune(r))
	}

	if items.Len() == 0 {
		if negate {
			return "."
		}
		return `[^\x00-\x{10FFFF}]`
	}
	if negate {
		return "[^" + items.String() + "]"
	}
	return "[" + items.String() + "]"
}

func classRune(r rune) string {
	if strings.ContainsRune(`\]-[^`, r) {
		return `\` + string(r)
	}
	return string(r)
}
