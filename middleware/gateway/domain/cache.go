package domain

import (
	"context"
	"strings"
	"time"
)

const (
	// DefaultCacheTTL é usado quando nenhuma regra de prefixo casa.
	DefaultCacheTTL = time.Hour
	// DefaultLocalTTL limita por quanto tempo a cópia local vale sem revalidar no Remote Store.
	DefaultLocalTTL = 5 * time.Minute
	// DefaultLocalCapacity é o número máximo de entradas no tier local.
	DefaultLocalCapacity = 1000
)

// CacheEntry é a cópia local de um valor do cache.
type CacheEntry struct {
	Key        string
	Value      []byte
	InsertedAt time.Time
	TTL        time.Duration
}

// LocalCache é o tier em processo: limitado, volátil e não compartilhado.
//
// Implementações precisam ser seguras para uso concorrente e nunca passar da
// capacidade configurada.
type LocalCache interface {
	Get(key string) (CacheEntry, bool)
	Put(entry CacheEntry)
	Delete(key string) bool
	// DeleteMatching remove as chaves para as quais match retorna true.
	DeleteMatching(match func(key string) bool) int
	Len() int
}

// RemoteCache é o tier durável no Remote Store.
//
// Get retorna ErrNotFound em miss. As chaves são lógicas (ex: "scam_detection:ab12");
// o prefixo do namespace no store é responsabilidade da implementação.
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// TTLRule associa um prefixo de chave a um TTL default.
type TTLRule struct {
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

// TTLRules é avaliada em ordem; a primeira regra que casa vence.
type TTLRules []TTLRule

// Lookup retorna o TTL da primeira regra cujo prefixo casa com key, ou fallback.
func (r TTLRules) Lookup(key string, fallback time.Duration) time.Duration {
	for _, rule := range r {
		if rule.TTL > 0 && strings.HasPrefix(key, rule.Prefix) {
			return rule.TTL
		}
	}
	return fallback
}

func DefaultTTLRules() TTLRules {
	return TTLRules{
		{Prefix: "scam_detection", TTL: time.Hour},
		{Prefix: "agent_reply", TTL: 30 * time.Minute},
		{Prefix: "model_predictions", TTL: 2 * time.Hour},
		{Prefix: "analytics", TTL: 5 * time.Minute},
		{Prefix: "intelligence", TTL: 24 * time.Hour},
		{Prefix: "user_sessions", TTL: 30 * time.Minute},
	}
}

// CacheStats é um retrato do estado do cache.
type CacheStats struct {
	LocalEntries int   `json:"local_cache_size"`
	RemoteKeys   int64 `json:"remote_keys_count"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
}
