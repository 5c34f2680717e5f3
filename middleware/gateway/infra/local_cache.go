package infra

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"classifier-gateway/middleware/gateway/domain"
)

// LocalCache é o tier em processo do cache.
//
// A ordem de despejo é a de inserção: leituras usam Peek (não mexem na recência),
// só Put renova a posição da chave. O lock interno do golang-lru cobre
// lookup+insert+evict, então o tamanho nunca passa da capacidade.
type LocalCache struct {
	lru *lru.Cache[string, domain.CacheEntry]
}

// NewLocalCache cria o tier local com no máximo capacity entradas.
func NewLocalCache(capacity int) *LocalCache {
	if capacity <= 0 {
		capacity = domain.DefaultLocalCapacity
	}
	c, err := lru.New[string, domain.CacheEntry](capacity)
	if err != nil {
		// só acontece com capacity <= 0
		panic(err)
	}
	return &LocalCache{lru: c}
}

func (c *LocalCache) Get(key string) (domain.CacheEntry, bool) {
	return c.lru.Peek(key)
}

func (c *LocalCache) Put(entry domain.CacheEntry) {
	c.lru.Add(entry.Key, entry)
}

func (c *LocalCache) Delete(key string) bool {
	return c.lru.Remove(key)
}

func (c *LocalCache) DeleteMatching(match func(key string) bool) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if match(k) && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (c *LocalCache) Len() int { return c.lru.Len() }

var _ domain.LocalCache = (*LocalCache)(nil)
