package application

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// ComputeOrFetch deriva a chave de params, tenta o cache e, em miss, chama
// compute e grava o resultado.
//
// Misses concorrentes para a mesma chave não são deduplicados: cada chamador
// computa e a última escrita vence. Um valor em cache que não decodifica em T
// é tratado como miss.
func ComputeOrFetch[T any](ctx context.Context, c *Cache, namespace string, params any, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	key, err := DeriveKey(namespace, params)
	if err != nil {
		return zero, err
	}

	if raw, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.logger.Warn("cached value does not decode, recomputing", "key", key)
	}

	v, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("computed value not cacheable", "key", key, "err", err)
		return v, nil
	}
	c.Set(ctx, key, raw, ttl)
	return v, nil
}

// Invalidator mantém o grafo dependsOn → namespaces dependentes.
//
// O grafo vive só em memória; quem precisa dele deve recriá-lo na subida.
type Invalidator struct {
	cache *Cache

	mu   sync.RWMutex
	deps map[string][]string
}

func NewInvalidator(c *Cache) *Invalidator {
	return &Invalidator{cache: c, deps: make(map[string][]string)}
}

func (i *Invalidator) AddDependency(dependsOn, dependent string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if slices.Contains(i.deps[dependsOn], dependent) {
		return
	}
	i.deps[dependsOn] = append(i.deps[dependsOn], dependent)
}

// Dependents retorna uma cópia dos namespaces que dependem de dependsOn.
func (i *Invalidator) Dependents(dependsOn string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.deps[dependsOn])
}

// Invalidate limpa "<dependente>:*" para cada dependente e retorna o total removido.
func (i *Invalidator) Invalidate(ctx context.Context, dependsOn string) int64 {
	var total int64
	for _, ns := range i.Dependents(dependsOn) {
		total += i.cache.ClearByPattern(ctx, ns+":*")
	}
	return total
}
