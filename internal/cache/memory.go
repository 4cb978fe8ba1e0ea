// Package cache provides case catalogue caches backed by process memory or Redis.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clinical-case-trainer/internal/domain"
)

const (
	defaultMaxItems = 512
	defaultTTL      = 10 * time.Minute
)

// MemoryCache keeps recently read cases in a size and time bounded LRU
type MemoryCache struct {
	lru *expirable.LRU[string, *domain.Case]
}

// NewMemoryCache creates an in-process cache. Zero values fall back to defaults.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryCache{lru: expirable.NewLRU[string, *domain.Case](maxItems, nil, ttl)}
}

// GetCase returns a copy of the cached case
func (m *MemoryCache) GetCase(_ context.Context, caseID string) (*domain.Case, bool, error) {
	c, ok := m.lru.Get(caseID)
	if !ok {
		return nil, false, nil
	}
	clone := *c
	return &clone, true, nil
}

// SetCase stores a copy of c
func (m *MemoryCache) SetCase(_ context.Context, c *domain.Case) error {
	clone := *c
	m.lru.Add(c.CaseID, &clone)
	return nil
}

// Invalidate drops a single case
func (m *MemoryCache) Invalidate(_ context.Context, caseID string) error {
	m.lru.Remove(caseID)
	return nil
}

// Len reports the number of live entries
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}
