/**
 * @description
 * Cached provider health. The health endpoint never probes providers inline;
 * it serves the last snapshot taken by the scheduled refresh job.
 */
package app

import (
	"context"
	"sync"
	"time"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/providers"
)

// ProviderHealth is the cached liveness state for one enabled provider.
type ProviderHealth struct {
	Provider   string    `json:"provider"`
	Alive      bool      `json:"alive"`
	Currencies []string  `json:"currencies"`
	CheckedAt  time.Time `json:"checked_at"`
}

// HealthCache holds per-provider liveness snapshots.
type HealthCache struct {
	registry *providers.Registry

	mu       sync.RWMutex
	statuses map[string]ProviderHealth
}

// NewHealthCache seeds the cache with every enabled provider marked alive;
// the first scheduled refresh replaces the seed values.
func NewHealthCache(registry *providers.Registry) *HealthCache {
	cache := &HealthCache{
		registry: registry,
		statuses: make(map[string]ProviderHealth),
	}
	now := time.Now().UTC()
	for _, name := range registry.Names() {
		driver, _ := registry.Get(name)
		cache.statuses[name] = ProviderHealth{
			Provider:   name,
			Alive:      true,
			Currencies: driver.Currencies(),
			CheckedAt:  now,
		}
	}
	return cache
}

// Refresh probes every enabled provider and replaces the cached snapshot.
func (c *HealthCache) Refresh(ctx context.Context) {
	now := time.Now().UTC()
	for _, name := range c.registry.Names() {
		driver, _ := c.registry.Get(name)
		status := ProviderHealth{
			Provider:   name,
			Alive:      driver.Ping(ctx),
			Currencies: driver.Currencies(),
			CheckedAt:  now,
		}
		c.mu.Lock()
		c.statuses[name] = status
		c.mu.Unlock()
	}
}

// Snapshot returns the cached health of all enabled providers in registry
// order.
func (c *HealthCache) Snapshot() []ProviderHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]ProviderHealth, 0, len(c.statuses))
	for _, name := range c.registry.Names() {
		if status, ok := c.statuses[name]; ok {
			snapshot = append(snapshot, status)
		}
	}
	return snapshot
}
