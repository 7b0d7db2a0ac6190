package app

import (
	"context"
	"testing"
)

func TestHealthCacheSeedsEnabledProvidersAlive(t *testing.T) {
	cache := NewHealthCache(reconcilerRegistry(t))

	snapshot := cache.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected snapshots for both providers, got %d", len(snapshot))
	}
	if snapshot[0].Provider != "anchor" || snapshot[1].Provider != "paystack" {
		t.Fatalf("expected registry order [anchor paystack], got %v", snapshot)
	}
	for _, status := range snapshot {
		if !status.Alive {
			t.Fatalf("expected provider %s seeded alive", status.Provider)
		}
	}
}

func TestHealthCacheRefreshWithoutBaseURLStaysAlive(t *testing.T) {
	cache := NewHealthCache(reconcilerRegistry(t))
	cache.Refresh(context.Background())

	for _, status := range cache.Snapshot() {
		if !status.Alive {
			t.Fatalf("expected provider %s alive without a probe target", status.Provider)
		}
	}
}
