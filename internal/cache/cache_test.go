package cache_test

import (
	"testing"
	"time"

	"obralink/internal/cache"
)

func TestMemoryStoresDecisionsPerPair(t *testing.T) {
	m := cache.NewMemory(0)
	m.Set("p1", "u1", true)
	m.Set("p1", "u2", false)

	if got, ok := m.Get("p1", "u1"); !ok || !got {
		t.Fatalf("p1/u1 = %v,%v", got, ok)
	}
	if got, ok := m.Get("p1", "u2"); !ok || got {
		t.Fatalf("p1/u2 = %v,%v", got, ok)
	}
	if _, ok := m.Get("p2", "u1"); ok {
		t.Fatalf("unexpected entry for p2/u1")
	}
}

func TestMemoryLazyExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := cache.NewMemory(time.Minute)
	m.Now = func() time.Time { return now }

	m.Set("p1", "u1", true)
	now = now.Add(59 * time.Second)
	if _, ok := m.Get("p1", "u1"); !ok {
		t.Fatalf("entry expired early")
	}
	now = now.Add(2 * time.Second)
	if _, ok := m.Get("p1", "u1"); ok {
		t.Fatalf("entry survived past TTL")
	}
	// Expired entries are removed on lookup, not resurrected.
	if _, ok := m.Get("p1", "u1"); ok {
		t.Fatalf("expired entry came back")
	}
}

func TestInvalidateProjectDropsAllUsers(t *testing.T) {
	m := cache.NewMemory(0)
	m.Set("p1", "u1", true)
	m.Set("p1", "u2", false)
	m.Set("p2", "u1", true)

	m.InvalidateProject("p1")

	if _, ok := m.Get("p1", "u1"); ok {
		t.Fatalf("p1/u1 survived invalidation")
	}
	if _, ok := m.Get("p1", "u2"); ok {
		t.Fatalf("p1/u2 survived invalidation")
	}
	if _, ok := m.Get("p2", "u1"); !ok {
		t.Fatalf("p2/u1 was dropped")
	}
}

func TestNewMemoryDefaultsTTL(t *testing.T) {
	if m := cache.NewMemory(0); m.TTL != cache.DefaultTTL {
		t.Fatalf("TTL = %v, want %v", m.TTL, cache.DefaultTTL)
	}
	if m := cache.NewMemory(time.Second); m.TTL != time.Second {
		t.Fatalf("TTL = %v, want 1s", m.TTL)
	}
}

func TestDisabledNeverStores(t *testing.T) {
	var c cache.AccessCache = cache.Disabled{}
	c.Set("p1", "u1", true)
	if _, ok := c.Get("p1", "u1"); ok {
		t.Fatalf("disabled cache returned an entry")
	}
}

func TestDelete(t *testing.T) {
	m := cache.NewMemory(0)
	m.Set("p1", "u1", true)
	m.Delete("p1", "u1")
	if _, ok := m.Get("p1", "u1"); ok {
		t.Fatalf("entry survived delete")
	}
}
