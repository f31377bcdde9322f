package cache

import (
	"testing"
	"time"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	c := NewWithCapacity(10)
	defer c.Close()

	c.Set("a", "value-a", time.Minute)
	got, ok := c.Get("a")
	if !ok || got != "value-a" {
		t.Fatalf("expected to get back value-a, got %v ok=%v", got, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := NewWithCapacity(10)
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Errorf("expected missing key to report not found")
	}
}

func TestGetExpiredEntryIsEvicted(t *testing.T) {
	c := NewWithCapacity(10)
	defer c.Close()

	c.Set("a", "value-a", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected expired entry to be treated as missing")
	}
}

func TestSetEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := NewWithCapacity(2)
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	// touch "a" so it becomes most-recently-used, leaving "b" as the
	// least-recently-used entry to be evicted next.
	c.Get("a")
	c.Set("c", 3, time.Minute)

	if _, ok := c.Get("b"); ok {
		t.Errorf("expected least-recently-used entry to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("expected recently-touched entry to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("expected newly-inserted entry to be present")
	}
}

func TestSetOverwritesExistingKeyAndRefreshesTTL(t *testing.T) {
	c := NewWithCapacity(10)
	defer c.Close()

	c.Set("a", "first", time.Minute)
	c.Set("a", "second", time.Minute)

	got, ok := c.Get("a")
	if !ok || got != "second" {
		t.Errorf("expected overwritten value, got %v ok=%v", got, ok)
	}
}

func TestGenerateKeyIsStableAndDistinguishesInput(t *testing.T) {
	c := NewWithCapacity(10)
	defer c.Close()

	k1 := c.GenerateKey("title", "content")
	k2 := c.GenerateKey("title", "content")
	k3 := c.GenerateKey("title", "different content")

	if k1 != k2 {
		t.Errorf("expected identical input to produce identical keys")
	}
	if k1 == k3 {
		t.Errorf("expected different input to produce different keys")
	}
}
