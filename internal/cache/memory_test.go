package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_GetSetDelete(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, ok := m.Get(ctx, "missing"); ok {
		t.Error("should not find missing key")
	}

	m.Set(ctx, "authors?limit=3&page=1&v=1.0", []byte(`[]`), time.Minute)
	m.Set(ctx, "books?limit=3&page=1&v=1.0", []byte(`[{}]`), time.Minute)

	val, ok := m.Get(ctx, "authors?limit=3&page=1&v=1.0")
	if !ok {
		t.Fatal("should find authors page")
	}
	if string(val) != "[]" {
		t.Errorf("value = %q, want %q", val, "[]")
	}

	m.Delete(ctx, "authors?limit=3&page=1&v=1.0", "books?limit=3&page=1&v=1.0")
	if _, ok := m.Get(ctx, "authors?limit=3&page=1&v=1.0"); ok {
		t.Error("should not find deleted authors page")
	}
	if _, ok := m.Get(ctx, "books?limit=3&page=1&v=1.0"); ok {
		t.Error("should not find deleted books page")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Per-entry TTL shorter than the cache default.
	m.Set(ctx, "expiring", []byte("data"), 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	if _, ok := m.Get(ctx, "expiring"); ok {
		t.Error("entry should be expired")
	}
}

func TestMemory_DeadlineUsesClock(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "page", []byte("x"), time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok := m.Get(ctx, "page"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(time.Second)
	if _, ok := m.Get(ctx, "page"); ok {
		t.Fatal("entry outlived its deadline")
	}
}

func TestMemory_ReportsExpiredKeys(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	var evicted []string
	m.OnEvict(func(key string) { evicted = append(evicted, key) })
	ctx := context.Background()

	m.Set(ctx, "page", []byte("x"), time.Minute)
	m.Set(ctx, "gone", []byte("x"), time.Minute)
	m.Delete(ctx, "gone")
	now = now.Add(time.Minute)
	if _, ok := m.Get(ctx, "page"); ok {
		t.Fatal("entry outlived its deadline")
	}
	if len(evicted) != 1 || evicted[0] != "page" {
		t.Errorf("evicted = %v, want [page]", evicted)
	}
}

func TestMemory_NonPositiveTTLNotStored(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	m.Set(context.Background(), "k", []byte("v"), 0)
	if _, ok := m.Get(context.Background(), "k"); ok {
		t.Error("zero ttl entry was stored")
	}
}

func TestNewMemory_RejectsZeroSize(t *testing.T) {
	t.Parallel()
	if _, err := NewMemory(0, time.Minute); err == nil {
		t.Fatal("expected error for zero max size")
	}
}

func TestMemory_Purge(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		m.Set(ctx, k, []byte(k), time.Minute)
	}
	m.Purge(ctx)
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := m.Get(ctx, k); ok {
			t.Errorf("key %q survived purge", k)
		}
	}
}
