package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
)

// memEntry is a payload with its own deadline, so callers may store entries
// for less than the cache-wide TTL.
type memEntry struct {
	payload  []byte
	deadline int64 // unix nanos
}

// Memory is the in-process Store. Capacity is bounded by entry count and
// admission follows otter's W-TinyLFU policy, so hot list pages survive a
// scan of cold ones.
type Memory struct {
	pages   *otter.Cache[string, memEntry]
	now     func() time.Time
	onEvict atomic.Pointer[func(key string)]
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory holding at most maxSize entries. ttl is the
// upper bound on any entry's lifetime.
func NewMemory(maxSize int, ttl time.Duration) (*Memory, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("memory cache: max size must be positive, got %d", maxSize)
	}
	m := &Memory{now: time.Now}
	pages, err := otter.New(&otter.Options[string, memEntry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, memEntry](ttl),
		OnDeletion: func(e otter.DeletionEvent[string, memEntry]) {
			if e.WasEvicted() {
				m.evicted(e.Key)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	m.pages = pages
	return m, nil
}

// OnEvict registers fn to be told about entries dropped for size or age.
// Explicit deletes and purges are not reported. fn may run on any goroutine.
func (m *Memory) OnEvict(fn func(key string)) {
	m.onEvict.Store(&fn)
}

func (m *Memory) evicted(key string) {
	if fn := m.onEvict.Load(); fn != nil {
		(*fn)(key)
	}
}

// Get returns the payload stored under key unless it has passed its deadline.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.pages.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if m.now().UnixNano() >= e.deadline {
		m.pages.Invalidate(key)
		m.evicted(key)
		return nil, false
	}
	return e.payload, true
}

// Set stores val for ttl. A non-positive ttl stores nothing.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.pages.Set(key, memEntry{payload: val, deadline: m.now().Add(ttl).UnixNano()})
}

// Delete drops keys; unknown keys are ignored.
func (m *Memory) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		m.pages.Invalidate(k)
	}
}

// Purge drops every entry.
func (m *Memory) Purge(context.Context) {
	m.pages.InvalidateAll()
}
