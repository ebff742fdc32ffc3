package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Tagged is a read-through cache whose entries are invalidated by tag.
// It is safe for concurrent use.
type Tagged struct {
	store    TagStore
	ttl      time.Duration
	observer Observer
	flight   singleflight.Group
}

// Option configures a Tagged cache.
type Option func(*Tagged)

// WithObserver reports hits, misses and invalidations to o.
func WithObserver(o Observer) Option {
	return func(c *Tagged) { c.observer = o }
}

// NewTagged creates a tagged cache over store. Entries expire after ttl even
// if never invalidated.
func NewTagged(store TagStore, ttl time.Duration, opts ...Option) *Tagged {
	c := &Tagged{store: store, ttl: ttl}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCompute returns the cached value for key, or runs compute, stores the
// result under tags and returns it. Concurrent misses on the same key share a
// single compute call. A compute error is returned as is and nothing is stored.
//
// If any of tags is invalidated while compute runs, the fresh value is still
// returned to the caller but not stored.
func (c *Tagged) GetOrCompute(ctx context.Context, key string, tags []string, compute ComputeFunc) ([]byte, error) {
	if val, ok := c.store.Get(ctx, key); ok {
		c.hit()
		return val, nil
	}
	c.miss()

	// The flight outlives any single caller; joiners must not inherit the
	// leader's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := c.flight.Do(key, func() (any, error) {
		gens, genErr := c.store.Generations(flightCtx, tags)
		if genErr != nil {
			// Without generations the value can be served but not stored safely.
			slog.LogAttrs(flightCtx, slog.LevelWarn, "cache generations unavailable",
				slog.String("key", key), slog.String("error", genErr.Error()))
		}
		val, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		if gens != nil {
			if _, err := c.store.SetTagged(flightCtx, key, val, tags, gens, c.ttl); err != nil {
				slog.LogAttrs(flightCtx, slog.LevelWarn, "cache store failed",
					slog.String("key", key), slog.String("error", err.Error()))
			}
		}
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// InvalidateTags removes every entry stored under any of tags and returns how
// many were removed. Invalidating tags with no entries is a no-op.
func (c *Tagged) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	n, err := c.store.InvalidateTags(ctx, tags)
	if err != nil {
		return n, fmt.Errorf("invalidate %v: %w", tags, err)
	}
	if c.observer != nil {
		c.observer.CacheInvalidated(n)
	}
	return n, nil
}

// Purge drops every entry.
func (c *Tagged) Purge(ctx context.Context) {
	c.store.Purge(ctx)
}

func (c *Tagged) hit() {
	if c.observer != nil {
		c.observer.CacheHit()
	}
}

func (c *Tagged) miss() {
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}
