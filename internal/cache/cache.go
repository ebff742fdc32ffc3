// Package cache provides the tag-indexed response cache used by the list endpoints.
//
// A Store is a plain key/value backend (otter in-process, Redis shared).
// A TagStore additionally keeps the tag -> keys index and per-tag generation
// counters; Index adds both to any Store, and Redis implements them natively.
// Tagged layers single-flight computation on top of a TagStore.
package cache

import (
	"context"
	"time"
)

// Store is a byte-slice key/value backend.
type Store interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Delete removes cached values. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string)
	// Purge removes all cached values.
	Purge(ctx context.Context)
}

// TagStore is a Store that associates entries with invalidation tags.
//
// Every tag has a generation counter that InvalidateTags increments.
// SetTagged stores only when the generations read before computing the value
// are still current, so a value computed from pre-mutation data is never
// written after the mutation invalidated its tags.
type TagStore interface {
	Store
	// Generations returns the current generation of each tag, in order.
	Generations(ctx context.Context, tags []string) ([]uint64, error)
	// SetTagged stores val under key and indexes it under tags, unless a tag
	// generation differs from gens. It reports whether the value was stored.
	SetTagged(ctx context.Context, key string, val []byte, tags []string, gens []uint64, ttl time.Duration) (bool, error)
	// InvalidateTags removes every entry indexed under any of tags and bumps
	// their generations. It returns the number of entries removed.
	InvalidateTags(ctx context.Context, tags []string) (int, error)
}

// Observer receives cache events, typically to feed metrics. Nil means no observation.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheInvalidated(entries int)
}
