package cache

import (
	"context"
	"sync"
	"time"
)

// evictionSource is a Store that reports entries it drops on its own
// (size, TTL).
type evictionSource interface {
	OnEvict(fn func(key string))
}

// Index adds an in-process tag index to a plain Store.
//
// One mutex guards the key -> tags map, the tag -> keys map and the tag
// generations, and is held while an entry is written or removed so the
// indexes never diverge from each other. It is never held while a value is
// being computed.
//
// A tag's generation as seen by callers is its own counter plus the purge
// epoch, so both invalidation and Purge move every snapshot forward.
//
// Keys the backing store evicts are queued under a separate lock and
// unindexed on the next write, keeping the index no larger than the store.
type Index struct {
	store Store

	mu    sync.Mutex
	byKey map[string][]string
	byTag map[string]map[string]struct{}
	gens  map[string]uint64
	epoch uint64

	evictMu sync.Mutex
	evicted []string
}

var _ TagStore = (*Index)(nil)

// NewIndex wraps store with a tag index.
func NewIndex(store Store) *Index {
	x := &Index{
		store: store,
		byKey: make(map[string][]string),
		byTag: make(map[string]map[string]struct{}),
		gens:  make(map[string]uint64),
	}
	if src, ok := store.(evictionSource); ok {
		src.OnEvict(x.noteEvicted)
	}
	return x
}

// noteEvicted may run inside the backing store's callbacks, possibly while
// x.mu is held by the writer that caused the eviction, so it only takes
// evictMu.
func (x *Index) noteEvicted(key string) {
	x.evictMu.Lock()
	x.evicted = append(x.evicted, key)
	x.evictMu.Unlock()
}

// dropEvicted unindexes queued keys the store no longer holds. A key that
// was written again after its eviction stays indexed. Caller holds x.mu.
func (x *Index) dropEvicted(ctx context.Context) {
	x.evictMu.Lock()
	pending := x.evicted
	x.evicted = nil
	x.evictMu.Unlock()
	for _, k := range pending {
		if _, indexed := x.byKey[k]; !indexed {
			continue
		}
		if _, live := x.store.Get(ctx, k); !live {
			x.unindex(k)
		}
	}
}

// Get reads through to the backing store.
func (x *Index) Get(ctx context.Context, key string) ([]byte, bool) {
	return x.store.Get(ctx, key)
}

// Set stores an untagged value, dropping any tags previously held by key.
func (x *Index) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dropEvicted(ctx)
	x.unindex(key)
	x.store.Set(ctx, key, val, ttl)
}

// Delete removes entries and their index records.
func (x *Index) Delete(ctx context.Context, keys ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dropEvicted(ctx)
	for _, k := range keys {
		x.unindex(k)
	}
	x.store.Delete(ctx, keys...)
}

// Purge empties the store and the index. The epoch moves on so computations
// already in flight do not repopulate the cache, whatever their tags.
func (x *Index) Purge(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.epoch++
	clear(x.byKey)
	clear(x.byTag)
	x.store.Purge(ctx)
	x.evictMu.Lock()
	x.evicted = nil
	x.evictMu.Unlock()
}

// Generations returns the current generation of each tag.
func (x *Index) Generations(_ context.Context, tags []string) ([]uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	gens := make([]uint64, len(tags))
	for i, t := range tags {
		gens[i] = x.gen(t)
	}
	return gens, nil
}

// gen is the generation callers see for t. Caller holds x.mu.
func (x *Index) gen(t string) uint64 { return x.gens[t] + x.epoch }

// SetTagged stores and indexes val unless one of its tags was invalidated since gens was read.
func (x *Index) SetTagged(ctx context.Context, key string, val []byte, tags []string, gens []uint64, ttl time.Duration) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, t := range tags {
		if x.gen(t) != gens[i] {
			return false, nil
		}
	}
	x.dropEvicted(ctx)
	x.unindex(key)
	x.store.Set(ctx, key, val, ttl)
	if len(tags) > 0 {
		x.byKey[key] = append([]string(nil), tags...)
	}
	for _, t := range tags {
		keys := x.byTag[t]
		if keys == nil {
			keys = make(map[string]struct{})
			x.byTag[t] = keys
		}
		keys[key] = struct{}{}
	}
	return true, nil
}

// InvalidateTags removes every entry indexed under any of tags. The work done
// is proportional to the number of entries under those tags.
func (x *Index) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dropEvicted(ctx)
	var doomed []string
	for _, t := range tags {
		x.gens[t]++
		for k := range x.byTag[t] {
			doomed = append(doomed, k)
		}
	}
	for _, k := range doomed {
		x.unindex(k)
	}
	if len(doomed) > 0 {
		x.store.Delete(ctx, doomed...)
	}
	return len(doomed), nil
}

// unindex drops key from both maps. Caller holds x.mu.
func (x *Index) unindex(key string) {
	for _, t := range x.byKey[key] {
		if keys := x.byTag[t]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(x.byTag, t)
			}
		}
	}
	delete(x.byKey, key)
}
