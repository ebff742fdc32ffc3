package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// setTaggedScript writes an entry and its tag memberships only if every tag
// generation (counter plus purge epoch) still matches the caller's snapshot.
//
// KEYS: entry, tag sets (n), generation counters (n), epoch
// ARGV: value, ttl ms, member name, expected generations (n)
var setTaggedScript = redis.NewScript(`
local n = (#KEYS - 2) / 2
local epoch = tonumber(redis.call('GET', KEYS[#KEYS]) or '0')
for i = 1, n do
  local g = tonumber(redis.call('GET', KEYS[1 + n + i]) or '0') + epoch
  if g ~= tonumber(ARGV[3 + i]) then return 0 end
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
for i = 1, n do redis.call('SADD', KEYS[1 + i], ARGV[3]) end
return 1
`)

// invalidateScript bumps tag generations and deletes every member entry.
//
// KEYS: tag sets (n), generation counters (n)
// ARGV: entry key prefix
var invalidateScript = redis.NewScript(`
local n = #KEYS / 2
local removed = 0
for i = 1, n do
  redis.call('INCR', KEYS[n + i])
  local members = redis.call('SMEMBERS', KEYS[i])
  for _, m in ipairs(members) do
    removed = removed + redis.call('DEL', ARGV[1] .. m)
  end
  redis.call('DEL', KEYS[i])
end
return removed
`)

// Redis is a shared cache backend. The tag index and generation counters
// live in Redis next to the entries so every process sharing the instance
// sees the same invalidations.
//
// invalidateScript derives entry keys from set members instead of declaring
// them, so every key must live in one hash slot. The prefix is wrapped in a
// hash tag for that; on Redis Cluster all libris keys then share one node.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ TagStore = (*Redis)(nil)

// NewRedis connects to the Redis server at url and verifies it with PING.
// All keys are namespaced under prefix.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, prefix: slotPrefix(prefix)}, nil
}

// slotPrefix turns prefix into a hash tag ("libris:" -> "{libris}:") so all
// keys built from it hash to the same cluster slot.
func slotPrefix(prefix string) string {
	name := strings.TrimSuffix(prefix, ":")
	if name == "" {
		name = "libris"
	}
	return "{" + name + "}:"
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) entryKey(key string) string { return r.prefix + "entry:" + key }
func (r *Redis) tagKey(tag string) string   { return r.prefix + "tag:" + tag }
func (r *Redis) genKey(tag string) string   { return r.prefix + "gen:" + tag }
func (r *Redis) epochKey() string           { return r.prefix + "epoch" }

// Get returns the entry for key. Transport errors are logged and reported as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.LogAttrs(ctx, slog.LevelWarn, "redis get failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	return val, true
}

// Set stores an untagged entry.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, r.entryKey(key), val, ttl).Err(); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "redis set failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Delete removes entries. Their tag memberships are pruned lazily on invalidation.
func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.entryKey(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "redis delete failed",
			slog.Int("keys", len(keys)), slog.String("error", err.Error()))
	}
}

// Purge deletes every entry and tag set. Generation counters are kept and
// the epoch is bumped first, so a compute that started before the purge
// cannot write its value back.
func (r *Redis) Purge(ctx context.Context) {
	if err := r.client.Incr(ctx, r.epochKey()).Err(); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "redis epoch bump failed", slog.String("error", err.Error()))
	}
	for _, pattern := range []string{r.entryKey("*"), r.tagKey("*")} {
		r.deleteMatching(ctx, pattern)
	}
}

func (r *Redis) deleteMatching(ctx context.Context, pattern string) {
	iter := r.client.Scan(ctx, 0, pattern, 500).Iterator()
	batch := make([]string, 0, 500)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "redis purge failed", slog.String("error", err.Error()))
		}
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()
	if err := iter.Err(); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "redis scan failed", slog.String("error", err.Error()))
	}
}

// Generations reads each tag's counter plus the purge epoch. Unknown tags
// and a missing epoch count as 0.
func (r *Redis) Generations(ctx context.Context, tags []string) ([]uint64, error) {
	gens := make([]uint64, len(tags))
	if len(tags) == 0 {
		return gens, nil
	}
	keys := make([]string, len(tags)+1)
	for i, t := range tags {
		keys[i] = r.genKey(t)
	}
	keys[len(tags)] = r.epochKey()
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read generations: %w", err)
	}
	counts := make([]uint64, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if counts[i], err = strconv.ParseUint(s, 10, 64); err != nil {
			return nil, fmt.Errorf("parse counter %q: %w", keys[i], err)
		}
	}
	epoch := counts[len(tags)]
	for i := range tags {
		gens[i] = counts[i] + epoch
	}
	return gens, nil
}

// SetTagged stores the entry and its tag memberships atomically, unless a tag
// was invalidated after gens was read.
func (r *Redis) SetTagged(ctx context.Context, key string, val []byte, tags []string, gens []uint64, ttl time.Duration) (bool, error) {
	keys := make([]string, 0, 2+2*len(tags))
	keys = append(keys, r.entryKey(key))
	for _, t := range tags {
		keys = append(keys, r.tagKey(t))
	}
	for _, t := range tags {
		keys = append(keys, r.genKey(t))
	}
	keys = append(keys, r.epochKey())
	args := make([]any, 0, 3+len(gens))
	args = append(args, val, ttl.Milliseconds(), key)
	for _, g := range gens {
		args = append(args, g)
	}
	stored, err := setTaggedScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("set tagged %q: %w", key, err)
	}
	return stored == 1, nil
}

// InvalidateTags deletes every entry under tags and bumps their generations in one script call.
func (r *Redis) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, 2*len(tags))
	for _, t := range tags {
		keys = append(keys, r.tagKey(t))
	}
	for _, t := range tags {
		keys = append(keys, r.genKey(t))
	}
	n, err := invalidateScript.Run(ctx, r.client, keys, r.entryKey("")).Int()
	if err != nil {
		return 0, fmt.Errorf("invalidate tags: %w", err)
	}
	return n, nil
}
