package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures the Redis-backed Store. Grounded directly on
// core.RedisSchemaCache's Options pattern (client, TTL, key prefix,
// atomic hit/miss counters, graceful degrade-to-miss on Redis errors).
type RedisOptions struct {
	Client *redis.Client
	Prefix string
}

// Redis is a Store backed by a shared redis.Client, suitable for caching
// across multiple Raffel instances.
type Redis struct {
	client *redis.Client
	prefix string

	hits   int64
	misses int64
}

// NewRedis builds a Redis-backed Store. Prefix defaults to "raffel:cache:".
func NewRedis(opts RedisOptions) *Redis {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "raffel:cache:"
	}
	return &Redis{client: opts.Client, prefix: prefix}
}

type wireEntry struct {
	Value      json.RawMessage `json:"value"`
	StoredAt   time.Time       `json:"storedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	StaleUntil time.Time       `json:"staleUntil"`
}

func (r *Redis) keyFor(key string) string { return r.prefix + key }

// Get fetches key from Redis, degrading to a cache miss (never an error)
// on any transport or decode failure, matching RedisSchemaCache.Get.
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	val, err := r.client.Get(ctx, r.keyFor(key)).Result()
	if err == redis.Nil {
		atomic.AddInt64(&r.misses, 1)
		return Entry{}, false, nil
	}
	if err != nil {
		atomic.AddInt64(&r.misses, 1)
		return Entry{}, false, nil
	}

	var wire wireEntry
	if err := json.Unmarshal([]byte(val), &wire); err != nil {
		atomic.AddInt64(&r.misses, 1)
		return Entry{}, false, nil
	}

	var value interface{}
	if err := json.Unmarshal(wire.Value, &value); err != nil {
		atomic.AddInt64(&r.misses, 1)
		return Entry{}, false, nil
	}

	atomic.AddInt64(&r.hits, 1)
	return Entry{Value: value, StoredAt: wire.StoredAt, ExpiresAt: wire.ExpiresAt, StaleUntil: wire.StaleUntil}, true, nil
}

// Set stores entry under key with its TTL derived from ExpiresAt (or
// StaleUntil, when SWR is in play, so Redis doesn't evict a still-usable
// stale entry before the interceptor gets a chance to read it).
func (r *Redis) Set(ctx context.Context, key string, entry Entry) error {
	valueJSON, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value: %w", err)
	}
	wire := wireEntry{Value: valueJSON, StoredAt: entry.StoredAt, ExpiresAt: entry.ExpiresAt, StaleUntil: entry.StaleUntil}
	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if !entry.StaleUntil.IsZero() {
		if staleTTL := time.Until(entry.StaleUntil); staleTTL > ttl {
			ttl = staleTTL
		}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return r.client.Set(ctx, r.keyFor(key), payload, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyFor(key)).Err()
}

// Clear removes every key under this store's prefix via SCAN, avoiding
// the blocking KEYS command on a shared Redis instance.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.keyFor(key)).Result()
	return n > 0, err
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var out []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			out = append(out, k[len(r.prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Stats returns hit/miss counters for observability endpoints.
func (r *Redis) Stats() map[string]interface{} {
	return map[string]interface{}{
		"hits":   atomic.LoadInt64(&r.hits),
		"misses": atomic.LoadInt64(&r.misses),
	}
}
