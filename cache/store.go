// Package cache implements the cache interceptor (spec §4.6 Cache /
// C7): fingerprinting, stale-while-revalidate lookup rules, single-flight
// coalescing of concurrent misses, and the pluggable CacheStore contract
// drivers implement. Grounded on the teacher's
// orchestration.RoutingCache / orchestration.SimpleCache (in-memory LRU
// shape) and core.SchemaCache / core.RedisSchemaCache (Redis-backed
// shape, stats counters).
package cache

import (
	"context"
	"time"
)

// Entry is what a CacheStore returns on Get: the cached value plus enough
// metadata for the interceptor to apply SWR rules (spec §3 CacheEntry).
type Entry struct {
	Value     interface{}
	StoredAt  time.Time
	ExpiresAt time.Time
	// StaleUntil, if non-zero, is the point after which even a
	// stale-while-revalidate read is treated as a full miss. A zero
	// StaleUntil means the entry is never served stale.
	StaleUntil time.Time
}

// Fresh reports whether e is still within its hard TTL.
func (e Entry) Fresh(now time.Time) bool { return now.Before(e.ExpiresAt) }

// Stale reports whether e is past its hard TTL but still within the SWR
// grace window.
func (e Entry) Stale(now time.Time) bool {
	return !e.Fresh(now) && !e.StaleUntil.IsZero() && now.Before(e.StaleUntil)
}

// Store is the pluggable cache-backend contract every driver implements.
// All operations are async (context-aware) so Redis-backed and other
// network drivers fit the same interface as the in-memory one. Get must
// return a value the caller can mutate freely (clone-on-get, spec §4.6).
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}
