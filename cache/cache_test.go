package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/envelope"
)

func newCtxEnv(procedure string, payload interface{}) (*envelope.Envelope, *envelope.Context) {
	env := envelope.New(procedure, payload, nil)
	ctx := envelope.NewContext(context.Background(), env.ID)
	return env, ctx
}

func TestCacheHitAvoidsCallingNext(t *testing.T) {
	store := NewMemory(MemoryOptions{})
	ic := Interceptor(Config{Store: store, TTL: time.Minute})

	var calls int32
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "computed", nil
	}

	env, ctx := newCtxEnv("search.query", map[string]string{"q": "go"})
	result, err := ic(env, ctx, next)
	require.NoError(t, err)
	assert.Equal(t, "computed", result)

	env2, ctx2 := newCtxEnv("search.query", map[string]string{"q": "go"})
	result2, err := ic(env2, ctx2, next)
	require.NoError(t, err)
	assert.Equal(t, "computed", result2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheSingleFlightCoalescesConcurrentMisses(t *testing.T) {
	store := NewMemory(MemoryOptions{})
	ic := Interceptor(Config{Store: store, TTL: time.Minute})

	var calls int32
	release := make(chan struct{})
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "computed", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			env, ctx := newCtxEnv("search.query", map[string]string{"q": "same"})
			r, _ := ic(env, ctx, next)
			results[i] = r
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "computed", r)
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemory(MemoryOptions{MaxEntries: 2})
	ctx := context.Background()

	_ = store.Set(ctx, "a", Entry{Value: 1, ExpiresAt: time.Now().Add(time.Minute)})
	_ = store.Set(ctx, "b", Entry{Value: 2, ExpiresAt: time.Now().Add(time.Minute)})
	_, _, _ = store.Get(ctx, "a") // touch a, making b the LRU victim
	_ = store.Set(ctx, "c", Entry{Value: 3, ExpiresAt: time.Now().Add(time.Minute)})

	_, foundA, _ := store.Get(ctx, "a")
	_, foundB, _ := store.Get(ctx, "b")
	_, foundC, _ := store.Get(ctx, "c")
	assert.True(t, foundA)
	assert.False(t, foundB)
	assert.True(t, foundC)
}

func TestCacheStaleWhileRevalidateReturnsStaleImmediately(t *testing.T) {
	store := NewMemory(MemoryOptions{})
	ic := Interceptor(Config{Store: store, TTL: 10 * time.Millisecond, StaleWindow: time.Second, RevalidateTimeout: time.Second})

	var calls int32
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "v1", nil
		}
		return "v2", nil
	}

	env, ctx := newCtxEnv("feed.latest", nil)
	result, err := ic(env, ctx, next)
	require.NoError(t, err)
	assert.Equal(t, "v1", result)

	time.Sleep(20 * time.Millisecond) // now expired but within stale window

	env2, ctx2 := newCtxEnv("feed.latest", nil)
	start := time.Now()
	result2, err := ic(env2, ctx2, next)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, "v1", result2, "stale read must return immediately without waiting on revalidation")
	assert.Less(t, elapsed, 50*time.Millisecond)
}
