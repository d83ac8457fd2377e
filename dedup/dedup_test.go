package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forattini-dev/raffel/envelope"
)

func TestDedupCoalescesConcurrentCalls(t *testing.T) {
	ic := Interceptor(Config{TTL: time.Second})

	var calls int32
	release := make(chan struct{})
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			env := envelope.New("payments.charge", map[string]string{"amount": "10"}, nil)
			ctx := envelope.NewContext(context.Background(), env.ID)
			_, _ = ic(env, ctx, next)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDedupReexecutesAfterTTLExpires(t *testing.T) {
	ic := Interceptor(Config{TTL: 10 * time.Millisecond})

	var calls int32
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "result", nil
	}

	env := envelope.New("payments.charge", map[string]string{"amount": "10"}, nil)
	ctx := envelope.NewContext(context.Background(), env.ID)
	_, _ = ic(env, ctx, next)

	time.Sleep(30 * time.Millisecond)

	env2 := envelope.New("payments.charge", map[string]string{"amount": "10"}, nil)
	ctx2 := envelope.NewContext(context.Background(), env2.ID)
	_, _ = ic(env2, ctx2, next)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
