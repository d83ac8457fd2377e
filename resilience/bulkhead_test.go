package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

func TestBulkheadRejectsWhenQueueFull(t *testing.T) {
	ic := Bulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 1, QueueTimeout: time.Second})

	release := make(chan struct{})
	blocking := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		<-release
		return "done", nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		env, ctx := newTestEnvelope("heavy.job")
		_, _ = ic(env, ctx, blocking)
	}()
	go func() {
		defer wg.Done()
		env, ctx := newTestEnvelope("heavy.job")
		_, _ = ic(env, ctx, blocking)
	}()
	time.Sleep(20 * time.Millisecond) // let both occupy slot + queue

	env, ctx := newTestEnvelope("heavy.job")
	_, err := ic(env, ctx, blocking)
	require.Error(t, err)
	assert.Equal(t, rerrors.ResourceExhausted, rerrors.CodeOf(err))

	close(release)
	wg.Wait()
}

func TestBulkheadQueueTimeout(t *testing.T) {
	ic := Bulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 2, QueueTimeout: 10 * time.Millisecond})

	release := make(chan struct{})
	blocking := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		<-release
		return "done", nil
	}

	go func() {
		env, ctx := newTestEnvelope("slow.job")
		_, _ = ic(env, ctx, blocking)
	}()
	time.Sleep(10 * time.Millisecond)

	env, ctx := newTestEnvelope("slow.job")
	_, err := ic(env, ctx, blocking)
	require.Error(t, err)
	assert.Equal(t, rerrors.ResourceExhausted, rerrors.CodeOf(err))

	close(release)
}
