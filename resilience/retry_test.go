package resilience

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	ic := Retry(RetryConfig{
		MaxAttempts:  4,
		Strategy:     StrategyExponential,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	})

	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return nil, rerrors.New(rerrors.Unavailable, "transient")
		}
		return "ok", nil
	}

	env, ctx := newTestEnvelope("orders.create")
	result, err := ic(env, ctx, next)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "2", env.Metadata["x-retry-attempt"])
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	ic := Retry(RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	})

	var calls int32
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, rerrors.New(rerrors.Internal, "always fails")
	}

	env, ctx := newTestEnvelope("orders.create")
	_, err := ic(env, ctx, next)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryDoesNotRetryNonRetryableCode(t *testing.T) {
	ic := Retry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})

	var calls int32
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, rerrors.New(rerrors.InvalidArgument, "bad input")
	}

	env, ctx := newTestEnvelope("orders.create")
	_, err := ic(env, ctx, next)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryDecorrelatedStrategyStaysWithinBounds(t *testing.T) {
	for attempt := 1; attempt <= 5; attempt++ {
		cfg := RetryConfig{Strategy: StrategyDecorrelated, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second}
		d := nextDelay(cfg, attempt, 30*time.Millisecond)
		assert.GreaterOrEqual(t, d, cfg.InitialDelay)
	}
}

var _ interceptor.Interceptor = Retry(RetryConfig{})
