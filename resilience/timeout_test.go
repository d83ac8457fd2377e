package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

func TestTimeoutFiresBeforeHandlerCompletes(t *testing.T) {
	ic := Timeout(TimeoutConfig{Duration: 20 * time.Millisecond})

	env, ctx := newTestEnvelope("slow.proc")
	start := time.Now()
	_, err := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return "too late", nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, rerrors.DeadlineExceeded, rerrors.CodeOf(err))
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestTimeoutPassesThroughFastCalls(t *testing.T) {
	ic := Timeout(TimeoutConfig{Duration: 50 * time.Millisecond})

	env, ctx := newTestEnvelope("fast.proc")
	result, err := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestTimeoutZeroDurationIsNoOp(t *testing.T) {
	ic := Timeout(TimeoutConfig{})
	env, ctx := newTestEnvelope("any.proc")
	result, err := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
