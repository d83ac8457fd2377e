package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

func TestFallbackRecoversWithStaticResponse(t *testing.T) {
	ic := Fallback(FallbackConfig{StaticResponse: map[string]bool{"degraded": true}})

	env, ctx := newTestEnvelope("recs.fetch")
	result, err := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		return nil, rerrors.New(rerrors.Unavailable, "recs service down")
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"degraded": true}, result)
}

func TestFallbackHonorsShouldFallbackPredicate(t *testing.T) {
	ic := Fallback(FallbackConfig{
		ShouldFallback: func(err error) bool { return rerrors.CodeOf(err) == rerrors.Unavailable },
		StaticResponse: "fallback",
	})

	env, ctx := newTestEnvelope("recs.fetch")
	_, err := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		return nil, rerrors.New(rerrors.InvalidArgument, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, rerrors.InvalidArgument, rerrors.CodeOf(err))
}

func TestFallbackHandlerTakesPrecedence(t *testing.T) {
	ic := Fallback(FallbackConfig{
		Handler: func(ctx *envelope.Context, err error) (interface{}, error) {
			return "handled:" + string(rerrors.CodeOf(err)), nil
		},
		StaticResponse: "ignored",
	})

	env, ctx := newTestEnvelope("recs.fetch")
	result, err := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		return nil, rerrors.New(rerrors.Unavailable, "down")
	})
	require.NoError(t, err)
	assert.Equal(t, "handled:UNAVAILABLE", result)
}
