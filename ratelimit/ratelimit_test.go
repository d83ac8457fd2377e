package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

// newCtxEnv gives every request the same x-forwarded-for address, so the
// default key puts calls from one test into one bucket.
func newCtxEnv(procedure string) (*envelope.Envelope, *envelope.Context) {
	env := envelope.New(procedure, nil, map[string]string{"x-forwarded-for": "198.51.100.7"})
	ctx := envelope.NewContext(context.Background(), env.ID)
	return env, ctx
}

func TestRateLimitAllowsWithinLimit(t *testing.T) {
	ic := Interceptor(Config{Driver: NewMemory(), Limit: 3, Window: time.Second})
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return "ok", nil }

	for i := 0; i < 3; i++ {
		env, ctx := newCtxEnv("orders.create")
		result, err := ic(env, ctx, next)
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	ic := Interceptor(Config{Driver: NewMemory(), Limit: 2, Window: time.Second})
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return "ok", nil }

	for i := 0; i < 2; i++ {
		env, ctx := newCtxEnv("orders.create")
		_, err := ic(env, ctx, next)
		require.NoError(t, err)
	}

	env, ctx := newCtxEnv("orders.create")
	_, err := ic(env, ctx, next)
	require.Error(t, err)
	assert.Equal(t, rerrors.RateLimited, rerrors.CodeOf(err))
}

func TestRateLimitPatternRuleOverridesDefault(t *testing.T) {
	ic := Interceptor(Config{
		Driver: NewMemory(),
		Limit:  100,
		Window: time.Second,
		Rules:  []Rule{{Pattern: "admin.*", Limit: 1, Window: time.Second}},
		Matcher: func(procedure, pattern string) bool {
			return procedure == "admin.purge"
		},
	})
	next := func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return "ok", nil }

	env, ctx := newCtxEnv("admin.purge")
	_, err := ic(env, ctx, next)
	require.NoError(t, err)

	env2, ctx2 := newCtxEnv("admin.purge")
	_, err = ic(env2, ctx2, next)
	require.Error(t, err)
}

func TestDefaultKeyPrefersAuthPrincipal(t *testing.T) {
	env, ctx := newCtxEnv("whoami")
	ctx.SetAuth(&envelope.AuthInfo{Principal: "user-42"})
	assert.Equal(t, "user-42", DefaultKey(env, ctx))
}
