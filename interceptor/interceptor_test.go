package interceptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forattini-dev/raffel/envelope"
)

func newCtxEnv(procedure string) (*envelope.Envelope, *envelope.Context) {
	env := envelope.New(procedure, nil, nil)
	ctx := envelope.NewContext(context.Background(), env.ID)
	return env, ctx
}

func recordingInterceptor(order *[]string, name string) Interceptor {
	return func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		*order = append(*order, name+":before")
		result, err := next(env, ctx)
		*order = append(*order, name+":after")
		return result, err
	}
}

func TestComposeRunsOuterToInner(t *testing.T) {
	var order []string
	chain := Compose(recordingInterceptor(&order, "a"), recordingInterceptor(&order, "b"))

	env, ctx := newCtxEnv("test.proc")
	_, _ = chain(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		order = append(order, "handler")
		return nil, nil
	})

	assert.Equal(t, []string{"a:before", "b:before", "handler", "b:after", "a:after"}, order)
}

func TestComposeWithNoInterceptorsCallsNextDirectly(t *testing.T) {
	chain := Compose()
	env, ctx := newCtxEnv("test.proc")
	result, err := chain(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) {
		return "direct", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "direct", result)
}

func TestWhenSkipsInnerWhenPredicateFalse(t *testing.T) {
	var ran bool
	ic := When(func(*envelope.Envelope, *envelope.Context) bool { return false }, func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		ran = true
		return next(env, ctx)
	})

	env, ctx := newCtxEnv("test.proc")
	_, _ = ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return "ok", nil })
	assert.False(t, ran)
}

func TestForPatternAppliesOnlyToMatchingProcedures(t *testing.T) {
	matcher := func(procedure, pattern string) bool { return procedure == "orders.create" && pattern == "orders.*" }
	var ran bool
	ic := ForPattern(matcher, "orders.*", func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		ran = true
		return next(env, ctx)
	})

	env, ctx := newCtxEnv("users.get")
	_, _ = ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return nil, nil })
	assert.False(t, ran)

	env2, ctx2 := newCtxEnv("orders.create")
	_, _ = ic(env2, ctx2, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return nil, nil })
	assert.True(t, ran)
}

func TestExceptSkipsNamedProcedures(t *testing.T) {
	var ran bool
	ic := Except([]string{"health.check"}, func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) {
		ran = true
		return next(env, ctx)
	})

	env, ctx := newCtxEnv("health.check")
	_, _ = ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return nil, nil })
	assert.False(t, ran)
}

func TestBranchSelectsBasedOnPredicate(t *testing.T) {
	onTrue := func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) { return "true-branch", nil }
	onFalse := func(env *envelope.Envelope, ctx *envelope.Context, next Next) (interface{}, error) { return "false-branch", nil }
	ic := Branch(func(*envelope.Envelope, *envelope.Context) bool { return true }, onTrue, onFalse)

	env, ctx := newCtxEnv("test.proc")
	result, _ := ic(env, ctx, func(env *envelope.Envelope, ctx *envelope.Context) (interface{}, error) { return nil, nil })
	assert.Equal(t, "true-branch", result)
}
