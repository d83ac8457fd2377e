package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/config"
	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/registry"
)

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewBuildsARouterThatDispatchesRegisteredHandlers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resilience.Timeout.Enabled = false
	cfg.Resilience.Retry.Enabled = false

	e, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Registry().Register("echo.say", &registry.HandlerDescriptor{
		Kind: registry.KindProcedure,
		Handler: registry.Handler{
			Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) {
				return payload, nil
			},
		},
	}))

	require.NoError(t, e.Start(context.Background()))
	defer e.Shutdown(context.Background())

	req := envelope.New("echo.say", "hi", nil)
	ctx := envelope.NewContext(context.Background(), req.ID)
	resp := e.Router().Dispatch(req, ctx)

	assert.Equal(t, envelope.TypeResponse, resp.Type)
	assert.Equal(t, "hi", resp.Payload)
}

func TestStartFreezesRegistryAgainstFurtherRegistration(t *testing.T) {
	cfg := config.DefaultConfig()
	e, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	defer e.Shutdown(context.Background())

	err = e.Registry().Register("late.add", &registry.HandlerDescriptor{
		Kind:    registry.KindProcedure,
		Handler: registry.Handler{Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) { return nil, nil }},
	})
	assert.Error(t, err)
}

func TestShutdownStopsDeliveryTrackerSweepWithoutPanicking(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dedup.TTL = 10 * time.Millisecond
	e, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestNewRejectsUnknownCacheDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Driver = "memcached"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewWiresRateLimitInterceptorWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Limit = 1
	cfg.RateLimit.Window = time.Minute

	e, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Registry().Register("limited.call", &registry.HandlerDescriptor{
		Kind: registry.KindProcedure,
		Handler: registry.Handler{
			Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) { return "ok", nil },
		},
	}))
	require.NoError(t, e.Start(context.Background()))
	defer e.Shutdown(context.Background())

	dispatch := func() *envelope.Envelope {
		req := envelope.New("limited.call", nil, map[string]string{"x-forwarded-for": "203.0.113.5"})
		ctx := envelope.NewContext(context.Background(), req.ID)
		return e.Router().Dispatch(req, ctx)
	}

	first := dispatch()
	assert.Equal(t, envelope.TypeResponse, first.Type)

	second := dispatch()
	assert.Equal(t, envelope.TypeError, second.Type)
}
