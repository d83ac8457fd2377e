package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forattini-dev/raffel/config"
	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/logging"
	"github.com/forattini-dev/raffel/registry"
	"github.com/forattini-dev/raffel/router"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	rtr := router.New(reg, nil)
	cfg := config.DefaultConfig().HTTP
	return New(cfg, reg, rtr), reg
}

func TestHandleProcedureReturnsResult(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Register("echo.say", &registry.HandlerDescriptor{
		Kind: registry.KindProcedure,
		Handler: registry.Handler{
			Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) {
				return map[string]interface{}{"echoed": payload}, nil
			},
		},
	}))

	body := bytes.NewBufferString(`{"hello":"world"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/echo.say", body)
	rec := httptest.NewRecorder()

	srv.handleProcedure(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]interface{}{"hello": "world"}, got["echoed"])
}

func TestHandleProcedureRejectsNonPost(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/echo.say", nil)
	rec := httptest.NewRecorder()

	srv.handleProcedure(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProcedureMapsNotFoundToStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/missing.proc", nil)
	rec := httptest.NewRecorder()

	srv.handleProcedure(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestHandleProcedurePropagatesHeadersToMetadata(t *testing.T) {
	srv, reg := newTestServer(t)
	var seenAuth string
	require.NoError(t, reg.Register("whoami.get", &registry.HandlerDescriptor{
		Kind: registry.KindProcedure,
		LocalInterceptors: []interceptor.Interceptor{
			func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
				seenAuth, _ = env.Get("authorization")
				return next(env, ctx)
			},
		},
		Handler: registry.Handler{
			Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) {
				return nil, nil
			},
		},
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/whoami.get", nil)
	req.Header.Set("Authorization", "Bearer token123")
	rec := httptest.NewRecorder()

	srv.handleProcedure(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer token123", seenAuth)
}

func TestHandleEventAcknowledgesWith202(t *testing.T) {
	srv, reg := newTestServer(t)
	delivered := make(chan struct{}, 1)
	require.NoError(t, reg.Register("orders.placed", &registry.HandlerDescriptor{
		Kind:              registry.KindEvent,
		DeliverySemantics: registry.AtMostOnce,
		Handler: registry.Handler{
			Event: func(ctx *envelope.Context, payload interface{}) error {
				delivered <- struct{}{}
				return nil
			},
		},
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/events/orders.placed", bytes.NewBufferString(`{"id":1}`))
	rec := httptest.NewRecorder()

	srv.handleEvent(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("event was never delivered")
	}
}

func TestHandleEventRejectsNonPost(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/events/orders.placed", nil)
	rec := httptest.NewRecorder()

	srv.handleEvent(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStreamEmitsSSEFrames(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Register("counter.tick", &registry.HandlerDescriptor{
		Kind: registry.KindStream,
		Handler: registry.Handler{
			Stream: func(ctx *envelope.Context, payload interface{}, emit func(interface{}) error) error {
				for i := 0; i < 3; i++ {
					if err := emit(i); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/streams/counter.tick", nil)
	rec := httptest.NewRecorder()

	srv.handleStream(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	var frames []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, frames, 5) // open + 3 data + close

	var open envelope.Envelope
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &open))
	assert.Equal(t, envelope.TypeStreamOpen, open.Type)

	var closeFrame envelope.Envelope
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-1]), &closeFrame))
	assert.Equal(t, envelope.TypeStreamClose, closeFrame.Type)
}

func TestStandardEndpointsServeHealthAndCapabilities(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Register("echo.say", &registry.HandlerDescriptor{
		Kind: registry.KindProcedure,
		Handler: registry.Handler{
			Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) { return nil, nil },
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/capabilities", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Capabilities []map[string]string `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Capabilities, 1)
	assert.Equal(t, "echo.say", got.Capabilities[0]["procedure"])
}

func TestCORSMiddlewareHandlesPreflight(t *testing.T) {
	cfg := config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"POST"},
	}
	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/echo.say", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareRejectsDisallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://trusted.com"}}
	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/echo.say", nil)
	req.Header.Set("Origin", "https://evil.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddlewareConvertsPanicTo500(t *testing.T) {
	handler := RecoveryMiddleware(logging.NoOp{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
