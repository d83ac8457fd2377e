// Package http adapts Raffel's Router/Registry to HTTP, implementing the
// mapping from spec §6: a procedure `foo.bar` is exposed at
// `POST /api/foo.bar`, a stream at `GET /api/streams/foo.bar` (SSE), and
// an event at `POST /api/events/foo.bar` (202 Accepted). Grounded
// structurally on the teacher's core.BaseTool/core.BaseAgent Start/
// Shutdown lifecycle and its CORS/Recovery/Logging middleware stack.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/forattini-dev/raffel/config"
	"github.com/forattini-dev/raffel/logging"
	"github.com/forattini-dev/raffel/registry"
	"github.com/forattini-dev/raffel/router"
)

// Server is the HTTP adapter around a Router. It owns the net/http
// listener, the standard endpoints (/health, /api/capabilities), and the
// per-handler-kind request mapping described in spec §6.
type Server struct {
	cfg      config.HTTPConfig
	reg      *registry.Registry
	rtr      *router.Router
	logger   logging.Logger
	tracker  *router.DeliveryTracker
	eventCfg router.EventConfig

	serviceName string

	mux               *http.ServeMux
	registeredPattern map[string]bool

	mu     sync.Mutex
	server *http.Server
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger attaches a structured logger; calls are otherwise silent.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithEventConfig overrides the retry/dedup configuration DispatchEvent
// uses for events delivered through this adapter.
func WithEventConfig(cfg router.EventConfig) Option {
	return func(s *Server) { s.eventCfg = cfg }
}

// WithServiceName sets the name reported from /health.
func WithServiceName(name string) Option {
	return func(s *Server) { s.serviceName = name }
}

// WithTracker replaces the Server's default DeliveryTracker with one the
// caller already owns, so a single tracker (and its periodic Sweep) can
// be shared across every adapter dispatching events for this registry.
func WithTracker(t *router.DeliveryTracker) Option {
	return func(s *Server) { s.tracker = t }
}

// New builds a Server bound to reg/rtr using cfg's HTTP section. reg is
// used directly for capability listing; rtr must already be wired to the
// same registry.
func New(cfg config.HTTPConfig, reg *registry.Registry, rtr *router.Router, opts ...Option) *Server {
	s := &Server{
		cfg:               cfg,
		reg:               reg,
		rtr:               rtr,
		logger:            logging.NoOp{},
		tracker:           router.NewDeliveryTracker(),
		mux:               http.NewServeMux(),
		registeredPattern: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupStandardEndpoints()
	s.setupRoutes()
	return s
}

// setupRoutes registers the three dotted-procedure-name URL families
// from spec §6 as three fixed prefixes. The mux picks a handler by
// longest matching prefix; that handler then rejects a procedure whose
// registered Kind does not match it.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/streams/", s.handleStream)
	s.mux.HandleFunc("/api/events/", s.handleEvent)
	s.mux.HandleFunc("/api/", s.handleProcedure)
}

func (s *Server) setupStandardEndpoints() {
	s.addRoute("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": s.serviceName,
		})
	})

	s.addRoute("/api/capabilities", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		names := s.reg.Names()
		capabilities := make([]map[string]string, 0, len(names))
		for _, name := range names {
			desc, ok := s.reg.Lookup(name)
			if !ok {
				continue
			}
			capabilities = append(capabilities, map[string]string{
				"procedure": name,
				"kind":      string(desc.Kind),
			})
		}
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"capabilities": capabilities}); err != nil {
			s.logger.Error("failed to encode capabilities response", map[string]interface{}{"error": err.Error()})
		}
	})
}

func (s *Server) addRoute(pattern string, handler http.HandlerFunc) {
	if s.registeredPattern[pattern] {
		return
	}
	s.mux.HandleFunc(pattern, handler)
	s.registeredPattern[pattern] = true
}

// handler builds the full middleware chain — Recovery (innermost) wraps
// the mux, then Logging, then CORS when enabled, and otelhttp wraps the
// whole chain outermost — matching
// the teacher's Start() ordering comment "CORS -> Logging -> Recovery ->
// Handler" read as the order middleware is APPLIED (so CORS runs first
// on the way in).
func (s *Server) handler() http.Handler {
	var h http.Handler = s.mux
	h = RecoveryMiddleware(s.logger)(h)
	h = LoggingMiddleware(s.logger, false)(h)
	if s.cfg.CORS.Enabled {
		h = CORSMiddleware(s.cfg.CORS)(h)
	}
	return otelhttp.NewHandler(h, "raffel.http")
}

// Start builds the listener and serves until Shutdown is called or the
// server fails to bind. It blocks, like net/http.Server.ListenAndServe.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", map[string]interface{}{
		"address": addr,
		"cors":    s.cfg.CORS.Enabled,
	})

	if s.cfg.TLS.Enabled {
		err := srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server", nil)
	return srv.Shutdown(ctx)
}

// Tracker returns the adapter's DeliveryTracker so an owning engine can
// sweep it on a periodic timer (spec §5's stoppable-timer discipline).
func (s *Server) Tracker() *router.DeliveryTracker { return s.tracker }

// Handler exposes the fully-wrapped http.Handler for embedding in a
// caller-owned *http.Server (e.g. one multiplexed with other protocols),
// bypassing Start/Shutdown's own net/http.Server lifecycle.
func (s *Server) Handler() http.Handler { return s.handler() }

// procedureFromPath strips prefix from r.URL.Path, leaving the dotted
// procedure name spec §6 maps URL segments to.
func procedureFromPath(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
