// Package registry maps dotted procedure names to handler descriptors,
// the way the teacher's core.Registry/core.Discovery interfaces map
// service names to ServiceInfo, generalized here to Raffel's
// procedure/stream/event handler kinds (spec §4.3).
package registry

import (
	"sync"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

// Kind distinguishes the three handler shapes a descriptor may carry.
type Kind string

const (
	KindProcedure Kind = "procedure"
	KindStream    Kind = "stream"
	KindEvent     Kind = "event"
)

// DeliverySemantics governs event-handler retry behavior (spec §4.4).
type DeliverySemantics string

const (
	AtMostOnce  DeliverySemantics = "at-most-once"
	AtLeastOnce DeliverySemantics = "at-least-once"
	ExactlyOnce DeliverySemantics = "exactly-once"
)

// Handler is the tagged-union payload a descriptor wraps. Exactly one of
// Procedure/Stream/Event is non-nil, matching Kind.
type Handler struct {
	// Procedure handlers are unary: one request envelope in, one result
	// (or error) out.
	Procedure func(ctx *envelope.Context, payload interface{}) (interface{}, error)

	// Stream handlers produce a lazy sequence: each call to emit sends
	// one stream:data envelope payload. The handler returns when the
	// producer is done or the context is cancelled.
	Stream func(ctx *envelope.Context, payload interface{}, emit func(interface{}) error) error

	// Event handlers acknowledge synchronously; delivery happens in the
	// background per DeliverySemantics.
	Event func(ctx *envelope.Context, payload interface{}) error
}

// HandlerDescriptor is the immutable-after-registration record the
// Registry owns for each procedure name (spec §3).
type HandlerDescriptor struct {
	Name               string
	Kind               Kind
	Handler            Handler
	LocalInterceptors  []interceptor.Interceptor
	DeliverySemantics  DeliverySemantics
	ValidateInput      func(payload interface{}) error
	ValidateOutput     func(result interface{}) error

	// chain is built by the Router on this descriptor's first dispatch
	// and cached; it is populated there, not here, because the
	// global/pattern interceptor set lives one level up. It is not
	// rebuilt when interceptors are added to the Router afterwards.
	chain interface{}
}

// SetChain stores the Router's precomputed chain for this descriptor.
func (d *HandlerDescriptor) SetChain(c interface{}) { d.chain = c }

// Chain returns the Router's precomputed chain, or nil if not yet built.
func (d *HandlerDescriptor) Chain() interface{} { return d.chain }

// Registry is write-once/read-many: after the owning engine calls Start(),
// no further Register calls are permitted (spec §5 locking discipline).
// Registration itself is guarded by a mutex; Lookup is lock-free-friendly
// via sync.RWMutex and O(1) map access.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*HandlerDescriptor
	patterns *PatternMatcher
	started  bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]*HandlerDescriptor),
		patterns: NewPatternMatcher(),
	}
}

// Register adds a descriptor under name. Returns ALREADY_EXISTS on
// duplicate registration, or an internal error once the registry has
// been started (write-once/read-many, spec §5).
func (r *Registry) Register(name string, desc *HandlerDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return rerrors.New(rerrors.Internal, "registry: cannot register after start()")
	}
	if _, exists := r.handlers[name]; exists {
		return rerrors.Newf(rerrors.AlreadyExists, "procedure %q already registered", name)
	}
	desc.Name = name
	r.handlers[name] = desc
	return nil
}

// Lookup returns the descriptor for name, or (nil, false) if absent.
// O(1) map access, per spec §4.3.
func (r *Registry) Lookup(name string) (*HandlerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.handlers[name]
	return d, ok
}

// Start freezes the registry against further registration.
func (r *Registry) Start() {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
}

// Names returns every registered procedure name, sorted is not
// guaranteed — callers needing stable order should sort themselves.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	return out
}

// Matches reports whether pattern matches procedure under the registry's
// glob language (`*` = one dotted segment, `**` = any suffix), with
// compiled patterns memoized (spec §4.3).
func (r *Registry) Matches(procedure, pattern string) bool {
	return r.patterns.Match(procedure, pattern)
}

// Mount copies every handler from sub into r with name prefixed by
// prefix + ".". Sub-registry handlers keep their own local interceptors;
// only the public name changes.
func (r *Registry) Mount(prefix string, sub *Registry) error {
	sub.mu.RLock()
	names := make([]string, 0, len(sub.handlers))
	descs := make([]*HandlerDescriptor, 0, len(sub.handlers))
	for name, d := range sub.handlers {
		names = append(names, name)
		descs = append(descs, d)
	}
	sub.mu.RUnlock()

	for i, name := range names {
		mounted := *descs[i]
		if err := r.Register(prefix+"."+name, &mounted); err != nil {
			return err
		}
	}
	return nil
}
