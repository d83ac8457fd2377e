package router

import (
	"math"
	"sync"
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/registry"
	"github.com/forattini-dev/raffel/rerrors"
)

// EventConfig configures the event-dispatch retry/dedup behavior.
type EventConfig struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	// DedupRetention bounds how long a delivered event id is remembered
	// for ExactlyOnce dedup before it is forgotten (spec §4.4).
	DedupRetention time.Duration
	OnDeliveryFailed func(procedure, eventID string, attempt int, err error)
}

// DeliveryTracker remembers recently-delivered event ids for ExactlyOnce
// handlers, pruning entries past DedupRetention. Exported so an engine
// can own one instance per Router and reuse it across DispatchEvent
// calls — without that, ExactlyOnce dedup would only ever see a single
// call's empty tracker and never actually deduplicate anything.
type DeliveryTracker struct {
	mu        sync.Mutex
	delivered map[string]time.Time
}

// NewDeliveryTracker builds an empty DeliveryTracker.
func NewDeliveryTracker() *DeliveryTracker {
	return &DeliveryTracker{delivered: make(map[string]time.Time)}
}

func (d *DeliveryTracker) seen(id string, retention time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	deliveredAt, ok := d.delivered[id]
	return ok && deliveredAt.After(retention)
}

func (d *DeliveryTracker) mark(id string) {
	d.mu.Lock()
	d.delivered[id] = time.Now()
	d.mu.Unlock()
}

// Sweep drops entries older than retention. Callers run this on a
// periodic timer so ExactlyOnce dedup memory doesn't grow unbounded.
func (d *DeliveryTracker) Sweep(retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, at := range d.delivered {
		if at.Before(cutoff) {
			delete(d.delivered, id)
		}
	}
}

// DispatchEvent acknowledges synchronously (the call to DispatchEvent
// itself returns as soon as the event envelope is validated and accepted
// for delivery) and delivers asynchronously per the handler's
// DeliverySemantics:
//   - AtMostOnce: one attempt, failures are dropped.
//   - AtLeastOnce: retried with backoff until MaxAttempts; each failed
//     attempt is reported to cfg.OnDeliveryFailed.
//   - ExactlyOnce: same as AtLeastOnce, plus id-based dedup so a handler
//     already known to have processed this event id is skipped.
func (r *Router) DispatchEvent(req *envelope.Envelope, ctx *envelope.Context, cfg EventConfig, tracker *DeliveryTracker) error {
	desc, ok := r.reg.Lookup(req.Procedure)
	if !ok {
		return rerrors.Newf(rerrors.NotFound, "no handler registered for procedure %q", req.Procedure)
	}
	if desc.Kind != registry.KindEvent {
		return rerrors.Newf(rerrors.InvalidArgument, "procedure %q is not an event handler", req.Procedure)
	}
	if deadlineExpired(ctx) {
		return rerrors.New(rerrors.DeadlineExceeded, "deadline already passed before dispatch")
	}

	if desc.ValidateInput != nil {
		if err := desc.ValidateInput(req.Payload); err != nil {
			return rerrors.Wrap(rerrors.InvalidArgument, err, "input validation failed")
		}
	}

	if desc.DeliverySemantics == registry.ExactlyOnce && tracker != nil {
		retention := cfg.DedupRetention
		if retention <= 0 {
			retention = 24 * time.Hour
		}
		if tracker.seen(req.ID, time.Now().Add(-retention)) {
			return nil
		}
	}

	chain := r.effectiveChain(desc)
	terminal := func(env *envelope.Envelope, c *envelope.Context) (interface{}, error) {
		return nil, desc.Handler.Event(c, env.Payload)
	}

	go deliverAsync(desc, chain, req, ctx, cfg, tracker, terminal)
	return nil
}

func deliverAsync(desc *registry.HandlerDescriptor, chain *interceptor.Chain, req *envelope.Envelope, ctx *envelope.Context, cfg EventConfig, tracker *DeliveryTracker, terminal interceptor.Next) {
	maxAttempts := cfg.MaxAttempts
	if desc.DeliverySemantics == registry.AtMostOnce {
		maxAttempts = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := chain.Execute(req, ctx, terminal)
		if err == nil {
			if desc.DeliverySemantics == registry.ExactlyOnce && tracker != nil {
				tracker.mark(req.ID)
			}
			return
		}
		lastErr = err
		if cfg.OnDeliveryFailed != nil {
			cfg.OnDeliveryFailed(req.Procedure, req.ID, attempt, err)
		}
		if attempt == maxAttempts {
			break
		}
		delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
	_ = lastErr
}
