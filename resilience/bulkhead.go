package resilience

import (
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/rerrors"
)

// BulkheadConfig configures the bulkhead interceptor (spec §4.6 Bulkhead).
type BulkheadConfig struct {
	MaxConcurrent int
	MaxQueueSize  int
	QueueTimeout  time.Duration
	OnReject      func(procedure string)
	OnQueued      func(procedure string, queueLength int)
	OnDequeued    func(procedure string, waited time.Duration)
}

// Bulkhead caps the number of in-flight calls admitted through it,
// queuing excess callers FIFO up to MaxQueueSize and rejecting anything
// beyond that with RESOURCE_EXHAUSTED. A queued caller that waits longer
// than QueueTimeout is also rejected with RESOURCE_EXHAUSTED, without
// ever being admitted. Every admitted call releases its slot
// unconditionally via defer, even on panic recovery further up the
// chain.
func Bulkhead(cfg BulkheadConfig) interceptor.Interceptor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	slots := make(chan struct{}, cfg.MaxConcurrent)
	queueSize := cfg.MaxQueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	queue := make(chan struct{}, queueSize)

	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		select {
		case slots <- struct{}{}:
			// Fast path: a slot was free, no queueing needed.
			defer func() { <-slots }()
			return next(env, ctx)
		default:
		}

		select {
		case queue <- struct{}{}:
		default:
			if cfg.OnReject != nil {
				cfg.OnReject(env.Procedure)
			}
			return nil, rerrors.New(rerrors.ResourceExhausted, "bulkhead queue is full")
		}
		defer func() { <-queue }()

		if cfg.OnQueued != nil {
			cfg.OnQueued(env.Procedure, len(queue))
		}
		queuedAt := time.Now()

		var timeoutC <-chan time.Time
		if cfg.QueueTimeout > 0 {
			timer := time.NewTimer(cfg.QueueTimeout)
			defer timer.Stop()
			timeoutC = timer.C
		}

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			if cfg.OnDequeued != nil {
				cfg.OnDequeued(env.Procedure, time.Since(queuedAt))
			}
			return next(env, ctx)
		case <-timeoutC:
			return nil, rerrors.New(rerrors.ResourceExhausted, "timed out waiting in bulkhead queue")
		case <-ctx.Done():
			return nil, rerrors.New(rerrors.Cancelled, "bulkhead wait aborted: context cancelled")
		}
	}
}
