package router

import (
	"sync"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/registry"
	"github.com/forattini-dev/raffel/rerrors"
)

// StreamSink receives the envelopes a stream call produces: one
// stream:open, zero or more stream:data, and exactly one stream:close
// (spec §4.4's stream state machine). Adapters implement this to push
// frames onto whatever wire transport they speak (SSE, WebSocket, gRPC).
type StreamSink interface {
	Send(env *envelope.Envelope)
}

// DispatchStream resolves req against the registry and runs a stream
// handler to completion, emitting stream:open immediately, one
// stream:data envelope per emitted value, and exactly one stream:close
// at the end — idempotently: the close is guarded by a sync.Once, so
// cancellation forces stream:close with CANCELLED exactly once and the
// handler finishing afterwards adds no second close. A panic in the
// handler is not recovered.
func (r *Router) DispatchStream(req *envelope.Envelope, ctx *envelope.Context, sink StreamSink) {
	desc, ok := r.reg.Lookup(req.Procedure)
	if !ok {
		sink.Send(req.ErrorEnvelope(rerrors.Newf(rerrors.NotFound, "no handler registered for procedure %q", req.Procedure)))
		return
	}
	if desc.Kind != registry.KindStream {
		sink.Send(req.ErrorEnvelope(rerrors.Newf(rerrors.InvalidArgument, "procedure %q is not a stream handler", req.Procedure)))
		return
	}
	if deadlineExpired(ctx) {
		sink.Send(req.ErrorEnvelope(rerrors.New(rerrors.DeadlineExceeded, "deadline already passed before dispatch")))
		return
	}

	var closeOnce sync.Once
	closeStream := func(payload interface{}, envType envelope.Type) {
		closeOnce.Do(func() {
			sink.Send(&envelope.Envelope{
				ID:        req.ID,
				Type:      envType,
				Procedure: req.Procedure,
				Payload:   payload,
				Metadata:  req.Metadata,
				Context:   req.Context,
			})
		})
	}

	chain := r.effectiveChain(desc)

	openEnv := &envelope.Envelope{
		ID: req.ID, Type: envelope.TypeStreamOpen, Procedure: req.Procedure, Metadata: req.Metadata, Context: req.Context,
	}
	sink.Send(openEnv)

	emit := func(value interface{}) error {
		select {
		case <-ctx.Done():
			return rerrors.New(rerrors.Cancelled, "stream cancelled")
		default:
		}
		sink.Send(&envelope.Envelope{
			ID: req.ID, Type: envelope.TypeStreamData, Procedure: req.Procedure, Payload: value, Metadata: req.Metadata, Context: req.Context,
		})
		return nil
	}

	terminal := func(env *envelope.Envelope, c *envelope.Context) (interface{}, error) {
		if desc.ValidateInput != nil {
			if err := desc.ValidateInput(env.Payload); err != nil {
				return nil, rerrors.Wrap(rerrors.InvalidArgument, err, "input validation failed")
			}
		}
		return nil, desc.Handler.Stream(c, env.Payload, emit)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := chain.Execute(req, ctx, terminal)
		if err != nil {
			closeStream(translate(err), envelope.TypeStreamClose)
			return
		}
		closeStream(nil, envelope.TypeStreamClose)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		closeStream(rerrors.New(rerrors.Cancelled, "stream cancelled"), envelope.TypeStreamClose)
	}
}
