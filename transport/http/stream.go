package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

// sseSink writes each envelope as one Server-Sent Events frame: an
// `event: <envelope type>` line, then a `data: <envelope JSON>` line and
// a blank line, flushed immediately so the client
// observes stream:data frames as they're produced rather than buffered,
// per spec §6's SSE mapping.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(env *envelope.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		body, _ = json.Marshal(envelope.Envelope{
			ID: env.ID, Type: envelope.TypeError, Procedure: env.Procedure,
			Payload: rerrors.Wrap(rerrors.Internal, err, "failed to encode stream frame"),
		})
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", env.Type, body)
	s.flusher.Flush()
}

// handleStream serves GET /api/streams/{procedure}, running the stream
// handler to completion and emitting its stream:open/stream:data/
// stream:close envelopes as SSE frames (spec §6).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, rerrors.New(rerrors.InvalidArgument, "streams are opened with GET"))
		return
	}

	procedure := procedureFromPath(r.URL.Path, "/api/streams/")
	if procedure == "" {
		http.NotFound(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, rerrors.New(rerrors.Internal, "response writer does not support streaming"))
		return
	}

	var payload interface{}
	if raw := r.URL.Query().Get("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			writeError(w, rerrors.Wrap(rerrors.InvalidArgument, err, "payload query parameter is not valid JSON"))
			return
		}
	}

	req := newEnvelope(procedure, payload, r)

	goCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx := envelope.NewContext(goCtx, requestIDFrom(req))
	if d, ok := deadlineFromRequest(r); ok {
		defer ctx.WithTimeout(d)()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.rtr.DispatchStream(req, ctx, &sseSink{w: w, flusher: flusher})
}
