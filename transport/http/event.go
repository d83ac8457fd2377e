package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

// handleEvent serves POST /api/events/{procedure}: the call acknowledges
// synchronously with 202 Accepted as soon as the event is validated and
// handed to the router, per spec §6's event mapping. Delivery itself
// happens in the background according to the handler's DeliverySemantics.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, rerrors.New(rerrors.InvalidArgument, "events are published with POST"))
		return
	}

	procedure := procedureFromPath(r.URL.Path, "/api/events/")
	if procedure == "" {
		http.NotFound(w, r)
		return
	}

	var payload interface{}
	if r.Body != nil {
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes()))
		if err != nil {
			writeError(w, rerrors.Wrap(rerrors.InvalidArgument, err, "failed to read request body"))
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil {
				writeError(w, rerrors.Wrap(rerrors.InvalidArgument, err, "request body is not valid JSON"))
				return
			}
		}
	}

	req := newEnvelope(procedure, payload, r)

	// Background delivery must outlive this request's connection, so the
	// envelope.Context wraps context.Background() rather than r.Context().
	goCtx := context.Background()
	ctx := envelope.NewContext(goCtx, requestIDFrom(req))

	if err := s.rtr.DispatchEvent(req, ctx, s.eventCfg, s.tracker); err != nil {
		if rerr, ok := err.(*rerrors.Error); ok {
			writeError(w, rerr)
			return
		}
		writeError(w, rerrors.Wrap(rerrors.Internal, err, "failed to accept event"))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
