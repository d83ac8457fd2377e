package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/rerrors"
)

// errorBody is the wire shape spec §6 defines for an error response.
type errorBody struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryAfter string                 `json:"retryAfter,omitempty"`
}

// handleProcedure serves POST /api/{procedure}, mapping a unary call per
// spec §6. Streams and events are routed to their own handlers before
// this one ever sees the request (setupRoutes registers the more
// specific prefixes first).
func (s *Server) handleProcedure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, rerrors.New(rerrors.InvalidArgument, "procedures are invoked with POST"))
		return
	}

	procedure := procedureFromPath(r.URL.Path, "/api/")
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
	goCtx, cancel := s.requestContext(r)
	defer cancel()

	ctx := envelope.NewContext(goCtx, requestIDFrom(req))
	if d, ok := deadlineFromRequest(r); ok {
		defer ctx.WithTimeout(d)()
	}

	resp := s.rtr.Dispatch(req, ctx)

	if resp.Type == envelope.TypeError {
		writeEnvelopeError(w, resp)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp.Payload)
}

func (s *Server) maxBodyBytes() int64 {
	if s.cfg.BodyLimit > 0 {
		return s.cfg.BodyLimit
	}
	return 1 << 20
}

// requestContext derives a cancellation scope from r.Context(), used as
// the Go-level parent for the envelope.Context the router dispatches
// against — closing the client connection cancels the whole chain.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithCancel(r.Context())
}

func requestIDFrom(env *envelope.Envelope) string {
	if id, ok := env.Get("x-request-id"); ok && id != "" {
		return id
	}
	return env.ID
}

func writeEnvelopeError(w http.ResponseWriter, env *envelope.Envelope) {
	rerr, ok := env.Payload.(*rerrors.Error)
	if !ok {
		writeError(w, rerrors.New(rerrors.Internal, "unknown error"))
		return
	}
	writeError(w, rerr)
}

func writeError(w http.ResponseWriter, err *rerrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rerrors.HTTPStatus(err.Code))
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:       string(err.Code),
		Message:    err.Message,
		Details:    err.Details,
		RetryAfter: err.RetryAfter,
	})
}
