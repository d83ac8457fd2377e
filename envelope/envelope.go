// Package envelope defines the universal in-process request carrier that
// flows through every Raffel adapter, the router, and the interceptor
// chain. An Envelope is the one shape every wire protocol is translated
// into and out of.
package envelope

import (
	"strings"

	"github.com/google/uuid"
)

// Type is the envelope's position in the stream state machine (spec §4.4).
type Type string

const (
	TypeRequest     Type = "request"
	TypeResponse    Type = "response"
	TypeError       Type = "error"
	TypeEvent       Type = "event"
	TypeStreamOpen  Type = "stream:open"
	TypeStreamData  Type = "stream:data"
	TypeStreamClose Type = "stream:close"
)

// Envelope is the immutable-by-convention carrier passed through the
// interceptor chain. Fields are exported for adapter construction, but
// once handed to the Router, interceptors must treat Metadata as the only
// mutable surface (writing retry counters, trace ids, etc.) — Payload and
// Procedure are not rewritten mid-chain.
type Envelope struct {
	ID        string
	Type      Type
	Procedure string
	Payload   interface{}
	Metadata  map[string]string
	Context   *Context
}

// New builds a request Envelope with a fresh, high-entropy ID and a
// lowercase-normalized metadata map, per spec §4.1.
func New(procedure string, payload interface{}, metadata map[string]string) *Envelope {
	return &Envelope{
		ID:        NewID(),
		Type:      TypeRequest,
		Procedure: procedure,
		Payload:   payload,
		Metadata:  NormalizeMetadata(metadata),
	}
}

// NewID returns a new request-unique identifier with at least 16 chars of
// entropy, satisfying the Envelope.id invariant in spec §3.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NormalizeMetadata returns a copy of m with all keys lowercased, since
// spec §3 requires metadata keys be compared case-insensitively.
func NormalizeMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Get reads a metadata value by case-insensitive key.
func (e *Envelope) Get(key string) (string, bool) {
	if e.Metadata == nil {
		return "", false
	}
	v, ok := e.Metadata[strings.ToLower(key)]
	return v, ok
}

// Set writes a metadata value under a lowercased key.
func (e *Envelope) Set(key, value string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[strings.ToLower(key)] = value
}

// Response builds the success response Envelope for this request,
// preserving id/procedure per spec §4.4 "Response construction".
func (e *Envelope) Response(payload interface{}) *Envelope {
	return &Envelope{
		ID:        e.ID,
		Type:      TypeResponse,
		Procedure: e.Procedure,
		Payload:   payload,
		Metadata:  e.Metadata,
		Context:   e.Context,
	}
}

// ErrorEnvelope builds the error response Envelope for this request.
// payload is expected to be the {code, message, details?} shape; callers
// use rerrors.Error marshaled by the router's translation step.
func (e *Envelope) ErrorEnvelope(payload interface{}) *Envelope {
	return &Envelope{
		ID:        e.ID,
		Type:      TypeError,
		Procedure: e.Procedure,
		Payload:   payload,
		Metadata:  e.Metadata,
		Context:   e.Context,
	}
}

// Clone returns a shallow copy with an independent Metadata map so
// retries can mutate x-retry-attempt without affecting earlier attempts'
// observers.
func (e *Envelope) Clone() *Envelope {
	metaCopy := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		metaCopy[k] = v
	}
	clone := *e
	clone.Metadata = metaCopy
	return &clone
}
