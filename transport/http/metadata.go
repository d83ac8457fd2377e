package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/forattini-dev/raffel/envelope"
)

// propagatedHeaders lists the inbound headers spec §6 copies onto
// envelope metadata, lowercased, for every request kind.
var propagatedHeaders = []string{
	"Authorization",
	"X-Request-Id",
	"X-Trace-Id",
	"Traceparent",
	"Tracestate",
}

// metadataFromRequest copies the headers spec §6 names into a fresh
// metadata map under their canonical names; newEnvelope's call to
// envelope.New lowercases the keys.
func metadataFromRequest(r *http.Request) map[string]string {
	meta := make(map[string]string, len(propagatedHeaders))
	for _, h := range propagatedHeaders {
		if v := r.Header.Get(h); v != "" {
			meta[h] = v
		}
	}
	return meta
}

// deadlineFromRequest reads the X-Deadline header (an epoch-ms
// timestamp) per spec §6 and returns the time remaining until it, or
// (0, true) when it has already passed. It returns (0, false) when the
// header is absent or unparseable.
func deadlineFromRequest(r *http.Request) (time.Duration, bool) {
	raw := r.Header.Get("X-Deadline")
	if raw == "" {
		return 0, false
	}
	epochMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	deadline := time.UnixMilli(epochMs)
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, true
	}
	return remaining, true
}

// newEnvelope builds a request Envelope for procedure, with metadata
// copied from r per spec §6's HTTP mapping.
func newEnvelope(procedure string, payload interface{}, r *http.Request) *envelope.Envelope {
	return envelope.New(procedure, payload, metadataFromRequest(r))
}
