package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/forattini-dev/raffel/envelope"
)

// KeyGenerator computes the cache key for env. The default implements
// spec's fingerprint: procedure + canonical(payload) + selected headers.
type KeyGenerator func(env *envelope.Envelope) (string, error)

// DefaultFingerprint hashes procedure, the payload's canonical JSON form,
// and the values of headerKeys (read in a fixed, sorted order so header
// presentation order never changes the fingerprint). Grounded on the
// teacher's SimpleCache.hashPrompt (sha256, truncated hex digest).
func DefaultFingerprint(headerKeys []string) KeyGenerator {
	sortedKeys := append([]string(nil), headerKeys...)
	sort.Strings(sortedKeys)

	return func(env *envelope.Envelope) (string, error) {
		canonicalPayload, err := canonicalize(env.Payload)
		if err != nil {
			return "", fmt.Errorf("cache: failed to canonicalize payload: %w", err)
		}

		h := sha256.New()
		fmt.Fprintf(h, "%s\x00%s", env.Procedure, canonicalPayload)
		for _, k := range sortedKeys {
			v, _ := env.Get(k)
			fmt.Fprintf(h, "\x00%s=%s", k, v)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}
}

// canonicalize produces a stable JSON encoding of v: map keys are sorted
// by json.Marshal already (Go's encoding/json sorts map[string]any keys),
// so round-tripping through marshal is sufficient for canonical form.
func canonicalize(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// deepClone returns an independent copy of v via a JSON round-trip. This
// assumes cached payloads are JSON-serializable, true for every value
// that can have crossed an Envelope boundary in the first place.
func deepClone(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
