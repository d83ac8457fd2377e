// Package resilience implements the interceptors covering timeout, retry,
// circuit breaking, bulkheading, and fallback described in spec §4.6.
// The circuit breaker's sliding-window failure accounting and half-open
// admission control are grounded on the teacher's
// github.com/itsneelabh/gomind resilience.CircuitBreaker, generalized
// here to per-procedure state managed by a Manager instead of one
// breaker per process, and to the spec's simple failureThreshold/
// windowMs/resetTimeoutMs/successThreshold configuration instead of the
// teacher's error-rate-over-volume-threshold model.
package resilience

import (
	"sync"
	"time"

	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/interceptor"
	"github.com/forattini-dev/raffel/logging"
	"github.com/forattini-dev/raffel/metrics"
	"github.com/forattini-dev/raffel/rerrors"
)

// State is one of the circuit breaker's three admission states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// CircuitBreakerConfig configures one per-procedure circuit (spec §4.6).
type CircuitBreakerConfig struct {
	FailureThreshold int
	WindowMs         int64
	ResetTimeoutMs   int64
	SuccessThreshold int
	// FailureCodes overrides the default failure-counted code set
	// (rerrors.DefaultFailureCounted) when non-nil.
	FailureCodes   map[rerrors.Code]bool
	OnStateChange  func(procedure string, state State)
	Logger         logging.Logger
}

func (c *CircuitBreakerConfig) countsAsFailure(code rerrors.Code) bool {
	if c.FailureCodes != nil {
		return c.FailureCodes[code]
	}
	return rerrors.DefaultFailureCounted(code)
}

// circuitState is the mutable per-procedure record (spec §3 CircuitState).
type circuitState struct {
	mu           sync.Mutex
	state        State
	failures     []int64 // unix-ms timestamps within the sliding window
	successCount int
	openedAt     int64
	probing      bool // a half-open probe is in flight
}

// Manager owns one circuitState per procedure name, created lazily and
// destroyed only at shutdown (spec §3).
type Manager struct {
	cfg    CircuitBreakerConfig
	mu     sync.RWMutex
	states map[string]*circuitState
}

// NewManager builds a circuit breaker manager for cfg. Forbidden zero
// values fall back to sane defaults so a zero-value CircuitBreakerConfig
// still behaves (trips after 5 failures in 30s, reopens after 30s, and
// needs 1 success to close).
func NewManager(cfg CircuitBreakerConfig) *Manager {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = 30_000
	}
	if cfg.ResetTimeoutMs <= 0 {
		cfg.ResetTimeoutMs = 30_000
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOp{}
	}
	return &Manager{cfg: cfg, states: make(map[string]*circuitState)}
}

func (m *Manager) stateFor(procedure string) *circuitState {
	m.mu.RLock()
	s, ok := m.states[procedure]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.states[procedure]; ok {
		return s
	}
	s = &circuitState{state: Closed}
	m.states[procedure] = s
	return s
}

// GetStates returns a snapshot of every known procedure's current state.
func (m *Manager) GetStates() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.states))
	for name, s := range m.states {
		s.mu.Lock()
		out[name] = s.state
		s.mu.Unlock()
	}
	return out
}

// ResetAll force-closes every known circuit and clears its counters.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.states {
		s.mu.Lock()
		s.state = Closed
		s.failures = nil
		s.successCount = 0
		s.mu.Unlock()
	}
}

// ForceState overrides procedure's state manually (operational escape
// hatch; bypasses normal transition rules).
func (m *Manager) ForceState(procedure string, state State) {
	s := m.stateFor(procedure)
	s.mu.Lock()
	s.state = state
	if state == Open {
		s.openedAt = time.Now().UnixMilli()
	}
	s.mu.Unlock()
}

// Interceptor returns the circuit-breaker Interceptor for this manager.
// One circuit is shared per procedure name across all calls.
func (m *Manager) Interceptor() interceptor.Interceptor {
	return func(env *envelope.Envelope, ctx *envelope.Context, next interceptor.Next) (interface{}, error) {
		s := m.stateFor(env.Procedure)

		s.mu.Lock()
		now := time.Now().UnixMilli()
		probe := false
		switch s.state {
		case Open:
			if now-s.openedAt >= m.cfg.ResetTimeoutMs {
				s.state = HalfOpen
				s.successCount = 0
				s.probing = true
				probe = true
				m.notify(env.Procedure, HalfOpen)
			} else {
				s.mu.Unlock()
				return nil, rerrors.New(rerrors.Unavailable, "Circuit breaker is open")
			}
		case HalfOpen:
			// Allow exactly one in-flight probe at a time: anything else
			// arriving while a probe is outstanding is short-circuited.
			if s.probing {
				s.mu.Unlock()
				return nil, rerrors.New(rerrors.Unavailable, "Circuit breaker is open")
			}
			s.probing = true
			probe = true
		}
		s.mu.Unlock()

		result, err := next(env, ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if probe {
			s.probing = false // clear the in-flight marker either way
		}

		switch s.state {
		case HalfOpen:
			if err == nil {
				s.successCount++
				if s.successCount >= m.cfg.SuccessThreshold {
					s.state = Closed
					s.failures = nil
					s.successCount = 0
					m.notify(env.Procedure, Closed)
				}
			} else {
				s.state = Open
				s.openedAt = now
				m.notify(env.Procedure, Open)
			}
		case Closed:
			if err != nil && m.cfg.countsAsFailure(rerrors.CodeOf(err)) {
				s.failures = pruneWindow(append(s.failures, now), now, m.cfg.WindowMs)
				if len(s.failures) >= m.cfg.FailureThreshold {
					s.state = Open
					s.openedAt = now
					m.notify(env.Procedure, Open)
				}
			} else if err == nil {
				s.failures = pruneWindow(s.failures, now, m.cfg.WindowMs)
			}
		}

		return result, err
	}
}

func (m *Manager) notify(procedure string, state State) {
	m.cfg.Logger.Info("circuit breaker state changed", map[string]interface{}{
		"procedure": procedure,
		"state":     string(state),
	})
	metrics.Global().Counter("raffel.circuitbreaker.state_change", "procedure", procedure, "state", string(state))
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(procedure, state)
	}
}

func pruneWindow(timestamps []int64, now, windowMs int64) []int64 {
	cutoff := now - windowMs
	out := timestamps[:0]
	for _, ts := range timestamps {
		if ts > cutoff {
			out = append(out, ts)
		}
	}
	return out
}
