// Package metrics defines the global metrics-registry seam the rest of
// Raffel emits through, grounded directly on
// core.MetricsRegistry/core.SetMetricsRegistry/core.GetGlobalMetricsRegistry:
// a tiny interface any telemetry backend can implement and register once
// at startup, avoiding a hard dependency from every interceptor package
// onto a specific metrics SDK.
package metrics

import "context"

// Registry is the metrics sink every Raffel interceptor emits through.
type Registry interface {
	// Counter increments a counter metric by 1.
	Counter(name string, labels ...string)
	// EmitWithContext emits an arbitrary value with context for trace
	// correlation (e.g. attaching exemplars).
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
	// Gauge sets a gauge metric to a specific value.
	Gauge(name string, value float64, labels ...string)
	// Histogram records a value into a distribution.
	Histogram(name string, value float64, labels ...string)
}

var global Registry = NoOp{}

// SetGlobal installs registry as the process-wide metrics sink. Intended
// to be called once at startup by whichever telemetry backend is wired
// in. This module ships no such backend; until one is set, Global
// returns the NoOp registry.
func SetGlobal(registry Registry) {
	if registry == nil {
		registry = NoOp{}
	}
	global = registry
}

// Global returns the currently installed registry, or a no-op sink if
// none has been set.
func Global() Registry { return global }

// NoOp discards every metric; it is the default registry so components
// can unconditionally call metrics.Global() without a nil check.
type NoOp struct{}

func (NoOp) Counter(name string, labels ...string)                                            {}
func (NoOp) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {}
func (NoOp) Gauge(name string, value float64, labels ...string)                                {}
func (NoOp) Histogram(name string, value float64, labels ...string)                            {}
