// Package observe provides the gateway's observability primitives:
// OpenTelemetry metric instruments and the Prometheus exporter bridge that
// makes them scrapable via /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/voicedesk/voicedesk"

// Relay directions used as the "direction" attribute on relay instruments.
const (
	DirectionUp   = "up"   // browser -> upstream
	DirectionDown = "down" // upstream -> browser
)

// Metrics holds all OpenTelemetry metric instruments for the gateway.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ToolCallDuration tracks function-call dispatch latency. Use with
	// attribute.String("tool", ...).
	ToolCallDuration metric.Float64Histogram

	// RetrievalDuration tracks knowledge-base query latency.
	RetrievalDuration metric.Float64Histogram

	// UpstreamDialDuration tracks how long the upstream realtime connect
	// plus session setup takes.
	UpstreamDialDuration metric.Float64Histogram

	// --- Counters ---

	// RelayEvents counts websocket frames forwarded through the relay. Use
	// with attribute.String("direction", ...).
	RelayEvents metric.Int64Counter

	// RelayBytes counts payload bytes forwarded through the relay. Use with
	// attribute.String("direction", ...).
	RelayBytes metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Handoffs counts agent handoffs. Use with attribute:
	//   attribute.String("target", ...)
	Handoffs metric.Int64Counter

	// BargeIns counts caller interruptions detected by upstream VAD.
	BargeIns metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live relay sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ToolCallDuration, err = m.Float64Histogram("voicedesk.tool_call.duration",
		metric.WithDescription("Latency of function-call dispatch by tool name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("voicedesk.retrieval.duration",
		metric.WithDescription("Latency of knowledge-base queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDialDuration, err = m.Float64Histogram("voicedesk.upstream_dial.duration",
		metric.WithDescription("Latency of upstream realtime connect and session setup."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RelayEvents, err = m.Int64Counter("voicedesk.relay.events",
		metric.WithDescription("Total websocket frames forwarded by direction."),
	); err != nil {
		return nil, err
	}
	if met.RelayBytes, err = m.Int64Counter("voicedesk.relay.bytes",
		metric.WithDescription("Total payload bytes forwarded by direction."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voicedesk.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Handoffs, err = m.Int64Counter("voicedesk.handoffs",
		metric.WithDescription("Total agent handoffs by target role."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voicedesk.barge_ins",
		metric.WithDescription("Total caller interruptions detected by upstream VAD."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicedesk.active_sessions",
		metric.WithDescription("Number of live relay sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRelayFrame records one forwarded frame and its payload size.
func (m *Metrics) RecordRelayFrame(ctx context.Context, direction string, bytes int) {
	attrs := metric.WithAttributes(attribute.String("direction", direction))
	m.RelayEvents.Add(ctx, 1, attrs)
	m.RelayBytes.Add(ctx, int64(bytes), attrs)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordHandoff records a handoff counter increment.
func (m *Metrics) RecordHandoff(ctx context.Context, target string) {
	m.Handoffs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("target", target)),
	)
}
