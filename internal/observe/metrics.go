// Package observe provides observability primitives for pulsecord:
// OpenTelemetry metrics with a Prometheus scrape bridge, and HTTP middleware
// for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via [InitProvider]'s Prometheus reader on the standard /metrics endpoint.
// Tests should use [NewMetrics] with a custom [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pulsecord metrics.
const meterName = "github.com/MrWong99/pulsecord"

// PipelineStats is the cumulative counter set sampled on every metrics
// collection.
type PipelineStats struct {
	FramesSent     uint64
	SilenceFrames  uint64
	SendDrops      uint64
	ChunksDropped  uint64
	BufferedFrames int
}

// Metrics holds all OpenTelemetry metric instruments for the relay.
// All fields are safe for concurrent use.
type Metrics struct {
	// CommandsReceived counts operator commands by kind.
	CommandsReceived metric.Int64Counter

	// HTTPRequestDuration tracks status-server request processing time.
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.CommandsReceived, err = m.Int64Counter("pulsecord.commands.received",
		metric.WithDescription("Total operator commands by kind."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pulsecord.http.request.duration",
		metric.WithDescription("Status-server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterPipeline registers observable instruments backed by the given
// sampler. The sampler is called once per collection; it must be cheap and
// safe for concurrent use.
func (m *Metrics) RegisterPipeline(sample func() PipelineStats) (metric.Registration, error) {
	framesSent, err := m.meter.Int64ObservableCounter("pulsecord.frames.sent",
		metric.WithDescription("Total audio frames delivered to the voice connection."),
	)
	if err != nil {
		return nil, err
	}
	silenceFrames, err := m.meter.Int64ObservableCounter("pulsecord.frames.silence",
		metric.WithDescription("Frames sent as silence because the transfer buffer ran dry."),
	)
	if err != nil {
		return nil, err
	}
	sendDrops, err := m.meter.Int64ObservableCounter("pulsecord.frames.send_dropped",
		metric.WithDescription("Frames dropped because the voice connection was not accepting audio."),
	)
	if err != nil {
		return nil, err
	}
	chunksDropped, err := m.meter.Int64ObservableCounter("pulsecord.buffer.dropped",
		metric.WithDescription("Frames evicted from the transfer buffer under overrun."),
	)
	if err != nil {
		return nil, err
	}
	bufferFill, err := m.meter.Int64ObservableGauge("pulsecord.buffer.fill",
		metric.WithDescription("Frames currently held in the transfer buffer."),
	)
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			s := sample()
			o.ObserveInt64(framesSent, int64(s.FramesSent))
			o.ObserveInt64(silenceFrames, int64(s.SilenceFrames))
			o.ObserveInt64(sendDrops, int64(s.SendDrops))
			o.ObserveInt64(chunksDropped, int64(s.ChunksDropped))
			o.ObserveInt64(bufferFill, int64(s.BufferedFrames))
			return nil
		},
		framesSent, silenceFrames, sendDrops, chunksDropped, bufferFill,
	)
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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
