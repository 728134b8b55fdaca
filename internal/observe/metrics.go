// Package observe provides application-wide observability primitives for
// voxwire: OpenTelemetry metrics, tracing, and HTTP instrumentation for
// the debug listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// Prometheus exporter bridge is available via [InitProvider] so the
// pipeline counters can be scraped from /metrics. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxwire metrics.
const meterName = "github.com/MrWong99/voxwire"

// Metrics holds all OpenTelemetry metric instruments for the client.
// All fields are safe for concurrent use; the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Capture ---

	// FramesCaptured counts frames delivered by the capture source. Use
	// with attribute: attribute.String("backend", ...)
	FramesCaptured metric.Int64Counter

	// CaptureOverruns counts frames the capture side dropped because the
	// pipeline fell behind. Use with attribute:
	//   attribute.String("backend", ...)
	CaptureOverruns metric.Int64Counter

	// --- Wire traffic ---

	// ChunksSent counts audio_chunk envelopes handed to the channel.
	ChunksSent metric.Int64Counter

	// ChunksReceived counts audio_stream envelopes that arrived.
	ChunksReceived metric.Int64Counter

	// DecodeDrops counts envelopes dropped because their payload did not
	// decode. Use with attribute: attribute.String("reason", ...)
	DecodeDrops metric.Int64Counter

	// ChunkBytes tracks the encoded size of outgoing audio chunks.
	ChunkBytes metric.Float64Histogram

	// --- Playback ---

	// PlaybackQueueDepth tracks how many chunks were queued for playback
	// when a new one arrived.
	PlaybackQueueDepth metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of joined rooms.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP debug listener ---

	// HTTPRequestDuration tracks debug endpoint request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// chunkByteBuckets defines histogram bucket boundaries (in bytes) around
// the default frame size: a full 4096-sample frame encodes to 8192 bytes,
// flushed trailing frames are smaller.
var chunkByteBuckets = []float64{
	256, 512, 1024, 2048, 4096, 8192, 16384, 32768,
}

// queueDepthBuckets defines histogram bucket boundaries for the playback
// queue length.
var queueDepthBuckets = []float64{
	1, 2, 4, 8, 16, 32, 64,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture counters.
	if met.FramesCaptured, err = m.Int64Counter("voxwire.capture.frames",
		metric.WithDescription("Total frames delivered by the capture source, by backend."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOverruns, err = m.Int64Counter("voxwire.capture.overruns",
		metric.WithDescription("Total frames dropped on the capture side, by backend."),
	); err != nil {
		return nil, err
	}

	// Wire traffic.
	if met.ChunksSent, err = m.Int64Counter("voxwire.chunks.sent",
		metric.WithDescription("Total audio_chunk envelopes handed to the channel."),
	); err != nil {
		return nil, err
	}
	if met.ChunksReceived, err = m.Int64Counter("voxwire.chunks.received",
		metric.WithDescription("Total audio_stream envelopes received."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDrops, err = m.Int64Counter("voxwire.decode.drops",
		metric.WithDescription("Total envelopes dropped due to undecodable payloads, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunkBytes, err = m.Float64Histogram("voxwire.chunk.bytes",
		metric.WithDescription("Encoded size of outgoing audio chunks."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(chunkByteBuckets...),
	); err != nil {
		return nil, err
	}

	// Playback.
	if met.PlaybackQueueDepth, err = m.Float64Histogram("voxwire.playback.queue_depth",
		metric.WithDescription("Playback queue length observed as each chunk arrived."),
		metric.WithExplicitBucketBoundaries(queueDepthBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwire.active_sessions",
		metric.WithDescription("Number of joined rooms."),
	); err != nil {
		return nil, err
	}

	// HTTP debug listener histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwire.http.request.duration",
		metric.WithDescription("Debug endpoint request latency by method and path."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen
// with the global provider).
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

// RecordFrameCaptured records one captured frame for the named backend.
func (m *Metrics) RecordFrameCaptured(ctx context.Context, backend string) {
	m.FramesCaptured.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordCaptureOverruns records n dropped frames for the named backend.
// A zero count records nothing.
func (m *Metrics) RecordCaptureOverruns(ctx context.Context, backend string, n int64) {
	if n == 0 {
		return
	}
	m.CaptureOverruns.Add(ctx, n,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordDecodeDrop records one dropped envelope with the given reason.
func (m *Metrics) RecordDecodeDrop(ctx context.Context, reason string) {
	m.DecodeDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
