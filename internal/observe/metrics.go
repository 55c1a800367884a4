// Package observe provides the OpenTelemetry instruments for synthesis
// sessions: metrics exported for Prometheus scraping and session spans.
//
// Tests should build Metrics with NewMetrics over their own MeterProvider to
// avoid sharing the global one.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every instrument in this package.
const meterName = "github.com/book-expert/tts-stream"

// Chunk outcomes.
const (
	ChunkReady  = "ready"
	ChunkFailed = "error"
)

// Session and save outcomes.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Metrics holds the instruments. The OTel types handle their own
// synchronisation.
type Metrics struct {
	// SessionsStarted counts sessions by transport.
	SessionsStarted metric.Int64Counter
	// SessionsFinished counts sessions by status.
	SessionsFinished metric.Int64Counter
	// ActiveSessions tracks sessions whose pipeline is running.
	ActiveSessions metric.Int64UpDownCounter
	// Chunks counts delivered chunks by status.
	Chunks metric.Int64Counter
	// ChunkBytes records the decoded audio size of each chunk.
	ChunkBytes metric.Int64Histogram
	// TimeToFirstAudio is the latency from Start until playback begins.
	TimeToFirstAudio metric.Float64Histogram
	// AppendDuration is the time the buffer takes to absorb one chunk.
	AppendDuration metric.Float64Histogram
	// Saves counts Save calls by status.
	Saves metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}

	var err error

	if met.SessionsStarted, err = meter.Int64Counter("tts_stream.sessions.started",
		metric.WithDescription("Synthesis sessions started, by transport."),
	); err != nil {
		return nil, err
	}

	if met.SessionsFinished, err = meter.Int64Counter("tts_stream.sessions.finished",
		metric.WithDescription("Synthesis sessions finished, by status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = meter.Int64UpDownCounter("tts_stream.sessions.active",
		metric.WithDescription("Sessions whose pipeline is running."),
	); err != nil {
		return nil, err
	}

	if met.Chunks, err = meter.Int64Counter("tts_stream.chunks",
		metric.WithDescription("Chunks delivered by the stream, by status."),
	); err != nil {
		return nil, err
	}

	if met.ChunkBytes, err = meter.Int64Histogram("tts_stream.chunk.size",
		metric.WithDescription("Decoded audio bytes per chunk."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if met.TimeToFirstAudio, err = meter.Float64Histogram("tts_stream.first_audio.latency",
		metric.WithDescription("Time from session start until playback begins."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AppendDuration, err = meter.Float64Histogram("tts_stream.append.duration",
		metric.WithDescription("Time the playback buffer takes to absorb one chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Saves, err = meter.Int64Counter("tts_stream.saves",
		metric.WithDescription("Asset saves, by status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics on the global provider.
// Panics if instrument creation fails.
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

// SessionStarted records a new running session.
func (m *Metrics) SessionStarted(ctx context.Context, transport string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
	m.ActiveSessions.Add(ctx, 1)
}

// SessionFinished records the end of a running session.
func (m *Metrics) SessionFinished(ctx context.Context, status string) {
	m.SessionsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.ActiveSessions.Add(ctx, -1)
}

// RecordChunk records one delivered chunk; size is ignored for failures.
func (m *Metrics) RecordChunk(ctx context.Context, status string, size int) {
	m.Chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	if status == ChunkReady {
		m.ChunkBytes.Record(ctx, int64(size))
	}
}

// RecordFirstAudio records the time to first audio.
func (m *Metrics) RecordFirstAudio(ctx context.Context, elapsed time.Duration) {
	m.TimeToFirstAudio.Record(ctx, elapsed.Seconds())
}

// RecordAppend records how long one append took.
func (m *Metrics) RecordAppend(ctx context.Context, elapsed time.Duration) {
	m.AppendDuration.Record(ctx, elapsed.Seconds())
}

// RecordSave records one Save outcome.
func (m *Metrics) RecordSave(ctx context.Context, status string) {
	m.Saves.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
