// Package observe provides the OpenTelemetry metrics, tracing and logging
// helpers shared by the tngbot commands.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped
// through a Prometheus exporter set up by [InitProvider]. A package-level
// [DefaultMetrics] instance is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tngbot metrics.
const meterName = "github.com/MrWong99/tngbot"

// Status attribute values.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusExhausted = "exhausted"
	StatusUnknown   = "unknown"
)

// Metrics holds every metric instrument of the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// --- Generation ---

	// GenerationDuration tracks how long one Generate call takes, including
	// rejected attempts. Attributes: character.
	GenerationDuration metric.Float64Histogram

	// Generations counts Generate calls. Attributes: character, status.
	Generations metric.Int64Counter

	// GenerationAttempts tracks how many walks a successful call needed.
	// Attributes: character.
	GenerationAttempts metric.Int64Histogram

	// --- Chat surface ---

	// Commands counts handled chat commands. Attributes: command, status.
	Commands metric.Int64Counter

	// --- Models ---

	// ModelsLoaded is the number of characters currently served.
	ModelsLoaded metric.Int64Gauge

	// ModelReloads counts roster reloads. Attributes: status.
	ModelReloads metric.Int64Counter

	// --- Offline build ---

	// BuildDuration tracks the time to assemble, build and save one model.
	// Attributes: character, status.
	BuildDuration metric.Float64Histogram

	// CorpusLines is the number of dialogue lines in the most recent corpus
	// of a character. Attributes: character.
	CorpusLines metric.Int64Gauge

	// ScriptDownloads counts transcript downloads. Attributes: series, status.
	ScriptDownloads metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// generationBuckets are in seconds. A walk is microseconds; a slow call is
// one that burns through every attempt on a large corpus.
var generationBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

var buildBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("tngbot.generation.duration",
		metric.WithDescription("Latency of sentence generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Generations, err = m.Int64Counter("tngbot.generations",
		metric.WithDescription("Total generation calls by character and status."),
	); err != nil {
		return nil, err
	}
	if met.GenerationAttempts, err = m.Int64Histogram("tngbot.generation.attempts",
		metric.WithDescription("Random walks needed to produce an accepted sentence."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 10, 20, 30, 50),
	); err != nil {
		return nil, err
	}

	if met.Commands, err = m.Int64Counter("tngbot.commands",
		metric.WithDescription("Total chat commands by command and status."),
	); err != nil {
		return nil, err
	}

	if met.ModelsLoaded, err = m.Int64Gauge("tngbot.models.loaded",
		metric.WithDescription("Number of character models currently served."),
	); err != nil {
		return nil, err
	}
	if met.ModelReloads, err = m.Int64Counter("tngbot.models.reloads",
		metric.WithDescription("Total model roster reloads by status."),
	); err != nil {
		return nil, err
	}

	if met.BuildDuration, err = m.Float64Histogram("tngbot.build.duration",
		metric.WithDescription("Time to assemble, build and save one character model."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buildBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorpusLines, err = m.Int64Gauge("tngbot.corpus.lines",
		metric.WithDescription("Dialogue lines in the most recently assembled corpus."),
	); err != nil {
		return nil, err
	}
	if met.ScriptDownloads, err = m.Int64Counter("tngbot.scripts.downloads",
		metric.WithDescription("Total transcript downloads by series and status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("tngbot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGeneration records one Generate call. attempts is only recorded for
// successful calls.
func (m *Metrics) RecordGeneration(ctx context.Context, character, status string, attempts int, d time.Duration) {
	char := attribute.String("character", character)
	m.GenerationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(char))
	m.Generations.Add(ctx, 1, metric.WithAttributes(char, attribute.String("status", status)))
	if status == StatusOK {
		m.GenerationAttempts.Record(ctx, int64(attempts), metric.WithAttributes(char))
	}
}

// RecordCommand records one handled chat command.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordReload records a roster reload and the resulting model count.
func (m *Metrics) RecordReload(ctx context.Context, status string, loaded int) {
	m.ModelReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status == StatusOK {
		m.ModelsLoaded.Record(ctx, int64(loaded))
	}
}

// RecordBuild records one offline model build. lines is ignored for failed
// builds.
func (m *Metrics) RecordBuild(ctx context.Context, character, status string, lines int, d time.Duration) {
	char := attribute.String("character", character)
	m.BuildDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(char, attribute.String("status", status)),
	)
	if status == StatusOK {
		m.CorpusLines.Record(ctx, int64(lines), metric.WithAttributes(char))
	}
}

// RecordDownload records one transcript download.
func (m *Metrics) RecordDownload(ctx context.Context, series, status string) {
	m.ScriptDownloads.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("series", series),
			attribute.String("status", status),
		),
	)
}
