// Package observability exposes run metrics in Prometheus format.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/powerchunk/internal/chunk"
)

const (
	metricPrefix = "powerchunk_"

	resultSuccess = "success"
	resultError   = "error"

	stageSegment = "segment"
	stageAnalyze = "analyze"
)

// Recorder owns a private registry so that concurrent runs in one process
// never collide on global collectors. A nil Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	lines     *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	chunks    *prometheus.CounterVec
	flagged   *prometheus.CounterVec
	runs      *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lines_total",
				Help: "Input lines by source and validity",
			},
			[]string{"source", "validity"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "line_anomalies_total",
				Help: "Absorbed input anomalies by source and kind",
			},
			[]string{"source", "kind"},
		),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chunks_total",
				Help: "Finalized chunks by source",
			},
			[]string{"source"},
		),
		flagged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "flagged_chunks_total",
				Help: "Chunks with at least one numeric parameter out of range or missing",
			},
			[]string{"source"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Pipeline stages by stage and result",
			},
			[]string{"stage", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stage_latency_seconds",
				Help:    "Pipeline stage latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "result"},
		),
	}
	r.reg.MustRegister(r.lines, r.anomalies, r.chunks, r.flagged, r.runs, r.latency)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveSegment records the outcome of segmenting one source.
func (r *Recorder) ObserveSegment(source string, stats chunk.Stats, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.lines.WithLabelValues(source, "valid").Add(float64(stats.Records))
	r.lines.WithLabelValues(source, "invalid").Add(float64(stats.Invalid))
	r.anomalies.WithLabelValues(source, "discarded_idle").Add(float64(stats.DiscardedIdle))
	r.anomalies.WithLabelValues(source, "padded_row").Add(float64(stats.PaddedRecords))
	r.anomalies.WithLabelValues(source, "truncated_row").Add(float64(stats.TruncatedRecords))
	r.chunks.WithLabelValues(source).Add(float64(stats.Chunks))
	r.stage(stageSegment, elapsed, err)
}

// ObserveAnalyze records the outcome of analyzing one chunk file.
func (r *Recorder) ObserveAnalyze(source string, flagged int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.flagged.WithLabelValues(source).Add(float64(flagged))
	r.stage(stageAnalyze, elapsed, err)
}

func (r *Recorder) stage(stage string, elapsed time.Duration, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	r.runs.WithLabelValues(stage, result).Inc()
	r.latency.WithLabelValues(stage, result).Observe(elapsed.Seconds())
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
