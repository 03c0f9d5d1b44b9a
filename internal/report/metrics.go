package report

import (
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports measurements as Prometheus series labelled by stream.
type Metrics struct {
	measurements   *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	correctedBits  *prometheus.CounterVec
	sequenceGaps   *prometheus.CounterVec
	ambiguousCells *prometheus.CounterVec
}

// NewMetrics registers the series with reg. Pass prometheus.DefaultRegisterer
// to expose them on the process-wide /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		measurements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tslatency_measurements_total",
				Help: "Total number of measured frames",
			},
			[]string{"stream", "status"}, // status: ok, suspect, failed
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tslatency_latency_seconds",
				Help:    "Glass-to-glass latency of decoded frames in seconds",
				Buckets: []float64{.001, .005, .01, .016, .033, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stream"},
		),
		correctedBits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tslatency_corrected_bits_total",
				Help: "Total number of bit errors repaired by forward error correction",
			},
			[]string{"stream"},
		),
		sequenceGaps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tslatency_sequence_gaps_total",
				Help: "Total number of stamped frames that never arrived",
			},
			[]string{"stream"},
		),
		ambiguousCells: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tslatency_ambiguous_cells_total",
				Help: "Total number of cells classified without a clear majority",
			},
			[]string{"stream"},
		),
	}
}

func (r *Metrics) Report(m latency.Measurement) {
	r.measurements.WithLabelValues(m.Stream, m.Status.String()).Inc()
	if m.AmbiguousCells > 0 {
		r.ambiguousCells.WithLabelValues(m.Stream).Add(float64(m.AmbiguousCells))
	}
	if !m.Decoded() {
		return
	}
	if m.Status == latency.StatusOK {
		r.latency.WithLabelValues(m.Stream).Observe(m.Delta.Seconds())
	}
	if m.CorrectedBits > 0 {
		r.correctedBits.WithLabelValues(m.Stream).Add(float64(m.CorrectedBits))
	}
	if m.SeqGap > 0 {
		r.sequenceGaps.WithLabelValues(m.Stream).Add(float64(m.SeqGap))
	}
}
