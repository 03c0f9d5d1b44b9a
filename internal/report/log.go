// Package report provides sinks for latency measurements: structured logs,
// Prometheus metrics, a running percentile summary and a fan-out to live
// subscribers.
package report

import (
	"log/slog"

	"github.com/MeKo-Tech/tslatency/internal/latency"
)

// LogReporter writes one log record per measurement.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter logs through l, or the default logger when l is nil.
func NewLogReporter(l *slog.Logger) *LogReporter {
	if l == nil {
		l = slog.Default()
	}
	return &LogReporter{logger: l}
}

func (r *LogReporter) Report(m latency.Measurement) {
	switch m.Status {
	case latency.StatusOK:
		r.logger.Info("Delay",
			"stream", m.Stream,
			"delay_ms", float64(m.Delta.Microseconds())/1000,
			"seq", m.Seq,
			"corrected_bits", m.CorrectedBits)
	case latency.StatusSuspect:
		r.logger.Warn("Implausible timestamp",
			"stream", m.Stream,
			"delay_ms", float64(m.Delta.Microseconds())/1000,
			"seq", m.Seq,
			"error", m.Err)
	default:
		r.logger.Warn("failed to read timestamp",
			"stream", m.Stream,
			"variant", m.Variant,
			"ambiguous_cells", m.AmbiguousCells,
			"error", m.Err)
	}
	if m.SeqGap > 0 {
		r.logger.Debug("Sequence gap", "stream", m.Stream, "seq", m.Seq, "missing", m.SeqGap)
	}
}
