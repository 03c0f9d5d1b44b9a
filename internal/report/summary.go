package report

import (
	"sync"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/influxdata/tdigest"
)

// Summary aggregates latency percentiles of accepted measurements and counts
// every outcome. It is safe for concurrent use.
type Summary struct {
	mu     sync.Mutex // TDigest is not thread-safe
	digest *tdigest.TDigest
	snap   Snapshot
	sum    time.Duration
}

// Snapshot is a point-in-time view of a Summary. Latency fields cover only
// frames with status ok.
type Snapshot struct {
	Frames         int `json:"frames" yaml:"frames"`
	OK             int `json:"ok" yaml:"ok"`
	Suspect        int `json:"suspect" yaml:"suspect"`
	Failed         int `json:"failed" yaml:"failed"`
	Corrected      int `json:"corrected_frames" yaml:"corrected_frames"`
	CorrectedBits  int `json:"corrected_bits" yaml:"corrected_bits"`
	SequenceGaps   int `json:"sequence_gaps" yaml:"sequence_gaps"`
	AmbiguousCells int `json:"ambiguous_cells" yaml:"ambiguous_cells"`

	Min  time.Duration `json:"min_ns" yaml:"min_ns"`
	Max  time.Duration `json:"max_ns" yaml:"max_ns"`
	Mean time.Duration `json:"mean_ns" yaml:"mean_ns"`
	P50  time.Duration `json:"p50_ns" yaml:"p50_ns"`
	P90  time.Duration `json:"p90_ns" yaml:"p90_ns"`
	P99  time.Duration `json:"p99_ns" yaml:"p99_ns"`
}

// DecodeRate is the share of frames whose timestamp could be read.
func (s Snapshot) DecodeRate() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.OK+s.Suspect) / float64(s.Frames)
}

func NewSummary() *Summary {
	return &Summary{digest: tdigest.NewWithCompression(100)}
}

func (s *Summary) Report(m latency.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Frames++
	s.snap.AmbiguousCells += m.AmbiguousCells
	switch m.Status {
	case latency.StatusFailed:
		s.snap.Failed++
		return
	case latency.StatusSuspect:
		s.snap.Suspect++
	default:
		s.snap.OK++
		if s.snap.OK == 1 || m.Delta < s.snap.Min {
			s.snap.Min = m.Delta
		}
		if s.snap.OK == 1 || m.Delta > s.snap.Max {
			s.snap.Max = m.Delta
		}
		s.sum += m.Delta
		s.digest.Add(float64(m.Delta.Nanoseconds()), 1)
	}
	if m.CorrectedBits > 0 {
		s.snap.Corrected++
		s.snap.CorrectedBits += m.CorrectedBits
	}
	s.snap.SequenceGaps += m.SeqGap
}

// Snapshot returns the current aggregate.
func (s *Summary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snap
	if out.OK > 0 {
		out.Mean = s.sum / time.Duration(out.OK)
		out.P50 = time.Duration(s.digest.Quantile(0.50))
		out.P90 = time.Duration(s.digest.Quantile(0.90))
		out.P99 = time.Duration(s.digest.Quantile(0.99))
	}
	return out
}

// Reset clears all data.
func (s *Summary) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest = tdigest.NewWithCompression(100)
	s.snap = Snapshot{}
	s.sum = 0
}
