package latency

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/integrity"
)

// Status is the outcome of decoding one frame.
type Status int

const (
	// StatusOK means the payload decoded, possibly after correction.
	StatusOK Status = iota
	// StatusSuspect means the payload decoded but the clocks disagree.
	StatusSuspect
	// StatusFailed means the payload could not be trusted.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuspect:
		return "suspect"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Measurement is the per-frame result of a Measurer.
type Measurement struct {
	Stream  string
	Variant integrity.Variant
	Status  Status
	// Err is the decode failure for StatusFailed or the anomaly for
	// StatusSuspect.
	Err error

	StampTime   uint64
	ReceiveTime uint64
	// Delta is ReceiveTime - StampTime; negative for future stamps.
	Delta time.Duration

	Seq            uint16
	SeqGap         int
	CorrectedBits  int
	AmbiguousCells int
}

// Decoded reports whether a timestamp was recovered.
func (m Measurement) Decoded() bool {
	return m.Status != StatusFailed
}

// Corrected reports whether bit errors were repaired.
func (m Measurement) Corrected() bool {
	return m.CorrectedBits > 0
}

// Event is the sink representation of a Measurement. Stamp time and delta
// are absent when decoding failed.
type Event struct {
	Stream         string  `json:"stream" yaml:"stream"`
	DecodeStatus   Status  `json:"decode_status" yaml:"decode_status"`
	Reason         string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	StampTime      *uint64 `json:"stamp_time_ns,omitempty" yaml:"stamp_time_ns,omitempty"`
	Delta          *int64  `json:"delta_ns,omitempty" yaml:"delta_ns,omitempty"`
	ReceiveTime    uint64  `json:"receive_time_ns" yaml:"receive_time_ns"`
	Seq            *uint16 `json:"seq,omitempty" yaml:"seq,omitempty"`
	SeqGap         int     `json:"seq_gap,omitempty" yaml:"seq_gap,omitempty"`
	CorrectedBits  int     `json:"corrected_bits,omitempty" yaml:"corrected_bits,omitempty"`
	AmbiguousCells int     `json:"ambiguous_cells,omitempty" yaml:"ambiguous_cells,omitempty"`
}

// Event projects the measurement onto its sink representation.
func (m Measurement) Event() Event {
	e := Event{
		Stream:         m.Stream,
		DecodeStatus:   m.Status,
		ReceiveTime:    m.ReceiveTime,
		AmbiguousCells: m.AmbiguousCells,
	}
	if m.Err != nil {
		e.Reason = m.Err.Error()
	}
	if m.Decoded() {
		stamp, delta, seq := m.StampTime, int64(m.Delta), m.Seq
		e.StampTime = &stamp
		e.Delta = &delta
		e.Seq = &seq
		e.SeqGap = m.SeqGap
		e.CorrectedBits = m.CorrectedBits
	}
	return e
}

// Reporter consumes measurements. Implementations shared between streams
// must be safe for concurrent use.
type Reporter interface {
	Report(m Measurement)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(m Measurement)

func (f ReporterFunc) Report(m Measurement) { f(m) }

// Discard drops every measurement.
var Discard Reporter = ReporterFunc(func(Measurement) {})

// signedDelta returns later - earlier without overflowing.
func signedDelta(later, earlier uint64) time.Duration {
	const maxDur = uint64(1<<63 - 1)
	if later >= earlier {
		d := later - earlier
		if d > maxDur {
			d = maxDur
		}
		return time.Duration(d)
	}
	d := earlier - later
	if d > maxDur {
		d = maxDur
	}
	return -time.Duration(d)
}
