package report

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/MeKo-Tech/tslatency/internal/latency"
)

type multi []latency.Reporter

func (m multi) Report(res latency.Measurement) {
	for _, r := range m {
		r.Report(res)
	}
}

// Multi delivers each measurement to every non-nil reporter in order.
func Multi(reporters ...latency.Reporter) latency.Reporter {
	out := make(multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// JSONLines writes one JSON event per line.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

func (j *JSONLines) Report(m latency.Measurement) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(m.Event())
}

// Err returns the first write error, after which output stops.
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
