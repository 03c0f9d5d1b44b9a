// Package common provides shared utilities including timing of pipeline
// stages.
package common

import "time"

// Timer measures one execution of a stage. A timer started from Stages
// records itself there when stopped.
type Timer struct {
	name    string
	start   time.Time
	elapsed time.Duration
	stopped bool
	stages  *Stages
}

// StartTimer starts a timer that is not attached to any Stages.
func StartTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Start starts a timer for stage name that is added to s on Stop.
func (s *Stages) Start(name string) *Timer {
	return &Timer{name: name, start: time.Now(), stages: s}
}

// Stop ends the measurement and returns the elapsed time. Only the first
// call records; later calls return the same duration.
func (t *Timer) Stop() time.Duration {
	if t.stopped {
		return t.elapsed
	}
	t.stopped = true
	t.elapsed = time.Since(t.start)
	if t.stages != nil {
		t.stages.Add(t.name, t.elapsed)
	}
	return t.elapsed
}

// Elapsed returns the time recorded by Stop, or the running time of a timer
// that has not been stopped yet.
func (t *Timer) Elapsed() time.Duration {
	if t.stopped {
		return t.elapsed
	}
	return time.Since(t.start)
}

func (t *Timer) Name() string {
	return t.name
}
