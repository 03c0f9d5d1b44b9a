package common

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// StageCost is the accumulated processing time of one named stage.
type StageCost struct {
	Name  string        `json:"name" yaml:"name"`
	Count int           `json:"count" yaml:"count"`
	Total time.Duration `json:"total_ns" yaml:"total_ns"`
}

// Mean returns the average duration per execution.
func (c StageCost) Mean() time.Duration {
	if c.Count == 0 {
		return 0
	}
	return c.Total / time.Duration(c.Count)
}

func (c StageCost) String() string {
	return fmt.Sprintf("%s: %d runs, avg: %v, total: %v", c.Name, c.Count, c.Mean(), c.Total)
}

// Stages accumulates per-stage processing time. Stages are reported in the
// order they were first seen. Safe for concurrent use.
type Stages struct {
	mu    sync.Mutex
	order []string
	costs map[string]*StageCost
}

func NewStages() *Stages {
	return &Stages{costs: make(map[string]*StageCost)}
}

// Add records one execution of name taking d.
func (s *Stages) Add(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.costs[name]
	if !ok {
		c = &StageCost{Name: name}
		s.costs[name] = c
		s.order = append(s.order, name)
	}
	c.Count++
	c.Total += d
}

// Time runs fn as stage name and records its duration, also on error.
func (s *Stages) Time(name string, fn func() error) error {
	t := s.Start(name)
	defer t.Stop()
	return fn()
}

// Costs returns a copy of all stage costs.
func (s *Stages) Costs() []StageCost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StageCost, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.costs[name])
	}
	return out
}

func (s *Stages) String() string {
	costs := s.Costs()
	lines := make([]string, len(costs))
	for i, c := range costs {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}
