package common

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := StartTimer("stamp")
	assert.Equal(t, "stamp", timer.Name())

	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Elapsed(), 10*time.Millisecond)

	duration := timer.Stop()
	assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
	assert.Equal(t, duration, timer.Elapsed())

	time.Sleep(time.Millisecond)
	assert.Equal(t, duration, timer.Stop(), "second Stop must not remeasure")
}

func TestStages_Start(t *testing.T) {
	s := NewStages()
	timer := s.Start("measure")
	assert.Empty(t, s.Costs(), "nothing recorded before Stop")

	d := timer.Stop()
	timer.Stop()

	costs := s.Costs()
	require.Len(t, costs, 1)
	assert.Equal(t, "measure", costs[0].Name)
	assert.Equal(t, 1, costs[0].Count)
	assert.Equal(t, d, costs[0].Total)
}

func TestStages(t *testing.T) {
	s := NewStages()
	s.Add("stamp", 2*time.Millisecond)
	s.Add("measure", time.Millisecond)
	s.Add("stamp", 4*time.Millisecond)

	costs := s.Costs()
	require.Len(t, costs, 2)
	assert.Equal(t, "stamp", costs[0].Name)
	assert.Equal(t, 2, costs[0].Count)
	assert.Equal(t, 3*time.Millisecond, costs[0].Mean())
	assert.Equal(t, "measure", costs[1].Name)
	assert.Zero(t, StageCost{}.Mean())

	assert.Contains(t, s.String(), "stamp: 2 runs, avg: 3ms, total: 6ms")
}

func TestStages_Time(t *testing.T) {
	s := NewStages()
	boom := errors.New("boom")
	err := s.Time("degrade", func() error {
		time.Sleep(time.Millisecond)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	costs := s.Costs()
	require.Len(t, costs, 1)
	assert.Equal(t, 1, costs[0].Count)
	assert.GreaterOrEqual(t, costs[0].Total, time.Millisecond)
}

func TestStages_Concurrent(t *testing.T) {
	s := NewStages()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Add("measure", time.Microsecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, s.Costs()[0].Count)
}
