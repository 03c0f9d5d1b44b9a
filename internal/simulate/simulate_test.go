package simulate

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Info = frame.Info{Format: frame.I420, Width: 160, Height: 120}
	cfg.Frames = 50
	cfg.Jitter = 0
	return cfg
}

func run(t *testing.T, cfg Config, r latency.Reporter) Result {
	t.Helper()
	sim, err := New(cfg, r, quiet)
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestRun_Virtual(t *testing.T) {
	res := run(t, smallConfig(), nil)

	_, err := uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 50, res.Stamped)
	assert.Zero(t, res.Dropped)
	assert.False(t, res.Canceled)
	assert.Equal(t, 50, res.Summary.Frames)
	assert.Equal(t, 50, res.Summary.OK)
	assert.Equal(t, 40*time.Millisecond, res.Summary.Min)
	assert.Equal(t, 40*time.Millisecond, res.Summary.Max)
	assert.InDelta(t, float64(40*time.Millisecond), float64(res.Summary.P50), float64(time.Millisecond))
	assert.Zero(t, res.Summary.SequenceGaps)

	var names []string
	for _, st := range res.Stages {
		names = append(names, st.Name)
		assert.Equal(t, 50, st.Count)
	}
	assert.Equal(t, []string{StageRender, StageStamp, StageMeasure}, names)
}

func TestRun_JitterStaysInBounds(t *testing.T) {
	cfg := smallConfig()
	cfg.Jitter = 10 * time.Millisecond
	res := run(t, cfg, nil)
	assert.GreaterOrEqual(t, res.Summary.Min, 30*time.Millisecond)
	assert.LessOrEqual(t, res.Summary.Max, 50*time.Millisecond)
}

func TestRun_Drops(t *testing.T) {
	cfg := smallConfig()
	cfg.Frames = 200
	cfg.DropRate = 0.3
	res := run(t, cfg, nil)

	assert.Equal(t, 200, res.Stamped)
	assert.Positive(t, res.Dropped)
	assert.Equal(t, res.Stamped-res.Dropped, res.Summary.Frames)
	assert.Positive(t, res.Summary.SequenceGaps)
	assert.LessOrEqual(t, res.Summary.SequenceGaps, res.Dropped)
}

func TestRun_Degraded(t *testing.T) {
	cfg := smallConfig()
	cfg.Latency.Variant = integrity.FastRobust
	cfg.Degrade = "flip:5"
	res := run(t, cfg, nil)
	assert.Equal(t, 50, res.Summary.OK)
	assert.Positive(t, res.Summary.Corrected)
	assert.Equal(t, "flip:5", res.Degrade)
	assert.Len(t, res.Stages, 4)

	cfg.Latency.Variant = integrity.Optimized
	// more flips than cells outside the codeword
	cfg.Degrade = "flip:150"
	res = run(t, cfg, nil)
	assert.Equal(t, 50, res.Summary.Failed)
	assert.Zero(t, res.Summary.DecodeRate())
}

func TestRun_ReporterReceivesEveryFrame(t *testing.T) {
	var n atomic.Int32
	res := run(t, smallConfig(), latency.ReporterFunc(func(m latency.Measurement) {
		assert.Equal(t, "sim", m.Stream)
		n.Add(1)
	}))
	assert.Equal(t, int32(res.Summary.Frames), n.Load())
}

func TestRun_CanceledUnbounded(t *testing.T) {
	cfg := smallConfig()
	cfg.Frames = 0
	sim, err := New(cfg, nil, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := sim.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Positive(t, res.Stamped)
}

func TestRun_Realtime(t *testing.T) {
	cfg := smallConfig()
	cfg.Realtime = true
	cfg.Frames = 5
	cfg.FPS = 100
	cfg.Delay = 20 * time.Millisecond
	res := run(t, cfg, nil)

	assert.Equal(t, 5, res.Summary.OK)
	assert.GreaterOrEqual(t, res.Summary.Min, 20*time.Millisecond)
	assert.Less(t, res.Summary.Max, 2*time.Second)
	assert.GreaterOrEqual(t, res.Elapsed, 60*time.Millisecond)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fps", func(c *Config) { c.FPS = 0 }},
		{"frames", func(c *Config) { c.Frames = -1 }},
		{"drop", func(c *Config) { c.DropRate = 1 }},
		{"delay", func(c *Config) { c.Delay = -time.Second }},
		{"format", func(c *Config) { c.Info.Format = "P010" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, nil, quiet)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg := smallConfig()
	cfg.Degrade = "sharpen:2"
	_, err := New(cfg, nil, nil)
	assert.Error(t, err)

	cfg = smallConfig()
	cfg.Info.Width = 32
	sim, err := New(cfg, nil, quiet)
	require.NoError(t, err)
	_, err = sim.Run(context.Background())
	assert.Error(t, err)
}

func TestSource(t *testing.T) {
	info := frame.Info{Format: frame.NV12, Width: 64, Height: 32}
	src, err := NewSource(info)
	require.NoError(t, err)
	assert.Equal(t, info, src.Info())

	a, b := src.Frame(0), src.Frame(1)
	assert.NotEqual(t, a.Planes[0], b.Planes[0])
	luma := a.Descriptor().Components[0]
	assert.Equal(t, uint8(230), a.At(luma, 0, 0))
	assert.Equal(t, uint8(32+40*160/64), a.At(luma, 40, 5))
	assert.Equal(t, byte(128), a.Planes[1][0])
}

// lossyLink loses every third frame and delivers the rest immediately.
type lossyLink struct {
	ch   chan *frame.Frame
	sent int
}

func (l *lossyLink) Send(f *frame.Frame) error {
	l.sent++
	if l.sent%3 == 0 {
		return nil
	}
	l.ch <- f
	return nil
}

func (l *lossyLink) Receive() <-chan *frame.Frame { return l.ch }

func (l *lossyLink) Close() error {
	close(l.ch)
	return nil
}

func TestRun_RealtimeOverLink(t *testing.T) {
	cfg := smallConfig()
	cfg.Realtime = true
	cfg.Frames = 9
	cfg.FPS = 200
	sim, err := New(cfg, nil, quiet)
	require.NoError(t, err)
	sim.UseLink(&lossyLink{ch: make(chan *frame.Frame, 16)})

	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, res.Stamped)
	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, 6, res.Summary.OK)
	assert.Equal(t, 2, res.Summary.SequenceGaps)
	assert.Less(t, res.Summary.Max, time.Second)
}
