// Package simulate runs a stamper and a measurer back to back over a
// synthetic transport that delays, drops and degrades frames. It is used to
// validate a configuration before deploying it in a real pipeline.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/common"
	"github.com/MeKo-Tech/tslatency/internal/degrade"
	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/google/uuid"
)

var ErrInvalidConfig = errors.New("simulate: invalid configuration")

// Stage names reported in Result.Stages.
const (
	StageRender  = "render"
	StageStamp   = "stamp"
	StageDegrade = "degrade"
	StageMeasure = "measure"
)

// Config describes one simulated session.
type Config struct {
	Latency latency.Config
	Info    frame.Info
	Stream  string

	// Frames to produce. Zero runs until the context is cancelled.
	Frames int
	FPS    float64

	Delay    time.Duration
	Jitter   time.Duration
	DropRate float64
	// Degrade is a chain such as "jpeg:60,noise:10"; see degrade.Parse.
	Degrade string
	Seed    int64

	// Realtime paces frames on the host monotonic clock. Otherwise time is
	// virtual and the run completes as fast as the CPU allows.
	Realtime bool
}

// DefaultConfig is 30 fps 1280x720 I420 with a 40ms transport delay.
func DefaultConfig() Config {
	return Config{
		Latency: latency.DefaultConfig(),
		Info:    frame.Info{Format: frame.I420, Width: 1280, Height: 720},
		Stream:  "sim",
		Frames:  300,
		FPS:     30,
		Delay:   40 * time.Millisecond,
		Jitter:  5 * time.Millisecond,
		Seed:    1,
	}
}

func (c Config) Validate() error {
	if err := c.Info.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Frames < 0 {
		return fmt.Errorf("%w: negative frame count", ErrInvalidConfig)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive", ErrInvalidConfig)
	}
	if c.Delay < 0 || c.Jitter < 0 {
		return fmt.Errorf("%w: negative delay or jitter", ErrInvalidConfig)
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("%w: drop rate %.2f outside [0, 1)", ErrInvalidConfig, c.DropRate)
	}
	return nil
}

// Result summarises a finished run.
type Result struct {
	RunID    string             `json:"run_id" yaml:"run_id"`
	Stream   string             `json:"stream" yaml:"stream"`
	Variant  string             `json:"variant" yaml:"variant"`
	Degrade  string             `json:"degrade,omitempty" yaml:"degrade,omitempty"`
	Stamped  int                `json:"stamped" yaml:"stamped"`
	Dropped  int                `json:"dropped" yaml:"dropped"`
	Summary  report.Snapshot    `json:"summary" yaml:"summary"`
	Stages   []common.StageCost `json:"stages" yaml:"stages"`
	Elapsed  time.Duration      `json:"elapsed_ns" yaml:"elapsed_ns"`
	Canceled bool               `json:"canceled,omitempty" yaml:"canceled,omitempty"`
}

// Link is a transport between the stamping and the measuring side. Frames
// passed to Send come back on Receive, possibly late, damaged or not at all.
// Close flushes the link and closes the Receive channel.
type Link interface {
	Send(f *frame.Frame) error
	Receive() <-chan *frame.Frame
	Close() error
}

// Simulator owns the elements of one run.
type Simulator struct {
	cfg      Config
	chain    degrade.Chain
	reporter latency.Reporter
	logger   *slog.Logger
	link     Link
}

// New validates cfg. Every measurement is also delivered to reporter, which
// may be nil.
func New(cfg Config, reporter latency.Reporter, logger *slog.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Latency.Validate(); err != nil {
		return nil, err
	}
	chain, err := degrade.Parse(cfg.Degrade, cfg.Latency.Layout)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{cfg: cfg, chain: chain, reporter: reporter, logger: logger}, nil
}

// UseLink routes realtime runs through l instead of the modelled delay
// line. Delay, jitter and drop settings are then ignored.
func (s *Simulator) UseLink(l Link) {
	s.link = l
}

type session struct {
	source   *Source
	stamper  *latency.Stamper
	measurer *latency.Measurer
	summary  *report.Summary
	stages   *common.Stages
	rng      *rand.Rand
}

func (s *Simulator) newSession(stampClock, measureClock clock.Clock) (*session, error) {
	source, err := NewSource(s.cfg.Info)
	if err != nil {
		return nil, err
	}
	summary := report.NewSummary()
	opts := []latency.Option{latency.WithStream(s.cfg.Stream), latency.WithLogger(s.logger)}

	stamper, err := latency.NewStamper(s.cfg.Latency, append(opts, latency.WithClock(stampClock))...)
	if err != nil {
		return nil, err
	}
	measurer, err := latency.NewMeasurer(s.cfg.Latency, append(opts,
		latency.WithClock(measureClock),
		latency.WithReporter(report.Multi(summary, s.reporter)))...)
	if err != nil {
		return nil, err
	}
	for _, el := range []latency.FrameTransform{stamper, measurer} {
		if err := el.ValidateConfiguration(s.cfg.Info); err != nil {
			return nil, fmt.Errorf("%s: %w", el.Name(), err)
		}
	}
	return &session{
		source:   source,
		stamper:  stamper,
		measurer: measurer,
		summary:  summary,
		stages:   common.NewStages(),
		rng:      rand.New(rand.NewSource(s.cfg.Seed)),
	}, nil
}

// transit draws the delay of one frame and whether it is lost.
func (s *Simulator) transit(rng *rand.Rand) (time.Duration, bool) {
	d := s.cfg.Delay
	if s.cfg.Jitter > 0 {
		d += time.Duration(rng.Int63n(int64(2*s.cfg.Jitter)+1)) - s.cfg.Jitter
	}
	drop := s.cfg.DropRate > 0 && rng.Float64() < s.cfg.DropRate
	return max(d, 0), drop
}

// produce renders, stamps and degrades frame i.
func (ss *session) produce(i int, chain degrade.Chain) (*frame.Frame, error) {
	var f *frame.Frame
	_ = ss.stages.Time(StageRender, func() error {
		f = ss.source.Frame(i)
		return nil
	})
	if err := ss.stages.Time(StageStamp, func() error { return ss.stamper.Apply(f) }); err != nil {
		return nil, err
	}
	if len(chain) > 0 {
		if err := ss.stages.Time(StageDegrade, func() error { return chain.Degrade(f, ss.rng) }); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (ss *session) consume(f *frame.Frame) error {
	return ss.stages.Time(StageMeasure, func() error { return ss.measurer.Apply(f) })
}

// Run executes the session until the frame budget is spent or ctx is done.
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	res := Result{
		RunID:   uuid.NewString(),
		Stream:  s.cfg.Stream,
		Variant: string(s.cfg.Latency.Variant),
		Degrade: s.chain.Name(),
	}
	s.logger.Info("Starting simulation",
		"run_id", res.RunID,
		"stream", s.cfg.Stream,
		"format", s.cfg.Info.String(),
		"variant", res.Variant,
		"degrade", res.Degrade,
		"realtime", s.cfg.Realtime)

	timer := common.StartTimer("simulation")
	var (
		ss  *session
		err error
	)
	if s.cfg.Realtime {
		ss, err = s.runRealtime(ctx, &res)
	} else {
		ss, err = s.runVirtual(ctx, &res)
	}
	res.Elapsed = timer.Stop()
	if ss != nil {
		res.Summary = ss.summary.Snapshot()
		res.Stages = ss.stages.Costs()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Canceled, err = true, nil
	}
	if err != nil {
		return res, err
	}

	s.logger.Info("Simulation finished",
		"run_id", res.RunID,
		"stamped", res.Stamped,
		"dropped", res.Dropped,
		"decoded", res.Summary.OK+res.Summary.Suspect,
		"failed", res.Summary.Failed,
		"p50", res.Summary.P50,
		"elapsed", res.Elapsed)
	return res, nil
}

func (s *Simulator) frameInterval() time.Duration {
	return time.Duration(float64(time.Second) / s.cfg.FPS)
}

// runVirtual drives both elements from manual clocks: frame i is stamped at
// i*interval and measured at that instant plus its transit delay.
func (s *Simulator) runVirtual(ctx context.Context, res *Result) (*session, error) {
	stampClock, measureClock := clock.NewManual(0), clock.NewManual(0)
	ss, err := s.newSession(stampClock, measureClock)
	if err != nil {
		return nil, err
	}
	interval := s.frameInterval()

	for i := 0; s.cfg.Frames == 0 || i < s.cfg.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return ss, err
		}
		sent := uint64(i) * uint64(interval)
		stampClock.Set(sent)
		f, err := ss.produce(i, s.chain)
		if err != nil {
			return ss, err
		}
		res.Stamped++

		delay, drop := s.transit(ss.rng)
		if drop {
			res.Dropped++
			continue
		}
		measureClock.Set(sent + uint64(delay))
		if err := ss.consume(f); err != nil {
			return ss, err
		}
	}
	return ss, nil
}

// runRealtime paces a producer at the configured rate and measures what
// comes out of the link on a second goroutine. Without a configured Link the
// modelled delay line is used.
func (s *Simulator) runRealtime(ctx context.Context, res *Result) (*session, error) {
	host := clock.NewMonotonic()
	ss, err := s.newSession(host, host)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	link := s.link
	if link == nil {
		link = newDelayLine(ctx, s, rand.New(rand.NewSource(s.cfg.Seed+1)))
	}

	var (
		wg         sync.WaitGroup
		consumeErr error
		received   int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range link.Receive() {
			if consumeErr != nil {
				continue
			}
			received++
			if err := ss.consume(f); err != nil {
				consumeErr = err
				cancel()
			}
		}
	}()

	ticker := time.NewTicker(s.frameInterval())
	defer ticker.Stop()

	var produceErr error
produce:
	for i := 0; s.cfg.Frames == 0 || i < s.cfg.Frames; i++ {
		if i > 0 {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				break produce
			}
		}
		f, err := ss.produce(i, s.chain)
		if err != nil {
			produceErr = err
			break
		}
		res.Stamped++
		if err := link.Send(f); err != nil {
			if ctx.Err() == nil {
				produceErr = err
			}
			break
		}
	}
	closeErr := link.Close()
	wg.Wait()
	res.Dropped = res.Stamped - received

	switch {
	case produceErr != nil:
		return ss, produceErr
	case consumeErr != nil:
		return ss, consumeErr
	case closeErr != nil:
		return ss, closeErr
	}
	return ss, ctx.Err()
}
