package simulate

import (
	"context"
	"math/rand"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/frame"
)

type inFlight struct {
	f   *frame.Frame
	due time.Time
}

// delayLine is the modelled Link: every frame is held back by the configured
// delay plus jitter, or lost with the configured drop rate.
type delayLine struct {
	ctx   context.Context
	sim   *Simulator
	rng   *rand.Rand
	queue chan inFlight
	out   chan *frame.Frame
}

func newDelayLine(ctx context.Context, sim *Simulator, rng *rand.Rand) *delayLine {
	d := &delayLine{
		ctx:   ctx,
		sim:   sim,
		rng:   rng,
		queue: make(chan inFlight, 64),
		out:   make(chan *frame.Frame),
	}
	go d.run()
	return d
}

func (d *delayLine) run() {
	defer close(d.out)
	for item := range d.queue {
		if wait := time.Until(item.due); wait > 0 {
			select {
			case <-time.After(wait):
			case <-d.ctx.Done():
				return
			}
		}
		select {
		case d.out <- item.f:
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *delayLine) Send(f *frame.Frame) error {
	delay, drop := d.sim.transit(d.rng)
	if drop {
		return nil
	}
	select {
	case d.queue <- inFlight{f: f, due: time.Now().Add(delay)}:
		return nil
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *delayLine) Receive() <-chan *frame.Frame { return d.out }

func (d *delayLine) Close() error {
	close(d.queue)
	return nil
}
