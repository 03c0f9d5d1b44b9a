package pixelcodec

import (
	"fmt"

	"github.com/MeKo-Tech/tslatency/internal/frame"
)

// Option configures a Codec.
type Option func(*Codec)

// WithLevels overrides the nominal 0/1 sample values.
func WithLevels(l Levels) Option {
	return func(c *Codec) { c.levels = l }
}

// WithTolerance sets the dead band around the threshold. Samples within
// tolerance of the midpoint do not vote.
func WithTolerance(t int) Option {
	return func(c *Codec) { c.tolerance = t }
}

// Codec writes and reads bit cells for one stream geometry. It holds no
// per-frame state and is safe for concurrent use.
type Codec struct {
	info      frame.Info
	layout    Layout
	levels    Levels
	tolerance int
	carriers  []frame.Component

	// inner sampling window within a cell
	sampleFrom, sampleTo int
}

// ReadStats describes classification quality of one Read.
type ReadStats struct {
	Cells     int
	Ambiguous int
}

// New validates format, layout, bounds and levels for the stream described
// by info.
func New(info frame.Info, layout Layout, opts ...Option) (*Codec, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := layout.Region.Fits(info.Width, info.Height); err != nil {
		return nil, err
	}

	desc, _ := frame.Describe(info.Format)
	c := &Codec{
		info:      info,
		layout:    layout,
		levels:    DefaultLevels(),
		tolerance: DefaultTolerance,
		carriers:  desc.Carriers(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.levels.Low >= c.levels.High {
		return nil, fmt.Errorf("%w: low level %d not below high level %d", ErrInvalidLayout, c.levels.Low, c.levels.High)
	}
	span := int(c.levels.High) - int(c.levels.Low)
	if c.tolerance < 0 || 2*c.tolerance >= span {
		return nil, fmt.Errorf("%w: tolerance %d outside [0, %d)", ErrInvalidLayout, c.tolerance, (span+1)/2)
	}

	c.sampleFrom, c.sampleTo = 0, layout.CellSize
	if layout.CellSize >= 3 {
		c.sampleFrom, c.sampleTo = 1, layout.CellSize-1
	}
	return c, nil
}

// Capacity is the number of bits a frame can carry.
func (c *Codec) Capacity() int { return c.layout.Capacity() }

func (c *Codec) Layout() Layout { return c.layout }

func (c *Codec) Info() frame.Info { return c.info }

func (c *Codec) Levels() Levels { return c.levels }

func (c *Codec) Tolerance() int { return c.tolerance }

func (c *Codec) check(f *frame.Frame, n int) error {
	if f == nil || f.Info != c.info {
		return ErrFrameMismatch
	}
	if n > c.Capacity() {
		return fmt.Errorf("%w: %d bits, capacity %d", ErrPayloadTooLarge, n, c.Capacity())
	}
	return nil
}

// Write paints bits[i] into cell i on every carrier component. Only the
// pixels of the first len(bits) cells are modified.
func (c *Codec) Write(f *frame.Frame, bits []bool) error {
	if err := c.check(f, len(bits)); err != nil {
		return err
	}
	cs := c.layout.CellSize
	for i, bit := range bits {
		v := c.levels.Low
		if bit {
			v = c.levels.High
		}
		x0, y0 := c.layout.CellOrigin(i)
		for y := y0; y < y0+cs; y++ {
			for x := x0; x < x0+cs; x++ {
				for _, comp := range c.carriers {
					f.Set(comp, x, y, v)
				}
			}
		}
	}
	return nil
}

// Read classifies the first len(bits) cells into bits. Every sample in the
// cell's inner window votes one or zero unless it falls inside the tolerance
// band; the majority decides. A tie falls back to the cell mean and is
// counted as ambiguous. The frame is not modified.
func (c *Codec) Read(f *frame.Frame, bits []bool) (ReadStats, error) {
	if err := c.check(f, len(bits)); err != nil {
		return ReadStats{}, err
	}

	// Doubled to keep the midpoint integral.
	mid2 := int(c.levels.Low) + int(c.levels.High)
	hi2 := mid2 + 2*c.tolerance
	lo2 := mid2 - 2*c.tolerance

	stats := ReadStats{Cells: len(bits)}
	for i := range bits {
		x0, y0 := c.layout.CellOrigin(i)
		ones, zeros, sum, n := 0, 0, 0, 0
		for y := y0 + c.sampleFrom; y < y0+c.sampleTo; y++ {
			for x := x0 + c.sampleFrom; x < x0+c.sampleTo; x++ {
				for _, comp := range c.carriers {
					v := int(f.At(comp, x, y))
					sum += v
					n++
					switch {
					case 2*v > hi2:
						ones++
					case 2*v < lo2:
						zeros++
					}
				}
			}
		}
		switch {
		case ones > zeros:
			bits[i] = true
		case zeros > ones:
			bits[i] = false
		default:
			bits[i] = 2*sum > mid2*n
			stats.Ambiguous++
		}
	}
	return stats, nil
}
