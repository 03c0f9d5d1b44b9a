// Package degrade applies lossy transport artifacts to frames: compression,
// blur, rescaling, sensor noise and outright cell corruption. It stands in
// for an encode/decode hop when no media framework is available.
package degrade

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

var ErrInvalidStep = errors.New("degrade: invalid step")

// Degrader modifies a frame in place. rng supplies all randomness so that
// runs are reproducible from a seed.
type Degrader interface {
	Name() string
	Degrade(f *frame.Frame, rng *rand.Rand) error
}

// JPEG round-trips the frame through JPEG at the given quality (1-100).
type JPEG struct {
	Quality int
}

func (j JPEG) Name() string { return fmt.Sprintf("jpeg:%d", j.Quality) }

func (j JPEG) Degrade(f *frame.Frame, _ *rand.Rand) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f.ToImage(), imaging.JPEG, imaging.JPEGQuality(j.Quality)); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}
	img, err := imaging.Decode(&buf)
	if err != nil {
		return fmt.Errorf("jpeg decode: %w", err)
	}
	f.Draw(img)
	return nil
}

// Blur applies a gaussian blur with the given sigma in pixels.
type Blur struct {
	Sigma float64
}

func (b Blur) Name() string { return "blur:" + strconv.FormatFloat(b.Sigma, 'g', -1, 64) }

func (b Blur) Degrade(f *frame.Frame, _ *rand.Rand) error {
	f.Draw(imaging.Blur(f.ToImage(), b.Sigma))
	return nil
}

// Rescale shrinks the frame by Factor and scales it back up bilinearly, as a
// resolution-switching transport would.
type Rescale struct {
	Factor float64
}

func (s Rescale) Name() string { return "scale:" + strconv.FormatFloat(s.Factor, 'g', -1, 64) }

func (s Rescale) Degrade(f *frame.Frame, _ *rand.Rand) error {
	src := f.ToImage()
	b := src.Bounds()
	sw := max(1, int(float64(b.Dx())*s.Factor))
	sh := max(1, int(float64(b.Dy())*s.Factor))

	small := image.NewNRGBA(image.Rect(0, 0, sw, sh))
	draw.BiLinear.Scale(small, small.Bounds(), src, b, draw.Src, nil)
	full := image.NewNRGBA(b)
	draw.BiLinear.Scale(full, full.Bounds(), small, small.Bounds(), draw.Src, nil)
	f.Draw(full)
	return nil
}

// Noise adds uniform noise in [-Amplitude, Amplitude] to every carrier sample.
type Noise struct {
	Amplitude int
}

func (n Noise) Name() string { return fmt.Sprintf("noise:%d", n.Amplitude) }

func (n Noise) Degrade(f *frame.Frame, rng *rand.Rand) error {
	if n.Amplitude <= 0 {
		return nil
	}
	for _, c := range f.Descriptor().Carriers() {
		for y := 0; y < f.Info.Height; y++ {
			for x := 0; x < f.Info.Width; x++ {
				v := int(f.At(c, x, y)) + rng.Intn(2*n.Amplitude+1) - n.Amplitude
				f.Set(c, x, y, uint8(min(255, max(0, v))))
			}
		}
	}
	return nil
}

// FlipCells inverts Count distinct cells of the stamp region.
type FlipCells struct {
	Count  int
	Layout pixelcodec.Layout
}

func (c FlipCells) Name() string { return fmt.Sprintf("flip:%d", c.Count) }

func (c FlipCells) Degrade(f *frame.Frame, rng *rand.Rand) error {
	capacity := c.Layout.Capacity()
	if c.Count > capacity {
		return fmt.Errorf("%w: cannot flip %d of %d cells", ErrInvalidStep, c.Count, capacity)
	}
	if err := c.Layout.Region.Fits(f.Info.Width, f.Info.Height); err != nil {
		return err
	}
	carriers := f.Descriptor().Carriers()
	size := c.Layout.CellSize
	for _, cell := range rng.Perm(capacity)[:c.Count] {
		x0, y0 := c.Layout.CellOrigin(cell)
		for _, comp := range carriers {
			for y := y0; y < y0+size; y++ {
				for x := x0; x < x0+size; x++ {
					f.Set(comp, x, y, 255-f.At(comp, x, y))
				}
			}
		}
	}
	return nil
}

// Chain applies steps in order.
type Chain []Degrader

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, d := range c {
		names[i] = d.Name()
	}
	return strings.Join(names, ",")
}

func (c Chain) Degrade(f *frame.Frame, rng *rand.Rand) error {
	for _, d := range c {
		if err := d.Degrade(f, rng); err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
	}
	return nil
}

// Parse builds a chain from a comma separated list such as
// "jpeg:60,noise:10,flip:4". layout is used by the flip step. An empty
// string yields an empty chain.
func Parse(s string, layout pixelcodec.Layout) (Chain, error) {
	var chain Chain
	for _, step := range strings.Split(s, ",") {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		name, arg, found := strings.Cut(step, ":")
		if !found {
			return nil, fmt.Errorf("%w: %q needs an argument", ErrInvalidStep, step)
		}
		d, err := parseStep(strings.ToLower(name), arg, layout)
		if err != nil {
			return nil, err
		}
		chain = append(chain, d)
	}
	return chain, nil
}

func parseStep(name, arg string, layout pixelcodec.Layout) (Degrader, error) {
	switch name {
	case "jpeg":
		q, err := strconv.Atoi(arg)
		if err != nil || q < 1 || q > 100 {
			return nil, fmt.Errorf("%w: jpeg quality %q must be 1-100", ErrInvalidStep, arg)
		}
		return JPEG{Quality: q}, nil
	case "blur":
		sigma, err := strconv.ParseFloat(arg, 64)
		if err != nil || sigma <= 0 {
			return nil, fmt.Errorf("%w: blur sigma %q must be positive", ErrInvalidStep, arg)
		}
		return Blur{Sigma: sigma}, nil
	case "scale":
		factor, err := strconv.ParseFloat(arg, 64)
		if err != nil || factor <= 0 || factor > 1 {
			return nil, fmt.Errorf("%w: scale factor %q must be in (0, 1]", ErrInvalidStep, arg)
		}
		return Rescale{Factor: factor}, nil
	case "noise":
		amp, err := strconv.Atoi(arg)
		if err != nil || amp < 0 || amp > 255 {
			return nil, fmt.Errorf("%w: noise amplitude %q must be 0-255", ErrInvalidStep, arg)
		}
		return Noise{Amplitude: amp}, nil
	case "flip":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: flip count %q must be non-negative", ErrInvalidStep, arg)
		}
		return FlipCells{Count: n, Layout: layout}, nil
	}
	return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidStep, name)
}
