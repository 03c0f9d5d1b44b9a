// Package latency stamps outgoing frames with the current monotonic time and
// measures, on the receiving side, how long ago a frame was stamped.
package latency

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
)

var (
	ErrInvalidConfig      = errors.New("latency: invalid configuration")
	ErrNotConfigured      = errors.New("latency: stream format not configured")
	ErrFutureTimestamp    = errors.New("latency: timestamp lies in the future")
	ErrImplausibleLatency = errors.New("latency: latency exceeds plausible maximum")
	ErrUnknownElement     = errors.New("latency: unknown element")
	ErrDuplicateElement   = errors.New("latency: element already registered")
)

const (
	DefaultMaxLatency    = 10 * time.Second
	DefaultSkewTolerance = time.Millisecond
)

// Config is the per-element configuration. It is fixed for a session and
// must match between the stamping and measuring side.
type Config struct {
	Layout    pixelcodec.Layout
	Variant   integrity.Variant
	Tolerance int
	// Levels zero value means the saturating defaults.
	Levels pixelcodec.Levels

	// Measurer only. Zero MaxLatency disables the plausibility check.
	MaxLatency    time.Duration
	SkewTolerance time.Duration
}

// DefaultConfig returns a 64x64 region at the origin, 4px cells, the
// checksummed variant and tolerance 5.
func DefaultConfig() Config {
	return Config{
		Layout:        pixelcodec.DefaultLayout(),
		Variant:       integrity.DefaultVariant,
		Tolerance:     pixelcodec.DefaultTolerance,
		Levels:        pixelcodec.DefaultLevels(),
		MaxLatency:    DefaultMaxLatency,
		SkewTolerance: DefaultSkewTolerance,
	}
}

func (c Config) levels() pixelcodec.Levels {
	if c.Levels == (pixelcodec.Levels{}) {
		return pixelcodec.DefaultLevels()
	}
	return c.Levels
}

// Validate checks everything that does not depend on the stream format and
// builds the integrity scheme the layout can hold.
func (c Config) Validate() error {
	_, err := c.scheme()
	return err
}

func (c Config) scheme() (integrity.Scheme, error) {
	if _, err := integrity.ParseVariant(string(c.Variant)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Tolerance < 0 {
		return nil, fmt.Errorf("%w: negative tolerance %d", ErrInvalidConfig, c.Tolerance)
	}
	if c.MaxLatency < 0 || c.SkewTolerance < 0 {
		return nil, fmt.Errorf("%w: negative latency bounds", ErrInvalidConfig)
	}
	v, _ := integrity.ParseVariant(string(c.Variant))
	s, err := integrity.New(v, c.Layout.Capacity())
	if errors.Is(err, integrity.ErrInsufficientCapacity) {
		return nil, fmt.Errorf("%w: %w", pixelcodec.ErrPayloadTooLarge, err)
	}
	return s, err
}

type options struct {
	clock    clock.Clock
	reporter Reporter
	logger   *slog.Logger
	stream   string
}

// Option customises a Stamper or Measurer.
type Option func(*options)

// WithClock replaces the host monotonic clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithReporter sets where a Measurer delivers measurements.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStream names the stream in logs and reported measurements.
func WithStream(name string) Option {
	return func(o *options) { o.stream = name }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:    clock.NewMonotonic(),
		reporter: Discard,
		logger:   slog.Default(),
		stream:   "default",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
