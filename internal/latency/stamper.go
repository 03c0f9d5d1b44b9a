package latency

import (
	"log/slog"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
)

// Stamper writes the current clock reading into every frame it is applied
// to. One Stamper serves one stream and is not safe for concurrent Apply.
type Stamper struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
	stream string

	scheme integrity.Scheme
	codec  *pixelcodec.Codec
	seq    uint16
}

// NewStamper builds a stamper. Region capacity is checked here against the
// selected variant; frame bounds are checked once the stream format is known.
func NewStamper(cfg Config, opts ...Option) (*Stamper, error) {
	scheme, err := cfg.scheme()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Stamper{
		cfg:    cfg,
		clock:  o.clock,
		logger: o.logger,
		stream: o.stream,
		scheme: scheme,
	}, nil
}

func (s *Stamper) Name() string { return StamperElement }

// ValidateConfiguration binds the stamper to a stream format.
func (s *Stamper) ValidateConfiguration(info frame.Info) error {
	codec, err := pixelcodec.New(info, s.cfg.Layout,
		pixelcodec.WithLevels(s.cfg.levels()),
		pixelcodec.WithTolerance(s.cfg.Tolerance))
	if err != nil {
		return err
	}
	s.codec = codec
	s.logger.Debug("Stamper configured",
		"stream", s.stream,
		"format", info.String(),
		"region", s.cfg.Layout.Region.String(),
		"cell_size", s.cfg.Layout.CellSize,
		"variant", s.scheme.Variant(),
		"codeword_bits", s.scheme.CodewordBits())
	return nil
}

// Apply stamps f in place.
func (s *Stamper) Apply(f *frame.Frame) error {
	_, err := s.Stamp(f)
	return err
}

// Stamp reads the clock, encodes it with the next sequence number and paints
// the codeword into f. The clock is read as late as possible so that the
// stamp reflects when the frame leaves.
func (s *Stamper) Stamp(f *frame.Frame) (integrity.Payload, error) {
	if s.codec == nil {
		return integrity.Payload{}, ErrNotConfigured
	}
	p := integrity.Payload{Seq: s.seq}
	p.Timestamp = s.clock.Now()
	if err := s.codec.Write(f, s.scheme.Encode(p)); err != nil {
		return integrity.Payload{}, err
	}
	s.seq++
	return p, nil
}

// Contract describes the scheme a measurer must use to read these stamps.
func (s *Stamper) Contract() integrity.Contract {
	return s.scheme.Contract()
}

func (s *Stamper) Config() Config { return s.cfg }
