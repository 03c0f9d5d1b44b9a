package latency

import (
	"log/slog"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/mempool"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
)

// Measurer reads stamps from received frames and reports the latency. Frames
// pass through unmodified. One Measurer serves one stream.
type Measurer struct {
	cfg      Config
	clock    clock.Clock
	reporter Reporter
	logger   *slog.Logger
	stream   string

	scheme integrity.Scheme
	codec  *pixelcodec.Codec

	lastSeq uint16
	haveSeq bool
}

// NewMeasurer builds a measurer. cfg must match the stamping side.
func NewMeasurer(cfg Config, opts ...Option) (*Measurer, error) {
	scheme, err := cfg.scheme()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Measurer{
		cfg:      cfg,
		clock:    o.clock,
		reporter: o.reporter,
		logger:   o.logger,
		stream:   o.stream,
		scheme:   scheme,
	}, nil
}

func (m *Measurer) Name() string { return MeasurerElement }

// ValidateConfiguration binds the measurer to a stream format.
func (m *Measurer) ValidateConfiguration(info frame.Info) error {
	codec, err := pixelcodec.New(info, m.cfg.Layout,
		pixelcodec.WithLevels(m.cfg.levels()),
		pixelcodec.WithTolerance(m.cfg.Tolerance))
	if err != nil {
		return err
	}
	m.codec = codec
	m.haveSeq = false
	m.logger.Debug("Measurer configured",
		"stream", m.stream,
		"format", info.String(),
		"region", m.cfg.Layout.Region.String(),
		"variant", m.scheme.Variant())
	return nil
}

// Apply measures f and hands the result to the reporter. Decode failures are
// reported, not returned; the frame is never dropped because of them.
func (m *Measurer) Apply(f *frame.Frame) error {
	res, err := m.Measure(f)
	if err != nil {
		return err
	}
	m.reporter.Report(res)
	return nil
}

// Measure decodes the stamp in f. The receive time is taken before decoding
// so that decode cost is not counted as latency. The returned error is set
// only when f cannot be read at all.
func (m *Measurer) Measure(f *frame.Frame) (Measurement, error) {
	if m.codec == nil {
		return Measurement{}, ErrNotConfigured
	}
	now := m.clock.Now()

	bits := mempool.GetBool(m.scheme.CodewordBits())
	defer mempool.PutBool(bits)

	stats, err := m.codec.Read(f, bits)
	if err != nil {
		return Measurement{}, err
	}

	res := Measurement{
		Stream:         m.stream,
		Variant:        m.scheme.Variant(),
		ReceiveTime:    now,
		AmbiguousCells: stats.Ambiguous,
	}

	// a region read entirely inside the dead band was never stamped
	if stats.Cells > 0 && stats.Ambiguous == stats.Cells {
		res.Status = StatusFailed
		res.Err = integrity.ErrNoStamp
		return res, nil
	}

	dec, err := m.scheme.Decode(bits)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res, nil
	}

	res.StampTime = dec.Payload.Timestamp
	res.Seq = dec.Payload.Seq
	res.CorrectedBits = dec.Corrected
	res.Delta = signedDelta(now, res.StampTime)

	switch {
	case res.Delta < -m.cfg.SkewTolerance:
		res.Status = StatusSuspect
		res.Err = ErrFutureTimestamp
	case m.cfg.MaxLatency > 0 && res.Delta > m.cfg.MaxLatency:
		res.Status = StatusSuspect
		res.Err = ErrImplausibleLatency
	default:
		res.Status = StatusOK
	}

	// repeated frames share a sequence number and are not a gap
	if d := res.Seq - m.lastSeq; m.haveSeq && d != 0 {
		res.SeqGap = int(d - 1)
	}
	m.lastSeq, m.haveSeq = res.Seq, true

	return res, nil
}

func (m *Measurer) Contract() integrity.Contract {
	return m.scheme.Contract()
}

func (m *Measurer) Config() Config { return m.cfg }
