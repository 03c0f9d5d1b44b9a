package simulate

import (
	"github.com/MeKo-Tech/tslatency/internal/frame"
)

// Source renders synthetic video: a horizontal luma gradient with a bright
// bar sweeping across it, so consecutive frames differ everywhere outside
// the stamp region.
type Source struct {
	info frame.Info
	base *frame.Frame
}

// NewSource prepares the static background for info.
func NewSource(info frame.Info) (*Source, error) {
	base, err := frame.New(info)
	if err != nil {
		return nil, err
	}
	base.Fill(128, 128, 128, 255)
	for _, c := range base.Descriptor().Carriers() {
		for y := 0; y < info.Height; y++ {
			for x := 0; x < info.Width; x++ {
				base.Set(c, x, y, uint8(32+x*160/info.Width))
			}
		}
	}
	return &Source{info: info, base: base}, nil
}

func (s *Source) Info() frame.Info { return s.info }

// Frame returns a new frame for index i.
func (s *Source) Frame(i int) *frame.Frame {
	f := s.base.Clone()
	const barWidth = 8
	x0 := (i * 4) % s.info.Width
	for _, c := range f.Descriptor().Carriers() {
		for y := 0; y < s.info.Height; y++ {
			for x := x0; x < min(x0+barWidth, s.info.Width); x++ {
				f.Set(c, x, y, 230)
			}
		}
	}
	return f
}
