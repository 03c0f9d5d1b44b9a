package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame is returned when plane buffers do not match the frame info.
var ErrInvalidFrame = errors.New("frame: invalid frame buffer")

// Info is the negotiated geometry of a stream.
type Info struct {
	Format Format `json:"format" yaml:"format"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s %dx%d", i.Format, i.Width, i.Height)
}

// Validate checks that the format is supported and the dimensions positive.
func (i Info) Validate() error {
	if _, err := Describe(i.Format); err != nil {
		return err
	}
	if i.Width <= 0 || i.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, i.Width, i.Height)
	}
	return nil
}

// Frame is a mutable raw video frame. Planes may be owned by the caller.
type Frame struct {
	Info    Info
	Planes  [][]byte
	Strides []int

	desc Descriptor
}

func ceilShift(v int, s uint) int {
	return (v + (1 << s) - 1) >> s
}

func roundUp4(v int) int {
	return (v + 3) &^ 3
}

// PlaneLayout returns the default per-plane strides and sizes for info,
// matching GStreamer's default video/x-raw layout (4-byte aligned rows).
func PlaneLayout(info Info) (strides, sizes []int, err error) {
	if err := info.Validate(); err != nil {
		return nil, nil, err
	}
	d, _ := Describe(info.Format)
	strides = make([]int, d.Planes)
	rows := make([]int, d.Planes)
	for _, c := range d.Components {
		row := (ceilShift(info.Width, c.HSub)-1)*c.Step + c.Offset + 1
		if row > strides[c.Plane] {
			strides[c.Plane] = row
		}
		if h := ceilShift(info.Height, c.VSub); h > rows[c.Plane] {
			rows[c.Plane] = h
		}
	}
	sizes = make([]int, d.Planes)
	for p := range strides {
		strides[p] = roundUp4(strides[p])
		sizes[p] = strides[p] * rows[p]
	}
	return strides, sizes, nil
}

// Size returns the byte size of a contiguous frame with the default layout.
func Size(info Info) (int, error) {
	_, sizes, err := PlaneLayout(info)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	return total, nil
}

// New allocates a zeroed frame with the default layout.
func New(info Info) (*Frame, error) {
	size, err := Size(info)
	if err != nil {
		return nil, err
	}
	return FromContiguous(info, make([]byte, size))
}

// FromContiguous splits a single buffer holding all planes back to back, as
// produced by appsink, into a Frame. The planes alias data.
func FromContiguous(info Info, data []byte) (*Frame, error) {
	strides, sizes, err := PlaneLayout(info)
	if err != nil {
		return nil, err
	}
	planes := make([][]byte, len(sizes))
	off := 0
	for p, s := range sizes {
		if off+s > len(data) {
			return nil, fmt.Errorf("%w: buffer of %d bytes too small for %s", ErrInvalidFrame, len(data), info)
		}
		planes[p] = data[off : off+s : off+s]
		off += s
	}
	return Wrap(info, planes, strides)
}

// Wrap adopts externally owned plane buffers after checking that every
// component of every pixel is addressable.
func Wrap(info Info, planes [][]byte, strides []int) (*Frame, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	d, _ := Describe(info.Format)
	if len(planes) != d.Planes || len(strides) != d.Planes {
		return nil, fmt.Errorf("%w: %s needs %d planes, got %d", ErrInvalidFrame, info.Format, d.Planes, len(planes))
	}
	for _, c := range d.Components {
		lastCol := (ceilShift(info.Width, c.HSub)-1)*c.Step + c.Offset
		if lastCol >= strides[c.Plane] {
			return nil, fmt.Errorf("%w: stride %d of plane %d too small", ErrInvalidFrame, strides[c.Plane], c.Plane)
		}
		last := (ceilShift(info.Height, c.VSub)-1)*strides[c.Plane] + lastCol
		if last >= len(planes[c.Plane]) {
			return nil, fmt.Errorf("%w: plane %d holds %d bytes, need %d", ErrInvalidFrame, c.Plane, len(planes[c.Plane]), last+1)
		}
	}
	return &Frame{Info: info, Planes: planes, Strides: strides, desc: d}, nil
}

// Descriptor returns the layout of the frame's format.
func (f *Frame) Descriptor() Descriptor {
	return f.desc
}

// Offset returns the byte index of component c for pixel (x, y) in its plane.
func (f *Frame) Offset(c Component, x, y int) int {
	return (y>>c.VSub)*f.Strides[c.Plane] + (x>>c.HSub)*c.Step + c.Offset
}

// At returns the sample of component c at (x, y).
func (f *Frame) At(c Component, x, y int) uint8 {
	return f.Planes[c.Plane][f.Offset(c, x, y)]
}

// Set stores v as the sample of component c at (x, y).
func (f *Frame) Set(c Component, x, y int, v uint8) {
	f.Planes[c.Plane][f.Offset(c, x, y)] = v
}

// Clone returns a deep copy with the default layout.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Info:    f.Info,
		Planes:  make([][]byte, len(f.Planes)),
		Strides: append([]int(nil), f.Strides...),
		desc:    f.desc,
	}
	for i, p := range f.Planes {
		out.Planes[i] = append([]byte(nil), p...)
	}
	return out
}

// Contiguous returns all planes concatenated in plane order.
func (f *Frame) Contiguous() []byte {
	n := 0
	for _, p := range f.Planes {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range f.Planes {
		out = append(out, p...)
	}
	return out
}

// Fill sets every pixel of the frame to the given component values, ordered
// like the descriptor's components. Missing values are left untouched.
func (f *Frame) Fill(values ...uint8) {
	for i, c := range f.desc.Components {
		if i >= len(values) {
			break
		}
		w := ceilShift(f.Info.Width, c.HSub)
		h := ceilShift(f.Info.Height, c.VSub)
		plane := f.Planes[c.Plane]
		stride := f.Strides[c.Plane]
		for y := 0; y < h; y++ {
			row := y*stride + c.Offset
			for x := 0; x < w; x++ {
				plane[row+x*c.Step] = values[i]
			}
		}
	}
}
