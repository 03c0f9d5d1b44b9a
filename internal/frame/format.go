// Package frame describes raw video frame buffers in the pixel formats used by
// GStreamer's video/x-raw caps and gives byte-level access to their samples.
package frame

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedFormat is returned for pixel formats outside the supported set.
var ErrUnsupportedFormat = errors.New("frame: unsupported pixel format")

// Format is a raw video format name as used in video/x-raw caps.
type Format string

// RGB family.
const (
	RGBx Format = "RGBx"
	BGRx Format = "BGRx"
	XRGB Format = "xRGB"
	XBGR Format = "xBGR"
	RGBA Format = "RGBA"
	BGRA Format = "BGRA"
	ARGB Format = "ARGB"
	ABGR Format = "ABGR"
	RGB  Format = "RGB"
	BGR  Format = "BGR"
	GBR  Format = "GBR"
	GBRA Format = "GBRA"
)

// YUV family and grayscale.
const (
	I420  Format = "I420"
	YV12  Format = "YV12"
	A420  Format = "A420"
	Y41B  Format = "Y41B"
	Y42B  Format = "Y42B"
	Y444  Format = "Y444"
	YUV9  Format = "YUV9"
	YVU9  Format = "YVU9"
	NV12  Format = "NV12"
	NV21  Format = "NV21"
	NV16  Format = "NV16"
	NV61  Format = "NV61"
	NV24  Format = "NV24"
	YUY2  Format = "YUY2"
	UYVY  Format = "UYVY"
	YVYU  Format = "YVYU"
	VYUY  Format = "VYUY"
	AYUV  Format = "AYUV"
	GRAY8 Format = "GRAY8"
)

// Family groups formats by colour model.
type Family int

const (
	FamilyRGB Family = iota
	FamilyYUV
	FamilyGray
)

func (f Family) String() string {
	switch f {
	case FamilyRGB:
		return "rgb"
	case FamilyYUV:
		return "yuv"
	case FamilyGray:
		return "gray"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Component locates one colour component inside a frame.
// The byte for pixel (x, y) lives in Planes[Plane] at
// (y>>VSub)*stride + (x>>HSub)*Step + Offset.
type Component struct {
	Plane  int
	Offset int
	Step   int
	HSub   uint
	VSub   uint
}

// Descriptor is the memory layout of a Format.
// Components are ordered R, G, B[, A] for RGB formats and Y, U, V[, A] for
// YUV formats. Grayscale has a single Y component.
type Descriptor struct {
	Format     Format
	Family     Family
	Planes     int
	Components []Component
	HasAlpha   bool
}

// Carriers returns the components that carry encoded data: luma for YUV and
// grayscale, the three colour channels for RGB. Alpha and chroma never do.
func (d Descriptor) Carriers() []Component {
	if d.Family == FamilyRGB {
		return d.Components[:3]
	}
	return d.Components[:1]
}

func packed(step int, offs ...int) []Component {
	out := make([]Component, len(offs))
	for i, o := range offs {
		out[i] = Component{Plane: 0, Offset: o, Step: step}
	}
	return out
}

func planar(planes []int, hsub, vsub uint) []Component {
	out := make([]Component, len(planes))
	for i, p := range planes {
		c := Component{Plane: p, Step: 1}
		// chroma only
		if i == 1 || i == 2 {
			c.HSub, c.VSub = hsub, vsub
		}
		out[i] = c
	}
	return out
}

func semiPlanar(uOff, vOff int, hsub, vsub uint) []Component {
	return []Component{
		{Plane: 0, Step: 1},
		{Plane: 1, Offset: uOff, Step: 2, HSub: hsub, VSub: vsub},
		{Plane: 1, Offset: vOff, Step: 2, HSub: hsub, VSub: vsub},
	}
}

func packed422(y, u, v int) []Component {
	return []Component{
		{Plane: 0, Offset: y, Step: 2},
		{Plane: 0, Offset: u, Step: 4, HSub: 1},
		{Plane: 0, Offset: v, Step: 4, HSub: 1},
	}
}

var descriptors = map[Format]Descriptor{
	RGBx: {Family: FamilyRGB, Planes: 1, Components: packed(4, 0, 1, 2)},
	BGRx: {Family: FamilyRGB, Planes: 1, Components: packed(4, 2, 1, 0)},
	XRGB: {Family: FamilyRGB, Planes: 1, Components: packed(4, 1, 2, 3)},
	XBGR: {Family: FamilyRGB, Planes: 1, Components: packed(4, 3, 2, 1)},
	RGBA: {Family: FamilyRGB, Planes: 1, Components: packed(4, 0, 1, 2, 3), HasAlpha: true},
	BGRA: {Family: FamilyRGB, Planes: 1, Components: packed(4, 2, 1, 0, 3), HasAlpha: true},
	ARGB: {Family: FamilyRGB, Planes: 1, Components: packed(4, 1, 2, 3, 0), HasAlpha: true},
	ABGR: {Family: FamilyRGB, Planes: 1, Components: packed(4, 3, 2, 1, 0), HasAlpha: true},
	RGB:  {Family: FamilyRGB, Planes: 1, Components: packed(3, 0, 1, 2)},
	BGR:  {Family: FamilyRGB, Planes: 1, Components: packed(3, 2, 1, 0)},
	// GBR planes are stored G, B, R.
	GBR:  {Family: FamilyRGB, Planes: 3, Components: planar([]int{2, 0, 1}, 0, 0)},
	GBRA: {Family: FamilyRGB, Planes: 4, Components: planar([]int{2, 0, 1, 3}, 0, 0), HasAlpha: true},

	I420: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 1, 2}, 1, 1)},
	YV12: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 2, 1}, 1, 1)},
	A420: {Family: FamilyYUV, Planes: 4, Components: planar([]int{0, 1, 2, 3}, 1, 1), HasAlpha: true},
	Y41B: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 1, 2}, 2, 0)},
	Y42B: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 1, 2}, 1, 0)},
	Y444: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 1, 2}, 0, 0)},
	YUV9: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 1, 2}, 2, 2)},
	YVU9: {Family: FamilyYUV, Planes: 3, Components: planar([]int{0, 2, 1}, 2, 2)},
	NV12: {Family: FamilyYUV, Planes: 2, Components: semiPlanar(0, 1, 1, 1)},
	NV21: {Family: FamilyYUV, Planes: 2, Components: semiPlanar(1, 0, 1, 1)},
	NV16: {Family: FamilyYUV, Planes: 2, Components: semiPlanar(0, 1, 1, 0)},
	NV61: {Family: FamilyYUV, Planes: 2, Components: semiPlanar(1, 0, 1, 0)},
	NV24: {Family: FamilyYUV, Planes: 2, Components: semiPlanar(0, 1, 0, 0)},
	YUY2: {Family: FamilyYUV, Planes: 1, Components: packed422(0, 1, 3)},
	UYVY: {Family: FamilyYUV, Planes: 1, Components: packed422(1, 0, 2)},
	YVYU: {Family: FamilyYUV, Planes: 1, Components: packed422(0, 3, 1)},
	VYUY: {Family: FamilyYUV, Planes: 1, Components: packed422(1, 2, 0)},
	AYUV: {Family: FamilyYUV, Planes: 1, Components: packed(4, 1, 2, 3, 0), HasAlpha: true},

	GRAY8: {Family: FamilyGray, Planes: 1, Components: packed(1, 0)},
}

// Describe returns the layout descriptor for a format.
func Describe(f Format) (Descriptor, error) {
	d, ok := descriptors[f]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
	d.Format = f
	return d, nil
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if _, err := Describe(f); err != nil {
		return "", err
	}
	return f, nil
}

// Supported lists all supported formats in lexical order.
func Supported() []Format {
	out := make([]Format, 0, len(descriptors))
	for f := range descriptors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
