package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaneLayout_I420(t *testing.T) {
	strides, sizes, err := PlaneLayout(Info{Format: I420, Width: 1920, Height: 1080})
	require.NoError(t, err)
	assert.Equal(t, []int{1920, 960, 960}, strides)
	assert.Equal(t, []int{1920 * 1080, 960 * 540, 960 * 540}, sizes)

	size, err := Size(Info{Format: I420, Width: 1920, Height: 1080})
	require.NoError(t, err)
	assert.Equal(t, 1920*1080*3/2, size)
}

func TestPlaneLayout_OddSizes(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		strides []int
		sizes   []int
	}{
		{"I420 odd", Info{I420, 7, 5}, []int{8, 4, 4}, []int{40, 12, 12}},
		{"RGB", Info{RGB, 5, 2}, []int{16}, []int{32}},
		{"RGBx", Info{RGBx, 3, 3}, []int{12}, []int{36}},
		{"YUY2", Info{YUY2, 6, 2}, []int{12}, []int{24}},
		{"NV12", Info{NV12, 6, 4}, []int{8, 8}, []int{32, 16}},
		{"GRAY8", Info{GRAY8, 10, 3}, []int{12}, []int{36}},
		{"YUV9", Info{YUV9, 16, 8}, []int{16, 4, 4}, []int{128, 8, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strides, sizes, err := PlaneLayout(tt.info)
			require.NoError(t, err)
			assert.Equal(t, tt.strides, strides)
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestDescribe_Unsupported(t *testing.T) {
	for _, name := range []string{"IYU1", "v210", "", "rgb"} {
		_, err := ParseFormat(name)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func TestCarriers(t *testing.T) {
	for _, f := range Supported() {
		d, err := Describe(f)
		require.NoError(t, err)
		switch d.Family {
		case FamilyRGB:
			assert.Len(t, d.Carriers(), 3, f)
		default:
			assert.Len(t, d.Carriers(), 1, f)
			assert.Equal(t, uint(0), d.Carriers()[0].HSub, f)
			assert.Equal(t, uint(0), d.Carriers()[0].VSub, f)
		}
	}
}

func TestComponentsDoNotOverlap(t *testing.T) {
	for _, format := range Supported() {
		t.Run(string(format), func(t *testing.T) {
			f, err := New(Info{Format: format, Width: 8, Height: 4})
			require.NoError(t, err)
			seen := map[[2]int]bool{}
			for _, c := range f.Descriptor().Components {
				for y := 0; y < 4; y++ {
					for x := 0; x < 8; x++ {
						if !isBlockOrigin(c, x, y) {
							continue
						}
						key := [2]int{c.Plane, f.Offset(c, x, y)}
						assert.False(t, seen[key], "component byte shared at %v", key)
						seen[key] = true
					}
				}
			}
		})
	}
}

func TestWrap_Validation(t *testing.T) {
	info := Info{Format: I420, Width: 4, Height: 4}

	_, err := Wrap(info, [][]byte{make([]byte, 16)}, []int{4})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = Wrap(info, [][]byte{make([]byte, 16), make([]byte, 4), make([]byte, 3)}, []int{4, 2, 2})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	f, err := Wrap(info, [][]byte{make([]byte, 16), make([]byte, 4), make([]byte, 4)}, []int{4, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, info, f.Info)

	_, err = New(Info{Format: I420, Width: 0, Height: 4})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFromContiguous_AliasesBuffer(t *testing.T) {
	info := Info{Format: NV12, Width: 4, Height: 2}
	size, err := Size(info)
	require.NoError(t, err)
	buf := make([]byte, size)

	f, err := FromContiguous(info, buf)
	require.NoError(t, err)
	f.Set(f.Descriptor().Components[2], 3, 1, 0x7f)
	assert.Equal(t, uint8(0x7f), buf[8+3])
	assert.Equal(t, buf, f.Contiguous())

	_, err = FromContiguous(info, buf[:size-1])
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFillAndClone(t *testing.T) {
	f, err := New(Info{Format: YUY2, Width: 4, Height: 2})
	require.NoError(t, err)
	f.Fill(16, 128, 128)
	assert.Equal(t, []byte{16, 128, 16, 128, 16, 128, 16, 128}, f.Planes[0][:8])

	c := f.Clone()
	c.Planes[0][0] = 0
	assert.Equal(t, uint8(16), f.Planes[0][0])
}

func TestImageRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			src.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	for _, format := range Supported() {
		t.Run(string(format), func(t *testing.T) {
			f, err := FromImage(src, format)
			require.NoError(t, err)
			carrier := f.Descriptor().Carriers()[0]
			for y := 0; y < 8; y++ {
				for x := 0; x < 8; x++ {
					want := uint8(0)
					if (x+y)%2 == 0 {
						want = 255
					}
					require.Equal(t, want, f.At(carrier, x, y), "pixel %d,%d", x, y)
				}
			}

			back, err := FromImage(f.ToImage(), format)
			require.NoError(t, err)
			assert.Equal(t, f.Planes[0], back.Planes[0])
		})
	}
}
