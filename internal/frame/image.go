package frame

import (
	"image"
	"image/color"
)

// ToImage converts the frame to a standard image. RGB formats become
// *image.NRGBA, YUV formats a full resolution *image.YCbCr and GRAY8
// *image.Gray, so luma survives the conversion unchanged.
func (f *Frame) ToImage() image.Image {
	w, h := f.Info.Width, f.Info.Height
	comps := f.desc.Components
	switch f.desc.Family {
	case FamilyRGB:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				a := uint8(0xff)
				if f.desc.HasAlpha {
					a = f.At(comps[3], x, y)
				}
				i := img.PixOffset(x, y)
				img.Pix[i+0] = f.At(comps[0], x, y)
				img.Pix[i+1] = f.At(comps[1], x, y)
				img.Pix[i+2] = f.At(comps[2], x, y)
				img.Pix[i+3] = a
			}
		}
		return img
	case FamilyYUV:
		img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio444)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Y[img.YOffset(x, y)] = f.At(comps[0], x, y)
				ci := img.COffset(x, y)
				img.Cb[ci] = f.At(comps[1], x, y)
				img.Cr[ci] = f.At(comps[2], x, y)
			}
		}
		return img
	default:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Pix[img.PixOffset(x, y)] = f.At(comps[0], x, y)
			}
		}
		return img
	}
}

// Draw copies img into the frame, converting colour models as needed. The
// image is anchored at its bounds' minimum point; pixels outside either
// rectangle are ignored. Subsampled chroma takes the top-left pixel of each
// block.
func (f *Frame) Draw(img image.Image) {
	b := img.Bounds()
	w := min(b.Dx(), f.Info.Width)
	h := min(b.Dy(), f.Info.Height)
	comps := f.desc.Components

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := b.Min.X+x, b.Min.Y+y
			switch f.desc.Family {
			case FamilyRGB:
				c := color.NRGBAModel.Convert(img.At(px, py)).(color.NRGBA)
				f.Set(comps[0], x, y, c.R)
				f.Set(comps[1], x, y, c.G)
				f.Set(comps[2], x, y, c.B)
				if f.desc.HasAlpha {
					f.Set(comps[3], x, y, c.A)
				}
			case FamilyYUV:
				yy, cb, cr := ycbcrAt(img, px, py)
				f.Set(comps[0], x, y, yy)
				if isBlockOrigin(comps[1], x, y) {
					f.Set(comps[1], x, y, cb)
					f.Set(comps[2], x, y, cr)
				}
				if f.desc.HasAlpha {
					f.Set(comps[3], x, y, 0xff)
				}
			default:
				yy, _, _ := ycbcrAt(img, px, py)
				f.Set(comps[0], x, y, yy)
			}
		}
	}
}

// FromImage allocates a frame of the given format holding img.
func FromImage(img image.Image, format Format) (*Frame, error) {
	b := img.Bounds()
	f, err := New(Info{Format: format, Width: b.Dx(), Height: b.Dy()})
	if err != nil {
		return nil, err
	}
	f.Draw(img)
	return f, nil
}

func isBlockOrigin(c Component, x, y int) bool {
	return x&((1<<c.HSub)-1) == 0 && y&((1<<c.VSub)-1) == 0
}

func ycbcrAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	switch src := img.(type) {
	case *image.YCbCr:
		c := src.YCbCrAt(x, y)
		return c.Y, c.Cb, c.Cr
	case *image.Gray:
		return src.GrayAt(x, y).Y, 128, 128
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}
