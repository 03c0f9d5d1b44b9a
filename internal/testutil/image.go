package testutil

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// GrayImage returns a uniform gray image. Neutral gray converts to every
// supported pixel format without changing the carrier values.
func GrayImage(width, height int, v uint8) *image.NRGBA {
	return imaging.New(width, height, color.NRGBA{R: v, G: v, B: v, A: 255})
}

// GrayFrame returns a frame of info filled with the gray level v.
func GrayFrame(t testing.TB, info frame.Info, v uint8) *frame.Frame {
	t.Helper()

	f, err := frame.FromImage(GrayImage(info.Width, info.Height, v), info.Format)
	require.NoError(t, err, "Failed to build %s frame", info)
	return f
}

// SaveImage saves an image to the specified path. The encoder follows the
// file extension.
func SaveImage(t testing.TB, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
}

// WriteGrayImage writes a uniform gray image to dir/name and returns its path.
func WriteGrayImage(t testing.TB, dir, name string, width, height int, v uint8) string {
	t.Helper()

	path := filepath.Join(dir, name)
	SaveImage(t, GrayImage(width, height, v), path)
	return path
}

// LoadImage loads an image from the specified path.
func LoadImage(t testing.TB, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	return img
}

// CompareImages reports whether two images of equal bounds differ by at most
// tolerance, measured as mean absolute luma difference over 255.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds := img1.Bounds()
	if bounds != img2.Bounds() {
		return false
	}
	if bounds.Empty() {
		return true
	}

	var totalDiff float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			a := color.GrayModel.Convert(img1.At(x, y)).(color.Gray).Y
			b := color.GrayModel.Convert(img2.At(x, y)).(color.Gray).Y
			if a > b {
				totalDiff += float64(a - b)
			} else {
				totalDiff += float64(b - a)
			}
		}
	}
	mean := totalDiff / float64(bounds.Dx()*bounds.Dy()) / 255
	return mean <= tolerance
}
