// Package utils loads and saves still images as raw video frames for the
// command line tools.
package utils

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// LosslessImageExtensions can carry a stamp through a save and load cycle
// without damage.
var LosslessImageExtensions = []string{".png", ".bmp"}

// ImageProcessingError represents errors that can occur while reading or
// writing frame images.
type ImageProcessingError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("image %s error: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("image %s error for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	return slices.Contains(SupportedImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// IsLossless reports whether saving to path keeps every pixel value.
func IsLossless(path string) bool {
	return slices.Contains(LosslessImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path      string `json:"path" yaml:"path"`
	SizeBytes int64  `json:"size_bytes" yaml:"size_bytes"`
	Width     int    `json:"width" yaml:"width"`
	Height    int    `json:"height" yaml:"height"`
}

// LoadImage opens and decodes an image file, returning the image and metadata.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, ImageMetadata{}, &ImageProcessingError{
			Operation: "load",
			Path:      path,
			Err:       fmt.Errorf("unsupported format: %s", filepath.Ext(path)),
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Path: path, Err: err}
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "decode", Path: path, Err: err}
	}

	b := img.Bounds()
	return img, ImageMetadata{
		Path:      path,
		SizeBytes: fi.Size(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// LoadFrame loads path and converts it to a frame in the given pixel format.
func LoadFrame(path string, format frame.Format) (*frame.Frame, ImageMetadata, error) {
	img, meta, err := LoadImage(path)
	if err != nil {
		return nil, meta, err
	}
	f, err := frame.FromImage(img, format)
	if err != nil {
		return nil, meta, &ImageProcessingError{Operation: "convert", Path: path, Err: err}
	}
	return f, meta, nil
}

// SaveFrame renders f and writes it to path. The encoder is picked from the
// file extension.
func SaveFrame(path string, f *frame.Frame) error {
	if !IsSupportedImage(path) {
		return &ImageProcessingError{
			Operation: "save",
			Path:      path,
			Err:       fmt.Errorf("unsupported format: %s", filepath.Ext(path)),
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return &ImageProcessingError{Operation: "save", Path: path, Err: err}
		}
	}
	if err := imaging.Save(f.ToImage(), path, imaging.JPEGQuality(95)); err != nil {
		return &ImageProcessingError{Operation: "save", Path: path, Err: err}
	}
	return nil
}

// BatchFrameResult is the outcome of loading one path in LoadFrames.
type BatchFrameResult struct {
	Path  string
	Frame *frame.Frame
	Meta  ImageMetadata
	Err   error
}

// LoadFrames loads multiple images and returns results in-order.
// Any failed load returns a non-nil error in the corresponding entry.
func LoadFrames(paths []string, format frame.Format) []BatchFrameResult {
	results := make([]BatchFrameResult, 0, len(paths))
	for _, p := range paths {
		f, meta, err := LoadFrame(p, format)
		results = append(results, BatchFrameResult{Path: p, Frame: f, Meta: meta, Err: err})
	}
	return results
}
