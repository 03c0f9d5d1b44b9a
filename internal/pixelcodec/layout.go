// Package pixelcodec moves bits in and out of a rectangular block of pixels.
// Each bit occupies one square cell, written at a saturating level and read
// back by thresholding, so it survives moderate lossy processing.
package pixelcodec

import (
	"errors"
	"fmt"
)

var (
	ErrRegionOutOfBounds = errors.New("pixelcodec: region out of bounds")
	ErrPayloadTooLarge   = errors.New("pixelcodec: payload exceeds region capacity")
	ErrInvalidLayout     = errors.New("pixelcodec: invalid layout")
	ErrFrameMismatch     = errors.New("pixelcodec: frame does not match configured stream")
)

const (
	// DefaultCellSize gives a 16x16 grid of 256 cells on the default region.
	DefaultCellSize  = 4
	DefaultTolerance = 5
)

// Region is a rectangle in pixel coordinates.
type Region struct {
	X      int `mapstructure:"x" yaml:"x" json:"x"`
	Y      int `mapstructure:"y" yaml:"y" json:"y"`
	Width  int `mapstructure:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" yaml:"height" json:"height"`
}

// DefaultRegion is 64x64 at the origin.
func DefaultRegion() Region {
	return Region{X: 0, Y: 0, Width: 64, Height: 64}
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Fits reports ErrRegionOutOfBounds unless r lies fully inside a frame of
// the given dimensions.
func (r Region) Fits(width, height int) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: empty region %s", ErrRegionOutOfBounds, r)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > width || r.Y+r.Height > height {
		return fmt.Errorf("%w: %s does not fit %dx%d", ErrRegionOutOfBounds, r, width, height)
	}
	return nil
}

// Layout divides a region into square bit cells in row-major order.
type Layout struct {
	Region   Region `mapstructure:",squash" yaml:",inline" json:"region"`
	CellSize int    `mapstructure:"cell_size" yaml:"cell_size" json:"cell_size"`
}

// DefaultLayout is the default region with 4x4 pixel cells.
func DefaultLayout() Layout {
	return Layout{Region: DefaultRegion(), CellSize: DefaultCellSize}
}

func (l Layout) Columns() int {
	if l.CellSize <= 0 {
		return 0
	}
	return l.Region.Width / l.CellSize
}

func (l Layout) Rows() int {
	if l.CellSize <= 0 {
		return 0
	}
	return l.Region.Height / l.CellSize
}

// Capacity is the number of bits the layout can carry.
func (l Layout) Capacity() int {
	return l.Columns() * l.Rows()
}

// Validate checks the layout independent of any frame.
func (l Layout) Validate() error {
	if l.CellSize <= 0 {
		return fmt.Errorf("%w: cell size %d", ErrInvalidLayout, l.CellSize)
	}
	if l.Region.Width <= 0 || l.Region.Height <= 0 {
		return fmt.Errorf("%w: empty region %s", ErrRegionOutOfBounds, l.Region)
	}
	if l.Capacity() == 0 {
		return fmt.Errorf("%w: region %s smaller than one %dpx cell", ErrInvalidLayout, l.Region, l.CellSize)
	}
	return nil
}

// CellOrigin returns the top-left pixel of cell i.
func (l Layout) CellOrigin(i int) (x, y int) {
	cols := l.Columns()
	return l.Region.X + (i%cols)*l.CellSize, l.Region.Y + (i/cols)*l.CellSize
}

// Levels are the two nominal sample values for 0 and 1 bits.
type Levels struct {
	Low  uint8 `yaml:"low" json:"low"`
	High uint8 `yaml:"high" json:"high"`
}

// DefaultLevels are the saturating extremes.
func DefaultLevels() Levels {
	return Levels{Low: 0, High: 255}
}
