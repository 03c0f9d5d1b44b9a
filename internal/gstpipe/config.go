// Package gstpipe runs stamped frames through a real GStreamer encode and
// decode loop (appsrc → encoder → decoder → appsink) so that latency and
// codec damage come from the media framework instead of a model.
//
// The GStreamer binding needs cgo and the GStreamer development libraries,
// so it is only compiled with the "gst" build tag. Without it NewLoopback
// reports ErrUnavailable.
package gstpipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/tslatency/internal/frame"
)

var (
	ErrUnavailable   = errors.New("gstpipe: built without GStreamer support (use -tags gst)")
	ErrInvalidConfig = errors.New("gstpipe: invalid configuration")
	ErrClosed        = errors.New("gstpipe: loopback closed")
)

// Encoders selectable in Config.Encoder.
const (
	EncoderNone = "none"
	EncoderH264 = "x264"
	EncoderJPEG = "jpeg"
)

// Config describes the loopback.
type Config struct {
	Info frame.Info
	FPS  int
	// Encoder is one of none, x264 or jpeg.
	Encoder string
	// Bitrate in kbit/s for x264.
	Bitrate int
	// Quality 1-100 for jpeg.
	Quality int
	// Buffer is the capacity of the output channel. Frames are dropped when
	// it is full.
	Buffer int
}

func DefaultConfig(info frame.Info) Config {
	return Config{
		Info:    info,
		FPS:     30,
		Encoder: EncoderH264,
		Bitrate: 4000,
		Quality: 85,
		Buffer:  16,
	}
}

func (c Config) Validate() error {
	if err := c.Info.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive", ErrInvalidConfig)
	}
	switch c.Encoder {
	case EncoderNone, EncoderH264, EncoderJPEG:
	default:
		return fmt.Errorf("%w: unknown encoder %q", ErrInvalidConfig, c.Encoder)
	}
	if c.Encoder == EncoderH264 && c.Bitrate <= 0 {
		return fmt.Errorf("%w: bitrate must be positive", ErrInvalidConfig)
	}
	if c.Encoder == EncoderJPEG && (c.Quality < 1 || c.Quality > 100) {
		return fmt.Errorf("%w: jpeg quality %d outside 1-100", ErrInvalidConfig, c.Quality)
	}
	return nil
}

// Caps returns the raw video caps for info at fps.
func Caps(info frame.Info, fps int) string {
	return fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d,framerate=%d/1",
		info.Format, info.Width, info.Height, fps)
}

// Launch returns the gst-launch description of the loopback. The appsrc is
// named "src" and the appsink "sink".
func Launch(c Config) string {
	caps := Caps(c.Info, c.FPS)
	parts := []string{
		fmt.Sprintf("appsrc name=src is-live=true do-timestamp=true format=time caps=%q", caps),
		"queue",
	}
	switch c.Encoder {
	case EncoderH264:
		parts = append(parts,
			"videoconvert",
			fmt.Sprintf("x264enc tune=zerolatency speed-preset=ultrafast bitrate=%d key-int-max=%d", c.Bitrate, c.FPS),
			"h264parse",
			"avdec_h264",
		)
	case EncoderJPEG:
		parts = append(parts,
			"videoconvert",
			fmt.Sprintf("jpegenc quality=%d", c.Quality),
			"jpegdec",
		)
	}
	parts = append(parts,
		"videoconvert",
		fmt.Sprintf("capsfilter caps=%q", Caps(c.Info, c.FPS)),
		"appsink name=sink sync=false emit-signals=false",
	)
	return strings.Join(parts, " ! ")
}
