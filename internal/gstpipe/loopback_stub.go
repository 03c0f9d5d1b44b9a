//go:build !gst

package gstpipe

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/tslatency/internal/frame"
)

// Available reports whether GStreamer support is compiled in.
func Available() bool { return false }

// Loopback is unavailable in this build.
type Loopback struct{}

func NewLoopback(Config, *slog.Logger) (*Loopback, error) {
	return nil, ErrUnavailable
}

func (*Loopback) Start() error                 { return ErrUnavailable }
func (*Loopback) Send(*frame.Frame) error      { return ErrUnavailable }
func (*Loopback) Receive() <-chan *frame.Frame { return nil }
func (*Loopback) Watch(context.Context) error  { return ErrUnavailable }
func (*Loopback) Close() error                 { return nil }
func (*Loopback) Dropped() uint64              { return 0 }
