//go:build gst

package gstpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Available reports whether GStreamer support is compiled in.
func Available() bool { return true }

// eosTimeout bounds how long Close waits for queued frames to drain.
const eosTimeout = 5 * time.Second

// Loopback pushes frames into an appsrc and delivers what comes out of the
// appsink. Send and Receive may be used from different goroutines.
type Loopback struct {
	cfg      Config
	logger   *slog.Logger
	pipeline *gst.Pipeline
	src      *app.Source
	sink     *app.Sink

	out     chan *frame.Frame
	mu      sync.Mutex // guards closed and sends on out
	closed  bool
	eos     chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	pushed  atomic.Uint64
}

// NewLoopback builds the pipeline in the NULL state.
func NewLoopback(cfg Config, logger *slog.Logger) (*Loopback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	gst.Init(nil)

	launch := Launch(cfg)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	srcElem, err := pipeline.GetElementByName("src")
	if err != nil {
		return nil, fmt.Errorf("failed to find appsrc: %w", err)
	}
	sinkElem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("failed to find appsink: %w", err)
	}

	l := &Loopback{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		src:      app.SrcFromElement(srcElem),
		sink:     app.SinkFromElement(sinkElem),
		out:      make(chan *frame.Frame, max(cfg.Buffer, 1)),
		eos:      make(chan struct{}),
	}
	l.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: l.onNewSample,
	})
	logger.Debug("gstpipe: pipeline created", "launch", launch)
	return l, nil
}

// onNewSample copies the decoded frame out of GStreamer memory.
func (l *Loopback) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		l.logger.Warn("gstpipe: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		l.logger.Warn("gstpipe: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	owned := make([]byte, len(data))
	copy(owned, data)
	buffer.Unmap()

	f, err := frame.FromContiguous(l.cfg.Info, owned)
	if err != nil {
		l.logger.Warn("gstpipe: unexpected buffer size", "size_bytes", len(owned), "error", err)
		return gst.FlowOK
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return gst.FlowEOS
	}
	select {
	case l.out <- f:
	default:
		l.dropped.Add(1)
		l.logger.Debug("gstpipe: dropping frame, channel full")
	}
	return gst.FlowOK
}

// Start sets the pipeline to PLAYING.
func (l *Loopback) Start() error {
	if err := l.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	return nil
}

// Send pushes a copy of f into the pipeline.
func (l *Loopback) Send(f *frame.Frame) error {
	if f.Info != l.cfg.Info {
		return fmt.Errorf("%w: frame %s, pipeline %s", ErrInvalidConfig, f.Info, l.cfg.Info)
	}
	if ret := l.src.PushBuffer(gst.NewBufferFromBytes(f.Contiguous())); ret != gst.FlowOK {
		return fmt.Errorf("%w: push returned %s", ErrClosed, ret)
	}
	l.pushed.Add(1)
	return nil
}

// Receive returns the decoded frames. The channel is closed by Close.
func (l *Loopback) Receive() <-chan *frame.Frame { return l.out }

// Dropped counts decoded frames discarded because nobody was receiving.
func (l *Loopback) Dropped() uint64 { return l.dropped.Load() }

// Watch polls the bus until ctx is done or the stream ends. It returns the
// first pipeline error.
func (l *Loopback) Watch(ctx context.Context) error {
	bus := l.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			l.logger.Debug("gstpipe: end of stream", "pushed", l.pushed.Load())
			close(l.eos)
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			l.logger.Error("gstpipe: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString())
			return fmt.Errorf("pipeline error: %s", gerr.Error())
		}
	}
}

// Close sends end-of-stream, waits for queued frames to drain (when Watch is
// running) and tears the pipeline down.
func (l *Loopback) Close() error {
	var err error
	l.once.Do(func() {
		if ret := l.src.EndStream(); ret == gst.FlowOK {
			select {
			case <-l.eos:
			case <-time.After(eosTimeout):
				l.logger.Warn("gstpipe: timed out waiting for end of stream")
			}
		}
		err = l.pipeline.SetState(gst.StateNull)

		l.mu.Lock()
		l.closed = true
		close(l.out)
		l.mu.Unlock()
	})
	return err
}
