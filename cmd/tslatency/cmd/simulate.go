package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/config"
	"github.com/MeKo-Tech/tslatency/internal/gstpipe"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/MeKo-Tech/tslatency/internal/simulate"
	"github.com/spf13/cobra"
)

// simulateCmd represents the simulate command.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Stamp and measure a synthetic stream over a simulated transport",
	Long: `Run a stamper and a measurer back to back on a generated test pattern. The
transport between them delays, drops and degrades frames as configured, so a
stamp geometry and variant can be checked before deploying them.

By default time is virtual and the run finishes as fast as possible. With
--realtime frames are paced at the stream frame rate on the host clock. The
gst transport sends frames through a real GStreamer encoder and decoder and
needs a binary built with -tags gst.

Degradation steps (comma separated): jpeg:Q, blur:SIGMA, scale:FACTOR,
noise:AMPLITUDE, flip:COUNT.

Examples:
  tslatency simulate
  tslatency simulate --frames 1000 --delay 80ms --jitter 20ms --drop-rate 0.05
  tslatency simulate --variant fast-robust --cell-size 8 --degrade jpeg:50,noise:8
  tslatency simulate --transport gst --encoder x264 --format json`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	defaults := config.DefaultConfig()

	rootCmd.AddCommand(simulateCmd)
	f := simulateCmd.Flags()
	f.Int("frames", defaults.Simulate.Frames, "frames to produce (0 runs until interrupted)")
	f.String("delay", defaults.Simulate.Delay, "mean transport delay")
	f.String("jitter", defaults.Simulate.Jitter, "maximum deviation from the mean delay")
	f.Float64("drop-rate", defaults.Simulate.DropRate, "probability that a frame is lost [0, 1)")
	f.String("degrade", defaults.Simulate.Degrade, "degradation chain applied after stamping")
	f.Int64("seed", defaults.Simulate.Seed, "random seed for jitter, loss and noise")
	f.Bool("realtime", defaults.Simulate.Realtime, "pace frames on the host clock")
	f.String("transport", defaults.Simulate.Transport, "transport between stamper and measurer (model, gst)")
	f.String("encoder", defaults.Transport.Encoder, "gst transport encoder (none, x264, jpeg)")
	f.Int("bitrate", defaults.Transport.Bitrate, "gst x264 bitrate in kbit/s")
	f.Int("quality", defaults.Transport.Quality, "gst jpeg quality (1-100)")
	f.Int("buffer", defaults.Transport.Buffer, "gst decoded frame queue length")
	addOutputFlags(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reporter latency.Reporter
	if cfg.Verbose {
		reporter = report.NewLogReporter(slog.Default())
	}
	sim, cleanup, err := newSimulator(ctx, cfg, reporter)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := sim.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	w, closeOutput, err := openOutput(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeOutput() }()

	if cfg.Output.Format == formatText {
		return writeResultText(w, res)
	}
	return writeStructured(w, cfg.Output.Format, res)
}

// newSimulator builds the configured simulation. With the gst transport it
// starts the loopback pipeline and runs in real time; cleanup stops the bus
// watcher.
func newSimulator(ctx context.Context, cfg *config.Config, reporter latency.Reporter) (*simulate.Simulator, func(), error) {
	scfg, err := cfg.ToSimulateConfig()
	if err != nil {
		return nil, nil, err
	}
	useGst := cfg.Simulate.Transport == config.TransportGst
	if useGst && !scfg.Realtime {
		slog.Info("GStreamer transport runs in real time")
		scfg.Realtime = true
	}

	sim, err := simulate.New(scfg, reporter, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	if !useGst {
		return sim, func() {}, nil
	}

	loop, err := gstpipe.NewLoopback(cfg.ToTransportConfig(), slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GStreamer transport: %w", err)
	}
	if err := loop.Start(); err != nil {
		_ = loop.Close()
		return nil, nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := loop.Watch(watchCtx); err != nil {
			slog.Error("GStreamer transport failed", "error", err)
		}
	}()
	sim.UseLink(loop)

	return sim, func() {
		cancel()
		<-done
		if n := loop.Dropped(); n > 0 {
			slog.Warn("GStreamer transport dropped decoded frames", "count", n)
		}
	}, nil
}

func writeResultText(w io.Writer, res simulate.Result) error {
	p := newPrinter()
	s := res.Summary

	lines := []string{
		p.Sprintf("Run:        %s", res.RunID),
		p.Sprintf("Stream:     %s (%s)", res.Stream, res.Variant),
		p.Sprintf("Frames:     %d stamped, %d dropped", res.Stamped, res.Dropped),
		p.Sprintf("Decoded:    %d ok, %d suspect, %d failed (%.1f%%)",
			s.OK, s.Suspect, s.Failed, 100*s.DecodeRate()),
	}
	if res.Degrade != "" {
		lines = append(lines, p.Sprintf("Degrade:    %s", res.Degrade))
	}
	if s.OK+s.Suspect > 0 {
		lines = append(lines,
			p.Sprintf("Latency:    min %v, p50 %v, p90 %v, p99 %v, max %v",
				round(s.Min), round(s.P50), round(s.P90), round(s.P99), round(s.Max)),
			p.Sprintf("Corrected:  %d frames, %d bits", s.Corrected, s.CorrectedBits))
	}
	if s.SequenceGaps > 0 {
		lines = append(lines, p.Sprintf("Seq gaps:   %d", s.SequenceGaps))
	}
	for _, st := range res.Stages {
		lines = append(lines, p.Sprintf("Stage:      %-8s %d runs, avg %v", st.Name, st.Count, round(st.Mean())))
	}
	lines = append(lines, p.Sprintf("Elapsed:    %v", round(res.Elapsed)))
	if res.Canceled {
		lines = append(lines, "Interrupted before the frame budget was spent")
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}
