package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/MeKo-Tech/tslatency/internal/utils"
	"github.com/spf13/cobra"
)

// measureCmd represents the measure command.
var measureCmd = &cobra.Command{
	Use:   "measure <image>...",
	Short: "Read latency stamps from images",
	Long: `Read the stamp of each image and report the delay between the stamped
time and now, both taken from the host monotonic clock. Images that carry no
readable stamp are reported as failed; they do not stop the run.

JSON output is one event per line in argument order.

Examples:
  tslatency measure stamped.png
  tslatency measure a.png b.png c.png --format json
  tslatency measure stamped.png --at 1700000000040000000 --format yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMeasure,
}

func init() {
	rootCmd.AddCommand(measureCmd)
	measureCmd.Flags().Uint64("at", 0, "use this receive time in nanoseconds instead of reading the clock")
	addOutputFlags(measureCmd)
}

// measuredImage is one line of measure output.
type measuredImage struct {
	Path          string `json:"path" yaml:"path"`
	latency.Event `yaml:",inline"`
}

func runMeasure(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	lcfg, err := cfg.ToLatencyConfig()
	if err != nil {
		return err
	}
	format, err := frame.ParseFormat(cfg.Stream.Format)
	if err != nil {
		return err
	}

	w, closeOutput, err := openOutput(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeOutput() }()

	var measured []latency.Measurement
	reporters := []latency.Reporter{
		latency.ReporterFunc(func(m latency.Measurement) { measured = append(measured, m) }),
	}
	var lines *report.JSONLines
	if cfg.Output.Format == formatJSON {
		lines = report.NewJSONLines(w)
		reporters = append(reporters, lines)
	}
	if cfg.Verbose {
		reporters = append(reporters, report.NewLogReporter(slog.Default()))
	}

	reg := latency.NewRegistry()
	if err := latency.RegisterDefaults(reg); err != nil {
		return err
	}
	measurer, err := reg.New(latency.MeasurerElement, lcfg,
		latency.WithStream(cfg.Stream.Name),
		latency.WithClock(clockFromFlag(cmd, "at")),
		latency.WithReporter(report.Multi(reporters...)),
		latency.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	results := utils.LoadFrames(args, format)
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}

	var configured frame.Info
	for _, r := range results {
		if r.Frame.Info != configured {
			if err := measurer.ValidateConfiguration(r.Frame.Info); err != nil {
				return fmt.Errorf("cannot measure %s: %w", r.Path, err)
			}
			configured = r.Frame.Info
		}
		if err := measurer.Apply(r.Frame); err != nil {
			return fmt.Errorf("failed to measure %s: %w", r.Path, err)
		}
	}

	switch cfg.Output.Format {
	case formatJSON:
		if err := lines.Err(); err != nil {
			return fmt.Errorf("failed to write events: %w", err)
		}
		return nil
	case formatYAML:
		out := make([]measuredImage, len(measured))
		for i, m := range measured {
			out[i] = measuredImage{Path: results[i].Path, Event: m.Event()}
		}
		return writeStructured(w, formatYAML, out)
	default:
		for i, m := range measured {
			if err := writeMeasurementText(w, results[i].Path, m); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeMeasurementText(w io.Writer, path string, m latency.Measurement) error {
	var err error
	if m.Decoded() {
		_, err = fmt.Fprintf(w, "%s: %s delay=%s seq=%d", path, m.Status, m.Delta.Round(time.Microsecond), m.Seq)
		if err == nil && m.CorrectedBits > 0 {
			_, err = fmt.Fprintf(w, " corrected=%d", m.CorrectedBits)
		}
		if err == nil && m.Err != nil {
			_, err = fmt.Fprintf(w, " (%v)", m.Err)
		}
	} else {
		_, err = fmt.Fprintf(w, "%s: %s (%v)", path, m.Status, m.Err)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}
