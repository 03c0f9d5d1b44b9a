package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/utils"
	"github.com/spf13/cobra"
)

// stampCmd represents the stamp command.
var stampCmd = &cobra.Command{
	Use:   "stamp <input> <output>",
	Short: "Write a latency stamp into an image",
	Long: `Load an image, convert it to the configured pixel format, write the current
host monotonic time and a sequence number into the stamp region and save the
result. Use a lossless output format (PNG, BMP) unless the variant is meant
to survive compression.

Examples:
  tslatency stamp frame.png stamped.png
  tslatency stamp frame.png stamped.png --variant fast-robust --cell-size 8
  tslatency stamp frame.png stamped.png --at 1700000000000000000`,
	Args: cobra.ExactArgs(2),
	RunE: runStamp,
}

func init() {
	rootCmd.AddCommand(stampCmd)
	stampCmd.Flags().Uint64("at", 0, "stamp this time in nanoseconds instead of reading the clock")
}

// clockFromFlag returns a fixed clock when the flag is set, else the host
// monotonic clock.
func clockFromFlag(cmd *cobra.Command, name string) clock.Clock {
	if !cmd.Flags().Changed(name) {
		return clock.NewMonotonic()
	}
	at, _ := cmd.Flags().GetUint64(name)
	return clock.Func(func() uint64 { return at })
}

func runStamp(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	in, out := args[0], args[1]

	lcfg, err := cfg.ToLatencyConfig()
	if err != nil {
		return err
	}
	format, err := frame.ParseFormat(cfg.Stream.Format)
	if err != nil {
		return err
	}

	f, meta, err := utils.LoadFrame(in, format)
	if err != nil {
		return err
	}
	slog.Debug("Loaded image", "path", in, "width", meta.Width, "height", meta.Height, "format", format)

	st, err := latency.NewStamper(lcfg,
		latency.WithStream(cfg.Stream.Name),
		latency.WithClock(clockFromFlag(cmd, "at")),
		latency.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	if err := st.ValidateConfiguration(f.Info); err != nil {
		return fmt.Errorf("cannot stamp %s: %w", in, err)
	}
	payload, err := st.Stamp(f)
	if err != nil {
		return fmt.Errorf("failed to stamp %s: %w", in, err)
	}

	if !utils.IsLossless(out) {
		slog.Warn("Lossy output format, the stamp may not survive", "path", out, "variant", lcfg.Variant)
	}
	if err := utils.SaveFrame(out, f); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: timestamp=%d seq=%d variant=%s\n",
		out, payload.Timestamp, payload.Seq, lcfg.Variant)
	return nil
}
