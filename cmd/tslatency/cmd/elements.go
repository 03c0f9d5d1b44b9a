package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/gstpipe"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/spf13/cobra"
)

// elementsCmd lists what this build can do.
var elementsCmd = &cobra.Command{
	Use:   "elements",
	Short: "List pipeline elements, variants and pixel formats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := latency.NewRegistry()
		if err := latency.RegisterDefaults(reg); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(w, "Elements:")
		for _, name := range reg.Names() {
			_, _ = fmt.Fprintf(w, "  %s\n", name)
		}
		_, _ = fmt.Fprintln(w, "Variants:")
		for _, v := range integrity.Variants() {
			_, _ = fmt.Fprintf(w, "  %s\n", v)
		}
		_, _ = fmt.Fprintln(w, "Pixel formats:")
		for _, f := range frame.Supported() {
			_, _ = fmt.Fprintf(w, "  %s\n", f)
		}
		_, _ = fmt.Fprintf(w, "GStreamer transport: %t\n", gstpipe.Available())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(elementsCmd)
}
