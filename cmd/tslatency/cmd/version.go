package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/tslatency/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationSkipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		v, commit, date := version.Info()
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "tslatency version %s\n", v)
		_, _ = fmt.Fprintf(w, "Commit: %s\n", commit)
		_, _ = fmt.Fprintf(w, "Date: %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
