package cmd

import (
	"fmt"
	"os"

	"github.com/MeKo-Tech/tslatency/internal/config"
	"github.com/spf13/cobra"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a configuration file with all defaults",
	Long: `Write every configuration key with its default value to a YAML file
(tslatency.yaml when no file is given). An existing file is only replaced
with --force.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{annotationSkipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if fileExists(path) && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.GenerateDefaultConfigFile(path); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
TSLATENCY_* environment variables and command line flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		format := cfg.Output.Format
		if format == formatText {
			format = formatYAML
		}

		w, closeOutput, err := openOutput(cmd, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = closeOutput() }()

		if sources, _ := cmd.Flags().GetBool("sources"); sources {
			return GetConfigLoader().PrintConfigInfo(w)
		}
		if used := GetConfigLoader().GetConfigFileUsed(); used != "" && format == formatYAML {
			_, _ = fmt.Fprintf(w, "# loaded from %s\n", used)
		}
		return writeStructured(w, format, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configShowCmd.Flags().Bool("sources", false, "print the config search paths and the file used instead")
	addOutputFlags(configShowCmd)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
