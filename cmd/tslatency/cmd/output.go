package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/tslatency/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", formatText, "output format (text, json, yaml)")
	cmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
}

// openOutput returns where results go: the configured file or stdout.
func openOutput(cmd *cobra.Command, cfg *config.Config) (io.Writer, func() error, error) {
	path := cfg.Output.File
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // G304: writing to a user-chosen output path is expected
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	slog.Debug("Writing output", "path", path, "format", cfg.Output.Format)
	return f, f.Close, nil
}

// writeStructured encodes v as indented JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported structured format: %s", format)
	}
}

// newPrinter formats numbers with thousands separators in text output.
func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}
