package cmd

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags puts every flag of c and its children back to its default so
// that commands can be executed repeatedly in one process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolate keeps config search paths and the environment away from the
// developer's machine.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

// executeCommand runs the root command with args and returns stdout and the
// log output.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	resetFlags(rootCmd)
	globalConfig, configLoader, cfgFile = nil, nil, ""

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "tslatency", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Same(t, rootCmd, GetRootCommand())
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "timestamp into a small pixel region")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tslatency "), out)
}

func TestRootCommandSubcommands(t *testing.T) {
	commandNames := make([]string, 0, len(rootCmd.Commands()))
	for _, subcmd := range rootCmd.Commands() {
		commandNames = append(commandNames, subcmd.Name())
	}

	expectedCommands := []string{"stamp", "measure", "simulate", "serve", "contract", "config", "elements", "version"}
	for _, expected := range expectedCommands {
		assert.Contains(t, commandNames, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	isolate(t)
	_, _, err := executeCommand(t, "--no-such-flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestFlagBindingsReferToExistingFlags(t *testing.T) {
	seen := map[string]bool{}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { seen[f.Name] = true })
		c.PersistentFlags().VisitAll(func(f *pflag.Flag) { seen[f.Name] = true })
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)

	for name := range flagBindings {
		assert.True(t, seen[name], "binding for unknown flag %s", name)
	}
}

func TestLoggingLevels(t *testing.T) {
	isolate(t)
	_, logs, err := executeCommand(t, "elements", "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.False(t, slog.Default().Enabled(t.Context(), slog.LevelWarn))

	_, _, err = executeCommand(t, "elements", "-v")
	require.NoError(t, err)
	assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelDebug))
}

func TestInvalidConfigurationFails(t *testing.T) {
	isolate(t)
	_, _, err := executeCommand(t, "contract", "--variant", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestGetConfigDefaults(t *testing.T) {
	globalConfig = nil
	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.NotNil(t, GetConfigLoader())
}
