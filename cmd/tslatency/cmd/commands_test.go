package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/common"
	"github.com/MeKo-Tech/tslatency/internal/config"
	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/MeKo-Tech/tslatency/internal/simulate"
	"github.com/MeKo-Tech/tslatency/internal/testutil"
	"github.com/MeKo-Tech/tslatency/internal/utils"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func stampedImage(t *testing.T, dir string, at string, extra ...string) string {
	t.Helper()
	in := testutil.WriteGrayImage(t, dir, "frame.png", 128, 96, 128)
	out := filepath.Join(dir, "stamped.png")
	args := append([]string{"stamp", in, out, "--at", at}, extra...)
	stdout, _, err := executeCommand(t, args...)
	require.NoError(t, err)
	require.Contains(t, stdout, "timestamp="+at)
	return out
}

func TestStampThenMeasure_JSON(t *testing.T) {
	dir := isolate(t)
	stamped := stampedImage(t, dir, "1000000000")

	out, _, err := executeCommand(t, "measure", stamped, "--at", "1040000000", "--format", "json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &event))
	assert.Equal(t, "ok", event["decode_status"])
	assert.InDelta(t, 1e9, event["stamp_time_ns"], 0)
	assert.InDelta(t, 4e7, event["delta_ns"], 0)
	assert.InDelta(t, 1.04e9, event["receive_time_ns"], 0)
	assert.InDelta(t, 0, event["seq"], 0)
	assert.Equal(t, "default", event["stream"])
}

func TestStampThenMeasure_Text(t *testing.T) {
	dir := isolate(t)
	stamped := stampedImage(t, dir, "5000000", "--variant", "fast-robust")

	out, _, err := executeCommand(t, "measure", stamped, "--at", "7500000", "--variant", "fast-robust")
	require.NoError(t, err)
	assert.Equal(t, stamped+": ok delay=2.5ms seq=0\n", out)
}

func TestStampThenMeasure_Monotonic(t *testing.T) {
	dir := isolate(t)
	in := testutil.WriteGrayImage(t, dir, "frame.bmp", 96, 96, 40)
	stamped := filepath.Join(dir, "stamped.bmp")
	_, _, err := executeCommand(t, "stamp", in, stamped, "--pixel-format", "NV12")
	require.NoError(t, err)

	out, _, err := executeCommand(t, "measure", stamped, "--pixel-format", "NV12", "--format", "json")
	require.NoError(t, err)
	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &event))
	assert.Equal(t, "ok", event["decode_status"])
	delta, ok := event["delta_ns"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, delta, 0.0)
	assert.Less(t, time.Duration(delta), 10*time.Second)
}

func TestMeasure_YAMLAndMultipleFiles(t *testing.T) {
	dir := isolate(t)
	stamped := stampedImage(t, dir, "1000")
	plain := testutil.WriteGrayImage(t, dir, "plain.png", 128, 96, 128)

	out, _, err := executeCommand(t, "measure", stamped, plain, "--at", "2000", "--format", "yaml")
	require.NoError(t, err)

	var events []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &events))
	require.Len(t, events, 2)
	assert.Equal(t, stamped, events[0]["path"])
	assert.Equal(t, "ok", events[0]["decode_status"])
	assert.Equal(t, 1000, events[0]["delta_ns"])
	assert.Equal(t, plain, events[1]["path"])
	assert.Equal(t, "failed", events[1]["decode_status"])
	assert.NotContains(t, events[1], "delta_ns")
}

func TestMeasure_UnstampedText(t *testing.T) {
	dir := isolate(t)
	plain := testutil.WriteGrayImage(t, dir, "plain.png", 64, 64, 128)

	out, _, err := executeCommand(t, "measure", plain)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, plain+": failed ("), out)
}

func TestMeasure_OutputFile(t *testing.T) {
	dir := isolate(t)
	stamped := stampedImage(t, dir, "10")
	target := filepath.Join(dir, "results", "events.json")

	out, _, err := executeCommand(t, "measure", stamped, "--at", "20", "-f", "json", "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"delta_ns":10`)
}

func TestMeasure_Errors(t *testing.T) {
	dir := isolate(t)
	small := testutil.WriteGrayImage(t, dir, "small.png", 32, 32, 128)

	_, _, err := executeCommand(t, "measure", filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	_, _, err = executeCommand(t, "measure", small)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot measure")

	_, _, err = executeCommand(t, "measure")
	require.Error(t, err)
}

func TestStamp_Errors(t *testing.T) {
	dir := isolate(t)
	small := testutil.WriteGrayImage(t, dir, "small.png", 32, 32, 128)
	big := testutil.WriteGrayImage(t, dir, "big.png", 64, 64, 128)

	_, _, err := executeCommand(t, "stamp", small, filepath.Join(dir, "out.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot stamp")

	_, _, err = executeCommand(t, "stamp", big, filepath.Join(dir, "out.gif"))
	require.Error(t, err)

	_, _, err = executeCommand(t, "stamp", big)
	require.Error(t, err)
}

func TestStamp_WritesOnlyRegion(t *testing.T) {
	dir := isolate(t)
	stamped := stampedImage(t, dir, "1", "--region-x", "16", "--region-y", "8", "--pixel-format", "GRAY8")

	f, _, err := utils.LoadFrame(stamped, frame.GRAY8)
	require.NoError(t, err)
	luma := f.Descriptor().Carriers()[0]
	assert.Equal(t, uint8(128), f.At(luma, 0, 0))
	assert.Equal(t, uint8(128), f.At(luma, 127, 95))
	v := f.At(luma, 16, 8)
	assert.True(t, v == 0 || v == 255, "region pixel %d", v)
}

func TestSimulateCommand_JSON(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "simulate",
		"--frames", "30", "--width", "160", "--height", "120", "--format", "json")
	require.NoError(t, err)

	var res simulate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 30, res.Stamped)
	assert.Equal(t, 0, res.Dropped)
	assert.Equal(t, 30, res.Summary.OK)
	assert.Equal(t, "optimized", res.Variant)
	assert.GreaterOrEqual(t, res.Summary.Min, 35*time.Millisecond)
	assert.LessOrEqual(t, res.Summary.Max, 45*time.Millisecond)
	assert.NotEmpty(t, res.RunID)
}

func TestSimulateCommand_Text(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "simulate",
		"--frames", "20", "--width", "160", "--height", "120",
		"--delay", "10ms", "--jitter", "0s", "--degrade", "noise:4")
	require.NoError(t, err)

	assert.Contains(t, out, "Frames:     20 stamped, 0 dropped")
	assert.Contains(t, out, "Decoded:    20 ok, 0 suspect, 0 failed (100.0%)")
	assert.Contains(t, out, "Degrade:    noise:4")
	assert.Contains(t, out, "p50 10ms")
}

func TestSimulateCommand_InvalidDegrade(t *testing.T) {
	isolate(t)
	_, _, err := executeCommand(t, "simulate", "--frames", "1", "--degrade", "sepia:3")
	require.Error(t, err)
}

func TestWriteResultText(t *testing.T) {
	var buf bytes.Buffer
	res := simulate.Result{
		RunID:   "run",
		Stream:  "cam",
		Variant: "original",
		Stamped: 12345,
		Dropped: 5,
		Summary: report.Snapshot{Frames: 12340, OK: 12000, Suspect: 40, Failed: 300, SequenceGaps: 2,
			Min: time.Millisecond, P50: 2 * time.Millisecond, Max: 3 * time.Millisecond},
		Stages:   []common.StageCost{{Name: "stamp", Count: 4, Total: 40 * time.Microsecond}},
		Elapsed:  1500 * time.Millisecond,
		Canceled: true,
	}
	require.NoError(t, writeResultText(&buf, res))

	out := buf.String()
	assert.Contains(t, out, "Frames:     12,345 stamped, 5 dropped")
	assert.Contains(t, out, "Decoded:    12,000 ok, 40 suspect, 300 failed")
	assert.Contains(t, out, "Seq gaps:   2")
	assert.Contains(t, out, "stamp    4 runs, avg 10µs")
	assert.Contains(t, out, "Elapsed:    1.5s")
	assert.Contains(t, out, "Interrupted")
}

func TestContractCommand(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "contract", "--format", "json")
	require.NoError(t, err)

	var doc contractDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "optimized", string(doc.Contract.Variant))
	assert.Equal(t, 112, doc.Contract.CodewordBits)
	assert.Equal(t, 256, doc.CapacityBits)
	assert.Equal(t, uint8(255), doc.Levels.High)

	out, _, err = executeCommand(t, "contract", "--variant", "fast-robust")
	require.NoError(t, err)
	assert.Contains(t, out, "Variant:    fast-robust")
	assert.Contains(t, out, "BCH:        BCH(255,")
	assert.Contains(t, out, "16 columns x 16 rows, 256 bits")
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")

	out, _, err := executeCommand(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.True(t, testutil.FileExists(path))

	_, _, err = executeCommand(t, "config", "init", path)
	require.Error(t, err)
	_, _, err = executeCommand(t, "config", "init", path, "--force")
	require.NoError(t, err)

	loaded, err := config.NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), *loaded)
}

func TestConfigShow_Precedence(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "tslatency.yaml")
	require.NoError(t, os.WriteFile(path, []byte("latency:\n  variant: fast-robust\n  width: 128\n  height: 128\n  cell_size: 8\nstream:\n  name: cam1\n"), 0o600))
	t.Setenv("TSLATENCY_STREAM_NAME", "from-env")

	out, _, err := executeCommand(t, "config", "show", "--format", "json", "--cell-size", "2")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "fast-robust", cfg.Latency.Variant)
	assert.Equal(t, 2, cfg.Latency.CellSize)
	assert.Equal(t, "from-env", cfg.Stream.Name)

	out, _, err = executeCommand(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# loaded from "+path), out)
	assert.Contains(t, out, "variant: fast-robust")
	assert.Contains(t, out, "cell_size: 8")

	out, _, err = executeCommand(t, "config", "show", "--sources", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file used: "+path)
	assert.Contains(t, out, "Environment prefix: TSLATENCY_")
}

func TestElementsCommand(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "elements")
	require.NoError(t, err)
	for _, want := range []string{"tslatencystamper", "tslatencymeasure", "fast-robust", "I420", "GStreamer transport:"} {
		assert.Contains(t, out, want)
	}
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tslatency version ")
	assert.Contains(t, out, "Commit: ")
}
