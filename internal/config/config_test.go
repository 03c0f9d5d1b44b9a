package config

import (
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/gstpipe"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/latency"
)

const (
	infoLevel  = "info"
	debugLevel = "debug"
)

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Verbose {
		t.Error("Expected verbose false")
	}
	if cfg.Stream.Format != "I420" || cfg.Stream.Width != 1280 || cfg.Stream.Height != 720 || cfg.Stream.FPS != 30 {
		t.Errorf("Unexpected stream defaults: %+v", cfg.Stream)
	}
	if cfg.Latency.Variant != "optimized" {
		t.Errorf("Expected variant optimized, got %s", cfg.Latency.Variant)
	}
	if cfg.Latency.Width != 64 || cfg.Latency.Height != 64 || cfg.Latency.CellSize != 4 {
		t.Errorf("Unexpected region defaults: %+v", cfg.Latency)
	}
	if cfg.Latency.Tolerance != 5 {
		t.Errorf("Expected tolerance 5, got %d", cfg.Latency.Tolerance)
	}
	if cfg.Latency.LevelLow != 0 || cfg.Latency.LevelHigh != 255 {
		t.Errorf("Expected levels 0/255, got %d/%d", cfg.Latency.LevelLow, cfg.Latency.LevelHigh)
	}
	if cfg.Latency.MaxLatency != "10s" || cfg.Latency.SkewTolerance != "1ms" {
		t.Errorf("Unexpected plausibility bounds: %s %s", cfg.Latency.MaxLatency, cfg.Latency.SkewTolerance)
	}
	if cfg.Simulate.Transport != TransportModel {
		t.Errorf("Expected transport %s, got %s", TransportModel, cfg.Simulate.Transport)
	}
	if cfg.Simulate.Delay != "40ms" || cfg.Simulate.Jitter != "5ms" {
		t.Errorf("Unexpected simulate timing: %s %s", cfg.Simulate.Delay, cfg.Simulate.Jitter)
	}
	if cfg.Transport.Encoder != gstpipe.EncoderH264 {
		t.Errorf("Expected encoder %s, got %s", gstpipe.EncoderH264, cfg.Transport.Encoder)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Expected output format text, got %s", cfg.Output.Format)
	}
	if cfg.Server.Port != 8080 || cfg.Server.MaxUploadMB != 16 || cfg.Server.ShutdownTimeout != 10 {
		t.Errorf("Unexpected server defaults: %+v", cfg.Server)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

// TestValidate covers each rejected field.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "csv" }, "invalid output format"},
		{"stream format", func(c *Config) { c.Stream.Format = "P010" }, "invalid stream"},
		{"stream width", func(c *Config) { c.Stream.Width = 0 }, "invalid stream"},
		{"stream fps", func(c *Config) { c.Stream.FPS = 0 }, "invalid stream fps"},
		{"variant", func(c *Config) { c.Latency.Variant = "turbo" }, "turbo"},
		{"level range", func(c *Config) { c.Latency.LevelHigh = 256 }, "latency.level_high"},
		{"level order", func(c *Config) { c.Latency.LevelLow = 200; c.Latency.LevelHigh = 100 }, "invalid latency levels"},
		{"max latency", func(c *Config) { c.Latency.MaxLatency = "soon" }, "latency.max_latency"},
		{"negative skew", func(c *Config) { c.Latency.SkewTolerance = "-1ms" }, "latency.skew_tolerance"},
		{"delay", func(c *Config) { c.Simulate.Delay = "40" }, "simulate.delay"},
		{"cell size", func(c *Config) { c.Latency.CellSize = 0 }, "cell size"},
		{"capacity", func(c *Config) { c.Latency.Width = 32; c.Latency.Height = 32 }, "capacity"},
		{"frames", func(c *Config) { c.Simulate.Frames = -1 }, "invalid simulate frames"},
		{"drop rate", func(c *Config) { c.Simulate.DropRate = 1 }, "invalid simulate drop rate"},
		{"transport", func(c *Config) { c.Simulate.Transport = "udp" }, "invalid simulate transport"},
		{"gst encoder", func(c *Config) { c.Simulate.Transport = TransportGst; c.Transport.Encoder = "vp9" }, "unknown encoder"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "invalid max upload size"},
		{"shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "invalid shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_GstTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Simulate.Transport = TransportGst
	if err := cfg.Validate(); err != nil {
		t.Errorf("gst transport with default encoder should be valid: %v", err)
	}
}

func TestToLatencyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Latency.Variant = "FastRobust"
	cfg.Latency.RegionX = 16
	cfg.Latency.RegionY = 8
	cfg.Latency.Tolerance = 12
	cfg.Latency.LevelLow = 16
	cfg.Latency.LevelHigh = 235
	cfg.Latency.MaxLatency = "2s"
	cfg.Latency.SkewTolerance = ""

	lat, err := cfg.ToLatencyConfig()
	if err != nil {
		t.Fatalf("ToLatencyConfig() error: %v", err)
	}
	if lat.Variant != integrity.FastRobust {
		t.Errorf("Expected variant %s, got %s", integrity.FastRobust, lat.Variant)
	}
	if lat.Layout.Region.X != 16 || lat.Layout.Region.Y != 8 || lat.Layout.Region.Width != 64 {
		t.Errorf("Unexpected region %s", lat.Layout.Region)
	}
	if lat.Levels.Low != 16 || lat.Levels.High != 235 {
		t.Errorf("Unexpected levels %+v", lat.Levels)
	}
	if lat.Tolerance != 12 {
		t.Errorf("Expected tolerance 12, got %d", lat.Tolerance)
	}
	if lat.MaxLatency != 2*time.Second {
		t.Errorf("Expected max latency 2s, got %v", lat.MaxLatency)
	}
	if lat.SkewTolerance != 0 {
		t.Errorf("Expected empty skew tolerance to mean zero, got %v", lat.SkewTolerance)
	}
	if err := lat.Validate(); err != nil {
		t.Errorf("Converted config should be valid: %v", err)
	}

	cfg.Latency.Variant = "turbo"
	if _, err := cfg.ToLatencyConfig(); err == nil {
		t.Error("Expected error for unknown variant")
	}
}

func TestToSimulateConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stream.Name = "cam0"
	cfg.Stream.Format = "NV12"
	cfg.Stream.FPS = 60
	cfg.Simulate.Frames = 10
	cfg.Simulate.Delay = "25ms"
	cfg.Simulate.Jitter = "0s"
	cfg.Simulate.DropRate = 0.1
	cfg.Simulate.Degrade = "jpeg:80"
	cfg.Simulate.Realtime = true

	sim, err := cfg.ToSimulateConfig()
	if err != nil {
		t.Fatalf("ToSimulateConfig() error: %v", err)
	}
	want := frame.Info{Format: frame.NV12, Width: 1280, Height: 720}
	if sim.Info != want {
		t.Errorf("Expected info %s, got %s", want, sim.Info)
	}
	if sim.Stream != "cam0" || sim.Frames != 10 || sim.FPS != 60 {
		t.Errorf("Unexpected simulate config: %+v", sim)
	}
	if sim.Delay != 25*time.Millisecond || sim.Jitter != 0 {
		t.Errorf("Unexpected timing: %v %v", sim.Delay, sim.Jitter)
	}
	if sim.DropRate != 0.1 || sim.Degrade != "jpeg:80" || !sim.Realtime {
		t.Errorf("Unexpected conditions: %+v", sim)
	}
	if sim.Latency.Variant != integrity.Optimized {
		t.Errorf("Expected default variant, got %s", sim.Latency.Variant)
	}
	if err := sim.Validate(); err != nil {
		t.Errorf("Converted config should be valid: %v", err)
	}

	cfg.Simulate.Jitter = "lots"
	if _, err := cfg.ToSimulateConfig(); err == nil {
		t.Error("Expected error for bad jitter")
	}
}

func TestToTransportConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.Encoder = gstpipe.EncoderJPEG
	cfg.Transport.Quality = 40

	gst := cfg.ToTransportConfig()
	if gst.Info != cfg.StreamInfo() || gst.FPS != 30 {
		t.Errorf("Unexpected stream in transport config: %+v", gst)
	}
	if gst.Encoder != gstpipe.EncoderJPEG || gst.Quality != 40 || gst.Buffer != 16 {
		t.Errorf("Unexpected transport config: %+v", gst)
	}
	if err := gst.Validate(); err != nil {
		t.Errorf("Converted config should be valid: %v", err)
	}
}

func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 9100

	srv, err := cfg.ToServerConfig("1.2.3")
	if err != nil {
		t.Fatalf("ToServerConfig() error: %v", err)
	}
	if srv.Addr() != "0.0.0.0:9100" {
		t.Errorf("Expected addr 0.0.0.0:9100, got %s", srv.Addr())
	}
	if srv.Version != "1.2.3" || srv.MaxUploadMB != 16 || srv.CORSOrigin != "*" {
		t.Errorf("Unexpected server config: %+v", srv)
	}
	if srv.Latency.Layout != latency.DefaultConfig().Layout {
		t.Errorf("Unexpected layout %+v", srv.Latency.Layout)
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Errorf("Expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout())
	}
}

func TestValidateLevel(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{128, false},
		{255, false},
		{256, true},
	}
	for _, tt := range tests {
		err := validateLevel(tt.value, "level")
		if (err != nil) != tt.wantErr {
			t.Errorf("validateLevel(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}
