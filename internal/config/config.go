package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/gstpipe"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
	"github.com/MeKo-Tech/tslatency/internal/server"
	"github.com/MeKo-Tech/tslatency/internal/simulate"
)

// Transports selectable in simulate.transport.
const (
	TransportModel = "model"
	TransportGst   = "gst"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	lat := latency.DefaultConfig()
	sim := simulate.DefaultConfig()
	gst := gstpipe.DefaultConfig(sim.Info)

	return Config{
		LogLevel: "info",
		Verbose:  false,
		Stream: StreamConfig{
			Name:   "default",
			Format: string(sim.Info.Format),
			Width:  sim.Info.Width,
			Height: sim.Info.Height,
			FPS:    int(sim.FPS),
		},
		Latency: LatencyConfig{
			Variant:       string(lat.Variant),
			RegionX:       lat.Layout.Region.X,
			RegionY:       lat.Layout.Region.Y,
			Width:         lat.Layout.Region.Width,
			Height:        lat.Layout.Region.Height,
			CellSize:      lat.Layout.CellSize,
			Tolerance:     lat.Tolerance,
			LevelLow:      int(lat.Levels.Low),
			LevelHigh:     int(lat.Levels.High),
			MaxLatency:    lat.MaxLatency.String(),
			SkewTolerance: lat.SkewTolerance.String(),
		},
		Simulate: SimulateConfig{
			Frames:    sim.Frames,
			Delay:     sim.Delay.String(),
			Jitter:    sim.Jitter.String(),
			DropRate:  sim.DropRate,
			Seed:      sim.Seed,
			Transport: TransportModel,
		},
		Transport: TransportConfig{
			Encoder: gst.Encoder,
			Bitrate: gst.Bitrate,
			Quality: gst.Quality,
			Buffer:  gst.Buffer,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     16,
			ShutdownTimeout: 10,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := c.StreamInfo().Validate(); err != nil {
		return fmt.Errorf("invalid stream: %w", err)
	}
	if c.Stream.FPS <= 0 {
		return fmt.Errorf("invalid stream fps: %d (must be positive)", c.Stream.FPS)
	}

	if _, err := integrity.ParseVariant(c.Latency.Variant); err != nil {
		return err
	}
	if err := validateLevel(c.Latency.LevelLow, "latency.level_low"); err != nil {
		return err
	}
	if err := validateLevel(c.Latency.LevelHigh, "latency.level_high"); err != nil {
		return err
	}
	if c.Latency.LevelLow >= c.Latency.LevelHigh {
		return fmt.Errorf("invalid latency levels: low %d must be below high %d", c.Latency.LevelLow, c.Latency.LevelHigh)
	}
	for name, v := range map[string]string{
		"latency.max_latency":    c.Latency.MaxLatency,
		"latency.skew_tolerance": c.Latency.SkewTolerance,
		"simulate.delay":         c.Simulate.Delay,
		"simulate.jitter":        c.Simulate.Jitter,
	} {
		if err := validateDuration(v, name); err != nil {
			return err
		}
	}
	lat, err := c.ToLatencyConfig()
	if err != nil {
		return err
	}
	if err := lat.Validate(); err != nil {
		return err
	}

	if c.Simulate.Frames < 0 {
		return fmt.Errorf("invalid simulate frames: %d (must not be negative)", c.Simulate.Frames)
	}
	if c.Simulate.DropRate < 0 || c.Simulate.DropRate >= 1 {
		return fmt.Errorf("invalid simulate drop rate: %.2f (must be in [0, 1))", c.Simulate.DropRate)
	}
	switch c.Simulate.Transport {
	case TransportModel:
	case TransportGst:
		if err := c.ToTransportConfig().Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid simulate transport: %s (must be one of: %s, %s)", c.Simulate.Transport, TransportModel, TransportGst)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must be positive)", c.Server.ShutdownTimeout)
	}

	return nil
}

// StreamInfo returns the configured stream format.
func (c *Config) StreamInfo() frame.Info {
	return frame.Info{
		Format: frame.Format(c.Stream.Format),
		Width:  c.Stream.Width,
		Height: c.Stream.Height,
	}
}

// ToLatencyConfig converts the config to the element configuration.
func (c *Config) ToLatencyConfig() (latency.Config, error) {
	variant, err := integrity.ParseVariant(c.Latency.Variant)
	if err != nil {
		return latency.Config{}, err
	}
	maxLatency, err := parseDuration(c.Latency.MaxLatency)
	if err != nil {
		return latency.Config{}, fmt.Errorf("invalid latency.max_latency: %w", err)
	}
	skew, err := parseDuration(c.Latency.SkewTolerance)
	if err != nil {
		return latency.Config{}, fmt.Errorf("invalid latency.skew_tolerance: %w", err)
	}
	return latency.Config{
		Layout: pixelcodec.Layout{
			Region: pixelcodec.Region{
				X:      c.Latency.RegionX,
				Y:      c.Latency.RegionY,
				Width:  c.Latency.Width,
				Height: c.Latency.Height,
			},
			CellSize: c.Latency.CellSize,
		},
		Variant:       variant,
		Tolerance:     c.Latency.Tolerance,
		Levels:        pixelcodec.Levels{Low: uint8(c.Latency.LevelLow), High: uint8(c.Latency.LevelHigh)},
		MaxLatency:    maxLatency,
		SkewTolerance: skew,
	}, nil
}

// ToSimulateConfig converts the config to a simulation run.
func (c *Config) ToSimulateConfig() (simulate.Config, error) {
	lat, err := c.ToLatencyConfig()
	if err != nil {
		return simulate.Config{}, err
	}
	delay, err := parseDuration(c.Simulate.Delay)
	if err != nil {
		return simulate.Config{}, fmt.Errorf("invalid simulate.delay: %w", err)
	}
	jitter, err := parseDuration(c.Simulate.Jitter)
	if err != nil {
		return simulate.Config{}, fmt.Errorf("invalid simulate.jitter: %w", err)
	}
	return simulate.Config{
		Latency:  lat,
		Info:     c.StreamInfo(),
		Stream:   c.Stream.Name,
		Frames:   c.Simulate.Frames,
		FPS:      float64(c.Stream.FPS),
		Delay:    delay,
		Jitter:   jitter,
		DropRate: c.Simulate.DropRate,
		Degrade:  c.Simulate.Degrade,
		Seed:     c.Simulate.Seed,
		Realtime: c.Simulate.Realtime,
	}, nil
}

// ToTransportConfig converts to the GStreamer loopback configuration.
func (c *Config) ToTransportConfig() gstpipe.Config {
	return gstpipe.Config{
		Info:    c.StreamInfo(),
		FPS:     c.Stream.FPS,
		Encoder: c.Transport.Encoder,
		Bitrate: c.Transport.Bitrate,
		Quality: c.Transport.Quality,
		Buffer:  c.Transport.Buffer,
	}
}

// ToServerConfig converts to the HTTP server configuration.
func (c *Config) ToServerConfig(version string) (server.Config, error) {
	lat, err := c.ToLatencyConfig()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Host:        c.Server.Host,
		Port:        c.Server.Port,
		CORSOrigin:  c.Server.CORSOrigin,
		MaxUploadMB: int64(c.Server.MaxUploadMB),
		Version:     version,
		Latency:     lat,
	}, nil
}

// ShutdownTimeout returns the server grace period.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// Helper functions

// parseDuration accepts Go duration strings; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func validateDuration(value, name string) error {
	d, err := parseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %q (%w)", name, value, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid %s: %s (must not be negative)", name, value)
	}
	return nil
}

// validateLevel validates that a sample level fits in 8 bits.
func validateLevel(value int, name string) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("invalid %s: %d (must be between 0 and 255)", name, value)
	}
	return nil
}
