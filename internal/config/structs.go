//nolint:lll
package config

// Config represents the complete configuration for the tslatency application.
// It includes settings for all commands (stamp, measure, simulate, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Stream format shared by stamper and measurer
	Stream StreamConfig `mapstructure:"stream" yaml:"stream" json:"stream"`

	// Stamp layout and integrity scheme
	Latency LatencyConfig `mapstructure:"latency" yaml:"latency" json:"latency"`

	// Simulation harness (simulate and serve commands)
	Simulate SimulateConfig `mapstructure:"simulate" yaml:"simulate" json:"simulate"`

	// GStreamer loopback used when simulate.transport is "gst"
	Transport TransportConfig `mapstructure:"transport" yaml:"transport" json:"transport"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// StreamConfig describes the raw video stream.
type StreamConfig struct {
	Name   string `mapstructure:"name" yaml:"name" json:"name"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	Width  int    `mapstructure:"width" yaml:"width" json:"width"`
	Height int    `mapstructure:"height" yaml:"height" json:"height"`
	FPS    int    `mapstructure:"fps" yaml:"fps" json:"fps"`
}

// LatencyConfig contains the per-element stamp settings. Both ends of a
// session must use the same values.
type LatencyConfig struct {
	Variant   string `mapstructure:"variant" yaml:"variant" json:"variant"`
	RegionX   int    `mapstructure:"region_x" yaml:"region_x" json:"region_x"`
	RegionY   int    `mapstructure:"region_y" yaml:"region_y" json:"region_y"`
	Width     int    `mapstructure:"width" yaml:"width" json:"width"`
	Height    int    `mapstructure:"height" yaml:"height" json:"height"`
	CellSize  int    `mapstructure:"cell_size" yaml:"cell_size" json:"cell_size"`
	Tolerance int    `mapstructure:"tolerance" yaml:"tolerance" json:"tolerance"`
	LevelLow  int    `mapstructure:"level_low" yaml:"level_low" json:"level_low"`
	LevelHigh int    `mapstructure:"level_high" yaml:"level_high" json:"level_high"`

	// Measurer plausibility bounds, e.g. "10s" and "1ms"
	MaxLatency    string `mapstructure:"max_latency" yaml:"max_latency" json:"max_latency"`
	SkewTolerance string `mapstructure:"skew_tolerance" yaml:"skew_tolerance" json:"skew_tolerance"`
}

// SimulateConfig contains simulation harness settings.
type SimulateConfig struct {
	Frames    int     `mapstructure:"frames" yaml:"frames" json:"frames"`
	Delay     string  `mapstructure:"delay" yaml:"delay" json:"delay"`
	Jitter    string  `mapstructure:"jitter" yaml:"jitter" json:"jitter"`
	DropRate  float64 `mapstructure:"drop_rate" yaml:"drop_rate" json:"drop_rate"`
	Degrade   string  `mapstructure:"degrade" yaml:"degrade" json:"degrade"`
	Seed      int64   `mapstructure:"seed" yaml:"seed" json:"seed"`
	Realtime  bool    `mapstructure:"realtime" yaml:"realtime" json:"realtime"`
	Transport string  `mapstructure:"transport" yaml:"transport" json:"transport"`
}

// TransportConfig contains GStreamer loopback settings.
type TransportConfig struct {
	Encoder string `mapstructure:"encoder" yaml:"encoder" json:"encoder"`
	Bitrate int    `mapstructure:"bitrate" yaml:"bitrate" json:"bitrate"`
	Quality int    `mapstructure:"quality" yaml:"quality" json:"quality"`
	Buffer  int    `mapstructure:"buffer" yaml:"buffer" json:"buffer"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// Simulate runs an unbounded realtime simulation feeding the server.
	Simulate bool `mapstructure:"simulate" yaml:"simulate" json:"simulate"`
}
