package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "tslatency"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "TSLATENCY"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the root command take effect.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and sets defaults.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final Validate.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file in the search paths is fine, an explicit one is not.
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// TSLATENCY_SERVER_PORT maps to server.port
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	// Stream defaults
	l.v.SetDefault("stream.name", defaults.Stream.Name)
	l.v.SetDefault("stream.format", defaults.Stream.Format)
	l.v.SetDefault("stream.width", defaults.Stream.Width)
	l.v.SetDefault("stream.height", defaults.Stream.Height)
	l.v.SetDefault("stream.fps", defaults.Stream.FPS)

	// Latency defaults
	l.v.SetDefault("latency.variant", defaults.Latency.Variant)
	l.v.SetDefault("latency.region_x", defaults.Latency.RegionX)
	l.v.SetDefault("latency.region_y", defaults.Latency.RegionY)
	l.v.SetDefault("latency.width", defaults.Latency.Width)
	l.v.SetDefault("latency.height", defaults.Latency.Height)
	l.v.SetDefault("latency.cell_size", defaults.Latency.CellSize)
	l.v.SetDefault("latency.tolerance", defaults.Latency.Tolerance)
	l.v.SetDefault("latency.level_low", defaults.Latency.LevelLow)
	l.v.SetDefault("latency.level_high", defaults.Latency.LevelHigh)
	l.v.SetDefault("latency.max_latency", defaults.Latency.MaxLatency)
	l.v.SetDefault("latency.skew_tolerance", defaults.Latency.SkewTolerance)

	// Simulation defaults
	l.v.SetDefault("simulate.frames", defaults.Simulate.Frames)
	l.v.SetDefault("simulate.delay", defaults.Simulate.Delay)
	l.v.SetDefault("simulate.jitter", defaults.Simulate.Jitter)
	l.v.SetDefault("simulate.drop_rate", defaults.Simulate.DropRate)
	l.v.SetDefault("simulate.degrade", defaults.Simulate.Degrade)
	l.v.SetDefault("simulate.seed", defaults.Simulate.Seed)
	l.v.SetDefault("simulate.realtime", defaults.Simulate.Realtime)
	l.v.SetDefault("simulate.transport", defaults.Simulate.Transport)

	// Transport defaults
	l.v.SetDefault("transport.encoder", defaults.Transport.Encoder)
	l.v.SetDefault("transport.bitrate", defaults.Transport.Bitrate)
	l.v.SetDefault("transport.quality", defaults.Transport.Quality)
	l.v.SetDefault("transport.buffer", defaults.Transport.Buffer)

	// Output defaults
	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.file", defaults.Output.File)

	// Server defaults
	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.simulate", defaults.Server.Simulate)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile generates a default configuration file.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, "/etc/"+ConfigFileName)

	return paths
}

// PrintConfigInfo writes where configuration is looked up and which file
// was used.
func (l *Loader) PrintConfigInfo(w io.Writer) error {
	used := l.GetConfigFileUsed()
	if used == "" {
		used = "(none)"
	}
	_, err := fmt.Fprintf(w, "Configuration file used: %s\nConfiguration search paths: %s\nEnvironment prefix: %s_\n",
		used, strings.Join(GetConfigSearchPaths(), ", "), EnvPrefix)
	return err
}
