package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnv
const (
	EnvLogFile     = "MOCKTEL_LOG_FILE"
	EnvVerbose     = "MOCKTEL_VERBOSE"
	EnvQuiet       = "MOCKTEL_QUIET"
	EnvMetricsAddr = "MOCKTEL_METRICS_ADDR"
)

// DefaultLogFile is the intercept log written in the working directory
const DefaultLogFile = "intercepted_telemetry.log"

// Listener is one entry of the port table
type Listener struct {
	Port  int
	Label string
}

// DefaultListeners returns the fixed telemetry port table
func DefaultListeners() []Listener {
	return []Listener{
		{Port: 4317, Label: "OpenTelemetry GRPC"},
		{Port: 4318, Label: "OpenTelemetry HTTP"},
		{Port: 16686, Label: "Jaeger UI"},
	}
}

// Config holds the application configuration
type Config struct {
	// Network settings
	BindAddress  string        // Loopback address every listener binds to
	Listeners    []Listener    // Port table, not user configurable
	StartupDelay time.Duration // Pause between consecutive listener starts

	// Output
	LogFile string // Intercept log, truncated at startup
	Verbose bool   // Enable debug console output
	Quiet   bool   // Suppress console output

	// Metrics
	MetricsAddr string // Prometheus endpoint address, empty disables it
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		BindAddress:  "127.0.0.1",
		Listeners:    DefaultListeners(),
		StartupDelay: 100 * time.Millisecond,
		LogFile:      DefaultLogFile,
	}
}

// FileConfig represents the configuration file structure with JSON tags
type FileConfig struct {
	LogFile     *string `json:"log_file,omitempty"`
	Verbose     *bool   `json:"verbose,omitempty"`
	Quiet       *bool   `json:"quiet,omitempty"`
	MetricsAddr *string `json:"metrics_addr,omitempty"`
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mocktel")
	}

	// Fallback to ~/.config/mocktel
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "mocktel")
	}

	// Final fallback to current directory
	return ".mocktel"
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// LoadConfigFile loads configuration from a JSON file
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil // Return empty config if file doesn't exist
		}
		return nil, err
	}

	var config FileConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &config, nil
}

// MergeWithFileConfig overrides c with every field set in fileConfig
func (c *Config) MergeWithFileConfig(fileConfig *FileConfig) {
	if fileConfig.LogFile != nil {
		c.LogFile = *fileConfig.LogFile
	}
	if fileConfig.Verbose != nil {
		c.Verbose = *fileConfig.Verbose
	}
	if fileConfig.Quiet != nil {
		c.Quiet = *fileConfig.Quiet
	}
	if fileConfig.MetricsAddr != nil {
		c.MetricsAddr = *fileConfig.MetricsAddr
	}
}

// ApplyEnv overrides c with the MOCKTEL_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogFile); ok && v != "" {
		c.LogFile = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup(EnvVerbose); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvVerbose, v, err)
		}
		c.Verbose = b
	}
	if v, ok := lookup(EnvQuiet); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvQuiet, v, err)
		}
		c.Quiet = b
	}
	return nil
}

// Validate checks the merged configuration
func (c *Config) Validate() error {
	if c.LogFile == "" {
		return fmt.Errorf("log file must not be empty")
	}
	if c.Quiet && c.Verbose {
		return fmt.Errorf("quiet and verbose cannot be combined")
	}

	if c.MetricsAddr != "" {
		_, portStr, err := net.SplitHostPort(c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", c.MetricsAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("metrics port must be between 1 and 65535")
		}
		for _, l := range c.Listeners {
			if l.Port == port {
				return fmt.Errorf("metrics port %d conflicts with the %s listener", port, l.Label)
			}
		}
	}

	return nil
}
