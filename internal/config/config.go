// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > profile defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"gopkg.in/yaml.v3"

	"github.com/vitalis-app/exporter/internal/collector"
)

// Profiles. Each runs as its own process on its own port.
const (
	ProfileDocker  = "docker"
	ProfileNFS     = "nfs"
	ProfileMulti   = "multi"
	ProfileWebhook = "webhook"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "10s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all exporter configuration. Profile is chosen by the command
// being run and is never read from YAML.
type Config struct {
	Profile    string           `yaml:"-" validate:"required,oneof=docker nfs multi webhook"`
	Server     ServerConfig     `yaml:"server"`
	Collection CollectionConfig `yaml:"collection"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	Port            int      `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// CollectionConfig holds the collection loop settings.
type CollectionConfig struct {
	Interval      Duration `yaml:"interval"`
	RetryInterval Duration `yaml:"retry_interval"`
	Timeout       Duration `yaml:"timeout"`
	Concurrency   int      `yaml:"concurrency" validate:"min=1,max=64"`
}

// CollectorsConfig enables and configures each collector.
type CollectorsConfig struct {
	Docker       DockerConfig       `yaml:"docker"`
	Filesystem   FilesystemConfig   `yaml:"filesystem"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	NFSOps       NFSOpsConfig       `yaml:"nfsops"`
	HAProxy      HAProxyConfig      `yaml:"haproxy"`
	Database     DatabaseConfig     `yaml:"database"`
	Host         ToggleConfig       `yaml:"host"`
	Self         ToggleConfig       `yaml:"self"`
}

// ToggleConfig is a collector with no settings besides being on or off.
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DockerConfig configures the container stats collector.
type DockerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`
}

// FilesystemConfig configures the mount status and latency probe.
type FilesystemConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	Server       string `yaml:"server"`
	ProbePayload int    `yaml:"probe_payload" validate:"min=1,max=1048576"`
}

// ConnectivityConfig configures the server reachability probe.
type ConnectivityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Mode    string `yaml:"mode" validate:"oneof=icmp service"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
}

// NFSOpsConfig configures the NFS client operation counters.
type NFSOpsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ProcPath string `yaml:"proc_path"`
}

// HAProxyConfig configures the HAProxy stats scraper.
type HAProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url" validate:"omitempty,url"`
	Timeout Duration `yaml:"timeout"`
}

// DatabaseConfig configures the database liveness collector. The DSN
// carries credentials and should come from the environment.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver" validate:"oneof=mysql postgres"`
	DSN     string `yaml:"dsn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   string `yaml:"file"`
}

// DefaultPort returns the listening port of a profile.
func DefaultPort(profile string) int {
	switch profile {
	case ProfileDocker:
		return 9150
	case ProfileNFS:
		return 9160
	case ProfileMulti:
		return 9170
	case ProfileWebhook:
		return 5001
	default:
		return 0
	}
}

// DefaultConfig returns the default configuration of a profile. Unknown
// profiles get the shared defaults with no collector enabled and fail
// validation.
func DefaultConfig(profile string) *Config {
	cfg := &Config{
		Profile: profile,
		Server: ServerConfig{
			Port:            DefaultPort(profile),
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{30 * time.Second},
			IdleTimeout:     Duration{120 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
		},
		Collection: CollectionConfig{
			Interval:      Duration{30 * time.Second},
			RetryInterval: Duration{10 * time.Second},
			Timeout:       Duration{10 * time.Second},
			Concurrency:   4,
		},
		Collectors: CollectorsConfig{
			Docker: DockerConfig{Binary: "docker"},
			Filesystem: FilesystemConfig{
				Path:         "/var/www/html/nfs",
				ProbePayload: collector.DefaultProbePayload,
			},
			Connectivity: ConnectivityConfig{
				Mode: collector.ModeICMP,
				Port: collector.DefaultNFSPort,
			},
			NFSOps: NFSOpsConfig{ProcPath: "/proc"},
			HAProxy: HAProxyConfig{
				URL:     "http://haproxy:8404/stats;csv",
				Timeout: Duration{5 * time.Second},
			},
			Database: DatabaseConfig{Driver: collector.DriverMySQL},
			Self:     ToggleConfig{Enabled: true},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}

	c := &cfg.Collectors
	switch profile {
	case ProfileDocker:
		c.Docker.Enabled = true
	case ProfileNFS:
		c.Filesystem.Enabled = true
		c.Filesystem.Server = "10.95.137.10"
		c.Connectivity.Enabled = true
		c.Connectivity.Host = "10.95.137.10"
		c.NFSOps.Enabled = true
	case ProfileMulti:
		c.Filesystem.Enabled = true
		c.Filesystem.Server = "192.168.0.200"
		c.Connectivity.Enabled = true
		c.Connectivity.Host = "192.168.0.200"
		c.Connectivity.Mode = collector.ModeService
		c.HAProxy.Enabled = true
		c.Database.Enabled = true
	case ProfileWebhook:
		c.Self.Enabled = false
	}
	return cfg
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	Address  string
	Port     int
	Interval time.Duration
	LogLevel string
	Host     bool
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration for profile with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > profile defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value → use that path ("" means no external file)
//
// An explicitly named file that does not exist is an error; a discovered
// one that vanished is skipped.
func LoadLayered(profile string, cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig(profile)

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	explicit := len(configPath) > 0
	filePath := Locate()
	if explicit {
		filePath = configPath[0]
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyCLIOverrides(cfg, cli)

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies EXPORTER_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	var err error

	if cfg.Server.Port, err = env.GetAsInt("EXPORTER_PORT", false, cfg.Server.Port); err != nil {
		return err
	}
	if cfg.Logging.Level, err = env.GetAsString("EXPORTER_LOG_LEVEL", false, cfg.Logging.Level); err != nil {
		return err
	}
	if cfg.Logging.Format, err = env.GetAsString("EXPORTER_LOG_FORMAT", false, cfg.Logging.Format); err != nil {
		return err
	}
	if cfg.Collectors.Database.DSN, err = env.GetAsString("EXPORTER_DATABASE_DSN", false, cfg.Collectors.Database.DSN); err != nil {
		return err
	}
	if cfg.Collectors.HAProxy.URL, err = env.GetAsString("EXPORTER_HAPROXY_URL", false, cfg.Collectors.HAProxy.URL); err != nil {
		return err
	}

	interval, err := env.GetAsString("EXPORTER_INTERVAL", false, "")
	if err != nil {
		return err
	}
	if interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("environment variable EXPORTER_INTERVAL: %w", err)
		}
		cfg.Collection.Interval = Duration{d}
	}
	return nil
}

func applyCLIOverrides(cfg *Config, cli CLIOverrides) {
	if cli.Address != "" {
		cfg.Server.Address = cli.Address
	}
	if cli.Port != 0 {
		cfg.Server.Port = cli.Port
	}
	if cli.Interval != 0 {
		cfg.Collection.Interval = Duration{cli.Interval}
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.Host {
		cfg.Collectors.Host.Enabled = true
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration can start an exporter.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"collection.interval", c.Collection.Interval},
		{"collection.retry_interval", c.Collection.RetryInterval},
		{"collection.timeout", c.Collection.Timeout},
		{"collectors.haproxy.timeout", c.Collectors.HAProxy.Timeout},
	}
	for _, d := range durations {
		if d.d.Duration <= 0 {
			return fmt.Errorf("%s must be positive (got: %s)", d.name, d.d)
		}
	}
	if c.Collection.Interval.Duration < time.Second {
		return fmt.Errorf("collection.interval must be at least 1s (got: %s)", c.Collection.Interval)
	}
	if c.Collection.RetryInterval.Duration > c.Collection.Interval.Duration {
		return fmt.Errorf("collection.retry_interval (%s) must not exceed collection.interval (%s)",
			c.Collection.RetryInterval, c.Collection.Interval)
	}

	col := c.Collectors
	switch {
	case col.Docker.Enabled && col.Docker.Binary == "":
		return fmt.Errorf("collectors.docker.binary is required")
	case col.Filesystem.Enabled && col.Filesystem.Path == "":
		return fmt.Errorf("collectors.filesystem.path is required")
	case col.Connectivity.Enabled && col.Connectivity.Host == "":
		return fmt.Errorf("collectors.connectivity.host is required")
	case col.NFSOps.Enabled && col.NFSOps.ProcPath == "":
		return fmt.Errorf("collectors.nfsops.proc_path is required")
	case col.HAProxy.Enabled && col.HAProxy.URL == "":
		return fmt.Errorf("collectors.haproxy.url is required")
	}
	if col.Database.Enabled {
		if err := collector.ValidateDSN(col.Database.Driver, col.Database.DSN); err != nil {
			return fmt.Errorf("collectors.database: %w", err)
		}
	}
	return nil
}

// Enabled returns the names of the enabled collectors.
func (c CollectorsConfig) Enabled() []string {
	var names []string
	add := func(on bool, name string) {
		if on {
			names = append(names, name)
		}
	}
	add(c.Docker.Enabled, "docker")
	add(c.Filesystem.Enabled, "filesystem")
	add(c.Connectivity.Enabled, "connectivity")
	add(c.NFSOps.Enabled, "nfsops")
	add(c.HAProxy.Enabled, "haproxy")
	add(c.Database.Enabled, "database")
	add(c.Host.Enabled, "host")
	add(c.Self.Enabled, "self")
	return names
}
