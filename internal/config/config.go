// Package config loads the imudex configuration: defaults, then the
// yaml file, then IMUDEX_* environment overrides, highest last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "github.com/imudex/imudex/internal/errors"
)

// DefaultFileName is the config file looked up in the working directory
// when no explicit path is given.
const DefaultFileName = "imudex.yaml"

// Config is the complete imudex configuration.
type Config struct {
	// Paths locates the trees being indexed and the database file.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Watcher configures debounce and retry for change-driven reindexing.
	Watcher WatcherConfig `yaml:"watcher"`

	// Logging configures the slog setup.
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig locates the filesystem roots and the database.
type PathsConfig struct {
	// DataRoot is the recording tree holding per-test metadata.json files.
	DataRoot string `yaml:"data_root"`

	// OptimizationRoot holds the Driving / Driving+Rest subtrees.
	OptimizationRoot string `yaml:"optimization_root"`

	// Database is the sqlite file path.
	Database string `yaml:"database"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// APIKey is the shared secret checked against X-API-Key. Empty
	// disables the check.
	APIKey string `yaml:"api_key"`
}

// WatcherConfig configures reindex scheduling.
type WatcherConfig struct {
	// Debounce is the quiet period before a change triggers a reindex.
	Debounce time.Duration `yaml:"debounce"`

	// MaxRetries is the number of retries after a failed pipeline run.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// File receives JSON log lines in addition to stderr. Empty disables
	// the file sink.
	File string `yaml:"file"`
}

// New returns the configuration defaults.
func New() *Config {
	return &Config{
		Paths: PathsConfig{
			DataRoot:         "ingest_data",
			OptimizationRoot: "HMG_Optimization",
			Database:         filepath.Join(".imudex", "imudex.db"),
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8050",
		},
		Watcher: WatcherConfig{
			Debounce:   2 * time.Second,
			MaxRetries: 4,
			RetryDelay: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration. An explicit path that does
// not exist is an error; the implicit default file is optional.
func Load(path string) (*Config, error) {
	cfg := New()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.ErrCodeConfigInvalid, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	case os.IsNotExist(err):
		return nil, xerrors.New(xerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("config file not found: %s", path), err)
	default:
		return nil, xerrors.Wrap(xerrors.ErrCodeConfigInvalid, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies IMUDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("IMUDEX_DATA_ROOT"); v != "" {
		c.Paths.DataRoot = v
	}
	if v := os.Getenv("IMUDEX_OPTIMIZATION_ROOT"); v != "" {
		c.Paths.OptimizationRoot = v
	}
	if v := os.Getenv("IMUDEX_DATABASE"); v != "" {
		c.Paths.Database = v
	}
	if v := os.Getenv("IMUDEX_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("IMUDEX_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("IMUDEX_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watcher.Debounce = d
		}
	}
	if v := os.Getenv("IMUDEX_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Watcher.MaxRetries = n
		}
	}
	if v := os.Getenv("IMUDEX_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watcher.RetryDelay = d
		}
	}
	if v := os.Getenv("IMUDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IMUDEX_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Paths.Database == "" {
		return xerrors.New(xerrors.ErrCodeConfigInvalid, "paths.database must not be empty", nil)
	}
	if c.Server.ListenAddr == "" {
		return xerrors.New(xerrors.ErrCodeConfigInvalid, "server.listen_addr must not be empty", nil)
	}
	if c.Watcher.Debounce <= 0 {
		return xerrors.New(xerrors.ErrCodeConfigInvalid, "watcher.debounce must be positive", nil)
	}
	if c.Watcher.MaxRetries < 0 {
		return xerrors.New(xerrors.ErrCodeConfigInvalid, "watcher.max_retries must not be negative", nil)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return xerrors.New(xerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level), nil)
	}
	return nil
}

// RetryConfig converts the watcher settings to the retry runner's shape.
func (c *Config) RetryConfig() xerrors.RetryConfig {
	return xerrors.RetryConfig{
		MaxRetries:   c.Watcher.MaxRetries,
		InitialDelay: c.Watcher.RetryDelay,
		MaxDelay:     c.Watcher.RetryDelay,
		Multiplier:   1.0,
	}
}
