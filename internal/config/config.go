package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// PlatformConfig holds the command templates of one platform.
// Templates may reference {name}, {version}, {previous} and {dir}.
type PlatformConfig struct {
	Validate string            `toml:"validate"`
	Build    string            `toml:"build"`
	Test     string            `toml:"test"`
	Deploy   string            `toml:"deploy"`
	Verify   string            `toml:"verify"`
	Rollback string            `toml:"rollback"`
	Hooks    map[string]string `toml:"hooks"`
	Env      map[string]string `toml:"env"`
}

// RetryConfig tunes retry backoff and rollback calls.
type RetryConfig struct {
	BaseBackoff     time.Duration `toml:"base_backoff"`
	MaxBackoff      time.Duration `toml:"max_backoff"`
	RollbackTimeout time.Duration `toml:"rollback_timeout"`
}

// PostgresConfig enables the PostgreSQL event sink when URL is set.
type PostgresConfig struct {
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ObjectStoreConfig enables session archiving when Endpoint is set.
type ObjectStoreConfig struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// WebhookConfig describes one webhook endpoint.
// Events limits delivery to the listed event types; empty means all.
type WebhookConfig struct {
	URL        string        `toml:"url"`
	Secret     string        `toml:"secret"`
	Events     []string      `toml:"events"`
	Timeout    time.Duration `toml:"timeout"`
	MaxRetries int           `toml:"max_retries"`
	RetryDelay time.Duration `toml:"retry_delay"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// Config holds all pakdeck configuration.
type Config struct {
	DataDir      string                    `toml:"data_dir"`
	PipelinesDir string                    `toml:"pipelines_dir"`
	LogLevel     string                    `toml:"log_level"`
	LogFormat    string                    `toml:"log_format"`
	Retry        RetryConfig               `toml:"retry"`
	Platforms    map[string]PlatformConfig `toml:"platforms"`
	Postgres     PostgresConfig            `toml:"postgres"`
	ObjectStore  ObjectStoreConfig         `toml:"objectstore"`
	Webhooks     []WebhookConfig           `toml:"webhooks"`
	API          APIConfig                 `toml:"api"`
}

const (
	defaultListen      = "127.0.0.1:7420"
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
)

// DataDirOrDefault returns DataDir if set, otherwise ~/.local/share/pakdeck.
func (c Config) DataDirOrDefault() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pakdeck")
}

// PipelinesDirOrDefault returns PipelinesDir if set, otherwise <data dir>/pipelines.
func (c Config) PipelinesDirOrDefault() string {
	if c.PipelinesDir != "" {
		return c.PipelinesDir
	}
	return filepath.Join(c.DataDirOrDefault(), "pipelines")
}

// ListenOrDefault returns the API listen address.
func (c Config) ListenOrDefault() string {
	if c.API.Listen != "" {
		return c.API.Listen
	}
	return defaultListen
}

// BackoffOrDefault returns the retry backoff bounds.
func (c Config) BackoffOrDefault() (base, max time.Duration) {
	base, max = c.Retry.BaseBackoff, c.Retry.MaxBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	if max <= 0 {
		max = defaultMaxBackoff
	}
	return base, max
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - PAKDECK_DATA_DIR                overrides data_dir
//   - PAKDECK_PIPELINES_DIR           overrides pipelines_dir
//   - PAKDECK_LOG_LEVEL               overrides log_level
//   - PAKDECK_DATABASE_URL            overrides postgres.url
//   - PAKDECK_OBJECTSTORE_ACCESS_KEY  overrides objectstore.access_key
//   - PAKDECK_OBJECTSTORE_SECRET_KEY  overrides objectstore.secret_key
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the pakdeck config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pakdeck", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"PAKDECK_DATA_DIR", &cfg.DataDir},
		{"PAKDECK_PIPELINES_DIR", &cfg.PipelinesDir},
		{"PAKDECK_LOG_LEVEL", &cfg.LogLevel},
		{"PAKDECK_DATABASE_URL", &cfg.Postgres.URL},
		{"PAKDECK_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKey},
		{"PAKDECK_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600
// because the file may hold credentials.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
