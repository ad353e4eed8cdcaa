// Package config loads fieldsync configuration.
//
// Settings come from fieldsync.yaml (searched in the working directory and
// ~/.config/fieldsync), overridden by FIELDSYNC_* environment variables.
// The retry ceiling and staleness window are deliberately NOT configurable;
// they live as constants in the queue package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Store     StoreConfig     `mapstructure:"store"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Status    StatusConfig    `mapstructure:"status"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// BackendConfig describes the hosted backend connection.
type BackendConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	UserID string `mapstructure:"user_id"`
}

// StoreConfig describes the durable local store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SnapshotsConfig describes the offline visits snapshot directory.
type SnapshotsConfig struct {
	Dir string `mapstructure:"dir"`
}

// StatusConfig describes the status push server.
type StatusConfig struct {
	Port int `mapstructure:"port"`
}

// SyncConfig holds processor and monitor tuning.
type SyncConfig struct {
	QueuePollInterval time.Duration `mapstructure:"queue_poll_interval"`
	OnlineDebounce    time.Duration `mapstructure:"online_debounce"`
	MinGap            time.Duration `mapstructure:"min_gap"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
}

// DashboardConfig holds read-model tuning.
type DashboardConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RevenueTarget   float64       `mapstructure:"revenue_target"`
}

// LogConfig holds daemon log rotation settings.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// setDefaults registers the product's shipped tuning.
func setDefaults(v *viper.Viper) {
	// Backend keys get empty defaults so environment overrides are picked
	// up even without a config file.
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.user_id", "")
	v.SetDefault("store.path", filepath.Join(".fieldsync", "cache.db"))
	v.SetDefault("snapshots.dir", filepath.Join(".fieldsync", "snapshots"))
	v.SetDefault("status.port", 8473)
	v.SetDefault("sync.queue_poll_interval", 5*time.Second)
	v.SetDefault("sync.online_debounce", 2*time.Second)
	v.SetDefault("sync.min_gap", 10*time.Second)
	v.SetDefault("sync.probe_interval", 10*time.Second)
	v.SetDefault("dashboard.refresh_interval", 60*time.Second)
	v.SetDefault("dashboard.revenue_target", 0)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Load reads configuration from the given file, or from the standard search
// path when path is empty. A missing config file yields defaults, not an
// error; a malformed one fails loudly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fieldsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "fieldsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errorsAs(err, &notFound) {
			// No config file is fine; defaults + env apply.
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings a connected run requires.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.UserID == "" {
		return fmt.Errorf("backend.user_id is required")
	}
	return nil
}

// errorsAs is a small indirection so the viper sentinel check reads cleanly.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
