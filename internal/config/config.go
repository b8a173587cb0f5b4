// Package config handles Pushdeck configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkoenig/pushdeck/internal/models"
)

// Config is the root configuration structure for Pushdeck.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Sync settings for polling and websocket delivery
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// DefaultServer is the push server registered on first start.
	DefaultServer string `yaml:"default_server" mapstructure:"default_server"`
}

// GlobalConfig contains global Pushdeck settings.
type GlobalConfig struct {
	// DataDir is where Pushdeck stores its data (default: ~/.local/share/pushdeck).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/pushdeck).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SyncConfig contains notification delivery settings.
type SyncConfig struct {
	// PollInterval is how often topics are polled for missed messages.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// RequestTimeout bounds individual HTTP requests to the push server.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// WebsocketEnabled keeps a live websocket open per subscription.
	WebsocketEnabled bool `yaml:"websocket_enabled" mapstructure:"websocket_enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "pushdeck"),
			ConfigDir: filepath.Join(homeDir, ".config", "pushdeck"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/pushdeck.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Sync: SyncConfig{
			PollInterval:     30 * time.Second,
			RequestTimeout:   15 * time.Second,
			WebsocketEnabled: true,
		},
		DefaultServer: "https://ntfy.sh",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}

	if c.Sync.PollInterval < 5*time.Second {
		return fmt.Errorf("sync.poll_interval must be at least 5s")
	}

	if c.Sync.RequestTimeout < time.Second {
		return fmt.Errorf("sync.request_timeout must be at least 1s")
	}

	if c.DefaultServer != "" {
		if err := models.ValidateServerURL(c.DefaultServer); err != nil {
			return fmt.Errorf("default_server: %w", err)
		}
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "pushdeck.db")
}
