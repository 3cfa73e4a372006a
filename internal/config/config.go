// Package config handles loading and managing projtrack configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the projtrack configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Server ServerConfig `toml:"server"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort int    `toml:"api_port"` // HTTP server port (default: 8374)
	APIKey  string `toml:"api_key"`  // API authentication key (empty = no auth)
}

// DefaultHome returns the default projtrack home directory.
// Respects PROJTRACK_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("PROJTRACK_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".projtrack"
	}
	return filepath.Join(home, ".projtrack")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (<home>/config.toml).
// If home is empty, uses DefaultHome(). The config file is optional;
// defaults apply when it is absent.
func Load(path, home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}

	if path == "" {
		path = filepath.Join(home, "config.toml")
	}

	cfg := &Config{
		HomeDir: home,
		Data: DataConfig{
			DataDir: home,
		},
		Server: ServerConfig{
			APIPort: 8374,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	if cfg.Data.DataDir == "" {
		cfg.Data.DataDir = home
	}

	return cfg, nil
}

// EnsureDirs creates the data and raw mail directories if needed.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Data.DataDir, c.RawMailDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the path to the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "projtrack.db")
}

// RawMailDir returns the directory where raw .eml files are stored.
func (c *Config) RawMailDir() string {
	return filepath.Join(c.Data.DataDir, "raw_mail")
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
