// Package config loads and saves the on-disk configuration for an HSTable
// database directory: which compressor a database was built with, the
// default read options new engines should apply, and the worker pool size
// collaborators should use.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/hstabledb/pkg/codec"
)

// Config is the persisted configuration for one HSTable database directory.
type Config struct {
	DataDir string  `yaml:"data_dir"`
	Storage Storage `yaml:"storage"`
	Pool    Pool    `yaml:"pool"`
	Logging Logging `yaml:"logging"`
}

// Storage holds the storage-core fields a database's identity depends on:
// the compressor used to write its values, and the read defaults new
// engines should apply unless a caller overrides them per-call.
type Storage struct {
	// Compressor names the backend used to write this database's
	// compressed records: "", "snappy", or "zstd". It is part of the
	// database's on-disk identity; changing it for an existing directory
	// makes previously compressed values unreadable.
	Compressor      string `yaml:"compressor"`
	VerifyChecksums bool   `yaml:"verify_checksums"`
	FillCache       bool   `yaml:"fill_cache"`
}

// Pool holds the worker pool's sizing.
type Pool struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Logging contains logging configuration.
type Logging struct {
	Level string `yaml:"level"`
}

// Compressor resolves the configured compressor name to a usable backend.
func (c *Config) Compressor() (codec.Compressor, error) {
	return codec.CompressorByName(c.Storage.Compressor)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Storage: Storage{
			Compressor:      "snappy",
			VerifyChecksums: true,
			FillCache:       true,
		},
		Pool: Pool{
			Workers:   4,
			QueueSize: 64,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the specified path.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to the specified path.
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// BootstrapConfig creates a new configuration with defaults for dataDir if
// none exists yet, and persists it.
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the
// current platform.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./hstabledb.yaml"
	}

	configDir := filepath.Join(homeDir, ".config", "hstabledb")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
