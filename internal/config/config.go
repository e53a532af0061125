// Package config handles loading and parsing of netvault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for netvault.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Registry      RegistryConfig      `yaml:"registry"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadSize is the maximum accepted upload body size in bytes.
	// Uploads larger than this are rejected with 413 before being buffered.
	MaxUploadSize int64 `yaml:"max_upload_size"`
	// ReadTimeout bounds how long the server waits for the inbound request
	// body, in seconds.
	ReadTimeout int `yaml:"read_timeout"`
	// ShutdownTimeout bounds graceful shutdown, in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// StorageConfig holds artifact storage settings.
type StorageConfig struct {
	// RootDir is the directory where compressed artifacts are stored.
	RootDir string `yaml:"root_dir"`
	// GzipLevel is the fixed gzip compression level (1-9).
	GzipLevel int `yaml:"gzip_level"`
}

// RegistryConfig holds artifact registry (metadata index) settings.
type RegistryConfig struct {
	// Path is the filesystem path for the SQLite registry database.
	Path string `yaml:"path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: text or json.
	Format string `yaml:"format"`
}

// ObservabilityConfig toggles the operational endpoints.
type ObservabilityConfig struct {
	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`
	// HealthCheck enables the /health endpoint.
	HealthCheck bool `yaml:"health_check"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config. It applies sensible defaults for unset values. If the
// primary path fails, it falls back to netvault.example.yaml in the same
// directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// Try fallback paths
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "netvault.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "netvault.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for empty fields that YAML didn't set
	applyDefaults(cfg)

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxUploadSize:   256 << 20, // 256 MiB
			ReadTimeout:     60,
			ShutdownTimeout: 30,
		},
		Storage: StorageConfig{
			RootDir:   "./data/nn",
			GzipLevel: 6,
		},
		Registry: RegistryConfig{
			Path: "./data/registry.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 256 << 20
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 60
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Storage.RootDir == "" {
		cfg.Storage.RootDir = "./data/nn"
	}
	if cfg.Storage.GzipLevel == 0 {
		cfg.Storage.GzipLevel = 6
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "./data/registry.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
