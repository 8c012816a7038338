// Package config loads the wearlink configuration file and builds the
// shared logger from it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig points at the product backend.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url" default:"http://localhost:8000"`
	AuthToken      string        `yaml:"auth_token"`
	UserID         string        `yaml:"user_id"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
}

// SessionConfig tunes the device session manager.
type SessionConfig struct {
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	SampleInterval time.Duration `yaml:"sample_interval" default:"30s"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" default:"info"`
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. Fields missing from the file keep their
// defaults. An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("config %q: invalid log level %q", path, cfg.Log.Level)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
