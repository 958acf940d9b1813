// Package config loads the flexstore configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/maruel/flexstore/internal/git"
	"github.com/maruel/flexstore/internal/jsonldb"
	"gopkg.in/yaml.v3"
)

// Config is the content of flexstore.yaml.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	ChunkSize int    `yaml:"chunk_size"`
	LogLevel  string `yaml:"log_level"`
	// Versioned records every change as a git commit in DataDir.
	Versioned bool `yaml:"versioned"`
	// Watch reloads collections edited outside the process.
	Watch         bool          `yaml:"watch"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	Author        git.Author    `yaml:"author"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:       "./data",
		ChunkSize:     jsonldb.DefaultChunkSize,
		LogLevel:      "info",
		WatchInterval: time.Second,
		Author:        git.Author{Name: "flexstore", Email: "flexstore@localhost"},
	}
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is provided by the user
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.WatchInterval < 0 {
		return fmt.Errorf("watch_interval must not be negative, got %s", c.WatchInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Versioned && (c.Author.Name == "" || c.Author.Email == "") {
		return errors.New("author name and email are required when versioned")
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
}

// Store returns the configuration of the document store.
func (c *Config) Store() jsonldb.Config {
	return jsonldb.Config{Dir: c.DataDir, ChunkSize: c.ChunkSize}
}
