// Package config loads the command line tool's settings from the
// environment and an optional namespaces file.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreSPARQL = "sparql"
)

// Config holds all tool configuration
type Config struct {
	// Backend selection. DSN is a SQLite DSN or a Badger directory.
	Store string `env:"SUBJECTS_STORE" envDefault:"memory"`
	DSN   string `env:"SUBJECTS_DSN"`

	// SPARQL protocol settings
	Endpoint       string `env:"SUBJECTS_ENDPOINT"`
	UpdateEndpoint string `env:"SUBJECTS_UPDATE_ENDPOINT"`
	User           string `env:"SUBJECTS_USER"`
	Password       string `env:"SUBJECTS_PASSWORD"`
	Graph          string `env:"SUBJECTS_GRAPH"`

	// Graph settings
	Language   string `env:"SUBJECTS_LANG"`
	Namespaces string `env:"SUBJECTS_NAMESPACES"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads the configuration from environ only.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StoreBadger:
		if c.DSN == "" {
			return fmt.Errorf("SUBJECTS_DSN must name a directory for the badger store")
		}
	case StoreSPARQL:
		if c.Endpoint == "" {
			return fmt.Errorf("SUBJECTS_ENDPOINT is required for the sparql store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}
