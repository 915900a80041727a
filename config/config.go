// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds every externally tunable setting.
type Config struct {
	// WSURL is the persistent connection target; token and trace-id query
	// parameters are appended at connect time.
	WSURL string `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	// APIURL is the base URL of the auth REST API.
	APIURL string `env:"API_URL" envDefault:"http://localhost:8080/api"`

	LogPath   string `env:"CLIENT_LOG_PATH"`
	LogStdout bool   `env:"CLIENT_LOG_STDOUT"`
	LogLevel  string `env:"CLIENT_LOG_LEVEL" envDefault:"INFO"`

	StoragePath string `env:"CLIENT_STORAGE_PATH"`
}

// Load parses the environment and fills in path defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join("logs", "client.log")
	}
	if cfg.StoragePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.StoragePath = filepath.Join(home, ".wumingmud", "client-storage.json")
	}
	return cfg, nil
}
