package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/driftbox/driftbox/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".driftbox", "config.json")
	DefaultDataDir    = filepath.Join(home, "DriftBox")

	DefaultSyncInterval = 30 * time.Second
)

var (
	ErrNoServerURL = errors.New("server_url is required")
	ErrNoDataDir   = errors.New("data_dir is required")
)

type Config struct {
	DataDir      string        `json:"data_dir"`
	ServerURL    string        `json:"server_url"`
	AuthToken    string        `json:"auth_token,omitempty"`
	SyncInterval time.Duration `json:"sync_interval,omitempty"`
	Path         string        `json:"-"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("invalid server_url %q: %w", c.ServerURL, err)
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Path = path
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
