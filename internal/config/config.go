// Package config loads node configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Username selects which profile to unlock.
	Username string `env:"GLEN_USERNAME"`
	// Password unlocks the profile keybag.
	Password string `env:"GLEN_PASSWORD"`
	// ProfilePath overrides the default ~/.glen profile location.
	ProfilePath string `env:"GLEN_PROFILE_PATH"`
	// DBPath overrides the default per-identity database path.
	DBPath string `env:"GLEN_DB_PATH"`
	// ListenAddrs are the libp2p listen multiaddrs.
	ListenAddrs []string `env:"GLEN_LISTEN_ADDRS" envSeparator:"," envDefault:"/ip4/0.0.0.0/tcp/0"`
	// Communities are the community ids to sync on startup.
	Communities []string `env:"GLEN_COMMUNITIES" envSeparator:","`
	// QueueSize bounds per-community event queues and the ingest queue.
	QueueSize int `env:"GLEN_QUEUE_SIZE" envDefault:"256"`
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
