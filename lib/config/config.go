// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/homeserver/lib/ref"
	"github.com/bureau-foundation/homeserver/lib/serverglob"
)

// Config is the master configuration for the federation service.
type Config struct {
	// ServerName is this homeserver's Matrix server name (the part
	// after the colon in local user IDs). Required.
	ServerName string `yaml:"server_name" env:"FEDERATION_SERVER_NAME"`

	// Listen is the address the federation HTTP listener binds to.
	Listen string `yaml:"listen" env:"FEDERATION_LISTEN"`

	// Database configures the room-graph store.
	Database DatabaseConfig `yaml:"database"`

	// Federation configures server-to-server policy.
	Federation FederationConfig `yaml:"federation"`
}

// DatabaseConfig configures the SQLite room-graph store.
type DatabaseConfig struct {
	// Path is the filesystem path to the database file. Required.
	Path string `yaml:"path" env:"FEDERATION_DATABASE_PATH"`

	// PoolSize is the number of pooled connections. Zero uses the
	// sqlitepool default.
	PoolSize int `yaml:"pool_size" env:"FEDERATION_DATABASE_POOL_SIZE"`

	// SigningKeyPath is the file holding this server's ed25519 seed
	// (unpadded base64). Created with a fresh key on first start if
	// the file does not exist.
	SigningKeyPath string `yaml:"signing_key_path" env:"FEDERATION_SIGNING_KEY_PATH"`
}

// FederationConfig configures server-to-server policy.
type FederationConfig struct {
	// ForbiddenRemoteServerNames lists wildcard patterns of server
	// hosts that may never interact with this homeserver, regardless
	// of room-level ACLs. Matched with serverglob semantics against
	// the host (port stripped).
	ForbiddenRemoteServerNames []string `yaml:"forbidden_remote_server_names" env:"FEDERATION_FORBIDDEN_REMOTE_SERVER_NAMES"`
}

// Load reads the config file at path, applies FEDERATION_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{
		Listen: ":8448",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks required fields and field formats.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("server_name is required")
	}
	if _, err := ref.ParseServerName(c.ServerName); err != nil {
		return fmt.Errorf("server_name: %w", err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// ForbiddenHost reports whether host matches the operator's
// forbidden-remote-server list.
func (c *Config) ForbiddenHost(host string) bool {
	return serverglob.MatchAny(c.Federation.ForbiddenRemoteServerNames, host)
}
