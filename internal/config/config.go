// Package config provides dynamic configuration management for OTMap.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for OTMap.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	DBPath     string `mapstructure:"db_path"`

	// ── Security ─────────────────────────────────────────────────────────────
	// JWTSecret: HS256 signing key for API tokens.
	// Change this in production, the default is a placeholder.
	JWTSecret string `mapstructure:"jwt_secret"`
	// AdminUser / AdminPass: credentials for /api/login. The password is
	// bcrypt-hashed at startup and only the hash is kept in memory.
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`
	// AdminTenantID scopes everything the admin session touches.
	AdminTenantID uint `mapstructure:"admin_tenant_id"`

	// ── OUI registry ─────────────────────────────────────────────────────────
	// OUIPath: local copy of the IEEE oui.txt registry. Missing or unreadable
	// file leaves the resolver running with an empty map.
	OUIPath string `mapstructure:"oui_path"`
	OUIURL  string `mapstructure:"oui_url"`

	// ── Capture import ───────────────────────────────────────────────────────
	// PcapMaxSizeMB: per-file upload cap; larger files reject the whole batch.
	PcapMaxSizeMB int `mapstructure:"pcap_max_size_mb"`
	// ParseTimeoutSeconds: wall-clock limit for one file's parse worker.
	// The worker process is killed when it expires.
	ParseTimeoutSeconds int `mapstructure:"parse_timeout_seconds"`
}

// PcapMaxBytes returns the per-file upload limit in bytes.
func (c *Config) PcapMaxBytes() int64 {
	return int64(c.PcapMaxSizeMB) * 1024 * 1024
}

// ParseTimeout returns the per-file worker timeout as a duration.
func (c *Config) ParseTimeout() time.Duration {
	return time.Duration(c.ParseTimeoutSeconds) * time.Second
}

// Load reads config from file (./config.yaml or ~/.otmap/config.yaml)
// and falls back to smart defaults. Environment variables with prefix OTMAP_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8844)
	v.SetDefault("db_path", "otmap.db")

	// Security defaults, MUST be overridden in production via config.yaml or env vars.
	v.SetDefault("jwt_secret", "Om4p!Kt9#xW2$qZ7&vR5^bN8*cL1@gJ")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")
	v.SetDefault("admin_tenant_id", 1)

	v.SetDefault("oui_path", "oui.txt")
	v.SetDefault("oui_url", "https://standards-oui.ieee.org/oui.txt")

	v.SetDefault("pcap_max_size_mb", 50)
	v.SetDefault("parse_timeout_seconds", 120)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.otmap")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("OTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
