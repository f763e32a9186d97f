// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

// Package config loads service configuration from a YAML file with
// command-line flag overrides.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP API and observability listeners.
type ServerConfig struct {
	Addr        string `koanf:"addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	FrontendURL string `koanf:"frontend_url"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig configures bearer session tokens. The expiry values stay
// strings: absent, empty and unparseable entries all fall through the
// day/minute/default resolution chain.
type SessionConfig struct {
	Secret        string `koanf:"secret"`
	ExpiryDays    string `koanf:"expiry_days"`
	ExpiryMinutes string `koanf:"expiry_minutes"`
	SecureCookie  bool   `koanf:"secure_cookie"`
}

// SMTPConfig configures the reset-mail sink. An empty Host selects the
// log-only sink.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// Defaults applied before any file or flag value.
const (
	DefaultAddr        = ":8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultFrontendURL = "http://localhost:5173"
	DefaultSMTPPort    = 587
	DefaultLogFormat   = "json"
)

// Load reads configuration: defaults, then the YAML file at path (when
// non-empty), then flag overrides (when flags is non-nil; flag names use
// dotted config keys, e.g. --database.url).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "apply flag overrides").
				Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal").
			Wrap(err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = DefaultMetricsAddr
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = DefaultFrontendURL
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
}

// Validate checks the startup-fatal requirements: the database URL and the
// session signing secret. A missing secret is never a per-request error.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
	}
	if c.Session.Secret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session.secret is required")
	}
	return nil
}
