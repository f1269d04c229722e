// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, crypto) via constructors.
  - Fail Fast: Missing secrets abort startup before any traffic is served.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the yomira-id server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// PseudonymSecret keys the one-way HMAC that pseudonymizes user
	// identifiers in log entries. Rotating it breaks log correlation,
	// so it is managed separately from the encryption secret.
	PseudonymSecret string `env:"PSEUDONYM_SECRET,required"`

	// EncryptionSecret keys the reversible encryption of user info in
	// AUDIT/ERROR log entries.
	EncryptionSecret string `env:"ENCRYPTION_SECRET,required"`

	// SessionSecret signs anti-forgery (CSRF) tokens.
	SessionSecret string `env:"SESSION_SECRET,required"`

	// Outbound email (SMTP relay)
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT"      envDefault:"587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPTLSMode   string `env:"SMTP_TLS_MODE"  envDefault:"starttls"`
	MailFromName  string `env:"MAIL_FROM_NAME" envDefault:"Yomira ID"`
	MailFromEmail string `env:"MAIL_FROM_EMAIL" envDefault:"no-reply@yomira.app"`

	// SendWelcomeEmail toggles the welcome email sent after a user
	// confirms their address (either confirmation path).
	SendWelcomeEmail bool `env:"SEND_WELCOME_EMAIL" envDefault:"false"`

	// AppBaseURL is the public origin used to build emailed links.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"https://id.yomira.app"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
