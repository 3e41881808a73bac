// Package container provides dependency injection and lifecycle management
// for the invoice approval service.
package container

import (
	"fmt"
	"time"
)

// Notifier driver names
const (
	NotifierLog  = "log"
	NotifierLark = "lark"
	NotifierNATS = "nats"
)

// Config holds all configuration for the Container.
type Config struct {
	// Version is reported by /health and in trace resources
	Version string

	Database  DatabaseConfig
	Auth      AuthConfig
	Notifier  NotifierConfig
	Lark      LarkConfig
	NATS      NATSConfig
	Tracing   TracingConfig
	Bootstrap BootstrapConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// NotifierConfig selects the notification channels.
// Every listed driver receives every notification.
type NotifierConfig struct {
	Drivers []string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

// NATSConfig holds NATS publisher settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	ClientName    string
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	OutputPath  string
}

// BootstrapConfig names the admin created on first start, if any.
type BootstrapConfig struct {
	AdminUsername string
	AdminEmail    string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "dev",
		Database: DatabaseConfig{
			Path:            "data/invoices.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "invoice-approval",
			TokenTTL: 12 * time.Hour,
		},
		Notifier: NotifierConfig{
			Drivers: []string{NotifierLog},
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "invoices.notifications",
			ClientName:    "invoice-approval",
		},
		Tracing: TracingConfig{
			ServiceName: "invoice-approval",
			OutputPath:  "stdout",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// HasDriver reports whether name is among the configured notifier drivers
func (c *Config) HasDriver(name string) bool {
	for _, d := range c.Notifier.Drivers {
		if d == name {
			return true
		}
	}
	return false
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	for _, d := range c.Notifier.Drivers {
		switch d {
		case NotifierLog:
		case NotifierLark:
			if c.Lark.AppID == "" {
				return fmt.Errorf("lark.app_id is required for the lark notifier")
			}
			if c.Lark.AppSecret == "" {
				return fmt.Errorf("lark.app_secret is required for the lark notifier")
			}
		case NotifierNATS:
			if c.NATS.URL == "" {
				return fmt.Errorf("nats.url is required for the nats notifier")
			}
		default:
			return fmt.Errorf("unknown notifier driver %q", d)
		}
	}

	if c.Bootstrap.AdminEmail != "" && c.Bootstrap.AdminUsername == "" {
		return fmt.Errorf("bootstrap.admin_username is required when admin_email is set")
	}

	return nil
}
