package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("NOTIFIER_DRIVERS", "log, NATS")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"log", "nats"}, cfg.Notifier.Drivers)
	assert.Equal(t, "data/invoices.db", cfg.Database.Path)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "invoices.notifications", cfg.NATS.SubjectPrefix)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 8181
  read_timeout: 5s
database:
  path: /tmp/x.db
auth:
  jwt_secret: yaml-secret
  token_ttl: 1h
notifier:
  drivers: [log, lark]
lark:
  app_id: cli_123
  app_secret: shh
tracing:
  enabled: true
  output_path: stderr
bootstrap:
  admin_username: root
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"log", "lark"}, cfg.Notifier.Drivers)
	assert.True(t, cfg.Tracing.Enabled)

	cc := cfg.ToContainerConfig("1.2.3")
	assert.Equal(t, "1.2.3", cc.Version)
	assert.Equal(t, "/tmp/x.db", cc.Database.Path)
	assert.Equal(t, "cli_123", cc.Lark.AppID)
	assert.Equal(t, "root", cc.Bootstrap.AdminUsername)
	assert.NoError(t, cc.Validate())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing secret", "server:\n  port: 8080\n"},
		{"lark without credentials", "auth:\n  jwt_secret: s\nnotifier:\n  drivers: [lark]\n"},
		{"unknown driver", "auth:\n  jwt_secret: s\nnotifier:\n  drivers: [pager]\n"},
		{"bad port", "auth:\n  jwt_secret: s\nserver:\n  port: 70000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "INVOICE_TEST_DOTENV=loaded\n")
	t.Setenv("INVOICE_TEST_DOTENV", "")
	os.Unsetenv("INVOICE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, "loaded", os.Getenv("INVOICE_TEST_DOTENV"))
}
