package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.True(t, cfg.Server.IngestEvents)
	assert.Equal(t, "https://fcm.googleapis.com", cfg.Push.Endpoint)
	assert.Equal(t, "static", cfg.Push.Credentials.Mode)
	assert.Equal(t, "memory", cfg.Dedup.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.TTL)
	assert.Equal(t, "09:00", cfg.Schedule.ScanAt)
	assert.Equal(t, 30*time.Second, cfg.Schedule.BackupDebounce)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
storage:
  driver: mongo
  mongo:
    uri: mongodb://localhost:27017
    database: organizer
push:
  project_id: demo
  credentials:
    mode: service_account
    service_account_file: /etc/pocket/sa.json
dedup:
  driver: redis
  redis:
    addr: localhost:6379
schedule:
  timezone: Europe/Istanbul
  scan_at: "08:30"
  backup_interval: 6h
logging:
  level: debug
`)
	err := os.WriteFile(cfgPath, data, 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Storage.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.Mongo.URI)
	assert.Equal(t, "organizer", cfg.Storage.Mongo.Database)
	assert.Equal(t, "demo", cfg.Push.ProjectID)
	assert.Equal(t, "service_account", cfg.Push.Credentials.Mode)
	assert.Equal(t, "localhost:6379", cfg.Dedup.Redis.Addr)
	assert.Equal(t, "08:30", cfg.Schedule.ScanAt)
	assert.Equal(t, 6*time.Hour, cfg.Schedule.BackupInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Schedule.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Istanbul", loc.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POCKET_LOGGING_LEVEL", "error")
	t.Setenv("POCKET_SERVER_LISTEN", ":7070")
	t.Setenv("POCKET_PUSH_CREDENTIALS_ACCESS_TOKEN", "ya29.secret")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "ya29.secret", cfg.Push.Credentials.AccessToken)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	err := os.WriteFile(cfgPath, []byte("invalid: [yaml"), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"unknown storage", func(c *config.Config) { c.Storage.Driver = "postgres" }},
		{"mongo without uri", func(c *config.Config) { c.Storage.Driver = "mongo" }},
		{"unknown credentials mode", func(c *config.Config) { c.Push.Credentials.Mode = "oauth" }},
		{"redis without addr", func(c *config.Config) { c.Dedup.Driver = "redis" }},
		{"backup without bucket", func(c *config.Config) { c.Backup.Enabled = true }},
		{"bad timezone", func(c *config.Config) { c.Schedule.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
