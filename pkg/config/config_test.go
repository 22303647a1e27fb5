package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Reader.DefaultLimit)
	assert.True(t, cfg.Reader.MMap)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: 9000
reader:
  indexDir: /var/lib/shard
  defaultLimit: 5
  maxResults: 50
redis:
  enabled: true
  cacheTTL: 2m
logging:
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	t.Setenv("SR_SERVER_PORT", "9100")
	t.Setenv("SR_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SR_READER_MMAP", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/var/lib/shard", cfg.Reader.IndexDir)
	assert.Equal(t, 5, cfg.Reader.DefaultLimit)
	assert.False(t, cfg.Reader.MMap)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "text", cfg.Logging.Format)
	// untouched sections keep their defaults
	assert.Equal(t, 500, cfg.Export.BatchSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no index dir", func(c *Config) { c.Reader.IndexDir = "" }},
		{"zero default limit", func(c *Config) { c.Reader.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Reader.MaxResults = 1 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"zero batch", func(c *Config) { c.Export.BatchSize = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaultConfig().Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
