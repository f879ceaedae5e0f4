package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 15*time.Minute, cfg.Storage.SignedURLTTL)
	assert.Equal(t, 3, cfg.Ingest.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.RetryBackoffBase())
	assert.Equal(t, "gpt-4o-mini", cfg.VLM.Model)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: r2
  bucket: from-file
  signed_url_ttl: 5m
ingest:
  max_retries: 5
  retry_backoff_base_ms: 100
`)
	t.Setenv("STORAGE_BUCKET", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VLM_MODEL", "gpt-4o")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "r2", cfg.Storage.Type)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
	assert.Equal(t, 5*time.Minute, cfg.Storage.SignedURLTTL)
	assert.Equal(t, 5, cfg.Ingest.MaxRetries)
	assert.Equal(t, "sk-test", cfg.VLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.VLM.Model)
}

func TestEmbeddingKeyFromEnv(t *testing.T) {
	t.Setenv("JINA_API_KEY", "jina-key")
	cfg, err := Load(writeConfig(t, "qdrant:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "jina-key", cfg.Embedding.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Storage:  StorageConfig{Type: "local", LocalPath: "/tmp/x"},
			VLM:      VLMConfig{Model: "m"},
			Ingest:   IngestConfig{MaxRetries: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"s3 without bucket", func(c *Config) { c.Storage = StorageConfig{Type: "s3"} }, "storage.bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }, "unsupported storage type"},
		{"missing model", func(c *Config) { c.VLM.Model = "" }, "vlm.model"},
		{"zero retries", func(c *Config) { c.Ingest.MaxRetries = 0 }, "max_retries"},
		{"qdrant without embedding key", func(c *Config) {
			c.Qdrant.Enabled = true
			c.Embedding = EmbeddingConfig{Provider: "jina", Model: "m", Dimensions: 8}
		}, "api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
