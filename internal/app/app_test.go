package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/engelke/fashion-hack-2024/internal/config"
	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "attributes.db")
	if driver == "badger" {
		path = filepath.Join(dir, "badger")
	}
	return &config.Config{
		Database: config.DatabaseConfig{Driver: driver, Path: path, AutoMigrate: true},
		Storage:  config.StorageConfig{Type: "local", LocalPath: filepath.Join(dir, "images")},
		VLM:      config.VLMConfig{Model: "gpt-4o-mini"},
		Ingest:   config.IngestConfig{MaxRetries: 3, RetryBackoffBaseMs: 1, Workers: 2},
	}
}

func TestNew_StoresWithoutModel(t *testing.T) {
	for _, driver := range []string{"sqlite", "badger"} {
		t.Run(driver, func(t *testing.T) {
			log := logger.New(&logger.Config{Level: "error", Output: &bytes.Buffer{}})
			a, err := New(context.Background(), testConfig(t, driver), log)
			require.NoError(t, err)
			defer a.Close()

			assert.False(t, a.AnalysisEnabled)
			assert.False(t, a.Search.SearchEnabled())
			assert.Nil(t, a.Qdrant)

			result, err := a.Ingest.Ingest(context.Background(), []byte("x"), "dress.jpg")
			require.NoError(t, err)
			assert.Nil(t, result.Record)

			ok, err := a.Storage.Exists(context.Background(), result.StorageKey)
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = a.Ingest.RetryAnalysis(context.Background(), result.ImageID)
			assert.ErrorIs(t, err, domain.ErrModelUnavailable)
		})
	}
}

func TestNew_EnablesAnalysisWithAPIKey(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	cfg.VLM.APIKey = "sk-test"
	cfg.VLM.BaseURL = "http://127.0.0.1:1"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.AnalysisEnabled)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "mysql")
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}
