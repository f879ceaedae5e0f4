package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `
database:
  driver: badger
  path: ` + filepath.Join(dir, "db") + `
storage:
  type: local
  local_path: ` + filepath.Join(dir, "images") + `
vlm:
  api_key: ""
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestFilesCommand(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	imgDir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.png", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(imgDir, name), []byte(name), 0o644))
	}

	var out bytes.Buffer
	err := newApp(&out).Run([]string{"ingest", "--config", writeConfig(t), "--log-level", "error", "files", "--dir", imgDir})
	require.NoError(t, err)

	var stats service.IngestStats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalItems)
	assert.Equal(t, int64(2), stats.CompletedItems)
}

func TestFilesCommand_DirRequired(t *testing.T) {
	err := newApp(&bytes.Buffer{}).Run([]string{"ingest", "files"})
	assert.ErrorContains(t, err, "dir")
}

func TestReindexWithoutIndex(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	err := newApp(&bytes.Buffer{}).Run([]string{"ingest", "--config", writeConfig(t), "reindex"})
	assert.ErrorContains(t, err, "search index not configured")
}
