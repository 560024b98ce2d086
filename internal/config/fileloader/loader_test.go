package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artshield/artshield/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverlaysPartialFileOntoDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
endpoint:
  base_url: https://protect.example.com
polling:
  max_attempts: 20
  interval: 500ms
`)

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://protect.example.com", cfg.Endpoint.BaseURL)
	assert.Equal(t, 20, cfg.Polling.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Interval)

	// Everything the file omits keeps its default.
	assert.Equal(t, config.Default().Upload.MaxFileSizeBytes, cfg.Upload.MaxFileSizeBytes)
	assert.Equal(t, config.Default().Polling.MaxDelay, cfg.Polling.MaxDelay)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileLoader("/nonexistent/config.yaml").Load(context.Background())
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "endpoint: [not a mapping")
	_, err := NewFileLoader(path).Load(context.Background())
	assert.Error(t, err)
}
