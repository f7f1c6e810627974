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
	t.Setenv("CONNECTOME_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, int64(3), cfg.Cascade.ConnectionThreshold)
	assert.Equal(t, 0.5, cfg.Cascade.PercentageThreshold)
	assert.Equal(t, 3, cfg.Cascade.MaxLayers)
	assert.Equal(t, "directory", cfg.Memo.Backend)
	assert.Equal(t, "strict", cfg.CrossRef.Strategy)
	assert.False(t, cfg.ObjectStore.Enabled())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cascade:
  source: cave
  percentageThreshold: 1.0
  maxLayers: 4
cave:
  yLimit: 225000
  timeout: 90s
memo:
  backend: redis
objectStore:
  endpoint: localhost:9000
  bucket: cascades
`), 0o600))

	t.Setenv("CONNECTOME_CONFIG", path)
	t.Setenv("CASCADE_MAX_LAYERS", "2")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OBJECT_STORE_REGION", "eu-west-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cave", cfg.Cascade.Source)
	assert.Equal(t, 1.0, cfg.Cascade.PercentageThreshold)
	assert.Equal(t, 2, cfg.Cascade.MaxLayers)
	assert.Equal(t, 225000.0, cfg.CAVE.YLimit)
	assert.Equal(t, 90*time.Second, cfg.CAVE.Timeout)
	assert.Equal(t, "redis", cfg.Memo.Backend)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.True(t, cfg.ObjectStore.Enabled())
	assert.Equal(t, "eu-west-1", cfg.ObjectStore.Region)
	// untouched sections keep their defaults
	assert.Equal(t, int64(3), cfg.Cascade.ConnectionThreshold)
	assert.Equal(t, defaultCAVEDatastack, cfg.CAVE.Datastack)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_PORT":    "70000",
		"MEMO_TTL":       "soon",
		"CASCADE_SOURCE": "flywire",
		"MEMO_BACKEND":   "sqlite",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CONNECTOME_CONFIG", "")
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONNECTOME_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestSyntheticSourceNeedsDir(t *testing.T) {
	cfg := Defaults()
	cfg.Cascade.Source = "synthetic"
	assert.Error(t, cfg.Validate())
	cfg.Cascade.SyntheticDir = "data"
	assert.NoError(t, cfg.Validate())
}
