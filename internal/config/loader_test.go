package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, []string{"*.md"}, cfg.Storage.ContentPatterns)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "memoranda.json")

		testConfig := `{
			"storage": {
				"root": "/srv/notes",
				"content_patterns": ["*.md", "*.markdown"],
				"watch": true
			},
			"cache": {"max_memos": 42},
			"logging": {"level": "debug"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "/srv/notes", cfg.Storage.Root)
		assert.Equal(t, []string{"*.md", "*.markdown"}, cfg.Storage.ContentPatterns)
		assert.True(t, cfg.Storage.Watch)
		assert.Equal(t, 42, cfg.Cache.MaxMemos)
		assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "memoranda.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "memoranda.log"), cfg.Logging.File)
	})

	t.Run("invalid json", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "memoranda.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "memoranda.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "warn"}}`), 0644))

	t.Setenv("MEMORANDA_LOG_LEVEL", "debug")
	t.Setenv("MEMORANDA_LOG_JSON", "true")
	t.Setenv("MEMORANDA_ROOT", "/env/root")
	t.Setenv("MEMORANDA_CACHE_MAX_MEMOS", "7")

	cfg, err := NewLoader(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "/env/root", cfg.Storage.Root)
	assert.Equal(t, 7, cfg.Cache.MaxMemos)
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "memoranda.json")

	cfg := DefaultConfig()
	cfg.Storage.Root = "/saved/root"
	cfg.Cache.MaxMemos = 12
	cfg.Logging.Level = "error"

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "/saved/root", loaded.Storage.Root)
	assert.Equal(t, 12, loaded.Cache.MaxMemos)
	assert.Equal(t, "error", loaded.Logging.Level)
}

func TestGetConfigPath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		assert.Equal(t, "/custom/path.json", NewLoader("/custom/path.json").GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		assert.Equal(t, filepath.Join(home, ".memoranda", "memoranda.json"), NewLoader("").GetConfigPath())
	})
}
