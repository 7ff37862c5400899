package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/memoranda/internal/config"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "interactive configuration wizard")
	})

	t.Run("saves answers", func(t *testing.T) {
		output, err := executeCommand(t, "/srv/notes\n\nn\n25\ndebug\n", "configure")
		require.NoError(t, err)
		assert.Contains(t, output, "Configuration saved to:")

		path := filepath.Join(os.Getenv("HOME"), "memoranda.json")
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/notes", cfg.Storage.Root)
		assert.Equal(t, 25, cfg.Cache.MaxMemos)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("aborts on closed input", func(t *testing.T) {
		_, err := executeCommand(t, "", "configure")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration failed")
	})
}
