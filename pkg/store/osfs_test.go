package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/memoranda/pkg/memo"
)

// newOsStore backs the store with the real filesystem, which enforces name
// length limits and real modification times.
func newOsStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	fsys := afero.NewOsFs()
	_, err := EnsureStorageDir(fsys, root)
	require.NoError(t, err)

	s, err := New(Config{
		Root:   root,
		Fs:     fsys,
		Logger: zerolog.Nop(),
		Retry:  fastPolicy(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOsFsRoundTrip(t *testing.T) {
	s := newOsStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "Rust Programming", "Learning rust language")
	require.NoError(t, err)

	s.ClearCache()
	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Content, got.Content)
	assert.Equal(t, created.Tags, got.Tags)

	_, err = os.Stat(created.FilePath)
	assert.NoError(t, err)
}

func TestOsFsLongTitles(t *testing.T) {
	tests := []struct {
		name  string
		title string
	}{
		{"max ascii", strings.Repeat("a", memo.MaxTitleLength)},
		{"multibyte", strings.Repeat("é", 200)},
		{"max multibyte", strings.Repeat("語", memo.MaxTitleLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOsStore(t)
			ctx := context.Background()

			first, err := s.Create(ctx, tt.title, "first")
			require.NoError(t, err)
			second, err := s.Create(ctx, tt.title, "second")
			require.NoError(t, err)
			assert.NotEqual(t, first.FilePath, second.FilePath)
			s.ClearCache()

			for _, m := range []*memo.Memo{first, second} {
				assert.LessOrEqual(t, len(filepath.Base(m.FilePath)), 255)

				got, err := s.Get(ctx, m.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.title, got.Title)
				assert.Equal(t, m.Content, got.Content)
			}

			memos, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, memos, 2)
		})
	}
}

func TestOsFsExternalModificationDetected(t *testing.T) {
	s := newOsStore(t)
	ctx := context.Background()

	m, err := s.Create(ctx, "Watched", "before")
	require.NoError(t, err)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "before", got.Content)

	edited := m.Clone()
	edited.Content = "after"
	data, err := encodeMemo(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.FilePath, data, 0644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(m.FilePath, future, future))

	got, err = s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Content)
}
