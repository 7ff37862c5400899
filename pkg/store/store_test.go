package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/memoranda/pkg/memo"
	"github.com/harun/memoranda/pkg/retry"
)

const testRoot = "/data"

func fastPolicy() retry.Policy {
	p := retry.ForFileIO()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func newTestStore(t *testing.T, fsys afero.Fs) *Store {
	t.Helper()
	if fsys == nil {
		fsys = afero.NewMemMapFs()
	}
	require.NoError(t, fsys.MkdirAll(filepath.Join(testRoot, StorageDirName), 0755))

	s, err := New(Config{
		Root:   testRoot,
		Fs:     fsys,
		Logger: zerolog.Nop(),
		Retry:  fastPolicy(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storageDir() string {
	return filepath.Join(testRoot, StorageDirName)
}

// failingRenameFs fails every rename while fail is set.
type failingRenameFs struct {
	afero.Fs
	fail    atomic.Bool
	renames atomic.Int32
}

func (f *failingRenameFs) Rename(oldname, newname string) error {
	if f.fail.Load() {
		f.renames.Add(1)
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EXDEV}
	}
	return f.Fs.Rename(oldname, newname)
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		title   string
		content string
	}{
		{"simple", "Meeting notes", "Discussed roadmap"},
		{"empty content", "Empty", ""},
		{"unicode", "Grüße aus Köln", "日本語のメモ\nwith newlines\n---\nand a rule"},
		{"reserved characters", `a/b\c:d*e?f"g<h>i|j`, "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := s.Create(ctx, tt.title, tt.content)
			require.NoError(t, err)
			assert.NotEmpty(t, created.FilePath)

			s.ClearCache()
			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.title, got.Title)
			assert.Equal(t, tt.content, got.Content)
			assert.Equal(t, created.Tags, got.Tags)
			assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var verr *memo.ValidationError

	_, err := s.Create(ctx, "", "content")
	assert.ErrorAs(t, err, &verr)

	_, err = s.Create(ctx, strings.Repeat("a", 256), "content")
	assert.ErrorAs(t, err, &verr)

	_, err = s.Create(ctx, "big", strings.Repeat("x", memo.MaxContentLength+1))
	assert.ErrorAs(t, err, &verr)

	_, err = s.Create(ctx, "max", strings.Repeat("x", memo.MaxContentLength))
	assert.NoError(t, err)

	files, err := afero.ReadDir(s.fs, storageDir())
	require.NoError(t, err)
	assert.Len(t, files, 1, "rejected memos leave no files")
}

func TestCreateWithoutStorageRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(testRoot, 0755))

	s, err := New(Config{Root: testRoot, Fs: fsys, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.Create(context.Background(), "title", "content")
	assert.ErrorIs(t, err, ErrNoStorageRoot)
	assert.Equal(t, "no_storage_root", ErrorType(err))
}

func TestFileFormat(t *testing.T) {
	s := newTestStore(t, nil)
	m, err := s.Create(context.Background(), "Format", "line one\nline two")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(storageDir(), "Format.md"), m.FilePath)

	data, err := afero.ReadFile(s.fs, m.FilePath)
	require.NoError(t, err)
	text := string(data)

	require.True(t, strings.HasPrefix(text, "---\n"))
	meta, body, hasBody, ok := splitMetadata(text)
	require.True(t, ok)
	require.True(t, hasBody)
	assert.Equal(t, "line one\nline two", body)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(meta), &fields))
	assert.Equal(t, m.ID.String(), fields["id"])
	assert.Equal(t, "Format", fields["title"])
	assert.Equal(t, body, fields["content"])
	assert.Contains(t, fields, "created_at")
	assert.Contains(t, fields, "updated_at")
	assert.Contains(t, fields, "tags")
	assert.NotContains(t, fields, "file_path")
	assert.NotContains(t, fields, "FilePath")
}

func TestFilenameCollision(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	first, err := s.Create(ctx, "Same", "one")
	require.NoError(t, err)
	second, err := s.Create(ctx, "Same", "two")
	require.NoError(t, err)

	assert.NotEqual(t, first.FilePath, second.FilePath)
	assert.Equal(t, filepath.Join(storageDir(), "Same_"+second.ID.String()+".md"), second.FilePath)

	memos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, memos, 2)
}

func TestDotOnlyTitleUsesID(t *testing.T) {
	s := newTestStore(t, nil)
	m, err := s.Create(context.Background(), "...", "content")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(storageDir(), m.ID.String()+".md"), m.FilePath)
}

func TestAtomicWriteRenameFailure(t *testing.T) {
	fsys := &failingRenameFs{Fs: afero.NewMemMapFs()}
	s := newTestStore(t, fsys)
	ctx := context.Background()

	fsys.fail.Store(true)
	_, err := s.Create(ctx, "Doomed", "content")
	require.Error(t, err)
	assert.Equal(t, int32(3), fsys.renames.Load(), "rename is retried as a transient failure")

	exists, err := afero.Exists(fsys, filepath.Join(storageDir(), "Doomed.md"))
	require.NoError(t, err)
	assert.False(t, exists, "no file at the final path")

	files, err := afero.ReadDir(fsys, storageDir())
	require.NoError(t, err)
	assert.Empty(t, files, "temp file removed")
}

func TestUpdateFailureKeepsOldState(t *testing.T) {
	fsys := &failingRenameFs{Fs: afero.NewMemMapFs()}
	s := newTestStore(t, fsys)
	ctx := context.Background()

	m, err := s.Create(ctx, "Stable", "original")
	require.NoError(t, err)

	fsys.fail.Store(true)
	_, err = s.Update(ctx, m.ID, "changed")
	require.Error(t, err)
	fsys.fail.Store(false)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)

	files, err := afero.ReadDir(fsys, storageDir())
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestUpdateRefreshesCache(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	m, err := s.Create(ctx, "Cached", "old")
	require.NoError(t, err)

	_, err = s.Get(ctx, m.ID)
	require.NoError(t, err)

	updated, err := s.Update(ctx, m.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Content)
	assert.True(t, updated.UpdatedAt.After(m.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(m.CreatedAt))

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)

	data, err := afero.ReadFile(s.fs, m.FilePath)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n---\nnew"))
}

func TestUpdateValidation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	m, err := s.Create(ctx, "Valid", "ok")
	require.NoError(t, err)

	var verr *memo.ValidationError
	_, err = s.Update(ctx, m.ID, strings.Repeat("x", memo.MaxContentLength+1))
	assert.ErrorAs(t, err, &verr)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Content)
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	id := memo.NewID()

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update(ctx, id, "content")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not_found", ErrorType(err))
}

func TestExternalModificationDetected(t *testing.T) {
	s := newTestStore(t, nil)
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
	require.NoError(t, afero.WriteFile(s.fs, m.FilePath, data, 0644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, s.fs.Chtimes(m.FilePath, future, future))

	got, err = s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Content)
}

func TestDeleteObservability(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	keep, err := s.Create(ctx, "Keep", "stays")
	require.NoError(t, err)
	gone, err := s.Create(ctx, "Gone", "goes")
	require.NoError(t, err)

	_, err = s.Get(ctx, gone.ID)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, gone.ID))

	_, err = s.Get(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	memos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, memos, 1)
	assert.Equal(t, keep.ID, memos[0].ID)

	exists, err := afero.Exists(s.fs, gone.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListFallbackParsing(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	dir := storageDir()

	plain := filepath.Join(dir, "My_Plain_Note.md")
	require.NoError(t, afero.WriteFile(s.fs, plain, []byte("just some text"), 0644))

	broken := filepath.Join(dir, "Broken.md")
	require.NoError(t, afero.WriteFile(s.fs, broken, []byte("---\n{ this is not json\n---\nbody"), 0644))

	id := memo.NewID()
	repairable := fmt.Sprintf("---\n{\"id\": %q, \"title\": \"Repaired\", \"content\": \"fixed body\", "+
		"\"created_at\": \"2024-01-01T00:00:00Z\", \"updated_at\": \"2024-01-01T00:00:00Z\", \"tags\": [\"a\"],}\n---\nfixed body", id)
	require.NoError(t, afero.WriteFile(s.fs, filepath.Join(dir, "Repairable.md"), []byte(repairable), 0644))

	require.NoError(t, afero.WriteFile(s.fs, filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	memos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, memos, 3)

	byTitle := make(map[string]*memo.Memo)
	for _, m := range memos {
		byTitle[m.Title] = m
	}

	require.Contains(t, byTitle, "My Plain Note")
	assert.Equal(t, "just some text", byTitle["My Plain Note"].Content)

	require.Contains(t, byTitle, "Broken")
	assert.Equal(t, "---\n{ this is not json\n---\nbody", byTitle["Broken"].Content)

	require.Contains(t, byTitle, "Repaired")
	assert.Equal(t, id, byTitle["Repaired"].ID)
	assert.Equal(t, []string{"a"}, byTitle["Repaired"].Tags)

	// fallback identities are stable and retrievable
	again, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(memos), ids(again))

	got, err := s.Get(ctx, byTitle["My Plain Note"].ID)
	require.NoError(t, err)
	assert.Equal(t, plain, got.FilePath)
}

func ids(memos []*memo.Memo) []memo.ID {
	out := make([]memo.ID, 0, len(memos))
	for _, m := range memos {
		out = append(out, m.ID)
	}
	return out
}

func TestMultipleStorageDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	nested := filepath.Join(testRoot, "project", StorageDirName)
	require.NoError(t, fsys.MkdirAll(nested, 0755))
	s := newTestStore(t, fsys)
	ctx := context.Background()

	dirs, err := s.StorageDirs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{storageDir(), nested}, dirs)

	primary, err := s.PrimaryDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, storageDir(), primary)

	other, err := memo.New("Nested", "from the project dir")
	require.NoError(t, err)
	data, err := encodeMemo(other)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(nested, "Nested.md"), data, 0644))

	created, err := s.Create(ctx, "Top", "top level")
	require.NoError(t, err)
	assert.Equal(t, storageDir(), filepath.Dir(created.FilePath))

	memos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, memos, 2)
	assert.Equal(t, "Top", memos[0].Title)
	assert.Equal(t, "Nested", memos[1].Title)

	got, err := s.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "from the project dir", got.Content)
}

func TestSearch(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Create(ctx, "Rust Programming", "Learning rust language")
	require.NoError(t, err)
	_, err = s.Create(ctx, "Python", "Learning python language")
	require.NoError(t, err)

	tests := []struct {
		query string
		want  []string
	}{
		{"rust AND programming", []string{"Rust Programming"}},
		{"rust OR python", []string{"Rust Programming", "Python"}},
		{"rust*", []string{"Rust Programming"}},
		{"language", []string{"Rust Programming", "Python"}},
		{"haskell", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := s.Search(ctx, tt.query)
			require.NoError(t, err)

			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, r.Memo.Title)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestIndexDirtyTracking(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	assert.True(t, s.IndexDirty())

	_, err := s.Search(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, s.IndexDirty())

	m, err := s.Create(ctx, "Dirty", "content")
	require.NoError(t, err)
	assert.True(t, s.IndexDirty())

	_, err = s.Search(ctx, "dirty")
	require.NoError(t, err)
	assert.False(t, s.IndexDirty())

	_, err = s.Update(ctx, m.ID, "changed")
	require.NoError(t, err)
	assert.True(t, s.IndexDirty())

	_, err = s.Search(ctx, "changed")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, m.ID))
	assert.True(t, s.IndexDirty())
}

func TestGetAllContext(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Create(ctx, "Alpha", "first body")
	require.NoError(t, err)
	_, err = s.Create(ctx, "Beta", "second body")
	require.NoError(t, err)

	out, err := s.GetAllContext(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "\n---\n\n"))
	alpha := strings.Index(out, "# Alpha\n")
	beta := strings.Index(out, "# Beta\n")
	require.GreaterOrEqual(t, alpha, 0)
	require.GreaterOrEqual(t, beta, 0)
	assert.Less(t, alpha, beta, "listing order is preserved")
	assert.Contains(t, out, "first body")
}

func TestWarmAndClearCache(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, fmt.Sprintf("Memo %d", i), "body")
		require.NoError(t, err)
	}
	s.ClearCache()
	assert.Zero(t, s.CacheStats().MemoEntries)

	n, err := s.WarmCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.CacheStats().MemoEntries)
	assert.Equal(t, 3, s.CacheStats().MetadataEntries)
}

func TestConcurrentCreates(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, "Shared title", fmt.Sprintf("body %d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	memos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, memos, 20)
}

func TestFindGitRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/work/repo/.git", 0755))
	require.NoError(t, fsys.MkdirAll("/work/repo/src/pkg", 0755))

	root, err := FindGitRoot(fsys, "/work/repo/src/pkg")
	require.NoError(t, err)
	assert.Equal(t, "/work/repo", root)

	root, err = FindGitRoot(fsys, "/work/repo")
	require.NoError(t, err)
	assert.Equal(t, "/work/repo", root)

	_, err = FindGitRoot(fsys, "/elsewhere")
	assert.ErrorIs(t, err, ErrGitNotFound)
}

func TestResolveRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/work/repo/.git", 0755))
	require.NoError(t, fsys.MkdirAll("/work/repo/docs", 0755))

	root, err := ResolveRoot(fsys, "/explicit", "/work/repo/docs")
	require.NoError(t, err)
	assert.Equal(t, "/explicit", root)

	root, err = ResolveRoot(fsys, "", "/work/repo/docs")
	require.NoError(t, err)
	assert.Equal(t, "/work/repo", root)

	_, err = ResolveRoot(fsys, "", "/tmp/nowhere")
	assert.ErrorIs(t, err, ErrGitNotFound)
}

func TestEnsureStorageDir(t *testing.T) {
	fsys := afero.NewMemMapFs()

	dir, err := EnsureStorageDir(fsys, "/proj")
	require.NoError(t, err)
	assert.Equal(t, "/proj/.memoranda", dir)

	again, err := EnsureStorageDir(fsys, "/proj")
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	require.NoError(t, afero.WriteFile(fsys, "/file/.memoranda", []byte("x"), 0644))
	_, err = EnsureStorageDir(fsys, "/file")
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain title", "Plain title"},
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"tab\there\nnewline", "tab_here_newline"},
		{"..hidden..", "hidden"},
		{"...", ""},
		{"Grüße", "Grüße"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestFilenameStem(t *testing.T) {
	assert.Equal(t, "Plain title", FilenameStem("Plain title"))
	assert.Len(t, FilenameStem(strings.Repeat("a", 255)), MaxStemBytes)

	stem := FilenameStem(strings.Repeat("é", 200))
	assert.LessOrEqual(t, len(stem), MaxStemBytes)
	assert.True(t, utf8.ValidString(stem))
	assert.Equal(t, strings.Repeat("é", MaxStemBytes/2), stem)

	assert.Equal(t, "abc", FilenameStem("abc"+strings.Repeat(".", 300)))
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "My Note", TitleFromFilename("/x/My_Note.md"))
	assert.Equal(t, "Untitled", TitleFromFilename("/x/_.md"))
	assert.Len(t, []rune(TitleFromFilename("/x/"+strings.Repeat("a", 300)+".md")), memo.MaxTitleLength)
}

func TestInvalidContentPattern(t *testing.T) {
	_, err := New(Config{Root: testRoot, Fs: afero.NewMemMapFs(), ContentPatterns: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestCustomContentPatterns(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(storageDir(), 0755))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(storageDir(), "a.md"), []byte("md"), 0644))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(storageDir(), "b.markdown"), []byte("markdown"), 0644))

	s, err := New(Config{
		Root:            testRoot,
		Fs:              fsys,
		Logger:          zerolog.Nop(),
		ContentPatterns: []string{"*.{md,markdown}"},
	})
	require.NoError(t, err)

	memos, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, memos, 2)
}
