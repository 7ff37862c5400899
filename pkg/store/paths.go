package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/harun/memoranda/pkg/memo"
)

const (
	// StorageDirName is the name of every memo storage directory.
	StorageDirName = ".memoranda"
	// FileExtension is appended to memo filenames.
	FileExtension = ".md"
	untitled      = "Untitled"

	// MaxStemBytes bounds the title-derived part of a file name. The rest of
	// NAME_MAX (255 bytes) is left for "_<ID>.md" and the temp file suffix.
	MaxStemBytes = 192
)

// FindGitRoot walks upward from start until a directory containing .git
// is found.
func FindGitRoot(fsys afero.Fs, start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for {
		if _, err := fsys.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrGitNotFound
		}
		dir = parent
	}
}

// ResolveRoot returns configured when it is set. Otherwise the git
// repository enclosing cwd is the root, and ErrGitNotFound is fatal.
func ResolveRoot(fsys afero.Fs, configured, cwd string) (string, error) {
	if configured != "" {
		return filepath.Abs(configured)
	}
	root, err := FindGitRoot(fsys, cwd)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage root from %s: %w", cwd, err)
	}
	return root, nil
}

// EnsureStorageDir creates root/.memoranda if it doesn't exist
func EnsureStorageDir(fsys afero.Fs, root string) (string, error) {
	dir := filepath.Join(root, StorageDirName)

	info, err := fsys.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("storage path exists but is not a directory: %s", dir)
		}
		return dir, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat storage directory: %w", err)
	}

	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	return dir, nil
}

// SanitizeFilename makes a title safe to use as a file name. Path
// separators, reserved characters and control characters become '_' and
// leading or trailing dots are trimmed.
func SanitizeFilename(title string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		case r < 0x20 || r == 0x7f:
			return '_'
		default:
			return r
		}
	}, title)
	return strings.Trim(mapped, ".")
}

// FilenameStem is the sanitized title cut to MaxStemBytes without
// splitting a rune.
func FilenameStem(title string) string {
	stem := truncateBytes(SanitizeFilename(title), MaxStemBytes)
	return strings.TrimRight(stem, ". ")
}

// TitleFromFilename derives a title from a file's stem, with underscores
// read as spaces.
func TitleFromFilename(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	title := strings.ReplaceAll(stem, "_", " ")
	if strings.TrimSpace(title) == "" {
		return untitled
	}
	return truncateRunes(title, memo.MaxTitleLength)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
