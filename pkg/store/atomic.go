package store

import (
	"context"
	"fmt"
	"path/filepath"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/afero"

	"github.com/harun/memoranda/pkg/retry"
)

const (
	tempSuffix = ".tmp"
	filePerm   = 0644
	dirPerm    = 0755
)

// writeFileAtomic publishes data at path by writing a sibling temporary file
// and renaming it into place. Readers see either the old file or the new one.
// The temporary file is removed when the rename fails.
func writeFileAtomic(ctx context.Context, fsys afero.Fs, policy retry.Policy, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := retry.Do(ctx, policy, "create_dir", func() error {
		return fsys.MkdirAll(dir, dirPerm)
	}); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	suffix, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate temp file name: %w", err)
	}
	tmp := path + "." + suffix + tempSuffix

	if err := retry.Do(ctx, policy, "write_temp_file", func() error {
		return afero.WriteFile(fsys, tmp, data, filePerm)
	}); err != nil {
		removeTemp(ctx, fsys, policy, tmp)
		return fmt.Errorf("failed to write temp file %s: %w", tmp, err)
	}

	if err := retry.Do(ctx, policy, "rename_file", func() error {
		return fsys.Rename(tmp, path)
	}); err != nil {
		removeTemp(ctx, fsys, policy, tmp)
		return fmt.Errorf("failed to rename %s to %s: %w", tmp, path, err)
	}

	return nil
}

func removeTemp(ctx context.Context, fsys afero.Fs, policy retry.Policy, tmp string) {
	// cleanup must run even if the caller's context is already done
	_ = retry.Do(context.WithoutCancel(ctx), policy, "remove_temp_file", func() error {
		return fsys.Remove(tmp)
	})
}
