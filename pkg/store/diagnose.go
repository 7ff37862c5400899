package store

import (
	"context"
	"fmt"
)

// FileStatus classifies how a memo file parsed.
type FileStatus string

const (
	FileOK         FileStatus = "ok"
	FileRepaired   FileStatus = "repaired"   // metadata needed JSON repair
	FilePlain      FileStatus = "plain"      // no metadata block
	FileMalformed  FileStatus = "malformed"  // metadata block unusable
	FileUnreadable FileStatus = "unreadable" // read failed
)

// FileReport describes one content file found in a storage directory.
type FileReport struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
	Err    error      `json:"-"`
}

// Diagnose reads every content file without touching the cache and reports
// how each one parses.
func (s *Store) Diagnose(ctx context.Context) (reports []FileReport, err error) {
	ctx, done := s.observe(ctx, "diagnose")
	defer func() { done(err) }()

	dirs, err := s.StorageDirs(ctx)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, ErrNoStorageRoot
	}

	for _, dir := range dirs {
		files, err := s.contentFiles(ctx, s.policy, dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			reports = append(reports, s.diagnoseFile(ctx, f))
		}
	}
	return reports, nil
}

func (s *Store) diagnoseFile(ctx context.Context, f contentFile) FileReport {
	text, err := s.readFile(ctx, s.policy, f.path)
	if err != nil {
		return FileReport{Path: f.path, Status: FileUnreadable, Err: fmt.Errorf("failed to read %s: %w", f.path, err)}
	}

	_, repaired, err := decodeMemo(text)
	switch {
	case err == nil && repaired:
		return FileReport{Path: f.path, Status: FileRepaired}
	case err == nil:
		return FileReport{Path: f.path, Status: FileOK}
	}

	if _, _, _, hasBlock := splitMetadata(text); hasBlock {
		return FileReport{Path: f.path, Status: FileMalformed, Err: err}
	}
	return FileReport{Path: f.path, Status: FilePlain, Err: err}
}
