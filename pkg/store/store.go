// Package store persists memos as markdown files with an embedded JSON
// metadata block and serves them through a cache and a search engine.
//
// All writes are atomic (temp file plus rename) and every filesystem call
// goes through a retry policy. The filesystem is the source of truth: every
// directory named .memoranda under the root holds memos, and the first one
// found receives new memos.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/harun/memoranda/internal/metrics"
	"github.com/harun/memoranda/internal/observability"
	"github.com/harun/memoranda/internal/tracing"
	"github.com/harun/memoranda/pkg/cache"
	"github.com/harun/memoranda/pkg/memo"
	"github.com/harun/memoranda/pkg/retry"
	"github.com/harun/memoranda/pkg/search"
)

// DefaultContentPatterns match the files treated as memos.
var DefaultContentPatterns = []string{"*.md"}

const listConcurrency = 8

// Config configures a Store.
type Config struct {
	// Root is the directory searched for .memoranda directories.
	Root string
	// Fs defaults to the OS filesystem.
	Fs     afero.Fs
	Logger zerolog.Logger

	Cache  cache.Config
	Search search.Config
	// Retry defaults to retry.ForFileIO when MaxAttempts is zero.
	Retry retry.Policy

	// ContentPatterns are glob patterns matched against file names.
	ContentPatterns []string
	// Watch enables fsnotify-based detection of external changes.
	Watch bool

	Metrics *metrics.Metrics
	Audit   *observability.AuditLogger
}

// Store mediates all access to memos. It is safe for concurrent use
// within one process.
type Store struct {
	root     string
	fs       afero.Fs
	logger   zerolog.Logger
	cache    *cache.Cache
	engine   *search.Engine
	policy   retry.Policy
	patterns []glob.Glob
	metrics  *metrics.Metrics
	audit    *observability.AuditLogger

	// mu guards index and dirty
	mu    sync.RWMutex
	index *search.Index
	dirty bool

	// createMu serializes filename allocation
	createMu sync.Mutex

	watcher *FileWatcher
}

// New creates a store rooted at cfg.Root.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", cfg.Root, err)
	}

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.ForFileIO()
	}
	policy.Logger = cfg.Logger
	if policy.OnRetry == nil && cfg.Metrics != nil {
		m := cfg.Metrics
		policy.OnRetry = func(operation string, _ int, _ error, _ time.Duration) {
			m.RecordRetry(operation)
		}
	}

	patterns := cfg.ContentPatterns
	if len(patterns) == 0 {
		patterns = DefaultContentPatterns
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid content pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}

	s := &Store{
		root:     root,
		fs:       fsys,
		logger:   cfg.Logger,
		cache:    cache.New(cfg.Cache, cache.WithFs(fsys), cache.WithMetrics(cfg.Metrics)),
		engine:   search.NewEngine(cfg.Search, cfg.Logger),
		policy:   policy,
		patterns: globs,
		metrics:  cfg.Metrics,
		audit:    cfg.Audit,
		index:    search.NewIndex(),
		dirty:    true,
	}

	if cfg.Watch {
		if err := s.startWatcher(); err != nil {
			s.logger.Warn().Err(err).Msg("File watcher unavailable, external changes detected by mtime only")
		}
	}

	s.logger.Info().
		Str("root", root).
		Int("cache_size", s.cache.Config().MaxMemos).
		Dur("cache_ttl", s.cache.Config().TTL).
		Msg("Memo store initialized")

	return s, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// Close stops the file watcher, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

func (s *Store) startWatcher() error {
	dirs, err := s.StorageDirs(context.Background())
	if err != nil {
		return err
	}

	fw, err := NewFileWatcher(s.logger, s.isContentFile, s.cache.InvalidatePath, s.markDirty)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fw.Watch(dir); err != nil {
			_ = fw.Stop()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	s.watcher = fw
	return nil
}

// StorageDirs returns every directory named .memoranda under the root, in
// walk order.
func (s *Store) StorageDirs(ctx context.Context) ([]string, error) {
	var dirs []string
	err := afero.Walk(s.fs, s.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			s.logger.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !info.IsDir() {
			return nil
		}
		switch info.Name() {
		case StorageDirName:
			dirs = append(dirs, path)
		case ".git":
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.root, err)
	}
	return dirs, nil
}

// PrimaryDir returns the directory new memos are written to.
func (s *Store) PrimaryDir(ctx context.Context) (string, error) {
	dirs, err := s.StorageDirs(ctx)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", ErrNoStorageRoot
	}
	return dirs[0], nil
}

func (s *Store) isContentFile(name string) bool {
	for _, g := range s.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// contentFile is a memo file found in a storage directory.
type contentFile struct {
	path    string
	modTime time.Time
}

func (s *Store) contentFiles(ctx context.Context, policy retry.Policy, dir string) ([]contentFile, error) {
	infos, err := retry.DoValue(ctx, policy, "read_dir", func() ([]os.FileInfo, error) {
		return afero.ReadDir(s.fs, dir)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	files := make([]contentFile, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !s.isContentFile(info.Name()) {
			continue
		}
		files = append(files, contentFile{path: filepath.Join(dir, info.Name()), modTime: info.ModTime()})
	}
	return files, nil
}

func (s *Store) readFile(ctx context.Context, policy retry.Policy, path string) (string, error) {
	data, err := retry.DoValue(ctx, policy, "read_file", func() ([]byte, error) {
		return afero.ReadFile(s.fs, path)
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseFile turns file text into a memo, falling back to a filename-derived
// memo when the metadata block is missing or unusable.
func (s *Store) parseFile(ctx context.Context, f contentFile, text string) *memo.Memo {
	m, repaired, err := decodeMemo(text)
	if err == nil {
		m.FilePath = f.path
		if repaired {
			logger := tracing.LoggerFromContext(ctx, s.logger)
			logger.Warn().
				Str("file", f.path).
				Msg("Recovered memo metadata with JSON repair")
		}
		return m
	}

	if _, _, _, hasBlock := splitMetadata(text); hasBlock {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().
			Err(err).
			Str("file", f.path).
			Msg("Failed to parse memo metadata, using filename fallback")
	}
	return fallbackMemo(f.path, text, f.modTime)
}

// observe starts a span for a store operation and returns a function that
// records its outcome.
func (s *Store) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithOperation(ctx, op)
	ctx, span := tracing.StartSpan(ctx, tracing.StoreTracer, "store."+op, attrs...)
	start := time.Now()

	return ctx, func(err error) {
		s.metrics.RecordStoreOperation(op, time.Since(start), err, ErrorType(err))
		tracing.EndSpan(span, err)
	}
}

func (s *Store) markDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// ensureIndex rebuilds the index from memos when it is dirty.
func (s *Store) ensureIndex(memos []*memo.Memo) {
	s.mu.RLock()
	dirty := s.dirty
	s.mu.RUnlock()
	if !dirty {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return
	}

	start := time.Now()
	s.index.Rebuild(memos)
	s.dirty = false
	s.metrics.RecordIndexRebuild(time.Since(start))

	s.logger.Debug().
		Int("memos", s.index.Memos()).
		Int("tokens", s.index.Size()).
		Msg("Search index rebuilt")
}

// IndexDirty reports whether the next search will rebuild the index.
func (s *Store) IndexDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) cacheFile(m *memo.Memo) {
	s.cache.Put(m)
	meta, err := s.cache.StatMetadata(m.FilePath)
	if err != nil {
		s.logger.Debug().Err(err).Str("file", m.FilePath).Msg("Failed to stat memo file for cache")
		return
	}
	s.cache.PutMetadata(meta)
}

// Create validates and persists a new memo in the primary storage directory.
func (s *Store) Create(ctx context.Context, title, content string) (*memo.Memo, error) {
	return s.create(ctx, s.policy, title, content)
}

func (s *Store) create(ctx context.Context, policy retry.Policy, title, content string) (m *memo.Memo, err error) {
	ctx, done := s.observe(ctx, "create", attribute.Int("content_bytes", len(content)))
	defer func() {
		done(err)
		var id string
		if m != nil {
			id = m.ID.String()
		}
		s.audit.RecordMutation(ctx, "create", id, err, map[string]interface{}{"title": title})
	}()

	m, err = memo.New(title, content)
	if err != nil {
		return nil, err
	}

	dir, err := s.PrimaryDir(ctx)
	if err != nil {
		return nil, err
	}

	data, err := encodeMemo(m)
	if err != nil {
		return nil, err
	}

	s.createMu.Lock()
	path, err := s.allocatePath(dir, m)
	if err == nil {
		err = writeFileAtomic(ctx, s.fs, policy, path, data)
	}
	s.createMu.Unlock()
	if err != nil {
		return nil, err
	}

	m.FilePath = path
	s.cacheFile(m)
	s.markDirty()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("id", m.ID.String()).
		Str("file", filepath.Base(path)).
		Msg("Memo created")

	return m.Clone(), nil
}

// allocatePath picks a file name for a new memo. A title that sanitizes to
// nothing uses the ID; a name already taken gets the ID appended.
func (s *Store) allocatePath(dir string, m *memo.Memo) (string, error) {
	name := FilenameStem(m.Title)
	if name == "" {
		return filepath.Join(dir, m.ID.String()+FileExtension), nil
	}

	path := filepath.Join(dir, name+FileExtension)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to check %s: %w", path, err)
	}
	if exists {
		path = filepath.Join(dir, name+"_"+m.ID.String()+FileExtension)
	}
	return path, nil
}

// Get returns the memo with the given identity, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id memo.ID) (*memo.Memo, error) {
	return s.get(ctx, s.policy, id)
}

func (s *Store) get(ctx context.Context, policy retry.Policy, id memo.ID) (m *memo.Memo, err error) {
	ctx, done := s.observe(ctx, "get", attribute.String("memo.id", id.String()))
	defer func() { done(err) }()

	if cached, ok := s.cache.Get(id); ok && cached.FilePath != "" {
		valid, verr := s.cache.IsValid(id, cached.FilePath)
		if verr != nil {
			s.logger.Debug().Err(verr).Str("id", id.String()).Msg("Cache validation failed, reloading")
		}
		if valid {
			return cached, nil
		}
	}

	m, err = s.scan(ctx, policy, id)
	if err != nil {
		return nil, err
	}
	s.cacheFile(m)
	return m.Clone(), nil
}

// scan looks through every storage directory for id, reading only the
// metadata id of each file before fully parsing a match.
func (s *Store) scan(ctx context.Context, policy retry.Policy, id memo.ID) (*memo.Memo, error) {
	dirs, err := s.StorageDirs(ctx)
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		files, err := s.contentFiles(ctx, policy, dir)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			text, err := s.readFile(ctx, policy, f.path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
			}

			peeked, ok := peekID(text)
			if ok && peeked != id {
				continue
			}
			if !ok && memo.DeriveID(f.modTime.UTC(), []byte(f.path)) != id {
				continue
			}

			m := s.parseFile(ctx, f, text)
			if m.ID == id {
				return m, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Update replaces the content of an existing memo.
func (s *Store) Update(ctx context.Context, id memo.ID, content string) (*memo.Memo, error) {
	return s.update(ctx, s.policy, id, content)
}

func (s *Store) update(ctx context.Context, policy retry.Policy, id memo.ID, content string) (m *memo.Memo, err error) {
	ctx, done := s.observe(ctx, "update",
		attribute.String("memo.id", id.String()),
		attribute.Int("content_bytes", len(content)),
	)
	defer func() {
		done(err)
		s.audit.RecordMutation(ctx, "update", id.String(), err, nil)
	}()

	if err := memo.ValidateContent(content); err != nil {
		return nil, err
	}

	m, err = s.get(ctx, policy, id)
	if err != nil {
		return nil, err
	}

	if err := m.UpdateContent(content); err != nil {
		return nil, err
	}

	data, err := encodeMemo(m)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(ctx, s.fs, policy, m.FilePath, data); err != nil {
		return nil, err
	}

	s.cacheFile(m)
	s.markDirty()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("id", id.String()).
		Msg("Memo updated")

	return m.Clone(), nil
}

// Delete removes a memo's file and evicts it from the cache.
func (s *Store) Delete(ctx context.Context, id memo.ID) error {
	return s.delete(ctx, s.policy, id)
}

func (s *Store) delete(ctx context.Context, policy retry.Policy, id memo.ID) (err error) {
	ctx, done := s.observe(ctx, "delete", attribute.String("memo.id", id.String()))
	defer func() {
		done(err)
		s.audit.RecordMutation(ctx, "delete", id.String(), err, nil)
	}()

	m, err := s.get(ctx, policy, id)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, policy, "remove_file", func() error {
		return s.fs.Remove(m.FilePath)
	})
	if errors.Is(err, fs.ErrNotExist) {
		s.cache.Invalidate(id)
		s.cache.RemoveMetadata(m.FilePath)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", m.FilePath, err)
	}

	s.cache.Invalidate(id)
	s.cache.RemoveMetadata(m.FilePath)
	s.markDirty()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("id", id.String()).
		Msg("Memo deleted")

	return nil
}

// List returns every memo in every storage directory, in directory then
// file name order.
func (s *Store) List(ctx context.Context) ([]*memo.Memo, error) {
	return s.list(ctx, s.policy)
}

func (s *Store) list(ctx context.Context, policy retry.Policy) (memos []*memo.Memo, err error) {
	ctx, done := s.observe(ctx, "list")
	defer func() { done(err) }()

	dirs, err := s.StorageDirs(ctx)
	if err != nil {
		return nil, err
	}

	var files []contentFile
	for _, dir := range dirs {
		found, err := s.contentFiles(ctx, policy, dir)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	parsed := make([]*memo.Memo, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, f := range files {
		g.Go(func() error {
			text, err := s.readFile(gctx, policy, f.path)
			if errors.Is(err, fs.ErrNotExist) {
				// removed since the directory was read
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.path, err)
			}
			parsed[i] = s.parseFile(gctx, f, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	memos = make([]*memo.Memo, 0, len(parsed))
	for _, m := range parsed {
		if m != nil {
			memos = append(memos, m)
		}
	}
	s.metrics.SetMemos(len(memos))
	return memos, nil
}

// Search parses text as a query and ranks all memos against it.
func (s *Store) Search(ctx context.Context, text string) ([]search.Result, error) {
	return s.searchQuery(ctx, s.policy, search.Parse(text), text)
}

// SearchQuery ranks all memos against a structured query.
func (s *Store) SearchQuery(ctx context.Context, q search.Query) ([]search.Result, error) {
	return s.searchQuery(ctx, s.policy, q, "")
}

func (s *Store) searchQuery(ctx context.Context, policy retry.Policy, q search.Query, text string) (results []search.Result, err error) {
	ctx, done := s.observe(ctx, "search", attribute.String("query", text))
	defer func() { done(err) }()

	memos, err := s.list(ctx, policy)
	if err != nil {
		return nil, err
	}
	s.ensureIndex(memos)

	s.mu.RLock()
	mayMatch := s.index.MayMatch(q)
	s.mu.RUnlock()
	if !mayMatch {
		return []search.Result{}, nil
	}

	results = s.engine.Search(q, memos)
	s.metrics.RecordSearchResults(len(results))

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("query", text).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

// GetAllContext renders every memo, in listing order, as one document.
func (s *Store) GetAllContext(ctx context.Context) (string, error) {
	return s.getAllContext(ctx, s.policy)
}

func (s *Store) getAllContext(ctx context.Context, policy retry.Policy) (out string, err error) {
	ctx, done := s.observe(ctx, "get_all_context")
	defer func() { done(err) }()

	memos, err := s.list(ctx, policy)
	if err != nil {
		return "", err
	}
	return search.Context(memos), nil
}

// WarmCache loads every memo into the cache and returns how many were loaded.
func (s *Store) WarmCache(ctx context.Context) (int, error) {
	memos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range memos {
		s.cacheFile(m)
	}

	s.logger.Info().Int("memos", len(memos)).Msg("Warmed cache")
	return len(memos), nil
}

// ClearCache drops every cached entry.
func (s *Store) ClearCache() {
	s.cache.InvalidateAll()
	s.logger.Debug().Msg("Cache cleared")
}

// CacheStats returns cache counters.
func (s *Store) CacheStats() cache.Stats {
	return s.cache.Stats()
}
