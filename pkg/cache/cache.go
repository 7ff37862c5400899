// Package cache keeps recently used memos and their file metadata in memory.
//
// Two expirable LRU caches are kept: memos by identity and file metadata by
// path. Callers always receive copies, never the cached values themselves.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spf13/afero"

	"github.com/harun/memoranda/internal/metrics"
	"github.com/harun/memoranda/pkg/memo"
)

const (
	defaultMaxMemos           = 1000
	defaultTTL                = time.Hour
	defaultMetadataMultiplier = 2
	defaultMetadataCapacity   = 5000
)

// Config configures cache sizes and lifetimes.
type Config struct {
	// MaxMemos is the memo cache capacity.
	MaxMemos int `json:"max_memos" mapstructure:"max_memos"`
	// TTL is how long a cached memo stays valid.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
	// MetadataTTLMultiplier scales TTL for the metadata cache.
	MetadataTTLMultiplier int `json:"metadata_ttl_multiplier" mapstructure:"metadata_ttl_multiplier"`
	// MaxMetadata is the metadata cache capacity.
	MaxMetadata int `json:"max_metadata" mapstructure:"max_metadata"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxMemos:              defaultMaxMemos,
		TTL:                   defaultTTL,
		MetadataTTLMultiplier: defaultMetadataMultiplier,
		MaxMetadata:           defaultMetadataCapacity,
	}
}

// MetadataTTL returns the lifetime of metadata entries.
func (c Config) MetadataTTL() time.Duration {
	return c.TTL * time.Duration(c.MetadataTTLMultiplier)
}

// FileMetadata records the state of a memo file when it was cached.
type FileMetadata struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Stats is a snapshot of cache counters.
type Stats struct {
	MemoEntries     int     `json:"memo_entries"`
	MetadataEntries int     `json:"metadata_entries"`
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	HitRatio        float64 `json:"hit_ratio"`
}

// Cache is safe for concurrent use.
type Cache struct {
	memos    *expirable.LRU[memo.ID, *memo.Memo]
	metadata *expirable.LRU[string, FileMetadata]
	fsys     afero.Fs
	metrics  *metrics.Metrics
	config   Config

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithFs sets the filesystem used to stat memo files.
func WithFs(fsys afero.Fs) Option {
	return func(c *Cache) { c.fsys = fsys }
}

// WithMetrics exports hit and miss counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache. Zero config fields fall back to defaults.
func New(cfg Config, opts ...Option) *Cache {
	def := DefaultConfig()
	if cfg.MaxMemos <= 0 {
		cfg.MaxMemos = def.MaxMemos
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MetadataTTLMultiplier <= 0 {
		cfg.MetadataTTLMultiplier = def.MetadataTTLMultiplier
	}
	if cfg.MaxMetadata <= 0 {
		cfg.MaxMetadata = def.MaxMetadata
	}

	c := &Cache{
		memos:    expirable.NewLRU[memo.ID, *memo.Memo](cfg.MaxMemos, nil, cfg.TTL),
		metadata: expirable.NewLRU[string, FileMetadata](cfg.MaxMetadata, nil, cfg.MetadataTTL()),
		fsys:     afero.NewOsFs(),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config { return c.config }

// Get returns a copy of the cached memo.
func (c *Cache) Get(id memo.ID) (*memo.Memo, bool) {
	m, ok := c.memos.Get(id)
	c.record("memo", ok)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Put caches a copy of m.
func (c *Cache) Put(m *memo.Memo) {
	if m == nil {
		return
	}
	c.memos.Add(m.ID, m.Clone())
}

// Remove drops a memo entry.
func (c *Cache) Remove(id memo.ID) {
	c.memos.Remove(id)
}

// Invalidate drops a memo entry and the metadata of its file.
func (c *Cache) Invalidate(id memo.ID) {
	if m, ok := c.memos.Peek(id); ok && m.FilePath != "" {
		c.metadata.Remove(m.FilePath)
	}
	c.memos.Remove(id)
}

// InvalidateAll empties both caches and resets the counters.
func (c *Cache) InvalidateAll() {
	c.memos.Purge()
	c.metadata.Purge()

	c.mu.Lock()
	c.hits = 0
	c.misses = 0
	c.mu.Unlock()
}

// InvalidatePath drops the metadata of path and every memo stored there.
func (c *Cache) InvalidatePath(path string) {
	c.metadata.Remove(path)
	for _, id := range c.memos.Keys() {
		if m, ok := c.memos.Peek(id); ok && m.FilePath == path {
			c.memos.Remove(id)
		}
	}
}

// GetMetadata returns the cached metadata of path.
func (c *Cache) GetMetadata(path string) (FileMetadata, bool) {
	meta, ok := c.metadata.Get(path)
	c.record("metadata", ok)
	return meta, ok
}

// PutMetadata caches file metadata.
func (c *Cache) PutMetadata(meta FileMetadata) {
	c.metadata.Add(meta.Path, meta)
}

// RemoveMetadata drops the metadata of path.
func (c *Cache) RemoveMetadata(path string) {
	c.metadata.Remove(path)
}

// StatMetadata reads the live metadata of path.
func (c *Cache) StatMetadata(path string) (FileMetadata, error) {
	info, err := c.fsys.Stat(path)
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{Path: path, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// IsValid reports whether the cached memo id may still be served.
//
// Without cached metadata for path the entry is treated as stale. When the
// file was modified after it was cached, both entries are evicted.
func (c *Cache) IsValid(id memo.ID, path string) (bool, error) {
	cached, ok := c.metadata.Get(path)
	if !ok {
		return false, nil
	}

	info, err := c.fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.memos.Remove(id)
		c.metadata.Remove(path)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.ModTime().After(cached.ModTime) {
		c.memos.Remove(id)
		c.metadata.Remove(path)
		return false, nil
	}
	return true, nil
}

// Stats returns a snapshot of entry counts and hit ratio.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	hits, misses := c.hits, c.misses
	c.mu.Unlock()

	return Stats{
		MemoEntries:     c.memos.Len(),
		MetadataEntries: c.metadata.Len(),
		Hits:            hits,
		Misses:          misses,
		HitRatio:        ratio(hits, misses),
	}
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ratio(c.hits, c.misses)
}

func (c *Cache) record(name string, hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if hit {
		c.metrics.RecordCacheHit(name)
	} else {
		c.metrics.RecordCacheMiss(name)
	}
}

func ratio(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
