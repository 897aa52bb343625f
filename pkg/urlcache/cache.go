// Package urlcache is a persistent TTL cache of fetched-URL summaries keyed
// by canonicalized URL.
package urlcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultTTL     = 24 * time.Hour
	defaultRawCap  = 64 * 1024
	persistEveryN  = 16
	currentVersion = 1
)

// Entry is one cached URL with its summary and truncated raw text.
type Entry struct {
	URL       string    `json:"url"`
	Summary   string    `json:"summary"`
	RawText   string    `json:"raw_text_truncated"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SummaryBytes returns the stored summary size.
func (e *Entry) SummaryBytes() int { return len(e.Summary) }

// RawBytes returns the stored raw-text size.
func (e *Entry) RawBytes() int { return len(e.RawText) }

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries     int       `json:"entries"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Expired     int64     `json:"expired"`
	LastPersist time.Time `json:"last_persist,omitempty"`
}

type diskFormat struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Cache is a single-writer, multi-reader URL cache with periodic single-file
// persistence. Expired entries are invisible to Get and reaped lazily.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	path    string
	rawCap  int

	putsSincePersist int
	lastPersist      time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
}

// Options configure a Cache.
type Options struct {
	TTL    time.Duration
	RawCap int
}

// Open loads the cache from path, or starts empty. A corrupt or
// version-mismatched file is renamed aside with a warning; the cache never
// fails to open because of bad persisted state. An empty path disables
// persistence.
func Open(path string, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.RawCap <= 0 {
		opts.RawCap = defaultRawCap
	}
	c := &Cache{
		entries: make(map[string]*Entry),
		ttl:     opts.TTL,
		path:    path,
		rawCap:  opts.RawCap,
	}
	if path == "" {
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("URL cache file unreadable, starting empty", "path", path, "error", err)
		}
		return c
	}

	var doc diskFormat
	if err := json.Unmarshal(data, &doc); err != nil || doc.Version != currentVersion {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, aside); renameErr != nil {
			slog.Warn("Could not move corrupt cache file aside", "path", path, "error", renameErr)
		} else {
			slog.Warn("Corrupt URL cache file moved aside", "path", path, "moved_to", aside)
		}
		return c
	}

	if doc.Entries != nil {
		c.entries = doc.Entries
	}
	slog.Info("URL cache loaded", "path", path, "entries", len(c.entries))
	return c
}

// Get returns the entry for url if present and unexpired at now. The url may
// be raw; it is canonicalized before lookup.
func (c *Cache) Get(rawURL string, now time.Time) *Entry {
	key, err := Canonicalize(rawURL)
	if err != nil {
		c.misses.Add(1)
		return nil
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil
	}
	if !now.Before(entry.ExpiresAt) {
		c.expired.Add(1)
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return entry
}

// Put stores a fetched URL's summary and raw text. Raw text is truncated to
// the configured cap. Every Nth put persists to disk.
func (c *Cache) Put(rawURL, summary, raw string, now time.Time) error {
	key, err := Canonicalize(rawURL)
	if err != nil {
		return err
	}
	if len(raw) > c.rawCap {
		raw = raw[:c.rawCap]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &Entry{
		URL:       key,
		Summary:   summary,
		RawText:   raw,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.reapLocked(now)

	c.putsSincePersist++
	if c.putsSincePersist >= persistEveryN {
		c.persistLocked()
	}
	return nil
}

// Invalidate removes the entry for url, if any.
func (c *Cache) Invalidate(rawURL string) {
	key, err := Canonicalize(rawURL)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep deletes all entries expired at now and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.entries)
	c.reapLocked(now)
	return before - len(c.entries)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	last := c.lastPersist
	c.mu.RUnlock()
	return Stats{
		Entries:     n,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Expired:     c.expired.Load(),
		LastPersist: last,
	}
}

// Close persists the cache to disk.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked()
}

// reapLocked drops expired entries. Caller holds the write lock.
func (c *Cache) reapLocked(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// persistLocked writes the whole cache atomically (temp file + rename).
// Caller holds the write lock.
func (c *Cache) persistLocked() error {
	c.putsSincePersist = 0
	if c.path == "" {
		return nil
	}

	doc := diskFormat{Version: currentVersion, Entries: c.entries}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal url cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write url cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace url cache: %w", err)
	}
	c.lastPersist = time.Now()
	return nil
}
