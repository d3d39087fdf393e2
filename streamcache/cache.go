// Package streamcache is a disk cache of streamed audio byte ranges keyed
// by track identity. Entries are only ever appended or evicted, never
// edited; duplicate writes of the same bytes are idempotent.
package streamcache

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tunetube/logger"
)

// Cache stores byte ranges of resolved streams under a single bounded
// directory. Safe for concurrent readers and writers.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64 // 0 means unlimited
	tracks   map[string]*trackEntry
	total    int64
}

type trackEntry struct {
	spans    []span // sorted by start
	size     int64
	lastUsed time.Time
}

type span struct {
	start  int64
	length int64
	file   string
}

// Open scans dir (creating it if needed) and rebuilds the span index.
func Open(dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		tracks:   make(map[string]*trackEntry),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := decodeKey(e.Name())
		if err != nil {
			continue // foreign file, leave it alone
		}
		track := &trackEntry{lastUsed: time.Now()}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			start, ok := parseSpanName(f.Name())
			if !ok {
				continue
			}
			info, err := f.Info()
			if err != nil || info.Size() == 0 {
				continue
			}
			track.spans = append(track.spans, span{
				start:  start,
				length: info.Size(),
				file:   filepath.Join(dir, e.Name(), f.Name()),
			})
			track.size += info.Size()
		}
		if len(track.spans) > 0 {
			sortSpans(track.spans)
			c.tracks[id] = track
			c.total += track.size
		}
	}

	return c, nil
}

func encodeKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func decodeKey(name string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(name)
	return string(raw), err
}

func parseSpanName(name string) (int64, bool) {
	if !strings.HasSuffix(name, ".bin") {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSuffix(name, ".bin"), 10, 64)
	return start, err == nil
}

func sortSpans(spans []span) {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
}

// IsCached reports whether [pos, pos+length) is fully present for the track.
func (c *Cache) IsCached(id string, pos, length int64) bool {
	if length <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	track, ok := c.tracks[id]
	if !ok {
		return false
	}
	need := pos
	end := pos + length
	for _, s := range track.spans {
		if s.start > need {
			return false
		}
		if s.start+s.length > need {
			need = s.start + s.length
			if need >= end {
				return true
			}
		}
	}
	return false
}

// CachedBytes returns the number of bytes stored for the track.
func (c *Cache) CachedBytes(id string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if track, ok := c.tracks[id]; ok {
		return track.size
	}
	return 0
}

// ReadRange serves [pos, pos+length) from disk. The range must be fully
// cached (check IsCached first); reading marks the track as recently used.
func (c *Cache) ReadRange(id string, pos, length int64) (io.ReadCloser, error) {
	c.mu.Lock()
	track, ok := c.tracks[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("track %s not cached", id)
	}
	track.lastUsed = time.Now()
	spans := make([]span, len(track.spans))
	copy(spans, track.spans)
	c.mu.Unlock()

	return newSpanReader(spans, pos, length)
}

// Writer returns a writer for bytes beginning at start. Data becomes
// visible to readers on Close; a failed or empty write leaves no entry.
func (c *Cache) Writer(id string, start int64) (io.WriteCloser, error) {
	trackDir := filepath.Join(c.dir, encodeKey(id))
	if err := os.MkdirAll(trackDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create track cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(trackDir, ".pending-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create cache temp file: %w", err)
	}
	return &spanWriter{cache: c, id: id, start: start, tmp: tmp}, nil
}

type spanWriter struct {
	cache   *Cache
	id      string
	start   int64
	tmp     *os.File
	written int64
}

func (w *spanWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *spanWriter) Close() error {
	name := w.tmp.Name()
	if err := w.tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if w.written == 0 {
		return os.Remove(name)
	}
	return w.cache.commit(w.id, w.start, w.written, name)
}

func (c *Cache) commit(id string, start, length int64, tmpPath string) error {
	c.mu.Lock()

	// Duplicate write of an already covered range: idempotent, discard.
	if c.coveredLocked(id, start, length) {
		c.mu.Unlock()
		return os.Remove(tmpPath)
	}

	final := filepath.Join(c.dir, encodeKey(id), fmt.Sprintf("%d.bin", start))
	if err := os.Rename(tmpPath, final); err != nil {
		c.mu.Unlock()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit cache span: %w", err)
	}

	track, ok := c.tracks[id]
	if !ok {
		track = &trackEntry{}
		c.tracks[id] = track
	}
	// A re-written span at the same start replaces the old bookkeeping.
	for i, s := range track.spans {
		if s.start == start {
			track.size -= s.length
			c.total -= s.length
			track.spans = append(track.spans[:i], track.spans[i+1:]...)
			break
		}
	}
	track.spans = append(track.spans, span{start: start, length: length, file: final})
	sortSpans(track.spans)
	track.size += length
	track.lastUsed = time.Now()
	c.total += length

	evict := c.collectEvictionsLocked(id)
	c.mu.Unlock()

	for _, victim := range evict {
		logger.Debug("evicting cached track", logger.String("trackId", victim))
		if err := c.Remove(victim); err != nil {
			logger.Warn("cache eviction failed", logger.String("trackId", victim), logger.ErrorField(err))
		}
	}
	return nil
}

func (c *Cache) coveredLocked(id string, pos, length int64) bool {
	track, ok := c.tracks[id]
	if !ok {
		return false
	}
	need := pos
	end := pos + length
	for _, s := range track.spans {
		if s.start > need {
			return false
		}
		if s.start+s.length > need {
			need = s.start + s.length
			if need >= end {
				return true
			}
		}
	}
	return false
}

// collectEvictionsLocked returns least-recently-used tracks to delete until
// the cache fits its bound. The track just written survives the pass.
func (c *Cache) collectEvictionsLocked(keep string) []string {
	if c.maxBytes <= 0 {
		return nil
	}
	type candidate struct {
		id       string
		lastUsed time.Time
		size     int64
	}
	var candidates []candidate
	for id, t := range c.tracks {
		if id == keep {
			continue
		}
		candidates = append(candidates, candidate{id: id, lastUsed: t.lastUsed, size: t.size})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastUsed.Before(candidates[j].lastUsed)
	})

	var victims []string
	over := c.total - c.maxBytes
	for _, cand := range candidates {
		if over <= 0 {
			break
		}
		victims = append(victims, cand.id)
		over -= cand.size
	}
	return victims
}

// Remove deletes every cached byte of the track.
func (c *Cache) Remove(id string) error {
	c.mu.Lock()
	track, ok := c.tracks[id]
	if ok {
		c.total -= track.size
		delete(c.tracks, id)
	}
	c.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(c.dir, encodeKey(id))); err != nil {
		return fmt.Errorf("failed to remove cached track %s: %w", id, err)
	}
	return nil
}

// Stats returns the number of cached tracks and total bytes on disk.
func (c *Cache) Stats() (tracks int, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks), c.total
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.tracks))
	for id := range c.tracks {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.Remove(id); err != nil {
			return err
		}
	}
	return nil
}
