package streamcache

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func writeSpan(t *testing.T, c *Cache, id string, start int64, data []byte) {
	t.Helper()
	w, err := c.Writer(id, start)
	if err != nil {
		t.Fatalf("Writer(%q, %d): %v", id, start, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readAll(t *testing.T, c *Cache, id string, pos, length int64) []byte {
	t.Helper()
	r, err := c.ReadRange(id, pos, length)
	if err != nil {
		t.Fatalf("ReadRange(%q, %d, %d): %v", id, pos, length, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return data
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("0123456789abcdef")
	writeSpan(t, c, "track-a", 0, data)

	if !c.IsCached("track-a", 0, int64(len(data))) {
		t.Fatal("range not reported cached after write")
	}
	got := readAll(t, c, "track-a", 4, 8)
	if !bytes.Equal(got, data[4:12]) {
		t.Errorf("read %q, want %q", got, data[4:12])
	}
}

func TestCacheSpansStitchAcrossWrites(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	writeSpan(t, c, "t", 0, []byte("aaaa"))
	writeSpan(t, c, "t", 4, []byte("bbbb"))
	writeSpan(t, c, "t", 8, []byte("cccc"))

	got := readAll(t, c, "t", 2, 8)
	if string(got) != "aabbbbcc" {
		t.Errorf("read %q, want %q", got, "aabbbbcc")
	}
}

func TestCacheGapIsNotCached(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	writeSpan(t, c, "t", 0, []byte("aaaa"))
	writeSpan(t, c, "t", 8, []byte("cccc"))

	if c.IsCached("t", 0, 12) {
		t.Error("range with a hole reported as cached")
	}
	if _, err := c.ReadRange("t", 0, 12); err == nil {
		t.Error("ReadRange across a hole succeeded, want error")
	} else if !strings.Contains(err.Error(), "gap") {
		t.Errorf("err = %v, want gap error", err)
	}
}

func TestCacheCoveredWriteDiscarded(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	writeSpan(t, c, "t", 0, []byte("abcdefgh"))
	before := c.CachedBytes("t")

	// Rewriting a fully covered range must not grow the cache.
	writeSpan(t, c, "t", 2, []byte("XXXX"))
	if after := c.CachedBytes("t"); after != before {
		t.Errorf("cached bytes grew from %d to %d on covered write", before, after)
	}

	got := readAll(t, c, "t", 0, 8)
	if string(got) != "abcdefgh" {
		t.Errorf("read %q, covered write replaced data", got)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// Each track stores 8 bytes; the limit fits two tracks.
	c, err := Open(t.TempDir(), 16)
	if err != nil {
		t.Fatal(err)
	}

	writeSpan(t, c, "old", 0, []byte("aaaaaaaa"))
	writeSpan(t, c, "mid", 0, []byte("bbbbbbbb"))

	// Touch "old" so "mid" becomes the eviction candidate.
	readAll(t, c, "old", 0, 8)

	writeSpan(t, c, "new", 0, []byte("cccccccc"))

	if c.IsCached("mid", 0, 8) {
		t.Error("least recently used track survived eviction")
	}
	if !c.IsCached("old", 0, 8) {
		t.Error("recently read track was evicted")
	}
	if !c.IsCached("new", 0, 8) {
		t.Error("just written track was evicted")
	}
}

func TestCacheUnlimitedNeverEvicts(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		writeSpan(t, c, id, 0, bytes.Repeat([]byte(id), 64))
	}

	tracks, size := c.Stats()
	if tracks != 4 {
		t.Errorf("tracks = %d, want 4", tracks)
	}
	if size != 4*64 {
		t.Errorf("bytes = %d, want %d", size, 4*64)
	}
}

func TestCacheReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("persistent bytes")
	writeSpan(t, c, "keep/me", 0, data)

	reopened, err := Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.IsCached("keep/me", 0, int64(len(data))) {
		t.Fatal("span lost across reopen")
	}
	got := readAll(t, reopened, "keep/me", 0, int64(len(data)))
	if !bytes.Equal(got, data) {
		t.Errorf("read %q, want %q", got, data)
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	writeSpan(t, c, "a", 0, []byte("xxxx"))
	writeSpan(t, c, "b", 0, []byte("yyyy"))

	if err := c.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c.IsCached("a", 0, 4) {
		t.Error("removed track still cached")
	}
	if !c.IsCached("b", 0, 4) {
		t.Error("unrelated track removed")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if tracks, size := c.Stats(); tracks != 0 || size != 0 {
		t.Errorf("after clear: tracks=%d bytes=%d, want empty", tracks, size)
	}
}
