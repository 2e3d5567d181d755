package filecache

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFiles(t *testing.T, dir string, n int) []string {
	t.Helper()
	var paths []string
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		if err := os.WriteFile(p, []byte("contents"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestGetReadsThroughAndCaches(t *testing.T) {
	dir := t.TempDir()
	paths := writeTempFiles(t, dir, 1)

	c := New(10, 1000)
	data, err := c.Get(paths[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "contents" {
		t.Fatalf("unexpected contents: %q", data)
	}

	marked, unmarked := c.Stats()
	if marked != 1 || unmarked != 0 {
		t.Fatalf("expected 1 marked entry after first read, got marked=%d unmarked=%d", marked, unmarked)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	dir := t.TempDir()
	paths := writeTempFiles(t, dir, 20)

	c := New(5, 1000)
	for _, p := range paths {
		if _, err := c.Get(p); err != nil {
			t.Fatalf("Get: %v", err)
		}
		marked, unmarked := c.Stats()
		if marked+unmarked > 5 {
			t.Fatalf("cache exceeded MAX_CACHE_FILES: marked=%d unmarked=%d", marked, unmarked)
		}
	}
}

func TestOversizeEntryBypassesCache(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(p, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := New(10, 5) // max file size smaller than the file
	if _, err := c.Get(p); err != nil {
		t.Fatalf("Get: %v", err)
	}
	marked, unmarked := c.Stats()
	if marked != 0 || unmarked != 0 {
		t.Fatalf("expected oversize entry to bypass the cache, got marked=%d unmarked=%d", marked, unmarked)
	}
}

func TestPutContentsWritesThroughAndUpdatesCache(t *testing.T) {
	dir := t.TempDir()
	paths := writeTempFiles(t, dir, 1)

	c := New(10, 1000)
	if _, err := c.Get(paths[0]); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := c.PutContents(paths[0], []byte("updated")); err != nil {
		t.Fatalf("PutContents: %v", err)
	}

	data, err := c.Get(paths[0])
	if err != nil {
		t.Fatalf("Get after write: %v", err)
	}
	if string(data) != "updated" {
		t.Fatalf("expected cache to reflect write-through, got %q", data)
	}

	onDisk, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(onDisk) != "updated" {
		t.Fatalf("expected write-through to disk, got %q", onDisk)
	}
}
