// Package filecache implements the Fiat-Karlin marker-algorithm file cache
// of spec.md §4.8: two disjoint sets, MARKED and UNMARKED, with random
// eviction from UNMARKED and a promote-and-demote cycle once MARKED fills.
package filecache

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
)

// Cache is the two-tier marker cache described in spec.md §4.8. A path
// appears in at most one of marked/unmarked at any time.
type Cache struct {
	mu            sync.Mutex
	marked        map[string][]byte
	unmarked      map[string][]byte
	nameToPath    map[string]string
	maxFiles      int
	maxFileSize   int64
	rng           *rand.Rand
}

// New creates a Cache bounded by maxFiles entries and maxFileSize bytes per
// entry (entries larger than maxFileSize bypass the cache entirely).
func New(maxFiles int, maxFileSize int64) *Cache {
	return &Cache{
		marked:      make(map[string][]byte),
		unmarked:    make(map[string][]byte),
		nameToPath:  make(map[string]string),
		maxFiles:    maxFiles,
		maxFileSize: maxFileSize,
		rng:         rand.New(rand.NewSource(1)),
	}
}

// Get returns the bytes of name, reading through to disk and applying the
// marker algorithm on a cache miss.
func (c *Cache) Get(name string) ([]byte, error) {
	path, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if data, ok := c.marked[path]; ok {
		c.mu.Unlock()
		return data, nil
	}
	if data, ok := c.unmarked[path]; ok {
		delete(c.unmarked, path)
		c.marked[path] = data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if c.maxFileSize > 0 && int64(len(data)) > c.maxFileSize {
		// Oversize entries bypass the cache entirely (spec.md §4.8).
		return data, nil
	}

	c.mu.Lock()
	c.insertLocked(name, path, data)
	c.mu.Unlock()

	return data, nil
}

// insertLocked implements the promote/evict/demote algorithm of spec.md
// §4.8. Must be called with c.mu held.
func (c *Cache) insertLocked(name, path string, data []byte) {
	total := len(c.marked) + len(c.unmarked)
	if total >= c.maxFiles {
		if len(c.unmarked) > 0 {
			// Evict one random entry from UNMARKED first.
			c.evictRandomUnmarkedLocked()
		} else if len(c.marked) >= c.maxFiles {
			// MARKED hit capacity with nothing in UNMARKED to evict:
			// demote all of MARKED to UNMARKED and clear MARKED, then
			// evict one random entry from the new UNMARKED to make room.
			for k, v := range c.marked {
				c.unmarked[k] = v
			}
			c.marked = make(map[string][]byte)
			c.evictRandomUnmarkedLocked()
		}
	}

	c.marked[path] = data
	c.nameToPath[name] = path
}

func (c *Cache) evictRandomUnmarkedLocked() {
	if len(c.unmarked) == 0 {
		return
	}
	idx := c.rng.Intn(len(c.unmarked))
	i := 0
	for k := range c.unmarked {
		if i == idx {
			delete(c.unmarked, k)
			c.pruneNameIndexLocked(k)
			return
		}
		i++
	}
}

func (c *Cache) pruneNameIndexLocked(path string) {
	for name, p := range c.nameToPath {
		if p == path {
			delete(c.nameToPath, name)
		}
	}
}

// PutContents always writes to disk; if a cached entry exists for the same
// canonical path, it is updated in place in whichever of marked/unmarked it
// lives (write-through, spec.md §4.8). No new cache entry is created by a
// write for a path that wasn't already cached.
func (c *Cache) PutContents(name string, data []byte) error {
	path, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.marked[path]; ok {
		c.marked[path] = data
	} else if _, ok := c.unmarked[path]; ok {
		c.unmarked[path] = data
	}
	return nil
}

// Stats reports the current marked/unmarked occupancy, for the capacity
// invariant checked in tests (spec.md §8.5).
func (c *Cache) Stats() (marked, unmarked int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.marked), len(c.unmarked)
}
