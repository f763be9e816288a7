// ABOUTME: Process-lifetime memoization for report resolution.
// ABOUTME: Lazy cells with explicit reset, and a bounded per-date window memo.

package report

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/2389/fieldops/internal/tzclock"
)

// Cell lazily computes a value once and keeps it until Reset. Failed loads
// are not remembered, so the next Get retries.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	ok    bool
}

func (c *Cell[T]) Get(load func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ok {
		return c.value, nil
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.value, c.ok = v, true
	return v, nil
}

// Peek returns the cached value without loading.
func (c *Cell[T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.ok
}

func (c *Cell[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value, c.ok = zero, false
}

type windowKey struct {
	date    tzclock.Date
	mode    Mode
	storage StorageMode
}

// windowCacheSize bounds the window memo. Dates come from callers, so the
// memo keeps only the most recently requested days.
const windowCacheSize = 64

// WindowCache memoizes planned windows. Windows depend only on the key and
// the zone, so entries never go stale within a process; they are only
// evicted.
type WindowCache struct {
	windows *lru.Cache[windowKey, Window]
}

func NewWindowCache(size int) *WindowCache {
	windows, err := lru.New[windowKey, Window](max(size, 1))
	if err != nil {
		// lru.New fails only for a non-positive size
		panic(err)
	}
	return &WindowCache{windows: windows}
}

func (c *WindowCache) GetOrPlan(date tzclock.Date, mode Mode, storage StorageMode, plan func() Window) Window {
	key := windowKey{date: date, mode: mode, storage: storage}
	if w, ok := c.windows.Get(key); ok {
		return w
	}
	w := plan()
	c.windows.Add(key, w)
	return w
}

func (c *WindowCache) Len() int {
	return c.windows.Len()
}

func (c *WindowCache) Reset() {
	c.windows.Purge()
}
