// Package placeholder holds the process-wide store of pre-generated blur
// placeholders and the step that fills it from a transform engine.
package placeholder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eringen/imagewarm/optimizer"
)

var (
	// ErrFrozen is returned by Insert once the cache has been frozen.
	ErrFrozen = errors.New("placeholder cache is frozen")

	// ErrNotBlur is returned when a non-placeholder variant is inserted.
	ErrNotBlur = errors.New("only blur variants are cached")
)

// Cache maps blur images to their placeholder payload. Each key is written at
// most once; reads take no locks. Payloads are strings so readers can never
// observe a partial or mutated value.
type Cache struct {
	entries sync.Map // optimizer.CachedImage -> string
	size    atomic.Int64
	frozen  atomic.Bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Insert stores payload for img if no entry exists yet. It reports whether
// the value was stored; re-inserting an existing key is a no-op.
func (c *Cache) Insert(img optimizer.CachedImage, payload []byte) (bool, error) {
	if c.frozen.Load() {
		return false, ErrFrozen
	}
	if !img.IsBlur() {
		return false, fmt.Errorf("%w: %s", ErrNotBlur, img)
	}
	if _, loaded := c.entries.LoadOrStore(img, string(payload)); loaded {
		return false, nil
	}
	c.size.Add(1)
	return true, nil
}

// Lookup returns the placeholder for img.
func (c *Cache) Lookup(img optimizer.CachedImage) (string, bool) {
	v, ok := c.entries.Load(img)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// Freeze makes the cache read-only.
func (c *Cache) Freeze() {
	c.frozen.Store(true)
}

// Frozen reports whether Freeze was called.
func (c *Cache) Frozen() bool {
	return c.frozen.Load()
}

// Snapshot copies the current entries.
func (c *Cache) Snapshot() map[optimizer.CachedImage]string {
	out := make(map[optimizer.CachedImage]string, c.Len())
	c.entries.Range(func(k, v any) bool {
		out[k.(optimizer.CachedImage)] = v.(string)
		return true
	})
	return out
}
