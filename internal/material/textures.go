package material

import (
	"errors"
	"fmt"
	"sort"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

type textureEntry struct {
	handle renderer.TextureHandle
	refs   int
}

// TextureCatalogue caches renderer textures by file path and counts how
// many material channels reference each one. A texture is released when
// its last reference goes away.
type TextureCatalogue struct {
	pool    renderer.TexturePool
	entries map[string]*textureEntry
}

// NewTextureCatalogue creates an empty catalogue over pool.
func NewTextureCatalogue(pool renderer.TexturePool) *TextureCatalogue {
	return &TextureCatalogue{
		pool:    pool,
		entries: make(map[string]*textureEntry),
	}
}

// Acquire returns the texture for path, loading it on first use, and adds
// a reference.
func (c *TextureCatalogue) Acquire(path string) (renderer.TextureHandle, error) {
	if e, ok := c.entries[path]; ok {
		e.refs++
		return e.handle, nil
	}
	h, err := c.pool.Load(path)
	if err != nil {
		return 0, fmt.Errorf("load texture %q: %w", path, err)
	}
	c.entries[path] = &textureEntry{handle: h, refs: 1}
	return h, nil
}

// Release drops one reference to path.
func (c *TextureCatalogue) Release(path string) error {
	e, ok := c.entries[path]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(c.entries, path)
	if err := c.pool.Release(e.handle); err != nil {
		return fmt.Errorf("release texture %q: %w", path, err)
	}
	return nil
}

// Lookup returns the resident texture for path without adding a reference.
func (c *TextureCatalogue) Lookup(path string) (renderer.TextureHandle, bool) {
	e, ok := c.entries[path]
	if !ok {
		return 0, false
	}
	return e.handle, true
}

// Refs returns the reference count of path.
func (c *TextureCatalogue) Refs(path string) int {
	if e, ok := c.entries[path]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of resident textures.
func (c *TextureCatalogue) Len() int { return len(c.entries) }

// Close releases every resident texture regardless of references.
func (c *TextureCatalogue) Close() error {
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var errs []error
	for _, p := range paths {
		if err := c.pool.Release(c.entries[p].handle); err != nil {
			errs = append(errs, fmt.Errorf("release texture %q: %w", p, err))
		}
	}
	c.entries = make(map[string]*textureEntry)
	return errors.Join(errs...)
}
