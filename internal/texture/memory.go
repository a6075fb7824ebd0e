package texture

import (
	"fmt"
	"sync"
)

// MemoryTexture is a display texture held in memory.
type MemoryTexture struct {
	ID      int
	Desc    Descriptor
	Data    []byte
	Updates int
}

// Update implements DisplayTexture.
func (t *MemoryTexture) Update(data []byte) error {
	if len(data) != len(t.Data) {
		return fmt.Errorf("texture %d holds %d bytes, got %d: %w", t.ID, len(t.Data), len(data), ErrBadBuffer)
	}
	copy(t.Data, data)
	t.Updates++
	return nil
}

// MemoryDisplay is an in-memory display surface. It implements both
// DisplayTextureManager and Blitter, and is what the CLI composes into
// when no host display exists.
type MemoryDisplay struct {
	mu       sync.Mutex
	next     int
	live     map[int]*MemoryTexture
	acquired int
	released int
	skip     int
	failures int
	color    *MemoryTexture
	depth    *MemoryTexture
	blits    int
}

// NewMemoryDisplay creates an empty display.
func NewMemoryDisplay() *MemoryDisplay {
	return &MemoryDisplay{live: make(map[int]*MemoryTexture)}
}

// FailAcquisitions makes the next n Acquire calls fail.
func (d *MemoryDisplay) FailAcquisitions(n int) {
	d.FailAcquisitionsAfter(0, n)
}

// FailAcquisitionsAfter lets skip Acquire calls succeed, then fails n.
func (d *MemoryDisplay) FailAcquisitionsAfter(skip, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.skip = skip
	d.failures = n
}

// Acquire implements DisplayTextureManager.
func (d *MemoryDisplay) Acquire(desc Descriptor, data []byte) (DisplayTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.skip > 0 {
		d.skip--
	} else if d.failures > 0 {
		d.failures--
		return nil, fmt.Errorf("%s: %w", desc.Label, ErrAcquireFailed)
	}
	d.next++
	tex := &MemoryTexture{
		ID:   d.next,
		Desc: desc,
		Data: append([]byte(nil), data...),
	}
	d.live[tex.ID] = tex
	d.acquired++
	return tex, nil
}

// Release implements DisplayTextureManager.
func (d *MemoryDisplay) Release(tex DisplayTexture) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mt, ok := tex.(*MemoryTexture)
	if !ok || d.live[mt.ID] != mt {
		return ErrUnknownTexture
	}
	delete(d.live, mt.ID)
	d.released++
	return nil
}

// SetColorTexture implements Blitter.
func (d *MemoryDisplay) SetColorTexture(tex DisplayTexture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.color, _ = tex.(*MemoryTexture)
	d.blits++
}

// SetDepthTexture implements Blitter.
func (d *MemoryDisplay) SetDepthTexture(tex DisplayTexture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depth, _ = tex.(*MemoryTexture)
}

// Live returns the number of textures not yet released.
func (d *MemoryDisplay) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Acquired returns the number of successful acquisitions.
func (d *MemoryDisplay) Acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Released returns the number of releases.
func (d *MemoryDisplay) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Bound returns the textures the blit stage currently reads.
func (d *MemoryDisplay) Bound() (color, depth *MemoryTexture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.color, d.depth
}

// Blits returns how many times the blit stage was re-pointed.
func (d *MemoryDisplay) Blits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blits
}
