// Package texture copies renderer output into host display textures.
//
// Each frame the Bridge takes the renderer's latest CPU-side color and depth
// buffers and either updates the existing display textures in place or,
// when the output size or pixel format changed, acquires new ones and
// tells the blit stage about them.
package texture

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// DisplayTexture is a host-visible texture.
type DisplayTexture interface {
	// Update replaces the texture contents. data matches the descriptor the
	// texture was acquired with.
	Update(data []byte) error
}

// DisplayTextureManager creates and destroys host display textures.
type DisplayTextureManager interface {
	Acquire(desc Descriptor, data []byte) (DisplayTexture, error)
	Release(tex DisplayTexture) error
}

// Blitter is the composition stage that reads the display textures.
type Blitter interface {
	SetColorTexture(tex DisplayTexture)
	SetDepthTexture(tex DisplayTexture)
}

// Slot is one display texture and the sizes it was created for.
type Slot struct {
	Kind    SlotKind
	Texture DisplayTexture
	Desc    Descriptor

	// OutputWidth and OutputHeight are the host-requested output size the
	// texture was acquired at.
	OutputWidth  int
	OutputHeight int
}

// Valid reports whether the slot holds a texture.
func (s Slot) Valid() bool {
	return s.Texture != nil
}

// Stats counts bridge work.
type Stats struct {
	Frames          int
	EmptyFrames     int
	Updates         int
	Reacquired      [NumSlots]int
	AcquireFailures int
	UpdateFailures  int
	Notifications   int
}

// Config holds bridge settings.
type Config struct {
	Usage  gputypes.TextureUsage
	Logger *log.Logger
}

// DefaultConfig returns the default bridge settings.
func DefaultConfig() Config {
	return Config{Usage: DefaultUsage}
}

// Bridge keeps the color and depth display slots in sync with renderer
// output. Not safe for concurrent use; call it from the frame loop.
type Bridge struct {
	display DisplayTextureManager
	blitter Blitter
	usage   gputypes.TextureUsage
	logger  *log.Logger
	slots   [NumSlots]Slot
	stats   Stats
}

// New creates a bridge with default settings. blitter may be nil.
func New(display DisplayTextureManager, blitter Blitter) *Bridge {
	return NewWithConfig(display, blitter, DefaultConfig())
}

// NewWithConfig creates a bridge with custom settings.
func NewWithConfig(display DisplayTextureManager, blitter Blitter, cfg Config) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[texture] ", log.LstdFlags)
	}
	if cfg.Usage == 0 {
		cfg.Usage = DefaultUsage
	}
	b := &Bridge{
		display: display,
		blitter: blitter,
		usage:   cfg.Usage,
		logger:  cfg.Logger,
	}
	b.slots[SlotColor].Kind = SlotColor
	b.slots[SlotDepth].Kind = SlotDepth
	return b
}

// UpdateTextures pushes one frame of renderer output into the display
// slots. A frame without both buffers is treated as no output yet and is a
// successful no-op. It returns false only when both slots end the frame
// without a texture.
//
// The slots are re-acquired together when the requested output size
// changed, when either buffer no longer matches its descriptor, or when
// either slot has no texture. New textures are acquired before the old
// ones are released, so a failed acquisition keeps the previous pair.
func (b *Bridge) UpdateTextures(outputWidth, outputHeight int, frame renderer.Frame) bool {
	b.stats.Frames++
	if !frame.Ready() {
		b.stats.EmptyFrames++
		return true
	}

	bufs := [NumSlots]*renderer.CPUTexture{frame.Color, frame.Depth}
	var descs [NumSlots]Descriptor
	stale := false
	for kind, buf := range bufs {
		desc, err := DescriptorFor(SlotKind(kind), buf, b.usage)
		if err != nil {
			b.stats.UpdateFailures++
			b.logger.Printf("Warning: %v", err)
			return b.anyValid(outputWidth, outputHeight)
		}
		descs[kind] = desc
		slot := b.slots[kind]
		if !slot.Valid() ||
			slot.OutputWidth != outputWidth ||
			slot.OutputHeight != outputHeight ||
			!slot.Desc.Matches(desc) {
			stale = true
		}
	}

	if stale {
		if err := b.reacquire(descs, bufs, outputWidth, outputHeight); err != nil {
			b.stats.AcquireFailures++
			b.logger.Printf("Warning: %v", err)
			return b.anyValid(outputWidth, outputHeight)
		}
		if b.blitter != nil {
			b.blitter.SetColorTexture(b.slots[SlotColor].Texture)
			b.blitter.SetDepthTexture(b.slots[SlotDepth].Texture)
			b.stats.Notifications++
		}
		return true
	}

	for kind, buf := range bufs {
		slot := &b.slots[kind]
		if err := slot.Texture.Update(buf.Data[:buf.Size()]); err != nil {
			b.stats.UpdateFailures++
			b.logger.Printf("Warning: update %s texture: %v", slot.Kind, err)
			continue
		}
		b.stats.Updates++
	}
	return true
}

func (b *Bridge) anyValid(width, height int) bool {
	if !b.slots[SlotColor].Valid() && !b.slots[SlotDepth].Valid() {
		b.logger.Printf("Warning: no display texture available for %dx%d output", width, height)
		return false
	}
	return true
}

// reacquire replaces both slot textures. Either both slots change or
// neither does.
func (b *Bridge) reacquire(descs [NumSlots]Descriptor, bufs [NumSlots]*renderer.CPUTexture, width, height int) error {
	var fresh [NumSlots]DisplayTexture
	for kind, desc := range descs {
		tex, err := b.display.Acquire(desc, bufs[kind].Data[:bufs[kind].Size()])
		if err != nil {
			for _, t := range fresh[:kind] {
				if rerr := b.display.Release(t); rerr != nil {
					b.logger.Printf("Warning: release unused texture: %v", rerr)
				}
			}
			return fmt.Errorf("acquire %s texture %dx%d: %w", SlotKind(kind), desc.Width(), desc.Height(), err)
		}
		fresh[kind] = tex
	}

	for kind := range b.slots {
		slot := &b.slots[kind]
		if slot.Texture != nil {
			if err := b.display.Release(slot.Texture); err != nil {
				b.logger.Printf("Warning: release %s texture: %v", slot.Kind, err)
			}
		}
		slot.Texture = fresh[kind]
		slot.Desc = descs[kind]
		slot.OutputWidth = width
		slot.OutputHeight = height
		b.stats.Reacquired[kind]++
	}
	return nil
}

// Slot returns a copy of the given slot.
func (b *Bridge) Slot(kind SlotKind) Slot {
	return b.slots[kind]
}

// Stats returns the work counters.
func (b *Bridge) Stats() Stats {
	return b.stats
}

// Close releases both display textures.
func (b *Bridge) Close() error {
	var errs []error
	for i := range b.slots {
		slot := &b.slots[i]
		if slot.Texture == nil {
			continue
		}
		if err := b.display.Release(slot.Texture); err != nil {
			errs = append(errs, fmt.Errorf("release %s texture: %w", slot.Kind, err))
		}
		*slot = Slot{Kind: slot.Kind}
	}
	return errors.Join(errs...)
}
