package texture

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// SlotKind names one of the two display texture slots.
type SlotKind int

const (
	// SlotColor holds the renderer's color output.
	SlotColor SlotKind = iota
	// SlotDepth holds the renderer's depth output.
	SlotDepth

	// NumSlots is the number of display slots.
	NumSlots = 2
)

// String returns the slot name.
func (k SlotKind) String() string {
	switch k {
	case SlotColor:
		return "color"
	case SlotDepth:
		return "depth"
	default:
		return fmt.Sprintf("slot(%d)", int(k))
	}
}

// DefaultUsage is the usage requested for display textures: the host
// samples them and the bridge copies into them.
const DefaultUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst

// Descriptor describes a display texture.
type Descriptor struct {
	Label         string
	Size          gputypes.Extent3D
	BytesPerPixel int
	Format        gputypes.TextureFormat
	Dimension     gputypes.TextureDimension
	Usage         gputypes.TextureUsage
}

// Width returns the texture width in pixels.
func (d Descriptor) Width() int { return int(d.Size.Width) }

// Height returns the texture height in pixels.
func (d Descriptor) Height() int { return int(d.Size.Height) }

// Matches reports whether a texture created for d can take o's contents
// in place.
func (d Descriptor) Matches(o Descriptor) bool {
	return d.Size == o.Size && d.Format == o.Format && d.BytesPerPixel == o.BytesPerPixel
}

// DescriptorFor derives the display texture descriptor for a renderer
// output buffer.
func DescriptorFor(kind SlotKind, buf *renderer.CPUTexture, usage gputypes.TextureUsage) (Descriptor, error) {
	if buf.Width <= 0 || buf.Height <= 0 || buf.BytesPerPixel <= 0 {
		return Descriptor{}, fmt.Errorf("%s buffer %dx%dx%d: %w", kind, buf.Width, buf.Height, buf.BytesPerPixel, ErrBadBuffer)
	}
	if len(buf.Data) < buf.Size() {
		return Descriptor{}, fmt.Errorf("%s buffer holds %d bytes, want %d: %w", kind, len(buf.Data), buf.Size(), ErrBadBuffer)
	}
	format := formatFor(kind, buf.BytesPerPixel)
	if format == gputypes.TextureFormatUndefined {
		return Descriptor{}, fmt.Errorf("%s buffer with %d bytes per pixel: %w", kind, buf.BytesPerPixel, ErrUnsupportedFormat)
	}
	return Descriptor{
		Label: "viewport-" + kind.String(),
		Size: gputypes.Extent3D{
			Width:              uint32(buf.Width),
			Height:             uint32(buf.Height),
			DepthOrArrayLayers: 1,
		},
		BytesPerPixel: buf.BytesPerPixel,
		Format:        format,
		Dimension:     gputypes.TextureDimension2D,
		Usage:         usage,
	}, nil
}

func formatFor(kind SlotKind, bytesPerPixel int) gputypes.TextureFormat {
	switch {
	case kind == SlotColor && bytesPerPixel == 4:
		return gputypes.TextureFormatRGBA8Unorm
	case kind == SlotColor && bytesPerPixel == 1:
		return gputypes.TextureFormatR8Unorm
	case kind == SlotDepth && bytesPerPixel == 4:
		return gputypes.TextureFormatDepth32Float
	default:
		return gputypes.TextureFormatUndefined
	}
}
