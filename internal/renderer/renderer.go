// Package renderer defines the boundary to the target renderer.
//
// The renderer owns its material pool, texture pool and scene graph. The
// synchronizer only mutates them through the create/update/release calls
// declared here and reads back CPU-side frame output once a frame is
// reported complete.
package renderer

import (
	"errors"
	"fmt"
)

// MaterialHandle identifies a material in a MaterialPool.
// The zero handle is invalid.
type MaterialHandle uint64

// IsValid reports whether h can refer to a material.
func (h MaterialHandle) IsValid() bool { return h != 0 }

// TextureHandle identifies a texture in a TexturePool.
// The zero handle is invalid.
type TextureHandle uint64

// IsValid reports whether h can refer to a texture.
func (h TextureHandle) IsValid() bool { return h != 0 }

// NodeID identifies a mesh node in the renderer's scene graph.
type NodeID uint64

// Channel is one material input.
type Channel int

const (
	// ChannelAlbedo is the base (diffuse) color.
	ChannelAlbedo Channel = iota
	// ChannelDiffuseRoughness is the diffuse roughness.
	ChannelDiffuseRoughness
	// ChannelMetalness is the metallic factor.
	ChannelMetalness
	// ChannelSpecularColor is the specular tint.
	ChannelSpecularColor
	// ChannelSpecularRoughness is the specular (microfacet) roughness.
	ChannelSpecularRoughness
	// ChannelBump is the normal / bump input.
	ChannelBump

	// NumChannels is the number of material channels.
	NumChannels = 6
)

// Channels lists every channel in declaration order.
var Channels = [NumChannels]Channel{
	ChannelAlbedo,
	ChannelDiffuseRoughness,
	ChannelMetalness,
	ChannelSpecularColor,
	ChannelSpecularRoughness,
	ChannelBump,
}

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelAlbedo:
		return "albedo"
	case ChannelDiffuseRoughness:
		return "diffuse_roughness"
	case ChannelMetalness:
		return "metalness"
	case ChannelSpecularColor:
		return "specular_color"
	case ChannelSpecularRoughness:
		return "specular_roughness"
	case ChannelBump:
		return "bump"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Material is a renderer-side material object with per-channel setters.
// A channel is either texture driven or uses its constant.
type Material interface {
	SetTexture(ch Channel, tex TextureHandle)
	SetConstant(ch Channel, v [3]float32)
	UseConstant(ch Channel, use bool)
}

// MaterialPool creates and owns renderer materials.
type MaterialPool interface {
	// Create allocates a new material.
	Create() (MaterialHandle, error)
	// Material returns the material object for a handle.
	Material(h MaterialHandle) (Material, error)
	// Release frees a material.
	Release(h MaterialHandle) error
}

// TexturePool loads and owns renderer textures.
type TexturePool interface {
	// Load loads a texture by file path. Paths are opaque to the synchronizer.
	Load(path string) (TextureHandle, error)
	// Default returns the pool's fallback texture.
	Default() TextureHandle
	// Release frees a texture loaded with Load.
	Release(h TextureHandle) error
}

// SceneGraph holds the renderer's mesh nodes.
type SceneGraph interface {
	AddMesh(name string) (NodeID, error)
	UpdateMesh(id NodeID) error
	RemoveMesh(id NodeID) error
	SetMaterial(id NodeID, mat MaterialHandle) error
}

// Camera is the viewport camera the renderer draws from.
type Camera struct {
	Position [3]float32 `json:"position"`
	Rotation [3]float32 `json:"rotation"` // euler XYZ, radians
	FOV      float32    `json:"fov"`      // horizontal, degrees
	Near     float32    `json:"near"`
	Far      float32    `json:"far"`
}

// DefaultCamera is the camera the renderer starts with.
func DefaultCamera() Camera {
	return Camera{Position: [3]float32{0, 0, -1}, FOV: 90, Near: 0.1, Far: 1000}
}

// CameraSink receives the viewport camera once per frame.
type CameraSink interface {
	SetCamera(cam Camera) error
}

// CPUTexture is a CPU-readable copy of one render target.
type CPUTexture struct {
	Data          []byte
	Width         int
	Height        int
	BytesPerPixel int
}

// Size returns the expected byte length of Data.
func (t *CPUTexture) Size() int {
	return t.Width * t.Height * t.BytesPerPixel
}

// Frame is the renderer output for one frame. Either buffer may be nil
// when the renderer has not produced output yet.
type Frame struct {
	Color *CPUTexture
	Depth *CPUTexture
}

// Ready reports whether both buffers are available.
func (f Frame) Ready() bool {
	return f.Color != nil && f.Depth != nil
}

// OutputSource yields the most recently completed frame.
type OutputSource interface {
	LatestFrame() Frame
}

// Errors reported by renderer pools.
var (
	// ErrPoolExhausted is returned when a pool cannot hand out another object.
	ErrPoolExhausted = errors.New("renderer pool exhausted")

	// ErrUnknownHandle is returned for handles the pool does not own.
	ErrUnknownHandle = errors.New("unknown renderer handle")

	// ErrTextureLoad is returned when a texture path cannot be loaded.
	ErrTextureLoad = errors.New("texture load failed")
)
