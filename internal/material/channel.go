package material

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// ValueKind tags a ChannelValue.
type ValueKind int

const (
	// ValueConstant is a plain color or scalar.
	ValueConstant ValueKind = iota
	// ValueTexture is a reference to a texture file.
	ValueTexture
)

// ChannelValue is one resolved material channel: either a constant or a
// texture reference. A texture connection on a channel always wins over
// the plug's constant.
type ChannelValue struct {
	Kind ValueKind
	// Const holds the constant; scalars are replicated into all three lanes.
	Const [3]float32
	// Path is the texture file path when Kind is ValueTexture.
	Path string
}

// Constant returns a color constant.
func Constant(v host.Vec3) ChannelValue {
	return ChannelValue{Kind: ValueConstant, Const: [3]float32{sanitize(v[0]), sanitize(v[1]), sanitize(v[2])}}
}

// Vector returns a direction constant. Unlike Constant, negative
// components are kept.
func Vector(v host.Vec3) ChannelValue {
	return ChannelValue{Kind: ValueConstant, Const: [3]float32{finite(v[0]), finite(v[1]), finite(v[2])}}
}

// Scalar returns a scalar constant.
func Scalar(f float32) ChannelValue {
	f = sanitize(f)
	return ChannelValue{Kind: ValueConstant, Const: [3]float32{f, f, f}}
}

// TextureRef returns a texture-driven value.
func TextureRef(path string) ChannelValue {
	return ChannelValue{Kind: ValueTexture, Path: path}
}

// IsTexture reports whether the channel is texture driven.
func (v ChannelValue) IsTexture() bool {
	return v.Kind == ValueTexture
}

// String returns a human-readable representation of the value.
func (v ChannelValue) String() string {
	if v.IsTexture() {
		return fmt.Sprintf("texture(%s)", v.Path)
	}
	return fmt.Sprintf("const(%g, %g, %g)", v.Const[0], v.Const[1], v.Const[2])
}

// sanitize drops values a renderer cannot shade with and clamps colors
// and scalars at zero.
func sanitize(f float32) float32 {
	return math32.Max(finite(f), 0)
}

func finite(f float32) float32 {
	if math32.IsNaN(f) || math32.IsInf(f, 0) {
		return 0
	}
	return f
}

// Channels holds one value per renderer channel, indexed by renderer.Channel.
type Channels [renderer.NumChannels]ChannelValue

// DefaultChannels are used for channels a shader does not drive and for
// plugs that cannot be read.
var DefaultChannels = Channels{
	renderer.ChannelAlbedo:            Constant(host.Vec3{0.5, 0.5, 0.5}),
	renderer.ChannelDiffuseRoughness:  Scalar(0),
	renderer.ChannelMetalness:         Scalar(0),
	renderer.ChannelSpecularColor:     Constant(host.Vec3{0, 0, 0}),
	renderer.ChannelSpecularRoughness: Scalar(0),
	renderer.ChannelBump:              Vector(host.Vec3{0, 0, 0}),
}

// TexturePaths returns the distinct texture paths referenced by the channels.
func (c *Channels) TexturePaths() []string {
	var paths []string
	seen := make(map[string]bool)
	for _, v := range c {
		if v.IsTexture() && !seen[v.Path] {
			seen[v.Path] = true
			paths = append(paths, v.Path)
		}
	}
	return paths
}
