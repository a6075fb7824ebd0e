package material

import (
	"strings"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// SurfaceShaderType is the closed set of shading models the resolver
// knows how to translate.
type SurfaceShaderType int

const (
	// ShaderUnsupported is any node outside the catalogue.
	ShaderUnsupported SurfaceShaderType = iota
	// ShaderLambert is the host's lambert shader.
	ShaderLambert
	// ShaderPhong is the host's phong shader.
	ShaderPhong
	// ShaderStandardSurface is the Arnold standard surface shader.
	ShaderStandardSurface
)

// String returns a human-readable representation of the shader type.
func (t SurfaceShaderType) String() string {
	switch t {
	case ShaderLambert:
		return "lambert"
	case ShaderPhong:
		return "phong"
	case ShaderStandardSurface:
		return "standard_surface"
	default:
		return "unsupported"
	}
}

// IsSupported reports whether a material is built for this type.
func (t SurfaceShaderType) IsSupported() bool {
	return t != ShaderUnsupported
}

// ChannelPlug maps one renderer channel to the shader plug that drives it.
type ChannelPlug struct {
	Channel renderer.Channel
	Plug    string
	// Scalar plugs hold a single float instead of a color.
	Scalar bool
}

// ShaderModel is one variant of the supported shader catalogue. Each
// variant carries its own channel table; channels a model does not list
// resolve to their defaults.
type ShaderModel interface {
	Type() SurfaceShaderType
	TypeName() string
	Plugs() []ChannelPlug
}

// Native type names of the catalogue.
const (
	LambertTypeName         = "lambert"
	PhongTypeName           = "phong"
	StandardSurfaceTypeName = "aiStandardSurface"
	bumpTypeName            = "bump2d"
)

// Lambert is the diffuse-only host shader.
type Lambert struct{}

func (Lambert) Type() SurfaceShaderType { return ShaderLambert }
func (Lambert) TypeName() string        { return LambertTypeName }
func (Lambert) Plugs() []ChannelPlug    { return lambertPlugs }

var lambertPlugs = []ChannelPlug{
	{Channel: renderer.ChannelAlbedo, Plug: "color"},
	{Channel: renderer.ChannelBump, Plug: "normalCamera"},
}

// Phong adds a specular lobe to Lambert.
type Phong struct{}

func (Phong) Type() SurfaceShaderType { return ShaderPhong }
func (Phong) TypeName() string        { return PhongTypeName }
func (Phong) Plugs() []ChannelPlug    { return phongPlugs }

var phongPlugs = []ChannelPlug{
	{Channel: renderer.ChannelAlbedo, Plug: "color"},
	{Channel: renderer.ChannelMetalness, Plug: "reflectivity", Scalar: true},
	{Channel: renderer.ChannelSpecularColor, Plug: "specularColor"},
	{Channel: renderer.ChannelBump, Plug: "normalCamera"},
}

// StandardSurface is the Arnold physically based shader and the richest
// model: it drives all six channels.
type StandardSurface struct{}

func (StandardSurface) Type() SurfaceShaderType { return ShaderStandardSurface }
func (StandardSurface) TypeName() string        { return StandardSurfaceTypeName }
func (StandardSurface) Plugs() []ChannelPlug    { return standardSurfacePlugs }

var standardSurfacePlugs = []ChannelPlug{
	{Channel: renderer.ChannelAlbedo, Plug: "baseColor"},
	{Channel: renderer.ChannelDiffuseRoughness, Plug: "diffuseRoughness", Scalar: true},
	{Channel: renderer.ChannelMetalness, Plug: "metalness", Scalar: true},
	{Channel: renderer.ChannelSpecularColor, Plug: "specularColor"},
	{Channel: renderer.ChannelSpecularRoughness, Plug: "specularRoughness", Scalar: true},
	{Channel: renderer.ChannelBump, Plug: "normalCamera"},
}

// Unsupported is every other node type. No material is built for it.
type Unsupported struct {
	Name string
}

func (Unsupported) Type() SurfaceShaderType { return ShaderUnsupported }
func (u Unsupported) TypeName() string      { return u.Name }
func (Unsupported) Plugs() []ChannelPlug    { return nil }

// Classify maps a native type name onto the catalogue.
// Matching is exact; anything else is Unsupported.
func Classify(typeName string) ShaderModel {
	switch typeName {
	case LambertTypeName:
		return Lambert{}
	case PhongTypeName:
		return Phong{}
	case StandardSurfaceTypeName:
		return StandardSurface{}
	default:
		return Unsupported{Name: typeName}
	}
}

// plugFor finds the channel driven by a plug. Child plugs of a color
// ("colorR", "baseColorG") resolve to their parent.
func plugFor(model ShaderModel, plug string) (ChannelPlug, bool) {
	for _, cp := range model.Plugs() {
		if cp.Plug == plug {
			return cp, true
		}
	}
	for _, suffix := range []string{"R", "G", "B", "X", "Y", "Z"} {
		parent, ok := strings.CutSuffix(plug, suffix)
		if !ok {
			continue
		}
		for _, cp := range model.Plugs() {
			if cp.Plug == parent && !cp.Scalar {
				return cp, true
			}
		}
	}
	return ChannelPlug{}, false
}
