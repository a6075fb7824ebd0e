package material

import (
	"fmt"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// Defaults is the fallback material and texture handed to a Resolver.
// Meshes without a supported shader render with Material; texture channels
// whose file cannot be loaded sample Texture.
//
// The value is owned by whoever called NewDefaults and must be released
// with Release after every resolver using it has been closed.
type Defaults struct {
	Material renderer.MaterialHandle
	Texture  renderer.TextureHandle
}

// NewDefaults creates the default material. Every channel holds its
// default constant and has the pool's default texture bound.
func NewDefaults(materials renderer.MaterialPool, textures renderer.TexturePool) (Defaults, error) {
	h, err := materials.Create()
	if err != nil {
		return Defaults{}, fmt.Errorf("create default material: %w", err)
	}
	mat, err := materials.Material(h)
	if err != nil {
		_ = materials.Release(h)
		return Defaults{}, fmt.Errorf("get default material: %w", err)
	}

	tex := textures.Default()
	for _, ch := range renderer.Channels {
		mat.SetTexture(ch, tex)
		mat.SetConstant(ch, DefaultChannels[ch].Const)
		mat.UseConstant(ch, true)
	}
	return Defaults{Material: h, Texture: tex}, nil
}

// Release frees the default material. The default texture belongs to the
// texture pool and is left alone.
func (d Defaults) Release(materials renderer.MaterialPool) error {
	if !d.Material.IsValid() {
		return nil
	}
	if err := materials.Release(d.Material); err != nil {
		return fmt.Errorf("release default material: %w", err)
	}
	return nil
}
