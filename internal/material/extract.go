package material

import (
	"fmt"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// ExtractChannels classifies shader and resolves all six channels.
// Channels the shader's model does not drive hold their defaults.
//
// The only error is a node that vanished while being read; a missing or
// mistyped plug degrades to the channel's default value.
func ExtractChannels(g host.Graph, shader host.Handle) (ShaderModel, Channels, error) {
	typeName, err := g.TypeName(shader)
	if err != nil {
		return nil, DefaultChannels, fmt.Errorf("classify shader %s: %w", shader, err)
	}
	model := Classify(typeName)
	channels, err := extractModel(g, model, shader)
	return model, channels, err
}

func extractModel(g host.Graph, model ShaderModel, shader host.Handle) (Channels, error) {
	channels := DefaultChannels
	for _, cp := range model.Plugs() {
		v, err := extractChannel(g, shader, cp)
		if err != nil {
			return DefaultChannels, err
		}
		channels[cp.Channel] = v
	}
	return channels, nil
}

// extractChannel resolves one channel. An upstream file texture wins over
// the plug's own value.
func extractChannel(g host.Graph, shader host.Handle, cp ChannelPlug) (ChannelValue, error) {
	plug := host.Plug{Node: shader, Name: cp.Plug}
	src, connected, err := g.Source(plug)
	if err != nil {
		return ChannelValue{}, fmt.Errorf("read %s: %w", plug, err)
	}
	if connected {
		path, ok, err := texturePath(g, src.Node, 0)
		if err != nil {
			return ChannelValue{}, fmt.Errorf("follow %s: %w", plug, err)
		}
		if ok {
			return TextureRef(path), nil
		}
	}
	return readConstant(g, plug, cp)
}

func readConstant(g host.Graph, plug host.Plug, cp ChannelPlug) (ChannelValue, error) {
	if cp.Scalar {
		f, err := g.Float(plug)
		switch {
		case err == nil:
			return Scalar(f), nil
		case host.IsStale(err):
			return ChannelValue{}, fmt.Errorf("read %s: %w", plug, err)
		}
		return DefaultChannels[cp.Channel], nil
	}

	c, err := g.Color(plug)
	switch {
	case err == nil && cp.Channel == renderer.ChannelBump:
		return Vector(c), nil
	case err == nil:
		return Constant(c), nil
	case host.IsStale(err):
		return ChannelValue{}, fmt.Errorf("read %s: %w", plug, err)
	}
	return DefaultChannels[cp.Channel], nil
}

// texturePath follows an upstream node to a file path. A bump2d node is
// followed one level through its bumpValue input.
func texturePath(g host.Graph, node host.Handle, depth int) (string, bool, error) {
	kind, err := g.Kind(node)
	if err != nil {
		return "", false, err
	}

	switch kind {
	case host.KindFileTexture:
		path, err := g.String(host.Plug{Node: node, Name: host.PlugFileTextureName})
		if err != nil {
			if host.IsStale(err) {
				return "", false, err
			}
			return "", false, nil
		}
		return path, path != "", nil

	case host.KindShader:
		if depth > 0 {
			return "", false, nil
		}
		typeName, err := g.TypeName(node)
		if err != nil {
			return "", false, err
		}
		if typeName != bumpTypeName {
			return "", false, nil
		}
		src, ok, err := g.Source(host.Plug{Node: node, Name: host.PlugBumpValue})
		if err != nil || !ok {
			return "", false, err
		}
		return texturePath(g, src.Node, depth+1)
	}
	return "", false, nil
}
