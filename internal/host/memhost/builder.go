package memhost

import (
	"fmt"
	"strings"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
)

// AddMesh creates a transform named name and a mesh shape "<name>Shape"
// under it, returning the shape handle.
func (g *Graph) AddMesh(name string) (host.Handle, error) {
	transform, err := g.AddNode(host.KindTransform, "transform", name, 0)
	if err != nil {
		return 0, err
	}
	shape, err := g.AddNode(host.KindMesh, "mesh", name+"Shape", transform)
	if err != nil {
		return 0, err
	}
	if err := g.DeclareMessage(host.Plug{Node: shape, Name: host.PlugInstObjGroups}); err != nil {
		return 0, err
	}
	return shape, nil
}

// AddCamera creates a transform named name and a camera shape
// "<name>Shape" under it with the host's default lens and clip planes,
// returning the shape handle.
func (g *Graph) AddCamera(name string) (host.Handle, error) {
	transform, err := g.AddNode(host.KindTransform, "transform", name, 0)
	if err != nil {
		return 0, err
	}
	shape, err := g.AddNode(host.KindCamera, "camera", name+"Shape", transform)
	if err != nil {
		return 0, err
	}
	for _, v := range []struct {
		plug string
		f    float32
	}{
		{host.PlugFocalLength, 35},
		{host.PlugHorizontalFilmAperture, 1.417},
		{host.PlugNearClipPlane, 0.1},
		{host.PlugFarClipPlane, 10000},
	} {
		if err := g.SetFloat(host.Plug{Node: shape, Name: v.plug}, v.f); err != nil {
			return 0, err
		}
	}
	for _, plug := range []string{host.PlugTranslate, host.PlugRotate} {
		if err := g.SetColor(host.Plug{Node: transform, Name: plug}, host.Vec3{}); err != nil {
			return 0, err
		}
	}
	return shape, nil
}

// AddShader creates a dependency node of the given native type with an
// outColor plug.
func (g *Graph) AddShader(typeName, name string) (host.Handle, error) {
	h, err := g.AddNode(host.KindShader, typeName, name, 0)
	if err != nil {
		return 0, err
	}
	if err := g.DeclareMessage(host.Plug{Node: h, Name: host.PlugOutColor}); err != nil {
		return 0, err
	}
	return h, nil
}

// AddShadingEngine creates a shading engine node.
func (g *Graph) AddShadingEngine(name string) (host.Handle, error) {
	h, err := g.AddNode(host.KindShadingEngine, "shadingEngine", name, 0)
	if err != nil {
		return 0, err
	}
	if err := g.DeclareMessage(host.Plug{Node: h, Name: host.PlugSurfaceShader}); err != nil {
		return 0, err
	}
	return h, nil
}

// AddFileTexture creates a file texture node pointing at path.
func (g *Graph) AddFileTexture(name, path string) (host.Handle, error) {
	h, err := g.AddNode(host.KindFileTexture, "file", name, 0)
	if err != nil {
		return 0, err
	}
	if err := g.DeclareMessage(host.Plug{Node: h, Name: host.PlugOutColor}); err != nil {
		return 0, err
	}
	if err := g.SetString(host.Plug{Node: h, Name: host.PlugFileTextureName}, path); err != nil {
		return 0, err
	}
	return h, nil
}

// AssignShader connects shader.outColor into engine.surfaceShader.
func (g *Graph) AssignShader(shader, engine host.Handle) error {
	return g.Connect(
		host.Plug{Node: shader, Name: host.PlugOutColor},
		host.Plug{Node: engine, Name: host.PlugSurfaceShader},
	)
}

// UnassignShader breaks shader.outColor -> engine.surfaceShader.
func (g *Graph) UnassignShader(shader, engine host.Handle) error {
	return g.Disconnect(
		host.Plug{Node: shader, Name: host.PlugOutColor},
		host.Plug{Node: engine, Name: host.PlugSurfaceShader},
	)
}

// AssignMesh connects mesh.instObjGroups into the next free element of
// engine.dagSetMembers.
func (g *Graph) AssignMesh(mesh, engine host.Handle) error {
	g.mu.RLock()
	index := 0
	for dst := range g.sourceOf {
		if dst.Node == engine && strings.HasPrefix(dst.Name, host.PlugDagSetMembers+"[") {
			index++
		}
	}
	var free string
	for i := 0; i <= index; i++ {
		name := fmt.Sprintf("%s[%d]", host.PlugDagSetMembers, i)
		if _, taken := g.sourceOf[host.Plug{Node: engine, Name: name}]; !taken {
			free = name
			break
		}
	}
	g.mu.RUnlock()

	return g.Connect(
		host.Plug{Node: mesh, Name: host.PlugInstObjGroups},
		host.Plug{Node: engine, Name: free},
	)
}

// UnassignMesh breaks the connection between mesh and engine, whatever
// dagSetMembers element it uses.
func (g *Graph) UnassignMesh(mesh, engine host.Handle) error {
	src := host.Plug{Node: mesh, Name: host.PlugInstObjGroups}
	g.mu.RLock()
	var dst host.Plug
	found := false
	for _, d := range g.destsOf[src] {
		if d.Node == engine {
			dst, found = d, true
			break
		}
	}
	g.mu.RUnlock()
	if !found {
		return fmt.Errorf("%s -> %s: %w", src, engine, host.ErrNotConnected)
	}
	return g.Disconnect(src, dst)
}

// ConnectTexture connects a file texture's outColor into a shader channel plug.
func (g *Graph) ConnectTexture(file, shader host.Handle, plug string) error {
	return g.Connect(
		host.Plug{Node: file, Name: host.PlugOutColor},
		host.Plug{Node: shader, Name: plug},
	)
}
