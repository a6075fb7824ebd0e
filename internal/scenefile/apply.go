package scenefile

import (
	"errors"
	"fmt"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host/memhost"
)

// ErrUnknownNode is returned when a step names a node that does not exist.
var ErrUnknownNode = errors.New("unknown node")

// Hooks receive the steps that act on the viewport rather than the graph.
// A nil hook skips its steps.
type Hooks struct {
	Frame   func(width, height int) error
	Refresh func(shader host.Handle) error
}

// Result summarizes an applied document.
type Result struct {
	Applied int
	Frames  int
	Created map[string]host.Handle
}

// Apply runs every step of doc against g in order and stops at the first
// failing step.
func Apply(g *memhost.Graph, doc *Document, hooks Hooks) (Result, error) {
	res := Result{Created: make(map[string]host.Handle)}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		if err := apply(g, step, hooks, &res); err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		res.Applied++
	}
	return res, nil
}

func apply(g *memhost.Graph, s *Step, hooks Hooks, res *Result) error {
	if err := s.Validate(); err != nil {
		return err
	}

	switch s.Op {
	case OpMesh:
		h, err := g.AddMesh(s.Name)
		if err != nil {
			return err
		}
		res.Created[s.Name] = h
	case OpCamera:
		h, err := g.AddCamera(s.Name)
		if err != nil {
			return err
		}
		res.Created[s.Name] = h
	case OpShader:
		h, err := g.AddShader(s.Type, s.Name)
		if err != nil {
			return err
		}
		res.Created[s.Name] = h
	case OpEngine:
		h, err := g.AddShadingEngine(s.Name)
		if err != nil {
			return err
		}
		res.Created[s.Name] = h
	case OpFile:
		h, err := g.AddFileTexture(s.Name, s.Path)
		if err != nil {
			return err
		}
		res.Created[s.Name] = h

	case OpAssign, OpUnassign:
		mesh, err := meshNode(g, s.Node)
		if err != nil {
			return err
		}
		engine, err := node(g, s.Engine)
		if err != nil {
			return err
		}
		if s.Op == OpAssign {
			return g.AssignMesh(mesh, engine)
		}
		return g.UnassignMesh(mesh, engine)

	case OpBind, OpUnbind:
		shader, err := node(g, s.Shader)
		if err != nil {
			return err
		}
		engine, err := node(g, s.Engine)
		if err != nil {
			return err
		}
		if s.Op == OpBind {
			return g.AssignShader(shader, engine)
		}
		return g.UnassignShader(shader, engine)

	case OpTexture:
		file, err := node(g, s.Node)
		if err != nil {
			return err
		}
		shader, err := node(g, s.Shader)
		if err != nil {
			return err
		}
		return g.ConnectTexture(file, shader, s.Plug)

	case OpSet:
		h, err := node(g, s.Node)
		if err != nil {
			return err
		}
		p := host.Plug{Node: h, Name: s.Plug}
		switch {
		case s.Float != nil:
			return g.SetFloat(p, *s.Float)
		case s.Color != nil:
			return g.SetColor(p, host.Vec3{s.Color[0], s.Color[1], s.Color[2]})
		default:
			return g.SetString(p, *s.Text)
		}

	case OpIntermediate:
		mesh, err := meshNode(g, s.Node)
		if err != nil {
			return err
		}
		return g.SetIntermediate(mesh, true)

	case OpRemove:
		h, err := node(g, s.Node)
		if err != nil {
			return err
		}
		return g.RemoveNode(h)

	case OpRefresh:
		shader, err := node(g, s.Shader)
		if err != nil {
			return err
		}
		if hooks.Refresh != nil {
			return hooks.Refresh(shader)
		}

	case OpFrame:
		res.Frames++
		if hooks.Frame != nil {
			return hooks.Frame(s.Width, s.Height)
		}
	}
	return nil
}

func node(g *memhost.Graph, name string) (host.Handle, error) {
	h, ok := g.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownNode)
	}
	return h, nil
}

// meshNode resolves a mesh by shape name or by the name of its transform.
func meshNode(g *memhost.Graph, name string) (host.Handle, error) {
	if h, ok := g.Lookup(name + "Shape"); ok {
		return h, nil
	}
	return node(g, name)
}
