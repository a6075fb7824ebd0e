// Package model mirrors host mesh nodes into the renderer's scene graph.
//
// The Parser tracks each non-intermediate mesh exactly once, owns its
// renderer node, and keeps an attribute-changed subscription on it so
// geometry edits bump the node's revision. It is also the sink the
// material resolver assigns materials through.
package model

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// ErrMissingDependency is returned by New when a collaborator is not set.
var ErrMissingDependency = errors.New("missing model parser dependency")

// Config holds the collaborators of a Parser.
type Config struct {
	Graph  host.Graph
	Scene  renderer.SceneGraph
	Logger *log.Logger

	// Default is the material new meshes render with until the resolver
	// assigns one. Zero leaves new nodes without a material.
	Default renderer.MaterialHandle
}

type object struct {
	node     renderer.NodeID
	name     string
	material renderer.MaterialHandle
	sub      host.Subscription
}

// Parser tracks host meshes. Not safe for concurrent use.
type Parser struct {
	graph    host.Graph
	scene    renderer.SceneGraph
	logger   *log.Logger
	fallback renderer.MaterialHandle
	objects  map[host.Handle]*object
}

// New creates a parser.
func New(cfg Config) (*Parser, error) {
	if cfg.Graph == nil || cfg.Scene == nil {
		return nil, ErrMissingDependency
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[model] ", log.LstdFlags)
	}
	return &Parser{
		graph:    cfg.Graph,
		scene:    cfg.Scene,
		logger:   cfg.Logger,
		fallback: cfg.Default,
		objects:  make(map[host.Handle]*object),
	}, nil
}

// Add starts tracking mesh. Intermediate meshes and meshes already tracked
// are ignored. Returns true when a new renderer node was created.
func (p *Parser) Add(mesh host.Handle) (bool, error) {
	if _, ok := p.objects[mesh]; ok {
		return false, nil
	}
	intermediate, err := p.graph.IsIntermediate(mesh)
	if err != nil {
		return false, fmt.Errorf("query mesh %s: %w", mesh, err)
	}
	if intermediate {
		return false, nil
	}
	name, err := p.graph.Name(mesh)
	if err != nil {
		return false, fmt.Errorf("query mesh %s: %w", mesh, err)
	}

	node, err := p.scene.AddMesh(name)
	if err != nil {
		return false, fmt.Errorf("add renderer mesh %s: %w", name, err)
	}
	sub, err := p.graph.OnAttributeChanged(mesh, p.onMeshChanged)
	if err != nil {
		if rerr := p.scene.RemoveMesh(node); rerr != nil {
			p.logger.Printf("Warning: failed to remove renderer mesh %s: %v", name, rerr)
		}
		return false, fmt.Errorf("subscribe to mesh %s: %w", name, err)
	}
	callback.Register(sub)

	obj := &object{node: node, name: name, sub: sub}
	if p.fallback.IsValid() {
		if err := p.scene.SetMaterial(node, p.fallback); err != nil {
			p.logger.Printf("Warning: default material for %s: %v", name, err)
		} else {
			obj.material = p.fallback
		}
	}
	p.objects[mesh] = obj
	return true, nil
}

// Remove stops tracking mesh and deletes its renderer node. Removing an
// untracked mesh is a no-op.
func (p *Parser) Remove(mesh host.Handle) error {
	obj, ok := p.objects[mesh]
	if !ok {
		return nil
	}
	delete(p.objects, mesh)

	var errs []error
	if err := callback.Cancel(obj.sub.ID); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe mesh %s: %w", obj.name, err))
	}
	if err := p.scene.RemoveMesh(obj.node); err != nil {
		errs = append(errs, fmt.Errorf("remove renderer mesh %s: %w", obj.name, err))
	}
	return errors.Join(errs...)
}

// SetMaterial assigns mat to mesh's renderer node. Untracked meshes are
// ignored; the resolver may name meshes the parser never accepted. A mesh
// the resolver sees before Add keeps the default material until its next
// assignment.
func (p *Parser) SetMaterial(mesh host.Handle, mat renderer.MaterialHandle) error {
	obj, ok := p.objects[mesh]
	if !ok {
		return nil
	}
	if err := p.scene.SetMaterial(obj.node, mat); err != nil {
		return fmt.Errorf("assign material %d to %s: %w", mat, obj.name, err)
	}
	obj.material = mat
	return nil
}

// MaterialOf returns the material last assigned to mesh.
func (p *Parser) MaterialOf(mesh host.Handle) (renderer.MaterialHandle, bool) {
	obj, ok := p.objects[mesh]
	if !ok {
		return 0, false
	}
	return obj.material, true
}

// NodeOf returns the renderer node of mesh.
func (p *Parser) NodeOf(mesh host.Handle) (renderer.NodeID, bool) {
	obj, ok := p.objects[mesh]
	if !ok {
		return 0, false
	}
	return obj.node, true
}

// IsTracked reports whether mesh is tracked.
func (p *Parser) IsTracked(mesh host.Handle) bool {
	_, ok := p.objects[mesh]
	return ok
}

// Tracked returns every tracked mesh in ascending handle order.
func (p *Parser) Tracked() []host.Handle {
	out := make([]host.Handle, 0, len(p.objects))
	for h := range p.objects {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of tracked meshes.
func (p *Parser) Count() int {
	return len(p.objects)
}

// Close removes every tracked mesh.
func (p *Parser) Close() error {
	var errs []error
	for _, mesh := range p.Tracked() {
		if err := p.Remove(mesh); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Parser) onMeshChanged(mesh host.Handle, plug string) {
	obj, ok := p.objects[mesh]
	if !ok {
		return
	}
	if err := p.scene.UpdateMesh(obj.node); err != nil {
		p.logger.Printf("Warning: mesh %s.%s: %v", obj.name, plug, err)
	}
}
