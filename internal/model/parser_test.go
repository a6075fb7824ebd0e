package model

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host/memhost"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer/mempool"
)

func newParser(t *testing.T) (*Parser, *memhost.Graph, *mempool.SceneGraph) {
	t.Helper()
	callback.RevokeAll()
	t.Cleanup(func() { callback.RevokeAll() })

	g := memhost.New()
	scene := mempool.NewSceneGraph()
	p, err := New(Config{Graph: g, Scene: scene, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, g, scene
}

func TestAddTracksOnce(t *testing.T) {
	p, g, scene := newParser(t)
	mesh, err := g.AddMesh("pCube1")
	if err != nil {
		t.Fatalf("AddMesh failed: %v", err)
	}

	added, err := p.Add(mesh)
	if err != nil || !added {
		t.Fatalf("Add() = %v, %v; want true, nil", added, err)
	}
	added, err = p.Add(mesh)
	if err != nil || added {
		t.Errorf("second Add() = %v, %v; want false, nil", added, err)
	}

	if p.Count() != 1 || len(scene.Meshes()) != 1 {
		t.Errorf("Count() = %d, renderer meshes = %d; want 1 and 1", p.Count(), len(scene.Meshes()))
	}
	if callback.Count() != 1 {
		t.Errorf("callback.Count() = %d, want 1", callback.Count())
	}
}

func TestAddSkipsIntermediate(t *testing.T) {
	p, g, _ := newParser(t)
	mesh, _ := g.AddMesh("pCube1")
	if err := g.SetIntermediate(mesh, true); err != nil {
		t.Fatal(err)
	}

	added, err := p.Add(mesh)
	if err != nil || added {
		t.Errorf("Add(intermediate) = %v, %v; want false, nil", added, err)
	}
	if p.IsTracked(mesh) {
		t.Error("intermediate mesh should not be tracked")
	}
}

func TestAddStaleMesh(t *testing.T) {
	p, g, _ := newParser(t)
	mesh, _ := g.AddMesh("pCube1")
	if err := g.RemoveNode(mesh); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Add(mesh); !host.IsStale(err) {
		t.Errorf("Add(removed) = %v, want stale node error", err)
	}
}

func TestAddSubscriptionFailureRollsBack(t *testing.T) {
	p, g, scene := newParser(t)
	mesh, _ := g.AddMesh("pCube1")
	g.SetSubscribeHook(func(class string) error {
		return errors.New("host refused")
	})

	if _, err := p.Add(mesh); err == nil {
		t.Fatal("Add should fail when the host refuses the subscription")
	}
	if len(scene.Meshes()) != 0 {
		t.Error("renderer mesh should be removed after a failed subscription")
	}
}

func TestAttributeEditBumpsRevision(t *testing.T) {
	p, g, scene := newParser(t)
	mesh, _ := g.AddMesh("pCube1")
	if _, err := p.Add(mesh); err != nil {
		t.Fatal(err)
	}

	if err := g.SetFloat(host.Plug{Node: mesh, Name: "smoothLevel"}, 2); err != nil {
		t.Fatal(err)
	}
	node, _ := p.NodeOf(mesh)
	m, ok := scene.Mesh(node)
	if !ok || m.Revision != 1 {
		t.Errorf("revision = %d, want 1", m.Revision)
	}
}

func TestRemoveAndSetMaterial(t *testing.T) {
	p, g, scene := newParser(t)
	mesh, _ := g.AddMesh("pCube1")
	p.Add(mesh)

	if err := p.SetMaterial(mesh, 7); err != nil {
		t.Fatalf("SetMaterial failed: %v", err)
	}
	node, _ := p.NodeOf(mesh)
	if m, _ := scene.Mesh(node); m.Material != 7 {
		t.Errorf("renderer material = %d, want 7", m.Material)
	}
	if err := p.SetMaterial(host.Handle(999), 7); err != nil {
		t.Errorf("SetMaterial on untracked mesh = %v, want nil", err)
	}

	if err := p.Remove(mesh); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if p.Count() != 0 || len(scene.Meshes()) != 0 {
		t.Error("mesh should be gone from parser and renderer")
	}
	if g.LiveCallbacks() != 0 || callback.Count() != 0 {
		t.Errorf("subscriptions left: host %d, registry %d", g.LiveCallbacks(), callback.Count())
	}
	if err := p.Remove(mesh); err != nil {
		t.Errorf("second Remove = %v, want nil", err)
	}
}

func TestClose(t *testing.T) {
	p, g, scene := newParser(t)
	for _, name := range []string{"a", "b", "c"} {
		mesh, _ := g.AddMesh(name)
		p.Add(mesh)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if p.Count() != 0 || len(scene.Meshes()) != 0 || g.LiveCallbacks() != 0 {
		t.Error("Close should release every mesh and subscription")
	}
}

func TestAddSeedsDefaultMaterial(t *testing.T) {
	callback.RevokeAll()
	t.Cleanup(func() { callback.RevokeAll() })

	g := memhost.New()
	scene := mempool.NewSceneGraph()
	p, err := New(Config{Graph: g, Scene: scene, Logger: log.New(io.Discard, "", 0), Default: 7})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	mesh, _ := g.AddMesh("pCube1")
	if _, err := p.Add(mesh); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if mat, ok := p.MaterialOf(mesh); !ok || mat != 7 {
		t.Errorf("MaterialOf() = %d, %v; want 7, true", mat, ok)
	}
	node, _ := p.NodeOf(mesh)
	if m, _ := scene.Mesh(node); m.Material != 7 {
		t.Errorf("renderer node material = %d, want 7", m.Material)
	}
}
