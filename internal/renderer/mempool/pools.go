// Package mempool provides in-memory renderer pools.
//
// The pools record every call so that callers can assert on what the
// synchronizer did to the renderer, and allow failures to be injected.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// ErrInjected is returned by calls made to fail on purpose.
var ErrInjected = errors.New("injected failure")

// MaterialState is the observable state of one material.
type MaterialState struct {
	Textures    [renderer.NumChannels]renderer.TextureHandle
	Constants   [renderer.NumChannels][3]float32
	UseConstant [renderer.NumChannels]bool

	// Writes counts setter calls per channel.
	Writes [renderer.NumChannels]int
}

type material struct {
	mu    sync.Mutex
	state MaterialState
}

func (m *material) SetTexture(ch renderer.Channel, tex renderer.TextureHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Textures[ch] = tex
	m.state.Writes[ch]++
}

func (m *material) SetConstant(ch renderer.Channel, v [3]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Constants[ch] = v
	m.state.Writes[ch]++
}

func (m *material) UseConstant(ch renderer.Channel, use bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.UseConstant[ch] = use
}

// MaterialPool is an in-memory renderer.MaterialPool.
type MaterialPool struct {
	mu        sync.Mutex
	materials map[renderer.MaterialHandle]*material
	next      renderer.MaterialHandle
	limit     int
	created   int
	released  int
}

// NewMaterialPool creates a pool. A positive limit caps live materials.
func NewMaterialPool(limit int) *MaterialPool {
	return &MaterialPool{
		materials: make(map[renderer.MaterialHandle]*material),
		limit:     limit,
	}
}

// Create implements renderer.MaterialPool.
func (p *MaterialPool) Create() (renderer.MaterialHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && len(p.materials) >= p.limit {
		return 0, fmt.Errorf("%d live materials: %w", len(p.materials), renderer.ErrPoolExhausted)
	}
	p.next++
	p.materials[p.next] = &material{}
	p.created++
	return p.next, nil
}

// Material implements renderer.MaterialPool.
func (p *MaterialPool) Material(h renderer.MaterialHandle) (renderer.Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.materials[h]
	if !ok {
		return nil, fmt.Errorf("material %d: %w", h, renderer.ErrUnknownHandle)
	}
	return m, nil
}

// Release implements renderer.MaterialPool.
func (p *MaterialPool) Release(h renderer.MaterialHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.materials[h]; !ok {
		return fmt.Errorf("material %d: %w", h, renderer.ErrUnknownHandle)
	}
	delete(p.materials, h)
	p.released++
	return nil
}

// SetLimit changes the live material cap. Zero removes it.
func (p *MaterialPool) SetLimit(limit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = limit
}

// State returns a copy of a material's state.
func (p *MaterialPool) State(h renderer.MaterialHandle) (MaterialState, bool) {
	p.mu.Lock()
	m, ok := p.materials[h]
	p.mu.Unlock()
	if !ok {
		return MaterialState{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, true
}

// Live returns the number of live materials.
func (p *MaterialPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.materials)
}

// Created returns how many materials have been created.
func (p *MaterialPool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// TexturePool is an in-memory renderer.TexturePool.
type TexturePool struct {
	mu       sync.Mutex
	byPath   map[string]renderer.TextureHandle
	paths    map[renderer.TextureHandle]string
	failing  map[string]bool
	next     renderer.TextureHandle
	fallback renderer.TextureHandle
	loads    int
}

// NewTexturePool creates a texture pool with its default texture.
func NewTexturePool() *TexturePool {
	p := &TexturePool{
		byPath:  make(map[string]renderer.TextureHandle),
		paths:   make(map[renderer.TextureHandle]string),
		failing: make(map[string]bool),
	}
	p.next++
	p.fallback = p.next
	return p
}

// Load implements renderer.TexturePool. Every call counts as a load, even
// for a path that is already resident.
func (p *TexturePool) Load(path string) (renderer.TextureHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	if path == "" || p.failing[path] {
		return 0, fmt.Errorf("%q: %w", path, renderer.ErrTextureLoad)
	}
	if h, ok := p.byPath[path]; ok {
		return h, nil
	}
	p.next++
	p.byPath[path] = p.next
	p.paths[p.next] = path
	return p.next, nil
}

// Default implements renderer.TexturePool.
func (p *TexturePool) Default() renderer.TextureHandle {
	return p.fallback
}

// Release implements renderer.TexturePool.
func (p *TexturePool) Release(h renderer.TextureHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	path, ok := p.paths[h]
	if !ok {
		return fmt.Errorf("texture %d: %w", h, renderer.ErrUnknownHandle)
	}
	delete(p.paths, h)
	delete(p.byPath, path)
	return nil
}

// FailPath makes every load of path fail.
func (p *TexturePool) FailPath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[path] = true
}

// Path returns the path a texture was loaded from.
func (p *TexturePool) Path(h renderer.TextureHandle) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	path, ok := p.paths[h]
	return path, ok
}

// Loads returns the number of Load calls.
func (p *TexturePool) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

// Resident returns the number of loaded textures, excluding the default.
func (p *TexturePool) Resident() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paths)
}

// MeshNode is the observable state of one renderer mesh node.
type MeshNode struct {
	Name     string
	Material renderer.MaterialHandle
	Revision int
}

// SceneGraph is an in-memory renderer.SceneGraph.
type SceneGraph struct {
	mu     sync.Mutex
	meshes map[renderer.NodeID]*MeshNode
	next   renderer.NodeID
}

// NewSceneGraph creates an empty scene graph.
func NewSceneGraph() *SceneGraph {
	return &SceneGraph{meshes: make(map[renderer.NodeID]*MeshNode)}
}

// AddMesh implements renderer.SceneGraph.
func (s *SceneGraph) AddMesh(name string) (renderer.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.meshes[s.next] = &MeshNode{Name: name}
	return s.next, nil
}

// UpdateMesh implements renderer.SceneGraph.
func (s *SceneGraph) UpdateMesh(id renderer.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meshes[id]
	if !ok {
		return fmt.Errorf("mesh node %d: %w", id, renderer.ErrUnknownHandle)
	}
	m.Revision++
	return nil
}

// RemoveMesh implements renderer.SceneGraph.
func (s *SceneGraph) RemoveMesh(id renderer.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meshes[id]; !ok {
		return fmt.Errorf("mesh node %d: %w", id, renderer.ErrUnknownHandle)
	}
	delete(s.meshes, id)
	return nil
}

// SetMaterial implements renderer.SceneGraph.
func (s *SceneGraph) SetMaterial(id renderer.NodeID, mat renderer.MaterialHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meshes[id]
	if !ok {
		return fmt.Errorf("mesh node %d: %w", id, renderer.ErrUnknownHandle)
	}
	m.Material = mat
	return nil
}

// Mesh returns a copy of a mesh node.
func (s *SceneGraph) Mesh(id renderer.NodeID) (MeshNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meshes[id]
	if !ok {
		return MeshNode{}, false
	}
	return *m, true
}

// Meshes returns all mesh node ids in ascending order.
func (s *SceneGraph) Meshes() []renderer.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]renderer.NodeID, 0, len(s.meshes))
	for id := range s.meshes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Camera is an in-memory renderer.CameraSink.
type Camera struct {
	mu      sync.Mutex
	cam     renderer.Camera
	updates int
	fail    bool
}

// NewCamera creates a sink holding renderer.DefaultCamera.
func NewCamera() *Camera {
	return &Camera{cam: renderer.DefaultCamera()}
}

// SetCamera implements renderer.CameraSink.
func (c *Camera) SetCamera(cam renderer.Camera) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("set camera: %w", ErrInjected)
	}
	c.cam = cam
	c.updates++
	return nil
}

// FailUpdates makes every following SetCamera fail while fail is true.
func (c *Camera) FailUpdates(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

// State returns the current camera and how many updates were accepted.
func (c *Camera) State() (renderer.Camera, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam, c.updates
}

// FrameSource is a settable renderer.OutputSource.
type FrameSource struct {
	mu    sync.Mutex
	frame renderer.Frame
}

// LatestFrame implements renderer.OutputSource.
func (f *FrameSource) LatestFrame() renderer.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

// Produce publishes a solid color frame and a cleared depth frame of the
// given size. Color is RGBA8, depth is 32-bit.
func (f *FrameSource) Produce(width, height int, rgba [4]byte) {
	color := &renderer.CPUTexture{Width: width, Height: height, BytesPerPixel: 4}
	color.Data = make([]byte, color.Size())
	for i := 0; i < len(color.Data); i += 4 {
		copy(color.Data[i:i+4], rgba[:])
	}
	depth := &renderer.CPUTexture{Width: width, Height: height, BytesPerPixel: 4}
	depth.Data = make([]byte, depth.Size())

	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = renderer.Frame{Color: color, Depth: depth}
}

// Set publishes an arbitrary frame.
func (f *FrameSource) Set(frame renderer.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = frame
}
