// Package material maps host shading networks onto renderer materials.
//
// A Resolver keeps one binding per shading engine. A binding moves through
//
//	Unbound -> Bound(Unsupported) | Bound(Supported) -> Unbound
//
// as shaders are connected to and disconnected from the engine. A supported
// shader gets a renderer material with all six channels resolved and a
// live-edit subscription that re-resolves single channels as the shader is
// edited. Meshes whose engine has no supported shader render with the
// default material.
//
// A Resolver is not safe for concurrent use. All calls must come from the
// goroutine that delivers host events.
package material

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// Assigner receives the material each mesh should render with.
type Assigner interface {
	SetMaterial(mesh host.Handle, mat renderer.MaterialHandle) error
}

// Config holds the collaborators of a Resolver.
type Config struct {
	Graph     host.Graph
	Materials renderer.MaterialPool
	Textures  renderer.TexturePool
	Defaults  Defaults
	Assigner  Assigner // optional
	Logger    *log.Logger
}

// Stats counts resolver work.
type Stats struct {
	Builds          int // full six-channel builds
	ChannelUpdates  int // single-channel live-edit updates
	TextureFailures int
}

// BindingInfo is a snapshot of one shading engine binding.
// Material is zero when the engine renders with the default material;
// WatchID is zero when no live-edit subscription exists.
type BindingInfo struct {
	Engine   host.Handle
	Shader   host.Handle
	Type     SurfaceShaderType
	TypeName string
	Material renderer.MaterialHandle
	Meshes   []host.Handle
	Channels Channels
	WatchID  host.CallbackID
}

// Watched reports whether the binding has a live-edit subscription.
func (b BindingInfo) Watched() bool {
	return b.WatchID != 0
}

type binding struct {
	engine   host.Handle
	shader   host.Handle
	model    ShaderModel
	parsed   bool
	material renderer.MaterialHandle
	channels Channels
	held     [renderer.NumChannels]string
	meshes   map[host.Handle]struct{}
	watch    *shaderWatch
}

// Resolver builds and maintains renderer materials for shading engines.
type Resolver struct {
	graph    host.Graph
	manager  *Manager
	textures *TextureCatalogue
	defaults Defaults
	assigner Assigner
	logger   *log.Logger

	bindings   map[host.Handle]*binding
	membership map[host.Handle]host.Handle
	stats      Stats
}

// New creates a resolver.
func New(cfg Config) (*Resolver, error) {
	switch {
	case cfg.Graph == nil:
		return nil, fmt.Errorf("graph: %w", ErrMissingDependency)
	case cfg.Materials == nil:
		return nil, fmt.Errorf("material pool: %w", ErrMissingDependency)
	case cfg.Textures == nil:
		return nil, fmt.Errorf("texture pool: %w", ErrMissingDependency)
	case !cfg.Defaults.Material.IsValid():
		return nil, fmt.Errorf("default material: %w", ErrMissingDependency)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[material] ", log.LstdFlags)
	}
	return &Resolver{
		graph:      cfg.Graph,
		manager:    NewManager(cfg.Materials),
		textures:   NewTextureCatalogue(cfg.Textures),
		defaults:   cfg.Defaults,
		assigner:   cfg.Assigner,
		logger:     cfg.Logger,
		bindings:   make(map[host.Handle]*binding),
		membership: make(map[host.Handle]host.Handle),
	}, nil
}

// SetAssigner changes the material sink.
func (r *Resolver) SetAssigner(a Assigner) {
	r.assigner = a
}

// OnMeshAdded records a mesh's shading engine membership. The engine is
// parsed on first sighting; later meshes join the existing binding
// without a rebuild. A mesh without an engine gets the default material.
func (r *Resolver) OnMeshAdded(mesh host.Handle) error {
	engines, err := r.graph.ShadingEngines(mesh)
	if err != nil {
		return fmt.Errorf("shading engines of %s: %w", mesh, err)
	}
	if len(engines) == 0 {
		r.leave(mesh)
		return r.assign(mesh, r.defaults.Material)
	}

	engine := engines[0]
	if b, ok := r.bindings[engine]; ok && b.parsed {
		r.join(b, mesh)
		return r.assign(mesh, r.materialOf(b))
	}
	b := r.ensure(engine)
	r.join(b, mesh)
	return r.parse(b)
}

// ConnectMeshToShadingEngine adds mesh to engine's member set.
func (r *Resolver) ConnectMeshToShadingEngine(mesh, engine host.Handle) error {
	b, ok := r.bindings[engine]
	if !ok || !b.parsed {
		b = r.ensure(engine)
		r.join(b, mesh)
		return r.parse(b)
	}
	r.join(b, mesh)
	return r.assign(mesh, r.materialOf(b))
}

// DisconnectMeshFromShadingEngine removes mesh from engine's member set
// and reverts it to the default material. The engine's material is left
// untouched.
func (r *Resolver) DisconnectMeshFromShadingEngine(mesh, engine host.Handle) error {
	b, ok := r.bindings[engine]
	if !ok {
		return nil
	}
	if _, member := b.meshes[mesh]; !member {
		return nil
	}
	delete(b.meshes, mesh)
	if r.membership[mesh] == engine {
		delete(r.membership, mesh)
	}
	r.prune(b)
	return r.assign(mesh, r.defaults.Material)
}

// ConnectShaderToShadingEngine binds shader to engine and (re)builds its
// material when the shader is supported.
func (r *Resolver) ConnectShaderToShadingEngine(shader, engine host.Handle) error {
	return r.bind(r.ensure(engine), shader)
}

// DisconnectShaderFromShadingEngine unbinds shader from engine. The watch
// is cancelled, the material handle goes back to the manager's free list
// and member meshes revert to the default material.
func (r *Resolver) DisconnectShaderFromShadingEngine(shader, engine host.Handle) error {
	b, ok := r.bindings[engine]
	if !ok || b.shader != shader {
		return nil
	}
	r.unwatch(b)
	r.dropMaterial(b)
	b.shader = 0
	b.model = nil
	err := r.assignAll(b)
	r.prune(b)
	return err
}

// OnCreateSurfaceShader re-resolves every binding that references shader.
func (r *Resolver) OnCreateSurfaceShader(shader host.Handle) error {
	var errs []error
	for _, b := range r.boundTo(shader) {
		if err := r.bind(b, shader); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnRemoveSurfaceShader unbinds shader from every engine referencing it.
func (r *Resolver) OnRemoveSurfaceShader(shader host.Handle) error {
	var errs []error
	for _, b := range r.boundTo(shader) {
		if err := r.DisconnectShaderFromShadingEngine(shader, b.engine); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForgetMesh drops a removed mesh from its binding without touching the
// renderer.
func (r *Resolver) ForgetMesh(mesh host.Handle) {
	r.leave(mesh)
}

// Extract resolves shader's channels without building anything.
func (r *Resolver) Extract(shader host.Handle) (Channels, error) {
	_, channels, err := ExtractChannels(r.graph, shader)
	return channels, err
}

// MaterialFor returns the material mesh renders with.
func (r *Resolver) MaterialFor(mesh host.Handle) renderer.MaterialHandle {
	engine, ok := r.membership[mesh]
	if !ok {
		return r.defaults.Material
	}
	b, ok := r.bindings[engine]
	if !ok {
		return r.defaults.Material
	}
	return r.materialOf(b)
}

// EngineOf returns the shading engine mesh is a member of.
func (r *Resolver) EngineOf(mesh host.Handle) (host.Handle, bool) {
	engine, ok := r.membership[mesh]
	return engine, ok
}

// ShaderOf returns the shader bound to engine.
func (r *Resolver) ShaderOf(engine host.Handle) (host.Handle, bool) {
	b, ok := r.bindings[engine]
	if !ok || !b.shader.IsValid() {
		return 0, false
	}
	return b.shader, true
}

// Bindings returns a snapshot of every binding, ordered by engine.
func (r *Resolver) Bindings() []BindingInfo {
	out := make([]BindingInfo, 0, len(r.bindings))
	for _, b := range r.sortedBindings() {
		info := BindingInfo{
			Engine:   b.engine,
			Shader:   b.shader,
			Type:     ShaderUnsupported,
			Material: b.material,
			Meshes:   sortedMeshes(b),
			Channels: b.channels,
		}
		if b.model != nil {
			info.Type = b.model.Type()
			info.TypeName = b.model.TypeName()
		}
		if b.watch != nil {
			info.WatchID = b.watch.sub.ID
		}
		out = append(out, info)
	}
	return out
}

// SubscriptionCount returns the number of live shader watches.
func (r *Resolver) SubscriptionCount() int {
	n := 0
	for _, b := range r.bindings {
		if b.watch != nil {
			n++
		}
	}
	return n
}

// Stats returns the work counters.
func (r *Resolver) Stats() Stats {
	return r.stats
}

// Manager exposes the material handle manager.
func (r *Resolver) Manager() *Manager {
	return r.manager
}

// Textures exposes the texture catalogue.
func (r *Resolver) Textures() *TextureCatalogue {
	return r.textures
}

// Defaults returns the fallback material and texture.
func (r *Resolver) Defaults() Defaults {
	return r.defaults
}

// Close cancels every watch and releases every material and texture the
// resolver created. The defaults are not released.
func (r *Resolver) Close() error {
	for _, b := range r.sortedBindings() {
		r.unwatch(b)
	}
	r.bindings = make(map[host.Handle]*binding)
	r.membership = make(map[host.Handle]host.Handle)
	return errors.Join(r.textures.Close(), r.manager.Close())
}

// ===== Internals =====

func (r *Resolver) ensure(engine host.Handle) *binding {
	b, ok := r.bindings[engine]
	if !ok {
		b = &binding{engine: engine, meshes: make(map[host.Handle]struct{})}
		r.bindings[engine] = b
	}
	return b
}

func (r *Resolver) join(b *binding, mesh host.Handle) {
	if prev, ok := r.membership[mesh]; ok && prev != b.engine {
		r.leave(mesh)
	}
	b.meshes[mesh] = struct{}{}
	r.membership[mesh] = b.engine
}

func (r *Resolver) leave(mesh host.Handle) {
	engine, ok := r.membership[mesh]
	if !ok {
		return
	}
	delete(r.membership, mesh)
	if b, ok := r.bindings[engine]; ok {
		delete(b.meshes, mesh)
		r.prune(b)
	}
}

// prune deletes a binding with neither shader nor members.
func (r *Resolver) prune(b *binding) {
	if len(b.meshes) == 0 && !b.shader.IsValid() {
		delete(r.bindings, b.engine)
	}
}

// parse reads the engine's surface shader and binds it.
func (r *Resolver) parse(b *binding) error {
	src, ok, err := r.graph.Source(host.Plug{Node: b.engine, Name: host.PlugSurfaceShader})
	if err != nil {
		return fmt.Errorf("surface shader of %s: %w", b.engine, err)
	}
	if !ok {
		b.parsed = true
		return r.assignAll(b)
	}
	return r.bind(b, src.Node)
}

// bind classifies shader, builds its material and starts watching it.
func (r *Resolver) bind(b *binding, shader host.Handle) error {
	typeName, err := r.graph.TypeName(shader)
	if err != nil {
		return fmt.Errorf("classify shader %s: %w", shader, err)
	}
	model := Classify(typeName)

	if b.shader != shader {
		r.unwatch(b)
	}
	b.shader = shader
	b.model = model
	b.parsed = true

	if !model.Type().IsSupported() {
		r.unwatch(b)
		r.dropMaterial(b)
		return r.assignAll(b)
	}

	channels, err := extractModel(r.graph, model, shader)
	if err != nil {
		return err
	}
	buildErr := r.build(b, channels)
	if !b.material.IsValid() {
		return errors.Join(buildErr, r.assignAll(b))
	}
	return errors.Join(buildErr, r.watch(b), r.assignAll(b))
}

// build pushes all six channels into the engine's material.
func (r *Resolver) build(b *binding, channels Channels) error {
	h, err := r.manager.Acquire(b.engine)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	mat, err := r.manager.Material(h)
	if err != nil {
		r.manager.Release(b.engine)
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	b.material = h

	var errs []error
	for _, ch := range renderer.Channels {
		if err := r.push(b, mat, ch, channels[ch]); err != nil {
			errs = append(errs, err)
		}
	}
	r.stats.Builds++
	return errors.Join(errs...)
}

// push writes one channel. The new texture is acquired before the old one
// is released so a shared path is never reloaded.
func (r *Resolver) push(b *binding, mat renderer.Material, ch renderer.Channel, v ChannelValue) error {
	var err error
	held := ""
	if v.IsTexture() {
		tex, terr := r.textures.Acquire(v.Path)
		if terr != nil {
			r.stats.TextureFailures++
			tex = r.defaults.Texture
			err = fmt.Errorf("channel %s: %w", ch, terr)
		} else {
			held = v.Path
		}
		mat.SetTexture(ch, tex)
		mat.UseConstant(ch, false)
	} else {
		// The previous texture may be released below; never leave it bound.
		mat.SetTexture(ch, r.defaults.Texture)
		mat.SetConstant(ch, v.Const)
		mat.UseConstant(ch, true)
	}

	if old := b.held[ch]; old != "" {
		if rerr := r.textures.Release(old); rerr != nil {
			r.logger.Printf("Warning: %v", rerr)
		}
	}
	b.held[ch] = held
	b.channels[ch] = v
	return err
}

// dropMaterial releases the engine's material and its texture references.
func (r *Resolver) dropMaterial(b *binding) {
	for ch, path := range b.held {
		if path == "" {
			continue
		}
		if err := r.textures.Release(path); err != nil {
			r.logger.Printf("Warning: %v", err)
		}
		b.held[ch] = ""
	}
	if b.material.IsValid() {
		r.manager.Release(b.engine)
	}
	b.material = 0
	b.channels = Channels{}
}

func (r *Resolver) materialOf(b *binding) renderer.MaterialHandle {
	if b.material.IsValid() {
		return b.material
	}
	return r.defaults.Material
}

func (r *Resolver) assign(mesh host.Handle, mat renderer.MaterialHandle) error {
	if r.assigner == nil {
		return nil
	}
	return r.assigner.SetMaterial(mesh, mat)
}

func (r *Resolver) assignAll(b *binding) error {
	mat := r.materialOf(b)
	var errs []error
	for _, mesh := range sortedMeshes(b) {
		if err := r.assign(mesh, mat); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) boundTo(shader host.Handle) []*binding {
	var out []*binding
	for _, b := range r.sortedBindings() {
		if b.shader == shader {
			out = append(out, b)
		}
	}
	return out
}

func (r *Resolver) sortedBindings() []*binding {
	out := make([]*binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].engine < out[j].engine })
	return out
}

func sortedMeshes(b *binding) []host.Handle {
	out := make([]host.Handle, 0, len(b.meshes))
	for m := range b.meshes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
