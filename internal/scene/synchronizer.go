// Package scene keeps the renderer in sync with the host scene graph.
//
// A Synchronizer scans the graph once on activation and then follows four
// event subscriptions: mesh added (geometry), mesh added (materials), mesh
// removed and connection changed. The scan routes every mesh through the
// same handlers the live events use, so bootstrap and steady state behave
// identically.
//
// A Session composes a synchronizer with the material resolver, the
// geometry parser and the texture bridge into one viewport lifetime.
package scene

import (
	"fmt"
	"log"
	"os"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/material"
)

// Geometry is the geometry sub-parser.
type Geometry interface {
	Add(mesh host.Handle) (bool, error)
	Remove(mesh host.Handle) error
}

// Materials is the material resolver as seen by the synchronizer.
type Materials interface {
	OnMeshAdded(mesh host.Handle) error
	ConnectMeshToShadingEngine(mesh, engine host.Handle) error
	DisconnectMeshFromShadingEngine(mesh, engine host.Handle) error
	ConnectShaderToShadingEngine(shader, engine host.Handle) error
	DisconnectShaderFromShadingEngine(shader, engine host.Handle) error
	OnRemoveSurfaceShader(shader host.Handle) error
	ForgetMesh(mesh host.Handle)
	EngineOf(mesh host.Handle) (host.Handle, bool)
	ShaderOf(engine host.Handle) (host.Handle, bool)
}

// EventKind names what an Event reports.
type EventKind string

// Event kinds.
const (
	EventMeshAdded          EventKind = "mesh_added"
	EventMeshRemoved        EventKind = "mesh_removed"
	EventMeshConnected      EventKind = "mesh_connected"
	EventMeshDisconnected   EventKind = "mesh_disconnected"
	EventShaderConnected    EventKind = "shader_connected"
	EventShaderDisconnected EventKind = "shader_disconnected"
	EventShaderRemoved      EventKind = "shader_removed"
	EventDropped            EventKind = "dropped"
)

// Event describes one serviced host event. Observers get it after the
// handler ran.
type Event struct {
	Kind   EventKind   `json:"kind"`
	Node   host.Handle `json:"node,omitempty"`
	Engine host.Handle `json:"engine,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Stats counts serviced events.
type Stats struct {
	MeshesAdded    int
	MeshesRemoved  int
	ShadersRemoved int
	Connections    int
	Ignored        int // connections with nothing to do
	Dropped        int // events whose handling failed
}

// Config holds the collaborators of a Synchronizer.
type Config struct {
	Graph     host.Graph
	Geometry  Geometry
	Materials Materials
	Logger    *log.Logger

	// OnEvent, when set, observes every serviced event.
	OnEvent func(Event)
}

// Synchronizer routes host events to the geometry parser and the material
// resolver. Not safe for concurrent use; events must arrive on one
// goroutine.
type Synchronizer struct {
	graph     host.Graph
	geometry  Geometry
	materials Materials
	logger    *log.Logger
	onEvent   func(Event)

	active bool
	subs   []host.Subscription
	stats  Stats
}

// NewSynchronizer creates an inactive synchronizer.
func NewSynchronizer(cfg Config) (*Synchronizer, error) {
	switch {
	case cfg.Graph == nil:
		return nil, fmt.Errorf("graph: %w", ErrMissingDependency)
	case cfg.Geometry == nil:
		return nil, fmt.Errorf("geometry parser: %w", ErrMissingDependency)
	case cfg.Materials == nil:
		return nil, fmt.Errorf("material resolver: %w", ErrMissingDependency)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[scene] ", log.LstdFlags)
	}
	return &Synchronizer{
		graph:     cfg.Graph,
		geometry:  cfg.Geometry,
		materials: cfg.Materials,
		logger:    cfg.Logger,
		onEvent:   cfg.OnEvent,
	}, nil
}

// Activate scans the graph and subscribes to its events. A subscription
// failure aborts activation: everything registered so far is revoked and
// an ErrSetup error is returned.
func (s *Synchronizer) Activate() error {
	if s.active {
		return ErrAlreadyActive
	}

	if err := s.graph.Walk(host.KindMesh, func(mesh host.Handle) error {
		s.onMeshAdded(mesh)
		s.onMeshAddedForMaterials(mesh)
		return nil
	}); err != nil {
		return fmt.Errorf("%w: scan: %w", ErrSetup, err)
	}

	type registration struct {
		name string
		fn   func() (host.Subscription, error)
	}
	regs := []registration{
		{"mesh added", func() (host.Subscription, error) {
			return s.graph.OnNodeAdded(host.KindMesh, s.onMeshAdded)
		}},
		{"mesh added for materials", func() (host.Subscription, error) {
			return s.graph.OnNodeAdded(host.KindMesh, s.onMeshAddedForMaterials)
		}},
		{"mesh removed", func() (host.Subscription, error) {
			return s.graph.OnNodeRemoved(host.KindMesh, s.onMeshRemoved)
		}},
		{"connection", func() (host.Subscription, error) {
			return s.graph.OnConnection(s.onConnection)
		}},
		{"shader removed", func() (host.Subscription, error) {
			return s.graph.OnNodeRemoved(host.KindShader, s.onShaderRemoved)
		}},
	}

	s.subs = s.subs[:0]
	for _, reg := range regs {
		sub, err := reg.fn()
		if err != nil {
			s.logger.Printf("Error: cannot subscribe to %s events: %v", reg.name, err)
			callback.RevokeAll()
			s.subs = nil
			return fmt.Errorf("%w: subscribe to %s events: %w", ErrSetup, reg.name, err)
		}
		callback.Register(sub)
		s.subs = append(s.subs, sub)
	}

	s.active = true
	return nil
}

// Deactivate revokes every live subscription in the process, including the
// ones made by the geometry parser and the material resolver. It returns
// the number revoked.
func (s *Synchronizer) Deactivate() (int, error) {
	if !s.active {
		return 0, ErrNotActive
	}
	s.active = false
	s.subs = nil
	return callback.RevokeAll(), nil
}

// IsActive reports whether the synchronizer is subscribed.
func (s *Synchronizer) IsActive() bool {
	return s.active
}

// Subscriptions returns the ids of the synchronizer's own subscriptions.
func (s *Synchronizer) Subscriptions() []host.CallbackID {
	ids := make([]host.CallbackID, len(s.subs))
	for i, sub := range s.subs {
		ids[i] = sub.ID
	}
	return ids
}

// Stats returns the event counters.
func (s *Synchronizer) Stats() Stats {
	return s.stats
}

// ===== Event handlers =====

func (s *Synchronizer) onMeshAdded(mesh host.Handle) {
	added, err := s.geometry.Add(mesh)
	if err != nil {
		s.drop(Event{Kind: EventMeshAdded, Node: mesh}, err)
		return
	}
	if added {
		s.stats.MeshesAdded++
		s.emit(Event{Kind: EventMeshAdded, Node: mesh})
	}
}

func (s *Synchronizer) onMeshAddedForMaterials(mesh host.Handle) {
	intermediate, err := s.graph.IsIntermediate(mesh)
	if err != nil {
		s.drop(Event{Kind: EventMeshAdded, Node: mesh}, err)
		return
	}
	if intermediate {
		return
	}
	if err := s.materials.OnMeshAdded(mesh); err != nil {
		s.drop(Event{Kind: EventMeshAdded, Node: mesh}, err)
	}
}

func (s *Synchronizer) onMeshRemoved(mesh host.Handle) {
	s.materials.ForgetMesh(mesh)
	if err := s.geometry.Remove(mesh); err != nil {
		s.drop(Event{Kind: EventMeshRemoved, Node: mesh}, err)
		return
	}
	s.stats.MeshesRemoved++
	s.emit(Event{Kind: EventMeshRemoved, Node: mesh})
}

// onShaderRemoved unbinds a deleted shader from every engine it still
// feeds. Hosts that break the connections first leave nothing to do.
func (s *Synchronizer) onShaderRemoved(shader host.Handle) {
	if err := s.materials.OnRemoveSurfaceShader(shader); err != nil {
		s.drop(Event{Kind: EventShaderRemoved, Node: shader}, err)
		return
	}
	s.stats.ShadersRemoved++
	s.emit(Event{Kind: EventShaderRemoved, Node: shader})
}

func (s *Synchronizer) onConnection(src, dst host.Plug, made bool) {
	s.stats.Connections++

	dstKind, err := s.graph.Kind(dst.Node)
	if err != nil {
		s.onStaleConnection(src, dst, made, err)
		return
	}
	if dstKind != host.KindShadingEngine {
		s.stats.Ignored++
		return
	}

	srcKind, err := s.graph.Kind(src.Node)
	if err != nil {
		s.onStaleConnection(src, dst, made, err)
		return
	}

	engine := dst.Node
	if srcKind == host.KindMesh {
		s.toggleMesh(src.Node, engine, made)
		return
	}

	typeName, err := s.graph.TypeName(src.Node)
	if err != nil {
		s.drop(Event{Kind: EventDropped, Node: src.Node, Engine: engine}, err)
		return
	}
	if !material.Classify(typeName).Type().IsSupported() {
		// The resolver still records an unsupported shader found by parse,
		// so breaking that connection has to reach it.
		if shader, ok := s.materials.ShaderOf(engine); !made && ok && shader == src.Node {
			s.toggleShader(src.Node, engine, false)
			return
		}
		s.stats.Ignored++
		return
	}
	s.toggleShader(src.Node, engine, made)
}

// onStaleConnection handles a connection whose endpoint vanished before the
// event was serviced. A broken connection can still be matched against
// what the resolver knows; anything else is dropped.
func (s *Synchronizer) onStaleConnection(src, dst host.Plug, made bool, err error) {
	if made || !host.IsStale(err) {
		s.drop(Event{Kind: EventDropped, Node: src.Node, Engine: dst.Node}, err)
		return
	}
	if shader, ok := s.materials.ShaderOf(dst.Node); ok && shader == src.Node {
		s.toggleShader(src.Node, dst.Node, false)
		return
	}
	if engine, ok := s.materials.EngineOf(src.Node); ok && engine == dst.Node {
		s.toggleMesh(src.Node, dst.Node, false)
		return
	}
	s.stats.Ignored++
}

func (s *Synchronizer) toggleMesh(mesh, engine host.Handle, made bool) {
	ev := Event{Kind: EventMeshConnected, Node: mesh, Engine: engine}
	var err error
	if made {
		err = s.materials.ConnectMeshToShadingEngine(mesh, engine)
	} else {
		ev.Kind = EventMeshDisconnected
		err = s.materials.DisconnectMeshFromShadingEngine(mesh, engine)
	}
	if err != nil {
		s.drop(ev, err)
		return
	}
	s.emit(ev)
}

func (s *Synchronizer) toggleShader(shader, engine host.Handle, made bool) {
	ev := Event{Kind: EventShaderConnected, Node: shader, Engine: engine}
	var err error
	if made {
		err = s.materials.ConnectShaderToShadingEngine(shader, engine)
	} else {
		ev.Kind = EventShaderDisconnected
		err = s.materials.DisconnectShaderFromShadingEngine(shader, engine)
	}
	if err != nil {
		s.drop(ev, err)
		return
	}
	s.emit(ev)
}

// drop reports a per-event failure. The event is not retried.
func (s *Synchronizer) drop(ev Event, err error) {
	s.stats.Dropped++
	s.logger.Printf("Warning: dropped %s event for %s: %v", ev.Kind, ev.Node, err)
	ev.Error = err.Error()
	s.emit(ev)
}

func (s *Synchronizer) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}
