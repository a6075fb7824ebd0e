// Package host defines the boundary to the host application's scene graph.
//
// The host owns a live, mutable dependency graph of nodes (meshes,
// transforms, shading engines, shaders, file textures). This package only
// describes what the synchronizer consumes from it: typed queries, plug
// reads, depth-first iteration and revocable event subscriptions. The
// memhost sub-package provides an in-memory implementation.
package host

import "fmt"

// Handle is the opaque identity of a host graph node.
// The zero Handle never refers to a node.
type Handle uint64

// IsValid reports whether h can refer to a node.
func (h Handle) IsValid() bool {
	return h != 0
}

// String returns a human-readable representation of the handle.
func (h Handle) String() string {
	return fmt.Sprintf("node#%d", uint64(h))
}

// NodeKind is the structural kind of a host node, independent of its
// native type name.
type NodeKind int

const (
	// KindUnknown is any node the synchronizer has no special handling for.
	KindUnknown NodeKind = iota
	// KindTransform is a DAG transform.
	KindTransform
	// KindMesh is a polygonal mesh shape.
	KindMesh
	// KindCamera is a camera shape.
	KindCamera
	// KindShadingEngine is the aggregation point between meshes and a surface shader.
	KindShadingEngine
	// KindShader is any dependency node that can feed a shading engine
	// (surface shaders, utility nodes). Its type name tells which one.
	KindShader
	// KindFileTexture is a file texture node carrying an image path.
	KindFileTexture
)

// String returns a human-readable representation of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindMesh:
		return "mesh"
	case KindCamera:
		return "camera"
	case KindShadingEngine:
		return "shadingEngine"
	case KindShader:
		return "shader"
	case KindFileTexture:
		return "file"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name back to a NodeKind.
func ParseKind(s string) (NodeKind, error) {
	switch s {
	case "transform":
		return KindTransform, nil
	case "mesh":
		return KindMesh, nil
	case "camera":
		return KindCamera, nil
	case "shadingEngine", "shading_engine":
		return KindShadingEngine, nil
	case "shader":
		return KindShader, nil
	case "file", "file_texture":
		return KindFileTexture, nil
	case "unknown":
		return KindUnknown, nil
	default:
		return KindUnknown, fmt.Errorf("unknown node kind %q", s)
	}
}

// Well-known plug names used by the synchronizer.
const (
	PlugSurfaceShader   = "surfaceShader"
	PlugDagSetMembers   = "dagSetMembers"
	PlugInstObjGroups   = "instObjGroups"
	PlugOutColor        = "outColor"
	PlugFileTextureName = "fileTextureName"
	PlugBumpValue       = "bumpValue"
	PlugOutNormal       = "outNormal"
)

// Camera plugs. Translate and rotate live on the camera's transform, the
// rest on the camera shape.
const (
	PlugTranslate              = "translate"
	PlugRotate                 = "rotate"
	PlugFocalLength            = "focalLength"
	PlugHorizontalFilmAperture = "horizontalFilmAperture"
	PlugNearClipPlane          = "nearClipPlane"
	PlugFarClipPlane           = "farClipPlane"
)

// Plug addresses one attribute on one node.
type Plug struct {
	Node Handle
	Name string
}

// String returns the plug as "node#N.name".
func (p Plug) String() string {
	return fmt.Sprintf("%s.%s", p.Node, p.Name)
}

// Vec3 is a three component value read from a compound plug (colors, vectors).
type Vec3 [3]float32

// CallbackID identifies one event subscription.
type CallbackID uint64

// Subscription is a revocable event registration. Cancel removes the
// callback from the host; it is the only way to revoke it.
type Subscription struct {
	ID     CallbackID
	cancel func() error
}

// NewSubscription binds an id to the function that revokes it.
// Hosts call this when handing out subscriptions.
func NewSubscription(id CallbackID, cancel func() error) Subscription {
	return Subscription{ID: id, cancel: cancel}
}

// Cancel revokes the subscription.
func (s Subscription) Cancel() error {
	if s.cancel == nil {
		return fmt.Errorf("subscription %d: %w", s.ID, ErrNoCanceler)
	}
	return s.cancel()
}

// NodeFunc is called for node-added and node-removed events.
type NodeFunc func(node Handle)

// ConnectionFunc is called when a connection between two plugs is made
// (made=true) or broken (made=false).
type ConnectionFunc func(src, dst Plug, made bool)

// AttributeFunc is called when an attribute of a watched node changes.
// Connections made or broken into the node also arrive here with the
// destination plug name.
type AttributeFunc func(node Handle, plug string)

// Graph is the host scene graph as seen by the synchronizer.
//
// Query methods return ErrNodeNotFound when the node disappeared between
// event dispatch and processing, and ErrPlugNotFound when the node has no
// such attribute.
type Graph interface {
	// Kind returns the structural kind of the node.
	Kind(node Handle) (NodeKind, error)

	// TypeName returns the node's native type name, e.g. "lambert".
	TypeName(node Handle) (string, error)

	// Name returns the node's user-visible name.
	Name(node Handle) (string, error)

	// Parent returns the node's DAG parent, or the zero Handle for roots
	// and dependency nodes.
	Parent(node Handle) (Handle, error)

	// IsIntermediate reports whether a mesh is an intermediate (history) object.
	IsIntermediate(node Handle) (bool, error)

	// Float reads a scalar plug.
	Float(p Plug) (float32, error)

	// Color reads a three component plug.
	Color(p Plug) (Vec3, error)

	// String reads a string plug.
	String(p Plug) (string, error)

	// Source returns the upstream plug connected into p, if any.
	Source(p Plug) (Plug, bool, error)

	// ShadingEngines returns the shading engines a mesh is a member of.
	ShadingEngines(mesh Handle) ([]Handle, error)

	// Walk visits every node of the given kind in depth-first order.
	// Iteration stops at the first error returned by fn.
	Walk(kind NodeKind, fn func(node Handle) error) error

	// OnNodeAdded subscribes to creation of nodes of the given kind.
	OnNodeAdded(kind NodeKind, fn NodeFunc) (Subscription, error)

	// OnNodeRemoved subscribes to removal of nodes of the given kind.
	OnNodeRemoved(kind NodeKind, fn NodeFunc) (Subscription, error)

	// OnConnection subscribes to every connection change in the graph.
	OnConnection(fn ConnectionFunc) (Subscription, error)

	// OnAttributeChanged subscribes to attribute changes of a single node.
	OnAttributeChanged(node Handle, fn AttributeFunc) (Subscription, error)
}
