package scene

import (
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// Snapshot is a serializable view of a session, recorded by the ledger and
// broadcast by the dashboard.
type Snapshot struct {
	Taken     time.Time      `json:"taken"`
	Active    bool           `json:"active"`
	Objects   []ObjectState  `json:"objects"`
	Bindings  []BindingState `json:"bindings"`
	Watches   int            `json:"watches"`
	Callbacks int            `json:"callbacks"`
	Color     SlotState      `json:"color"`
	Depth     SlotState      `json:"depth"`
	Events    int            `json:"events"`
	Dropped   int            `json:"dropped"`

	// Camera is the last viewport camera sent to the renderer.
	Camera *renderer.Camera `json:"camera,omitempty"`
}

// ObjectState is one tracked mesh.
type ObjectState struct {
	Mesh     uint64 `json:"mesh"`
	Material uint64 `json:"material"`
	Default  bool   `json:"default"`
}

// BindingState is one shading engine binding.
type BindingState struct {
	Engine   uint64 `json:"engine"`
	Shader   uint64 `json:"shader,omitempty"`
	Type     string `json:"type"`
	TypeName string `json:"type_name,omitempty"`
	Material uint64 `json:"material,omitempty"`
	Meshes   int    `json:"meshes"`
	Watched  bool   `json:"watched"`
}

// SlotState is one display texture slot.
type SlotState struct {
	Width  int  `json:"width"`
	Height int  `json:"height"`
	Valid  bool `json:"valid"`
}

// DefaultObjects returns how many tracked meshes render with the default
// material.
func (s Snapshot) DefaultObjects() int {
	n := 0
	for _, o := range s.Objects {
		if o.Default {
			n++
		}
	}
	return n
}

// BuiltMaterials returns how many bindings own a renderer material.
func (s Snapshot) BuiltMaterials() int {
	n := 0
	for _, b := range s.Bindings {
		if b.Material != 0 {
			n++
		}
	}
	return n
}
