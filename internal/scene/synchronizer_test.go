package scene

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"testing"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host/memhost"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer/mempool"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/texture"
)

type env struct {
	g       *memhost.Graph
	mats    *mempool.MaterialPool
	texs    *mempool.TexturePool
	scene   *mempool.SceneGraph
	out     *mempool.FrameSource
	display *texture.MemoryDisplay
	events  []Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	callback.RevokeAll()
	t.Cleanup(func() {
		callback.RevokeAll()
		callback.SetLogger(nil)
	})
	return &env{
		g:       memhost.New(),
		mats:    mempool.NewMaterialPool(0),
		texs:    mempool.NewTexturePool(),
		scene:   mempool.NewSceneGraph(),
		out:     &mempool.FrameSource{},
		display: texture.NewMemoryDisplay(),
	}
}

func (e *env) config() SessionConfig {
	return SessionConfig{
		Graph:     e.g,
		Materials: e.mats,
		Textures:  e.texs,
		Scene:     e.scene,
		Output:    e.out,
		Display:   e.display,
		Blitter:   e.display,
		Logger:    log.New(io.Discard, "", 0),
		OnEvent:   func(ev Event) { e.events = append(e.events, ev) },
	}
}

func (e *env) activate(t *testing.T) *Session {
	t.Helper()
	s, err := Activate(e.config())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// network creates a shader of typeName feeding a new shading engine.
func (e *env) network(t *testing.T, typeName, name string) (shader, engine host.Handle) {
	t.Helper()
	shader, err := e.g.AddShader(typeName, name)
	if err != nil {
		t.Fatalf("AddShader failed: %v", err)
	}
	engine, err = e.g.AddShadingEngine(name + "SG")
	if err != nil {
		t.Fatalf("AddShadingEngine failed: %v", err)
	}
	if err := e.g.AssignShader(shader, engine); err != nil {
		t.Fatalf("AssignShader failed: %v", err)
	}
	return shader, engine
}

func (e *env) mesh(t *testing.T, name string) host.Handle {
	t.Helper()
	mesh, err := e.g.AddMesh(name)
	if err != nil {
		t.Fatalf("AddMesh failed: %v", err)
	}
	return mesh
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestScenarioInitialScan(t *testing.T) {
	e := newEnv(t)
	_, engine := e.network(t, "lambert", "lambert2")
	bound := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(bound, engine))
	e.mesh(t, "pSphere1")
	e.mesh(t, "pPlane1")

	s := e.activate(t)

	snap := s.Snapshot()
	if len(snap.Objects) != 3 {
		t.Fatalf("tracked %d objects, want 3", len(snap.Objects))
	}
	if got := snap.BuiltMaterials(); got != 1 {
		t.Errorf("built materials = %d, want 1", got)
	}
	if got := snap.DefaultObjects(); got != 2 {
		t.Errorf("meshes on default material = %d, want 2", got)
	}
	if snap.Watches != 1 {
		t.Errorf("watches = %d, want 1", snap.Watches)
	}
	if mat, _ := s.Models().MaterialOf(bound); mat == s.Defaults().Material || !mat.IsValid() {
		t.Errorf("bound mesh material = %d, want a built material", mat)
	}
	if got := len(s.Synchronizer().Subscriptions()); got != 5 {
		t.Errorf("synchronizer subscriptions = %d, want 5", got)
	}
}

func TestScanSkipsIntermediateMeshes(t *testing.T) {
	e := newEnv(t)
	e.mesh(t, "pCube1")
	history := e.mesh(t, "pCube1Orig")
	must(t, e.g.SetIntermediate(history, true))

	s := e.activate(t)
	if s.Models().IsTracked(history) {
		t.Error("intermediate mesh is tracked")
	}
	if s.Models().Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Models().Count())
	}
}

func TestLiveMeshJoinsBoundEngineWithoutRebuild(t *testing.T) {
	e := newEnv(t)
	_, engine := e.network(t, "aiStandardSurface", "aiStandardSurface1")
	first := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(first, engine))
	s := e.activate(t)

	builds := s.Resolver().Stats().Builds
	second := e.mesh(t, "pCube2")
	must(t, e.g.AssignMesh(second, engine))

	if got := s.Resolver().Stats().Builds; got != builds {
		t.Errorf("builds = %d, want %d (no rebuild)", got, builds)
	}
	m1, _ := s.Models().MaterialOf(first)
	m2, _ := s.Models().MaterialOf(second)
	if m1 != m2 {
		t.Errorf("second mesh material = %d, want %d", m2, m1)
	}
}

func TestLiveShaderConnectAndDisconnect(t *testing.T) {
	e := newEnv(t)
	engine, err := e.g.AddShadingEngine("phong1SG")
	must(t, err)
	mesh := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(mesh, engine))
	s := e.activate(t)

	if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
		t.Fatalf("mesh without shader material = %d, want default", mat)
	}

	shader, err := e.g.AddShader("phong", "phong1")
	must(t, err)
	must(t, e.g.AssignShader(shader, engine))
	if s.Resolver().SubscriptionCount() != 1 {
		t.Fatalf("watches after connect = %d, want 1", s.Resolver().SubscriptionCount())
	}
	if mat, _ := s.Models().MaterialOf(mesh); mat == s.Defaults().Material {
		t.Error("mesh still on default material after shader connect")
	}

	must(t, e.g.UnassignShader(shader, engine))
	if s.Resolver().SubscriptionCount() != 0 {
		t.Errorf("watches after disconnect = %d, want 0", s.Resolver().SubscriptionCount())
	}
	if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
		t.Errorf("mesh material after disconnect = %d, want default", mat)
	}

	kinds := make(map[EventKind]int)
	for _, ev := range e.events {
		kinds[ev.Kind]++
	}
	if kinds[EventShaderConnected] != 1 || kinds[EventShaderDisconnected] != 1 {
		t.Errorf("events = %v, want one shader connect and one disconnect", kinds)
	}
}

func TestUnsupportedAndForeignConnectionsAreIgnored(t *testing.T) {
	e := newEnv(t)
	engine, err := e.g.AddShadingEngine("blinn1SG")
	must(t, err)
	mesh := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(mesh, engine))
	s := e.activate(t)

	blinn, err := e.g.AddShader("blinn", "blinn1")
	must(t, err)
	must(t, e.g.AssignShader(blinn, engine))

	lambert, err := e.g.AddShader("lambert", "lambert2")
	must(t, err)
	file, err := e.g.AddFileTexture("file1", "textures/wood.png")
	must(t, err)
	must(t, e.g.ConnectTexture(file, lambert, "color"))

	st := s.Synchronizer().Stats()
	if st.Ignored != 2 {
		t.Errorf("Ignored = %d, want 2", st.Ignored)
	}
	if st.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", st.Dropped)
	}
	if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
		t.Errorf("mesh with unsupported shader material = %d, want default", mat)
	}
	if s.Resolver().SubscriptionCount() != 0 {
		t.Errorf("watches = %d, want 0", s.Resolver().SubscriptionCount())
	}
}

func TestUnsupportedShaderDisconnectClearsBinding(t *testing.T) {
	tests := []struct {
		name   string
		detach func(e *env, shader, engine host.Handle) error
	}{
		{"unassign", func(e *env, shader, engine host.Handle) error { return e.g.UnassignShader(shader, engine) }},
		{"delete node", func(e *env, shader, _ host.Handle) error { return e.g.RemoveNode(shader) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			shader, engine := e.network(t, "blinn", "blinn1")
			mesh := e.mesh(t, "pCube1")
			must(t, e.g.AssignMesh(mesh, engine))
			s := e.activate(t)

			if got, ok := s.Resolver().ShaderOf(engine); !ok || got != shader {
				t.Fatalf("ShaderOf() = %v, %v before detach", got, ok)
			}
			must(t, tt.detach(e, shader, engine))

			if got, ok := s.Resolver().ShaderOf(engine); ok {
				t.Errorf("ShaderOf() = %v after detach, want none", got)
			}
			for _, b := range s.Resolver().Bindings() {
				if b.Shader == shader {
					t.Errorf("binding for %v still reports shader %v", b.Engine, shader)
				}
			}
			if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
				t.Errorf("mesh material = %d, want default", mat)
			}
		})
	}
}

func TestRemovingShaderNodeUnbindsEngine(t *testing.T) {
	e := newEnv(t)
	shader, engine := e.network(t, "lambert", "lambert2")
	mesh := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(mesh, engine))
	s := e.activate(t)

	must(t, e.g.RemoveNode(shader))

	if s.Resolver().SubscriptionCount() != 0 {
		t.Errorf("watches = %d, want 0", s.Resolver().SubscriptionCount())
	}
	if _, ok := s.Resolver().ShaderOf(engine); ok {
		t.Error("engine still bound to removed shader")
	}
	if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
		t.Errorf("mesh material = %d, want default", mat)
	}
	if s.Synchronizer().Stats().Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", s.Synchronizer().Stats().Dropped)
	}
}

// silentConnections never delivers connection events, like a host that
// reports a deleted node without the connections it broke.
type silentConnections struct {
	*memhost.Graph
}

func (g silentConnections) OnConnection(host.ConnectionFunc) (host.Subscription, error) {
	return g.Graph.OnConnection(func(host.Plug, host.Plug, bool) {})
}

func TestShaderRemovedEventUnbindsEngines(t *testing.T) {
	tests := []struct {
		name  string
		graph func(*memhost.Graph) host.Graph
	}{
		{"connections reported first", func(g *memhost.Graph) host.Graph { return g }},
		{"only node removal reported", func(g *memhost.Graph) host.Graph { return silentConnections{g} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			shader, engine := e.network(t, "lambert", "lambert2")
			other, err := e.g.AddShadingEngine("lambert2SG2")
			if err != nil {
				t.Fatal(err)
			}
			must(t, e.g.AssignShader(shader, other))
			mesh := e.mesh(t, "pCube1")
			must(t, e.g.AssignMesh(mesh, engine))

			cfg := e.config()
			cfg.Graph = tt.graph(e.g)
			s, err := Activate(cfg)
			if err != nil {
				t.Fatalf("Activate failed: %v", err)
			}
			t.Cleanup(func() { s.Close() })

			must(t, e.g.RemoveNode(shader))

			for _, eng := range []host.Handle{engine, other} {
				if _, ok := s.Resolver().ShaderOf(eng); ok {
					t.Errorf("engine %s still bound to the removed shader", eng)
				}
			}
			if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
				t.Errorf("mesh material = %d, want default", mat)
			}
			if n := s.Resolver().SubscriptionCount(); n != 0 {
				t.Errorf("watches = %d, want 0", n)
			}
			if st := s.Synchronizer().Stats(); st.ShadersRemoved != 1 || st.Dropped != 0 {
				t.Errorf("ShadersRemoved = %d, Dropped = %d; want 1 and 0", st.ShadersRemoved, st.Dropped)
			}
			if last := e.events[len(e.events)-1]; last.Kind != EventShaderRemoved || last.Node != shader {
				t.Errorf("last event = %+v, want shader_removed for %s", last, shader)
			}
		})
	}
}

func TestRemovingEngineRevertsMembers(t *testing.T) {
	e := newEnv(t)
	_, engine := e.network(t, "lambert", "lambert2")
	mesh := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(mesh, engine))
	s := e.activate(t)

	must(t, e.g.RemoveNode(engine))

	if _, ok := s.Resolver().EngineOf(mesh); ok {
		t.Error("mesh still a member of the removed engine")
	}
	if mat, _ := s.Models().MaterialOf(mesh); mat != s.Defaults().Material {
		t.Errorf("mesh material = %d, want default", mat)
	}
	if s.Resolver().SubscriptionCount() != 0 {
		t.Errorf("watches = %d, want 0", s.Resolver().SubscriptionCount())
	}
}

func TestSetupFailureRevokesEverything(t *testing.T) {
	for _, class := range []string{"node-added", "node-removed", "connection"} {
		t.Run(class, func(t *testing.T) {
			e := newEnv(t)
			e.mesh(t, "pCube1")
			e.mesh(t, "pCube2")
			refused := errors.New("host refused")
			e.g.SetSubscribeHook(func(c string) error {
				if c == class {
					return refused
				}
				return nil
			})

			_, err := Activate(e.config())
			if !IsSetupFailure(err) {
				t.Fatalf("Activate() = %v, want a setup failure", err)
			}
			if !errors.Is(err, host.ErrSubscriptionFailed) {
				t.Errorf("Activate() = %v, want it to wrap ErrSubscriptionFailed", err)
			}
			if n := e.g.LiveCallbacks(); n != 0 {
				t.Errorf("host has %d live callbacks after failed activation", n)
			}
			if n := callback.Count(); n != 0 {
				t.Errorf("registry has %d live ids after failed activation", n)
			}
			if n := e.mats.Live(); n != 0 {
				t.Errorf("%d materials leaked after failed activation", n)
			}
			if n := len(e.scene.Meshes()); n != 0 {
				t.Errorf("%d renderer meshes leaked after failed activation", n)
			}
		})
	}
}

func TestActivateTwice(t *testing.T) {
	e := newEnv(t)
	s := e.activate(t)
	if err := s.Synchronizer().Activate(); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Activate() = %v, want ErrAlreadyActive", err)
	}
}

func TestCloseRevokesAllSubscriptions(t *testing.T) {
	e := newEnv(t)
	_, engine := e.network(t, "lambert", "lambert2")
	mesh := e.mesh(t, "pCube1")
	must(t, e.g.AssignMesh(mesh, engine))
	s := e.activate(t)

	if e.g.LiveCallbacks() == 0 {
		t.Fatal("no live callbacks after activation")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n := e.g.LiveCallbacks(); n != 0 {
		t.Errorf("host has %d live callbacks after Close", n)
	}
	if n := e.mats.Live(); n != 0 {
		t.Errorf("%d materials live after Close", n)
	}
	if n := e.display.Live(); n != 0 {
		t.Errorf("%d display textures live after Close", n)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}

	// Events after Close reach nobody.
	e.mesh(t, "pCube2")
	if len(e.scene.Meshes()) != 0 {
		t.Error("mesh added after Close reached the renderer")
	}
}

func trackedSet(s *Session) []host.Handle {
	return s.Models().Tracked()
}

func presentMeshes(g *memhost.Graph) []host.Handle {
	var out []host.Handle
	for _, h := range g.Nodes(host.KindMesh) {
		if intermediate, err := g.IsIntermediate(h); err == nil && !intermediate {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestTrackedSetFollowsRandomEdits(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			e := newEnv(t)
			_, engine := e.network(t, "lambert", "lambert2")
			s := e.activate(t)
			rng := rand.New(rand.NewSource(seed))

			names := []string{}
			for step := 0; step < 200; step++ {
				if len(names) == 0 || rng.Intn(3) > 0 {
					name := fmt.Sprintf("mesh%d", step)
					mesh := e.mesh(t, name)
					if rng.Intn(2) == 0 {
						must(t, e.g.AssignMesh(mesh, engine))
					}
					names = append(names, name)
				} else {
					i := rng.Intn(len(names))
					name := names[i]
					names = append(names[:i], names[i+1:]...)
					target := name
					if rng.Intn(2) == 0 {
						target = name + "Shape"
					}
					h, ok := e.g.Lookup(target)
					if !ok {
						t.Fatalf("step %d: node %s missing", step, target)
					}
					must(t, e.g.RemoveNode(h))
				}

				got, want := trackedSet(s), presentMeshes(e.g)
				if fmt.Sprint(got) != fmt.Sprint(want) {
					t.Fatalf("step %d: tracked %v, present %v", step, got, want)
				}
				if n := len(e.scene.Meshes()); n != len(want) {
					t.Fatalf("step %d: %d renderer meshes, want %d", step, n, len(want))
				}
			}
			if s.Synchronizer().Stats().Dropped != 0 {
				t.Errorf("Dropped = %d, want 0", s.Synchronizer().Stats().Dropped)
			}
		})
	}
}
