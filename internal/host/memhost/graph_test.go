package memhost

import (
	"errors"
	"testing"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
)

func TestAddNodeAndQueries(t *testing.T) {
	g := New()
	mesh, err := g.AddMesh("pCube1")
	if err != nil {
		t.Fatalf("AddMesh failed: %v", err)
	}

	kind, err := g.Kind(mesh)
	if err != nil || kind != host.KindMesh {
		t.Errorf("Kind() = %v, %v; want mesh", kind, err)
	}
	name, _ := g.Name(mesh)
	if name != "pCube1Shape" {
		t.Errorf("Name() = %q, want pCube1Shape", name)
	}
	if _, err := g.AddNode(host.KindTransform, "", "pCube1", 0); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (transform and shape)", g.Len())
	}
}

func TestPlugReads(t *testing.T) {
	g := New()
	shader, _ := g.AddShader("lambert", "lambert1")
	color := host.Plug{Node: shader, Name: "color"}
	if err := g.SetColor(color, host.Vec3{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	if c, err := g.Color(color); err != nil || c != (host.Vec3{1, 2, 3}) {
		t.Errorf("Color() = %v, %v", c, err)
	}
	if _, err := g.Float(color); !errors.Is(err, host.ErrPlugType) {
		t.Errorf("Float(color plug) = %v, want ErrPlugType", err)
	}
	if _, err := g.Float(host.Plug{Node: shader, Name: "nope"}); !errors.Is(err, host.ErrPlugNotFound) {
		t.Errorf("Float(missing) = %v, want ErrPlugNotFound", err)
	}
	if _, err := g.Color(host.Plug{Node: 999, Name: "color"}); !host.IsStale(err) {
		t.Errorf("Color(unknown node) = %v, want stale error", err)
	}
}

func TestWalkDepthFirst(t *testing.T) {
	g := New()
	a, _ := g.AddMesh("a")
	b, _ := g.AddMesh("b")
	root, _ := g.Lookup("a")
	nested, _ := g.AddNode(host.KindMesh, "mesh", "aExtraShape", root)

	var got []host.Handle
	err := g.Walk(host.KindMesh, func(h host.Handle) error {
		got = append(got, h)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []host.Handle{a, nested, b}
	if len(got) != len(want) {
		t.Fatalf("Walk visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Walk[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	stop := errors.New("stop")
	visits := 0
	err = g.Walk(host.KindMesh, func(host.Handle) error {
		visits++
		return stop
	})
	if !errors.Is(err, stop) || visits != 1 {
		t.Errorf("Walk should stop at first error, visits = %d, err = %v", visits, err)
	}
}

func TestConnectionEventsAndAttributeEcho(t *testing.T) {
	g := New()
	shader, _ := g.AddShader("lambert", "lambert1")
	engine, _ := g.AddShadingEngine("lambert1SG")

	var conns []bool
	var attrs []string
	g.OnConnection(func(src, dst host.Plug, made bool) { conns = append(conns, made) })
	g.OnAttributeChanged(engine, func(node host.Handle, plug string) { attrs = append(attrs, plug) })

	if err := g.AssignShader(shader, engine); err != nil {
		t.Fatalf("AssignShader failed: %v", err)
	}
	if err := g.AssignShader(shader, engine); !errors.Is(err, host.ErrAlreadyConnected) {
		t.Errorf("second AssignShader = %v, want ErrAlreadyConnected", err)
	}
	if err := g.UnassignShader(shader, engine); err != nil {
		t.Fatalf("UnassignShader failed: %v", err)
	}

	if len(conns) != 2 || !conns[0] || conns[1] {
		t.Errorf("connection events = %v, want [true false]", conns)
	}
	if len(attrs) != 2 || attrs[0] != host.PlugSurfaceShader {
		t.Errorf("attribute echoes = %v, want two surfaceShader changes", attrs)
	}
}

func TestRemoveBreaksConnectionsBeforeRemoval(t *testing.T) {
	g := New()
	engine, _ := g.AddShadingEngine("SG")
	mesh, _ := g.AddMesh("pCube1")
	if err := g.AssignMesh(mesh, engine); err != nil {
		t.Fatal(err)
	}
	transform, _ := g.Lookup("pCube1")

	var events []string
	g.OnConnection(func(src, dst host.Plug, made bool) {
		if !made {
			events = append(events, "break")
		}
	})
	g.OnNodeRemoved(host.KindMesh, func(host.Handle) { events = append(events, "mesh-removed") })
	g.OnNodeRemoved(host.KindTransform, func(host.Handle) { events = append(events, "transform-removed") })

	if err := g.RemoveNode(transform); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	want := []string{"break", "mesh-removed", "transform-removed"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
	if g.Exists(mesh) {
		t.Error("child mesh should be deleted with its transform")
	}
	engines, err := g.ShadingEngines(engine)
	if err != nil || len(engines) != 0 {
		t.Errorf("ShadingEngines on an engine = %v, %v", engines, err)
	}
}

func TestShadingEnginesAndFreeMemberSlot(t *testing.T) {
	g := New()
	engine, _ := g.AddShadingEngine("SG")
	a, _ := g.AddMesh("a")
	b, _ := g.AddMesh("b")

	if err := g.AssignMesh(a, engine); err != nil {
		t.Fatal(err)
	}
	if err := g.AssignMesh(b, engine); err != nil {
		t.Fatal(err)
	}
	if err := g.UnassignMesh(a, engine); err != nil {
		t.Fatal(err)
	}
	if err := g.AssignMesh(a, engine); err != nil {
		t.Fatalf("reassigning into the freed slot failed: %v", err)
	}

	engines, _ := g.ShadingEngines(a)
	if len(engines) != 1 || engines[0] != engine {
		t.Errorf("ShadingEngines(a) = %v, want [%s]", engines, engine)
	}
	if err := g.UnassignMesh(a, a); !errors.Is(err, host.ErrNotConnected) {
		t.Errorf("UnassignMesh of unconnected pair = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionHookAndRevocation(t *testing.T) {
	g := New()
	g.SetSubscribeHook(func(class string) error {
		if class == "connection" {
			return errors.New("refused")
		}
		return nil
	})

	if _, err := g.OnConnection(func(src, dst host.Plug, made bool) {}); !errors.Is(err, host.ErrSubscriptionFailed) {
		t.Errorf("OnConnection = %v, want ErrSubscriptionFailed", err)
	}
	sub, err := g.OnNodeAdded(host.KindMesh, func(host.Handle) {})
	if err != nil {
		t.Fatalf("OnNodeAdded failed: %v", err)
	}
	if err := sub.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := sub.Cancel(); !errors.Is(err, host.ErrUnknownCallback) {
		t.Errorf("second Cancel = %v, want ErrUnknownCallback", err)
	}
	if g.LiveCallbacks() != 0 || g.Revoked() != 1 {
		t.Errorf("LiveCallbacks/Revoked = %d/%d, want 0/1", g.LiveCallbacks(), g.Revoked())
	}
}
