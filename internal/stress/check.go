package stress

import (
	"fmt"
	"sort"
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/material"
)

// check compares the session against the graph. It runs where the session
// lives, after every event of the step has been serviced.
func (r *runner) check(step int, op string) []Violation {
	out := r.pending
	r.pending = nil
	fail := func(invariant, format string, args ...any) {
		out = append(out, Violation{Op: op, Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
	}

	models := r.sess.Models()
	resolver := r.sess.Resolver()
	defaults := r.sess.Defaults()

	tracked := models.Tracked()
	sortHandles(tracked)
	present := r.presentMeshes()
	if fmt.Sprint(tracked) != fmt.Sprint(present) {
		fail("tracked set", "tracked %v, present %v", tracked, present)
	}
	if n := len(r.scene.Meshes()); n != len(tracked) {
		fail("renderer nodes", "%d renderer meshes for %d tracked", n, len(tracked))
	}

	bound := make(map[host.Handle]host.Handle) // engine -> supported shader
	for _, engine := range r.g.Nodes(host.KindShadingEngine) {
		if shader, ok := r.supportedShader(engine); ok {
			bound[engine] = shader
		}
	}
	if n := resolver.SubscriptionCount(); n > len(bound) {
		fail("watch bound", "%d watches for %d engines bound to a supported shader", n, len(bound))
	}

	for _, b := range resolver.Bindings() {
		if !b.Watched() {
			continue
		}
		if shader, ok := bound[b.Engine]; !ok || shader != b.Shader {
			fail("dangling watch", "engine %s watches %s, graph binds %s", b.Engine, b.Shader, shader)
			continue
		}
		first, err := resolver.Extract(b.Shader)
		if err != nil {
			fail("extraction", "extract %s: %v", b.Shader, err)
			continue
		}
		second, _ := resolver.Extract(b.Shader)
		if first != second {
			fail("extraction idempotent", "shader %s: %v then %v", b.Shader, first, second)
		}
		if first != b.Channels {
			fail("stored channels", "engine %s holds %v, shader resolves to %v", b.Engine, b.Channels, first)
		}
	}

	for _, mesh := range tracked {
		want := false
		engines, err := r.g.ShadingEngines(mesh)
		if err != nil {
			fail("material", "shading engines of %s: %v", mesh, err)
			continue
		}
		if len(engines) > 0 {
			_, want = bound[engines[0]]
		}
		got := resolver.MaterialFor(mesh)
		if built := got != defaults.Material; built != want {
			fail("material", "mesh %s built material = %v, want %v", mesh, built, want)
		}
		if assigned, _ := models.MaterialOf(mesh); assigned != got {
			fail("material assignment", "mesh %s renders with %v, resolver says %v", mesh, assigned, got)
		}
	}

	for i := range out {
		out[i].Step = step
	}
	return out
}

func (r *runner) presentMeshes() []host.Handle {
	var out []host.Handle
	for _, h := range r.g.Nodes(host.KindMesh) {
		if intermediate, err := r.g.IsIntermediate(h); err == nil && !intermediate {
			out = append(out, h)
		}
	}
	sortHandles(out)
	return out
}

func (r *runner) supportedShader(engine host.Handle) (host.Handle, bool) {
	src, ok, err := r.g.Source(host.Plug{Node: engine, Name: host.PlugSurfaceShader})
	if err != nil || !ok {
		return 0, false
	}
	typeName, err := r.g.TypeName(src.Node)
	if err != nil || !material.Classify(typeName).Type().IsSupported() {
		return 0, false
	}
	return src.Node, true
}

func sortHandles(hs []host.Handle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Steps: len(durations),
	}
}
