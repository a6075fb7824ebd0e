// Package stress drives a viewport session with seeded random host edits.
//
// Every step applies one mutation to an in-memory host graph (adding and
// removing meshes, wiring and unwiring shading networks, editing shaders,
// pumping frames) and then checks that the session still mirrors the graph:
//
//   - the tracked mesh set equals the present non-intermediate meshes
//   - each tracked mesh has one renderer node
//   - live shader watches never outnumber engines bound to a supported shader
//   - every watch targets the shader its engine is currently bound to
//   - a mesh renders with a built material exactly when its engine is bound
//     to a supported shader
//   - frames re-acquire display textures only on a size change
//
// After the last step the session is closed and checked for leaks.
package stress

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/eventq"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host/memhost"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/material"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer/mempool"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/texture"
)

// FrameSize is one output resolution frames are pumped at.
type FrameSize struct {
	Width  int
	Height int
}

// Config controls a stress run.
type Config struct {
	// Seed for the mutation sequence. Runs with equal seeds are identical.
	Seed int64

	// Steps is the number of mutations to apply.
	Steps int

	// Queued serializes host callbacks through an event queue, as a host
	// delivering events off the driving goroutine would.
	Queued bool

	// FrameSizes are the output sizes frame steps choose from.
	FrameSizes []FrameSize

	// StopOnViolation ends the run at the first broken invariant.
	StopOnViolation bool

	// Logger is the base logger for the session components.
	Logger *log.Logger
}

// DefaultConfig returns a short run with small frames.
func DefaultConfig() Config {
	return Config{
		Seed:       1,
		Steps:      500,
		FrameSizes: []FrameSize{{64, 36}, {96, 54}, {128, 72}},
		Logger:     log.New(os.Stderr, "[stress] ", log.LstdFlags),
	}
}

// Violation is one broken invariant.
type Violation struct {
	Step      int
	Op        string
	Invariant string
	Detail    string
}

func (v Violation) String() string {
	return fmt.Sprintf("step %d (%s): %s: %s", v.Step, v.Op, v.Invariant, v.Detail)
}

// Leaks counts what was still alive after the session closed.
type Leaks struct {
	Callbacks       int // registry entries
	HostCallbacks   int // subscriptions the host still delivers to
	Materials       int
	DisplayTextures int
}

// Any reports whether anything leaked.
func (l Leaks) Any() bool {
	return l.Callbacks+l.HostCallbacks+l.Materials+l.DisplayTextures > 0
}

// LatencyStats describes per-step servicing time.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Steps int
}

// Report is the outcome of a run.
type Report struct {
	Seed       int64
	Steps      int
	Ops        map[string]int
	Violations []Violation
	Final      scene.Snapshot
	Leaks      Leaks
	Latency    LatencyStats
	Duration   time.Duration

	// Trace holds one record per applied step.
	Trace []StepRecord
}

// StepRecord is the timing of one step.
type StepRecord struct {
	Step       int
	Op         string
	Latency    time.Duration
	Violations int
}

// OK reports whether no invariant broke and nothing leaked.
func (r *Report) OK() bool {
	return len(r.Violations) == 0 && !r.Leaks.Any()
}

// PrintStats writes a human-readable summary to stdout.
func (r *Report) PrintStats() {
	fmt.Printf("Stress run (seed %d): %d steps in %v\n", r.Seed, r.Steps, r.Duration)
	ops := make([]string, 0, len(r.Ops))
	for op := range r.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Printf("  %-14s %d\n", op, r.Ops[op])
	}
	fmt.Printf("  Step P50:      %v\n", r.Latency.P50)
	fmt.Printf("  Step P95:      %v\n", r.Latency.P95)
	fmt.Printf("  Step Max:      %v\n", r.Latency.Max)
	fmt.Printf("  Violations:    %d\n", len(r.Violations))
}

type meshRef struct {
	name  string
	shape host.Handle
}

type runner struct {
	cfg   Config
	rng   *rand.Rand
	g     *memhost.Graph
	q     *eventq.Queue
	ctx   context.Context
	mats  *mempool.MaterialPool
	texs  *mempool.TexturePool
	scene *mempool.SceneGraph
	out   *mempool.FrameSource
	disp  *texture.MemoryDisplay
	cam   *mempool.Camera
	sess  *scene.Session

	camera host.Handle // transform of the viewport camera

	meshes  []meshRef
	shaders []host.Handle
	engines []host.Handle
	serial  int

	lastFrame FrameSize
	pending   []Violation
	report    *Report
}

var shaderTypes = []string{
	material.LambertTypeName,
	material.PhongTypeName,
	material.StandardSurfaceTypeName,
	"blinn",
	"surfaceShader",
}

// Run performs one stress run. An error means the run could not be set up
// or the host rejected a mutation; broken invariants are reported in the
// Report instead.
func Run(cfg Config) (*Report, error) {
	defaults := DefaultConfig()
	if cfg.Steps <= 0 {
		cfg.Steps = defaults.Steps
	}
	if len(cfg.FrameSizes) == 0 {
		cfg.FrameSizes = defaults.FrameSizes
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	r := &runner{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		g:     memhost.New(),
		ctx:   context.Background(),
		mats:  mempool.NewMaterialPool(0),
		texs:  mempool.NewTexturePool(),
		scene: mempool.NewSceneGraph(),
		out:   &mempool.FrameSource{},
		disp:  texture.NewMemoryDisplay(),
		cam:   mempool.NewCamera(),
		report: &Report{
			Seed: cfg.Seed,
			Ops:  make(map[string]int),
		},
	}
	start := time.Now()

	var graph host.Graph = r.g
	if cfg.Queued {
		r.q = eventq.NewWithConfig(eventq.Config{Logger: logging.For(cfg.Logger, "eventq")})
		defer r.q.Close()
		graph = eventq.Wrap(r.g, r.q)
	}
	if _, err := r.g.AddCamera("persp"); err != nil {
		return nil, fmt.Errorf("stress: %w", err)
	}
	r.camera, _ = r.g.Lookup("persp")

	err := r.do(func() error {
		s, err := scene.Activate(scene.SessionConfig{
			Graph:      graph,
			Materials:  r.mats,
			Textures:   r.texs,
			Scene:      r.scene,
			Output:     r.out,
			Display:    r.disp,
			Blitter:    r.disp,
			Camera:     r.cam,
			CameraName: "persp",
			Logger:     cfg.Logger,
		})
		r.sess = s
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stress: %w", err)
	}

	var durations []time.Duration
	for step := 1; step <= cfg.Steps; step++ {
		op := r.pick()
		began := time.Now()
		if err := r.apply(op); err != nil {
			r.close()
			return r.report, fmt.Errorf("stress: step %d (%s): %w", step, op, err)
		}
		var violations []Violation
		if err := r.do(func() error {
			violations = r.check(step, op)
			return nil
		}); err != nil {
			r.close()
			return r.report, fmt.Errorf("stress: step %d check: %w", step, err)
		}
		took := time.Since(began)
		durations = append(durations, took)
		r.report.Trace = append(r.report.Trace, StepRecord{Step: step, Op: op, Latency: took, Violations: len(violations)})
		r.report.Ops[op]++
		r.report.Steps = step
		r.report.Violations = append(r.report.Violations, violations...)
		if len(violations) > 0 && cfg.StopOnViolation {
			break
		}
	}

	_ = r.do(func() error {
		r.report.Final = r.sess.Snapshot()
		return nil
	})
	if err := r.close(); err != nil {
		return r.report, fmt.Errorf("stress: close session: %w", err)
	}
	r.report.Leaks = Leaks{
		Callbacks:       callback.Count(),
		HostCallbacks:   r.g.LiveCallbacks(),
		Materials:       r.mats.Live(),
		DisplayTextures: r.disp.Live(),
	}
	r.report.Latency = computeLatencyStats(durations)
	r.report.Duration = time.Since(start)
	return r.report, nil
}

// do runs fn where the session lives: inline, or on the queue after every
// event posted so far.
func (r *runner) do(fn func() error) error {
	if r.q == nil {
		return fn()
	}
	return r.q.Do(r.ctx, fn)
}

func (r *runner) close() error {
	if r.sess == nil {
		return nil
	}
	return r.do(r.sess.Close)
}

// ===== Mutations =====

const (
	opAddMesh      = "add_mesh"
	opRemoveMesh   = "remove_mesh"
	opAddNetwork   = "add_network"
	opAddEngine    = "add_engine"
	opBind         = "bind"
	opUnbind       = "unbind"
	opReassign     = "reassign"
	opEdit         = "edit"
	opTexture      = "texture"
	opRemoveShader = "remove_shader"
	opRemoveEngine = "remove_engine"
	opFrame        = "frame"
)

var weights = []struct {
	op     string
	weight int
}{
	{opAddMesh, 24},
	{opRemoveMesh, 10},
	{opAddNetwork, 8},
	{opAddEngine, 3},
	{opBind, 6},
	{opUnbind, 6},
	{opReassign, 10},
	{opEdit, 10},
	{opTexture, 4},
	{opRemoveShader, 3},
	{opRemoveEngine, 3},
	{opFrame, 9},
}

func (r *runner) pick() string {
	total := 0
	for _, w := range weights {
		total += w.weight
	}
	n := r.rng.Intn(total)
	for _, w := range weights {
		if n < w.weight {
			return w.op
		}
		n -= w.weight
	}
	return opFrame
}

func (r *runner) name(prefix string) string {
	r.serial++
	return fmt.Sprintf("%s%d", prefix, r.serial)
}

// apply performs op. Ops that find nothing to act on fall back to adding
// a mesh so every step mutates something.
func (r *runner) apply(op string) error {
	switch op {
	case opRemoveMesh:
		if len(r.meshes) > 0 {
			return r.removeMesh()
		}
	case opAddNetwork:
		return r.addNetwork()
	case opAddEngine:
		engine, err := r.g.AddShadingEngine(r.name("engine") + "SG")
		if err != nil {
			return err
		}
		r.engines = append(r.engines, engine)
		return nil
	case opBind:
		if engine, ok := r.engineWhere(false); ok && len(r.shaders) > 0 {
			return r.g.AssignShader(r.shaders[r.rng.Intn(len(r.shaders))], engine)
		}
	case opUnbind:
		if engine, ok := r.engineWhere(true); ok {
			src, _, err := r.g.Source(host.Plug{Node: engine, Name: host.PlugSurfaceShader})
			if err != nil {
				return err
			}
			return r.g.UnassignShader(src.Node, engine)
		}
	case opReassign:
		if len(r.meshes) > 0 {
			return r.reassign(r.meshes[r.rng.Intn(len(r.meshes))].shape)
		}
	case opEdit:
		if len(r.shaders) > 0 {
			return r.edit(r.shaders[r.rng.Intn(len(r.shaders))])
		}
	case opTexture:
		if len(r.shaders) > 0 {
			return r.texture(r.shaders[r.rng.Intn(len(r.shaders))])
		}
	case opRemoveShader:
		if len(r.shaders) > 0 {
			i := r.rng.Intn(len(r.shaders))
			h := r.shaders[i]
			r.shaders = append(r.shaders[:i], r.shaders[i+1:]...)
			return r.g.RemoveNode(h)
		}
	case opRemoveEngine:
		if len(r.engines) > 0 {
			i := r.rng.Intn(len(r.engines))
			h := r.engines[i]
			r.engines = append(r.engines[:i], r.engines[i+1:]...)
			return r.g.RemoveNode(h)
		}
	case opFrame:
		return r.frame()
	}
	return r.addMesh()
}

func (r *runner) addMesh() error {
	name := r.name("pMesh")
	shape, err := r.g.AddMesh(name)
	if err != nil {
		return err
	}
	r.meshes = append(r.meshes, meshRef{name: name, shape: shape})
	if len(r.engines) > 0 && r.rng.Intn(2) == 0 {
		return r.g.AssignMesh(shape, r.engines[r.rng.Intn(len(r.engines))])
	}
	return nil
}

func (r *runner) removeMesh() error {
	i := r.rng.Intn(len(r.meshes))
	ref := r.meshes[i]
	r.meshes = append(r.meshes[:i], r.meshes[i+1:]...)

	target := ref.shape
	if r.rng.Intn(2) == 0 {
		transform, ok := r.g.Lookup(ref.name)
		if !ok {
			return fmt.Errorf("transform %s missing", ref.name)
		}
		target = transform
	}
	return r.g.RemoveNode(target)
}

func (r *runner) addNetwork() error {
	typeName := shaderTypes[r.rng.Intn(len(shaderTypes))]
	shaderName := r.name(typeName)
	shader, err := r.g.AddShader(typeName, shaderName)
	if err != nil {
		return err
	}
	engine, err := r.g.AddShadingEngine(shaderName + "SG")
	if err != nil {
		return err
	}
	r.shaders = append(r.shaders, shader)
	r.engines = append(r.engines, engine)
	return r.g.AssignShader(shader, engine)
}

// engineWhere picks a random engine that has (or lacks) a surface shader.
func (r *runner) engineWhere(bound bool) (host.Handle, bool) {
	var candidates []host.Handle
	for _, engine := range r.engines {
		_, ok, err := r.g.Source(host.Plug{Node: engine, Name: host.PlugSurfaceShader})
		if err == nil && ok == bound {
			candidates = append(candidates, engine)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[r.rng.Intn(len(candidates))], true
}

// reassign moves a mesh off its engine and, most of the time, onto
// another one. A mesh is a member of at most one engine.
func (r *runner) reassign(mesh host.Handle) error {
	engines, err := r.g.ShadingEngines(mesh)
	if err != nil {
		return err
	}
	for _, engine := range engines {
		if err := r.g.UnassignMesh(mesh, engine); err != nil {
			return err
		}
	}
	if len(r.engines) > 0 && r.rng.Intn(10) < 7 {
		return r.g.AssignMesh(mesh, r.engines[r.rng.Intn(len(r.engines))])
	}
	return nil
}

func albedoPlug(typeName string) string {
	if typeName == material.StandardSurfaceTypeName {
		return "baseColor"
	}
	return "color"
}

func (r *runner) edit(shader host.Handle) error {
	typeName, err := r.g.TypeName(shader)
	if err != nil {
		return err
	}
	if r.rng.Intn(3) == 0 {
		plug := "reflectivity"
		if typeName == material.StandardSurfaceTypeName {
			plug = "metalness"
		}
		return r.g.SetFloat(host.Plug{Node: shader, Name: plug}, r.rng.Float32())
	}
	c := host.Vec3{r.rng.Float32(), r.rng.Float32(), r.rng.Float32()}
	return r.g.SetColor(host.Plug{Node: shader, Name: albedoPlug(typeName)}, c)
}

func (r *runner) texture(shader host.Handle) error {
	typeName, err := r.g.TypeName(shader)
	if err != nil {
		return err
	}
	plug := albedoPlug(typeName)
	if _, connected, err := r.g.Source(host.Plug{Node: shader, Name: plug}); err != nil || connected {
		return err
	}
	name := r.name("file")
	file, err := r.g.AddFileTexture(name, "textures/"+name+".png")
	if err != nil {
		return err
	}
	return r.g.ConnectTexture(file, shader, plug)
}

func (r *runner) frame() error {
	size := r.cfg.FrameSizes[r.rng.Intn(len(r.cfg.FrameSizes))]
	r.out.Produce(size.Width, size.Height, [4]byte{uint8(r.serial), 64, 128, 255})
	pos := host.Vec3{r.rng.Float32() * 10, r.rng.Float32() * 10, r.rng.Float32() * 10}
	if err := r.g.SetColor(host.Plug{Node: r.camera, Name: host.PlugTranslate}, pos); err != nil {
		return err
	}
	return r.do(func() error {
		before := r.sess.Bridge().Stats().Reacquired
		ok := r.sess.Frame(size.Width, size.Height)
		after := r.sess.Bridge().Stats().Reacquired

		want := 0
		if size != r.lastFrame {
			want = 1
		}
		r.lastFrame = size
		for slot := range after {
			if got := after[slot] - before[slot]; got != want {
				r.violate(opFrame, "texture reacquisition",
					fmt.Sprintf("slot %d reacquired %d times for %dx%d, want %d", slot, got, size.Width, size.Height, want))
			}
		}
		if !ok {
			r.violate(opFrame, "texture availability", "no display texture after frame")
		}
		if cam, _ := r.cam.State(); cam.Position != [3]float32(pos) {
			r.violate(opFrame, "camera sync",
				fmt.Sprintf("renderer camera at %v, host camera at %v", cam.Position, pos))
		}
		return nil
	})
}

// violate records a violation raised outside check. The next check takes
// it over with the step number filled in.
func (r *runner) violate(op, invariant, detail string) {
	r.pending = append(r.pending, Violation{Op: op, Invariant: invariant, Detail: detail})
}
