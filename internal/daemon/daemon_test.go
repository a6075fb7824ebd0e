package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/callback"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/dashboard"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ledger"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scenefile"
)

const networkScript = `
steps:
  - {op: shader, name: lambert2, type: lambert}
  - {op: engine, name: lambert2SG}
  - {op: bind, shader: lambert2, engine: lambert2SG}
  - {op: mesh, name: pCube1}
  - {op: assign, node: pCube1, engine: lambert2SG}
`

const secondMeshScript = `{
  "steps": [
    {"op": "mesh", "name": "pCube2"},
    {"op": "assign", "node": "pCube2", "engine": "lambert2SG"},
    {"op": "refresh", "shader": "lambert2"}
  ]
}`

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	mu        sync.Mutex
	events    []scene.Event
	snapshots []scene.Snapshot
	scripts   []dashboard.ScriptData
	snapped   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{snapped: make(chan struct{}, 16)}
}

func (r *recorder) OnEvent(ev scene.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnSnapshot(snap scene.Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, snap)
	r.mu.Unlock()
	select {
	case r.snapped <- struct{}{}:
	default:
	}
}

func (r *recorder) OnScript(data dashboard.ScriptData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, data)
}

func (r *recorder) scriptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scripts)
}

func resetRegistry(t *testing.T) {
	t.Helper()
	callback.RevokeAll()
	t.Cleanup(func() {
		callback.RevokeAll()
		callback.SetLogger(nil)
	})
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func testConfig(obs Observer) *Config {
	cfg := DefaultConfig()
	cfg.DebounceInterval = 20 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	if obs != nil {
		cfg.Observer = obs
	}
	return cfg
}

func newDaemon(t *testing.T, dir string, cfg *Config) *Daemon {
	t.Helper()
	d, err := NewWithConfig(dir, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewWithConfig(t *testing.T) {
	if _, err := NewWithConfig("", nil); err == nil {
		t.Error("NewWithConfig(\"\") succeeded, want error")
	}

	d, err := NewWithConfig(t.TempDir(), &Config{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer d.Stop()
	if d.config.DebounceInterval != 100*time.Millisecond {
		t.Errorf("DebounceInterval = %v, want default", d.config.DebounceInterval)
	}
	if d.config.OutputWidth != 1280 || d.config.OutputHeight != 720 {
		t.Errorf("output = %dx%d, want 1280x720", d.config.OutputWidth, d.config.OutputHeight)
	}
	if d.config.SessionName == "" {
		t.Error("SessionName not defaulted")
	}
}

func TestActivateReplaysExistingScripts(t *testing.T) {
	resetRegistry(t)
	dir := t.TempDir()
	writeScript(t, dir, "01-network.yaml", networkScript)
	writeScript(t, dir, "02-second.json", secondMeshScript)
	writeScript(t, dir, "notes.txt", "not a script")

	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	cfg := testConfig(rec)
	cfg.Ledger = db
	d := newDaemon(t, dir, cfg)
	ctx := testContext(t)

	if err := d.Activate(ctx); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if st := d.Stats(); st.Applied != 2 || st.Failed != 0 {
		t.Errorf("stats = %+v, want 2 applied", st)
	}

	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Objects) != 2 || snap.DefaultObjects() != 0 {
		t.Errorf("objects = %d (default %d), want 2 on the lambert material", len(snap.Objects), snap.DefaultObjects())
	}
	if snap.BuiltMaterials() != 1 || snap.Watches != 1 {
		t.Errorf("built = %d, watches = %d, want 1 and 1", snap.BuiltMaterials(), snap.Watches)
	}
	if snap.Color.Width != 1280 || snap.Color.Height != 720 || !snap.Color.Valid {
		t.Errorf("color slot = %+v, want the configured output size", snap.Color)
	}

	latest, err := db.LatestSnapshot(ctx, d.LedgerSession())
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if len(latest.Objects) != 2 {
		t.Errorf("ledger snapshot has %d objects, want 2", len(latest.Objects))
	}
	counts, err := db.EventCounts(ctx, d.LedgerSession())
	if err != nil {
		t.Fatal(err)
	}
	if counts[scene.EventMeshAdded] != 2 {
		t.Errorf("ledger mesh_added = %d, want 2", counts[scene.EventMeshAdded])
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.scripts) != 2 || rec.scripts[0].Name != "01-network" || rec.scripts[1].Steps != 3 {
		t.Errorf("scripts = %+v", rec.scripts)
	}
	if len(rec.snapshots) != 1 {
		t.Errorf("observer saw %d snapshots, want 1", len(rec.snapshots))
	}
	if len(rec.events) == 0 {
		t.Error("observer saw no events")
	}
}

func TestApplyFileFrameSteps(t *testing.T) {
	resetRegistry(t)
	dir := t.TempDir()
	d := newDaemon(t, dir, testConfig(nil))
	ctx := testContext(t)
	if err := d.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	path := writeScript(t, dir, "resize.yaml", `
steps:
  - {op: mesh, name: pSphere1}
  - {op: frame, width: 1920, height: 1080}
`)
	res, err := d.ApplyFile(ctx, path)
	if err != nil {
		t.Fatalf("ApplyFile failed: %v", err)
	}
	if res.Applied != 2 || res.Frames != 1 {
		t.Errorf("result = %+v", res)
	}

	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Color.Width != 1920 || snap.Depth.Height != 1080 {
		t.Errorf("slots = %+v / %+v, want 1920x1080", snap.Color, snap.Depth)
	}
	if len(snap.Objects) != 1 || snap.DefaultObjects() != 1 {
		t.Errorf("objects = %+v, want one mesh on the default material", snap.Objects)
	}
	if d.Display().Live() != 2 {
		t.Errorf("live display textures = %d, want 2", d.Display().Live())
	}
}

func TestApplyFileFailure(t *testing.T) {
	resetRegistry(t)
	dir := t.TempDir()
	rec := newRecorder()
	d := newDaemon(t, dir, testConfig(rec))
	ctx := testContext(t)
	if err := d.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	path := writeScript(t, dir, "broken.yaml", `
steps:
  - {op: mesh, name: pCube1}
  - {op: assign, node: pCube1, engine: missingSG}
`)
	res, err := d.ApplyFile(ctx, path)
	if !errors.Is(err, scenefile.ErrUnknownNode) {
		t.Fatalf("ApplyFile() = %v, want ErrUnknownNode", err)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if st := d.Stats(); st.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", st)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.scripts) != 1 || rec.scripts[0].Error == "" {
		t.Errorf("scripts = %+v, want one failed script", rec.scripts)
	}
}

func TestApplyFileBeforeActivate(t *testing.T) {
	dir := t.TempDir()
	d := newDaemon(t, dir, testConfig(nil))
	path := writeScript(t, dir, "a.yaml", networkScript)
	if _, err := d.ApplyFile(context.Background(), path); err == nil {
		t.Error("ApplyFile before Activate succeeded, want error")
	}
}

func TestStartWatchesScripts(t *testing.T) {
	resetRegistry(t)
	dir := t.TempDir()
	writeScript(t, dir, "01-network.yaml", networkScript)

	rec := newRecorder()
	d := newDaemon(t, dir, testConfig(rec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	select {
	case <-rec.snapped:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the activation snapshot")
	}
	waitFor(t, "watcher", d.watcher.IsRunning)

	// Rename into place so the watcher never sees a half-written script.
	staged := writeScript(t, t.TempDir(), "02-second.json", secondMeshScript)
	if err := os.Rename(staged, filepath.Join(dir, "02-second.json")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second script", func() bool { return rec.scriptCount() >= 2 })
	// The batch is followed by its own snapshot.
	select {
	case <-rec.snapped:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the batch snapshot")
	}

	snap, err := d.Snapshot(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Objects) != 2 {
		t.Errorf("tracked %d objects, want 2", len(snap.Objects))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if n := callback.Count(); n != 0 {
		t.Errorf("%d callbacks live after Stop, want 0", n)
	}
}

func TestStopTwice(t *testing.T) {
	resetRegistry(t)
	d := newDaemon(t, t.TempDir(), testConfig(nil))
	ctx := testContext(t)
	if err := d.Activate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
	if err := d.Activate(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Activate after Stop = %v, want ErrStopped", err)
	}
}

func TestConvertEvent(t *testing.T) {
	dir := t.TempDir()
	sw := &ScriptWatcher{dir: dir}

	tests := []struct {
		name   string
		event  fsnotify.Event
		want   EventOp
		wantOK bool
	}{
		{"create yaml", fsnotify.Event{Name: filepath.Join(dir, "a.yaml"), Op: fsnotify.Create}, OpCreate, true},
		{"write toml", fsnotify.Event{Name: filepath.Join(dir, "a.toml"), Op: fsnotify.Write}, OpModify, true},
		{"remove json", fsnotify.Event{Name: filepath.Join(dir, "a.json"), Op: fsnotify.Remove}, OpDelete, true},
		{"rename yml", fsnotify.Event{Name: filepath.Join(dir, "a.yml"), Op: fsnotify.Rename}, OpDelete, true},
		{"chmod", fsnotify.Event{Name: filepath.Join(dir, "a.yaml"), Op: fsnotify.Chmod}, 0, false},
		{"not a script", fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Create}, 0, false},
		{"other dir", fsnotify.Event{Name: filepath.Join(dir, "sub", "a.yaml"), Op: fsnotify.Create}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := sw.convertEvent(tt.event)
			if ok != tt.wantOK {
				t.Fatalf("convertEvent() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ev.Op != tt.want {
				t.Errorf("op = %s, want %s", ev.Op, tt.want)
			}
		})
	}
}
