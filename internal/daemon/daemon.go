// Package daemon runs a live viewport session driven by scene scripts.
//
// The daemon:
// 1. Activates a viewport session over an in-memory host graph
// 2. Applies every script already in the scripts directory
// 3. Watches the directory and applies new or modified scripts
// 4. Pumps one frame through the texture bridge after each batch
// 5. Records a snapshot to the ledger and notifies the observer
//
// Graph mutations happen on the daemon's goroutines. Host callbacks are
// serialized onto an event queue, so the session only ever runs on the
// queue goroutine.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/dashboard"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/eventq"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host/memhost"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ledger"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer/mempool"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scenefile"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/texture"
)

// ErrStopped is returned by operations on a stopped daemon.
var ErrStopped = errors.New("daemon stopped")

// Observer receives session activity. dashboard.Handler satisfies it.
type Observer interface {
	OnEvent(scene.Event)
	OnSnapshot(scene.Snapshot)
	OnScript(dashboard.ScriptData)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a script must stay unchanged before it
	// is applied. Rapid saves are batched together.
	DebounceInterval time.Duration

	// OutputWidth and OutputHeight size the frame pumped after each batch.
	OutputWidth  int
	OutputHeight int

	// CameraName is the host camera followed by the renderer camera.
	// Empty follows the first camera a script creates.
	CameraName string

	// SessionName labels the ledger session (default: scripts dir name).
	SessionName string

	// Ledger records snapshots and events when set.
	Ledger *ledger.DB

	// Observer is notified of events, snapshots and scripts when set.
	Observer Observer

	// Logger for daemon activity. Session components derive their loggers
	// from it.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		OutputWidth:      1280,
		OutputHeight:     720,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Stats counts processed scripts.
type Stats struct {
	Applied int
	Failed  int
	Frames  int
}

// Daemon owns the host graph, the renderer fakes and the viewport session.
type Daemon struct {
	dir    string
	config *Config
	logger *log.Logger

	graph   *memhost.Graph
	queue   *eventq.Queue
	mats    *mempool.MaterialPool
	texs    *mempool.TexturePool
	scene   *mempool.SceneGraph
	out     *mempool.FrameSource
	camera  *mempool.Camera
	display *texture.MemoryDisplay

	session   *scene.Session
	ledgerID  int64
	activated bool

	watcher       *ScriptWatcher
	changeQueue   map[string]time.Time // path -> last change
	changeQueueMu sync.Mutex

	applyMu sync.Mutex
	statsMu sync.Mutex
	stats   Stats

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New creates a daemon over scriptsDir with the default configuration.
//
// Use Start() to begin watching, or Activate() and ApplyFile() to drive
// the session by hand.
func New(scriptsDir string) (*Daemon, error) {
	return NewWithConfig(scriptsDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(scriptsDir string, config *Config) (*Daemon, error) {
	if scriptsDir == "" {
		return nil, fmt.Errorf("scriptsDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.OutputWidth <= 0 || config.OutputHeight <= 0 {
		config.OutputWidth, config.OutputHeight = defaults.OutputWidth, defaults.OutputHeight
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.SessionName == "" {
		config.SessionName = filepath.Base(scriptsDir)
	}

	watcher, err := NewScriptWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		dir:         scriptsDir,
		config:      config,
		logger:      config.Logger,
		graph:       memhost.New(),
		queue:       eventq.NewWithConfig(eventq.Config{Logger: logging.For(config.Logger, "eventq")}),
		mats:        mempool.NewMaterialPool(0),
		texs:        mempool.NewTexturePool(),
		scene:       mempool.NewSceneGraph(),
		out:         &mempool.FrameSource{},
		camera:      mempool.NewCamera(),
		display:     texture.NewMemoryDisplay(),
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Activate starts the viewport session and applies every script already
// in the scripts directory in lexical order. It is a no-op once the
// session is active.
func (d *Daemon) Activate(ctx context.Context) error {
	if d.ctx.Err() != nil {
		return ErrStopped
	}
	if d.activated {
		return nil
	}

	err := d.queue.Do(ctx, func() error {
		s, err := scene.Activate(scene.SessionConfig{
			Graph:      eventq.Wrap(d.graph, d.queue),
			Materials:  d.mats,
			Textures:   d.texs,
			Scene:      d.scene,
			Output:     d.out,
			Display:    d.display,
			Blitter:    d.display,
			Camera:     d.camera,
			CameraName: d.config.CameraName,
			Logger:     d.logger,
			OnEvent:    d.onEvent,
		})
		if err != nil {
			return err
		}
		d.session = s
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to activate session: %w", err)
	}
	d.activated = true

	if d.config.Ledger != nil {
		id, err := d.config.Ledger.StartSession(ctx, d.config.SessionName)
		if err != nil {
			d.logger.Printf("Warning: ledger disabled: %v", err)
		} else {
			d.ledgerID = id
		}
	}

	paths, err := d.scripts()
	if err != nil {
		return err
	}
	d.logger.Printf("Replaying %d scripts from %s", len(paths), d.dir)
	for _, path := range paths {
		if _, err := d.ApplyFile(ctx, path); err != nil {
			d.logger.Printf("Warning: %v", err)
		}
	}
	d.pump(ctx)
	return nil
}

// Start activates the session, watches the scripts directory and
// processes changes with debouncing.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	if err := d.Activate(ctx); err != nil {
		return err
	}
	if err := d.watcher.Start(d.dir); err != nil {
		return err
	}
	d.logger.Printf("Watching: %s", d.dir)

	d.wg.Add(2)
	go d.watchScriptEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop closes the session and shuts the daemon down. It is safe to call
// more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Println("Stopping daemon")
		d.cancel()

		if err := d.watcher.Stop(); err != nil {
			d.logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()

		var errs []error
		if d.session != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			errs = append(errs, d.queue.Do(ctx, d.session.Close))
			cancel()
		}
		errs = append(errs, d.queue.Close())
		d.stopErr = errors.Join(errs...)
		d.logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// ApplyFile reads one script and applies it to the host graph. Frame steps
// pump the renderer output through the texture bridge and refresh steps
// re-resolve every binding of a shader. The queue is flushed before
// returning, so the session has serviced every event the script caused.
func (d *Daemon) ApplyFile(ctx context.Context, path string) (scenefile.Result, error) {
	if !d.activated {
		return scenefile.Result{}, fmt.Errorf("apply %s: session not active", path)
	}
	if d.ctx.Err() != nil {
		return scenefile.Result{}, ErrStopped
	}
	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	start := time.Now()
	doc, err := scenefile.Read(path)
	if err != nil {
		d.finish(dashboard.ScriptData{Name: filepath.Base(path), Error: err.Error()}, err)
		return scenefile.Result{}, err
	}

	res, err := scenefile.Apply(d.graph, doc, scenefile.Hooks{
		Frame: func(w, h int) error {
			return d.frame(ctx, w, h)
		},
		Refresh: func(shader host.Handle) error {
			return d.queue.Do(ctx, func() error {
				return d.session.Resolver().OnCreateSurfaceShader(shader)
			})
		},
	})
	if ferr := d.queue.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}

	data := dashboard.ScriptData{
		Name:     doc.Name,
		Steps:    res.Applied,
		Frames:   res.Frames,
		Duration: time.Since(start),
	}
	if err != nil {
		err = fmt.Errorf("script %s: %w", doc.Name, err)
		data.Error = err.Error()
	} else {
		d.logger.Printf("Applied %s: %d steps, %d frames", doc.Name, res.Applied, res.Frames)
	}
	d.finish(data, err)
	return res, err
}

func (d *Daemon) finish(data dashboard.ScriptData, err error) {
	d.statsMu.Lock()
	if err != nil {
		d.stats.Failed++
	} else {
		d.stats.Applied++
	}
	d.stats.Frames += data.Frames
	d.statsMu.Unlock()
	if d.config.Observer != nil {
		d.config.Observer.OnScript(data)
	}
}

// frame produces renderer output of the given size and copies it into
// the display slots on the session goroutine.
func (d *Daemon) frame(ctx context.Context, width, height int) error {
	d.out.Produce(width, height, [4]byte{40, 40, 48, 255})
	return d.queue.Do(ctx, func() error {
		if !d.session.Frame(width, height) {
			d.logger.Printf("Warning: no display texture for %dx%d frame", width, height)
		}
		return nil
	})
}

// pump sends one frame at the configured output size and records the
// resulting state.
func (d *Daemon) pump(ctx context.Context) {
	if err := d.frame(ctx, d.config.OutputWidth, d.config.OutputHeight); err != nil {
		d.logger.Printf("Warning: frame failed: %v", err)
		return
	}
	snap, err := d.Snapshot(ctx)
	if err != nil {
		d.logger.Printf("Warning: snapshot failed: %v", err)
		return
	}
	if d.config.Ledger != nil && d.ledgerID != 0 {
		if err := d.config.Ledger.RecordSnapshot(ctx, d.ledgerID, snap); err != nil {
			d.logger.Printf("Warning: failed to record snapshot: %v", err)
		}
	}
	if d.config.Observer != nil {
		d.config.Observer.OnSnapshot(snap)
	}
}

// onEvent runs on the queue goroutine for every serviced host event.
func (d *Daemon) onEvent(ev scene.Event) {
	if d.config.Ledger != nil && d.ledgerID != 0 {
		if err := d.config.Ledger.RecordEvent(d.ctx, d.ledgerID, ev); err != nil {
			d.logger.Printf("Warning: failed to record event: %v", err)
		}
	}
	if d.config.Observer != nil {
		d.config.Observer.OnEvent(ev)
	}
}

// Snapshot captures the session state on the session goroutine.
func (d *Daemon) Snapshot(ctx context.Context) (scene.Snapshot, error) {
	if d.session == nil {
		return scene.Snapshot{}, fmt.Errorf("snapshot: session not active")
	}
	var snap scene.Snapshot
	err := d.queue.Do(ctx, func() error {
		snap = d.session.Snapshot()
		return nil
	})
	return snap, err
}

// Graph returns the host graph scripts are applied to.
func (d *Daemon) Graph() *memhost.Graph { return d.graph }

// Display returns the in-memory display texture manager.
func (d *Daemon) Display() *texture.MemoryDisplay { return d.display }

// LedgerSession returns the ledger session id, or 0 without a ledger.
func (d *Daemon) LedgerSession() int64 { return d.ledgerID }

// Stats returns script counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Daemon) scripts() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read scripts directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !scenefile.IsScript(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(d.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// watchScriptEvents queues script changes.
func (d *Daemon) watchScriptEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if ev.Op == OpDelete {
				// Applied scripts stay applied; there is nothing to undo.
				d.logger.Printf("Script removed: %s", ev.Path)
				d.dequeue(ev.Path)
				continue
			}
			d.logger.Printf("Script event: %s %s", ev.Op, ev.Path)
			d.queueChange(ev.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

func (d *Daemon) dequeue(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	delete(d.changeQueue, path)
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges applies scripts that have been quiet for a full
// debounce interval, then pumps one frame for the whole batch.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)
	for _, path := range ready {
		d.logger.Printf("Processing change: %s", path)
		if _, err := d.ApplyFile(d.ctx, path); err != nil {
			d.logger.Printf("Error applying %s: %v", path, err)
		}
	}
	d.pump(d.ctx)
}

// Pending returns the number of queued script changes.
func (d *Daemon) Pending() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	return len(d.changeQueue)
}
