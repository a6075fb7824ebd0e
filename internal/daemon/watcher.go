package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scenefile"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new script was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing script was modified.
	OpModify
	// OpDelete indicates a script was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ScriptEvent reports a change to one scene script.
type ScriptEvent struct {
	Path string
	Op   EventOp
}

// ScriptWatcher watches a directory for scene script changes. Files whose
// extension names no script format are ignored.
type ScriptWatcher struct {
	watcher *fsnotify.Watcher
	events  chan ScriptEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
}

// NewScriptWatcher creates a watcher. Start must be called before it
// emits events.
func NewScriptWatcher() (*ScriptWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &ScriptWatcher{
		watcher: w,
		events:  make(chan ScriptEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir.
func (sw *ScriptWatcher) Start(dir string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := sw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch scripts directory %s: %w", dir, err)
	}
	sw.dir = abs
	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()
	return nil
}

// Stop stops watching and closes the event channels. It blocks until the
// event goroutine exits. Stop on a watcher that never started only
// releases the fsnotify handle.
func (sw *ScriptWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return sw.watcher.Close()
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)
	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	sw.wg.Wait()
	close(sw.events)
	close(sw.errors)
	return nil
}

// Events returns the script event channel. It is closed by Stop.
func (sw *ScriptWatcher) Events() <-chan ScriptEvent {
	return sw.events
}

// Errors returns the watcher error channel. It is closed by Stop.
func (sw *ScriptWatcher) Errors() <-chan error {
	return sw.errors
}

// IsRunning reports whether the watcher is started.
func (sw *ScriptWatcher) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}

func (sw *ScriptWatcher) processEvents() {
	defer sw.wg.Done()
	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			ev, ok := sw.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case sw.events <- ev:
			case <-sw.done:
				return
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event onto a ScriptEvent. Chmod events,
// non-script files and files outside the watched directory are dropped.
func (sw *ScriptWatcher) convertEvent(event fsnotify.Event) (ScriptEvent, bool) {
	if !scenefile.IsScript(event.Name) {
		return ScriptEvent{}, false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || filepath.Dir(abs) != sw.dir {
		return ScriptEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return ScriptEvent{}, false
	}
	return ScriptEvent{Path: abs, Op: op}, true
}
