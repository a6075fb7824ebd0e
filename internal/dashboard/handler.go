package dashboard

import (
	"log"
	"sync"
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
)

// ScriptData describes an applied scene script.
type ScriptData struct {
	Name     string        `json:"name"`
	Steps    int           `json:"steps"`
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Handler turns session activity into dashboard messages. Its methods fit
// the daemon's observer hooks.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.Mutex
	counts map[scene.EventKind]int
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{
		server: server,
		logger: logger,
		counts: make(map[scene.EventKind]int),
	}
}

// OnEvent broadcasts one serviced host event.
func (h *Handler) OnEvent(ev scene.Event) {
	h.mu.Lock()
	h.counts[ev.Kind]++
	h.mu.Unlock()
	if err := h.server.BroadcastData(MessageTypeEvent, ev); err != nil {
		h.logger.Printf("Warning: %v", err)
	}
}

// OnSnapshot broadcasts a session snapshot.
func (h *Handler) OnSnapshot(snap scene.Snapshot) {
	if err := h.server.BroadcastData(MessageTypeSnapshot, snap); err != nil {
		h.logger.Printf("Warning: %v", err)
	}
}

// OnScript broadcasts an applied script.
func (h *Handler) OnScript(data ScriptData) {
	if err := h.server.BroadcastData(MessageTypeScript, data); err != nil {
		h.logger.Printf("Warning: %v", err)
	}
}

// Counts returns the number of events seen per kind.
func (h *Handler) Counts() map[scene.EventKind]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[scene.EventKind]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}
