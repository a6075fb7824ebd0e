package material

import (
	"errors"
	"fmt"
	"sort"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/renderer"
)

// Manager hands out one renderer material per shading engine.
//
// Released handles are kept on a free list and handed out again before the
// pool is asked for a new material.
type Manager struct {
	pool     renderer.MaterialPool
	byEngine map[host.Handle]renderer.MaterialHandle
	free     []renderer.MaterialHandle
	created  int
	reused   int
}

// NewManager creates a manager over pool.
func NewManager(pool renderer.MaterialPool) *Manager {
	return &Manager{
		pool:     pool,
		byEngine: make(map[host.Handle]renderer.MaterialHandle),
	}
}

// Acquire returns the engine's material, allocating one if needed.
func (m *Manager) Acquire(engine host.Handle) (renderer.MaterialHandle, error) {
	if h, ok := m.byEngine[engine]; ok {
		return h, nil
	}

	if n := len(m.free); n > 0 {
		h := m.free[n-1]
		m.free = m.free[:n-1]
		m.byEngine[engine] = h
		m.reused++
		return h, nil
	}

	h, err := m.pool.Create()
	if err != nil {
		return 0, fmt.Errorf("create material for %s: %w", engine, err)
	}
	m.byEngine[engine] = h
	m.created++
	return h, nil
}

// Lookup returns the engine's material if it has one.
func (m *Manager) Lookup(engine host.Handle) (renderer.MaterialHandle, bool) {
	h, ok := m.byEngine[engine]
	return h, ok
}

// Material returns the renderer object behind h.
func (m *Manager) Material(h renderer.MaterialHandle) (renderer.Material, error) {
	mat, err := m.pool.Material(h)
	if err != nil {
		return nil, fmt.Errorf("get material %d: %w", h, err)
	}
	return mat, nil
}

// Release moves the engine's material to the free list.
// Returns false if the engine held none.
func (m *Manager) Release(engine host.Handle) bool {
	h, ok := m.byEngine[engine]
	if !ok {
		return false
	}
	delete(m.byEngine, engine)
	m.free = append(m.free, h)
	return true
}

// Live returns the number of materials bound to engines.
func (m *Manager) Live() int { return len(m.byEngine) }

// Free returns the number of handles waiting for reuse.
func (m *Manager) Free() int { return len(m.free) }

// Created returns how many materials were allocated from the pool.
func (m *Manager) Created() int { return m.created }

// Reused returns how many acquisitions were served from the free list.
func (m *Manager) Reused() int { return m.reused }

// Close returns every material, bound or free, to the pool.
func (m *Manager) Close() error {
	handles := append([]renderer.MaterialHandle(nil), m.free...)
	for _, h := range m.byEngine {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	var errs []error
	for _, h := range handles {
		if err := m.pool.Release(h); err != nil {
			errs = append(errs, fmt.Errorf("release material %d: %w", h, err))
		}
	}
	m.byEngine = make(map[host.Handle]renderer.MaterialHandle)
	m.free = nil
	return errors.Join(errs...)
}
