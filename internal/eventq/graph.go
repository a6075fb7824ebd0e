package eventq

import (
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
)

// graph forwards queries unchanged and routes every callback through a
// Queue.
type graph struct {
	host.Graph
	q *Queue
}

// Wrap returns a host.Graph whose subscription callbacks run on q's
// goroutine instead of the goroutine that mutates g. Events delivered after
// q is closed are dropped.
func Wrap(g host.Graph, q *Queue) host.Graph {
	return &graph{Graph: g, q: q}
}

func (g *graph) OnNodeAdded(kind host.NodeKind, fn host.NodeFunc) (host.Subscription, error) {
	if fn == nil {
		return g.Graph.OnNodeAdded(kind, nil)
	}
	return g.Graph.OnNodeAdded(kind, func(node host.Handle) {
		_ = g.q.Post(func() { fn(node) })
	})
}

func (g *graph) OnNodeRemoved(kind host.NodeKind, fn host.NodeFunc) (host.Subscription, error) {
	if fn == nil {
		return g.Graph.OnNodeRemoved(kind, nil)
	}
	return g.Graph.OnNodeRemoved(kind, func(node host.Handle) {
		_ = g.q.Post(func() { fn(node) })
	})
}

func (g *graph) OnConnection(fn host.ConnectionFunc) (host.Subscription, error) {
	if fn == nil {
		return g.Graph.OnConnection(nil)
	}
	return g.Graph.OnConnection(func(src, dst host.Plug, made bool) {
		_ = g.q.Post(func() { fn(src, dst, made) })
	})
}

func (g *graph) OnAttributeChanged(node host.Handle, fn host.AttributeFunc) (host.Subscription, error) {
	if fn == nil {
		return g.Graph.OnAttributeChanged(node, nil)
	}
	return g.Graph.OnAttributeChanged(node, func(n host.Handle, plug string) {
		_ = g.q.Post(func() { fn(n, plug) })
	})
}
