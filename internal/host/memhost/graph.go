// Package memhost provides an in-memory host scene graph.
//
// Graph implements host.Graph and adds the mutation side of the host:
// creating and deleting nodes, connecting plugs and editing attributes.
// Events are delivered synchronously on the goroutine performing the
// mutation, after the graph lock has been released, in the same order the
// host application delivers them:
//
//   - deleting a node first breaks every connection touching it, then
//     deletes its DAG children, then reports the node itself as removed
//   - connecting into a node reports the connection change and then an
//     attribute change on the destination node
//
// Graph is safe for concurrent use.
package memhost

import (
	"fmt"
	"sort"
	"sync"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
)

type valueKind int

const (
	valueFloat valueKind = iota
	valueColor
	valueString
	valueMessage
)

type value struct {
	kind valueKind
	f    float32
	c    host.Vec3
	s    string
}

type node struct {
	handle       host.Handle
	kind         host.NodeKind
	typeName     string
	name         string
	parent       host.Handle
	children     []host.Handle
	intermediate bool
	attrs        map[string]value
}

type subClass int

const (
	subAdded subClass = iota
	subRemoved
	subConnection
	subAttribute
)

func (c subClass) String() string {
	switch c {
	case subAdded:
		return "node-added"
	case subRemoved:
		return "node-removed"
	case subConnection:
		return "connection"
	case subAttribute:
		return "attribute-changed"
	default:
		return "unknown"
	}
}

type subscriber struct {
	id     host.CallbackID
	class  subClass
	kind   host.NodeKind
	node   host.Handle
	nodeFn host.NodeFunc
	connFn host.ConnectionFunc
	attrFn host.AttributeFunc
}

// SubscribeHook can veto subscriptions; returning an error makes the
// subscription fail. Used to exercise setup failure paths.
type SubscribeHook func(class string) error

// Graph is an in-memory host scene graph.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[host.Handle]*node
	order    []host.Handle
	byName   map[string]host.Handle
	sourceOf map[host.Plug]host.Plug
	destsOf  map[host.Plug][]host.Plug
	subs     map[host.CallbackID]*subscriber

	nextHandle host.Handle
	nextID     host.CallbackID
	hook       SubscribeHook
	revoked    int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[host.Handle]*node),
		byName:   make(map[string]host.Handle),
		sourceOf: make(map[host.Plug]host.Plug),
		destsOf:  make(map[host.Plug][]host.Plug),
		subs:     make(map[host.CallbackID]*subscriber),
	}
}

// SetSubscribeHook installs a hook consulted before every subscription.
// Pass nil to remove it.
func (g *Graph) SetSubscribeHook(hook SubscribeHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = hook
}

// ===== Queries (host.Graph) =====

func (g *Graph) lookup(h host.Handle) (*node, error) {
	n, ok := g.nodes[h]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h, host.ErrNodeNotFound)
	}
	return n, nil
}

// Kind implements host.Graph.
func (g *Graph) Kind(h host.Handle) (host.NodeKind, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return host.KindUnknown, err
	}
	return n.kind, nil
}

// TypeName implements host.Graph.
func (g *Graph) TypeName(h host.Handle) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return "", err
	}
	return n.typeName, nil
}

// Name implements host.Graph.
func (g *Graph) Name(h host.Handle) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return "", err
	}
	return n.name, nil
}

// Parent implements host.Graph.
func (g *Graph) Parent(h host.Handle) (host.Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return 0, err
	}
	return n.parent, nil
}

// IsIntermediate implements host.Graph.
func (g *Graph) IsIntermediate(h host.Handle) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return false, err
	}
	return n.intermediate, nil
}

func (g *Graph) attr(p host.Plug, want valueKind) (value, error) {
	n, err := g.lookup(p.Node)
	if err != nil {
		return value{}, err
	}
	v, ok := n.attrs[p.Name]
	if !ok {
		return value{}, fmt.Errorf("%s.%s: %w", n.name, p.Name, host.ErrPlugNotFound)
	}
	if v.kind != want {
		return value{}, fmt.Errorf("%s.%s: %w", n.name, p.Name, host.ErrPlugType)
	}
	return v, nil
}

// Float implements host.Graph.
func (g *Graph) Float(p host.Plug) (float32, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, err := g.attr(p, valueFloat)
	return v.f, err
}

// Color implements host.Graph.
func (g *Graph) Color(p host.Plug) (host.Vec3, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, err := g.attr(p, valueColor)
	return v.c, err
}

// String implements host.Graph.
func (g *Graph) String(p host.Plug) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, err := g.attr(p, valueString)
	return v.s, err
}

// Source implements host.Graph.
func (g *Graph) Source(p host.Plug) (host.Plug, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, err := g.lookup(p.Node); err != nil {
		return host.Plug{}, false, err
	}
	src, ok := g.sourceOf[p]
	return src, ok, nil
}

// ShadingEngines implements host.Graph.
func (g *Graph) ShadingEngines(mesh host.Handle) ([]host.Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, err := g.lookup(mesh); err != nil {
		return nil, err
	}
	var engines []host.Handle
	for _, dst := range g.destsOf[host.Plug{Node: mesh, Name: host.PlugInstObjGroups}] {
		if n, ok := g.nodes[dst.Node]; ok && n.kind == host.KindShadingEngine {
			engines = append(engines, dst.Node)
		}
	}
	return engines, nil
}

// Walk implements host.Graph. DAG roots are visited in creation order and
// each root's children before its next sibling.
func (g *Graph) Walk(kind host.NodeKind, fn func(host.Handle) error) error {
	g.mu.RLock()
	var visit []host.Handle
	var dfs func(h host.Handle)
	dfs = func(h host.Handle) {
		n := g.nodes[h]
		if n.kind == kind {
			visit = append(visit, h)
		}
		for _, c := range n.children {
			dfs(c)
		}
	}
	for _, h := range g.order {
		if g.nodes[h].parent == 0 {
			dfs(h)
		}
	}
	g.mu.RUnlock()

	for _, h := range visit {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

// ===== Subscriptions (host.Graph) =====

func (g *Graph) subscribe(s *subscriber) (host.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hook != nil {
		if err := g.hook(s.class.String()); err != nil {
			return host.Subscription{}, fmt.Errorf("%s: %w: %v", s.class, host.ErrSubscriptionFailed, err)
		}
	}
	g.nextID++
	s.id = g.nextID
	g.subs[s.id] = s
	id := s.id
	return host.NewSubscription(id, func() error { return g.removeCallback(id) }), nil
}

// OnNodeAdded implements host.Graph.
func (g *Graph) OnNodeAdded(kind host.NodeKind, fn host.NodeFunc) (host.Subscription, error) {
	if fn == nil {
		return host.Subscription{}, fmt.Errorf("node-added callback is nil: %w", host.ErrSubscriptionFailed)
	}
	return g.subscribe(&subscriber{class: subAdded, kind: kind, nodeFn: fn})
}

// OnNodeRemoved implements host.Graph.
func (g *Graph) OnNodeRemoved(kind host.NodeKind, fn host.NodeFunc) (host.Subscription, error) {
	if fn == nil {
		return host.Subscription{}, fmt.Errorf("node-removed callback is nil: %w", host.ErrSubscriptionFailed)
	}
	return g.subscribe(&subscriber{class: subRemoved, kind: kind, nodeFn: fn})
}

// OnConnection implements host.Graph.
func (g *Graph) OnConnection(fn host.ConnectionFunc) (host.Subscription, error) {
	if fn == nil {
		return host.Subscription{}, fmt.Errorf("connection callback is nil: %w", host.ErrSubscriptionFailed)
	}
	return g.subscribe(&subscriber{class: subConnection, connFn: fn})
}

// OnAttributeChanged implements host.Graph.
func (g *Graph) OnAttributeChanged(h host.Handle, fn host.AttributeFunc) (host.Subscription, error) {
	if fn == nil {
		return host.Subscription{}, fmt.Errorf("attribute callback is nil: %w", host.ErrSubscriptionFailed)
	}
	g.mu.RLock()
	_, err := g.lookup(h)
	g.mu.RUnlock()
	if err != nil {
		return host.Subscription{}, err
	}
	return g.subscribe(&subscriber{class: subAttribute, node: h, attrFn: fn})
}

func (g *Graph) removeCallback(id host.CallbackID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.subs[id]; !ok {
		return fmt.Errorf("callback %d: %w", id, host.ErrUnknownCallback)
	}
	delete(g.subs, id)
	g.revoked++
	return nil
}

// LiveCallbacks returns the number of subscriptions not yet revoked.
func (g *Graph) LiveCallbacks() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subs)
}

// LiveAttributeCallbacks returns the number of live attribute subscriptions on a node.
func (g *Graph) LiveAttributeCallbacks(h host.Handle) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, s := range g.subs {
		if s.class == subAttribute && s.node == h {
			count++
		}
	}
	return count
}

// Revoked returns how many subscriptions have been revoked so far.
func (g *Graph) Revoked() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.revoked
}

// sortedSubs returns subscribers of a class in registration order.
// Caller must hold the lock.
func (g *Graph) sortedSubs(class subClass) []*subscriber {
	var out []*subscriber
	for _, s := range g.subs {
		if s.class == class {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ===== Mutations =====

// pending collects events while the lock is held; they fire after unlock.
type pending []func()

func (p pending) fire() {
	for _, fn := range p {
		fn()
	}
}

func (g *Graph) queueNode(p *pending, class subClass, n *node) {
	h, kind := n.handle, n.kind
	for _, s := range g.sortedSubs(class) {
		if s.kind != kind {
			continue
		}
		fn := s.nodeFn
		*p = append(*p, func() { fn(h) })
	}
}

func (g *Graph) queueConnection(p *pending, src, dst host.Plug, made bool) {
	for _, s := range g.sortedSubs(subConnection) {
		fn := s.connFn
		*p = append(*p, func() { fn(src, dst, made) })
	}
	g.queueAttribute(p, dst)
}

func (g *Graph) queueAttribute(p *pending, plug host.Plug) {
	for _, s := range g.sortedSubs(subAttribute) {
		if s.node != plug.Node {
			continue
		}
		fn := s.attrFn
		*p = append(*p, func() { fn(plug.Node, plug.Name) })
	}
}

// AddNode creates a node and reports it to node-added subscribers.
// parent may be zero for DAG roots and dependency nodes.
func (g *Graph) AddNode(kind host.NodeKind, typeName, name string, parent host.Handle) (host.Handle, error) {
	g.mu.Lock()
	if name == "" {
		g.mu.Unlock()
		return 0, fmt.Errorf("node name cannot be empty")
	}
	if _, exists := g.byName[name]; exists {
		g.mu.Unlock()
		return 0, fmt.Errorf("node %q already exists", name)
	}
	if parent != 0 {
		if _, err := g.lookup(parent); err != nil {
			g.mu.Unlock()
			return 0, fmt.Errorf("parent of %q: %w", name, err)
		}
	}
	if typeName == "" {
		typeName = kind.String()
	}

	g.nextHandle++
	n := &node{
		handle:   g.nextHandle,
		kind:     kind,
		typeName: typeName,
		name:     name,
		parent:   parent,
		attrs:    make(map[string]value),
	}
	g.nodes[n.handle] = n
	g.order = append(g.order, n.handle)
	g.byName[name] = n.handle
	if parent != 0 {
		p := g.nodes[parent]
		p.children = append(p.children, n.handle)
	}

	var events pending
	g.queueNode(&events, subAdded, n)
	g.mu.Unlock()

	events.fire()
	return n.handle, nil
}

// RemoveNode deletes a node and its DAG children. Every connection
// touching a deleted node is broken and reported first.
func (g *Graph) RemoveNode(h host.Handle) error {
	g.mu.Lock()
	if _, err := g.lookup(h); err != nil {
		g.mu.Unlock()
		return err
	}
	var events pending
	g.removeLocked(&events, h)
	g.mu.Unlock()

	events.fire()
	return nil
}

func (g *Graph) removeLocked(events *pending, h host.Handle) {
	n := g.nodes[h]
	for _, c := range append([]host.Handle(nil), n.children...) {
		g.removeLocked(events, c)
	}

	type edge struct{ src, dst host.Plug }
	var edges []edge
	for dst, src := range g.sourceOf {
		if dst.Node == h || src.Node == h {
			edges = append(edges, edge{src, dst})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].dst.Node != edges[j].dst.Node {
			return edges[i].dst.Node < edges[j].dst.Node
		}
		return edges[i].dst.Name < edges[j].dst.Name
	})
	for _, e := range edges {
		g.disconnectLocked(events, e.src, e.dst)
	}

	if n.parent != 0 {
		if p, ok := g.nodes[n.parent]; ok {
			p.children = removeHandle(p.children, h)
		}
	}
	g.queueNode(events, subRemoved, n)
	delete(g.nodes, h)
	delete(g.byName, n.name)
	g.order = removeHandle(g.order, h)
}

func removeHandle(list []host.Handle, h host.Handle) []host.Handle {
	for i, v := range list {
		if v == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Connect connects src into dst and reports the change.
func (g *Graph) Connect(src, dst host.Plug) error {
	g.mu.Lock()
	if _, err := g.lookup(src.Node); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("connect source: %w", err)
	}
	if _, err := g.lookup(dst.Node); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("connect destination: %w", err)
	}
	if existing, ok := g.sourceOf[dst]; ok {
		g.mu.Unlock()
		return fmt.Errorf("%s <- %s: %w", dst, existing, host.ErrAlreadyConnected)
	}
	g.sourceOf[dst] = src
	g.destsOf[src] = append(g.destsOf[src], dst)

	var events pending
	g.queueConnection(&events, src, dst, true)
	g.mu.Unlock()

	events.fire()
	return nil
}

// Disconnect breaks the connection from src into dst and reports the change.
func (g *Graph) Disconnect(src, dst host.Plug) error {
	g.mu.Lock()
	if existing, ok := g.sourceOf[dst]; !ok || existing != src {
		g.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", src, dst, host.ErrNotConnected)
	}
	var events pending
	g.disconnectLocked(&events, src, dst)
	g.mu.Unlock()

	events.fire()
	return nil
}

func (g *Graph) disconnectLocked(events *pending, src, dst host.Plug) {
	delete(g.sourceOf, dst)
	dests := g.destsOf[src]
	for i, d := range dests {
		if d == dst {
			dests = append(dests[:i], dests[i+1:]...)
			break
		}
	}
	if len(dests) == 0 {
		delete(g.destsOf, src)
	} else {
		g.destsOf[src] = dests
	}
	g.queueConnection(events, src, dst, false)
}

func (g *Graph) set(p host.Plug, v value) error {
	g.mu.Lock()
	n, err := g.lookup(p.Node)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	n.attrs[p.Name] = v
	var events pending
	g.queueAttribute(&events, p)
	g.mu.Unlock()

	events.fire()
	return nil
}

// SetFloat writes a scalar attribute, creating it if needed.
func (g *Graph) SetFloat(p host.Plug, f float32) error {
	return g.set(p, value{kind: valueFloat, f: f})
}

// SetColor writes a three component attribute, creating it if needed.
func (g *Graph) SetColor(p host.Plug, c host.Vec3) error {
	return g.set(p, value{kind: valueColor, c: c})
}

// SetString writes a string attribute, creating it if needed.
func (g *Graph) SetString(p host.Plug, s string) error {
	return g.set(p, value{kind: valueString, s: s})
}

// DeclareMessage creates a connection-only attribute (e.g. outColor)
// without reporting a change.
func (g *Graph) DeclareMessage(p host.Plug) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.lookup(p.Node)
	if err != nil {
		return err
	}
	if _, ok := n.attrs[p.Name]; !ok {
		n.attrs[p.Name] = value{kind: valueMessage}
	}
	return nil
}

// SetIntermediate flags a mesh as an intermediate object.
func (g *Graph) SetIntermediate(h host.Handle, intermediate bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.lookup(h)
	if err != nil {
		return err
	}
	n.intermediate = intermediate
	return nil
}

// Lookup resolves a node by name.
func (g *Graph) Lookup(name string) (host.Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.byName[name]
	return h, ok
}

// Exists reports whether the handle refers to a live node.
func (g *Graph) Exists(h host.Handle) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[h]
	return ok
}

// Nodes returns every live node of the given kind in creation order.
func (g *Graph) Nodes(kind host.NodeKind) []host.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []host.Handle
	for _, h := range g.order {
		if g.nodes[h].kind == kind {
			out = append(out, h)
		}
	}
	return out
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
