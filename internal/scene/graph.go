package scene

import (
	"fmt"
	"sort"
	"sync"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/async"
	"siro-hitl/client/internal/coords"
)

// Node is the recorded state of one spawned instance.
type Node struct {
	Key           int
	Address       string
	FrameRotation math32.Quat
	Scale         math32.Vector3
	Transform     coords.Transform
	Bones         map[int]coords.Transform
	SkinEnabled   bool
	Visible       bool
	Layer         int
}

// Graph is a headless Host. Loaded resources stay cached after their nodes
// are despawned until ReclaimUnused runs.
type Graph struct {
	mu       sync.Mutex
	nodes    map[int]*Node
	cached   map[string]int
	reclaims int
}

func NewGraph() *Graph {
	return &Graph{
		nodes:  make(map[int]*Node),
		cached: make(map[string]int),
	}
}

func (g *Graph) Spawn(key int, spec SpawnSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[key]; exists {
		return fmt.Errorf("spawn %d: node already exists", key)
	}
	g.nodes[key] = &Node{
		Key:           key,
		Address:       spec.Asset.Address,
		FrameRotation: spec.FrameRotation,
		Scale:         spec.Scale,
		Transform:     spec.Transform,
		Bones:         make(map[int]coords.Transform),
		Visible:       spec.Visible,
		Layer:         spec.Layer,
	}
	if _, ok := g.cached[spec.Asset.Address]; !ok {
		g.cached[spec.Asset.Address] = 0
	}
	g.cached[spec.Asset.Address]++
	return nil
}

func (g *Graph) Despawn(key int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[key]
	if !ok {
		return
	}
	delete(g.nodes, key)
	if g.cached[node.Address] > 0 {
		g.cached[node.Address]--
	}
}

func (g *Graph) update(key int, fn func(*Node)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node, ok := g.nodes[key]; ok {
		fn(node)
	}
}

func (g *Graph) SetTransform(key int, t coords.Transform) {
	g.update(key, func(n *Node) { n.Transform = t })
}

func (g *Graph) SetBonePose(key int, bone int, t coords.Transform) {
	g.update(key, func(n *Node) { n.Bones[bone] = t })
}

func (g *Graph) EnableSkin(key int, enabled bool) {
	g.update(key, func(n *Node) { n.SkinEnabled = enabled })
}

func (g *Graph) SetVisibility(key int, visible bool) {
	g.update(key, func(n *Node) { n.Visible = visible })
}

func (g *Graph) SetLayer(key int, layer int) {
	g.update(key, func(n *Node) { n.Layer = layer })
}

func (g *Graph) ReclaimUnused() async.Operation[int] {
	g.mu.Lock()
	defer g.mu.Unlock()
	freed := 0
	for address, refs := range g.cached {
		if refs == 0 {
			delete(g.cached, address)
			freed++
		}
	}
	g.reclaims++
	return async.Completed(freed)
}

// Node returns a copy of the node for key.
func (g *Graph) Node(key int) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[key]
	if !ok {
		return Node{}, false
	}
	copied := *node
	copied.Bones = make(map[int]coords.Transform, len(node.Bones))
	for k, v := range node.Bones {
		copied.Bones[k] = v
	}
	return copied, true
}

// Keys lists spawned instance keys in ascending order.
func (g *Graph) Keys() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]int, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// CachedResources counts loaded resources, referenced or not.
func (g *Graph) CachedResources() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cached)
}

// Reclaims counts ReclaimUnused calls.
func (g *Graph) Reclaims() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reclaims
}
