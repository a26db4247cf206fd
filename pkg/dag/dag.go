// Package dag implements an append-only directed acyclic graph whose nodes
// are addressed by dense integer handles.
//
// Nodes are appended after their parents, so the node array is always in
// topological order. Each node has at most two parents.
package dag

import "fmt"

// NodeID is a dense 1-based handle into the node array. Zero means "no
// node". Handles are never reused and order the same way as insertion.
type NodeID uint32

// Valid reports whether id refers to a node.
func (id NodeID) Valid() bool { return id != 0 }

func (id NodeID) offset() int { return int(id) - 1 }

func nodeIDFromOffset(off int) NodeID {
	if off < 0 || uint64(off)+1 > uint64(^uint32(0)) {
		panic(fmt.Sprintf("dag: node offset %d out of range", off))
	}
	return NodeID(off + 1)
}

// Direction selects which way Traverse walks.
type Direction int

const (
	Parents Direction = iota
	Children
)

type node[N comparable, T any] struct {
	value   N
	parent1 NodeID
	parent2 NodeID
	data    T
}

// Dag is an append-only graph keyed by N carrying data T on every node.
// It is not safe for concurrent use.
type Dag[N comparable, T any] struct {
	ids   map[N]NodeID
	nodes []node[N, T]
}

// New returns an empty graph.
func New[N comparable, T any]() *Dag[N, T] {
	return &Dag[N, T]{ids: make(map[N]NodeID)}
}

// Len returns the number of nodes.
func (d *Dag[N, T]) Len() int { return len(d.nodes) }

// Add appends value with the given parents. Parents that are not in the
// graph are skipped; cb, when non-nil, is called with each parent that is
// found before the node is inserted. Add panics if more than two parents
// are given or if value is already present.
func (d *Dag[N, T]) Add(value N, parents []N, data T, cb func(NodeID, *T)) NodeID {
	if len(parents) > 2 {
		panic(fmt.Sprintf("dag: %d parents, at most 2 allowed", len(parents)))
	}
	if _, dup := d.ids[value]; dup {
		panic(fmt.Sprintf("dag: duplicate node %v", value))
	}
	var found []NodeID
	for _, p := range parents {
		pid, ok := d.ids[p]
		if !ok {
			continue
		}
		if cb != nil {
			cb(pid, &d.nodes[pid.offset()].data)
		}
		found = append(found, pid)
	}
	id := nodeIDFromOffset(len(d.nodes))
	n := node[N, T]{value: value, data: data}
	if len(found) > 0 {
		n.parent1 = found[0]
	}
	if len(found) > 1 {
		n.parent2 = found[1]
	}
	d.ids[value] = id
	d.nodes = append(d.nodes, n)
	return id
}

// Get looks up value and returns its handle and a pointer to its data.
func (d *Dag[N, T]) Get(value N) (NodeID, *T, bool) {
	id, ok := d.ids[value]
	if !ok {
		return 0, nil, false
	}
	return id, &d.nodes[id.offset()].data, true
}

// GetByID returns the node value and data for id. It panics on an id that
// was not returned by this graph.
func (d *Dag[N, T]) GetByID(id NodeID) (N, *T) {
	n := &d.nodes[id.offset()]
	return n.value, &n.data
}

// Each calls fn for every node in insertion order.
func (d *Dag[N, T]) Each(fn func(N, *T)) {
	for i := range d.nodes {
		fn(d.nodes[i].value, &d.nodes[i].data)
	}
}

// Traverse walks from start in the given direction. fn is called for each
// reached node and returns whether the walk continues past it. A start node
// that is not in the graph makes Traverse a no-op.
func (d *Dag[N, T]) Traverse(start N, dir Direction, fn func(N, *T) bool) {
	id, ok := d.ids[start]
	if !ok {
		return
	}
	switch dir {
	case Parents:
		d.traverseParents(id, fn)
	case Children:
		d.traverseChildren(id, fn)
	}
}

// traverseParents is a breadth-first walk toward the roots.
func (d *Dag[N, T]) traverseParents(start NodeID, fn func(N, *T) bool) {
	seen := make([]bool, len(d.nodes))
	queue := []NodeID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id.offset()] {
			continue
		}
		seen[id.offset()] = true
		n := &d.nodes[id.offset()]
		if !fn(n.value, &n.data) {
			continue
		}
		for _, p := range [2]NodeID{n.parent1, n.parent2} {
			if p.Valid() && !seen[p.offset()] {
				queue = append(queue, p)
			}
		}
	}
}

// traverseChildren is a single forward pass over the nodes appended at or
// after start. A node is reached when it is start itself or when one of its
// parents was reached and fn returned true for it.
func (d *Dag[N, T]) traverseChildren(start NodeID, fn func(N, *T) bool) {
	base := start.offset()
	reached := make([]bool, len(d.nodes)-base)
	for i := base; i < len(d.nodes); i++ {
		n := &d.nodes[i]
		candidate := i == base
		for _, p := range [2]NodeID{n.parent1, n.parent2} {
			if p.Valid() && p >= start && reached[p.offset()-base] {
				candidate = true
			}
		}
		if candidate && fn(n.value, &n.data) {
			reached[i-base] = true
		}
	}
}
