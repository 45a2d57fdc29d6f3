// Package graph is the directed acyclic structure of a Bayesian network.
package graph

import (
	"fmt"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/google/uuid"
)

// DAG keeps nodes in insertion order; every derived ordering breaks ties by
// that order so compilation is reproducible.
type DAG struct {
	nodes      []*domain.Variable
	index      map[uuid.UUID]int
	parents    [][]int
	children   [][]int
	generation uint64
}

type Edge struct {
	Parent *domain.Variable
	Child  *domain.Variable
}

func New() *DAG {
	return &DAG{index: make(map[uuid.UUID]int)}
}

// Generation increases with every structural change.
func (g *DAG) Generation() uint64 { return g.generation }

func (g *DAG) Len() int { return len(g.nodes) }

func (g *DAG) Node(i int) *domain.Variable { return g.nodes[i] }

func (g *DAG) Nodes() []*domain.Variable {
	return append([]*domain.Variable(nil), g.nodes...)
}

func (g *DAG) Index(v *domain.Variable) (int, bool) {
	i, ok := g.index[v.ID()]
	return i, ok
}

func (g *DAG) HasNode(v *domain.Variable) bool {
	_, ok := g.index[v.ID()]
	return ok
}

func (g *DAG) AddNode(v *domain.Variable) error {
	if g.HasNode(v) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateVariable, v)
	}
	g.index[v.ID()] = len(g.nodes)
	g.nodes = append(g.nodes, v)
	g.parents = append(g.parents, nil)
	g.children = append(g.children, nil)
	g.generation++
	return nil
}

func (g *DAG) lookup(v *domain.Variable) (int, error) {
	i, ok := g.index[v.ID()]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownVariable, v)
	}
	return i, nil
}

// AddEdge inserts parent -> child after checking that child cannot already
// reach parent.
func (g *DAG) AddEdge(parent, child *domain.Variable) error {
	p, err := g.lookup(parent)
	if err != nil {
		return err
	}
	c, err := g.lookup(child)
	if err != nil {
		return err
	}
	if p == c {
		return fmt.Errorf("%w: %s", domain.ErrSelfLoop, parent)
	}
	if contains(g.parents[c], p) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrDuplicateEdge, parent, child)
	}
	if g.reachable(c, p) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrCyclicGraph, parent, child)
	}
	g.parents[c] = append(g.parents[c], p)
	g.children[p] = append(g.children[p], c)
	g.generation++
	return nil
}

func (g *DAG) RemoveEdge(parent, child *domain.Variable) error {
	p, err := g.lookup(parent)
	if err != nil {
		return err
	}
	c, err := g.lookup(child)
	if err != nil {
		return err
	}
	if !contains(g.parents[c], p) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrEdgeNotFound, parent, child)
	}
	g.parents[c] = remove(g.parents[c], p)
	g.children[p] = remove(g.children[p], c)
	g.generation++
	return nil
}

func (g *DAG) HasEdge(parent, child *domain.Variable) bool {
	p, ok1 := g.index[parent.ID()]
	c, ok2 := g.index[child.ID()]
	return ok1 && ok2 && contains(g.parents[c], p)
}

// reachable reports whether to can be reached from from along edges.
func (g *DAG) reachable(from, to int) bool {
	seen := make([]bool, len(g.nodes))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.children[n]...)
	}
	return false
}

// Parents are returned in the order their edges were added.
func (g *DAG) Parents(v *domain.Variable) domain.VariableSet {
	i, ok := g.index[v.ID()]
	if !ok {
		return domain.VariableSet{}
	}
	return g.set(g.parents[i])
}

func (g *DAG) Children(v *domain.Variable) domain.VariableSet {
	i, ok := g.index[v.ID()]
	if !ok {
		return domain.VariableSet{}
	}
	return g.set(g.children[i])
}

func (g *DAG) ParentIndices(i int) []int {
	return append([]int(nil), g.parents[i]...)
}

// Family is parents(v) followed by v, the scope of v's local distribution.
func (g *DAG) Family(v *domain.Variable) domain.VariableSet {
	return g.Parents(v).Add(v)
}

func (g *DAG) Edges() []Edge {
	var out []Edge
	for c, ps := range g.parents {
		for _, p := range ps {
			out = append(out, Edge{Parent: g.nodes[p], Child: g.nodes[c]})
		}
	}
	return out
}

// TopologicalOrder lists parents before children, otherwise in insertion
// order.
func (g *DAG) TopologicalOrder() []*domain.Variable {
	indeg := make([]int, len(g.nodes))
	for c := range g.nodes {
		indeg[c] = len(g.parents[c])
	}
	done := make([]bool, len(g.nodes))
	out := make([]*domain.Variable, 0, len(g.nodes))
	for len(out) < len(g.nodes) {
		for i := range g.nodes {
			if done[i] || indeg[i] > 0 {
				continue
			}
			done[i] = true
			out = append(out, g.nodes[i])
			for _, c := range g.children[i] {
				indeg[c]--
			}
			break
		}
	}
	return out
}

func (g *DAG) Ancestors(v *domain.Variable) domain.VariableSet {
	i, ok := g.index[v.ID()]
	if !ok {
		return domain.VariableSet{}
	}
	return g.set(g.closure(i, g.parents))
}

func (g *DAG) Descendants(v *domain.Variable) domain.VariableSet {
	i, ok := g.index[v.ID()]
	if !ok {
		return domain.VariableSet{}
	}
	return g.set(g.closure(i, g.children))
}

// closure collects every node reachable from start through next, excluding
// start, in insertion order.
func (g *DAG) closure(start int, next [][]int) []int {
	seen := make([]bool, len(g.nodes))
	stack := append([]int(nil), next[start]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, next[n]...)
	}
	var out []int
	for i, s := range seen {
		if s {
			out = append(out, i)
		}
	}
	return out
}

func (g *DAG) set(idx []int) domain.VariableSet {
	vars := make([]*domain.Variable, len(idx))
	for i, n := range idx {
		vars[i] = g.nodes[n]
	}
	return domain.NewVariableSet(vars...)
}

func contains(xs []int, x int) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}

func remove(xs []int, x int) []int {
	out := make([]int, 0, len(xs))
	for _, y := range xs {
		if y != x {
			out = append(out, y)
		}
	}
	return out
}
