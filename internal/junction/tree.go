// Package junction compiles a Bayesian network into a junction tree of
// cliques joined by separators.
package junction

import (
	"fmt"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/google/uuid"
)

type CliqueID int

// Clique is a maximal clique of the triangulated moral graph. Factors holds
// the DAG indices of the nodes whose local distribution it owns.
type Clique struct {
	ID        CliqueID
	Vars      domain.VariableSet
	Factors   []int
	Component int
}

// Separator joins cliques A and B; Vars is their intersection.
type Separator struct {
	ID   int
	A, B CliqueID
	Vars domain.VariableSet
}

// Link is one side of a separator as seen from a clique.
type Link struct {
	To        CliqueID
	Separator int
}

// Tree is a forest with one tree per connected component of the moral graph.
type Tree struct {
	Cliques          []*Clique
	Separators       []*Separator
	Roots            []CliqueID
	EliminationOrder []*domain.Variable
	links            [][]Link
	owner            map[uuid.UUID]CliqueID
}

func (t *Tree) Len() int { return len(t.Cliques) }

func (t *Tree) Clique(id CliqueID) *Clique { return t.Cliques[id] }

// Links lists the separators of clique id in the order they were added.
func (t *Tree) Links(id CliqueID) []Link {
	return append([]Link(nil), t.links[id]...)
}

// Owner is the smallest clique containing v; evidence on v is entered there.
func (t *Tree) Owner(v *domain.Variable) (CliqueID, bool) {
	id, ok := t.owner[v.ID()]
	return id, ok
}

// Covering returns the smallest clique (by table size, then ID) whose scope
// contains vars.
func (t *Tree) Covering(vars domain.VariableSet) (CliqueID, bool) {
	best := CliqueID(-1)
	for _, c := range t.Cliques {
		if !c.Vars.ContainsAll(vars) {
			continue
		}
		if best < 0 || c.Vars.States() < t.Cliques[best].Vars.States() {
			best = c.ID
		}
	}
	return best, best >= 0
}

// Width is the size of the largest clique minus one.
func (t *Tree) Width() int {
	w := 0
	for _, c := range t.Cliques {
		if c.Vars.Len()-1 > w {
			w = c.Vars.Len() - 1
		}
	}
	return w
}

// MaxStates is the table size of the largest clique.
func (t *Tree) MaxStates() int {
	m := 0
	for _, c := range t.Cliques {
		if s := c.Vars.States(); s > m {
			m = s
		}
	}
	return m
}

// ComponentCliques lists the cliques of component k.
func (t *Tree) ComponentCliques(k int) []CliqueID {
	var out []CliqueID
	for _, c := range t.Cliques {
		if c.Component == k {
			out = append(out, c.ID)
		}
	}
	return out
}

// Separator returns the separator at index id.
func (t *Tree) Separator(id int) *Separator { return t.Separators[id] }

// Validate checks the junction tree invariants: every component is a tree
// and the cliques holding any variable form a connected subtree.
func (t *Tree) Validate() error {
	for k := range t.Roots {
		ids := t.ComponentCliques(k)
		edges := 0
		for _, s := range t.Separators {
			if t.Cliques[s.A].Component == k {
				edges++
			}
		}
		if edges != len(ids)-1 {
			return fmt.Errorf("component %d has %d cliques and %d separators", k, len(ids), edges)
		}
		if reached := t.reach(t.Roots[k], nil); len(reached) != len(ids) {
			return fmt.Errorf("component %d is not connected", k)
		}
	}
	for _, s := range t.Separators {
		if want := t.Cliques[s.A].Vars.Intersect(t.Cliques[s.B].Vars); !s.Vars.Equal(want) {
			return fmt.Errorf("separator %d holds %s, cliques share %s", s.ID, s.Vars, want)
		}
	}
	seen := make(map[uuid.UUID]bool)
	for _, c := range t.Cliques {
		for _, v := range c.Vars.Vars() {
			if seen[v.ID()] {
				continue
			}
			seen[v.ID()] = true
			holding := 0
			var start CliqueID
			for _, d := range t.Cliques {
				if d.Vars.Contains(v) {
					holding++
					start = d.ID
				}
			}
			reached := t.reach(start, func(id CliqueID) bool { return t.Cliques[id].Vars.Contains(v) })
			if len(reached) != holding {
				return fmt.Errorf("running intersection violated for %s", v)
			}
		}
	}
	return nil
}

// reach walks the tree from start through cliques accepted by keep (all when
// keep is nil).
func (t *Tree) reach(start CliqueID, keep func(CliqueID) bool) map[CliqueID]bool {
	seen := map[CliqueID]bool{start: true}
	stack := []CliqueID{start}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range t.links[c] {
			if seen[l.To] || (keep != nil && !keep(l.To)) {
				continue
			}
			seen[l.To] = true
			stack = append(stack, l.To)
		}
	}
	return seen
}
