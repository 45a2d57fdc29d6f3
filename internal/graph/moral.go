package graph

import "sort"

// Undirected is a simple undirected graph over node indices.
type Undirected struct {
	adj []map[int]bool
}

func NewUndirected(n int) *Undirected {
	u := &Undirected{adj: make([]map[int]bool, n)}
	for i := range u.adj {
		u.adj[i] = make(map[int]bool)
	}
	return u
}

func (u *Undirected) Len() int { return len(u.adj) }

func (u *Undirected) AddEdge(i, j int) {
	if i == j {
		return
	}
	u.adj[i][j] = true
	u.adj[j][i] = true
}

func (u *Undirected) Has(i, j int) bool { return u.adj[i][j] }

func (u *Undirected) RemoveNode(i int) {
	for j := range u.adj[i] {
		delete(u.adj[j], i)
	}
	u.adj[i] = make(map[int]bool)
}

func (u *Undirected) Degree(i int) int { return len(u.adj[i]) }

// Neighbors are sorted ascending.
func (u *Undirected) Neighbors(i int) []int {
	out := make([]int, 0, len(u.adj[i]))
	for j := range u.adj[i] {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

func (u *Undirected) Clone() *Undirected {
	c := NewUndirected(len(u.adj))
	for i, m := range u.adj {
		for j := range m {
			c.adj[i][j] = true
		}
	}
	return c
}

// EdgeCount counts each undirected edge once.
func (u *Undirected) EdgeCount() int {
	n := 0
	for _, m := range u.adj {
		n += len(m)
	}
	return n / 2
}

// Components lists connected components, each sorted, ordered by their
// smallest node.
func (u *Undirected) Components() [][]int {
	seen := make([]bool, len(u.adj))
	var out [][]int
	for s := range u.adj {
		if seen[s] {
			continue
		}
		var comp []int
		stack := []int{s}
		seen[s] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, n)
			for _, m := range u.Neighbors(n) {
				if !seen[m] {
					seen[m] = true
					stack = append(stack, m)
				}
			}
		}
		sort.Ints(comp)
		out = append(out, comp)
	}
	return out
}

// Moral drops edge directions and marries the parents of every node.
func (g *DAG) Moral() *Undirected {
	u := NewUndirected(len(g.nodes))
	for c, ps := range g.parents {
		for i, p := range ps {
			u.AddEdge(p, c)
			for _, q := range ps[i+1:] {
				u.AddEdge(p, q)
			}
		}
	}
	return u
}
