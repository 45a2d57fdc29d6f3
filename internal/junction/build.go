package junction

import (
	"fmt"
	"sort"
	"time"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/graph"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Heuristic picks the next node to eliminate during triangulation.
type Heuristic string

const (
	// MinFill eliminates the node adding the fewest fill-in edges.
	MinFill Heuristic = "min_fill"
	// MinDegree eliminates the node with the fewest remaining neighbors.
	MinDegree Heuristic = "min_degree"
	// MinWeight eliminates the node whose induced clique has the smallest
	// table.
	MinWeight Heuristic = "min_weight"
)

func ParseHeuristic(s string) (Heuristic, error) {
	switch Heuristic(s) {
	case MinFill, MinDegree, MinWeight:
		return Heuristic(s), nil
	case "":
		return MinFill, nil
	}
	return "", fmt.Errorf("unknown elimination heuristic %q", s)
}

// ComponentPolicy decides what happens when the moral graph is disconnected.
type ComponentPolicy string

const (
	// Forest builds one tree per connected component.
	Forest ComponentPolicy = "forest"
	// SingleTree fails compilation on a disconnected moral graph.
	SingleTree ComponentPolicy = "single_tree"
)

type Options struct {
	Heuristic Heuristic
	Policy    ComponentPolicy
	// MaxCliqueStates bounds the table size of any clique; 0 means no bound.
	MaxCliqueStates int
	Logger          *zap.Logger
}

func DefaultOptions() Options {
	return Options{Heuristic: MinFill, Policy: Forest}
}

// Build compiles g into a junction tree. Every node's family (the node and
// its parents) is assigned to the smallest clique covering it.
func Build(g *graph.DAG, opts Options) (*Tree, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Heuristic == "" {
		opts.Heuristic = MinFill
	}

	t := &Tree{owner: make(map[uuid.UUID]CliqueID)}
	n := g.Len()
	if n == 0 {
		return t, nil
	}

	moral := g.Moral()
	components := moral.Components()
	if len(components) > 1 && opts.Policy == SingleTree {
		return nil, fmt.Errorf("%w: %d components", domain.ErrDisconnected, len(components))
	}
	componentOf := make([]int, n)
	for k, comp := range components {
		for _, i := range comp {
			componentOf[i] = k
		}
	}

	order, induced := eliminate(g, moral, opts.Heuristic)
	for _, i := range order {
		t.EliminationOrder = append(t.EliminationOrder, g.Node(i))
	}

	for _, members := range maximal(induced) {
		vars := make([]*domain.Variable, len(members))
		for j, i := range members {
			vars[j] = g.Node(i)
		}
		c := &Clique{
			ID:        CliqueID(len(t.Cliques)),
			Vars:      domain.NewVariableSet(vars...),
			Component: componentOf[members[0]],
		}
		if err := c.Vars.CheckStates(opts.MaxCliqueStates); err != nil {
			return nil, err
		}
		t.Cliques = append(t.Cliques, c)
	}

	t.connect(len(components))

	for i := 0; i < n; i++ {
		v := g.Node(i)
		family := g.Family(v)
		id, ok := t.Covering(family)
		if !ok {
			return nil, fmt.Errorf("%w: family %s of %s", domain.ErrTriangulationFailure, family, v)
		}
		t.Cliques[id].Factors = append(t.Cliques[id].Factors, i)
		owner, _ := t.Covering(domain.NewVariableSet(v))
		t.owner[v.ID()] = owner
	}

	logger.Debug("junction tree built",
		zap.Int("nodes", n),
		zap.Int("cliques", len(t.Cliques)),
		zap.Int("components", len(components)),
		zap.Int("width", t.Width()),
		zap.Int("max_states", t.MaxStates()),
		zap.String("heuristic", string(opts.Heuristic)),
		zap.Duration("duration", time.Since(start)))
	return t, nil
}

// eliminate triangulates the moral graph and returns the elimination order
// together with the clique induced by each elimination (node indices,
// sorted).
func eliminate(g *graph.DAG, moral *graph.Undirected, h Heuristic) ([]int, [][]int) {
	n := g.Len()
	work := moral.Clone()
	gone := make([]bool, n)
	order := make([]int, 0, n)
	induced := make([][]int, 0, n)

	for step := 0; step < n; step++ {
		best, bestScore := -1, 0
		for i := 0; i < n; i++ {
			if gone[i] {
				continue
			}
			s := score(g, work, i, h)
			if best < 0 || s < bestScore {
				best, bestScore = i, s
			}
		}
		nbrs := work.Neighbors(best)
		for a := 0; a < len(nbrs); a++ {
			for b := a + 1; b < len(nbrs); b++ {
				work.AddEdge(nbrs[a], nbrs[b])
			}
		}
		members := append([]int{best}, nbrs...)
		sort.Ints(members)
		induced = append(induced, members)
		order = append(order, best)
		work.RemoveNode(best)
		gone[best] = true
	}
	return order, induced
}

func score(g *graph.DAG, work *graph.Undirected, i int, h Heuristic) int {
	if h == MinDegree {
		return work.Degree(i)
	}
	nbrs := work.Neighbors(i)
	switch h {
	case MinWeight:
		w := g.Node(i).Size()
		for _, j := range nbrs {
			w *= g.Node(j).Size()
		}
		return w
	default:
		fill := 0
		for a := 0; a < len(nbrs); a++ {
			for b := a + 1; b < len(nbrs); b++ {
				if !work.Has(nbrs[a], nbrs[b]) {
					fill++
				}
			}
		}
		return fill
	}
}

// maximal drops induced cliques contained in another one, keeping creation
// order. Among equal cliques the first wins.
func maximal(induced [][]int) [][]int {
	var out [][]int
	for k, c := range induced {
		keep := true
		for j, d := range induced {
			if j == k || len(d) < len(c) || !subset(c, d) {
				continue
			}
			if len(d) > len(c) || j < k {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	return out
}

// subset reports whether sorted a is contained in sorted b.
func subset(a, b []int) bool {
	j := 0
	for _, x := range a {
		for j < len(b) && b[j] < x {
			j++
		}
		if j == len(b) || b[j] != x {
			return false
		}
	}
	return true
}

// connect joins the cliques with a maximum-weight spanning forest where the
// weight of a pair is the size of its intersection. Ties go to the pair
// created first.
func (t *Tree) connect(components int) {
	type candidate struct {
		a, b   CliqueID
		weight int
	}
	var cands []candidate
	for i := range t.Cliques {
		for j := i + 1; j < len(t.Cliques); j++ {
			w := t.Cliques[i].Vars.Intersect(t.Cliques[j].Vars).Len()
			if w > 0 {
				cands = append(cands, candidate{CliqueID(i), CliqueID(j), w})
			}
		}
	}
	sort.SliceStable(cands, func(x, y int) bool { return cands[x].weight > cands[y].weight })

	parent := make([]int, len(t.Cliques))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	t.links = make([][]Link, len(t.Cliques))
	for _, c := range cands {
		ra, rb := find(int(c.a)), find(int(c.b))
		if ra == rb {
			continue
		}
		parent[ra] = rb
		s := &Separator{
			ID:   len(t.Separators),
			A:    c.a,
			B:    c.b,
			Vars: t.Cliques[c.a].Vars.Intersect(t.Cliques[c.b].Vars),
		}
		t.Separators = append(t.Separators, s)
		t.links[c.a] = append(t.links[c.a], Link{To: c.b, Separator: s.ID})
		t.links[c.b] = append(t.links[c.b], Link{To: c.a, Separator: s.ID})
	}

	t.Roots = make([]CliqueID, components)
	for k := range t.Roots {
		t.Roots[k] = -1
	}
	for _, c := range t.Cliques {
		if t.Roots[c.Component] < 0 {
			t.Roots[c.Component] = c.ID
		}
	}
}
