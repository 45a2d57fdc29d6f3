package junction

import (
	"fmt"
	"io"
	"strings"

	"github.com/Harshitk-cp/junctree/internal/graph"
)

// WriteDot renders the network, its moral graph and the junction tree as
// three clusters of one Graphviz digraph.
func WriteDot(w io.Writer, g *graph.DAG, t *Tree) error {
	var b strings.Builder
	b.WriteString("digraph junctree {\n")
	b.WriteString("  compound=true;\n  node [shape=ellipse];\n")

	b.WriteString("  subgraph cluster_network {\n    label=\"Bayesian network\";\n")
	for i, v := range g.Nodes() {
		fmt.Fprintf(&b, "    bn%d [label=%q];\n", i, v.Name())
	}
	for _, e := range g.Edges() {
		p, _ := g.Index(e.Parent)
		c, _ := g.Index(e.Child)
		fmt.Fprintf(&b, "    bn%d -> bn%d;\n", p, c)
	}
	b.WriteString("  }\n")

	moral := g.Moral()
	b.WriteString("  subgraph cluster_moral {\n    label=\"Moral graph\";\n    edge [dir=none];\n")
	for i, v := range g.Nodes() {
		fmt.Fprintf(&b, "    mg%d [label=%q];\n", i, v.Name())
	}
	for i := 0; i < moral.Len(); i++ {
		for _, j := range moral.Neighbors(i) {
			if j > i {
				fmt.Fprintf(&b, "    mg%d -> mg%d;\n", i, j)
			}
		}
	}
	b.WriteString("  }\n")

	b.WriteString("  subgraph cluster_junction {\n    label=\"Junction tree\";\n    edge [dir=none];\n")
	for _, c := range t.Cliques {
		fmt.Fprintf(&b, "    jt%d [shape=box, label=%q];\n", c.ID, fmt.Sprintf("C%d: %s", c.ID, c.Vars))
	}
	for _, s := range t.Separators {
		fmt.Fprintf(&b, "    sep%d [shape=box, style=dashed, label=%q];\n", s.ID, s.Vars.String())
		fmt.Fprintf(&b, "    jt%d -> sep%d;\n    sep%d -> jt%d;\n", s.A, s.ID, s.ID, s.B)
	}
	b.WriteString("  }\n}\n")

	_, err := io.WriteString(w, b.String())
	return err
}
