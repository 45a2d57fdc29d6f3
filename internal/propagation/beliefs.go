package propagation

import (
	"fmt"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/Harshitk-cp/junctree/internal/junction"
)

// Beliefs is an immutable snapshot of a calibrated tree. Each clique table
// holds P(clique, evidence in its component).
type Beliefs struct {
	tree     *junction.Tree
	cliques  []*factor.Table
	mass     []float64
	evidence domain.Assignment
}

func (b *Beliefs) Tree() *junction.Tree { return b.tree }

func (b *Beliefs) Clique(id junction.CliqueID) *factor.Table { return b.cliques[id] }

func (b *Beliefs) Evidence() domain.Assignment {
	a := make(domain.Assignment, len(b.evidence))
	for k, v := range b.evidence {
		a[k] = v
	}
	return a
}

// Probability is P(evidence); 1 without evidence.
func (b *Beliefs) Probability() float64 {
	p := 1.0
	for _, m := range b.mass {
		p *= m
	}
	return p
}

// Joint returns P(vars, evidence) laid out in the order of vars. vars must be
// contained in a single clique.
func (b *Beliefs) Joint(vars domain.VariableSet) (*factor.Table, error) {
	if vars.IsEmpty() {
		return factor.Scalar(b.Probability()), nil
	}
	id, ok := b.tree.Covering(vars)
	if !ok {
		return nil, fmt.Errorf("%w: no clique contains %s", domain.ErrScopeNotCoverable, vars)
	}
	t, err := b.cliques[id].SumTo(vars).Reorder(vars)
	if err != nil {
		return nil, err
	}
	comp := b.tree.Clique(id).Component
	rest := 1.0
	for k, m := range b.mass {
		if k != comp {
			rest *= m
		}
	}
	if rest != 1 {
		t = t.Scale(rest)
	}
	return t, nil
}

// Marginal is the normalized belief of clique id, or an error when the
// evidence has probability zero.
func (b *Beliefs) Marginal(id junction.CliqueID) (*factor.Distribution, error) {
	n, z := b.cliques[id].Normalize()
	if z == 0 {
		return nil, fmt.Errorf("%w: P(evidence) = 0", domain.ErrDegenerateConditioning)
	}
	return factor.NewDistribution(n), nil
}
