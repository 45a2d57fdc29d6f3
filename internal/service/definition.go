package service

import (
	"fmt"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
)

// FromDefinition builds a Network from its declarative form. Edges may be
// listed explicitly or implied by the parents of each distribution.
func FromDefinition(def domain.NetworkDefinition, opts Options) (*Network, error) {
	n := NewNetwork(opts)
	for _, vd := range def.Variables {
		if !domain.ValidDomainKind(string(vd.Domain.Kind)) {
			return nil, fmt.Errorf("variable %q: %w: unknown kind %q", vd.Name, domain.ErrInvalidDomain, vd.Domain.Kind)
		}
		if _, err := n.AddVariable(vd.Name, vd.Domain); err != nil {
			return nil, fmt.Errorf("variable %q: %w", vd.Name, err)
		}
	}

	for _, e := range def.Edges {
		if err := n.AddEdge(e.Parent, e.Child); err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.Parent, e.Child, err)
		}
	}
	for _, dd := range def.Distributions {
		if !domain.ValidDistributionKind(string(dd.Kind)) {
			return nil, fmt.Errorf("distribution %q: %w: unknown kind %q", dd.Variable, domain.ErrInvalidDistribution, dd.Kind)
		}
		for _, p := range dd.Parents {
			pv, err := n.Variable(p)
			if err != nil {
				return nil, fmt.Errorf("distribution %q: %w", dd.Variable, err)
			}
			cv, err := n.Variable(dd.Variable)
			if err != nil {
				return nil, fmt.Errorf("distribution %q: %w", dd.Variable, err)
			}
			if n.dag.HasEdge(pv, cv) {
				continue
			}
			if err := n.AddEdge(p, dd.Variable); err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", p, dd.Variable, err)
			}
		}
	}

	for _, dd := range def.Distributions {
		f, err := n.buildDistribution(dd)
		if err != nil {
			return nil, fmt.Errorf("distribution %q: %w", dd.Variable, err)
		}
		if err := n.SetDistribution(f); err != nil {
			return nil, fmt.Errorf("distribution %q: %w", dd.Variable, err)
		}
	}
	return n, nil
}

func (n *Network) buildDistribution(dd domain.DistributionDefinition) (factor.Conditional, error) {
	child, err := n.Variable(dd.Variable)
	if err != nil {
		return nil, err
	}
	parents, err := n.Set(dd.Parents...)
	if err != nil {
		return nil, err
	}
	actual, err := n.Parents(dd.Variable)
	if err != nil {
		return nil, err
	}
	if !parents.Equal(actual) {
		return nil, fmt.Errorf("%w: parents %s, graph has %s", domain.ErrScopeMismatch, parents, actual)
	}

	// Parametric families expand to a full table, so the size guard runs
	// before any of them allocates.
	if err := parents.Add(child).CheckStates(n.opts.MaxCliqueStates); err != nil {
		return nil, err
	}

	switch dd.Kind {
	case domain.DistributionTable, "":
		t, err := factor.NewConditional(child, parents, dd.Table)
		if err != nil {
			return nil, err
		}
		return tableConditional{Table: t, child: child}, nil
	case domain.DistributionGaussian:
		return factor.NewGaussian(child, parents, dd.Means, dd.StdDevs)
	case domain.DistributionNoisyOR:
		return factor.NewNoisyOR(child, parents, dd.Inhibitors, dd.Leak)
	case domain.DistributionDeterministic:
		fn, ok := deterministicFunctions[dd.Function]
		if !ok {
			return nil, fmt.Errorf("%w: deterministic function %q", domain.ErrInvalidDistribution, dd.Function)
		}
		if child.Size() < 2 {
			return nil, fmt.Errorf("%w: deterministic child %s needs two states", domain.ErrInvalidDistribution, child)
		}
		return factor.NewDeterministic(child, parents, fn)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDistribution, dd.Kind)
}

var deterministicFunctions = map[string]func([]int) int{
	domain.FunctionOr:  factor.Or,
	domain.FunctionAnd: factor.And,
}
