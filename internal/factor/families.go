package factor

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/junctree/internal/domain"
)

// Gaussian is P(child | parents) where child is continuous and, for every
// parent assignment, normally distributed with its own mean and standard
// deviation, truncated to the child's interval. The table form holds the
// probability mass of each bin.
type Gaussian struct {
	compiled
	child   *domain.Variable
	parents domain.VariableSet
}

func NewGaussian(child *domain.Variable, parents domain.VariableSet, means, stdDevs []float64) (*Gaussian, error) {
	if child.Kind() != domain.KindContinuous {
		return nil, fmt.Errorf("%w: gaussian child %s must be continuous", domain.ErrInvalidDistribution, child)
	}
	if parents.Contains(child) {
		return nil, fmt.Errorf("%w: %s is its own parent", domain.ErrScopeMismatch, child)
	}
	if err := parents.Add(child).CheckStates(0); err != nil {
		return nil, err
	}
	rows := parents.States()
	if len(means) != rows || len(stdDevs) != rows {
		return nil, fmt.Errorf("%w: gaussian %s needs %d means and std devs, got %d and %d",
			domain.ErrInvalidDistribution, child, rows, len(means), len(stdDevs))
	}
	d := child.Domain()
	values := make([]float64, 0, rows*d.Bins)
	for p := 0; p < rows; p++ {
		mu, sigma := means[p], stdDevs[p]
		if !(sigma > 0) || math.IsNaN(mu) || math.IsInf(mu, 0) || math.IsInf(sigma, 0) {
			return nil, fmt.Errorf("%w: gaussian %s row %d has mean %g, std dev %g",
				domain.ErrInvalidDistribution, child, p, mu, sigma)
		}
		row := make([]float64, d.Bins)
		var total float64
		for i := range row {
			lo, hi := d.BinBounds(i)
			row[i] = normalCDF((hi-mu)/sigma) - normalCDF((lo-mu)/sigma)
			total += row[i]
		}
		if total <= 0 {
			return nil, fmt.Errorf("%w: gaussian %s row %d puts no mass on [%g, %g]",
				domain.ErrInvalidDistribution, child, p, d.Min, d.Max)
		}
		for i := range row {
			values = append(values, row[i]/total)
		}
	}
	t, err := NewConditional(child, parents, values)
	if err != nil {
		return nil, err
	}
	return &Gaussian{
		compiled: compiled{table: t},
		child:    child,
		parents:  parents,
	}, nil
}

func (g *Gaussian) Child() *domain.Variable { return g.child }

func (g *Gaussian) Parents() domain.VariableSet { return g.parents }

func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// Deterministic is P(child | parents) putting all mass on fn(parent states).
type Deterministic struct {
	compiled
	child *domain.Variable
}

func NewDeterministic(child *domain.Variable, parents domain.VariableSet, fn func(parentStates []int) int) (*Deterministic, error) {
	if parents.Contains(child) {
		return nil, fmt.Errorf("%w: %s is its own parent", domain.ErrScopeMismatch, child)
	}
	if err := parents.Add(child).CheckStates(0); err != nil {
		return nil, err
	}
	rows := Ones(parents)
	n := child.Size()
	values := make([]float64, parents.States()*n)
	for p := 0; p < rows.Len(); p++ {
		s := fn(rows.States(p))
		if s < 0 || s >= n {
			return nil, fmt.Errorf("%w: deterministic %s maps row %d to state %d",
				domain.ErrInvalidDistribution, child, p, s)
		}
		values[p*n+s] = 1
	}
	t, err := NewConditional(child, parents, values)
	if err != nil {
		return nil, err
	}
	return &Deterministic{compiled: compiled{table: t}, child: child}, nil
}

func (d *Deterministic) Child() *domain.Variable { return d.child }

// Or is a deterministic function: true when any parent is in state 1.
func Or(states []int) int {
	for _, s := range states {
		if s == 1 {
			return 1
		}
	}
	return 0
}

// And is true when every parent is in state 1.
func And(states []int) int {
	for _, s := range states {
		if s != 1 {
			return 0
		}
	}
	return 1
}

// NoisyOR is the binary child P(child=false | parents) = (1-leak) * prod of
// the inhibitors of active parents.
type NoisyOR struct {
	compiled
	child *domain.Variable
}

func NewNoisyOR(child *domain.Variable, parents domain.VariableSet, inhibitors []float64, leak float64) (*NoisyOR, error) {
	if child.Size() != 2 {
		return nil, fmt.Errorf("%w: noisy-or child %s must be binary", domain.ErrInvalidDistribution, child)
	}
	if parents.Contains(child) {
		return nil, fmt.Errorf("%w: %s is its own parent", domain.ErrScopeMismatch, child)
	}
	for _, p := range parents.Vars() {
		if p.Size() != 2 {
			return nil, fmt.Errorf("%w: noisy-or parent %s must be binary", domain.ErrInvalidDistribution, p)
		}
	}
	if err := parents.Add(child).CheckStates(0); err != nil {
		return nil, err
	}
	if len(inhibitors) != parents.Len() {
		return nil, fmt.Errorf("%w: noisy-or %s needs %d inhibitors, got %d",
			domain.ErrInvalidDistribution, child, parents.Len(), len(inhibitors))
	}
	if leak < 0 || leak > 1 {
		return nil, fmt.Errorf("%w: leak %g", domain.ErrInvalidDistribution, leak)
	}
	for _, q := range inhibitors {
		if q < 0 || q > 1 {
			return nil, fmt.Errorf("%w: inhibitor %g", domain.ErrInvalidDistribution, q)
		}
	}
	rows := Ones(parents)
	values := make([]float64, 0, rows.Len()*2)
	for p := 0; p < rows.Len(); p++ {
		off := 1 - leak
		for i, s := range rows.States(p) {
			if s == 1 {
				off *= inhibitors[i]
			}
		}
		values = append(values, off, 1-off)
	}
	t, err := NewConditional(child, parents, values)
	if err != nil {
		return nil, err
	}
	return &NoisyOR{compiled: compiled{table: t}, child: child}, nil
}

func (n *NoisyOR) Child() *domain.Variable { return n.child }
