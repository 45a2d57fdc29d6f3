package factor

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/junctree/internal/domain"
)

// Distribution is the answer to a query P(Searched | Known).
//
// Table is laid out over Searched followed by Known. When Normalized is set,
// every slice with fixed Known values sums to 1 (or is all zero when that
// conditioning event is impossible). Otherwise Table holds the unnormalized
// joint with evidence and Normalizer holds the matching P(Known, evidence),
// a scalar table when Known is empty.
type Distribution struct {
	Searched   domain.VariableSet
	Known      domain.VariableSet
	Table      *Table
	Normalizer *Table
	Normalized bool
}

// NewDistribution wraps a table that already sums to 1 over searched.
func NewDistribution(t *Table) *Distribution {
	return &Distribution{Searched: t.Scope(), Table: t, Normalized: true}
}

func (d *Distribution) Scope() domain.VariableSet {
	return d.Searched.Union(d.Known)
}

func (d *Distribution) Sum() float64 { return d.Table.Sum() }

// Prob evaluates the table at a full assignment of Searched and Known.
func (d *Distribution) Prob(a domain.Assignment) (float64, error) {
	return d.Table.Eval(a)
}

// LogProb is log Prob; -Inf for impossible assignments.
func (d *Distribution) LogProb(a domain.Assignment) (float64, error) {
	p, err := d.Prob(a)
	if err != nil {
		return 0, err
	}
	return math.Log(p), nil
}

// Normalize divides by the normalization expression.
func (d *Distribution) Normalize() (*Distribution, error) {
	if d.Normalized {
		return d, nil
	}
	if d.Known.IsEmpty() {
		z := d.Normalizer.Sum()
		if z == 0 {
			return nil, fmt.Errorf("%w: P(evidence) = 0", domain.ErrDegenerateConditioning)
		}
		return &Distribution{Searched: d.Searched, Table: d.Table.Scale(1 / z), Normalized: true}, nil
	}
	if d.Normalizer.Sum() == 0 {
		return nil, fmt.Errorf("%w: every value of %s is impossible", domain.ErrDegenerateConditioning, d.Known)
	}
	t, err := d.Table.Divide(d.Normalizer)
	if err != nil {
		return nil, err
	}
	return &Distribution{Searched: d.Searched, Known: d.Known, Table: t, Normalized: true}, nil
}

// Instantiate fixes the Known variables and returns the normalized
// distribution over Searched.
func (d *Distribution) Instantiate(known domain.Assignment) (*Distribution, error) {
	fixed := known.Restrict(d.Known)
	if len(fixed) != d.Known.Len() {
		return nil, fmt.Errorf("%w: instantiate needs values for all of %s", domain.ErrInvalidValue, d.Known)
	}
	slice, err := d.Table.Reduce(fixed)
	if err != nil {
		return nil, err
	}
	n, z := slice.Normalize()
	if z == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrDegenerateConditioning, describe(d.Known, fixed))
	}
	return &Distribution{Searched: d.Searched, Table: n, Normalized: true}, nil
}

// Mode returns the most probable assignment of the table, ties broken by the
// lowest index.
func (d *Distribution) Mode() (domain.Assignment, float64) {
	best, arg := -1.0, 0
	for i, v := range d.Table.values {
		if v > best {
			best, arg = v, i
		}
	}
	a := make(domain.Assignment, d.Table.scope.Len())
	for j, s := range d.Table.States(arg) {
		a.Set(d.Table.scope.At(j), s)
	}
	return a, best
}

// Expectation is E[X] for a single searched variable with numeric states.
func (d *Distribution) Expectation() (float64, error) {
	if d.Searched.Len() != 1 || !d.Known.IsEmpty() {
		return 0, fmt.Errorf("%w: expectation needs one searched variable and no known ones", domain.ErrInvalidValue)
	}
	n, err := d.Normalize()
	if err != nil {
		return 0, err
	}
	v := d.Searched.At(0)
	dom := v.Domain()
	var e float64
	for i, p := range n.Table.values {
		x, ok := dom.Numeric(i)
		if !ok {
			return 0, fmt.Errorf("%w: %s has non-numeric state %q", domain.ErrInvalidValue, v, dom.Label(i))
		}
		e += p * x
	}
	return e, nil
}

// Entry is one row of a distribution, keyed by variable name.
type Entry struct {
	States      map[string]string `json:"states"`
	Probability float64           `json:"probability"`
}

func (d *Distribution) Entries() []Entry {
	out := make([]Entry, d.Table.Len())
	scope := d.Table.Scope()
	for i, p := range d.Table.values {
		states := make(map[string]string, scope.Len())
		for j, s := range d.Table.States(i) {
			v := scope.At(j)
			states[v.Name()] = v.Label(s)
		}
		out[i] = Entry{States: states, Probability: p}
	}
	return out
}

func describe(s domain.VariableSet, a domain.Assignment) string {
	out := ""
	for i, v := range s.Vars() {
		if i > 0 {
			out += " "
		}
		st, _ := a.Get(v)
		out += fmt.Sprintf("%s=%s", v, v.Label(st))
	}
	return out
}
