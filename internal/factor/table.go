package factor

import (
	"fmt"
	"math"
	"strings"

	"github.com/Harshitk-cp/junctree/internal/domain"
)

// ConditionalTolerance bounds how far a child slice may sum from 1.
const ConditionalTolerance = 1e-9

// Table is a dense non-negative function over the assignments of its scope.
// Values are laid out row-major: the first scope variable varies slowest.
// Tables are never modified after construction.
type Table struct {
	scope   domain.VariableSet
	strides []int
	values  []float64
}

func NewTable(scope domain.VariableSet, values []float64) (*Table, error) {
	if err := scope.CheckStates(0); err != nil {
		return nil, err
	}
	if len(values) != scope.States() {
		return nil, fmt.Errorf("%w: %s needs %d values, got %d",
			domain.ErrInvalidDistribution, scope, scope.States(), len(values))
	}
	for i, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %d of %s is %g", domain.ErrInvalidDistribution, i, scope, v)
		}
	}
	return newTable(scope, append([]float64(nil), values...)), nil
}

func newTable(scope domain.VariableSet, values []float64) *Table {
	n := scope.Len()
	strides := make([]int, n)
	s := 1
	for i := n - 1; i >= 0; i-- {
		strides[i] = s
		s *= scope.At(i).Size()
	}
	return &Table{scope: scope, strides: strides, values: values}
}

// Ones is the neutral element of Product over scope.
func Ones(scope domain.VariableSet) *Table {
	values := make([]float64, scope.States())
	for i := range values {
		values[i] = 1
	}
	return newTable(scope, values)
}

func Scalar(x float64) *Table {
	return newTable(domain.VariableSet{}, []float64{x})
}

// Indicator is 1 at state of v and 0 elsewhere.
func Indicator(v *domain.Variable, state int) (*Table, error) {
	if state < 0 || state >= v.Size() {
		return nil, fmt.Errorf("%w: state %d of %s", domain.ErrInvalidValue, state, v)
	}
	values := make([]float64, v.Size())
	values[state] = 1
	return newTable(domain.NewVariableSet(v), values), nil
}

// NewConditional builds P(child | parents) with the child varying fastest.
func NewConditional(child *domain.Variable, parents domain.VariableSet, values []float64) (*Table, error) {
	if parents.Contains(child) {
		return nil, fmt.Errorf("%w: %s is its own parent", domain.ErrScopeMismatch, child)
	}
	t, err := NewTable(parents.Add(child), values)
	if err != nil {
		return nil, err
	}
	if err := t.CheckConditional(child); err != nil {
		return nil, err
	}
	return t, nil
}

func NewMarginal(v *domain.Variable, values ...float64) (*Table, error) {
	return NewConditional(v, domain.VariableSet{}, values)
}

func (t *Table) Scope() domain.VariableSet { return t.scope }

func (t *Table) Len() int { return len(t.values) }

func (t *Table) Values() []float64 {
	return append([]float64(nil), t.values...)
}

// At reads the entry for states given in scope order.
func (t *Table) At(states ...int) float64 {
	idx := 0
	for i, s := range states {
		idx += s * t.strides[i]
	}
	return t.values[idx]
}

func (t *Table) index(a domain.Assignment) (int, error) {
	idx := 0
	for i, v := range t.scope.Vars() {
		s, ok := a.Get(v)
		if !ok {
			return 0, fmt.Errorf("%w: no value for %s", domain.ErrInvalidValue, v)
		}
		if s < 0 || s >= v.Size() {
			return 0, fmt.Errorf("%w: state %d of %s", domain.ErrInvalidValue, s, v)
		}
		idx += s * t.strides[i]
	}
	return idx, nil
}

func (t *Table) Eval(a domain.Assignment) (float64, error) {
	idx, err := t.index(a)
	if err != nil {
		return 0, err
	}
	return t.values[idx], nil
}

// States decodes a flat index into per-variable states.
func (t *Table) States(idx int) []int {
	states := make([]int, t.scope.Len())
	for i := range states {
		states[i] = idx / t.strides[i] % t.scope.At(i).Size()
	}
	return states
}

func (t *Table) Sum() float64 {
	var s float64
	for _, v := range t.values {
		s += v
	}
	return s
}

func (t *Table) Scale(x float64) *Table {
	out := make([]float64, len(t.values))
	for i, v := range t.values {
		out[i] = v * x
	}
	return newTable(t.scope, out)
}

// strideIn returns, for each variable of scope, its stride in t (0 when t
// does not mention it).
func (t *Table) strideIn(scope domain.VariableSet) []int {
	out := make([]int, scope.Len())
	for i, v := range scope.Vars() {
		if j := t.scope.IndexOf(v); j >= 0 {
			out[i] = t.strides[j]
		}
	}
	return out
}

func sizes(scope domain.VariableSet) []int {
	out := make([]int, scope.Len())
	for i, v := range scope.Vars() {
		out[i] = v.Size()
	}
	return out
}

// walk visits every assignment of scope in row-major order, passing the
// running offsets into each of the given stride vectors.
func walk(scope domain.VariableSet, strides [][]int, visit func(i int, offsets []int)) {
	n := scope.Len()
	dims := sizes(scope)
	states := make([]int, n)
	offsets := make([]int, len(strides))
	total := scope.States()
	for i := 0; i < total; i++ {
		visit(i, offsets)
		for k := n - 1; k >= 0; k-- {
			states[k]++
			for j, st := range strides {
				offsets[j] += st[k]
			}
			if states[k] < dims[k] {
				break
			}
			for j, st := range strides {
				offsets[j] -= st[k] * dims[k]
			}
			states[k] = 0
		}
	}
}

// Product multiplies two tables; the result scope is t's scope followed by
// the new variables of o.
func (t *Table) Product(o *Table) *Table {
	scope := t.scope.Union(o.scope)
	out := make([]float64, scope.States())
	walk(scope, [][]int{t.strideIn(scope), o.strideIn(scope)}, func(i int, off []int) {
		out[i] = t.values[off[0]] * o.values[off[1]]
	})
	return newTable(scope, out)
}

// SumTo marginalizes onto keep ∩ scope, preserving t's variable order.
func (t *Table) SumTo(keep domain.VariableSet) *Table {
	scope := t.scope.Intersect(keep)
	if scope.Len() == t.scope.Len() {
		return t
	}
	res := newTable(scope, make([]float64, scope.States()))
	walk(t.scope, [][]int{res.strideIn(t.scope)}, func(i int, off []int) {
		res.values[off[0]] += t.values[i]
	})
	return res
}

func (t *Table) SumOut(vars domain.VariableSet) *Table {
	return t.SumTo(t.scope.Difference(vars))
}

// Reduce fixes the variables assigned in a and drops them from the scope.
func (t *Table) Reduce(a domain.Assignment) (*Table, error) {
	base := 0
	var rest []*domain.Variable
	for i, v := range t.scope.Vars() {
		s, ok := a.Get(v)
		if !ok {
			rest = append(rest, v)
			continue
		}
		if s < 0 || s >= v.Size() {
			return nil, fmt.Errorf("%w: state %d of %s", domain.ErrInvalidValue, s, v)
		}
		base += s * t.strides[i]
	}
	scope := domain.NewVariableSet(rest...)
	out := make([]float64, scope.States())
	walk(scope, [][]int{t.strideIn(scope)}, func(i int, off []int) {
		out[i] = t.values[base+off[0]]
	})
	return newTable(scope, out), nil
}

// Divide divides by o, whose scope must be a subset of t's. Entries where o
// is zero become zero.
func (t *Table) Divide(o *Table) (*Table, error) {
	if !t.scope.ContainsAll(o.scope) {
		return nil, fmt.Errorf("%w: cannot divide %s by %s", domain.ErrScopeMismatch, t.scope, o.scope)
	}
	out := make([]float64, len(t.values))
	walk(t.scope, [][]int{o.strideIn(t.scope)}, func(i int, off []int) {
		if d := o.values[off[0]]; d != 0 {
			out[i] = t.values[i] / d
		}
	})
	return newTable(t.scope, out), nil
}

// Reorder returns the same function laid out in the order of scope.
func (t *Table) Reorder(scope domain.VariableSet) (*Table, error) {
	if !t.scope.Equal(scope) {
		return nil, fmt.Errorf("%w: cannot reorder %s as %s", domain.ErrScopeMismatch, t.scope, scope)
	}
	out := make([]float64, len(t.values))
	walk(scope, [][]int{t.strideIn(scope)}, func(i int, off []int) {
		out[i] = t.values[off[0]]
	})
	return newTable(scope, out), nil
}

// Normalize scales t to sum to 1 and returns the former sum. A zero table is
// returned unchanged with z = 0.
func (t *Table) Normalize() (*Table, float64) {
	z := t.Sum()
	if z == 0 {
		return t, 0
	}
	return t.Scale(1 / z), z
}

// NormalizeOver makes every slice with fixed cond values sum to 1. It returns
// the normalized table and the per-slice sums.
func (t *Table) NormalizeOver(cond domain.VariableSet) (*Table, *Table, error) {
	z := t.SumTo(cond)
	n, err := t.Divide(z)
	if err != nil {
		return nil, nil, err
	}
	return n, z, nil
}

// CheckConditional verifies that t is a valid P(child | rest).
func (t *Table) CheckConditional(child *domain.Variable) error {
	ci := t.scope.IndexOf(child)
	if ci < 0 {
		return fmt.Errorf("%w: %s not in %s", domain.ErrScopeMismatch, child, t.scope)
	}
	sums := t.SumOut(domain.NewVariableSet(child))
	for i, s := range sums.values {
		if math.Abs(s-1) > ConditionalTolerance {
			return fmt.Errorf("%w: P(%s | %s) slice %d sums to %g",
				domain.ErrInvalidDistribution, child, sums.scope, i, s)
		}
	}
	return nil
}

// MaxAbsDiff compares two tables over the same variable set.
func (t *Table) MaxAbsDiff(o *Table) (float64, error) {
	r, err := o.Reorder(t.scope)
	if err != nil {
		return 0, err
	}
	var d float64
	for i, v := range t.values {
		d = math.Max(d, math.Abs(v-r.values[i]))
	}
	return d, nil
}

// Factor capability methods.

func (t *Table) Combine(o Factor) (Factor, error) {
	ot, err := o.Compile()
	if err != nil {
		return nil, err
	}
	return t.Product(ot), nil
}

func (t *Table) Marginalize(keep domain.VariableSet) (Factor, error) {
	return t.SumTo(keep), nil
}

func (t *Table) Compile() (*Table, error) { return t, nil }

func (t *Table) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "P(%s)\n", t.scope)
	for i, v := range t.values {
		states := t.States(i)
		parts := make([]string, len(states))
		for j, s := range states {
			parts[j] = fmt.Sprintf("%s=%s", t.scope.At(j), t.scope.At(j).Label(s))
		}
		fmt.Fprintf(&b, "  [%s] %g\n", strings.Join(parts, " "), v)
	}
	return b.String()
}
