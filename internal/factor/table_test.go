package factor

import (
	"fmt"
	"math"
	"testing"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVar(t *testing.T, name string, d domain.Domain) *domain.Variable {
	t.Helper()
	v, err := domain.NewVariable(name, d)
	require.NoError(t, err)
	return v
}

func TestTable_ProductAndSum(t *testing.T) {
	a := newVar(t, "A", domain.Binary())
	b := newVar(t, "B", domain.Range(3))

	pa, err := NewMarginal(a, 0.4, 0.6)
	require.NoError(t, err)
	pb, err := NewConditional(b, domain.NewVariableSet(a), []float64{
		0.1, 0.2, 0.7,
		0.5, 0.25, 0.25,
	})
	require.NoError(t, err)

	joint := pa.Product(pb)
	assert.Equal(t, "A^B", joint.Scope().String())
	assert.InDelta(t, 1.0, joint.Sum(), 1e-12)
	assert.InDelta(t, 0.4*0.7, joint.At(0, 2), 1e-12)
	assert.InDelta(t, 0.6*0.25, joint.At(1, 1), 1e-12)

	mb := joint.SumTo(domain.NewVariableSet(b))
	assert.Equal(t, "B", mb.Scope().String())
	assert.InDelta(t, 0.4*0.1+0.6*0.5, mb.At(0), 1e-12)
	assert.InDelta(t, 0.4*0.7+0.6*0.25, mb.At(2), 1e-12)

	// Product is commutative up to layout.
	other := pb.Product(pa)
	diff, err := joint.MaxAbsDiff(other)
	require.NoError(t, err)
	assert.Less(t, diff, 1e-15)
}

func TestTable_Reduce(t *testing.T) {
	a := newVar(t, "A", domain.Binary())
	b := newVar(t, "B", domain.Range(3))
	c := newVar(t, "C", domain.Binary())
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i)
	}
	tab, err := NewTable(domain.NewVariableSet(a, b, c), values)
	require.NoError(t, err)

	r, err := tab.Reduce(domain.Assignment{}.Set(b, 2))
	require.NoError(t, err)
	assert.Equal(t, "A^C", r.Scope().String())
	// index = a*6 + b*2 + c
	assert.Equal(t, []float64{4, 5, 10, 11}, r.Values())

	_, err = tab.Reduce(domain.Assignment{}.Set(b, 3))
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestTable_ReorderAndDivide(t *testing.T) {
	a := newVar(t, "A", domain.Binary())
	b := newVar(t, "B", domain.Range(3))
	tab, err := NewTable(domain.NewVariableSet(a, b), []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	r, err := tab.Reorder(domain.NewVariableSet(b, a))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, r.Values())

	_, err = tab.Reorder(domain.NewVariableSet(a))
	assert.ErrorIs(t, err, domain.ErrScopeMismatch)

	den, err := NewTable(domain.NewVariableSet(b), []float64{1, 0, 2})
	require.NoError(t, err)
	q, err := tab.Divide(den)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1.5, 4, 0, 3}, q.Values())

	_, err = den.Divide(tab)
	assert.ErrorIs(t, err, domain.ErrScopeMismatch)
}

func TestTable_NormalizeOverLeavesZeroSlices(t *testing.T) {
	a := newVar(t, "A", domain.Binary())
	b := newVar(t, "B", domain.Binary())
	tab, err := NewTable(domain.NewVariableSet(a, b), []float64{0.2, 0, 0.6, 0})
	require.NoError(t, err)

	n, z, err := tab.NormalizeOver(domain.NewVariableSet(b))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, n.At(0, 0), 1e-12)
	assert.InDelta(t, 0.75, n.At(1, 0), 1e-12)
	assert.Equal(t, 0.0, n.At(0, 1))
	assert.Equal(t, 0.0, n.At(1, 1))
	assert.InDelta(t, 0.8, z.At(0), 1e-12)
	for _, v := range n.Values() {
		assert.False(t, math.IsNaN(v))
	}
}

func TestNewConditional_Validation(t *testing.T) {
	a := newVar(t, "A", domain.Binary())
	b := newVar(t, "B", domain.Binary())

	_, err := NewConditional(b, domain.NewVariableSet(a), []float64{0.5, 0.5, 0.3})
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)

	_, err = NewConditional(b, domain.NewVariableSet(a), []float64{0.5, 0.5, 0.3, 0.6})
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)

	_, err = NewConditional(b, domain.NewVariableSet(a), []float64{1.5, -0.5, 0.3, 0.7})
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)

	_, err = NewConditional(b, domain.NewVariableSet(b), []float64{1, 0})
	assert.ErrorIs(t, err, domain.ErrScopeMismatch)
}

func TestIndicator(t *testing.T) {
	a := newVar(t, "A", domain.Range(4))
	ind, err := Indicator(a, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, ind.Values())

	_, err = Indicator(a, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestFactorCapabilities(t *testing.T) {
	a := newVar(t, "A", domain.Binary())
	b := newVar(t, "B", domain.Binary())
	pa, err := NewMarginal(a, 0.3, 0.7)
	require.NoError(t, err)
	orB, err := NewDeterministic(b, domain.NewVariableSet(a), Or)
	require.NoError(t, err)

	var f Factor = pa
	joint, err := f.Combine(orB)
	require.NoError(t, err)
	m, err := joint.Marginalize(domain.NewVariableSet(b))
	require.NoError(t, err)

	p, err := m.Eval(domain.Assignment{}.Set(b, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, p, 1e-12)

	_, err = m.Eval(domain.Assignment{})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	all, err := Multiply(pa, orB)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, all.Sum(), 1e-12)
}

func TestNewConditional_RejectsOverflowingScope(t *testing.T) {
	child := newVar(t, "C", domain.Binary())
	parents := make([]*domain.Variable, 64)
	for i := range parents {
		parents[i] = newVar(t, fmt.Sprintf("P%d", i), domain.Binary())
	}
	set := domain.NewVariableSet(parents...)

	_, err := NewConditional(child, set, nil)
	assert.ErrorIs(t, err, domain.ErrCliqueTooLarge)
	_, err = NewDeterministic(child, set, Or)
	assert.ErrorIs(t, err, domain.ErrCliqueTooLarge)
	_, err = NewNoisyOR(child, set, make([]float64, len(parents)), 0)
	assert.ErrorIs(t, err, domain.ErrCliqueTooLarge)
}
