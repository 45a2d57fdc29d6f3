package service

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds X -> Y -> Z with a uniform X, Y a deterministic OR of X and Z
// a noisy AND of Y (Z fails 10% of the time when Y holds, leaks 5%
// otherwise).
func chain(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork(DefaultOptions())
	for _, name := range []string{"X", "Y", "Z"} {
		_, err := n.AddVariable(name, domain.Binary())
		require.NoError(t, err)
	}
	require.NoError(t, n.AddEdge("X", "Y"))
	require.NoError(t, n.AddEdge("Y", "Z"))

	require.NoError(t, n.SetTable("X", 0.5, 0.5))
	x, _ := n.Variable("X")
	y, _ := n.Variable("Y")
	or, err := factor.NewDeterministic(y, domain.NewVariableSet(x), factor.Or)
	require.NoError(t, err)
	require.NoError(t, n.SetDistribution(or))
	require.NoError(t, n.SetTable("Z", 0.95, 0.05, 0.1, 0.9))
	return n
}

// sprinkler is the five-node example network A, B -> D; C, D -> E.
func sprinkler(t *testing.T) *Network {
	t.Helper()
	def := domain.NetworkDefinition{
		Variables: []domain.VariableDefinition{
			{Name: "A", Domain: domain.Binary()},
			{Name: "B", Domain: domain.Binary()},
			{Name: "C", Domain: domain.Binary()},
			{Name: "D", Domain: domain.Binary()},
			{Name: "E", Domain: domain.Binary()},
		},
		Distributions: []domain.DistributionDefinition{
			{Variable: "A", Table: []float64{0.4, 0.6}},
			{Variable: "B", Table: []float64{0.18, 0.82}},
			{Variable: "C", Table: []float64{0.75, 0.25}},
			{Variable: "D", Parents: []string{"A", "B"}, Table: []float64{0.6, 0.4, 0.3, 0.7, 0.1, 0.9, 0.5, 0.5}},
			{Variable: "E", Parents: []string{"C", "D"}, Table: []float64{0.59, 0.41, 0.25, 0.75, 0.8, 0.2, 0.35, 0.65}},
		},
	}
	n, err := FromDefinition(def, DefaultOptions())
	require.NoError(t, err)
	return n
}

func set(t *testing.T, n *Network, names ...string) domain.VariableSet {
	t.Helper()
	s, err := n.Set(names...)
	require.NoError(t, err)
	return s
}

func TestNetwork_ChainScenario(t *testing.T) {
	n := chain(t)

	z, err := n.Ask(set(t, n, "Z"), domain.VariableSet{})
	require.NoError(t, err)
	// P(Z=1) = 0.5*0.05 + 0.5*0.9
	assert.InDeltaSlice(t, []float64{0.525, 0.475}, z.Table.Values(), 1e-12)
	assert.True(t, z.Normalized)

	// X and Z share no clique, so X=1 is entered as evidence.
	require.NoError(t, n.Observe("X", "true"))
	given, err := n.Ask(set(t, n, "Z"), domain.VariableSet{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.9}, given.Table.Values(), 1e-12)
	assert.NotEqual(t, z.Table.Values(), given.Table.Values())

	// Y given X is covered by a clique and can be asked as a conditional.
	n.ClearEvidence()
	cond, err := n.Ask(set(t, n, "Y"), set(t, n, "X"))
	require.NoError(t, err)
	x, _ := n.Variable("X")
	y, err := cond.Instantiate(domain.Assignment{}.Set(x, 1))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, y.Table.Values())
}

func TestNetwork_FiveNodeExample(t *testing.T) {
	n := sprinkler(t)

	d, err := n.AskNames([]string{"D"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3984, 0.6016}, d.Table.Values(), 1e-12)

	require.NoError(t, n.Observe("E", "true"))
	require.NoError(t, n.Observe("D", "false"))
	assert.Equal(t, map[string]string{"E": "true", "D": "false"}, n.Evidence())

	c, err := n.AskNames([]string{"C"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.8601398602, 0.1398601398}, c.Table.Values(), 1e-9)

	b, err := n.AskNames([]string{"B"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1355421687, 0.8644578313}, b.Table.Values(), 1e-9)

	// C and B never share a clique.
	_, err = n.AskNames([]string{"C", "B"}, nil)
	assert.ErrorIs(t, err, domain.ErrScopeNotCoverable)

	snap, err := n.Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 0.142428, snap.Probability(), 1e-12)
}

func TestNetwork_NormalizedSumsToOne(t *testing.T) {
	n := sprinkler(t)
	require.NoError(t, n.Observe("E", "false"))

	all, err := n.AskAll()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for id, d := range all {
		assert.InDelta(t, 1, d.Sum(), 1e-12, "clique %d", id)
	}

	for _, name := range []string{"A", "B", "C", "D", "E"} {
		d, err := n.AskNames([]string{name}, nil)
		require.NoError(t, err)
		assert.InDelta(t, 1, d.Sum(), 1e-12, name)
	}
}

func TestNetwork_UnnormalizedRoundTrip(t *testing.T) {
	n := sprinkler(t)
	require.NoError(t, n.Observe("A", "true"))

	raw, err := n.AskNames([]string{"C"}, []string{"E"}, Unnormalized())
	require.NoError(t, err)
	assert.False(t, raw.Normalized)
	require.NotNil(t, raw.Normalizer)

	pe, err := n.AskNames([]string{"E"}, nil, Unnormalized())
	require.NoError(t, err)
	manual, err := raw.Table.Divide(pe.Table)
	require.NoError(t, err)

	normalized, err := n.AskNames([]string{"C"}, []string{"E"})
	require.NoError(t, err)
	diff, err := manual.MaxAbsDiff(normalized.Table)
	require.NoError(t, err)
	assert.Less(t, diff, 1e-12)

	// The companion normalizer is the same expression.
	diff, err = raw.Normalizer.MaxAbsDiff(pe.Table)
	require.NoError(t, err)
	assert.Less(t, diff, 1e-12)
}

func TestNetwork_ObserveGivesPointMass(t *testing.T) {
	n := chain(t)
	require.NoError(t, n.ObserveState("Y", 1))

	y, err := n.AskNames([]string{"Y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, y.Table.Values())

	// Y is a deterministic copy of X.
	x, err := n.AskNames([]string{"X"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1}, x.Table.Values(), 1e-12)

	require.NoError(t, n.Retract("Y"))
	x, err = n.AskNames([]string{"X"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, x.Table.Values(), 1e-12)
}

func TestNetwork_DegenerateConditioning(t *testing.T) {
	n := NewNetwork(DefaultOptions())
	_, err := n.AddVariable("A", domain.Binary())
	require.NoError(t, err)
	_, err = n.AddVariable("B", domain.Binary())
	require.NoError(t, err)
	require.NoError(t, n.AddEdge("A", "B"))
	require.NoError(t, n.SetTable("A", 1, 0))
	require.NoError(t, n.SetTable("B", 0.3, 0.7, 0.5, 0.5))

	cond, err := n.AskNames([]string{"B"}, []string{"A"})
	require.NoError(t, err)
	a, _ := n.Variable("A")
	_, err = cond.Instantiate(domain.Assignment{}.Set(a, 1))
	assert.ErrorIs(t, err, domain.ErrDegenerateConditioning)
	for _, v := range cond.Table.Values() {
		assert.False(t, math.IsNaN(v))
	}

	require.NoError(t, n.Observe("A", "true"))
	_, err = n.AskNames([]string{"B"}, nil)
	assert.ErrorIs(t, err, domain.ErrDegenerateConditioning)
	_, err = n.AskNames([]string{"B"}, []string{"A"})
	assert.ErrorIs(t, err, domain.ErrDegenerateConditioning)

	// The unnormalized form still answers, with a zero normalizer.
	raw, err := n.AskNames([]string{"B"}, nil, Unnormalized())
	require.NoError(t, err)
	assert.Zero(t, raw.Normalizer.Sum())
}

func TestNetwork_QueryValidation(t *testing.T) {
	n := chain(t)

	_, err := n.Ask(domain.VariableSet{}, domain.VariableSet{})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)

	_, err = n.AskNames([]string{"X", "Y"}, []string{"Y"})
	assert.ErrorIs(t, err, domain.ErrOverlappingQuery)

	_, err = n.AskNames([]string{"X"}, []string{"Z"})
	assert.ErrorIs(t, err, domain.ErrScopeNotCoverable)

	_, err = n.AskNames([]string{"W"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownVariable)

	stranger, _ := domain.NewVariable("X", domain.Binary())
	_, err = n.Ask(domain.NewVariableSet(stranger), domain.VariableSet{})
	assert.ErrorIs(t, err, domain.ErrUnknownVariable)

	assert.ErrorIs(t, n.Observe("X", "maybe"), domain.ErrInvalidValue)
	assert.ErrorIs(t, n.ObserveState("X", 5), domain.ErrInvalidValue)
	assert.Empty(t, n.Evidence())
}

func TestNetwork_MutationsAreAllOrNothing(t *testing.T) {
	n := chain(t)
	before, err := n.AskNames([]string{"Z"}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, n.AddEdge("Z", "X"), domain.ErrCyclicGraph)
	assert.ErrorIs(t, n.AddEdge("X", "X"), domain.ErrSelfLoop)
	assert.ErrorIs(t, n.SetTable("Z", 0.5, 0.5), domain.ErrInvalidDistribution)
	assert.ErrorIs(t, n.SetTable("Z", 0.5, 0.6, 0.1, 0.9), domain.ErrInvalidDistribution)

	z, _ := n.Variable("Z")
	wrong, err := factor.NewConditional(z, domain.VariableSet{}, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.ErrorIs(t, n.SetDistribution(tableConditional{Table: wrong, child: z}), domain.ErrScopeMismatch)

	after, err := n.AskNames([]string{"Z"}, nil)
	require.NoError(t, err)
	assert.Equal(t, before.Table.Values(), after.Table.Values())
}

func TestNetwork_EdgeChangeNeedsNewDistribution(t *testing.T) {
	n := chain(t)
	require.NoError(t, n.AddEdge("X", "Z"))

	_, err := n.AskNames([]string{"Z"}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingDistribution)
	_, err = n.Distribution("Z")
	assert.ErrorIs(t, err, domain.ErrMissingDistribution)

	// Parents are Y then X in edge order.
	require.NoError(t, n.SetTable("Z", 1, 0, 1, 0, 1, 0, 0, 1))
	z, err := n.AskNames([]string{"Z"}, []string{"X"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Z", "X"}, z.Table.Scope().Names())
}

func TestNetwork_StaleSnapshot(t *testing.T) {
	n := chain(t)
	snap, err := n.Snapshot()
	require.NoError(t, err)

	_, err = snap.Ask(set(t, n, "Z"), domain.VariableSet{})
	require.NoError(t, err)

	require.NoError(t, n.Observe("X", "true"))
	_, err = snap.Ask(set(t, n, "Z"), domain.VariableSet{})
	assert.ErrorIs(t, err, domain.ErrStaleModel)
	_, err = snap.AskAll()
	assert.ErrorIs(t, err, domain.ErrStaleModel)

	fresh, err := n.Snapshot()
	require.NoError(t, err)
	_, err = n.AddVariable("W", domain.Binary())
	require.NoError(t, err)
	_, err = fresh.Ask(set(t, n, "Z"), domain.VariableSet{})
	assert.ErrorIs(t, err, domain.ErrStaleModel)
}

func TestNetwork_ConcurrentQueries(t *testing.T) {
	n := sprinkler(t)
	require.NoError(t, n.Observe("E", "true"))
	want, err := n.AskNames([]string{"A"}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := n.AskNames([]string{"A"}, nil)
				if err != nil {
					errs <- err
					return
				}
				if d, _ := got.Table.MaxAbsDiff(want.Table); d > 1e-12 {
					errs <- assert.AnError
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent ask: %v", err)
	}
}

func TestNetwork_ForestAcrossComponents(t *testing.T) {
	n := NewNetwork(DefaultOptions())
	_, err := n.AddVariable("A", domain.Binary())
	require.NoError(t, err)
	_, err = n.AddVariable("B", domain.Binary())
	require.NoError(t, err)
	require.NoError(t, n.SetTable("A", 0.2, 0.8))
	require.NoError(t, n.SetTable("B", 0.6, 0.4))
	require.NoError(t, n.Observe("B", "true"))

	a, err := n.AskNames([]string{"A"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.8}, a.Table.Values(), 1e-12)

	raw, err := n.AskNames([]string{"A"}, nil, Unnormalized())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.08, 0.32}, raw.Table.Values(), 1e-12)

	strict := NewNetwork(Options{Policy: "single_tree"})
	_, err = strict.AddVariable("A", domain.Binary())
	require.NoError(t, err)
	_, err = strict.AddVariable("B", domain.Binary())
	require.NoError(t, err)
	require.NoError(t, strict.SetTable("A", 0.2, 0.8))
	require.NoError(t, strict.SetTable("B", 0.6, 0.4))
	_, err = strict.Compile()
	assert.ErrorIs(t, err, domain.ErrDisconnected)
}

func TestNetwork_Dot(t *testing.T) {
	n := sprinkler(t)
	var buf bytes.Buffer
	require.NoError(t, n.Dot(&buf))
	assert.Contains(t, buf.String(), "cluster_junction")
	assert.Contains(t, buf.String(), `label="C0: A^B^D"`)
}

func TestNetwork_ContinuousChild(t *testing.T) {
	def := domain.NetworkDefinition{
		Variables: []domain.VariableDefinition{
			{Name: "Hot", Domain: domain.Binary()},
			{Name: "Temp", Domain: domain.Interval(0, 40, 8)},
		},
		Distributions: []domain.DistributionDefinition{
			{Variable: "Hot", Table: []float64{0.7, 0.3}},
			{Variable: "Temp", Parents: []string{"Hot"}, Kind: domain.DistributionGaussian,
				Means: []float64{12, 30}, StdDevs: []float64{4, 4}},
		},
	}
	n, err := FromDefinition(def, DefaultOptions())
	require.NoError(t, err)

	temp, err := n.AskNames([]string{"Temp"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, temp.Sum(), 1e-9)
	mean, err := temp.Expectation()
	require.NoError(t, err)
	assert.InDelta(t, 0.7*12+0.3*30, mean, 0.5)

	require.NoError(t, n.ObserveReal("Temp", 31))
	hot, err := n.AskNames([]string{"Hot"}, nil)
	require.NoError(t, err)
	assert.Greater(t, hot.Table.At(1), 0.9)
}

func TestNetwork_LogLikelihoodAndBIC(t *testing.T) {
	n := chain(t)
	src := domain.NewSliceSource(
		domain.Row{"X": "true", "Y": "true", "Z": "true"},
		domain.Row{"Z": "true"},
	)
	score, err := n.Score(context.Background(), src)
	require.NoError(t, err)

	want := math.Log(0.5*1*0.9) + math.Log(0.475)
	assert.InDelta(t, want, score.LogLikelihood, 1e-12)
	assert.Equal(t, 2, score.Rows)
	assert.Equal(t, 5, score.FreeParameters)
	assert.InDelta(t, want-2.5*math.Log(2), score.BIC, 1e-12)

	// Scoring leaves the network's own evidence alone.
	assert.Empty(t, n.Evidence())

	_, _, err = n.LogLikelihood(context.Background(), domain.NewSliceSource(domain.Row{"Q": "true"}))
	assert.ErrorIs(t, err, domain.ErrUnknownVariable)
}

func TestNetwork_RemoveEdgeDropsChildDistribution(t *testing.T) {
	n := chain(t)
	_, err := n.Compile()
	require.NoError(t, err)

	assert.ErrorIs(t, n.RemoveEdge("Z", "X"), domain.ErrEdgeNotFound)
	assert.ErrorIs(t, n.RemoveEdge("X", "Nope"), domain.ErrUnknownVariable)

	require.NoError(t, n.RemoveEdge("X", "Y"))
	assert.Nil(t, n.Tree())
	_, err = n.Distribution("Y")
	assert.ErrorIs(t, err, domain.ErrMissingDistribution)
	_, err = n.AskNames([]string{"Z"}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingDistribution)

	parents, err := n.Parents("Y")
	require.NoError(t, err)
	assert.Zero(t, parents.Len())

	require.NoError(t, n.SetTable("Y", 0.3, 0.7))
	tree, err := n.Compile()
	require.NoError(t, err)
	assert.NoError(t, tree.Validate())

	y, err := n.AskNames([]string{"Y"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, 0.7}, y.Table.Values(), 1e-12)
	z, err := n.AskNames([]string{"Z"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.355, 0.645}, z.Table.Values(), 1e-12)
}

func TestNetwork_SetTableRejectsOverflowingFamily(t *testing.T) {
	for _, limit := range []int{0, 1 << 22} {
		opts := DefaultOptions()
		opts.MaxCliqueStates = limit
		n := NewNetwork(opts)
		_, err := n.AddVariable("C", domain.Binary())
		require.NoError(t, err)
		for i := 0; i < 64; i++ {
			name := fmt.Sprintf("P%d", i)
			_, err := n.AddVariable(name, domain.Binary())
			require.NoError(t, err)
			require.NoError(t, n.AddEdge(name, "C"))
		}

		assert.ErrorIs(t, n.SetTable("C"), domain.ErrCliqueTooLarge)
		_, err = n.Distribution("C")
		assert.ErrorIs(t, err, domain.ErrMissingDistribution)
	}
}

func TestFromDefinition_GuardsFamilySize(t *testing.T) {
	def := domain.NetworkDefinition{
		Variables: []domain.VariableDefinition{{Name: "C", Domain: domain.Binary()}},
	}
	var parents []string
	for i := 0; i < 24; i++ {
		name := fmt.Sprintf("P%d", i)
		parents = append(parents, name)
		def.Variables = append(def.Variables, domain.VariableDefinition{Name: name, Domain: domain.Binary()})
		def.Distributions = append(def.Distributions, domain.DistributionDefinition{Variable: name, Table: []float64{0.5, 0.5}})
	}
	def.Distributions = append(def.Distributions, domain.DistributionDefinition{
		Variable:   "C",
		Parents:    parents,
		Kind:       domain.DistributionNoisyOR,
		Inhibitors: make([]float64, len(parents)),
	})

	opts := DefaultOptions()
	opts.MaxCliqueStates = 1 << 10
	_, err := FromDefinition(def, opts)
	assert.ErrorIs(t, err, domain.ErrCliqueTooLarge)

	def.Distributions[len(def.Distributions)-1].Kind = domain.DistributionDeterministic
	def.Distributions[len(def.Distributions)-1].Function = domain.FunctionOr
	_, err = FromDefinition(def, opts)
	assert.ErrorIs(t, err, domain.ErrCliqueTooLarge)
}

func TestFromDefinition_Deterministic(t *testing.T) {
	def := func(fn string) domain.NetworkDefinition {
		return domain.NetworkDefinition{
			Variables: []domain.VariableDefinition{
				{Name: "X", Domain: domain.Binary()},
				{Name: "W", Domain: domain.Binary()},
				{Name: "Y", Domain: domain.Binary()},
			},
			Distributions: []domain.DistributionDefinition{
				{Variable: "X", Table: []float64{0.5, 0.5}},
				{Variable: "W", Table: []float64{0.8, 0.2}},
				{Variable: "Y", Parents: []string{"X", "W"}, Kind: domain.DistributionDeterministic, Function: fn},
			},
		}
	}

	tests := []struct {
		function string
		want     []float64
	}{
		{domain.FunctionOr, []float64{0.4, 0.6}},
		{domain.FunctionAnd, []float64{0.9, 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			n, err := FromDefinition(def(tt.function), DefaultOptions())
			require.NoError(t, err)
			y, err := n.AskNames([]string{"Y"}, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, y.Table.Values(), 1e-12)
		})
	}

	_, err := FromDefinition(def("xor"), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)
}

func TestFromDefinition_UnknownKinds(t *testing.T) {
	_, err := FromDefinition(domain.NetworkDefinition{
		Variables: []domain.VariableDefinition{{Name: "A", Domain: domain.Domain{Kind: "ordinal", Labels: []string{"a"}}}},
	}, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)

	_, err = FromDefinition(domain.NetworkDefinition{
		Variables:     []domain.VariableDefinition{{Name: "A", Domain: domain.Binary()}},
		Distributions: []domain.DistributionDefinition{{Variable: "A", Kind: "poisson"}},
	}, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)
}
