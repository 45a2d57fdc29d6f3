package service

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/Harshitk-cp/junctree/internal/graph"
	"github.com/Harshitk-cp/junctree/internal/junction"
	"github.com/Harshitk-cp/junctree/internal/metrics"
	"github.com/Harshitk-cp/junctree/internal/propagation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures compilation and instrumentation of a Network.
type Options struct {
	Heuristic       junction.Heuristic
	Policy          junction.ComponentPolicy
	MaxCliqueStates int
	Logger          *zap.Logger
	Metrics         *metrics.Inference
}

func DefaultOptions() Options {
	return Options{
		Heuristic: junction.MinFill,
		Policy:    junction.Forest,
		Logger:    zap.NewNop(),
	}
}

// Network is a Bayesian network with lazily compiled exact inference.
//
// Mutations take the write lock and invalidate the compiled tree (structure
// and distributions) or the propagated beliefs (evidence). Queries run under
// the read lock against an immutable snapshot of the beliefs.
type Network struct {
	mu       sync.RWMutex
	opts     Options
	logger   *zap.Logger
	registry *domain.Registry
	dag      *graph.DAG
	factors  map[uuid.UUID]factor.Factor
	tables   map[uuid.UUID]*factor.Table
	evidence map[uuid.UUID]int

	// generation counts structural and distribution changes, evidenceGen
	// evidence changes. Snapshots compare both.
	generation  uint64
	evidenceGen uint64

	tree       *junction.Tree
	nodeTables []*factor.Table
	engine     *propagation.Engine
	compiled   uint64
	beliefs    *propagation.Beliefs
}

func NewNetwork(opts Options) *Network {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Heuristic == "" {
		opts.Heuristic = junction.MinFill
	}
	if opts.Policy == "" {
		opts.Policy = junction.Forest
	}
	return &Network{
		opts:     opts,
		logger:   opts.Logger,
		registry: domain.NewRegistry(),
		dag:      graph.New(),
		factors:  make(map[uuid.UUID]factor.Factor),
		tables:   make(map[uuid.UUID]*factor.Table),
		evidence: make(map[uuid.UUID]int),
	}
}

// invalidate drops everything derived from the model. Caller holds the write
// lock.
func (n *Network) invalidate() {
	n.generation++
	n.tree = nil
	n.nodeTables = nil
	n.engine = nil
	n.beliefs = nil
}

func (n *Network) AddVariable(name string, d domain.Domain) (*domain.Variable, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	v, err := n.registry.Add(name, d)
	if err != nil {
		return nil, err
	}
	if err := n.dag.AddNode(v); err != nil {
		return nil, err
	}
	n.invalidate()
	return v, nil
}

func (n *Network) Variable(name string) (*domain.Variable, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registry.Lookup(name)
}

// Variables lists the variables in insertion order.
func (n *Network) Variables() []*domain.Variable {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registry.All()
}

// Set resolves names to a VariableSet in the given order.
func (n *Network) Set(names ...string) (domain.VariableSet, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registry.Set(names...)
}

func (n *Network) Parents(name string) (domain.VariableSet, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, err := n.registry.Lookup(name)
	if err != nil {
		return domain.VariableSet{}, err
	}
	return n.dag.Parents(v), nil
}

// AddEdge inserts parent -> child. The child's distribution no longer matches
// its family and is dropped.
func (n *Network) AddEdge(parent, child string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, c, err := n.edge(parent, child)
	if err != nil {
		return err
	}
	if err := n.dag.AddEdge(p, c); err != nil {
		return err
	}
	n.dropDistribution(c)
	n.invalidate()
	return nil
}

func (n *Network) RemoveEdge(parent, child string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, c, err := n.edge(parent, child)
	if err != nil {
		return err
	}
	if err := n.dag.RemoveEdge(p, c); err != nil {
		return err
	}
	n.dropDistribution(c)
	n.invalidate()
	return nil
}

func (n *Network) edge(parent, child string) (*domain.Variable, *domain.Variable, error) {
	p, err := n.registry.Lookup(parent)
	if err != nil {
		return nil, nil, err
	}
	c, err := n.registry.Lookup(child)
	if err != nil {
		return nil, nil, err
	}
	return p, c, nil
}

func (n *Network) dropDistribution(v *domain.Variable) {
	if _, ok := n.factors[v.ID()]; ok {
		n.logger.Debug("dropping distribution after edge change", zap.String("variable", v.Name()))
	}
	delete(n.factors, v.ID())
	delete(n.tables, v.ID())
}

// SetDistribution attaches f as the local distribution of its child. The
// scope must equal the child's family and every child slice must sum to 1.
func (n *Network) SetDistribution(f factor.Conditional) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	child := f.Child()
	if child == nil || !n.registry.Owns(child) {
		return fmt.Errorf("%w: %v", domain.ErrUnknownVariable, child)
	}
	family := n.dag.Family(child)
	if !f.Scope().Equal(family) {
		return fmt.Errorf("%w: %s has scope %s, family is %s",
			domain.ErrScopeMismatch, child, f.Scope(), family)
	}
	t, err := f.Compile()
	if err != nil {
		return err
	}
	if err := t.CheckConditional(child); err != nil {
		return err
	}
	n.factors[child.ID()] = f
	n.tables[child.ID()] = t
	n.invalidate()
	return nil
}

// SetTable attaches P(name | parents) from values laid out with the parents
// in edge order, first parent slowest, and the child fastest.
func (n *Network) SetTable(name string, values ...float64) error {
	n.mu.RLock()
	v, err := n.registry.Lookup(name)
	var parents domain.VariableSet
	if err == nil {
		parents = n.dag.Parents(v)
	}
	n.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := parents.Add(v).CheckStates(n.opts.MaxCliqueStates); err != nil {
		return err
	}

	t, err := factor.NewConditional(v, parents, values)
	if err != nil {
		return err
	}
	return n.SetDistribution(tableConditional{Table: t, child: v})
}

// tableConditional marks a plain table as the distribution of child.
type tableConditional struct {
	*factor.Table
	child *domain.Variable
}

func (t tableConditional) Child() *domain.Variable { return t.child }

func (n *Network) Distribution(name string) (factor.Factor, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, err := n.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	f, ok := n.factors[v.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingDistribution, v)
	}
	return f, nil
}

// Compile builds the junction tree if the model changed since the last
// compilation.
func (n *Network) Compile() (*junction.Tree, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.compileLocked(); err != nil {
		return nil, err
	}
	return n.tree, nil
}

// Tree returns the compiled tree or nil when the model changed since.
func (n *Network) Tree() *junction.Tree {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.tree
}

func (n *Network) compileLocked() error {
	if n.engine != nil && n.compiled == n.generation {
		return nil
	}
	start := time.Now()

	tables := make([]*factor.Table, n.dag.Len())
	for i, v := range n.dag.Nodes() {
		t, ok := n.tables[v.ID()]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrMissingDistribution, v)
		}
		tables[i] = t
	}
	tree, err := junction.Build(n.dag, junction.Options{
		Heuristic:       n.opts.Heuristic,
		Policy:          n.opts.Policy,
		MaxCliqueStates: n.opts.MaxCliqueStates,
		Logger:          n.logger,
	})
	if err != nil {
		return err
	}
	engine, err := propagation.New(tree, tables, n.logger)
	if err != nil {
		return err
	}
	for id, s := range n.evidence {
		v, _ := n.registry.ByID(id)
		if err := engine.Observe(v, s); err != nil {
			return err
		}
	}

	n.tree = tree
	n.nodeTables = tables
	n.engine = engine
	n.compiled = n.generation
	n.beliefs = nil
	n.opts.Metrics.ObserveCompile(time.Since(start), tree.MaxStates())
	n.logger.Debug("network compiled",
		zap.Int("variables", n.dag.Len()),
		zap.Int("cliques", tree.Len()),
		zap.Int("width", tree.Width()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// current returns calibrated beliefs, compiling and propagating on demand.
func (n *Network) current() (*propagation.Beliefs, error) {
	n.mu.RLock()
	b := n.beliefs
	n.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentLocked()
}

func (n *Network) currentLocked() (*propagation.Beliefs, error) {
	if n.beliefs != nil {
		return n.beliefs, nil
	}
	if err := n.compileLocked(); err != nil {
		return nil, err
	}
	start := time.Now()
	b, err := n.engine.Propagate()
	if err != nil {
		return nil, err
	}
	n.opts.Metrics.ObservePropagation(time.Since(start))
	n.beliefs = b
	return b, nil
}

// Observe enters evidence name = label.
func (n *Network) Observe(name, label string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, err := n.registry.Lookup(name)
	if err != nil {
		return err
	}
	s, err := v.StateOf(label)
	if err != nil {
		return err
	}
	return n.observeLocked(v, s)
}

func (n *Network) ObserveState(name string, state int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, err := n.registry.Lookup(name)
	if err != nil {
		return err
	}
	return n.observeLocked(v, state)
}

// ObserveReal enters evidence on a continuous variable as the bin holding x.
func (n *Network) ObserveReal(name string, x float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, err := n.registry.Lookup(name)
	if err != nil {
		return err
	}
	d := v.Domain()
	s, err := d.StateOfReal(x)
	if err != nil {
		return err
	}
	return n.observeLocked(v, s)
}

func (n *Network) observeLocked(v *domain.Variable, state int) error {
	if state < 0 || state >= v.Size() {
		return fmt.Errorf("%w: state %d of %s", domain.ErrInvalidValue, state, v)
	}
	if s, ok := n.evidence[v.ID()]; ok && s == state {
		return nil
	}
	if n.engine != nil {
		if err := n.engine.Observe(v, state); err != nil {
			return err
		}
	}
	n.evidence[v.ID()] = state
	n.evidenceGen++
	n.beliefs = nil
	return nil
}

func (n *Network) Retract(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, err := n.registry.Lookup(name)
	if err != nil {
		return err
	}
	if _, ok := n.evidence[v.ID()]; !ok {
		return nil
	}
	delete(n.evidence, v.ID())
	if n.engine != nil {
		n.engine.Retract(v)
	}
	n.evidenceGen++
	n.beliefs = nil
	return nil
}

func (n *Network) ClearEvidence() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.evidence) == 0 {
		return
	}
	n.evidence = make(map[uuid.UUID]int)
	if n.engine != nil {
		n.engine.ClearEvidence()
	}
	n.evidenceGen++
	n.beliefs = nil
}

// Evidence maps observed variable names to their labels.
func (n *Network) Evidence() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string, len(n.evidence))
	for id, s := range n.evidence {
		v, _ := n.registry.ByID(id)
		out[v.Name()] = v.Label(s)
	}
	return out
}

// Dot writes the network, its moral graph and its junction tree in Graphviz
// format.
func (n *Network) Dot(w io.Writer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.compileLocked(); err != nil {
		return err
	}
	return junction.WriteDot(w, n.dag, n.tree)
}
