// Package propagation runs collect/distribute belief propagation over a
// junction tree.
package propagation

import (
	"fmt"
	"time"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/Harshitk-cp/junctree/internal/junction"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Collecting
	Distributing
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Distributing:
		return "distributing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type observation struct {
	v     *domain.Variable
	state int
}

// Engine owns the clique potentials and the message cache of one tree. It is
// not safe for concurrent use; the Beliefs it returns are.
type Engine struct {
	tree       *junction.Tree
	potentials []*factor.Table
	local      []*factor.Table
	// messages[s][0] flows A -> B over separator s, messages[s][1] B -> A.
	messages [][2]*factor.Table
	evidence map[uuid.UUID]observation
	state    State
	beliefs  *Beliefs
	computed int
	logger   *zap.Logger
}

// New multiplies the node tables (indexed like the DAG the tree was built
// from) into the potentials of the cliques they were assigned to.
func New(tree *junction.Tree, tables []*factor.Table, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		tree:       tree,
		potentials: make([]*factor.Table, tree.Len()),
		local:      make([]*factor.Table, tree.Len()),
		messages:   make([][2]*factor.Table, len(tree.Separators)),
		evidence:   make(map[uuid.UUID]observation),
		logger:     logger,
	}
	for _, c := range tree.Cliques {
		p := factor.Ones(c.Vars)
		for _, i := range c.Factors {
			if i >= len(tables) || tables[i] == nil {
				return nil, fmt.Errorf("%w: node %d of clique %d", domain.ErrMissingDistribution, i, c.ID)
			}
			if !c.Vars.ContainsAll(tables[i].Scope()) {
				return nil, fmt.Errorf("%w: %s assigned to clique %s",
					domain.ErrTriangulationFailure, tables[i].Scope(), c.Vars)
			}
			p = p.Product(tables[i])
		}
		e.potentials[c.ID] = p
		e.local[c.ID] = p
	}
	return e, nil
}

func (e *Engine) State() State { return e.state }

func (e *Engine) Tree() *junction.Tree { return e.tree }

// MessagesComputed counts separator messages computed since New.
func (e *Engine) MessagesComputed() int { return e.computed }

// Observe enters hard evidence v = state. Only messages flowing away from
// the clique that owns v are dropped.
func (e *Engine) Observe(v *domain.Variable, state int) error {
	owner, ok := e.tree.Owner(v)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownVariable, v)
	}
	if state < 0 || state >= v.Size() {
		return fmt.Errorf("%w: state %d of %s", domain.ErrInvalidValue, state, v)
	}
	if o, ok := e.evidence[v.ID()]; ok && o.state == state {
		return nil
	}
	e.evidence[v.ID()] = observation{v: v, state: state}
	e.refresh(owner)
	return nil
}

// Retract removes the evidence on v, if any.
func (e *Engine) Retract(v *domain.Variable) {
	if _, ok := e.evidence[v.ID()]; !ok {
		return
	}
	delete(e.evidence, v.ID())
	if owner, ok := e.tree.Owner(v); ok {
		e.refresh(owner)
	}
}

func (e *Engine) ClearEvidence() {
	if len(e.evidence) == 0 {
		return
	}
	e.evidence = make(map[uuid.UUID]observation)
	for i := range e.local {
		e.local[i] = e.potentials[i]
	}
	for i := range e.messages {
		e.messages[i] = [2]*factor.Table{}
	}
	e.reset()
}

// Evidence returns a copy of the current observations.
func (e *Engine) Evidence() domain.Assignment {
	a := make(domain.Assignment, len(e.evidence))
	for id, o := range e.evidence {
		a[id] = o.state
	}
	return a
}

func (e *Engine) reset() {
	e.beliefs = nil
	e.state = Idle
}

// refresh rebuilds the local potential of clique c and invalidates every
// message directed away from it.
func (e *Engine) refresh(c junction.CliqueID) {
	p := e.potentials[c]
	for _, o := range e.evidence {
		if owner, _ := e.tree.Owner(o.v); owner != c {
			continue
		}
		ind, _ := factor.Indicator(o.v, o.state)
		p = p.Product(ind)
	}
	e.local[c] = p

	seen := map[junction.CliqueID]bool{c: true}
	stack := []junction.CliqueID{c}
	for len(stack) > 0 {
		from := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range e.tree.Links(from) {
			if seen[l.To] {
				continue
			}
			seen[l.To] = true
			e.messages[l.Separator][direction(e.tree.Separator(l.Separator), from)] = nil
			stack = append(stack, l.To)
		}
	}
	e.reset()
}

func direction(s *junction.Separator, from junction.CliqueID) int {
	if s.A == from {
		return 0
	}
	return 1
}

// message returns the cached message from -> over separator sep, computing
// it (and everything it depends on) when missing.
func (e *Engine) message(from junction.CliqueID, sep int) *factor.Table {
	s := e.tree.Separator(sep)
	d := direction(s, from)
	if m := e.messages[sep][d]; m != nil {
		return m
	}
	p := e.local[from]
	for _, l := range e.tree.Links(from) {
		if l.Separator == sep {
			continue
		}
		p = p.Product(e.message(l.To, l.Separator))
	}
	m := p.SumTo(s.Vars)
	e.messages[sep][d] = m
	e.computed++
	return m
}

// collect pulls messages from the leaves toward c.
func (e *Engine) collect(c junction.CliqueID, parentSep int) {
	for _, l := range e.tree.Links(c) {
		if l.Separator == parentSep {
			continue
		}
		e.collect(l.To, l.Separator)
		e.message(l.To, l.Separator)
	}
}

// distribute pushes messages from c toward the leaves.
func (e *Engine) distribute(c junction.CliqueID, parentSep int) {
	for _, l := range e.tree.Links(c) {
		if l.Separator == parentSep {
			continue
		}
		e.message(c, l.Separator)
		e.distribute(l.To, l.Separator)
	}
}

// Propagate brings every clique to its calibrated marginal and returns the
// resulting snapshot. Calling it again without new evidence returns the same
// snapshot.
func (e *Engine) Propagate() (*Beliefs, error) {
	if e.beliefs != nil {
		return e.beliefs, nil
	}
	start := time.Now()
	before := e.computed

	e.state = Collecting
	for _, r := range e.tree.Roots {
		e.collect(r, -1)
	}
	e.state = Distributing
	for _, r := range e.tree.Roots {
		e.distribute(r, -1)
	}

	b := &Beliefs{
		tree:     e.tree,
		cliques:  make([]*factor.Table, e.tree.Len()),
		mass:     make([]float64, len(e.tree.Roots)),
		evidence: e.Evidence(),
	}
	for _, c := range e.tree.Cliques {
		p := e.local[c.ID]
		for _, l := range e.tree.Links(c.ID) {
			p = p.Product(e.message(l.To, l.Separator))
		}
		b.cliques[c.ID] = p
	}
	for k, r := range e.tree.Roots {
		b.mass[k] = b.cliques[r].Sum()
	}

	e.beliefs = b
	e.state = Ready
	e.logger.Debug("propagation complete",
		zap.Int("cliques", e.tree.Len()),
		zap.Int("messages", e.computed-before),
		zap.Int("evidence", len(e.evidence)),
		zap.Duration("duration", time.Since(start)))
	return b, nil
}
