package service

import (
	"fmt"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/Harshitk-cp/junctree/internal/junction"
	"github.com/Harshitk-cp/junctree/internal/propagation"
)

type askConfig struct {
	normalize bool
}

type AskOption func(*askConfig)

// Unnormalized returns P(searched, known, evidence) together with the
// normalization expression P(known, evidence) instead of dividing.
func Unnormalized() AskOption {
	return func(c *askConfig) { c.normalize = false }
}

// Ask computes P(searched | known, evidence). With known variables the
// result is a table over searched^known in which every known slice sums to
// one; use Distribution.Instantiate to pick a slice.
func (n *Network) Ask(searched, known domain.VariableSet, opts ...AskOption) (*factor.Distribution, error) {
	d, err := n.ask(searched, known, opts)
	n.opts.Metrics.ObserveQuery("ask", err)
	return d, err
}

func (n *Network) ask(searched, known domain.VariableSet, opts []AskOption) (*factor.Distribution, error) {
	if err := n.validateQuery(searched, known); err != nil {
		return nil, err
	}
	b, err := n.current()
	if err != nil {
		return nil, err
	}
	return answer(b, searched, known, opts)
}

// AskNames is Ask with variables given by name.
func (n *Network) AskNames(searched, known []string, opts ...AskOption) (*factor.Distribution, error) {
	s, err := n.Set(searched...)
	if err != nil {
		return nil, err
	}
	k, err := n.Set(known...)
	if err != nil {
		return nil, err
	}
	return n.Ask(s, k, opts...)
}

// AskAll returns the normalized marginal of every clique from one
// propagation.
func (n *Network) AskAll() (map[junction.CliqueID]*factor.Distribution, error) {
	out, err := n.askAll()
	n.opts.Metrics.ObserveQuery("ask_all", err)
	return out, err
}

func (n *Network) askAll() (map[junction.CliqueID]*factor.Distribution, error) {
	b, err := n.current()
	if err != nil {
		return nil, err
	}
	return marginals(b)
}

func marginals(b *propagation.Beliefs) (map[junction.CliqueID]*factor.Distribution, error) {
	out := make(map[junction.CliqueID]*factor.Distribution, b.Tree().Len())
	for _, c := range b.Tree().Cliques {
		d, err := b.Marginal(c.ID)
		if err != nil {
			return nil, err
		}
		out[c.ID] = d
	}
	return out, nil
}

func (n *Network) validateQuery(searched, known domain.VariableSet) error {
	if searched.IsEmpty() {
		return domain.ErrEmptyQuery
	}
	if both := searched.Intersect(known); !both.IsEmpty() {
		return fmt.Errorf("%w: %s", domain.ErrOverlappingQuery, both)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, v := range searched.Union(known).Vars() {
		if !n.registry.Owns(v) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownVariable, v)
		}
	}
	return nil
}

// answer reads a query off calibrated beliefs.
func answer(b *propagation.Beliefs, searched, known domain.VariableSet, opts []AskOption) (*factor.Distribution, error) {
	cfg := askConfig{normalize: true}
	for _, o := range opts {
		o(&cfg)
	}

	joint, err := b.Joint(searched.Union(known))
	if err != nil {
		return nil, err
	}
	var normalizer *factor.Table
	if known.IsEmpty() {
		normalizer = factor.Scalar(b.Probability())
	} else {
		normalizer = joint.SumTo(known)
	}
	d := &factor.Distribution{
		Searched:   searched,
		Known:      known,
		Table:      joint,
		Normalizer: normalizer,
	}
	if !cfg.normalize {
		return d, nil
	}
	return d.Normalize()
}

// Snapshot is a read view of the network pinned to its state when taken.
// Queries on it fail with ErrStaleModel once the network has changed.
type Snapshot struct {
	net         *Network
	beliefs     *propagation.Beliefs
	generation  uint64
	evidenceGen uint64
}

func (n *Network) Snapshot() (*Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, err := n.currentLocked()
	if err != nil {
		return nil, err
	}
	return &Snapshot{net: n, beliefs: b, generation: n.generation, evidenceGen: n.evidenceGen}, nil
}

func (s *Snapshot) stale() bool {
	s.net.mu.RLock()
	defer s.net.mu.RUnlock()
	return s.net.generation != s.generation || s.net.evidenceGen != s.evidenceGen
}

func (s *Snapshot) Ask(searched, known domain.VariableSet, opts ...AskOption) (*factor.Distribution, error) {
	if s.stale() {
		return nil, domain.ErrStaleModel
	}
	if err := s.net.validateQuery(searched, known); err != nil {
		return nil, err
	}
	return answer(s.beliefs, searched, known, opts)
}

func (s *Snapshot) AskAll() (map[junction.CliqueID]*factor.Distribution, error) {
	if s.stale() {
		return nil, domain.ErrStaleModel
	}
	return marginals(s.beliefs)
}

// Probability is P(evidence) at the time of the snapshot.
func (s *Snapshot) Probability() float64 { return s.beliefs.Probability() }
