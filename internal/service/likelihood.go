package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/propagation"
)

// Score is the fit of the network to a sample.
type Score struct {
	LogLikelihood  float64 `json:"log_likelihood"`
	Rows           int     `json:"rows"`
	FreeParameters int     `json:"free_parameters"`
	BIC            float64 `json:"bic"`
}

// FreeParameters counts the independent entries of all local distributions.
func (n *Network) FreeParameters() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	k := 0
	for _, v := range n.dag.Nodes() {
		k += (v.Size() - 1) * n.dag.Parents(v).States()
	}
	return k
}

// LogLikelihood sums log P(row) over the rows of src. Complete rows are
// scored from the local distributions; rows with missing variables are
// entered as evidence on a private engine, leaving the network's own
// evidence untouched. Rows of probability zero give -Inf.
func (n *Network) LogLikelihood(ctx context.Context, src domain.DataSource) (float64, int, error) {
	n.mu.Lock()
	err := n.compileLocked()
	tree, tables := n.tree, n.nodeTables
	vars := n.dag.Nodes()
	parents := make([][]int, len(vars))
	for i := range vars {
		parents[i] = n.dag.ParentIndices(i)
	}
	n.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}

	var engine *propagation.Engine
	ll, rows := 0.0, 0
	for {
		row, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, rows, err
		}

		states := make([]int, len(vars))
		complete := true
		for i, v := range vars {
			label, ok := row[v.Name()]
			if !ok || label == "" {
				states[i] = -1
				complete = false
				continue
			}
			s, err := v.StateOf(label)
			if err != nil {
				return 0, rows, fmt.Errorf("row %d: %w", rows, err)
			}
			states[i] = s
		}
		for name := range row {
			if !containsName(vars, name) {
				return 0, rows, fmt.Errorf("row %d: %w: %s", rows, domain.ErrUnknownVariable, name)
			}
		}

		if complete {
			for i, v := range vars {
				a := domain.Assignment{}
				a.Set(v, states[i])
				for _, p := range parents[i] {
					a.Set(vars[p], states[p])
				}
				p, err := tables[i].Eval(a)
				if err != nil {
					return 0, rows, err
				}
				ll += math.Log(p)
			}
		} else {
			if engine == nil {
				if engine, err = propagation.New(tree, tables, n.logger); err != nil {
					return 0, rows, err
				}
			}
			engine.ClearEvidence()
			for i, v := range vars {
				if states[i] < 0 {
					continue
				}
				if err := engine.Observe(v, states[i]); err != nil {
					return 0, rows, err
				}
			}
			b, err := engine.Propagate()
			if err != nil {
				return 0, rows, err
			}
			ll += math.Log(b.Probability())
		}
		rows++
	}
	return ll, rows, nil
}

// Score computes the log-likelihood of src together with the Bayesian
// information criterion LL - k/2 * ln(N).
func (n *Network) Score(ctx context.Context, src domain.DataSource) (*Score, error) {
	ll, rows, err := n.LogLikelihood(ctx, src)
	if err != nil {
		return nil, err
	}
	k := n.FreeParameters()
	s := &Score{LogLikelihood: ll, Rows: rows, FreeParameters: k, BIC: ll}
	if rows > 0 {
		s.BIC = ll - float64(k)/2*math.Log(float64(rows))
	}
	return s, nil
}

// BIC is Score(...).BIC.
func (n *Network) BIC(ctx context.Context, src domain.DataSource) (float64, error) {
	s, err := n.Score(ctx, src)
	if err != nil {
		return 0, err
	}
	return s.BIC, nil
}

func containsName(vars []*domain.Variable, name string) bool {
	for _, v := range vars {
		if v.Name() == name {
			return true
		}
	}
	return false
}
