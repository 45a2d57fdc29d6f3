package domain

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

type DistributionKind string

const (
	DistributionTable    DistributionKind = "table"
	DistributionGaussian DistributionKind = "gaussian"
	DistributionNoisyOR  DistributionKind = "noisy_or"
	// DistributionDeterministic puts all mass on Function of the parents.
	DistributionDeterministic DistributionKind = "deterministic"
)

// Functions accepted by deterministic distributions.
const (
	FunctionOr  = "or"
	FunctionAnd = "and"
)

func ValidDistributionKind(k string) bool {
	switch DistributionKind(k) {
	case DistributionTable, DistributionGaussian, DistributionNoisyOR, DistributionDeterministic, "":
		return true
	}
	return false
}

// NetworkDefinition is the declarative form of a Bayesian network as
// accepted by the API and kept by the network store.
type NetworkDefinition struct {
	Variables     []VariableDefinition     `json:"variables"`
	Edges         []EdgeDefinition         `json:"edges,omitempty"`
	Distributions []DistributionDefinition `json:"distributions"`
}

type VariableDefinition struct {
	Name   string `json:"name"`
	Domain Domain `json:"domain"`
}

type EdgeDefinition struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// DistributionDefinition describes P(Variable | Parents). Table values are
// laid out with the first parent varying slowest and the child fastest.
// Gaussian parameters and noisy-OR inhibitors are indexed the same way
// (one entry per parent assignment, one inhibitor per parent). Function
// names the deterministic map, "or" or "and" over parent state 1.
type DistributionDefinition struct {
	Variable   string           `json:"variable"`
	Parents    []string         `json:"parents,omitempty"`
	Kind       DistributionKind `json:"kind,omitempty"`
	Table      []float64        `json:"table,omitempty"`
	Means      []float64        `json:"means,omitempty"`
	StdDevs    []float64        `json:"std_devs,omitempty"`
	Inhibitors []float64        `json:"inhibitors,omitempty"`
	Leak       float64          `json:"leak,omitempty"`
	Function   string           `json:"function,omitempty"`
}

type Network struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Definition NetworkDefinition `json:"definition"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type NetworkStore interface {
	Create(ctx context.Context, n *Network) error
	GetByID(ctx context.Context, id uuid.UUID) (*Network, error)
	List(ctx context.Context, limit int) ([]Network, error)
	Update(ctx context.Context, n *Network) error
	Delete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

// Row is one observation: variable name to label.
type Row map[string]string

// DataSource yields rows of observations; Next returns io.EOF when exhausted.
type DataSource interface {
	Next(ctx context.Context) (Row, error)
}

// SliceSource serves rows from memory.
type SliceSource struct {
	rows []Row
	pos  int
}

func NewSliceSource(rows ...Row) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}
