package domain

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

type DomainKind string

const (
	KindDiscrete   DomainKind = "discrete"
	KindContinuous DomainKind = "continuous"
)

func ValidDomainKind(k string) bool {
	switch DomainKind(k) {
	case KindDiscrete, KindContinuous:
		return true
	}
	return false
}

// Domain describes the states a variable can take. Continuous domains are
// split into Bins equal-width intervals over [Min, Max] so that every factor
// over them compiles to a table.
type Domain struct {
	Kind   DomainKind `json:"kind"`
	Labels []string   `json:"labels,omitempty"`
	Min    float64    `json:"min,omitempty"`
	Max    float64    `json:"max,omitempty"`
	Bins   int        `json:"bins,omitempty"`
}

// Binary is the two-state domain {false, true}; state 1 is true.
func Binary() Domain {
	return Labels("false", "true")
}

func Labels(labels ...string) Domain {
	return Domain{Kind: KindDiscrete, Labels: append([]string(nil), labels...)}
}

// Range returns the discrete domain {0, 1, ..., n-1}.
func Range(n int) Domain {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	return Domain{Kind: KindDiscrete, Labels: labels}
}

func Interval(min, max float64, bins int) Domain {
	return Domain{Kind: KindContinuous, Min: min, Max: max, Bins: bins}
}

func (d Domain) Validate() error {
	switch d.Kind {
	case KindDiscrete:
		if len(d.Labels) == 0 {
			return fmt.Errorf("%w: discrete domain needs at least one label", ErrInvalidDomain)
		}
		seen := make(map[string]bool, len(d.Labels))
		for _, l := range d.Labels {
			if l == "" {
				return fmt.Errorf("%w: empty label", ErrInvalidDomain)
			}
			if seen[l] {
				return fmt.Errorf("%w: duplicate label %q", ErrInvalidDomain, l)
			}
			seen[l] = true
		}
		return nil
	case KindContinuous:
		if d.Bins < 1 {
			return fmt.Errorf("%w: continuous domain needs at least one bin", ErrInvalidDomain)
		}
		if math.IsNaN(d.Min) || math.IsNaN(d.Max) || math.IsInf(d.Min, 0) || math.IsInf(d.Max, 0) {
			return fmt.Errorf("%w: interval bounds must be finite", ErrInvalidDomain)
		}
		if d.Max <= d.Min {
			return fmt.Errorf("%w: empty interval [%g, %g]", ErrInvalidDomain, d.Min, d.Max)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidDomain, d.Kind)
}

func (d Domain) Size() int {
	if d.Kind == KindContinuous {
		return d.Bins
	}
	return len(d.Labels)
}

func (d Domain) clone() Domain {
	d.Labels = append([]string(nil), d.Labels...)
	return d
}

// BinBounds returns the half-open interval [lo, hi) covered by state i of a
// continuous domain.
func (d Domain) BinBounds(i int) (lo, hi float64) {
	width := (d.Max - d.Min) / float64(d.Bins)
	lo = d.Min + float64(i)*width
	hi = lo + width
	if i == d.Bins-1 {
		hi = d.Max
	}
	return lo, hi
}

func (d Domain) Midpoint(i int) float64 {
	lo, hi := d.BinBounds(i)
	return (lo + hi) / 2
}

// Label returns the printable name of state i.
func (d Domain) Label(i int) string {
	if d.Kind == KindContinuous {
		lo, hi := d.BinBounds(i)
		return fmt.Sprintf("[%g,%g)", lo, hi)
	}
	if i < 0 || i >= len(d.Labels) {
		return strconv.Itoa(i)
	}
	return d.Labels[i]
}

// StateOf resolves a label to a state index. Continuous domains accept either
// the bin label or a number inside the interval.
func (d Domain) StateOf(label string) (int, error) {
	if d.Kind == KindContinuous {
		for i := 0; i < d.Bins; i++ {
			if d.Label(i) == label {
				return i, nil
			}
		}
		x, err := strconv.ParseFloat(label, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, label)
		}
		return d.StateOfReal(x)
	}
	for i, l := range d.Labels {
		if l == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown label %q", ErrInvalidValue, label)
}

// StateOfReal maps a real value to the bin containing it. The upper bound of
// the interval belongs to the last bin.
func (d Domain) StateOfReal(x float64) (int, error) {
	if d.Kind != KindContinuous {
		for i, l := range d.Labels {
			if v, err := strconv.ParseFloat(l, 64); err == nil && v == x {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: %g is not a state of a discrete domain", ErrInvalidValue, x)
	}
	if math.IsNaN(x) || x < d.Min || x > d.Max {
		return 0, fmt.Errorf("%w: %g outside [%g, %g]", ErrInvalidValue, x, d.Min, d.Max)
	}
	i := int((x - d.Min) / (d.Max - d.Min) * float64(d.Bins))
	if i >= d.Bins {
		i = d.Bins - 1
	}
	return i, nil
}

// Numeric returns the real value carried by state i: the bin midpoint for
// continuous domains, the parsed label for numeric discrete labels.
func (d Domain) Numeric(i int) (float64, bool) {
	if d.Kind == KindContinuous {
		return d.Midpoint(i), true
	}
	if i < 0 || i >= len(d.Labels) {
		return 0, false
	}
	v, err := strconv.ParseFloat(d.Labels[i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Variable is a named random variable. Variables are immutable and shared by
// pointer; identity is the ID.
type Variable struct {
	id     uuid.UUID
	name   string
	domain Domain
}

func NewVariable(name string, d Domain) (*Variable, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty variable name", ErrInvalidDomain)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return &Variable{id: uuid.New(), name: name, domain: d.clone()}, nil
}

func (v *Variable) ID() uuid.UUID { return v.id }

func (v *Variable) Name() string { return v.name }

func (v *Variable) Domain() Domain { return v.domain.clone() }

func (v *Variable) Kind() DomainKind { return v.domain.Kind }

func (v *Variable) Size() int { return v.domain.Size() }

func (v *Variable) Label(i int) string { return v.domain.Label(i) }

func (v *Variable) StateOf(label string) (int, error) {
	s, err := v.domain.StateOf(label)
	if err != nil {
		return 0, fmt.Errorf("variable %s: %w", v.name, err)
	}
	return s, nil
}

func (v *Variable) String() string { return v.name }

// Assignment maps variables (by ID) to state indices.
type Assignment map[uuid.UUID]int

func (a Assignment) Set(v *Variable, state int) Assignment {
	a[v.ID()] = state
	return a
}

func (a Assignment) Get(v *Variable) (int, bool) {
	s, ok := a[v.ID()]
	return s, ok
}

// Restrict returns the part of a that assigns variables of s.
func (a Assignment) Restrict(s VariableSet) Assignment {
	out := make(Assignment, s.Len())
	for _, v := range s.vars {
		if st, ok := a[v.ID()]; ok {
			out[v.ID()] = st
		}
	}
	return out
}
