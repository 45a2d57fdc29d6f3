package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// VariableSet is an ordered, duplicate-free conjunction of variables. It is a
// value type: every operation returns a new set.
type VariableSet struct {
	vars []*Variable
}

// NewVariableSet keeps the first occurrence of each variable.
func NewVariableSet(vars ...*Variable) VariableSet {
	out := VariableSet{vars: make([]*Variable, 0, len(vars))}
	for _, v := range vars {
		if v == nil || out.Contains(v) {
			continue
		}
		out.vars = append(out.vars, v)
	}
	return out
}

func (s VariableSet) Len() int { return len(s.vars) }

func (s VariableSet) IsEmpty() bool { return len(s.vars) == 0 }

func (s VariableSet) At(i int) *Variable { return s.vars[i] }

func (s VariableSet) Vars() []*Variable {
	return append([]*Variable(nil), s.vars...)
}

func (s VariableSet) IndexOf(v *Variable) int {
	for i, x := range s.vars {
		if x.ID() == v.ID() {
			return i
		}
	}
	return -1
}

func (s VariableSet) Contains(v *Variable) bool {
	return s.IndexOf(v) >= 0
}

func (s VariableSet) ContainsID(id uuid.UUID) bool {
	for _, x := range s.vars {
		if x.ID() == id {
			return true
		}
	}
	return false
}

func (s VariableSet) ContainsAll(o VariableSet) bool {
	for _, v := range o.vars {
		if !s.Contains(v) {
			return false
		}
	}
	return true
}

// Equal ignores order.
func (s VariableSet) Equal(o VariableSet) bool {
	return s.Len() == o.Len() && s.ContainsAll(o)
}

func (s VariableSet) Add(vars ...*Variable) VariableSet {
	return NewVariableSet(append(s.Vars(), vars...)...)
}

// Union keeps the order of s followed by the new variables of o.
func (s VariableSet) Union(o VariableSet) VariableSet {
	return s.Add(o.vars...)
}

// Intersect keeps the order of s.
func (s VariableSet) Intersect(o VariableSet) VariableSet {
	out := VariableSet{}
	for _, v := range s.vars {
		if o.Contains(v) {
			out.vars = append(out.vars, v)
		}
	}
	return out
}

func (s VariableSet) Difference(o VariableSet) VariableSet {
	out := VariableSet{}
	for _, v := range s.vars {
		if !o.Contains(v) {
			out.vars = append(out.vars, v)
		}
	}
	return out
}

// States is the number of joint assignments of the set; 1 for the empty set.
// The count saturates at math.MaxInt.
func (s VariableSet) States() int {
	n := 1
	for _, v := range s.vars {
		size := v.Size()
		if size > 0 && n > math.MaxInt/size {
			return math.MaxInt
		}
		n *= size
	}
	return n
}

// CheckStates fails with ErrCliqueTooLarge when a table over s would hold
// more than limit entries or more than an int can index. A limit <= 0 only
// rejects the latter.
func (s VariableSet) CheckStates(limit int) error {
	n := s.States()
	if n == math.MaxInt {
		return fmt.Errorf("%w: %s has more than %d states", ErrCliqueTooLarge, s, math.MaxInt-1)
	}
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: %s has %d states, limit %d", ErrCliqueTooLarge, s, n, limit)
	}
	return nil
}

func (s VariableSet) Names() []string {
	names := make([]string, len(s.vars))
	for i, v := range s.vars {
		names[i] = v.Name()
	}
	return names
}

// String renders the set in conjunction notation, e.g. A^B^C.
func (s VariableSet) String() string {
	return strings.Join(s.Names(), "^")
}
