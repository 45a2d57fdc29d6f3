package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Registry owns the variables of one model and hands out stable identities.
// It is not safe for concurrent mutation; the owning network serializes access.
type Registry struct {
	byName map[string]*Variable
	byID   map[uuid.UUID]int
	order  []*Variable
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Variable),
		byID:   make(map[uuid.UUID]int),
	}
}

func (r *Registry) Add(name string, d Domain) (*Variable, error) {
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateVariable, name)
	}
	v, err := NewVariable(name, d)
	if err != nil {
		return nil, err
	}
	r.byName[name] = v
	r.byID[v.ID()] = len(r.order)
	r.order = append(r.order, v)
	return v, nil
}

func (r *Registry) Lookup(name string) (*Variable, error) {
	v, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return v, nil
}

func (r *Registry) ByID(id uuid.UUID) (*Variable, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.order[i], true
}

// Owns reports whether v was created by this registry.
func (r *Registry) Owns(v *Variable) bool {
	i, ok := r.byID[v.ID()]
	return ok && r.order[i] == v
}

// Set resolves names into a VariableSet in the given order.
func (r *Registry) Set(names ...string) (VariableSet, error) {
	vars := make([]*Variable, 0, len(names))
	for _, n := range names {
		v, err := r.Lookup(n)
		if err != nil {
			return VariableSet{}, err
		}
		vars = append(vars, v)
	}
	return NewVariableSet(vars...), nil
}

// Index is the insertion position of v, used for deterministic tie-breaking.
func (r *Registry) Index(v *Variable) int {
	i, ok := r.byID[v.ID()]
	if !ok {
		return -1
	}
	return i
}

func (r *Registry) All() []*Variable {
	return append([]*Variable(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }
