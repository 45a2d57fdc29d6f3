// Package factor holds local distributions and the table algebra used by
// belief propagation.
//
// Every distribution family implements Factor. Propagation only ever works on
// the compiled *Table form, so it does not need to know which family a node's
// distribution came from.
package factor

import (
	"fmt"

	"github.com/Harshitk-cp/junctree/internal/domain"
)

type Factor interface {
	Scope() domain.VariableSet
	Eval(a domain.Assignment) (float64, error)
	Combine(other Factor) (Factor, error)
	Marginalize(keep domain.VariableSet) (Factor, error)
	Compile() (*Table, error)
}

// Conditional is a Factor that knows which scope variable it distributes.
type Conditional interface {
	Factor
	Child() *domain.Variable
}

// compiled carries the table of a parametric family so the family only has
// to describe its parameters.
type compiled struct {
	table *Table
}

func (c compiled) Scope() domain.VariableSet { return c.table.Scope() }

func (c compiled) Eval(a domain.Assignment) (float64, error) { return c.table.Eval(a) }

func (c compiled) Combine(o Factor) (Factor, error) { return c.table.Combine(o) }

func (c compiled) Marginalize(keep domain.VariableSet) (Factor, error) {
	return c.table.SumTo(keep), nil
}

func (c compiled) Compile() (*Table, error) { return c.table, nil }

// Multiply combines any number of factors into one table.
func Multiply(fs ...Factor) (*Table, error) {
	out := Scalar(1)
	for _, f := range fs {
		t, err := f.Compile()
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", f.Scope(), err)
		}
		out = out.Product(t)
	}
	return out, nil
}
