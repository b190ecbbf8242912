package query

import (
	"fmt"
	"strings"
)

// Operator is a comparison understood by both backends. The names are the
// PostgREST operator names.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIs  Operator = "is"
	OpIn  Operator = "in"
)

var sqlOperators = map[Operator]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// Condition compares one column against a value. For OpIs the value is nil
// (NULL), for OpIn it is a []any.
type Condition struct {
	Column string
	Op     Operator
	Value  any
	Not    bool
}

// Filter is a conjunction of conditions. The zero value and nil match every row.
type Filter struct {
	conditions []Condition
}

// Where starts an empty filter.
func Where() *Filter {
	return &Filter{}
}

func (f *Filter) add(c Condition) *Filter {
	f.conditions = append(f.conditions, c)
	return f
}

func (f *Filter) Eq(column string, value any) *Filter {
	return f.add(Condition{Column: column, Op: OpEq, Value: value})
}

func (f *Filter) Neq(column string, value any) *Filter {
	return f.add(Condition{Column: column, Op: OpNeq, Value: value})
}

func (f *Filter) Gt(column string, value any) *Filter {
	return f.add(Condition{Column: column, Op: OpGt, Value: value})
}

func (f *Filter) Gte(column string, value any) *Filter {
	return f.add(Condition{Column: column, Op: OpGte, Value: value})
}

func (f *Filter) Lt(column string, value any) *Filter {
	return f.add(Condition{Column: column, Op: OpLt, Value: value})
}

func (f *Filter) Lte(column string, value any) *Filter {
	return f.add(Condition{Column: column, Op: OpLte, Value: value})
}

func (f *Filter) IsNull(column string) *Filter {
	return f.add(Condition{Column: column, Op: OpIs})
}

func (f *Filter) NotNull(column string) *Filter {
	return f.add(Condition{Column: column, Op: OpIs, Not: true})
}

// In matches rows whose column equals one of values. An empty list matches
// nothing.
func (f *Filter) In(column string, values ...any) *Filter {
	return f.add(Condition{Column: column, Op: OpIn, Value: append([]any{}, values...)})
}

// Between matches lo <= column <= hi.
func (f *Filter) Between(column string, lo, hi any) *Filter {
	return f.Gte(column, lo).Lte(column, hi)
}

// And returns a new filter holding the conditions of both. Either side may be nil.
func (f *Filter) And(other *Filter) *Filter {
	out := &Filter{}
	out.conditions = append(out.conditions, f.Conditions()...)
	out.conditions = append(out.conditions, other.Conditions()...)
	return out
}

// Conditions returns a copy of the conditions in insertion order.
func (f *Filter) Conditions() []Condition {
	if f == nil {
		return nil
	}
	return append([]Condition(nil), f.conditions...)
}

func (f *Filter) Empty() bool {
	return f == nil || len(f.conditions) == 0
}

func (f *Filter) validate() error {
	for _, c := range f.Conditions() {
		if err := checkIdent("column", c.Column); err != nil {
			return err
		}
		if _, ok := sqlOperators[c.Op]; !ok && c.Op != OpIs && c.Op != OpIn {
			return fmt.Errorf("unknown operator %q", c.Op)
		}
		if c.Op == OpIn {
			if _, ok := c.Value.([]any); !ok {
				return fmt.Errorf("operator in needs a list, got %T", c.Value)
			}
		}
	}
	return nil
}

// buildSQL renders the conjunction, appending arguments to args.
func (f *Filter) buildSQL(b *strings.Builder, args []any) []any {
	for i, c := range f.Conditions() {
		if i > 0 {
			b.WriteString(" AND ")
		}
		col := QuoteIdent(c.Column)
		switch c.Op {
		case OpIs:
			if c.Not {
				fmt.Fprintf(b, "%s IS NOT NULL", col)
			} else {
				fmt.Fprintf(b, "%s IS NULL", col)
			}
			continue
		case OpIn:
			values, _ := c.Value.([]any)
			if c.Not {
				b.WriteString("NOT ")
			}
			if len(values) == 0 {
				b.WriteString("FALSE")
				continue
			}
			fmt.Fprintf(b, "%s IN (", col)
			for j, v := range values {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString("?")
				args = append(args, SQLValue(v))
			}
			b.WriteString(")")
			continue
		}
		if c.Not {
			fmt.Fprintf(b, "NOT %s %s ?", col, sqlOperators[c.Op])
		} else {
			fmt.Fprintf(b, "%s %s ?", col, sqlOperators[c.Op])
		}
		args = append(args, SQLValue(c.Value))
	}
	return args
}
