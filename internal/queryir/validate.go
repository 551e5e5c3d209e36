package queryir

import (
	"fmt"
)

// ValidationResult contains portability analysis of a query.
type ValidationResult struct {
	// IsPortable is true when the query avoids outer joins, NULL checks and
	// disjunctions.
	IsPortable bool

	// Warnings lists non-portable features used in the query, in the
	// order they were found. Empty when IsPortable is true.
	Warnings []string
}

// Validate checks a query against the portable fragment. Non-portable
// queries still compile; the warnings are informational.
func Validate(query Query) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validateQuery(query)

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addWarning("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addWarning("Unknown query type: %T - portability cannot be verified", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if len(sel.Columns) == 0 {
		v.addWarning("Empty column list (SELECT *) - explicit columns are required")
	}
	for _, j := range sel.Joins {
		if j.Kind == LeftJoin {
			v.addWarning("Outer join to %s - rows without a match are NULL-filled", j.Table.Alias)
		}
		if j.On == nil {
			v.addWarning("Join to %s without a condition", j.Table.Alias)
		}
		v.validatePredicate(j.On)
	}
	v.validatePredicate(sel.Where)
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Compare:
		if isNullValue(pred.Left) || isNullValue(pred.Right) {
			v.addWarning("Comparison %s with a NULL literal is never true", pred.Op)
		}
	case IsNull:
		v.addWarning("NULL check on %s", describe(pred.Operand))
	case In:
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		v.addWarning("Disjunction of %d predicates", len(pred.Predicates))
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addWarning("Unknown predicate type: %T - portability cannot be verified", p)
	}
}

func isNullValue(o Operand) bool {
	val, ok := o.(Value)
	return ok && val.Value == nil
}

func describe(o Operand) string {
	switch o := o.(type) {
	case ColumnRef:
		return o.Table + "." + o.Column
	case Param:
		return "$" + o.Name
	}
	return fmt.Sprintf("%T", o)
}
