package match

import (
	"sort"

	"github.com/roach88/graphc/internal/ir"
)

var flippedBetweenOperators = map[ir.Operator]ir.Operator{
	ir.OpGe: ir.OpLe,
	ir.OpLe: ir.OpGe,
}

// LowerComparisonsToBetween replaces a (field >= lo) && (field <= hi) pair
// of conjuncts with BETWEEN when those are the only range bounds on field.
func LowerComparisonsToBetween(q Query) Query {
	out, _ := q.mapSteps(func(s Step) (Step, error) {
		if s.Where != nil {
			s.Where = &ir.Filter{Predicate: lowerExpressionToBetween(s.Where.Predicate)}
		}
		return s, nil
	})
	return out
}

type fieldBounds struct {
	field ir.LocalField
	byOp  map[ir.Operator][]ir.BinaryComposition
}

func lowerExpressionToBetween(predicate ir.Expression) ir.Expression {
	conjuncts := ir.ConjunctionElements(predicate)
	if len(conjuncts) == 1 {
		return predicate
	}

	bounds := make(map[string]*fieldBounds)
	var rest []ir.Expression
	for _, c := range conjuncts {
		cmp, ok := normalizedRangeComparison(c)
		if !ok {
			rest = append(rest, c)
			continue
		}
		field := cmp.Left.(ir.LocalField)
		fb, ok := bounds[field.Name]
		if !ok {
			fb = &fieldBounds{field: field, byOp: make(map[ir.Operator][]ir.BinaryComposition)}
			bounds[field.Name] = fb
		}
		fb.byOp[cmp.Op] = append(fb.byOp[cmp.Op], cmp)
	}

	names := make([]string, 0, len(bounds))
	for name := range bounds {
		names = append(names, name)
	}
	sort.Strings(names)

	var betweens []ir.Expression
	for _, name := range names {
		fb := bounds[name]
		lower, upper := fb.byOp[ir.OpGe], fb.byOp[ir.OpLe]
		if len(lower) == 1 && len(upper) == 1 {
			betweens = append(betweens, ir.BetweenClause{Field: fb.field, Lower: lower[0].Right, Upper: upper[0].Right})
			continue
		}
		for _, cmp := range lower {
			rest = append(rest, cmp)
		}
		for _, cmp := range upper {
			rest = append(rest, cmp)
		}
	}
	if len(betweens) == 0 {
		return predicate
	}
	return ir.Conjunction(append(betweens, rest...))
}

// normalizedRangeComparison matches LocalField >= / <= bound, flipping the
// operands when the field is on the right. Bounds must be literals or
// variables.
func normalizedRangeComparison(e ir.Expression) (ir.BinaryComposition, bool) {
	cmp, ok := e.(ir.BinaryComposition)
	if !ok {
		return ir.BinaryComposition{}, false
	}
	flipped, ok := flippedBetweenOperators[cmp.Op]
	if !ok {
		return ir.BinaryComposition{}, false
	}
	if _, fieldRight := cmp.Right.(ir.LocalField); fieldRight {
		cmp = ir.BinaryComposition{Op: flipped, Left: cmp.Right, Right: cmp.Left}
	}
	if _, ok := cmp.Left.(ir.LocalField); !ok {
		return ir.BinaryComposition{}, false
	}
	switch cmp.Right.(type) {
	case ir.Literal, ir.Variable:
		return cmp, true
	}
	return ir.BinaryComposition{}, false
}
