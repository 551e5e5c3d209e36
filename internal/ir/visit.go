package ir

import (
	"slices"
)

// VisitAndUpdate rebuilds e bottom-up: every child is rewritten first, then fn
// is applied to the node rebuilt from the rewritten children. Leaves are
// passed to fn directly. The input is never modified.
func VisitAndUpdate(e Expression, fn func(Expression) Expression) Expression {
	switch e := e.(type) {
	case UnaryTransformation:
		e.Inner = VisitAndUpdate(e.Inner, fn)
		return fn(e)
	case BinaryComposition:
		e.Left = VisitAndUpdate(e.Left, fn)
		e.Right = VisitAndUpdate(e.Right, fn)
		return fn(e)
	case TernaryConditional:
		e.Predicate = VisitAndUpdate(e.Predicate, fn)
		e.IfTrue = VisitAndUpdate(e.IfTrue, fn)
		e.IfFalse = VisitAndUpdate(e.IfFalse, fn)
		return fn(e)
	case BetweenClause:
		// The field stays a LocalField; rewrites that change its kind are dropped.
		if f, ok := VisitAndUpdate(e.Field, fn).(LocalField); ok {
			e.Field = f
		}
		e.Lower = VisitAndUpdate(e.Lower, fn)
		e.Upper = VisitAndUpdate(e.Upper, fn)
		return fn(e)
	case nil:
		return nil
	default:
		return fn(e)
	}
}

// Walk visits e in pre-order. Returning false from fn skips the node's children.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case UnaryTransformation:
		Walk(e.Inner, fn)
	case BinaryComposition:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case TernaryConditional:
		Walk(e.Predicate, fn)
		Walk(e.IfTrue, fn)
		Walk(e.IfFalse, fn)
	case BetweenClause:
		Walk(e.Field, fn)
		Walk(e.Lower, fn)
		Walk(e.Upper, fn)
	}
}

// Any reports whether some node of e satisfies pred.
func Any(e Expression, pred func(Expression) bool) bool {
	found := false
	Walk(e, func(node Expression) bool {
		if found {
			return false
		}
		if pred(node) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Equal compares two expressions structurally. Schema types are compared
// with TypesEqual.
func Equal(a, b Expression) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case Literal:
		bl, ok := b.(Literal)
		return ok && literalValuesEqual(a.Value, bl.Value)
	case Variable:
		bv, ok := b.(Variable)
		return ok && a.Name == bv.Name && TypesEqual(a.Type, bv.Type)
	case LocalField:
		bf, ok := b.(LocalField)
		return ok && a.Name == bf.Name && TypesEqual(a.Type, bf.Type)
	case ContextField:
		bf, ok := b.(ContextField)
		return ok && a.Location == bf.Location && TypesEqual(a.Type, bf.Type)
	case GlobalContextField:
		bf, ok := b.(GlobalContextField)
		return ok && a.Location == bf.Location && TypesEqual(a.Type, bf.Type)
	case OutputContextField:
		bf, ok := b.(OutputContextField)
		return ok && a.Location == bf.Location && TypesEqual(a.Type, bf.Type)
	case OutputContextVertex:
		bf, ok := b.(OutputContextVertex)
		return ok && a.Location == bf.Location && TypesEqual(a.Type, bf.Type)
	case FoldedContextField:
		bf, ok := b.(FoldedContextField)
		return ok && a.Location == bf.Location && TypesEqual(a.Type, bf.Type)
	case FoldCountContextField:
		bf, ok := b.(FoldCountContextField)
		return ok && a.Location == bf.Location
	case ContextFieldExistence:
		bf, ok := b.(ContextFieldExistence)
		return ok && a.Location == bf.Location
	case UnaryTransformation:
		bu, ok := b.(UnaryTransformation)
		return ok && a.Op == bu.Op && Equal(a.Inner, bu.Inner)
	case BinaryComposition:
		bb, ok := b.(BinaryComposition)
		return ok && a.Op == bb.Op && Equal(a.Left, bb.Left) && Equal(a.Right, bb.Right)
	case TernaryConditional:
		bt, ok := b.(TernaryConditional)
		return ok && Equal(a.Predicate, bt.Predicate) && Equal(a.IfTrue, bt.IfTrue) && Equal(a.IfFalse, bt.IfFalse)
	case BetweenClause:
		bc, ok := b.(BetweenClause)
		return ok && Equal(a.Field, bc.Field) && Equal(a.Lower, bc.Lower) && Equal(a.Upper, bc.Upper)
	}
	return false
}

func literalValuesEqual(a, b any) bool {
	as, aList := a.([]string)
	bs, bList := b.([]string)
	if aList || bList {
		return aList && bList && slices.Equal(as, bs)
	}
	return a == b
}

// Conjunction joins expressions left-deep with "&&". An empty list yields TrueLiteral.
func Conjunction(exprs []Expression) Expression {
	if len(exprs) == 0 {
		return TrueLiteral
	}
	result := exprs[0]
	for _, e := range exprs[1:] {
		result = BinaryComposition{Op: OpAnd, Left: result, Right: e}
	}
	return result
}

// ConjunctionElements flattens nested "&&" compositions into their operands, in order.
func ConjunctionElements(e Expression) []Expression {
	if b, ok := e.(BinaryComposition); ok && b.Op == OpAnd {
		return append(ConjunctionElements(b.Left), ConjunctionElements(b.Right)...)
	}
	return []Expression{e}
}
