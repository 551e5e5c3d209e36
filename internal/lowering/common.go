// Package lowering holds IR rewrites shared by every backend.
//
// Each pass takes a block list and returns a fresh one; inputs are never
// modified. Passes that need location types read them from the query
// metadata table.
package lowering

import (
	"github.com/roach88/graphc/internal/ir"
)

// MergeConsecutiveFilterClauses collapses adjacent Filter blocks into one
// Filter whose predicate is (previous && next).
func MergeConsecutiveFilterClauses(blocks []ir.Block) []ir.Block {
	if len(blocks) == 0 {
		return nil
	}
	out := []ir.Block{blocks[0]}
	for _, b := range blocks[1:] {
		next, ok := b.(ir.Filter)
		last, lastOK := out[len(out)-1].(ir.Filter)
		if ok && lastOK {
			out[len(out)-1] = ir.Filter{Predicate: ir.BinaryComposition{
				Op:    ir.OpAnd,
				Left:  last.Predicate,
				Right: next.Predicate,
			}}
			continue
		}
		out = append(out, b)
	}
	return out
}

// LowerContextFieldExistence rewrites ContextFieldExistence(loc) into
// (loc != null). Inside ConstructResult the vertex is referenced through
// OutputContextVertex; everywhere else through ContextField.
func LowerContextFieldExistence(blocks []ir.Block, meta *ir.QueryMetadataTable) ([]ir.Block, error) {
	var firstErr error
	rewrite := func(output bool) func(ir.Expression) ir.Expression {
		return func(e ir.Expression) ir.Expression {
			exists, ok := e.(ir.ContextFieldExistence)
			if !ok || firstErr != nil {
				return e
			}
			info, err := meta.LocationInfo(exists.Location)
			if err != nil {
				firstErr = err
				return e
			}
			var vertex ir.Expression = ir.ContextField{Location: exists.Location, Type: info.Type}
			if output {
				vertex = ir.OutputContextVertex{Location: exists.Location, Type: info.Type}
			}
			return ir.BinaryComposition{Op: ir.OpNe, Left: vertex, Right: ir.NullLiteral}
		}
	}

	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		_, isOutput := b.(ir.ConstructResult)
		out[i] = ir.VisitBlockExpressions(b, rewrite(isOutput))
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

var inverseOperators = map[ir.Operator]ir.Operator{
	ir.OpEq: ir.OpNe,
	ir.OpNe: ir.OpEq,
}

// OptimizeBooleanExpressionComparisons removes comparisons of a boolean
// sub-expression against a boolean literal: (x = true) becomes x and
// (a = b) = false becomes (a != b). Inner operators without an inverse are
// left alone.
func OptimizeBooleanExpressionComparisons(blocks []ir.Block) []ir.Block {
	return ir.VisitAllExpressions(blocks, optimizeBooleanComparison)
}

func optimizeBooleanComparison(e ir.Expression) ir.Expression {
	outer, ok := e.(ir.BinaryComposition)
	if !ok {
		return e
	}
	left, leftIsComposition := outer.Left.(ir.BinaryComposition)
	right, rightIsComposition := outer.Right.(ir.BinaryComposition)
	if !leftIsComposition && !rightIsComposition {
		return e
	}

	var identity, inverse ir.Literal
	switch outer.Op {
	case ir.OpEq:
		identity, inverse = ir.TrueLiteral, ir.FalseLiteral
	case ir.OpNe:
		identity, inverse = ir.FalseLiteral, ir.TrueLiteral
	default:
		return e
	}

	var toInvert ir.BinaryComposition
	switch {
	case rightIsComposition && ir.Equal(outer.Left, identity):
		return right
	case leftIsComposition && ir.Equal(outer.Right, identity):
		return left
	case rightIsComposition && ir.Equal(outer.Left, inverse):
		toInvert = right
	case leftIsComposition && ir.Equal(outer.Right, inverse):
		toInvert = left
	default:
		return e
	}

	op, ok := inverseOperators[toInvert.Op]
	if !ok {
		return e
	}
	return ir.BinaryComposition{Op: op, Left: toInvert.Left, Right: toInvert.Right}
}

// ShortCircuitTernaryConditionals replaces ternaries with a literal
// predicate by the branch that predicate selects.
func ShortCircuitTernaryConditionals(blocks []ir.Block) []ir.Block {
	return ir.VisitAllExpressions(blocks, ShortCircuitTernary)
}

// ShortCircuitTernary is the single-expression form of
// ShortCircuitTernaryConditionals.
func ShortCircuitTernary(e ir.Expression) ir.Expression {
	t, ok := e.(ir.TernaryConditional)
	if !ok {
		return e
	}
	switch {
	case ir.IsTrue(t.Predicate):
		return t.IfTrue
	case ir.IsFalse(t.Predicate):
		return t.IfFalse
	}
	return e
}

// RemoveEndOptionals drops every EndOptional marker.
func RemoveEndOptionals(blocks []ir.Block) []ir.Block {
	out := make([]ir.Block, 0, len(blocks))
	for _, b := range blocks {
		if _, ok := b.(ir.EndOptional); ok {
			continue
		}
		out = append(out, b)
	}
	return out
}
