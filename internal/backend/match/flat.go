package match

import (
	"sort"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
)

// filterEdgeFieldNonExistence builds (edge = null || edge.size() = 0). An
// absent edge is stored either as a missing field or as an empty list.
func filterEdgeFieldNonExistence(edge ir.Expression) ir.Expression {
	return ir.BinaryComposition{
		Op:   ir.OpOr,
		Left: ir.BinaryComposition{Op: ir.OpEq, Left: edge, Right: ir.NullLiteral},
		Right: ir.BinaryComposition{
			Op:    ir.OpEq,
			Left:  ir.UnaryTransformation{Op: ir.OpSize, Inner: edge},
			Right: ir.ZeroLiteral,
		},
	}
}

// SimpleOptionalWhere builds the global predicate that keeps a row only if
// each simple optional edge is either absent or matched:
//
//	((root.edge = null || root.edge.size() = 0) || inner != null)
//
// one conjunct per simple optional root, ordered by inner location name.
func SimpleOptionalWhere(meta *ir.QueryMetadataTable, simple map[ir.Location]lowering.SimpleOptionalInfo) (ir.Expression, error) {
	type clause struct {
		name string
		expr ir.Expression
	}
	clauses := make([]clause, 0, len(simple))
	for root, info := range simple {
		edge, err := root.NavigateToField(info.EdgeField)
		if err != nil {
			return nil, err
		}
		innerType, err := meta.LocationInfo(info.InnerLocation)
		if err != nil {
			return nil, err
		}
		innerName := info.InnerLocation.MarkName()
		expr := ir.BinaryComposition{
			Op:    ir.OpOr,
			Left:  filterEdgeFieldNonExistence(ir.GlobalContextField{Location: edge, Type: innerType.Type}),
			Right: ir.BinaryComposition{Op: ir.OpNe, Left: ir.LocalField{Name: innerName}, Right: ir.NullLiteral},
		}
		clauses = append(clauses, clause{name: innerName, expr: expr})
	}
	sort.Slice(clauses, func(i, j int) bool { return clauses[i].name < clauses[j].name })

	exprs := make([]ir.Expression, len(clauses))
	for i, c := range clauses {
		exprs[i] = c.expr
	}
	return ir.Conjunction(exprs), nil
}

// insertBeforeOutput places b immediately before the final ConstructResult.
func insertBeforeOutput(blocks []ir.Block, b ir.Block) ([]ir.Block, error) {
	if len(blocks) == 0 {
		return nil, ir.Assertf("insert_global_filter", "received no blocks")
	}
	if _, ok := blocks[len(blocks)-1].(ir.ConstructResult); !ok {
		return nil, ir.Assertf("insert_global_filter", "last block must be ConstructResult, got %T", blocks[len(blocks)-1])
	}
	out := make([]ir.Block, 0, len(blocks)+1)
	out = append(out, blocks[:len(blocks)-1]...)
	out = append(out, b, blocks[len(blocks)-1])
	return out, nil
}

// RewriteBinaryCompositionInsideTernaryConditional wraps comparison
// branches of a ternary as if(cmp, true, false) and compares the whole
// ternary to true. MATCH cannot return a bare boolean comparison from a
// conditional branch.
func RewriteBinaryCompositionInsideTernaryConditional(blocks []ir.Block) []ir.Block {
	return ir.VisitAllExpressions(blocks, func(e ir.Expression) ir.Expression {
		t, ok := e.(ir.TernaryConditional)
		if !ok {
			return e
		}
		_, trueIsComposition := t.IfTrue.(ir.BinaryComposition)
		_, falseIsComposition := t.IfFalse.(ir.BinaryComposition)
		if !trueIsComposition && !falseIsComposition {
			return e
		}
		if trueIsComposition {
			t.IfTrue = ir.TernaryConditional{Predicate: t.IfTrue, IfTrue: ir.TrueLiteral, IfFalse: ir.FalseLiteral}
		}
		if falseIsComposition {
			t.IfFalse = ir.TernaryConditional{Predicate: t.IfFalse, IfTrue: ir.TrueLiteral, IfFalse: ir.FalseLiteral}
		}
		return ir.BinaryComposition{Op: ir.OpEq, Left: t, Right: ir.TrueLiteral}
	})
}

// LowerHasSubstringBinaryCompositions rewrites has_substring(x, y) into
// x LIKE ('%' + (y + '%')).
func LowerHasSubstringBinaryCompositions(blocks []ir.Block) []ir.Block {
	percent := ir.Literal{Value: "%"}
	return ir.VisitAllExpressions(blocks, func(e ir.Expression) ir.Expression {
		b, ok := e.(ir.BinaryComposition)
		if !ok || b.Op != ir.OpHasSubstring {
			return e
		}
		return ir.BinaryComposition{
			Op:   ir.OpLike,
			Left: b.Left,
			Right: ir.BinaryComposition{
				Op:    ir.OpPlus,
				Left:  percent,
				Right: ir.BinaryComposition{Op: ir.OpPlus, Left: b.Right, Right: percent},
			},
		}
	})
}

// WorkaroundRequiredEvalScheduling appends (loc != null || loc = null) for
// every location read inside a ternary of a Filter. OrientDB only schedules
// a location before an eval() that needs it if the location also appears
// outside the eval.
func WorkaroundRequiredEvalScheduling(blocks []ir.Block, meta *ir.QueryMetadataTable) ([]ir.Block, error) {
	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		f, ok := b.(ir.Filter)
		if !ok {
			continue
		}
		locations := locationsInsideTernaries(f.Predicate)
		if len(locations) == 0 {
			continue
		}
		conjuncts := []ir.Expression{f.Predicate}
		for _, loc := range locations {
			info, err := meta.LocationInfo(loc)
			if err != nil {
				return nil, err
			}
			vertex := ir.ContextField{Location: loc, Type: info.Type}
			conjuncts = append(conjuncts, ir.BinaryComposition{
				Op:    ir.OpOr,
				Left:  ir.BinaryComposition{Op: ir.OpNe, Left: vertex, Right: ir.NullLiteral},
				Right: ir.BinaryComposition{Op: ir.OpEq, Left: vertex, Right: ir.NullLiteral},
			})
		}
		out[i] = ir.Filter{Predicate: ir.Conjunction(conjuncts)}
	}
	return out, nil
}

func locationsInsideTernaries(e ir.Expression) []ir.Location {
	seen := make(map[ir.Location]bool)
	var out []ir.Location
	ir.Walk(e, func(node ir.Expression) bool {
		t, ok := node.(ir.TernaryConditional)
		if !ok {
			return true
		}
		ir.Walk(t, func(inner ir.Expression) bool {
			var loc ir.Location
			switch inner := inner.(type) {
			case ir.ContextField:
				loc = inner.Location.AtVertex()
			case ir.ContextFieldExistence:
				loc = inner.Location
			default:
				return true
			}
			if !seen[loc] {
				seen[loc] = true
				out = append(out, loc)
			}
			return true
		})
		return false
	})
	sort.Slice(out, func(i, j int) bool { return out[i].MarkName() < out[j].MarkName() })
	return out
}
