// Package gremlin lowers IR into Gremlin (Groovy) traversals for OrientDB.
package gremlin

import (
	"slices"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
	"github.com/roach88/graphc/internal/sanity"
)

// TypeEquivalenceHints maps an interface or object type name to the member
// types of the union that stands in for it.
type TypeEquivalenceHints map[string][]string

// LowerCoerceTypeBlockTypeData widens a CoerceType whose single target has
// a registered equivalence to the whole equivalent type set.
func LowerCoerceTypeBlockTypeData(blocks []ir.Block, hints TypeEquivalenceHints) ([]ir.Block, error) {
	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		c, ok := b.(ir.CoerceType)
		if !ok {
			continue
		}
		if len(c.Classes) != 1 {
			return nil, ir.Assertf("lower_coerce_type_block_type_data", "CoerceType with %d classes before equivalence lowering", len(c.Classes))
		}
		members, ok := hints[c.Classes[0]]
		if !ok {
			continue
		}
		classes := slices.Clone(members)
		slices.Sort(classes)
		out[i] = ir.CoerceType{Classes: slices.Compact(classes)}
	}
	return out, nil
}

// LowerCoerceTypeBlocks turns every CoerceType into a Filter on @class.
func LowerCoerceTypeBlocks(blocks []ir.Block) []ir.Block {
	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		c, ok := b.(ir.CoerceType)
		if !ok {
			out[i] = b
			continue
		}
		classes := slices.Clone(c.Classes)
		slices.Sort(classes)
		out[i] = ir.Filter{Predicate: ir.BinaryComposition{
			Op:    ir.OpContains,
			Left:  ir.Literal{Value: classes},
			Right: ir.LocalField{Name: "@class"},
		}}
	}
	return out
}

// RewriteFiltersInOptionalBlocks lets every Filter inside an optional scope
// pass when the optional vertex is missing: (it == null) || predicate.
func RewriteFiltersInOptionalBlocks(blocks []ir.Block) ([]ir.Block, error) {
	const pass = "rewrite_filters_in_optional_blocks"
	depth := 0
	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		switch b := b.(type) {
		case ir.CoerceType:
			return nil, ir.Assertf(pass, "CoerceType must be lowered before filters in optional scopes")
		case ir.Traverse:
			if b.Optional {
				depth++
			}
		case ir.Backtrack:
			if b.Optional {
				depth--
				if depth < 0 {
					return nil, ir.Assertf(pass, "optional Backtrack to %s closes no optional scope", b.Location)
				}
			}
		case ir.Filter:
			if depth > 0 {
				out[i] = ir.Filter{Predicate: ir.BinaryComposition{
					Op:    ir.OpOr,
					Left:  ir.BinaryComposition{Op: ir.OpEq, Left: ir.LocalField{Name: "@this"}, Right: ir.NullLiteral},
					Right: b.Predicate,
				}}
			}
		}
	}
	return out, nil
}

// Lower runs the Gremlin pipeline and returns the query ready for emission.
func Lower(blocks []ir.Block, meta *ir.QueryMetadataTable, hints TypeEquivalenceHints, trace lowering.Tracer) (Query, error) {
	if err := sanity.Check(blocks, meta); err != nil {
		return Query{}, err
	}
	trace.Pass("sanity_check", len(blocks))

	blocks, err := lowering.LowerContextFieldExistence(blocks, meta)
	if err != nil {
		return Query{}, err
	}
	trace.Pass("lower_context_field_existence", len(blocks))

	blocks = lowering.OptimizeBooleanExpressionComparisons(blocks)
	trace.Pass("optimize_boolean_expression_comparisons", len(blocks))

	if len(hints) > 0 {
		if blocks, err = LowerCoerceTypeBlockTypeData(blocks, hints); err != nil {
			return Query{}, err
		}
		trace.Pass("lower_coerce_type_block_type_data", len(blocks))
	}

	blocks = LowerCoerceTypeBlocks(blocks)
	trace.Pass("lower_coerce_type_blocks", len(blocks))

	if blocks, err = RewriteFiltersInOptionalBlocks(blocks); err != nil {
		return Query{}, err
	}
	trace.Pass("rewrite_filters_in_optional_blocks", len(blocks))

	blocks = lowering.MergeConsecutiveFilterClauses(blocks)
	trace.Pass("merge_consecutive_filter_clauses", len(blocks))

	q, err := LowerFoldedOutputs(blocks)
	if err != nil {
		return Query{}, err
	}
	trace.Pass("lower_folded_outputs", len(q.Blocks))
	return q, nil
}

// Compile lowers blocks and emits Gremlin text.
func Compile(blocks []ir.Block, meta *ir.QueryMetadataTable, hints TypeEquivalenceHints, trace lowering.Tracer) (string, error) {
	q, err := Lower(blocks, meta, hints, trace)
	if err != nil {
		return "", err
	}
	return Emit(q)
}
