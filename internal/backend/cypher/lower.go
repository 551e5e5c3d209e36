package cypher

import (
	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
	"github.com/roach88/graphc/internal/sanity"
)

// InsertExplicitTypeBounds adds a CoerceType to the schema type of the
// destination after every Traverse, Recurse and Fold not already followed
// by one. Cypher does not know edge endpoint types.
func InsertExplicitTypeBounds(blocks []ir.Block, meta *ir.QueryMetadataTable) ([]ir.Block, error) {
	const pass = "insert_explicit_type_bounds"
	out := make([]ir.Block, 0, len(blocks))
	for i, b := range blocks {
		out = append(out, b)
		switch b.(type) {
		case ir.Traverse, ir.Recurse, ir.Fold:
		default:
			continue
		}

		var mark *ir.MarkLocation
		coerced := false
	scan:
		for _, next := range blocks[i+1:] {
			switch next := next.(type) {
			case ir.Filter:
			case ir.CoerceType:
				coerced = true
			case ir.MarkLocation:
				mark = &next
				break scan
			default:
				return nil, ir.Assertf(pass, "%T between %T and its MarkLocation", next, b)
			}
		}
		if mark == nil {
			return nil, ir.Assertf(pass, "%T at block %d is never marked", b, i)
		}
		if coerced {
			continue
		}
		typeName, err := meta.TypeName(mark.Location)
		if err != nil {
			return nil, err
		}
		out = append(out, ir.CoerceType{Classes: []string{typeName}})
	}
	return out, nil
}

// RemoveMarkLocationAfterOptionalBacktrack drops revisit marks and points
// every reference to a revisit at the location it revisits. Cypher pattern
// variables stay bound after an optional match, so revisits are redundant.
func RemoveMarkLocationAfterOptionalBacktrack(blocks []ir.Block, meta *ir.QueryMetadataTable) []ir.Block {
	translation := make(lowering.Translation)
	for revisit, origin := range meta.Revisits() {
		translation[revisit] = origin
	}
	if len(translation) == 0 {
		return blocks
	}

	kept := make([]ir.Block, 0, len(blocks))
	for _, b := range blocks {
		if m, ok := b.(ir.MarkLocation); ok {
			if l, ok := m.Location.(ir.Location); ok {
				if _, revisit := translation[l]; revisit {
					continue
				}
			}
		}
		kept = append(kept, b)
	}
	return translation.Flatten().Blocks(kept)
}

// ReplaceLocalFieldsWithContextFields anchors every LocalField in a Filter
// at the location its step marks next: a ContextField at top level, a
// FoldedContextField inside a fold.
func ReplaceLocalFieldsWithContextFields(blocks []ir.Block) ([]ir.Block, error) {
	const pass = "replace_local_fields_with_context_fields"
	out := make([]ir.Block, len(blocks))
	var firstErr error
	for i, b := range blocks {
		out[i] = b
		f, ok := b.(ir.Filter)
		if !ok {
			continue
		}
		var target ir.BaseLocation
		for _, next := range blocks[i+1:] {
			if m, ok := next.(ir.MarkLocation); ok {
				target = m.Location
				break
			}
			if _, ok := next.(ir.GlobalOperationsStart); ok {
				break
			}
		}
		if target == nil {
			if containsLocalField(f.Predicate) {
				return nil, ir.Assertf(pass, "filter at block %d reads local fields but is never marked", i)
			}
			continue
		}

		out[i] = ir.Filter{Predicate: ir.VisitAndUpdate(f.Predicate, func(e ir.Expression) ir.Expression {
			local, ok := e.(ir.LocalField)
			if !ok || firstErr != nil {
				return e
			}
			switch loc := target.(type) {
			case ir.Location:
				field, err := loc.NavigateToField(local.Name)
				if err != nil {
					firstErr = err
					return e
				}
				return ir.ContextField{Location: field, Type: local.Type}
			case ir.FoldScopeLocation:
				field, err := loc.NavigateToField(local.Name)
				if err != nil {
					firstErr = err
					return e
				}
				return ir.FoldedContextField{Location: field, Type: ir.ListOf(local.Type)}
			}
			return e
		})}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func containsLocalField(e ir.Expression) bool {
	return ir.Any(e, func(node ir.Expression) bool {
		_, ok := node.(ir.LocalField)
		return ok
	})
}

// MoveFiltersInOptionalLocationsToGlobalOperations rewrites the filter of
// every step inside an optional scope as (loc IS NULL || filter) in the
// global WHERE, so a failing filter yields nulls instead of dropping rows.
func MoveFiltersInOptionalLocationsToGlobalOperations(q Query, meta *ir.QueryMetadataTable) (Query, error) {
	var moved []ir.Expression
	steps := make([]Step, len(q.Steps))
	for i, s := range q.Steps {
		steps[i] = s
		if s.Where == nil {
			continue
		}
		loc, ok := s.As.Location.(ir.Location)
		if !ok {
			continue
		}
		info, err := meta.LocationInfo(loc)
		if err != nil {
			return Query{}, err
		}
		if info.OptionalScopesDepth == 0 {
			continue
		}
		vertex := ir.ContextField{Location: loc, Type: info.Type}
		moved = append(moved, ir.BinaryComposition{
			Op:    ir.OpOr,
			Left:  ir.BinaryComposition{Op: ir.OpEq, Left: vertex, Right: ir.NullLiteral},
			Right: s.Where.Predicate,
		})
		steps[i].Where = nil
	}
	q.Steps = steps
	if len(moved) == 0 {
		return q, nil
	}
	if q.GlobalWhere != nil {
		moved = append(moved, q.GlobalWhere.Predicate)
	}
	q.GlobalWhere = &ir.Filter{Predicate: ir.Conjunction(moved)}
	return q, nil
}

// Lower runs the Cypher pipeline and returns the query ready for emission.
func Lower(blocks []ir.Block, meta *ir.QueryMetadataTable, trace lowering.Tracer) (Query, error) {
	if err := sanity.Check(blocks, meta); err != nil {
		return Query{}, err
	}
	trace.Pass("sanity_check", len(blocks))

	blocks = lowering.RemoveEndOptionals(blocks)
	trace.Pass("remove_end_optionals", len(blocks))

	blocks, err := InsertExplicitTypeBounds(blocks, meta)
	if err != nil {
		return Query{}, err
	}
	trace.Pass("insert_explicit_type_bounds", len(blocks))

	blocks = RemoveMarkLocationAfterOptionalBacktrack(blocks, meta)
	trace.Pass("remove_mark_location_after_optional_backtrack", len(blocks))

	if blocks, err = lowering.LowerContextFieldExistence(blocks, meta); err != nil {
		return Query{}, err
	}
	trace.Pass("lower_context_field_existence", len(blocks))

	if blocks, err = ReplaceLocalFieldsWithContextFields(blocks); err != nil {
		return Query{}, err
	}
	trace.Pass("replace_local_fields_with_context_fields", len(blocks))

	blocks = lowering.OptimizeBooleanExpressionComparisons(blocks)
	trace.Pass("optimize_boolean_expression_comparisons", len(blocks))

	blocks = lowering.MergeConsecutiveFilterClauses(blocks)
	trace.Pass("merge_consecutive_filter_clauses", len(blocks))

	q, err := ConvertToCypherQuery(blocks)
	if err != nil {
		return Query{}, err
	}
	trace.Pass(convertPass, len(q.Steps))

	if q, err = MoveFiltersInOptionalLocationsToGlobalOperations(q, meta); err != nil {
		return Query{}, err
	}
	trace.Pass("move_filters_in_optional_locations_to_global_operations", len(q.Steps))
	return q, nil
}

// Compile lowers blocks and emits Cypher text.
func Compile(blocks []ir.Block, meta *ir.QueryMetadataTable, trace lowering.Tracer) (string, error) {
	q, err := Lower(blocks, meta, trace)
	if err != nil {
		return "", err
	}
	return Emit(q)
}
