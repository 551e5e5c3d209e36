package match

import (
	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
	"github.com/roach88/graphc/internal/sanity"
)

func stepCount(q Query) int {
	n := 0
	for _, t := range q.Traversals {
		n += len(t)
	}
	return n
}

func compoundStepCount(cq CompoundQuery) int {
	n := 0
	for _, q := range cq.Queries {
		n += stepCount(q)
	}
	return n
}

// Lower runs the MATCH pipeline over front-end blocks and returns the
// compound query ready for emission.
func Lower(blocks []ir.Block, meta *ir.QueryMetadataTable, trace lowering.Tracer) (CompoundQuery, error) {
	if err := sanity.Check(blocks, meta); err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("sanity_check", len(blocks))

	roots, err := lowering.ExtractOptionalLocationRootInfo(blocks)
	if err != nil {
		return CompoundQuery{}, err
	}
	simple, err := lowering.ExtractSimpleOptionalLocationInfo(blocks, roots)
	if err != nil {
		return CompoundQuery{}, err
	}
	blocks = lowering.RemoveEndOptionals(blocks)
	trace.Pass("remove_end_optionals", len(blocks))

	if len(simple) > 0 {
		pred, err := SimpleOptionalWhere(meta, simple)
		if err != nil {
			return CompoundQuery{}, err
		}
		if blocks, err = insertBeforeOutput(blocks, ir.Filter{Predicate: pred}); err != nil {
			return CompoundQuery{}, err
		}
		trace.Pass("insert_simple_optional_filter", len(blocks))
	}

	if blocks, err = lowering.LowerContextFieldExistence(blocks, meta); err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("lower_context_field_existence", len(blocks))

	flat := []struct {
		name string
		fn   func([]ir.Block) []ir.Block
	}{
		{"optimize_boolean_expression_comparisons", lowering.OptimizeBooleanExpressionComparisons},
		{"rewrite_binary_composition_inside_ternary_conditional", RewriteBinaryCompositionInsideTernaryConditional},
		{"merge_consecutive_filter_clauses", lowering.MergeConsecutiveFilterClauses},
		{"lower_has_substring_binary_compositions", LowerHasSubstringBinaryCompositions},
	}
	for _, p := range flat {
		blocks = p.fn(blocks)
		trace.Pass(p.name, len(blocks))
	}

	if blocks, err = WorkaroundRequiredEvalScheduling(blocks, meta); err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("workaround_required_eval_scheduling", len(blocks))

	q, err := ConvertToMatchQuery(blocks)
	if err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass(convertPass, stepCount(q))

	q = LowerComparisonsToBetween(q)
	trace.Pass("lower_comparisons_to_between", stepCount(q))

	passes := []struct {
		name string
		fn   func(Query) (Query, error)
	}{
		{"lower_optional_traverse_blocks", func(q Query) (Query, error) { return LowerOptionalTraverseBlocks(q, meta) }},
		{"lower_backtrack_blocks", func(q Query) (Query, error) { return LowerBacktrackBlocks(q, meta) }},
		{"truncate_repeated_single_step_traversals", TruncateRepeatedSingleStepTraversals},
		{"workaround_type_coercions_in_recursions", WorkaroundTypeCoercionsInRecursions},
		{"lower_folds", LowerFolds},
	}
	for _, p := range passes {
		if q, err = p.fn(q); err != nil {
			return CompoundQuery{}, err
		}
		trace.Pass(p.name, stepCount(q))
	}

	cq, err := ConvertOptionalTraversalsToCompoundMatchQuery(q, roots)
	if err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("convert_optional_traversals_to_compound_match_query", compoundStepCount(cq))

	if cq, err = PruneNonExistentOutputs(cq); err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("prune_non_existent_outputs", compoundStepCount(cq))

	cq = CollectFiltersToFirstLocationOccurrence(cq)
	trace.Pass("collect_filters_to_first_location_occurrence", compoundStepCount(cq))

	if cq, err = LowerContextFieldExpressions(cq); err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("lower_context_field_expressions", compoundStepCount(cq))

	for i, sub := range cq.Queries {
		if cq.Queries[i], err = TruncateRepeatedSingleStepTraversals(sub); err != nil {
			return CompoundQuery{}, err
		}
	}
	trace.Pass("truncate_repeated_single_step_traversals", compoundStepCount(cq))

	if cq, err = ExposeIdealQueryExecutionStartPoints(cq, meta); err != nil {
		return CompoundQuery{}, err
	}
	trace.Pass("expose_ideal_query_execution_start_points", compoundStepCount(cq))
	return cq, nil
}

// Compile lowers blocks and emits MATCH text.
func Compile(blocks []ir.Block, meta *ir.QueryMetadataTable, trace lowering.Tracer) (string, error) {
	cq, err := Lower(blocks, meta, trace)
	if err != nil {
		return "", err
	}
	return CompoundQueryToMatch(cq)
}
