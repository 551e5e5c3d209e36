package cypher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/testutil"
)

func TestCompile(t *testing.T) {
	testCases := []struct {
		name  string
		query func(testing.TB) testutil.Query
		want  string
	}{
		{
			name:  "simple output",
			query: testutil.SimpleOutput,
			want:  "MATCH (Animal___1:Animal)\nRETURN Animal___1.name AS `animal_name`",
		},
		{
			name:  "traverse with filter",
			query: testutil.TraverseWithFilter,
			want: "MATCH (Animal___1:Animal) WHERE (Animal___1.name = $wanted)\n" +
				"MATCH (Animal___1)-[:Animal_ParentOf]->(Animal__out_Animal_ParentOf___1:Animal)\n" +
				"RETURN Animal__out_Animal_ParentOf___1.name AS `child_name`, Animal___1.name AS `parent_name`",
		},
		{
			name:  "simple optional",
			query: testutil.SimpleOptional,
			want: "MATCH (Animal___1:Animal)\n" +
				"OPTIONAL MATCH (Animal___1)-[:Animal_ParentOf]->(Animal__out_Animal_ParentOf___1:Animal)\n" +
				"RETURN (CASE WHEN (Animal__out_Animal_ParentOf___1 IS NOT NULL) THEN Animal__out_Animal_ParentOf___1.name ELSE null END) AS `child_name`, " +
				"Animal___1.name AS `name`",
		},
		{
			name:  "filtered optional moves the filter to the global where",
			query: testutil.FilteredOptional,
			want: "MATCH (Animal___1:Animal)\n" +
				"OPTIONAL MATCH (Animal___1)-[:Animal_ParentOf]->(Animal__out_Animal_ParentOf___1:Animal)\n" +
				"WITH *\n" +
				"WHERE ((Animal__out_Animal_ParentOf___1 IS NULL) OR (Animal__out_Animal_ParentOf___1.name = $child_name))\n" +
				"RETURN (CASE WHEN (Animal__out_Animal_ParentOf___1 IS NOT NULL) THEN Animal__out_Animal_ParentOf___1.name ELSE null END) AS `child_name`, " +
				"Animal___1.name AS `name`",
		},
		{
			name:  "fold",
			query: testutil.FoldedOutput,
			want: "MATCH (Animal___1:Animal)\n" +
				"OPTIONAL MATCH (Animal___1)-[:Animal_ParentOf]->(Animal___1_out_Animal_ParentOf:Animal)\n" +
				"WITH Animal___1 AS Animal___1, collect(Animal___1_out_Animal_ParentOf) AS collected_Animal___1_out_Animal_ParentOf\n" +
				"RETURN [x IN collected_Animal___1_out_Animal_ParentOf | x.name] AS `child_names`, Animal___1.name AS `name`",
		},
		{
			name:  "recursion",
			query: testutil.Recursion,
			want: "MATCH (Animal___1:Animal)\n" +
				"MATCH (Animal___1)-[:Animal_ParentOf*0..3]->(Animal__out_Animal_ParentOf___1:Animal)\n" +
				"RETURN Animal__out_Animal_ParentOf___1.name AS `descendant`",
		},
		{
			name:  "explicit coercion is kept",
			query: testutil.Coercion,
			want: "MATCH (Animal___1:Animal)\n" +
				"MATCH (Animal___1)-[:Entity_Related]->(Animal__out_Entity_Related___1:Animal)\n" +
				"RETURN Animal__out_Entity_Related___1.name AS `related_name`",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query(t)
			got, err := Compile(q.Blocks, q.Meta, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileRethreadsEarlierFolds(t *testing.T) {
	l := testutil.StandardLocations(t)
	parents := testutil.Fold(t, l.Animal, "in_Animal_ParentOf")
	blocks := []ir.Block{
		ir.QueryRoot{Classes: []string{"Animal"}},
		ir.MarkLocation{Location: l.Animal},
		ir.Fold{Location: l.Children},
		ir.MarkLocation{Location: l.Children},
		ir.Unfold{},
		ir.Fold{Location: parents},
		ir.MarkLocation{Location: parents},
		ir.Unfold{},
		ir.GlobalOperationsStart{},
		ir.ConstructResult{Fields: map[string]ir.Expression{
			"child_names": ir.FoldedContextField{
				Location: testutil.FoldField(t, l.Children, "name"),
				Type:     testutil.Type(t, "[String]"),
			},
			"parent_names": ir.FoldedContextField{
				Location: testutil.FoldField(t, parents, "name"),
				Type:     testutil.Type(t, "[String]"),
			},
		}},
	}
	meta := testutil.Meta(t,
		testutil.LocationSpec{Loc: l.Animal, Type: "Animal"},
		testutil.LocationSpec{Loc: l.Children, Type: "Animal", InFold: true},
		testutil.LocationSpec{Loc: parents, Type: "Animal", InFold: true},
	)

	got, err := Compile(blocks, meta, nil)
	require.NoError(t, err)

	var withs []string
	for _, line := range strings.Split(got, "\n") {
		if strings.HasPrefix(line, "WITH ") {
			withs = append(withs, line)
		}
	}
	require.Len(t, withs, 2)
	assert.Equal(t, "WITH Animal___1 AS Animal___1, "+
		"collect(Animal___1_in_Animal_ParentOf) AS collected_Animal___1_in_Animal_ParentOf", withs[0])
	assert.Equal(t, "WITH Animal___1 AS Animal___1, "+
		"collected_Animal___1_in_Animal_ParentOf AS collected_Animal___1_in_Animal_ParentOf, "+
		"collect(Animal___1_out_Animal_ParentOf) AS collected_Animal___1_out_Animal_ParentOf", withs[1])
	for _, w := range withs {
		assert.Equal(t, 1, strings.Count(w, "collect("), w)
	}
	assert.Contains(t, got, "RETURN [x IN collected_Animal___1_out_Animal_ParentOf | x.name] AS `child_names`, "+
		"[x IN collected_Animal___1_in_Animal_ParentOf | x.name] AS `parent_names`")
}

func TestCompileComplexOptionalMatchesNestedStepsOptionally(t *testing.T) {
	q := testutil.ComplexOptional(t)
	got, err := Compile(q.Blocks, q.Meta, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "OPTIONAL MATCH (Animal__out_Animal_ParentOf___1)-[:Animal_FedAt]->"+
		"(Animal__out_Animal_ParentOf__out_Animal_FedAt___1:FeedingEvent)")
	assert.NotContains(t, got, "Animal___2")
}

func TestLowerTracesEveryPass(t *testing.T) {
	q := testutil.SimpleOptional(t)
	var passes []string
	_, err := Lower(q.Blocks, q.Meta, func(pass string, _ int) { passes = append(passes, pass) })
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sanity_check",
		"remove_end_optionals",
		"insert_explicit_type_bounds",
		"remove_mark_location_after_optional_backtrack",
		"lower_context_field_existence",
		"replace_local_fields_with_context_fields",
		"optimize_boolean_expression_comparisons",
		"merge_consecutive_filter_clauses",
		"convert_to_cypher_query",
		"move_filters_in_optional_locations_to_global_operations",
	}, passes)
}

func TestInsertExplicitTypeBounds(t *testing.T) {
	q := testutil.TraverseWithFilter(t)
	got, err := InsertExplicitTypeBounds(q.Blocks, q.Meta)
	require.NoError(t, err)
	require.Len(t, got, len(q.Blocks)+1)
	assert.Equal(t, ir.CoerceType{Classes: []string{"Animal"}}, got[4])
}

func TestRemoveMarkLocationAfterOptionalBacktrack(t *testing.T) {
	q := testutil.SimpleOptional(t)
	l := testutil.StandardLocations(t)
	got := RemoveMarkLocationAfterOptionalBacktrack(q.Blocks, q.Meta)
	require.Len(t, got, len(q.Blocks)-1)
	for _, b := range got {
		if m, ok := b.(ir.MarkLocation); ok {
			assert.NotEqual(t, ir.BaseLocation(l.Revisit), m.Location)
		}
	}
}

func TestReplaceLocalFieldsInsideFold(t *testing.T) {
	l := testutil.StandardLocations(t)
	got, err := ReplaceLocalFieldsWithContextFields([]ir.Block{
		ir.Fold{Location: l.Children},
		ir.Filter{Predicate: testutil.Bin(ir.OpEq, testutil.Local("name", "String"), testutil.Var(t, "$n", "String"))},
		ir.MarkLocation{Location: l.Children},
	})
	require.NoError(t, err)
	f, ok := got[1].(ir.Filter)
	require.True(t, ok)
	b, ok := f.Predicate.(ir.BinaryComposition)
	require.True(t, ok)
	folded, ok := b.Left.(ir.FoldedContextField)
	require.True(t, ok)
	assert.Equal(t, "name", folded.Location.Field())

	s, err := emitter{inFold: true}.expression(f.Predicate)
	require.NoError(t, err)
	assert.Equal(t, "(Animal___1_out_Animal_ParentOf.name = $n)", s)
}

func TestMoveFiltersKeepsMandatoryFiltersInPlace(t *testing.T) {
	q := testutil.TraverseWithFilter(t)
	cq, err := Lower(q.Blocks, q.Meta, nil)
	require.NoError(t, err)
	assert.Nil(t, cq.GlobalWhere)
	require.NotNil(t, cq.Steps[0].Where)
}

func TestExpression(t *testing.T) {
	l := testutil.StandardLocations(t)
	name := ir.ContextField{Location: testutil.Field(t, l.Animal, "name"), Type: testutil.Type(t, "String")}
	tags := ir.ContextField{Location: testutil.Field(t, l.Animal, "alias"), Type: testutil.Type(t, "[String]")}
	testCases := []struct {
		name string
		expr ir.Expression
		want string
	}{
		{"not equal", testutil.Bin(ir.OpNe, name, ir.Literal{Value: "x"}), `(Animal___1.name <> "x")`},
		{"contains", testutil.Bin(ir.OpContains, tags, testutil.Var(t, "$tag", "String")), "($tag IN Animal___1.alias)"},
		{"not contains", testutil.Bin(ir.OpNotContains, tags, testutil.Var(t, "$tag", "String")), "(NOT ($tag IN Animal___1.alias))"},
		{"intersects", testutil.Bin(ir.OpIntersects, tags, testutil.Var(t, "$tags", "[String]")), "any(_ IN Animal___1.alias WHERE _ IN $tags)"},
		{"substring", testutil.Bin(ir.OpHasSubstring, name, testutil.Var(t, "$part", "String")), "(Animal___1.name CONTAINS $part)"},
		{"starts with", testutil.Bin(ir.OpStartsWith, name, testutil.Var(t, "$p", "String")), "(Animal___1.name STARTS WITH $p)"},
		{"date variable", testutil.Bin(ir.OpGe, name, testutil.Var(t, "$since", "Date")), "(Animal___1.name >= date($since))"},
		{"list literal", ir.Literal{Value: []string{"a", `b"c`}}, `["a", "b\"c"]`},
		{"is null", testutil.Bin(ir.OpEq, name, ir.NullLiteral), "(Animal___1.name IS NULL)"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := emitter{}.expression(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpressionRejectsUnsupportedForms(t *testing.T) {
	l := testutil.StandardLocations(t)
	em := emitter{}

	_, err := em.expression(ir.FoldedContextField{
		Location: testutil.FoldField(t, l.Children, ir.CountMetaField),
		Type:     testutil.Type(t, "Int"),
	})
	assert.True(t, ir.IsNotImplemented(err))

	_, err = em.expression(ir.UnaryTransformation{Op: ir.OpSize, Inner: testutil.Local("alias", "[String]")})
	assert.True(t, ir.IsNotImplemented(err))

	name := ir.ContextField{Location: testutil.Field(t, l.Animal, "name"), Type: testutil.Type(t, "String")}
	_, err = em.expression(testutil.Bin(ir.OpLike, name, ir.Literal{Value: "%"}))
	assert.True(t, ir.IsNotImplemented(err))

	_, err = em.expression(testutil.Local("name", "String"))
	assert.True(t, ir.IsAssertionError(err))

	_, err = em.expression(ir.BetweenClause{Field: testutil.Local("age", "Int"), Lower: ir.ZeroLiteral, Upper: ir.ZeroLiteral})
	assert.True(t, ir.IsAssertionError(err))
}

func TestCompileRejectsInvalidBlocks(t *testing.T) {
	q := testutil.SimpleOutput(t)
	_, err := Compile(q.Blocks[1:], q.Meta, nil)
	require.Error(t, err)
}

func TestStepRejectsFoldWithoutEdge(t *testing.T) {
	l := testutil.StandardLocations(t)
	_, err := emitter{}.step(Step{
		LinkedLocation: l.Animal,
		StepBlock:      ir.Fold{},
		As:             ir.MarkLocation{Location: l.Children},
	})
	assert.True(t, ir.IsAssertionError(err))
}
