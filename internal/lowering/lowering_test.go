package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/testutil"
)

func TestMergeConsecutiveFilterClauses(t *testing.T) {
	a := ir.Filter{Predicate: testutil.Bin(ir.OpEq, testutil.Local("a", ""), ir.TrueLiteral)}
	b := ir.Filter{Predicate: testutil.Bin(ir.OpEq, testutil.Local("b", ""), ir.TrueLiteral)}
	c := ir.Filter{Predicate: testutil.Bin(ir.OpEq, testutil.Local("c", ""), ir.TrueLiteral)}
	root := ir.QueryRoot{Classes: []string{"Animal"}}

	merged := MergeConsecutiveFilterClauses([]ir.Block{root, a, b, c})
	require.Len(t, merged, 2)
	want := ir.Filter{Predicate: testutil.Bin(ir.OpAnd, testutil.Bin(ir.OpAnd, a.Predicate, b.Predicate), c.Predicate)}
	assert.True(t, ir.BlocksEqual(want, merged[1]), "operands stay in (previous, next) order")

	again := MergeConsecutiveFilterClauses(merged)
	require.Len(t, again, len(merged))
	for i := range merged {
		assert.True(t, ir.BlocksEqual(merged[i], again[i]), "merging is idempotent")
	}

	assert.Empty(t, MergeConsecutiveFilterClauses(nil))
}

func TestLowerContextFieldExistence(t *testing.T) {
	q := testutil.FilteredOptional(t)
	l := testutil.StandardLocations(t)
	blocks := append([]ir.Block{}, q.Blocks[:len(q.Blocks)-1]...)
	blocks = append(blocks,
		ir.Filter{Predicate: ir.ContextFieldExistence{Location: l.Child}},
		q.Blocks[len(q.Blocks)-1],
	)

	lowered, err := LowerContextFieldExistence(blocks, q.Meta)
	require.NoError(t, err)

	filter := lowered[len(lowered)-2].(ir.Filter)
	assert.True(t, ir.Equal(
		testutil.Bin(ir.OpNe, ir.ContextField{Location: l.Child, Type: ir.NamedType("Animal")}, ir.NullLiteral),
		filter.Predicate,
	))

	output := lowered[len(lowered)-1].(ir.ConstructResult)
	guarded := output.Fields["child_name"].(ir.TernaryConditional)
	assert.True(t, ir.Equal(
		testutil.Bin(ir.OpNe, ir.OutputContextVertex{Location: l.Child, Type: ir.NamedType("Animal")}, ir.NullLiteral),
		guarded.Predicate,
	))

	_, isExistence := blocks[len(blocks)-2].(ir.Filter).Predicate.(ir.ContextFieldExistence)
	assert.True(t, isExistence, "input must not change")
}

func TestLowerContextFieldExistenceNeedsMetadata(t *testing.T) {
	l := testutil.StandardLocations(t)
	blocks := []ir.Block{ir.Filter{Predicate: ir.ContextFieldExistence{Location: l.Child}}}
	_, err := LowerContextFieldExistence(blocks, ir.NewQueryMetadataTable())
	assert.True(t, ir.IsAssertionError(err))
}

func TestOptimizeBooleanExpressionComparisons(t *testing.T) {
	inner := testutil.Bin(ir.OpEq, testutil.Local("name", ""), ir.NullLiteral)
	inverted := testutil.Bin(ir.OpNe, testutil.Local("name", ""), ir.NullLiteral)
	size := testutil.Bin(ir.OpGt, testutil.Local("size", ""), ir.ZeroLiteral)

	testCases := []struct {
		name string
		in   ir.Expression
		want ir.Expression
	}{
		{"equals true", testutil.Bin(ir.OpEq, inner, ir.TrueLiteral), inner},
		{"true equals", testutil.Bin(ir.OpEq, ir.TrueLiteral, inner), inner},
		{"not equals false", testutil.Bin(ir.OpNe, inner, ir.FalseLiteral), inner},
		{"equals false inverts", testutil.Bin(ir.OpEq, inner, ir.FalseLiteral), inverted},
		{"not equals true inverts", testutil.Bin(ir.OpNe, ir.TrueLiteral, inner), inverted},
		{"no inverse for >", testutil.Bin(ir.OpEq, size, ir.FalseLiteral), testutil.Bin(ir.OpEq, size, ir.FalseLiteral)},
		{"other outer operator", testutil.Bin(ir.OpAnd, inner, ir.TrueLiteral), testutil.Bin(ir.OpAnd, inner, ir.TrueLiteral)},
		{"no composition", testutil.Bin(ir.OpEq, testutil.Local("a", ""), ir.TrueLiteral), testutil.Bin(ir.OpEq, testutil.Local("a", ""), ir.TrueLiteral)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := OptimizeBooleanExpressionComparisons([]ir.Block{ir.Filter{Predicate: tc.in}})
			assert.True(t, ir.Equal(tc.want, out[0].(ir.Filter).Predicate), "got %#v", out[0])
		})
	}
}

func TestShortCircuitTernary(t *testing.T) {
	a := testutil.Local("a", "")
	b := testutil.Local("b", "")
	assert.Equal(t, a, ShortCircuitTernary(ir.TernaryConditional{Predicate: ir.TrueLiteral, IfTrue: a, IfFalse: b}))
	assert.Equal(t, b, ShortCircuitTernary(ir.TernaryConditional{Predicate: ir.FalseLiteral, IfTrue: a, IfFalse: b}))

	open := ir.TernaryConditional{Predicate: a, IfTrue: a, IfFalse: b}
	assert.Equal(t, open, ShortCircuitTernary(open))
}

func TestExtractFolds(t *testing.T) {
	q := testutil.FoldedOutput(t)
	l := testutil.StandardLocations(t)

	folds, remaining, err := ExtractFolds(q.Blocks)
	require.NoError(t, err)
	require.Len(t, folds, 1)
	assert.Equal(t, []ir.Block{ir.MarkLocation{Location: l.Children}}, folds[l.Children])
	assert.Len(t, remaining, 4)
	for _, b := range remaining {
		assert.NotEqual(t, ir.Unfold{}, b)
	}
	assert.Equal(t, []ir.FoldScopeLocation{l.Children}, folds.SortedKeys())

	_, _, err = ExtractFolds([]ir.Block{ir.Unfold{}})
	assert.True(t, ir.IsAssertionError(err))
	_, _, err = ExtractFolds([]ir.Block{ir.Fold{Location: l.Children}, ir.Fold{Location: l.Children}})
	assert.True(t, ir.IsAssertionError(err))
}

func TestExtractOptionalLocationRootInfo(t *testing.T) {
	l := testutil.StandardLocations(t)

	t.Run("simple", func(t *testing.T) {
		info, err := ExtractOptionalLocationRootInfo(testutil.SimpleOptional(t).Blocks)
		require.NoError(t, err)
		assert.Empty(t, info.ComplexRoots)
		assert.Equal(t, []ir.Location{l.Animal}, info.LocationRoots[l.Child])
		assert.Empty(t, info.LocationRoots[l.Animal])
		assert.Empty(t, info.LocationRoots[l.Revisit])
	})

	t.Run("complex", func(t *testing.T) {
		info, err := ExtractOptionalLocationRootInfo(testutil.ComplexOptional(t).Blocks)
		require.NoError(t, err)
		assert.Equal(t, []ir.Location{l.Animal}, info.ComplexRoots)
		assert.True(t, info.IsComplex(l.Animal))
		assert.Equal(t, []ir.Location{l.Animal}, info.LocationRoots[l.Event])
	})

	t.Run("unbalanced", func(t *testing.T) {
		_, err := ExtractOptionalLocationRootInfo([]ir.Block{ir.EndOptional{}})
		assert.True(t, ir.IsAssertionError(err))
	})
}

func TestExtractSimpleOptionalLocationInfo(t *testing.T) {
	l := testutil.StandardLocations(t)

	q := testutil.SimpleOptional(t)
	roots, err := ExtractOptionalLocationRootInfo(q.Blocks)
	require.NoError(t, err)
	simple, err := ExtractSimpleOptionalLocationInfo(q.Blocks, roots)
	require.NoError(t, err)
	assert.Equal(t, map[ir.Location]SimpleOptionalInfo{
		l.Animal: {InnerLocation: l.Child, EdgeField: "out_Animal_ParentOf"},
	}, simple)

	q = testutil.ComplexOptional(t)
	roots, err = ExtractOptionalLocationRootInfo(q.Blocks)
	require.NoError(t, err)
	simple, err = ExtractSimpleOptionalLocationInfo(q.Blocks, roots)
	require.NoError(t, err)
	assert.Empty(t, simple, "complex roots are not simple")
}

func TestRemoveEndOptionals(t *testing.T) {
	q := testutil.SimpleOptional(t)
	out := RemoveEndOptionals(q.Blocks)
	assert.Len(t, out, len(q.Blocks)-1)
	for _, b := range out {
		assert.NotEqual(t, ir.EndOptional{}, b)
	}
}

func TestTranslation(t *testing.T) {
	l := testutil.StandardLocations(t)
	other := testutil.Loc(t, "Animal", "in_Animal_ParentOf")
	tr := Translation{l.Revisit: l.Child, l.Child: other}.Flatten()

	assert.Equal(t, other, tr[l.Revisit])
	assert.Equal(t, testutil.Field(t, other, "name"), tr.Location(testutil.Field(t, l.Revisit, "name")))

	expr := testutil.Bin(ir.OpAnd,
		ir.ContextField{Location: testutil.Field(t, l.Child, "name"), Type: ir.NamedType("String")},
		ir.ContextFieldExistence{Location: l.Revisit},
	)
	got := tr.Expression(expr).(ir.BinaryComposition)
	assert.Equal(t, testutil.Field(t, other, "name"), got.Left.(ir.ContextField).Location)
	assert.Equal(t, other, got.Right.(ir.ContextFieldExistence).Location)

	fold := testutil.Fold(t, l.Child, "out_Animal_FedAt")
	moved := tr.Block(ir.Fold{Location: fold}).(ir.Fold)
	assert.Equal(t, other, moved.Location.BaseLocation())

	cyclic := Translation{l.Animal: l.Child, l.Child: l.Animal}.Flatten()
	assert.Len(t, cyclic, 2, "cycles terminate")
}
