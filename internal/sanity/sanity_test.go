package sanity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/testutil"
)

func TestCheckAcceptsWellFormedQueries(t *testing.T) {
	testCases := []struct {
		name  string
		query func(testing.TB) testutil.Query
	}{
		{"simple output", testutil.SimpleOutput},
		{"traverse with filter", testutil.TraverseWithFilter},
		{"simple optional", testutil.SimpleOptional},
		{"filtered optional", testutil.FilteredOptional},
		{"complex optional", testutil.ComplexOptional},
		{"fold", testutil.FoldedOutput},
		{"recursion", testutil.Recursion},
		{"range filter", testutil.RangeFilter},
		{"coercion", testutil.Coercion},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query(t)
			require.NoError(t, Check(q.Blocks, q.Meta))
		})
	}
}

func TestCheckRejects(t *testing.T) {
	l := testutil.StandardLocations(t)
	output := ir.ConstructResult{Fields: map[string]ir.Expression{
		"name": testutil.Output(t, l.Animal, "name", "String"),
	}}
	nameFilter := ir.Filter{Predicate: testutil.Bin(ir.OpEq, testutil.Local("name", "String"), testutil.Var(t, "$n", "String"))}

	testCases := []struct {
		name   string
		blocks []ir.Block
	}{
		{
			name:   "empty",
			blocks: nil,
		},
		{
			name: "filter after mark",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				nameFilter,
				output,
			},
		},
		{
			name: "consecutive marks",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.MarkLocation{Location: l.Revisit},
				output,
			},
		},
		{
			name: "optional traverse without preceding mark",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.Backtrack{Location: l.Animal},
				ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf", Optional: true},
				ir.MarkLocation{Location: l.Child},
				output,
			},
		},
		{
			name: "coerce type not followed by mark or filter",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.Traverse{Direction: ir.Out, Edge: "Entity_Related"},
				ir.CoerceType{Classes: []string{"Animal"}},
				ir.Backtrack{Location: l.Animal},
				output,
			},
		},
		{
			name: "first block is not query root",
			blocks: []ir.Block{
				ir.MarkLocation{Location: l.Animal},
				output,
			},
		},
		{
			name: "second query root",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Revisit},
				output,
			},
		},
		{
			name: "traverse after output source",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.OutputSource{},
				ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf"},
				ir.MarkLocation{Location: l.Child},
				output,
			},
		},
		{
			name: "unmarked traversal",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf"},
				ir.Backtrack{Location: l.Animal},
				output,
			},
		},
		{
			name: "recurse after filter",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				nameFilter,
				ir.Recurse{Direction: ir.Out, Edge: "Animal_ParentOf", Depth: 2},
				ir.MarkLocation{Location: l.Child},
				output,
			},
		},
		{
			name: "optional backtrack without revisit mark",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf", Optional: true},
				ir.MarkLocation{Location: l.Child},
				ir.EndOptional{},
				ir.Backtrack{Location: l.Animal, Optional: true},
				output,
			},
		},
		{
			name: "unclosed fold",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.Fold{Location: l.Children},
				ir.MarkLocation{Location: l.Children},
				output,
			},
		},
		{
			name: "nested fold",
			blocks: []ir.Block{
				ir.QueryRoot{Classes: []string{"Animal"}},
				ir.MarkLocation{Location: l.Animal},
				ir.Fold{Location: l.Children},
				ir.MarkLocation{Location: l.Children},
				ir.Fold{Location: testutil.Fold(t, l.Child, "out_Animal_FedAt")},
				ir.Unfold{},
				ir.Unfold{},
				output,
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.blocks, nil)
			require.Error(t, err)
			assert.True(t, ir.IsAssertionError(err), "got %v", err)
		})
	}
}

func TestCheckRequiresRegisteredLocations(t *testing.T) {
	q := testutil.TraverseWithFilter(t)
	l := testutil.StandardLocations(t)
	meta := testutil.Meta(t, testutil.LocationSpec{Loc: l.Animal, Type: "Animal"})

	err := Check(q.Blocks, meta)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metadata")
}

func TestCheckRejectsInvalidBlocks(t *testing.T) {
	blocks := []ir.Block{
		ir.QueryRoot{},
	}
	err := Check(blocks, nil)
	assert.True(t, ir.IsAssertionError(err))
}
