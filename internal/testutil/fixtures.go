package testutil

import (
	"testing"

	"github.com/roach88/graphc/internal/ir"
)

// Query is a front-end-shaped IR block list with its metadata.
type Query struct {
	Blocks []ir.Block
	Meta   *ir.QueryMetadataTable
}

// Common locations used by the fixtures below.
type Locations struct {
	Animal   ir.Location // Animal___1
	Revisit  ir.Location // Animal___2
	Child    ir.Location // Animal__out_Animal_ParentOf___1
	Event    ir.Location // Animal__out_Animal_ParentOf__out_Animal_FedAt___1
	Related  ir.Location // Animal__out_Entity_Related___1
	Children ir.FoldScopeLocation
}

// StandardLocations returns the locations shared by the fixtures.
func StandardLocations(t testing.TB) Locations {
	t.Helper()
	animal := Loc(t, "Animal")
	return Locations{
		Animal:   animal,
		Revisit:  animal.Revisit(),
		Child:    Loc(t, "Animal", "out_Animal_ParentOf"),
		Event:    Loc(t, "Animal", "out_Animal_ParentOf", "out_Animal_FedAt"),
		Related:  Loc(t, "Animal", "out_Entity_Related"),
		Children: Fold(t, animal, "out_Animal_ParentOf"),
	}
}

// SimpleOutput: one Animal vertex, one scalar output.
func SimpleOutput(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"animal_name": Output(t, l.Animal, "name", "String"),
			}},
		},
		Meta: Meta(t, LocationSpec{Loc: l.Animal, Type: "Animal"}),
	}
}

// TraverseWithFilter: filtered root, mandatory traversal to a child.
func TraverseWithFilter(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.Filter{Predicate: Bin(ir.OpEq, Local("name", "String"), Var(t, "$wanted", "String"))},
			ir.MarkLocation{Location: l.Animal},
			ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf"},
			ir.MarkLocation{Location: l.Child},
			ir.Backtrack{Location: l.Animal},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"parent_name": Output(t, l.Animal, "name", "String"),
				"child_name":  Output(t, l.Child, "name", "String"),
			}},
		},
		Meta: Meta(t,
			LocationSpec{Loc: l.Animal, Type: "Animal"},
			LocationSpec{Loc: l.Child, Type: "Animal"},
		),
	}
}

// SimpleOptional: an optional edge whose scope expands no further vertices.
func SimpleOptional(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf", Optional: true},
			ir.MarkLocation{Location: l.Child},
			ir.EndOptional{},
			ir.Backtrack{Location: l.Animal, Optional: true},
			ir.MarkLocation{Location: l.Revisit},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"name":       Output(t, l.Animal, "name", "String"),
				"child_name": OptionalOutput(t, l.Child, "name", "String"),
			}},
		},
		Meta: optionalMeta(t, l, false),
	}
}

// FilteredOptional: an optional edge with a filter on the optional vertex.
func FilteredOptional(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf", Optional: true},
			ir.Filter{Predicate: Bin(ir.OpEq, Local("name", "String"), Var(t, "$child_name", "String"))},
			ir.MarkLocation{Location: l.Child},
			ir.EndOptional{},
			ir.Backtrack{Location: l.Animal, Optional: true},
			ir.MarkLocation{Location: l.Revisit},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"name":       Output(t, l.Animal, "name", "String"),
				"child_name": OptionalOutput(t, l.Child, "name", "String"),
			}},
		},
		Meta: optionalMeta(t, l, false),
	}
}

// ComplexOptional: an optional edge whose scope traverses one more edge.
func ComplexOptional(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.Traverse{Direction: ir.Out, Edge: "Animal_ParentOf", Optional: true},
			ir.MarkLocation{Location: l.Child},
			ir.Traverse{Direction: ir.Out, Edge: "Animal_FedAt", WithinOptionalScope: true},
			ir.MarkLocation{Location: l.Event},
			ir.Backtrack{Location: l.Child},
			ir.EndOptional{},
			ir.Backtrack{Location: l.Animal, Optional: true},
			ir.MarkLocation{Location: l.Revisit},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"name":       Output(t, l.Animal, "name", "String"),
				"child_name": OptionalOutput(t, l.Child, "name", "String"),
				"event_name": OptionalOutput(t, l.Event, "name", "String"),
			}},
		},
		Meta: optionalMeta(t, l, true),
	}
}

func optionalMeta(t testing.TB, l Locations, withEvent bool) *ir.QueryMetadataTable {
	t.Helper()
	specs := []LocationSpec{
		{Loc: l.Animal, Type: "Animal"},
		{Loc: l.Child, Type: "Animal", OptionalDepth: 1},
		{Loc: l.Revisit, Type: "Animal"},
	}
	if withEvent {
		specs = append(specs, LocationSpec{Loc: l.Event, Type: "FeedingEvent", OptionalDepth: 1})
	}
	meta := Meta(t, specs...)
	meta.RegisterRevisit(l.Revisit, l.Animal)
	return meta
}

// FoldedOutput: a @fold over children with a list output.
func FoldedOutput(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.Fold{Location: l.Children},
			ir.MarkLocation{Location: l.Children},
			ir.Unfold{},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"name": Output(t, l.Animal, "name", "String"),
				"child_names": ir.FoldedContextField{
					Location: FoldField(t, l.Children, "name"),
					Type:     Type(t, "[String]"),
				},
			}},
		},
		Meta: Meta(t,
			LocationSpec{Loc: l.Animal, Type: "Animal"},
			LocationSpec{Loc: l.Children, Type: "Animal", InFold: true},
		),
	}
}

// Recursion: descendants up to depth 3.
func Recursion(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.Recurse{Direction: ir.Out, Edge: "Animal_ParentOf", Depth: 3},
			ir.MarkLocation{Location: l.Child},
			ir.Backtrack{Location: l.Animal},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"descendant": Output(t, l.Child, "name", "String"),
			}},
		},
		Meta: Meta(t,
			LocationSpec{Loc: l.Animal, Type: "Animal"},
			LocationSpec{Loc: l.Child, Type: "Animal", RecurseDepth: 1},
		),
	}
}

// RangeFilter: one >= and one <= constraint on the same field.
func RangeFilter(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.Filter{Predicate: Bin(ir.OpAnd,
				Bin(ir.OpGe, Local("net_worth", "Int"), Var(t, "$min", "Int")),
				Bin(ir.OpLe, Local("net_worth", "Int"), Var(t, "$max", "Int")),
			)},
			ir.MarkLocation{Location: l.Animal},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"name": Output(t, l.Animal, "name", "String"),
			}},
		},
		Meta: Meta(t, LocationSpec{Loc: l.Animal, Type: "Animal"}),
	}
}

// Coercion: traversal to an interface type narrowed with a type coercion.
func Coercion(t testing.TB) Query {
	t.Helper()
	l := StandardLocations(t)
	return Query{
		Blocks: []ir.Block{
			ir.QueryRoot{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Animal},
			ir.Traverse{Direction: ir.Out, Edge: "Entity_Related"},
			ir.CoerceType{Classes: []string{"Animal"}},
			ir.MarkLocation{Location: l.Related},
			ir.Backtrack{Location: l.Animal},
			ir.GlobalOperationsStart{},
			ir.ConstructResult{Fields: map[string]ir.Expression{
				"related_name": Output(t, l.Related, "name", "String"),
			}},
		},
		Meta: Meta(t,
			LocationSpec{Loc: l.Animal, Type: "Animal"},
			LocationSpec{Loc: l.Related, Type: "Animal", CoercedFrom: "Entity"},
		),
	}
}
