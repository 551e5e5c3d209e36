// Package testutil builds IR values for tests without error plumbing.
//
// Every helper fails the test immediately on invalid input, so test bodies
// can stay focused on the behavior under test.
package testutil

import (
	"testing"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/roach88/graphc/internal/ir"
)

// Loc builds the first visit of a query path.
func Loc(t testing.TB, path ...string) ir.Location {
	t.Helper()
	loc, err := ir.NewLocation(path, "", 1)
	if err != nil {
		t.Fatalf("Loc(%v): %v", path, err)
	}
	return loc
}

// Field points loc at a property field.
func Field(t testing.TB, loc ir.Location, name string) ir.Location {
	t.Helper()
	out, err := loc.NavigateToField(name)
	if err != nil {
		t.Fatalf("Field(%s, %s): %v", loc, name, err)
	}
	return out
}

// Fold enters a fold scope from base along child.
func Fold(t testing.TB, base ir.Location, child string) ir.FoldScopeLocation {
	t.Helper()
	out, err := base.NavigateToFold(child)
	if err != nil {
		t.Fatalf("Fold(%s, %s): %v", base, child, err)
	}
	return out
}

// FoldSub follows a further vertex field inside a fold.
func FoldSub(t testing.TB, f ir.FoldScopeLocation, child string) ir.FoldScopeLocation {
	t.Helper()
	out, err := f.NavigateToSubpath(child)
	if err != nil {
		t.Fatalf("FoldSub(%s, %s): %v", f, child, err)
	}
	return out
}

// FoldField points a fold scope location at a property field.
func FoldField(t testing.TB, f ir.FoldScopeLocation, name string) ir.FoldScopeLocation {
	t.Helper()
	out, err := f.NavigateToField(name)
	if err != nil {
		t.Fatalf("FoldField(%s, %s): %v", f, name, err)
	}
	return out
}

// Type parses a GraphQL type reference.
func Type(t testing.TB, s string) *ast.Type {
	t.Helper()
	typ, err := ir.ParseType(s)
	if err != nil {
		t.Fatalf("Type(%q): %v", s, err)
	}
	return typ
}

// Var builds a variable reference.
func Var(t testing.TB, name, typ string) ir.Variable {
	t.Helper()
	v, err := ir.NewVariable(name, Type(t, typ))
	if err != nil {
		t.Fatalf("Var(%s): %v", name, err)
	}
	return v
}

// Local builds a local field reference.
func Local(name, typ string) ir.LocalField {
	if typ == "" {
		return ir.LocalField{Name: name}
	}
	return ir.LocalField{Name: name, Type: ir.NamedType(typ)}
}

// Bin builds a binary composition.
func Bin(op ir.Operator, left, right ir.Expression) ir.BinaryComposition {
	return ir.BinaryComposition{Op: op, Left: left, Right: right}
}

// Output builds an output column reading field at loc.
func Output(t testing.TB, loc ir.Location, field, typ string) ir.OutputContextField {
	t.Helper()
	return ir.OutputContextField{Location: Field(t, loc, field), Type: Type(t, typ)}
}

// OptionalOutput builds the guarded output the front end emits for a field
// inside an optional scope.
func OptionalOutput(t testing.TB, loc ir.Location, field, typ string) ir.TernaryConditional {
	t.Helper()
	return ir.TernaryConditional{
		Predicate: ir.ContextFieldExistence{Location: loc},
		IfTrue:    Output(t, loc, field, typ),
		IfFalse:   ir.NullLiteral,
	}
}

// LocationSpec describes one metadata table entry.
type LocationSpec struct {
	Loc           ir.BaseLocation
	Type          string
	CoercedFrom   string
	OptionalDepth int
	RecurseDepth  int
	InFold        bool
}

// Meta builds a metadata table from specs.
func Meta(t testing.TB, specs ...LocationSpec) *ir.QueryMetadataTable {
	t.Helper()
	table := ir.NewQueryMetadataTable()
	for _, s := range specs {
		info := ir.LocationInfo{
			Type:                 ir.NamedType(s.Type),
			OptionalScopesDepth:  s.OptionalDepth,
			RecursiveScopesDepth: s.RecurseDepth,
			IsWithinFold:         s.InFold,
		}
		if s.CoercedFrom != "" {
			info.CoercedFromType = ir.NamedType(s.CoercedFrom)
		}
		if err := table.RegisterLocation(s.Loc, info); err != nil {
			t.Fatalf("Meta: %v", err)
		}
	}
	return table
}
