package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
)

func mustRoot(t *testing.T, typeName string) Location {
	t.Helper()
	loc, err := RootLocation(typeName)
	require.NoError(t, err)
	return loc
}

func TestTypesEqual(t *testing.T) {
	a, err := ParseType("[String!]!")
	require.NoError(t, err)
	b, err := ParseType("[String!]!")
	require.NoError(t, err)
	c, err := ParseType("[String]!")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.True(t, TypesEqual(a, b))
	assert.False(t, TypesEqual(a, c))
	assert.True(t, TypesEqual(StripNonNull(a), StripNonNull(b)))
	assert.Equal(t, "[String!]!", a.String())
}

func TestParseTypeErrors(t *testing.T) {
	for _, s := range []string{"", "[String", "String]]", "!", "String = 5", "String @skip", "Int) { a } query($w: Int"} {
		_, err := ParseType(s)
		assert.True(t, IsValidationError(err), s)
	}
}

func TestParseType(t *testing.T) {
	testCases := []struct {
		in   string
		want *ast.Type
	}{
		{"String", NamedType("String")},
		{"String!", NonNull(NamedType("String"))},
		{"[Animal]", ListOf(NamedType("Animal"))},
		{" [String!]! ", NonNull(ListOf(NonNull(NamedType("String"))))},
		{"[[Int]]", ListOf(ListOf(NamedType("Int")))},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseType(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.String(), got.String())
		})
	}
}

func TestVariableValidation(t *testing.T) {
	_, err := NewVariable("$name", NamedType("String"))
	require.NoError(t, err)

	testCases := []struct {
		name string
		in   string
	}{
		{"missing dollar", "name"},
		{"digit after dollar", "$1name"},
		{"reserved keyword", "$matches"},
		{"illegal char", "$na-me"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVariable(tc.in, NamedType("String"))
			assert.True(t, IsValidationError(err))
		})
	}

	_, err = NewVariable("$name", nil)
	assert.True(t, IsValidationError(err), "variables need an inferred type")
}

func TestLiteralNormalization(t *testing.T) {
	lit, err := NewLiteral(3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), lit.Value)

	lit, err = NewLiteral([]any{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, lit.Value)

	_, err = NewLiteral(1.5)
	assert.True(t, IsValidationError(err))
	_, err = NewLiteral([]any{1})
	assert.True(t, IsValidationError(err))
}

func TestExpressionShapeValidation(t *testing.T) {
	root := mustRoot(t, "Animal")
	named, err := root.NavigateToField("name")
	require.NoError(t, err)
	fold, err := root.NavigateToFold("out_Animal_ParentOf")
	require.NoError(t, err)
	foldName, err := fold.NavigateToField("name")
	require.NoError(t, err)

	valid := []Expression{
		OutputContextField{Location: named, Type: NamedType("String")},
		OutputContextVertex{Location: root, Type: NamedType("Animal")},
		ContextFieldExistence{Location: root},
		FoldedContextField{Location: foldName, Type: ListOf(NamedType("String"))},
		BinaryComposition{Op: OpEq, Left: LocalField{Name: "name"}, Right: NullLiteral},
	}
	for _, e := range valid {
		assert.NoError(t, ValidateExpression(e), "%#v", e)
	}

	invalid := []Expression{
		OutputContextField{Location: root, Type: NamedType("String")},
		OutputContextVertex{Location: named, Type: NamedType("Animal")},
		GlobalContextField{Location: root, Type: NamedType("String")},
		ContextFieldExistence{Location: named},
		FoldedContextField{Location: foldName, Type: NamedType("String")},
		BinaryComposition{Op: "xor", Left: TrueLiteral, Right: FalseLiteral},
		UnaryTransformation{Op: "length", Inner: LocalField{Name: "name"}},
		TernaryConditional{Predicate: TrueLiteral, IfTrue: TrueLiteral},
	}
	for _, e := range invalid {
		assert.True(t, IsValidationError(ValidateExpression(e)), "%#v", e)
	}
}

func TestVisitAndUpdateIsBottomUpAndPure(t *testing.T) {
	original := BinaryComposition{
		Op:    OpAnd,
		Left:  BinaryComposition{Op: OpEq, Left: LocalField{Name: "name"}, Right: Literal{Value: "x"}},
		Right: BinaryComposition{Op: OpEq, Left: LocalField{Name: "uuid"}, Right: Literal{Value: "y"}},
	}

	var order []string
	rewritten := VisitAndUpdate(original, func(e Expression) Expression {
		switch e := e.(type) {
		case LocalField:
			order = append(order, e.Name)
			return LocalField{Name: "renamed_" + e.Name}
		case BinaryComposition:
			order = append(order, string(e.Op))
		}
		return e
	})

	assert.Equal(t, []string{"name", "=", "uuid", "=", "&&"}, order)
	assert.Equal(t, "name", original.Left.(BinaryComposition).Left.(LocalField).Name, "input must not change")
	assert.Equal(t, "renamed_uuid", rewritten.(BinaryComposition).Right.(BinaryComposition).Left.(LocalField).Name)
}

func TestEqualUsesStructuralTypes(t *testing.T) {
	a := Variable{Name: "$x", Type: NamedType("Int")}
	b := Variable{Name: "$x", Type: NamedType("Int")}
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, Variable{Name: "$x", Type: NamedType("String")}))
	assert.True(t, Equal(Literal{Value: []string{"a"}}, Literal{Value: []string{"a"}}))
	assert.False(t, Equal(Literal{Value: []string{"a"}}, Literal{Value: "a"}))
}

func TestConjunctionRoundTrip(t *testing.T) {
	a := LocalField{Name: "a"}
	b := LocalField{Name: "b"}
	c := LocalField{Name: "c"}

	conj := Conjunction([]Expression{a, b, c})
	assert.Equal(t, []Expression{a, b, c}, ConjunctionElements(conj))
	assert.Equal(t, TrueLiteral, Conjunction(nil))
}

func TestBlockValidation(t *testing.T) {
	root := mustRoot(t, "Animal")
	named, err := root.NavigateToField("name")
	require.NoError(t, err)

	qr, err := NewQueryRoot("Animal", "Animal", "Dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"Animal", "Dog"}, qr.Classes)

	_, err = NewQueryRoot()
	assert.True(t, IsValidationError(err))

	_, err = NewMarkLocation(named)
	assert.True(t, IsValidationError(err), "marks must point at a vertex")

	_, err = NewRecurse(Out, "Animal_ParentOf", 0, false)
	assert.True(t, IsValidationError(err))

	_, err = NewTraverse("up", "Animal_ParentOf", false, false)
	assert.True(t, IsValidationError(err))

	_, err = NewConstructResult(map[string]Expression{})
	assert.True(t, IsValidationError(err))

	tr, err := NewTraverse(Out, "Animal_ParentOf", true, false)
	require.NoError(t, err)
	assert.Equal(t, "out_Animal_ParentOf", tr.FieldName())
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, IsNotImplemented(NotImplementedf("fold in %s", "sql")))
	assert.False(t, IsNotImplemented(Assertf("x", "y")))
	assert.True(t, IsAssertionError(Assertf("sanity", "bad")))
	assert.True(t, IsCompilationError(CompilationErrorf(CodeUnsupportedMetaField, "nope")))
	assert.Contains(t, Assertf("sanity", "bad").Error(), "E300")
}
