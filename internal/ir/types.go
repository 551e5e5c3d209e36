package ir

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Scalar and meta names with special handling in the backends.
const (
	DateTypeName     = "Date"
	DateTimeTypeName = "DateTime"

	// CountMetaField is the reserved "_x_count" field available inside folds.
	CountMetaField = "_x_count"

	// StandardDateFormat and StandardDateTimeFormat are the Java-style formats
	// used to serialize Date and DateTime values in MATCH and Gremlin.
	StandardDateFormat     = "yyyy-MM-dd"
	StandardDateTimeFormat = "yyyy-MM-dd'T'HH:mm:ss"
)

// NamedType returns a nullable reference to a named schema type.
func NamedType(name string) *ast.Type {
	return ast.NamedType(name, nil)
}

// ListOf returns a nullable list of elem.
func ListOf(elem *ast.Type) *ast.Type {
	return ast.ListType(elem, nil)
}

// NonNull returns a non-null copy of t.
func NonNull(t *ast.Type) *ast.Type {
	c := *t
	c.NonNull = true
	return &c
}

// StripNonNull returns a nullable copy of t.
func StripNonNull(t *ast.Type) *ast.Type {
	if t == nil || !t.NonNull {
		return t
	}
	c := *t
	c.NonNull = false
	return &c
}

// TypesEqual compares two schema type references structurally. Pointer
// equality of *ast.Type values says nothing about the types they denote,
// so every comparison in the pipeline goes through here.
func TypesEqual(a, b *ast.Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.NonNull != b.NonNull || a.NamedType != b.NamedType {
		return false
	}
	return TypesEqual(a.Elem, b.Elem)
}

// IsListType reports whether t (ignoring non-null) is a list.
func IsListType(t *ast.Type) bool {
	return t != nil && t.Elem != nil
}

// IsNamed reports whether t (ignoring non-null) is the named type name.
func IsNamed(t *ast.Type, name string) bool {
	return t != nil && t.Elem == nil && t.NamedType == name
}

// IsDateLike reports whether t is Date or DateTime, returning the matching
// serialization format.
func IsDateLike(t *ast.Type) (string, bool) {
	switch {
	case IsNamed(t, DateTypeName):
		return StandardDateFormat, true
	case IsNamed(t, DateTimeTypeName):
		return StandardDateTimeFormat, true
	}
	return "", false
}

// ParseType parses a GraphQL type reference such as "[String!]!".
func ParseType(s string) (*ast.Type, error) {
	src := &ast.Source{Name: "type", Input: "query($v: " + s + ") { __typename }"}
	doc, err := parser.ParseQuery(src)
	if err != nil {
		return nil, validationErrorf(CodeInvalidType, "type", "invalid type reference %q: %v", s, err)
	}
	if len(doc.Operations) != 1 || len(doc.Fragments) != 0 {
		return nil, validationErrorf(CodeInvalidType, "type", "invalid type reference %q", s)
	}
	vars := doc.Operations[0].VariableDefinitions
	if len(vars) != 1 || vars[0].DefaultValue != nil || len(vars[0].Directives) != 0 {
		return nil, validationErrorf(CodeInvalidType, "type", "invalid type reference %q", s)
	}
	return withoutPosition(vars[0].Type), nil
}

// withoutPosition copies t, dropping the parser's source positions.
func withoutPosition(t *ast.Type) *ast.Type {
	var c *ast.Type
	if t.Elem != nil {
		c = ListOf(withoutPosition(t.Elem))
	} else {
		c = NamedType(t.NamedType)
	}
	c.NonNull = t.NonNull
	return c
}
