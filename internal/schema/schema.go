// Package schema loads the GraphQL schema a query is compiled against.
//
// The compiler needs little from the schema: the set of vertex type names,
// the declared type of each property, and the type equivalence hints that
// let a coercion to an interface or union cover all of its members.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/roach88/graphc/internal/ir"
)

// Schema is a parsed SDL document.
type Schema struct {
	ast     *ast.Schema
	version string
}

// Load reads and parses an SDL file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(filepath.Base(path), string(data))
}

// Parse parses SDL text. name is used in error positions.
func Parse(name, sdl string) (*Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	sum := sha256.Sum256([]byte(sdl))
	return &Schema{ast: s, version: hex.EncodeToString(sum[:])}, nil
}

// Version identifies the schema text. Cached compilations are keyed by it.
func (s *Schema) Version() string { return s.version }

// HasType reports whether name is a vertex type: an object, interface or
// union definition.
func (s *Schema) HasType(name string) bool {
	def, ok := s.ast.Types[name]
	if !ok {
		return false
	}
	switch def.Kind {
	case ast.Object, ast.Interface, ast.Union:
		return true
	}
	return false
}

// FieldType returns the declared type of a property or vertex field.
func (s *Schema) FieldType(typeName, field string) (*ast.Type, error) {
	def, ok := s.ast.Types[typeName]
	if !ok {
		return nil, ir.CompilationErrorf(ir.CodeUnknownType, "unknown type %s", typeName)
	}
	f := def.Fields.ForName(field)
	if f == nil {
		return nil, ir.CompilationErrorf(ir.CodeUnknownType, "type %s has no field %s", typeName, field)
	}
	return f.Type, nil
}

// TypeEquivalenceHints maps every interface to the object types that
// implement it and every union to its members. Member lists are sorted.
func (s *Schema) TypeEquivalenceHints() map[string][]string {
	hints := make(map[string][]string)
	for name, def := range s.ast.Types {
		if def.BuiltIn {
			continue
		}
		switch def.Kind {
		case ast.Interface:
			var members []string
			for _, impl := range s.ast.GetPossibleTypes(def) {
				members = append(members, impl.Name)
			}
			if len(members) > 0 {
				slices.Sort(members)
				hints[name] = members
			}
		case ast.Union:
			members := slices.Clone(def.Types)
			slices.Sort(members)
			hints[name] = members
		}
	}
	return hints
}

// CheckMetadata verifies that every location registered in meta has a
// vertex type this schema declares, and that every edge leading to a
// registered location is a field of the type it is traversed from.
func (s *Schema) CheckMetadata(meta *ir.QueryMetadataTable) error {
	locs := meta.RegisteredLocations()
	for _, loc := range locs {
		info, err := meta.LocationInfo(loc)
		if err != nil {
			return err
		}
		for _, typ := range []*ast.Type{info.Type, info.CoercedFromType} {
			if typ == nil {
				continue
			}
			if name := typ.Name(); !s.HasType(name) {
				return ir.CompilationErrorf(ir.CodeUnknownType, "location %s has type %s, which the schema does not declare", loc, name)
			}
		}
	}
	for _, loc := range locs {
		parent, edge, ok := traversedFrom(loc)
		if !ok {
			continue
		}
		from, err := meta.TypeName(parent)
		if err != nil {
			// The parent vertex was never registered; nothing to check against.
			continue
		}
		if _, err := s.FieldType(from, edge); err != nil {
			return ir.CompilationErrorf(ir.CodeUnknownEdge, "location %s is reached through %s, which type %s does not declare", loc, edge, from)
		}
	}
	return nil
}

// traversedFrom returns the first visit of the vertex a location was
// reached from and the vertex field followed to reach it.
func traversedFrom(loc ir.BaseLocation) (ir.BaseLocation, string, bool) {
	switch l := loc.(type) {
	case ir.Location:
		path := l.QueryPath()
		if len(path) < 2 {
			return nil, "", false
		}
		parent, err := ir.NewLocation(path[:len(path)-1], "", 1)
		if err != nil {
			return nil, "", false
		}
		return parent, path[len(path)-1], true
	case ir.FoldScopeLocation:
		steps := l.FoldPath()
		if len(steps) == 0 {
			return nil, "", false
		}
		last := steps[len(steps)-1].VertexField()
		if len(steps) == 1 {
			return l.BaseLocation(), last, true
		}
		parent, err := ir.NewFoldScopeLocation(l.BaseLocation(), steps[:len(steps)-1], "")
		if err != nil {
			return nil, "", false
		}
		return parent, last, true
	}
	return nil, "", false
}
