package lowering

import (
	"slices"

	"github.com/roach88/graphc/internal/ir"
)

// OptionalRootInfo describes the optional scopes of a query.
//
// An optional root is the location marked immediately before an optional
// Traverse. A root is complex when its scope traverses further edges.
type OptionalRootInfo struct {
	// ComplexRoots lists complex roots in the order their scopes close.
	ComplexRoots []ir.Location

	// LocationRoots maps every marked location to the optional roots
	// enclosing it, outermost first.
	LocationRoots map[ir.Location][]ir.Location
}

// IsComplex reports whether root is a complex optional root.
func (o OptionalRootInfo) IsComplex(root ir.Location) bool {
	return slices.Contains(o.ComplexRoots, root)
}

// optionalScope is one open optional scope.
type optionalScope struct {
	root            ir.Location
	expandsVertices bool
}

// ExtractOptionalLocationRootInfo walks blocks outside any fold and records
// the optional scope structure. The scope stack is copied on every record so
// each location sees an immutable snapshot of its enclosing roots.
func ExtractOptionalLocationRootInfo(blocks []ir.Block) (OptionalRootInfo, error) {
	const pass = "extract_optional_location_root_info"
	info := OptionalRootInfo{LocationRoots: make(map[ir.Location][]ir.Location)}

	var scopes []optionalScope
	var preceding *ir.Location

	for _, b := range blocks {
		switch b.(type) {
		case ir.Traverse, ir.Recurse:
			if len(scopes) > 0 {
				scopes[len(scopes)-1].expandsVertices = true
			}
		}

		switch b := b.(type) {
		case ir.Traverse:
			if !b.Optional {
				continue
			}
			if preceding == nil {
				return OptionalRootInfo{}, ir.Assertf(pass, "optional Traverse %s has no preceding location", b.FieldName())
			}
			scopes = append(scopes, optionalScope{root: *preceding})
		case ir.EndOptional:
			if len(scopes) == 0 {
				return OptionalRootInfo{}, ir.Assertf(pass, "EndOptional without an open optional scope")
			}
			top := scopes[len(scopes)-1]
			if top.expandsVertices {
				info.ComplexRoots = append(info.ComplexRoots, top.root)
			}
			scopes = scopes[:len(scopes)-1]
		case ir.Backtrack:
			loc := b.Location
			preceding = &loc
		case ir.MarkLocation:
			loc, ok := b.Location.(ir.Location)
			if !ok {
				return OptionalRootInfo{}, ir.Assertf(pass, "unexpected fold location %s outside of a fold", b.Location)
			}
			roots := make([]ir.Location, len(scopes))
			for i, s := range scopes {
				roots[i] = s.root
			}
			info.LocationRoots[loc] = roots
			preceding = &loc
		}
	}
	if len(scopes) > 0 {
		return OptionalRootInfo{}, ir.Assertf(pass, "%d optional scopes are never closed", len(scopes))
	}
	return info, nil
}

// SimpleOptionalInfo describes a simple (non-complex) optional root.
type SimpleOptionalInfo struct {
	// InnerLocation is the only location marked inside the optional scope.
	InnerLocation ir.Location
	// EdgeField is the optional vertex field, e.g. "out_Animal_ParentOf".
	EdgeField string
}

// ExtractSimpleOptionalLocationInfo returns, for every simple optional root,
// the location inside its scope and the traversed edge field. Fold contents
// are ignored.
func ExtractSimpleOptionalLocationInfo(blocks []ir.Block, roots OptionalRootInfo) (map[ir.Location]SimpleOptionalInfo, error) {
	innerBySimpleRoot := make(map[ir.Location]ir.Location)
	for loc, enclosing := range roots.LocationRoots {
		if len(enclosing) == 0 {
			continue
		}
		root := enclosing[len(enclosing)-1]
		if !roots.IsComplex(root) {
			innerBySimpleRoot[root] = loc
		}
	}

	_, unfolded, err := ExtractFolds(blocks)
	if err != nil {
		return nil, err
	}

	out := make(map[ir.Location]SimpleOptionalInfo)
	var preceding ir.BaseLocation
	for _, b := range unfolded {
		switch b := b.(type) {
		case ir.MarkLocation:
			preceding = b.Location
		case ir.Traverse:
			if !b.Optional {
				continue
			}
			root, ok := preceding.(ir.Location)
			if !ok {
				continue
			}
			if inner, simple := innerBySimpleRoot[root]; simple {
				out[root] = SimpleOptionalInfo{InnerLocation: inner, EdgeField: b.FieldName()}
			}
		}
	}
	return out, nil
}
