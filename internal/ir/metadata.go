package ir

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// LocationInfo describes one vertex location of a query.
type LocationInfo struct {
	// Type is the named schema type of the vertex at this location.
	Type *ast.Type

	// CoercedFromType is set when a type coercion narrowed the vertex from
	// this wider type.
	CoercedFromType *ast.Type

	OptionalScopesDepth  int
	RecursiveScopesDepth int
	IsWithinFold         bool

	// ParentLocation is nil for the query root.
	ParentLocation BaseLocation
}

// QueryMetadataTable holds per-location facts collected by the front end.
// It is populated once before compilation and only read afterwards.
type QueryMetadataTable struct {
	locations map[BaseLocation]LocationInfo
	order     []BaseLocation
	revisits  map[Location]Location
}

// NewQueryMetadataTable returns an empty table.
func NewQueryMetadataTable() *QueryMetadataTable {
	return &QueryMetadataTable{
		locations: make(map[BaseLocation]LocationInfo),
		revisits:  make(map[Location]Location),
	}
}

// AtVertex drops the field component of either location kind.
func AtVertex(loc BaseLocation) BaseLocation {
	switch l := loc.(type) {
	case Location:
		return l.AtVertex()
	case FoldScopeLocation:
		return l.AtVertex()
	}
	return loc
}

// RegisterLocation records info for a vertex location. Each location may be
// registered once.
func (t *QueryMetadataTable) RegisterLocation(loc BaseLocation, info LocationInfo) error {
	if loc == nil || loc.HasField() {
		return validationErrorf(CodeInvalidLocation, "location", "only vertex locations may be registered: %v", loc)
	}
	if info.Type == nil {
		return validationErrorf(CodeInvalidType, "type", "location %s registered without a type", loc)
	}
	if _, ok := t.locations[loc]; ok {
		return validationErrorf(CodeDuplicateLocation, "location", "location %s is already registered", loc)
	}
	t.locations[loc] = info
	t.order = append(t.order, loc)
	return nil
}

// LocationInfo returns the info registered for the vertex of loc.
func (t *QueryMetadataTable) LocationInfo(loc BaseLocation) (LocationInfo, error) {
	info, ok := t.locations[AtVertex(loc)]
	if !ok {
		return LocationInfo{}, Assertf("metadata", "location %s is not registered", loc)
	}
	return info, nil
}

// TypeName returns the schema type name of the vertex of loc.
func (t *QueryMetadataTable) TypeName(loc BaseLocation) (string, error) {
	info, err := t.LocationInfo(loc)
	if err != nil {
		return "", err
	}
	return info.Type.Name(), nil
}

// RecordCoercion narrows a registered location's type.
func (t *QueryMetadataTable) RecordCoercion(loc BaseLocation, to *ast.Type) error {
	info, err := t.LocationInfo(loc)
	if err != nil {
		return err
	}
	if info.CoercedFromType != nil {
		return Assertf("metadata", "location %s was already coerced", loc)
	}
	info.CoercedFromType = info.Type
	info.Type = to
	t.locations[AtVertex(loc)] = info
	return nil
}

// RegisterRevisit records that revisit is a fresh identity of origin.
func (t *QueryMetadataTable) RegisterRevisit(revisit, origin Location) {
	if o, ok := t.revisits[origin]; ok {
		origin = o
	}
	t.revisits[revisit] = origin
}

// RevisitOrigin returns the first visit of a revisited location.
func (t *QueryMetadataTable) RevisitOrigin(loc Location) (Location, bool) {
	o, ok := t.revisits[loc]
	return o, ok
}

// RegisteredLocations lists locations in registration order.
func (t *QueryMetadataTable) RegisteredLocations() []BaseLocation {
	out := make([]BaseLocation, len(t.order))
	copy(out, t.order)
	return out
}

// Revisits returns a copy of the revisit-to-origin mapping.
func (t *QueryMetadataTable) Revisits() map[Location]Location {
	out := make(map[Location]Location, len(t.revisits))
	for k, v := range t.revisits {
		out[k] = v
	}
	return out
}
