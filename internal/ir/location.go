package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is the direction an edge is traversed in.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Inverse returns the opposite direction.
func (d Direction) Inverse() Direction {
	if d == In {
		return Out
	}
	return In
}

// Valid reports whether d is In or Out.
func (d Direction) Valid() bool {
	return d == In || d == Out
}

// EdgeStep is one hop of a path: a direction plus an edge name.
type EdgeStep struct {
	Direction Direction
	Edge      string
}

// VertexField returns the schema field name for the step, e.g. "out_Animal_ParentOf".
func (s EdgeStep) VertexField() string {
	return string(s.Direction) + "_" + s.Edge
}

// ParseVertexField splits a vertex field name such as "in_Animal_ParentOf"
// into its direction and edge name.
func ParseVertexField(name string) (EdgeStep, error) {
	switch {
	case strings.HasPrefix(name, "out_") && len(name) > 4:
		return EdgeStep{Direction: Out, Edge: name[4:]}, nil
	case strings.HasPrefix(name, "in_") && len(name) > 3:
		return EdgeStep{Direction: In, Edge: name[3:]}, nil
	}
	return EdgeStep{}, validationErrorf(CodeInvalidLocation, "vertex_field", "not a vertex field name: %q", name)
}

// pathSep joins path elements inside the comparable location encodings.
// It cannot occur in a safe string.
const pathSep = "\x00"

// BaseLocation is implemented by Location and FoldScopeLocation. Both are
// comparable values and may be used directly as map keys.
type BaseLocation interface {
	// MarkName is the canonical name under which the location is marked.
	MarkName() string
	// Field is the property field the location points at, or "".
	Field() string
	HasField() bool
	String() string

	baseLocation()
}

// Location addresses a vertex (or one of its fields) reached by following a
// path of vertex fields from a root type.
//
// The first element of the query path is the root type name; every further
// element is a vertex field name. The visit counter distinguishes repeated
// visits of the same path.
type Location struct {
	path  string
	field string
	visit int
}

func (Location) baseLocation() {}

// NewLocation builds a Location. visitCounter must be at least 1.
func NewLocation(queryPath []string, field string, visitCounter int) (Location, error) {
	if len(queryPath) == 0 {
		return Location{}, validationErrorf(CodeEmptyCollection, "query_path", "location query path must not be empty")
	}
	for _, p := range queryPath {
		if err := ValidateSafeString(p); err != nil {
			return Location{}, err
		}
	}
	if field != "" {
		if err := ValidateSafeString(field); err != nil {
			return Location{}, err
		}
	}
	if visitCounter < 1 {
		return Location{}, validationErrorf(CodeInvalidLocation, "visit_counter", "visit counter must be >= 1, got %d", visitCounter)
	}
	return Location{path: strings.Join(queryPath, pathSep), field: field, visit: visitCounter}, nil
}

// RootLocation is the first visit of the root vertex of the given type.
func RootLocation(typeName string) (Location, error) {
	return NewLocation([]string{typeName}, "", 1)
}

// QueryPath returns a copy of the path elements.
func (l Location) QueryPath() []string {
	if l.path == "" {
		return nil
	}
	return strings.Split(l.path, pathSep)
}

func (l Location) Field() string     { return l.field }
func (l Location) HasField() bool    { return l.field != "" }
func (l Location) VisitCounter() int { return l.visit }

// IsZero reports whether l is the zero Location.
func (l Location) IsZero() bool { return l.path == "" }

// NavigateToSubpath follows a vertex field from a vertex location.
func (l Location) NavigateToSubpath(child string) (Location, error) {
	if l.HasField() {
		return Location{}, validationErrorf(CodeInvalidLocation, "field", "cannot navigate to subpath %q from field location %s", child, l)
	}
	if _, err := ParseVertexField(child); err != nil {
		return Location{}, err
	}
	if err := ValidateSafeString(child); err != nil {
		return Location{}, err
	}
	return Location{path: l.path + pathSep + child, visit: 1}, nil
}

// NavigateToField points the location at a property field.
func (l Location) NavigateToField(name string) (Location, error) {
	if l.HasField() {
		return Location{}, validationErrorf(CodeInvalidLocation, "field", "location %s already points at a field", l)
	}
	if err := ValidateSafeString(name); err != nil {
		return Location{}, err
	}
	return Location{path: l.path, field: name, visit: l.visit}, nil
}

// NavigateToFold enters a @fold scope along the given vertex field.
func (l Location) NavigateToFold(child string) (FoldScopeLocation, error) {
	if l.HasField() {
		return FoldScopeLocation{}, validationErrorf(CodeInvalidLocation, "field", "cannot fold from field location %s", l)
	}
	step, err := ParseVertexField(child)
	if err != nil {
		return FoldScopeLocation{}, err
	}
	return FoldScopeLocation{base: l, fold: encodeStep(step)}, nil
}

// Revisit returns a fresh identity for the same vertex path.
func (l Location) Revisit() Location {
	return Location{path: l.path, visit: l.visit + 1}
}

// AtVertex drops the field component.
func (l Location) AtVertex() Location {
	return Location{path: l.path, visit: l.visit}
}

// Relocate moves l's field onto another vertex location.
func (l Location) Relocate(vertex Location) Location {
	return Location{path: vertex.path, field: l.field, visit: vertex.visit}
}

// MarkName returns e.g. "Animal__out_Animal_ParentOf___1".
func (l Location) MarkName() string {
	return strings.ReplaceAll(l.path, pathSep, "__") + "___" + strconv.Itoa(l.visit)
}

func (l Location) String() string {
	if l.HasField() {
		return fmt.Sprintf("Location(%s.%s)", l.MarkName(), l.field)
	}
	return fmt.Sprintf("Location(%s)", l.MarkName())
}

// FoldScopeLocation addresses a vertex (or field) inside a @fold scope:
// the fold is rooted at a base Location and the fold path is followed from it.
type FoldScopeLocation struct {
	base  Location
	fold  string
	field string
}

func (FoldScopeLocation) baseLocation() {}

func encodeStep(s EdgeStep) string {
	return string(s.Direction) + "_" + s.Edge
}

// NewFoldScopeLocation builds a FoldScopeLocation. The fold path must be non-empty
// and the base location must point at a vertex.
func NewFoldScopeLocation(base Location, foldPath []EdgeStep, field string) (FoldScopeLocation, error) {
	if base.IsZero() || base.HasField() {
		return FoldScopeLocation{}, validationErrorf(CodeInvalidLocation, "base_location", "fold base must be a vertex location, got %s", base)
	}
	if len(foldPath) == 0 {
		return FoldScopeLocation{}, validationErrorf(CodeEmptyCollection, "fold_path", "fold path must not be empty")
	}
	parts := make([]string, len(foldPath))
	for i, s := range foldPath {
		if !s.Direction.Valid() {
			return FoldScopeLocation{}, validationErrorf(CodeInvalidDirection, "fold_path", "invalid direction %q", s.Direction)
		}
		if err := ValidateSafeString(s.Edge); err != nil {
			return FoldScopeLocation{}, err
		}
		parts[i] = encodeStep(s)
	}
	if field != "" {
		if err := ValidateSafeString(field); err != nil {
			return FoldScopeLocation{}, err
		}
	}
	return FoldScopeLocation{base: base, fold: strings.Join(parts, pathSep), field: field}, nil
}

// BaseLocation is the vertex the fold is rooted at.
func (f FoldScopeLocation) BaseLocation() Location { return f.base }

// FoldPath returns a copy of the edge steps followed inside the fold.
func (f FoldScopeLocation) FoldPath() []EdgeStep {
	if f.fold == "" {
		return nil
	}
	raw := strings.Split(f.fold, pathSep)
	out := make([]EdgeStep, len(raw))
	for i, r := range raw {
		// Encoded steps always parse: they were built from valid EdgeSteps.
		out[i], _ = ParseVertexField(r)
	}
	return out
}

// FirstFoldedEdge is the edge that opens the fold. ok is false for the
// zero FoldScopeLocation.
func (f FoldScopeLocation) FirstFoldedEdge() (step EdgeStep, ok bool) {
	path := f.FoldPath()
	if len(path) == 0 {
		return EdgeStep{}, false
	}
	return path[0], true
}

func (f FoldScopeLocation) Field() string  { return f.field }
func (f FoldScopeLocation) HasField() bool { return f.field != "" }

// IsZero reports whether f is the zero FoldScopeLocation.
func (f FoldScopeLocation) IsZero() bool { return f.fold == "" }

// NavigateToSubpath follows a further vertex field inside the fold.
func (f FoldScopeLocation) NavigateToSubpath(child string) (FoldScopeLocation, error) {
	if f.HasField() {
		return FoldScopeLocation{}, validationErrorf(CodeInvalidLocation, "field", "cannot navigate to subpath %q from field location %s", child, f)
	}
	step, err := ParseVertexField(child)
	if err != nil {
		return FoldScopeLocation{}, err
	}
	return FoldScopeLocation{base: f.base, fold: f.fold + pathSep + encodeStep(step)}, nil
}

// NavigateToField points the fold scope location at a property field.
func (f FoldScopeLocation) NavigateToField(name string) (FoldScopeLocation, error) {
	if f.HasField() {
		return FoldScopeLocation{}, validationErrorf(CodeInvalidLocation, "field", "location %s already points at a field", f)
	}
	if err := ValidateSafeString(name); err != nil {
		return FoldScopeLocation{}, err
	}
	return FoldScopeLocation{base: f.base, fold: f.fold, field: name}, nil
}

// AtVertex drops the field component.
func (f FoldScopeLocation) AtVertex() FoldScopeLocation {
	return FoldScopeLocation{base: f.base, fold: f.fold}
}

// WithBase re-roots the fold at another vertex location.
func (f FoldScopeLocation) WithBase(base Location) FoldScopeLocation {
	return FoldScopeLocation{base: base.AtVertex(), fold: f.fold, field: f.field}
}

// Root returns the location of the vertex the fold's first edge leads to.
func (f FoldScopeLocation) Root() FoldScopeLocation {
	first, _, _ := strings.Cut(f.fold, pathSep)
	return FoldScopeLocation{base: f.base, fold: first}
}

// MarkName names the whole fold: base mark name plus the first folded edge,
// e.g. "Animal___1_out_Animal_ParentOf". Every location inside one fold
// shares it.
func (f FoldScopeLocation) MarkName() string {
	first, _ := f.FirstFoldedEdge()
	return f.base.MarkName() + "_" + string(first.Direction) + "_" + first.Edge
}

// PathName names the vertex at the end of the full fold path. It equals
// MarkName for the fold root.
func (f FoldScopeLocation) PathName() string {
	var b strings.Builder
	b.WriteString(f.base.MarkName())
	for _, s := range f.FoldPath() {
		b.WriteString("_")
		b.WriteString(string(s.Direction))
		b.WriteString("_")
		b.WriteString(s.Edge)
	}
	return b.String()
}

func (f FoldScopeLocation) String() string {
	if f.HasField() {
		return fmt.Sprintf("FoldScopeLocation(%s.%s)", f.PathName(), f.field)
	}
	return fmt.Sprintf("FoldScopeLocation(%s)", f.PathName())
}
