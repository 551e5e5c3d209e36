package ir

import (
	"slices"
	"sort"
)

// Block is a sealed interface for IR steps that produce no value.
type Block interface {
	blockNode()
}

// QueryRoot starts the query at every vertex of the given classes.
type QueryRoot struct {
	Classes []string
}

// CoerceType narrows the current vertex to the given classes.
type CoerceType struct {
	Classes []string
}

// Filter keeps the current row only if Predicate holds.
type Filter struct {
	Predicate Expression
}

// MarkLocation names the current position. Location is a Location or a
// FoldScopeLocation and never points at a field.
type MarkLocation struct {
	Location BaseLocation
}

// Traverse follows an edge from the current vertex.
type Traverse struct {
	Direction           Direction
	Edge                string
	Optional            bool
	WithinOptionalScope bool
}

// Recurse follows an edge repeatedly, 0..Depth times.
type Recurse struct {
	Direction           Direction
	Edge                string
	Depth               int
	WithinOptionalScope bool
}

// Backtrack returns to a previously marked location.
type Backtrack struct {
	Location Location
	Optional bool
}

// ConstructResult is the output block: output name to value expression.
type ConstructResult struct {
	Fields map[string]Expression
}

// Fold opens a @fold scope.
type Fold struct {
	Location FoldScopeLocation
}

// Unfold closes the innermost @fold scope.
type Unfold struct{}

// OutputSource marks the vertex that drives the result row count.
type OutputSource struct{}

// EndOptional closes an @optional scope.
type EndOptional struct{}

// GlobalOperationsStart separates traversal blocks from global filters and output.
type GlobalOperationsStart struct{}

func (QueryRoot) blockNode()             {}
func (CoerceType) blockNode()            {}
func (Filter) blockNode()                {}
func (MarkLocation) blockNode()          {}
func (Traverse) blockNode()              {}
func (Recurse) blockNode()               {}
func (Backtrack) blockNode()             {}
func (ConstructResult) blockNode()       {}
func (Fold) blockNode()                  {}
func (Unfold) blockNode()                {}
func (OutputSource) blockNode()          {}
func (EndOptional) blockNode()           {}
func (GlobalOperationsStart) blockNode() {}

// FieldName returns the vertex field traversed, e.g. "out_Animal_ParentOf".
func (t Traverse) FieldName() string {
	return string(t.Direction) + "_" + t.Edge
}

// FieldName returns the vertex field recursed over.
func (r Recurse) FieldName() string {
	return string(r.Direction) + "_" + r.Edge
}

// SortedNames returns output names in lexical order.
func (c ConstructResult) SortedNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func classSet(field string, classes []string) ([]string, error) {
	if len(classes) == 0 {
		return nil, validationErrorf(CodeEmptyCollection, field, "class set must not be empty")
	}
	out := slices.Clone(classes)
	for _, c := range out {
		if err := ValidateSafeString(c); err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return slices.Compact(out), nil
}

// NewQueryRoot validates, sorts and de-duplicates the start classes.
func NewQueryRoot(classes ...string) (QueryRoot, error) {
	set, err := classSet("start_class", classes)
	return QueryRoot{Classes: set}, err
}

// NewCoerceType validates, sorts and de-duplicates the target classes.
func NewCoerceType(classes ...string) (CoerceType, error) {
	set, err := classSet("target_class", classes)
	return CoerceType{Classes: set}, err
}

// NewFilter validates the predicate.
func NewFilter(predicate Expression) (Filter, error) {
	if err := ValidateExpression(predicate); err != nil {
		return Filter{}, err
	}
	return Filter{Predicate: predicate}, nil
}

// NewMarkLocation requires a vertex location.
func NewMarkLocation(loc BaseLocation) (MarkLocation, error) {
	b := MarkLocation{Location: loc}
	return b, ValidateBlock(b)
}

// NewTraverse validates direction and edge name.
func NewTraverse(dir Direction, edge string, optional, withinOptionalScope bool) (Traverse, error) {
	b := Traverse{Direction: dir, Edge: edge, Optional: optional, WithinOptionalScope: withinOptionalScope}
	return b, ValidateBlock(b)
}

// NewRecurse validates direction, edge name and depth.
func NewRecurse(dir Direction, edge string, depth int, withinOptionalScope bool) (Recurse, error) {
	b := Recurse{Direction: dir, Edge: edge, Depth: depth, WithinOptionalScope: withinOptionalScope}
	return b, ValidateBlock(b)
}

// NewBacktrack requires a vertex location.
func NewBacktrack(loc Location, optional bool) (Backtrack, error) {
	b := Backtrack{Location: loc, Optional: optional}
	return b, ValidateBlock(b)
}

// NewConstructResult validates output names and expressions.
func NewConstructResult(fields map[string]Expression) (ConstructResult, error) {
	b := ConstructResult{Fields: fields}
	return b, ValidateBlock(b)
}

// NewFold requires a fold scope location without a field.
func NewFold(loc FoldScopeLocation) (Fold, error) {
	b := Fold{Location: loc}
	return b, ValidateBlock(b)
}

// ValidateBlock checks a block's shape constraints, including its expressions.
func ValidateBlock(b Block) error {
	switch b := b.(type) {
	case QueryRoot:
		_, err := classSet("start_class", b.Classes)
		return err
	case CoerceType:
		_, err := classSet("target_class", b.Classes)
		return err
	case Filter:
		return ValidateExpression(b.Predicate)
	case MarkLocation:
		if b.Location == nil {
			return validationErrorf(CodeInvalidLocation, "location", "MarkLocation has no location")
		}
		if b.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "location", "MarkLocation must point at a vertex: %s", b.Location)
		}
	case Traverse:
		return validateEdge(b.Direction, b.Edge)
	case Recurse:
		if b.Depth < 1 {
			return validationErrorf(CodeInvalidDepth, "depth", "recursion depth must be >= 1, got %d", b.Depth)
		}
		return validateEdge(b.Direction, b.Edge)
	case Backtrack:
		if b.Location.IsZero() || b.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "location", "Backtrack must point at a vertex: %s", b.Location)
		}
	case ConstructResult:
		if len(b.Fields) == 0 {
			return validationErrorf(CodeEmptyCollection, "fields", "ConstructResult must have at least one output")
		}
		for _, name := range b.SortedNames() {
			if err := ValidateSafeString(name); err != nil {
				return err
			}
			if err := ValidateExpression(b.Fields[name]); err != nil {
				return err
			}
		}
	case Fold:
		if b.Location.IsZero() || b.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "fold_scope_location", "Fold must point at a vertex: %s", b.Location)
		}
	case Unfold, OutputSource, EndOptional, GlobalOperationsStart:
	case nil:
		return validationErrorf(CodeInvalidArgument, "block", "missing block")
	default:
		return validationErrorf(CodeInvalidArgument, "block", "unknown block type %T", b)
	}
	return nil
}

func validateEdge(dir Direction, edge string) error {
	if !dir.Valid() {
		return validationErrorf(CodeInvalidDirection, "direction", "invalid direction %q", dir)
	}
	return ValidateSafeString(edge)
}

// ValidateBlocks validates every block of a list.
func ValidateBlocks(blocks []Block) error {
	for _, b := range blocks {
		if err := ValidateBlock(b); err != nil {
			return err
		}
	}
	return nil
}

// VisitBlockExpressions rewrites every expression held by b. Blocks without
// expressions are returned unchanged.
func VisitBlockExpressions(b Block, fn func(Expression) Expression) Block {
	switch b := b.(type) {
	case Filter:
		return Filter{Predicate: VisitAndUpdate(b.Predicate, fn)}
	case ConstructResult:
		fields := make(map[string]Expression, len(b.Fields))
		for name, e := range b.Fields {
			fields[name] = VisitAndUpdate(e, fn)
		}
		return ConstructResult{Fields: fields}
	}
	return b
}

// VisitAllExpressions applies VisitBlockExpressions to each block, returning a new list.
func VisitAllExpressions(blocks []Block, fn func(Expression) Expression) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = VisitBlockExpressions(b, fn)
	}
	return out
}

// BlocksEqual compares two blocks structurally.
func BlocksEqual(a, b Block) bool {
	switch a := a.(type) {
	case QueryRoot:
		bb, ok := b.(QueryRoot)
		return ok && slices.Equal(a.Classes, bb.Classes)
	case CoerceType:
		bb, ok := b.(CoerceType)
		return ok && slices.Equal(a.Classes, bb.Classes)
	case Filter:
		bb, ok := b.(Filter)
		return ok && Equal(a.Predicate, bb.Predicate)
	case MarkLocation:
		bb, ok := b.(MarkLocation)
		return ok && a.Location == bb.Location
	case ConstructResult:
		bb, ok := b.(ConstructResult)
		if !ok || len(a.Fields) != len(bb.Fields) {
			return false
		}
		for name, e := range a.Fields {
			if !Equal(e, bb.Fields[name]) {
				return false
			}
		}
		return true
	case Traverse, Recurse, Backtrack, Fold, Unfold, OutputSource, EndOptional, GlobalOperationsStart:
		return a == b
	}
	return false
}
