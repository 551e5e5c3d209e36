package ir

import (
	"slices"

	"github.com/vektah/gqlparser/v2/ast"
)

// Expression is a sealed interface for IR steps that produce a value.
// Only the variants declared in this package implement it.
type Expression interface {
	expressionNode()
}

// Operator names a BinaryComposition operator.
type Operator string

const (
	OpEq           Operator = "="
	OpNe           Operator = "!="
	OpGe           Operator = ">="
	OpLe           Operator = "<="
	OpGt           Operator = ">"
	OpLt           Operator = "<"
	OpPlus         Operator = "+"
	OpOr           Operator = "||"
	OpAnd          Operator = "&&"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpIntersects   Operator = "intersects"
	OpHasSubstring Operator = "has_substring"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpLike         Operator = "LIKE"
	OpInstanceOf   Operator = "INSTANCEOF"
)

var binaryOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGe: true, OpLe: true, OpGt: true, OpLt: true,
	OpPlus: true, OpOr: true, OpAnd: true, OpContains: true, OpNotContains: true,
	OpIntersects: true, OpHasSubstring: true, OpStartsWith: true, OpEndsWith: true,
	OpLike: true, OpInstanceOf: true,
}

// OpSize is the only UnaryTransformation operator.
const OpSize = "size"

// Literal is a constant: nil, bool, int64, string, or []string.
type Literal struct {
	Value any
}

// Common literals.
var (
	TrueLiteral  = Literal{Value: true}
	FalseLiteral = Literal{Value: false}
	NullLiteral  = Literal{Value: nil}
	ZeroLiteral  = Literal{Value: int64(0)}
)

// Variable references a query argument such as "$name".
type Variable struct {
	Name string
	Type *ast.Type
}

// LocalField is a property of the vertex at the current position. Type may be nil.
type LocalField struct {
	Name string
	Type *ast.Type
}

// ContextField reads a field (or the vertex itself) at a marked location.
type ContextField struct {
	Location Location
	Type     *ast.Type
}

// GlobalContextField reads a field at a marked location from the global
// operations section. The location always points at a field.
type GlobalContextField struct {
	Location Location
	Type     *ast.Type
}

// OutputContextField is an output column read from a marked location's field.
type OutputContextField struct {
	Location Location
	Type     *ast.Type
}

// OutputContextVertex refers to a marked vertex inside the output block.
// Its location never carries a field.
type OutputContextVertex struct {
	Location Location
	Type     *ast.Type
}

// FoldedContextField is an output read from inside a @fold scope. Its type is
// a list of the field type, or Int for the count meta field.
type FoldedContextField struct {
	Location FoldScopeLocation
	Type     *ast.Type
}

// FoldCountContextField is the number of elements in a fold, used in filters.
type FoldCountContextField struct {
	Location FoldScopeLocation
}

// ContextFieldExistence tests whether an optional vertex exists. It must be
// lowered away before emission.
type ContextFieldExistence struct {
	Location Location
}

// UnaryTransformation applies Op (only "size") to Inner.
type UnaryTransformation struct {
	Op    string
	Inner Expression
}

// BinaryComposition combines two expressions with an operator.
type BinaryComposition struct {
	Op    Operator
	Left  Expression
	Right Expression
}

// TernaryConditional evaluates to IfTrue when Predicate holds, else IfFalse.
type TernaryConditional struct {
	Predicate Expression
	IfTrue    Expression
	IfFalse   Expression
}

// BetweenClause is Lower <= Field <= Upper.
type BetweenClause struct {
	Field LocalField
	Lower Expression
	Upper Expression
}

func (Literal) expressionNode()               {}
func (Variable) expressionNode()              {}
func (LocalField) expressionNode()            {}
func (ContextField) expressionNode()          {}
func (GlobalContextField) expressionNode()    {}
func (OutputContextField) expressionNode()    {}
func (OutputContextVertex) expressionNode()   {}
func (FoldedContextField) expressionNode()    {}
func (FoldCountContextField) expressionNode() {}
func (ContextFieldExistence) expressionNode() {}
func (UnaryTransformation) expressionNode()   {}
func (BinaryComposition) expressionNode()     {}
func (TernaryConditional) expressionNode()    {}
func (BetweenClause) expressionNode()         {}

// NewLiteral validates and normalizes a literal value.
func NewLiteral(value any) (Literal, error) {
	switch v := value.(type) {
	case nil, bool, int64, string:
		return Literal{Value: v}, nil
	case int:
		return Literal{Value: int64(v)}, nil
	case []string:
		return Literal{Value: slices.Clone(v)}, nil
	case []any:
		out := make([]string, len(v))
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return Literal{}, validationErrorf(CodeUnsupportedValue, "value", "list literals may only hold strings, got %T", elem)
			}
			out[i] = s
		}
		return Literal{Value: out}, nil
	}
	return Literal{}, validationErrorf(CodeUnsupportedValue, "value", "unsupported literal value %T", value)
}

// NewVariable validates a variable reference.
func NewVariable(name string, typ *ast.Type) (Variable, error) {
	if err := ValidateVariableName(name); err != nil {
		return Variable{}, err
	}
	if typ == nil {
		return Variable{}, validationErrorf(CodeInvalidType, "inferred_type", "variable %s has no inferred type", name)
	}
	return Variable{Name: name, Type: typ}, nil
}

// NewLocalField validates a local field reference.
func NewLocalField(name string, typ *ast.Type) (LocalField, error) {
	if err := ValidateSafeString(name); err != nil {
		return LocalField{}, err
	}
	return LocalField{Name: name, Type: typ}, nil
}

// NewBinaryComposition validates operator and operands.
func NewBinaryComposition(op Operator, left, right Expression) (BinaryComposition, error) {
	e := BinaryComposition{Op: op, Left: left, Right: right}
	return e, validateNode(e)
}

// IsNull reports whether e is the null literal.
func IsNull(e Expression) bool {
	l, ok := e.(Literal)
	return ok && l.Value == nil
}

// IsTrue reports whether e is the true literal.
func IsTrue(e Expression) bool {
	l, ok := e.(Literal)
	return ok && l.Value == true
}

// IsFalse reports whether e is the false literal.
func IsFalse(e Expression) bool {
	l, ok := e.(Literal)
	return ok && l.Value == false
}

// ValidateExpression checks e and every sub-expression.
func ValidateExpression(e Expression) error {
	var firstErr error
	Walk(e, func(node Expression) bool {
		if firstErr != nil {
			return false
		}
		firstErr = validateNode(node)
		return firstErr == nil
	})
	return firstErr
}

func validateNode(e Expression) error {
	switch e := e.(type) {
	case nil:
		return validationErrorf(CodeInvalidArgument, "expression", "missing expression")
	case Literal:
		_, err := NewLiteral(e.Value)
		return err
	case Variable:
		_, err := NewVariable(e.Name, e.Type)
		return err
	case LocalField:
		_, err := NewLocalField(e.Name, e.Type)
		return err
	case ContextField:
		return requireTyped("ContextField", e.Location, e.Type)
	case GlobalContextField:
		if !e.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "location", "GlobalContextField location must point at a field: %s", e.Location)
		}
		return requireTyped("GlobalContextField", e.Location, e.Type)
	case OutputContextField:
		if !e.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "location", "OutputContextField location must point at a field: %s", e.Location)
		}
		return requireTyped("OutputContextField", e.Location, e.Type)
	case OutputContextVertex:
		if e.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "location", "OutputContextVertex location must not point at a field: %s", e.Location)
		}
		return requireTyped("OutputContextVertex", e.Location, e.Type)
	case FoldedContextField:
		if e.Location.IsZero() || !e.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "fold_scope_location", "FoldedContextField location must point at a field: %s", e.Location)
		}
		if e.Type == nil {
			return validationErrorf(CodeInvalidType, "field_type", "FoldedContextField has no type")
		}
		if e.Location.Field() == CountMetaField {
			if !IsNamed(StripNonNull(e.Type), "Int") {
				return validationErrorf(CodeInvalidType, "field_type", "%s must be typed Int, got %s", CountMetaField, e.Type)
			}
		} else if !IsListType(e.Type) {
			return validationErrorf(CodeInvalidType, "field_type", "FoldedContextField must have a list type, got %s", e.Type)
		}
	case FoldCountContextField:
		if e.Location.IsZero() || e.Location.Field() != CountMetaField {
			return validationErrorf(CodeInvalidLocation, "fold_scope_location", "FoldCountContextField must point at %s: %s", CountMetaField, e.Location)
		}
	case ContextFieldExistence:
		if e.Location.IsZero() || e.Location.HasField() {
			return validationErrorf(CodeInvalidLocation, "location", "ContextFieldExistence must point at a vertex: %s", e.Location)
		}
	case UnaryTransformation:
		if e.Op != OpSize {
			return validationErrorf(CodeInvalidOperator, "operator", "unsupported unary operator %q", e.Op)
		}
		if e.Inner == nil {
			return validationErrorf(CodeInvalidArgument, "inner_expression", "missing operand")
		}
	case BinaryComposition:
		if !binaryOperators[e.Op] {
			return validationErrorf(CodeInvalidOperator, "operator", "unsupported binary operator %q", e.Op)
		}
		if e.Left == nil || e.Right == nil {
			return validationErrorf(CodeInvalidArgument, "operands", "binary composition %q is missing an operand", e.Op)
		}
	case TernaryConditional:
		if e.Predicate == nil || e.IfTrue == nil || e.IfFalse == nil {
			return validationErrorf(CodeInvalidArgument, "operands", "ternary conditional is missing an operand")
		}
	case BetweenClause:
		if _, err := NewLocalField(e.Field.Name, e.Field.Type); err != nil {
			return err
		}
		if e.Lower == nil || e.Upper == nil {
			return validationErrorf(CodeInvalidArgument, "bounds", "between clause is missing a bound")
		}
	default:
		return validationErrorf(CodeInvalidArgument, "expression", "unknown expression type %T", e)
	}
	return nil
}

func requireTyped(kind string, loc Location, typ *ast.Type) error {
	if loc.IsZero() {
		return validationErrorf(CodeInvalidLocation, "location", "%s has no location", kind)
	}
	if typ == nil {
		return validationErrorf(CodeInvalidType, "field_type", "%s at %s has no type", kind, loc)
	}
	return nil
}
