package queryir

// Query is a relational query. Select is the only variant.
type Query interface {
	queryNode()
}

// Predicate is a boolean condition over operands.
type Predicate interface {
	predicateNode()
}

// Operand is a scalar or list-valued input of a predicate.
type Operand interface {
	operandNode()
}

// Table is a table reference with the alias it is bound to.
type Table struct {
	Name  string
	Alias string
}

// JoinKind selects between inner and left outer joins.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER"
	LeftJoin  JoinKind = "LEFT"
)

// Join attaches Table to the query when On holds. Left joins keep rows
// without a match and fill the joined columns with NULL.
type Join struct {
	Kind  JoinKind
	Table Table
	On    Predicate
}

// Column is one output column.
type Column struct {
	Ref ColumnRef
	As  string
}

// Select represents
//
//	SELECT <columns> FROM <from> <joins> WHERE <where>
//
// Columns are emitted in slice order; the lowering sorts them by alias.
type Select struct {
	From    Table
	Joins   []Join
	Where   Predicate // nil = no filter
	Columns []Column
}

func (Select) queryNode() {}

// ColumnRef reads a column of the table bound to alias Table.
type ColumnRef struct {
	Table  string
	Column string
}

// Param is a named query argument supplied at execution time.
type Param struct {
	Name string
}

// Value is a literal argument: nil, bool, int64, string or []string.
type Value struct {
	Value any
}

func (ColumnRef) operandNode() {}
func (Param) operandNode()     {}
func (Value) operandNode()     {}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Compare is <left> <op> <right>.
type Compare struct {
	Op          CompareOp
	Left, Right Operand
}

// And holds when every predicate holds; an empty And is always true.
type And struct {
	Predicates []Predicate
}

// Or holds when any predicate holds; an empty Or is always false.
type Or struct {
	Predicates []Predicate
}

// IsNull is <operand> IS NULL, or IS NOT NULL when Negate is set.
type IsNull struct {
	Operand Operand
	Negate  bool
}

// In is <needle> IN <haystack>. Haystack is a list Value or a Param bound
// to a list.
type In struct {
	Needle   Operand
	Haystack Operand
}

func (Compare) predicateNode() {}
func (And) predicateNode()     {}
func (Or) predicateNode()      {}
func (IsNull) predicateNode()  {}
func (In) predicateNode()      {}

// Conjoin returns the And of preds, flattening a single predicate and
// dropping nils.
func Conjoin(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}
