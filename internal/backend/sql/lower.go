// Package sql lowers a subset of IR into a relational query: vertex types
// map to tables and edges to joins on column pairs.
package sql

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
	"github.com/roach88/graphc/internal/queryir"
	"github.com/roach88/graphc/internal/querysql"
	"github.com/roach88/graphc/internal/sanity"
)

// JoinDescriptor joins the table of a vertex to the table across an edge:
// source.FromColumn = destination.ToColumn.
type JoinDescriptor struct {
	FromColumn string `yaml:"from_column" json:"from_column"`
	ToColumn   string `yaml:"to_column" json:"to_column"`
}

// Schema describes how the graph maps onto tables.
type Schema struct {
	// Tables maps vertex type names to table names.
	Tables map[string]string `yaml:"tables" json:"tables"`

	// Joins maps a vertex type name and a vertex field such as
	// "out_Animal_ParentOf" to its join.
	Joins map[string]map[string]JoinDescriptor `yaml:"joins" json:"joins"`
}

// Digest hashes the canonical form of the mapping. Compiled SQL depends
// on the mapping, so cache keys include it.
func (s Schema) Digest() (string, error) {
	tables := make(map[string]any, len(s.Tables))
	for k, v := range s.Tables {
		tables[k] = v
	}
	joins := make(map[string]any, len(s.Joins))
	for typeName, fields := range s.Joins {
		m := make(map[string]any, len(fields))
		for field, d := range fields {
			m[field] = []string{d.FromColumn, d.ToColumn}
		}
		joins[typeName] = m
	}
	data, err := ir.MarshalCanonical(map[string]any{"tables": tables, "joins": joins})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s Schema) table(typeName string) (string, error) {
	t, ok := s.Tables[typeName]
	if !ok {
		return "", ir.CompilationErrorf(ir.CodeUnknownType, "no table for vertex type %s", typeName)
	}
	return t, nil
}

func (s Schema) join(typeName, vertexField string) (JoinDescriptor, error) {
	d, ok := s.Joins[typeName][vertexField]
	if !ok {
		return JoinDescriptor{}, ir.CompilationErrorf(ir.CodeUnknownEdge, "no join for %s.%s", typeName, vertexField)
	}
	return d, nil
}

const lowerPass = "lower_to_query_ir"

// pendingStep is a root lookup or join whose destination alias is not known
// until its MarkLocation.
type pendingStep struct {
	rootTable string
	fromAlias string
	join      JoinDescriptor
	kind      queryir.JoinKind
	filters   []ir.Expression
}

// state tracks which table alias every marked location is bound to while
// walking the blocks.
type state struct {
	schema  Schema
	meta    *ir.QueryMetadataTable
	aliases map[ir.Location]string
	current ir.Location
	pending *pendingStep
	sel     queryir.Select
	where   []queryir.Predicate
	rooted  bool
}

func (s *state) aliasOf(loc ir.Location) (string, error) {
	alias, ok := s.aliases[loc.AtVertex()]
	if !ok {
		return "", ir.Assertf(lowerPass, "location %s was never marked", loc)
	}
	return alias, nil
}

func (s *state) block(b ir.Block) error {
	switch b := b.(type) {
	case ir.QueryRoot:
		if s.rooted || s.pending != nil {
			return ir.Assertf(lowerPass, "QueryRoot after the query was rooted")
		}
		if len(b.Classes) != 1 {
			return ir.NotImplementedf("SQL query root over %d classes", len(b.Classes))
		}
		table, err := s.schema.table(b.Classes[0])
		if err != nil {
			return err
		}
		s.pending = &pendingStep{rootTable: table}
		return nil

	case ir.Traverse:
		if s.pending != nil || s.current.IsZero() {
			return ir.Assertf(lowerPass, "Traverse without a marked source location")
		}
		from, err := s.aliasOf(s.current)
		if err != nil {
			return err
		}
		typeName, err := s.meta.TypeName(s.current)
		if err != nil {
			return err
		}
		desc, err := s.schema.join(typeName, b.FieldName())
		if err != nil {
			return err
		}
		kind := queryir.InnerJoin
		if b.Optional || b.WithinOptionalScope {
			kind = queryir.LeftJoin
		}
		s.pending = &pendingStep{fromAlias: from, join: desc, kind: kind}
		return nil

	case ir.Filter:
		if s.pending == nil {
			return ir.NotImplementedf("SQL filters outside of a vertex step")
		}
		s.pending.filters = append(s.pending.filters, b.Predicate)
		return nil

	case ir.MarkLocation:
		loc, ok := b.Location.(ir.Location)
		if !ok {
			return ir.NotImplementedf("SQL fold scopes")
		}
		return s.mark(loc)

	case ir.Backtrack:
		if s.pending != nil {
			return ir.Assertf(lowerPass, "Backtrack inside an unmarked step")
		}
		if _, err := s.aliasOf(b.Location); err != nil {
			return err
		}
		s.current = b.Location
		return nil

	case ir.EndOptional, ir.OutputSource, ir.GlobalOperationsStart:
		return nil

	case ir.ConstructResult:
		return s.output(b)
	}
	return ir.NotImplementedf("SQL lowering of %T blocks", b)
}

// mark binds loc to a new alias for the pending step, or to the current
// alias when loc revisits the current location.
func (s *state) mark(loc ir.Location) error {
	if s.pending == nil {
		if s.current.IsZero() {
			return ir.Assertf(lowerPass, "MarkLocation %s before any step", loc)
		}
		alias, err := s.aliasOf(s.current)
		if err != nil {
			return err
		}
		s.aliases[loc] = alias
		s.current = loc
		return nil
	}

	step := s.pending
	s.pending = nil
	alias := loc.MarkName()

	if step.rootTable != "" {
		s.sel.From = queryir.Table{Name: step.rootTable, Alias: alias}
		s.rooted = true
	} else {
		typeName, err := s.meta.TypeName(loc)
		if err != nil {
			return err
		}
		table, err := s.schema.table(typeName)
		if err != nil {
			return err
		}
		s.sel.Joins = append(s.sel.Joins, queryir.Join{
			Kind:  step.kind,
			Table: queryir.Table{Name: table, Alias: alias},
			On: queryir.Compare{
				Op:    queryir.OpEq,
				Left:  queryir.ColumnRef{Table: step.fromAlias, Column: step.join.FromColumn},
				Right: queryir.ColumnRef{Table: alias, Column: step.join.ToColumn},
			},
		})
	}
	s.aliases[loc] = alias
	s.current = loc

	for _, f := range step.filters {
		pred, err := predicate(f, alias)
		if err != nil {
			return err
		}
		if pred == nil {
			continue
		}
		if step.kind == queryir.LeftJoin {
			pred = queryir.Or{Predicates: []queryir.Predicate{
				queryir.IsNull{Operand: queryir.ColumnRef{Table: alias, Column: step.join.ToColumn}},
				pred,
			}}
		}
		s.where = append(s.where, pred)
	}
	return nil
}

func (s *state) output(c ir.ConstructResult) error {
	for _, name := range c.SortedNames() {
		field, ok := outputField(c.Fields[name])
		if !ok {
			return ir.NotImplementedf("SQL output %s of kind %T", name, c.Fields[name])
		}
		alias, err := s.aliasOf(field.Location)
		if err != nil {
			return err
		}
		s.sel.Columns = append(s.sel.Columns, queryir.Column{
			Ref: queryir.ColumnRef{Table: alias, Column: field.Location.Field()},
			As:  name,
		})
	}
	return nil
}

// outputField accepts a plain output field, or the optional output form
// (exists(loc) ? loc.field : null), which a left join already yields as
// NULL when loc is missing.
func outputField(e ir.Expression) (ir.OutputContextField, bool) {
	switch e := e.(type) {
	case ir.OutputContextField:
		return e, true
	case ir.TernaryConditional:
		exists, ok := e.Predicate.(ir.ContextFieldExistence)
		if !ok || !ir.IsNull(e.IfFalse) {
			return ir.OutputContextField{}, false
		}
		field, ok := e.IfTrue.(ir.OutputContextField)
		if !ok || field.Location.AtVertex() != exists.Location.AtVertex() {
			return ir.OutputContextField{}, false
		}
		return field, true
	}
	return ir.OutputContextField{}, false
}

var compareOps = map[ir.Operator]queryir.CompareOp{
	ir.OpEq: queryir.OpEq,
	ir.OpNe: queryir.OpNe,
	ir.OpLt: queryir.OpLt,
	ir.OpLe: queryir.OpLe,
	ir.OpGt: queryir.OpGt,
	ir.OpGe: queryir.OpGe,
}

// predicate lowers a filter expression whose local fields read from alias.
// A true literal lowers to nil.
func predicate(e ir.Expression, alias string) (queryir.Predicate, error) {
	if ir.IsTrue(e) {
		return nil, nil
	}
	b, ok := e.(ir.BinaryComposition)
	if !ok {
		return nil, ir.NotImplementedf("SQL filter over %T", e)
	}

	switch b.Op {
	case ir.OpAnd, ir.OpOr:
		left, err := predicate(b.Left, alias)
		if err != nil {
			return nil, err
		}
		right, err := predicate(b.Right, alias)
		if err != nil {
			return nil, err
		}
		if b.Op == ir.OpAnd {
			return queryir.Conjoin(left, right), nil
		}
		if left == nil || right == nil {
			return nil, nil
		}
		return queryir.Or{Predicates: []queryir.Predicate{left, right}}, nil

	case ir.OpContains:
		haystack, err := operand(b.Left, alias)
		if err != nil {
			return nil, err
		}
		if _, isColumn := haystack.(queryir.ColumnRef); isColumn {
			return nil, ir.NotImplementedf("SQL membership in list-valued columns")
		}
		needle, err := operand(b.Right, alias)
		if err != nil {
			return nil, err
		}
		return queryir.In{Needle: needle, Haystack: haystack}, nil
	}

	op, ok := compareOps[b.Op]
	if !ok {
		return nil, ir.NotImplementedf("SQL operator %q", b.Op)
	}
	left, err := operand(b.Left, alias)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(b.Right) && (op == queryir.OpEq || op == queryir.OpNe) {
		return queryir.IsNull{Operand: left, Negate: op == queryir.OpNe}, nil
	}
	right, err := operand(b.Right, alias)
	if err != nil {
		return nil, err
	}
	return queryir.Compare{Op: op, Left: left, Right: right}, nil
}

func operand(e ir.Expression, alias string) (queryir.Operand, error) {
	switch e := e.(type) {
	case ir.LocalField:
		if ir.IsVertexFieldName(e.Name) {
			return nil, ir.NotImplementedf("SQL filter on vertex field %s", e.Name)
		}
		return queryir.ColumnRef{Table: alias, Column: e.Name}, nil
	case ir.Variable:
		return queryir.Param{Name: strings.TrimPrefix(e.Name, "$")}, nil
	case ir.Literal:
		return queryir.Value{Value: e.Value}, nil
	}
	return nil, ir.NotImplementedf("SQL operand %T", e)
}

// Query is the lowered relational query plus its portability warnings.
type Query struct {
	Select   queryir.Select
	Warnings []string
}

// Lower converts blocks into a relational query over schema.
func Lower(blocks []ir.Block, meta *ir.QueryMetadataTable, schema Schema, trace lowering.Tracer) (Query, error) {
	if err := sanity.Check(blocks, meta); err != nil {
		return Query{}, err
	}
	trace.Pass("sanity_check", len(blocks))

	s := &state{schema: schema, meta: meta, aliases: make(map[ir.Location]string)}
	for _, b := range blocks {
		if err := s.block(b); err != nil {
			return Query{}, err
		}
	}
	if !s.rooted {
		return Query{}, ir.Assertf(lowerPass, "query has no root")
	}
	s.sel.Where = queryir.Conjoin(s.where...)
	trace.Pass(lowerPass, len(s.sel.Joins)+1)

	v := queryir.Validate(s.sel)
	trace.Pass("validate_portability", len(v.Warnings))
	return Query{Select: s.sel, Warnings: v.Warnings}, nil
}

// Statement is compiled SQL with its positional arguments.
type Statement struct {
	SQL      string
	Args     []querysql.Arg
	Warnings []string
}

// Compile lowers blocks and renders them in dialect. Postgres output is
// checked with the PostgreSQL parser.
func Compile(blocks []ir.Block, meta *ir.QueryMetadataTable, schema Schema, dialect querysql.Dialect, trace lowering.Tracer) (Statement, error) {
	q, err := Lower(blocks, meta, schema, trace)
	if err != nil {
		return Statement{}, err
	}
	text, args, err := querysql.NewSQLCompiler(dialect).Compile(q.Select)
	if err != nil {
		return Statement{}, err
	}
	if dialect == querysql.Postgres {
		if err := querysql.VerifyPostgres(text); err != nil {
			return Statement{}, ir.Assertf("emit_sql", "%v", err)
		}
	}
	return Statement{SQL: text, Args: args, Warnings: q.Warnings}, nil
}
