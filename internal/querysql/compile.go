// Package querysql renders queryir queries as parameterized SQL text.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/queryir"
)

// Dialect selects placeholder syntax and list-membership rendering.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts "sqlite" and "postgres"; the empty string means SQLite.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case "", SQLite:
		return SQLite, nil
	case Postgres:
		return Postgres, nil
	}
	return "", fmt.Errorf("unknown SQL dialect %q", s)
}

// Arg is one positional argument. Name is set for query parameters and
// empty for literal values, which are carried in Value.
type Arg struct {
	Name  string
	Value any
}

// SQLCompiler compiles queryir to parameterized SQL. Values are never
// interpolated into the SQL text.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for d.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// compilation holds the arguments collected while rendering one query.
// Postgres parameters are numbered and a repeated name reuses its number;
// SQLite placeholders are anonymous, so every occurrence gets an argument.
type compilation struct {
	dialect Dialect
	args    []Arg
	byName  map[string]int
}

func (c *compilation) placeholder(arg Arg) string {
	if c.dialect == Postgres {
		if arg.Name != "" {
			if n, ok := c.byName[arg.Name]; ok {
				return "$" + strconv.Itoa(n)
			}
		}
		c.args = append(c.args, arg)
		n := len(c.args)
		if arg.Name != "" {
			c.byName[arg.Name] = n
		}
		return "$" + strconv.Itoa(n)
	}
	c.args = append(c.args, arg)
	return "?"
}

// Compile converts q to SQL text and its positional arguments.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []Arg, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []Arg, error) {
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select from %s has no columns", q.From.Name)
	}
	st := &compilation{dialect: c.Dialect, byName: make(map[string]int)}

	columns := make([]string, len(q.Columns))
	for i, col := range q.Columns {
		ref, err := columnRef(col.Ref)
		if err != nil {
			return "", nil, err
		}
		alias, err := quoteIdent(col.As)
		if err != nil {
			return "", nil, err
		}
		columns[i] = ref + " AS " + alias
	}

	from, err := table(q.From)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(columns, ", "), from)

	for _, j := range q.Joins {
		target, err := table(j.Table)
		if err != nil {
			return "", nil, err
		}
		if j.On == nil {
			return "", nil, fmt.Errorf("join to %s has no condition", j.Table.Alias)
		}
		on, err := st.predicate(j.On)
		if err != nil {
			return "", nil, fmt.Errorf("compile join ON: %w", err)
		}
		kind := "JOIN"
		if j.Kind == queryir.LeftJoin {
			kind = "LEFT JOIN"
		}
		fmt.Fprintf(&sb, " %s %s ON %s", kind, target, on)
	}

	if q.Where != nil {
		where, err := st.predicate(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE " + where)
	}
	return sb.String(), st.args, nil
}

// quoteIdent double-quotes a safe identifier. Both dialects accept the
// double-quoted form.
func quoteIdent(name string) (string, error) {
	if err := ir.ValidateSafeString(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

func table(t queryir.Table) (string, error) {
	name, err := quoteIdent(t.Name)
	if err != nil {
		return "", err
	}
	alias, err := quoteIdent(t.Alias)
	if err != nil {
		return "", err
	}
	return name + " AS " + alias, nil
}

func columnRef(r queryir.ColumnRef) (string, error) {
	tbl, err := quoteIdent(r.Table)
	if err != nil {
		return "", err
	}
	col, err := quoteIdent(r.Column)
	if err != nil {
		return "", err
	}
	return tbl + "." + col, nil
}

func (c *compilation) operand(o queryir.Operand) (string, error) {
	switch o := o.(type) {
	case queryir.ColumnRef:
		return columnRef(o)
	case queryir.Param:
		return c.placeholder(Arg{Name: o.Name}), nil
	case queryir.Value:
		switch o.Value.(type) {
		case nil:
			return "NULL", nil
		case bool, int64, string:
			return c.placeholder(Arg{Value: o.Value}), nil
		}
		return "", fmt.Errorf("unsupported scalar value type: %T", o.Value)
	}
	return "", fmt.Errorf("unsupported operand type: %T", o)
}

func (c *compilation) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Compare:
		left, err := c.operand(pred.Left)
		if err != nil {
			return "", err
		}
		right, err := c.operand(pred.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, pred.Op, right), nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "(1 = 1)", nil
		}
		return c.join(pred.Predicates, " AND ")

	case queryir.Or:
		if len(pred.Predicates) == 0 {
			return "(1 = 0)", nil
		}
		return c.join(pred.Predicates, " OR ")

	case queryir.IsNull:
		operand, err := c.operand(pred.Operand)
		if err != nil {
			return "", err
		}
		if pred.Negate {
			return "(" + operand + " IS NOT NULL)", nil
		}
		return "(" + operand + " IS NULL)", nil

	case queryir.In:
		return c.in(pred)
	}
	return "", fmt.Errorf("unsupported predicate type: %T", p)
}

func (c *compilation) join(preds []queryir.Predicate, sep string) (string, error) {
	parts := make([]string, len(preds))
	for i, p := range preds {
		s, err := c.predicate(p)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// in renders list membership. A literal list becomes an IN list with one
// argument per item. A list parameter is passed as one argument: an array
// for Postgres, JSON text expanded by json_each for SQLite.
func (c *compilation) in(pred queryir.In) (string, error) {
	needle, err := c.operand(pred.Needle)
	if err != nil {
		return "", err
	}
	switch h := pred.Haystack.(type) {
	case queryir.Value:
		items, ok := h.Value.([]string)
		if !ok {
			return "", fmt.Errorf("IN needs a list value, got %T", h.Value)
		}
		if len(items) == 0 {
			return "(1 = 0)", nil
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			placeholders[i] = c.placeholder(Arg{Value: item})
		}
		return fmt.Sprintf("(%s IN (%s))", needle, strings.Join(placeholders, ", ")), nil
	case queryir.Param:
		ph := c.placeholder(Arg{Name: h.Name})
		if c.dialect == Postgres {
			return fmt.Sprintf("(%s = ANY(%s))", needle, ph), nil
		}
		return fmt.Sprintf("(%s IN (SELECT value FROM json_each(%s)))", needle, ph), nil
	}
	return "", fmt.Errorf("unsupported IN haystack: %T", pred.Haystack)
}

// VerifyPostgres parses sql with the PostgreSQL parser and reports syntax
// errors.
func VerifyPostgres(sql string) error {
	if _, err := pg_query.Parse(sql); err != nil {
		return fmt.Errorf("invalid PostgreSQL: %w", err)
	}
	return nil
}
