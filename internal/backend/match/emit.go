package match

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/graphc/internal/ir"
)

const emitPass = "emit_match"

// quote renders s as a double-quoted string literal.
func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", ir.CompilationErrorf(ir.CodeUnserializableValue, "cannot quote %q: %v", s, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func literalToMatch(l ir.Literal) (string, error) {
	switch v := l.Value.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case string:
		return quote(v)
	case []string:
		items := slices.Clone(v)
		slices.Sort(items)
		for i, item := range items {
			q, err := quote(item)
			if err != nil {
				return "", err
			}
			items[i] = q
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	}
	return "", ir.CompilationErrorf(ir.CodeUnserializableValue, "cannot serialize literal of type %T", l.Value)
}

// formatted appends .format("...") when typ is a date-like scalar.
func formatted(expr string, e ir.Expression) string {
	var fmtString string
	var ok bool
	switch e := e.(type) {
	case ir.OutputContextField:
		fmtString, ok = ir.IsDateLike(ir.StripNonNull(e.Type))
	case ir.GlobalContextField:
		fmtString, ok = ir.IsDateLike(ir.StripNonNull(e.Type))
	}
	if !ok {
		return expr
	}
	return fmt.Sprintf("%s.format(%q)", expr, fmtString)
}

var binaryTemplates = map[ir.Operator]string{
	ir.OpEq:          "(%s = %s)",
	ir.OpNe:          "(%s <> %s)",
	ir.OpGe:          "(%s >= %s)",
	ir.OpLe:          "(%s <= %s)",
	ir.OpGt:          "(%s > %s)",
	ir.OpLt:          "(%s < %s)",
	ir.OpPlus:        "(%s + %s)",
	ir.OpOr:          "(%s OR %s)",
	ir.OpAnd:         "(%s AND %s)",
	ir.OpContains:    "(%s CONTAINS %s)",
	ir.OpNotContains: "(NOT (%s CONTAINS %s))",
	ir.OpIntersects:  "(intersect(%s, %s).asList().size() > 0)",
	ir.OpStartsWith:  "(%s LIKE (%s + '%%'))",
	ir.OpEndsWith:    "(%s LIKE ('%%' + %s))",
	ir.OpLike:        "(%s LIKE %s)",
	ir.OpInstanceOf:  "(%s INSTANCEOF %s)",
}

// ExpressionToMatch renders e as MATCH text.
func ExpressionToMatch(e ir.Expression) (string, error) {
	switch e := e.(type) {
	case ir.Literal:
		return literalToMatch(e)

	case ir.Variable:
		name := "{" + strings.TrimPrefix(e.Name, "$") + "}"
		if format, ok := ir.IsDateLike(ir.StripNonNull(e.Type)); ok {
			return fmt.Sprintf("date(%s, %q)", name, format), nil
		}
		return name, nil

	case ir.LocalField:
		return e.Name, nil

	case ir.ContextField:
		if e.Location.HasField() {
			return "$matched." + e.Location.MarkName() + "." + e.Location.Field(), nil
		}
		return "$matched." + e.Location.MarkName(), nil

	case ir.GlobalContextField:
		return formatted(e.Location.MarkName()+"."+e.Location.Field(), e), nil

	case ir.OutputContextField:
		return formatted(e.Location.MarkName()+"."+e.Location.Field(), e), nil

	case ir.OutputContextVertex:
		return e.Location.MarkName(), nil

	case ir.FoldedContextField:
		base := "$" + e.Location.MarkName()
		if e.Location.Field() == ir.CountMetaField {
			return base + ".size()", nil
		}
		out := base + "." + e.Location.Field()
		if ir.IsListType(e.Type) {
			if format, ok := ir.IsDateLike(ir.StripNonNull(e.Type.Elem)); ok {
				out += fmt.Sprintf(".format(%q)", format)
			}
		}
		return out, nil

	case ir.FoldCountContextField:
		return "$" + e.Location.MarkName() + ".size()", nil

	case ir.ContextFieldExistence:
		return "", ir.Assertf(emitPass, "ContextFieldExistence at %s was not lowered", e.Location)

	case ir.UnaryTransformation:
		inner, err := ExpressionToMatch(e.Inner)
		if err != nil {
			return "", err
		}
		return inner + ".size()", nil

	case ir.BinaryComposition:
		return binaryToMatch(e)

	case ir.TernaryConditional:
		return ternaryToMatch(e)

	case ir.BetweenClause:
		field, err := ExpressionToMatch(e.Field)
		if err != nil {
			return "", err
		}
		lower, err := ExpressionToMatch(e.Lower)
		if err != nil {
			return "", err
		}
		upper, err := ExpressionToMatch(e.Upper)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s BETWEEN %s AND %s)", field, lower, upper), nil
	}
	return "", ir.Assertf(emitPass, "unexpected expression %T", e)
}

func binaryToMatch(e ir.BinaryComposition) (string, error) {
	if e.Op == ir.OpHasSubstring {
		return "", ir.Assertf(emitPass, "has_substring was not lowered")
	}
	left, err := ExpressionToMatch(e.Left)
	if err != nil {
		return "", err
	}
	right, err := ExpressionToMatch(e.Right)
	if err != nil {
		return "", err
	}
	// "x = null" never holds in MATCH; null checks need IS.
	subject := ""
	switch {
	case ir.IsNull(e.Right):
		subject = left
	case ir.IsNull(e.Left):
		subject = right
	}
	if subject != "" {
		switch e.Op {
		case ir.OpEq:
			return fmt.Sprintf("(%s IS null)", subject), nil
		case ir.OpNe:
			return fmt.Sprintf("(%s IS NOT null)", subject), nil
		}
	}
	template, ok := binaryTemplates[e.Op]
	if !ok {
		return "", ir.Assertf(emitPass, "unsupported operator %q", e.Op)
	}
	return fmt.Sprintf(template, left, right), nil
}

func ternaryToMatch(e ir.TernaryConditional) (string, error) {
	nested := false
	ir.Walk(e.Predicate, func(node ir.Expression) bool {
		if _, ok := node.(ir.TernaryConditional); ok {
			nested = true
		}
		return !nested
	})
	if nested {
		return "", ir.NotImplementedf("MATCH ternary whose predicate contains another ternary")
	}
	pred, err := ExpressionToMatch(e.Predicate)
	if err != nil {
		return "", err
	}
	if strings.Contains(pred, `"`) {
		return "", ir.NotImplementedf("MATCH ternary predicate containing a double quote: %s", pred)
	}
	ifTrue, err := ExpressionToMatch(e.IfTrue)
	if err != nil {
		return "", err
	}
	ifFalse, err := ExpressionToMatch(e.IfFalse)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`if(eval("%s"), %s, %s)`, pred, ifTrue, ifFalse), nil
}

func onlyClass(classes []string) (string, error) {
	if len(classes) != 1 {
		return "", ir.NotImplementedf("MATCH class clause with %d classes %v", len(classes), classes)
	}
	return classes[0], nil
}

func whereToMatch(f *ir.Filter) (string, error) {
	pred, err := ExpressionToMatch(f.Predicate)
	if err != nil {
		return "", err
	}
	return "where: (" + pred + ")", nil
}

func asToMatch(s Step) (string, error) {
	loc, ok := s.Location()
	if !ok {
		return "", ir.Assertf(emitPass, "step %T is not marked", s.Root)
	}
	return "as: " + loc.MarkName(), nil
}

func firstStepToMatch(s Step) (string, error) {
	var parts []string
	switch root := s.Root.(type) {
	case nil:
	case ir.QueryRoot:
		class, err := onlyClass(root.Classes)
		if err != nil {
			return "", err
		}
		parts = append(parts, "class: "+class)
	default:
		return "", ir.Assertf(emitPass, "traversal starts with %T", s.Root)
	}
	if s.Coerce != nil {
		return "", ir.Assertf(emitPass, "first step of a traversal carries a CoerceType")
	}
	if s.Where != nil {
		where, err := whereToMatch(s.Where)
		if err != nil {
			return "", err
		}
		parts = append(parts, where)
	}
	as, err := asToMatch(s)
	if err != nil {
		return "", err
	}
	parts = append(parts, as)
	return "{ " + strings.Join(parts, ", ") + " }", nil
}

func subsequentStepToMatch(s Step) (string, error) {
	var descriptor string
	var parts []string
	optional := false
	switch root := s.Root.(type) {
	case ir.Traverse:
		descriptor = fmt.Sprintf(".%s('%s')", root.Direction, root.Edge)
		optional = root.Optional
	case ir.Recurse:
		descriptor = fmt.Sprintf(".%s('%s')", root.Direction, root.Edge)
	default:
		return "", ir.Assertf(emitPass, "unexpected step root %T after the first step", s.Root)
	}

	if s.Coerce != nil {
		class, err := onlyClass(s.Coerce.Classes)
		if err != nil {
			return "", err
		}
		parts = append(parts, "class: "+class)
	}
	if r, ok := s.Root.(ir.Recurse); ok {
		parts = append(parts, fmt.Sprintf("while: ($depth < %d)", r.Depth))
	}
	if s.Where != nil {
		where, err := whereToMatch(s.Where)
		if err != nil {
			return "", err
		}
		parts = append(parts, where)
	}
	if optional {
		parts = append(parts, "optional: true")
	}
	as, err := asToMatch(s)
	if err != nil {
		return "", err
	}
	parts = append(parts, as)
	return descriptor + " { " + strings.Join(parts, ", ") + " }", nil
}

func traversalToMatch(traversal []Step) (string, error) {
	if len(traversal) == 0 {
		return "", ir.Assertf(emitPass, "empty traversal")
	}
	var b strings.Builder
	first, err := firstStepToMatch(traversal[0])
	if err != nil {
		return "", err
	}
	b.WriteString(first)
	for _, s := range traversal[1:] {
		next, err := subsequentStepToMatch(s)
		if err != nil {
			return "", err
		}
		b.WriteString(next)
	}
	return b.String(), nil
}

func foldToMatch(loc ir.FoldScopeLocation, blocks []ir.Block) (string, error) {
	edge, ok := loc.FirstFoldedEdge()
	if !ok {
		return "", ir.Assertf(emitPass, "fold %s has no edge", loc)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "$%s = %s.%s(%q)", loc.MarkName(), loc.BaseLocation().MarkName(), edge.Direction, edge.Edge)
	for _, block := range blocks {
		switch block := block.(type) {
		case ir.MarkLocation:
		case ir.Filter:
			pred, err := ExpressionToMatch(block.Predicate)
			if err != nil {
				return "", err
			}
			b.WriteString("[" + pred + "]")
		case ir.Traverse:
			fmt.Fprintf(&b, ".%s(%q)", block.Direction, block.Edge)
		default:
			return "", ir.Assertf(emitPass, "unexpected block %T inside fold %s", block, loc)
		}
	}
	b.WriteString(".asList()")
	return b.String(), nil
}

// QueryToMatch renders a single MATCH query.
func QueryToMatch(q Query) (string, error) {
	names := q.Output.SortedNames()
	if len(names) == 0 {
		return "", ir.Assertf(emitPass, "query has no outputs")
	}
	fields := make([]string, len(names))
	for i, name := range names {
		expr, err := ExpressionToMatch(q.Output.Fields[name])
		if err != nil {
			return "", err
		}
		fields[i] = fmt.Sprintf("%s AS `%s`", expr, name)
	}

	traversals := make([]string, len(q.Traversals))
	for i, traversal := range q.Traversals {
		t, err := traversalToMatch(traversal)
		if err != nil {
			return "", err
		}
		traversals[i] = t
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM (MATCH %s RETURN $matches)", strings.Join(fields, ", "), strings.Join(traversals, ", "))

	if len(q.Folds) > 0 {
		keys := q.Folds.SortedKeys()
		lets := make([]string, len(keys))
		for i, loc := range keys {
			let, err := foldToMatch(loc, q.Folds[loc])
			if err != nil {
				return "", err
			}
			lets[i] = let
		}
		b.WriteString(" LET " + strings.Join(lets, ", "))
	}

	if q.Where != nil {
		where, err := ExpressionToMatch(q.Where.Predicate)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE " + where)
	}
	return b.String(), nil
}

// CompoundQueryToMatch renders cq, combining several queries with UNIONALL.
func CompoundQueryToMatch(cq CompoundQuery) (string, error) {
	switch len(cq.Queries) {
	case 0:
		return "", ir.Assertf(emitPass, "compound query has no queries")
	case 1:
		return QueryToMatch(cq.Queries[0])
	}

	lets := make([]string, 0, len(cq.Queries)+1)
	vars := make([]string, len(cq.Queries))
	for i, q := range cq.Queries {
		text, err := QueryToMatch(q)
		if err != nil {
			return "", err
		}
		vars[i] = fmt.Sprintf("$optional__%d", i)
		lets = append(lets, fmt.Sprintf("%s = (%s)", vars[i], text))
	}
	lets = append(lets, "$result = UNIONALL("+strings.Join(vars, ", ")+")")
	return "SELECT EXPAND($result) LET " + strings.Join(lets, ", "), nil
}
