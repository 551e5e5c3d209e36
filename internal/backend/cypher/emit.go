package cypher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/graphc/internal/ir"
)

const emitPass = "emit_cypher"

func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", ir.CompilationErrorf(ir.CodeUnserializableValue, "cannot quote %q: %v", s, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// varName is the pattern variable bound to a vertex location. Fold vertices
// are named by their full path so each one is distinct.
func varName(loc ir.BaseLocation) string {
	switch l := loc.(type) {
	case ir.Location:
		return l.AtVertex().MarkName()
	case ir.FoldScopeLocation:
		return l.AtVertex().PathName()
	}
	return ""
}

func collectedName(v string) string { return "collected_" + v }

func fieldAccess(base, field string) string {
	if strings.Contains(field, "@") {
		return base + ".`" + field + "`"
	}
	return base + "." + field
}

// emitter renders expressions. Inside a fold's MATCH clauses folded fields
// read from the single fold vertex of the current row instead of the
// collected list.
type emitter struct {
	inFold bool
}

func (em emitter) literal(l ir.Literal) (string, error) {
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
		items := make([]string, len(v))
		for i, item := range v {
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

var binaryTemplates = map[ir.Operator]string{
	ir.OpEq:           "(%s = %s)",
	ir.OpNe:           "(%s <> %s)",
	ir.OpGe:           "(%s >= %s)",
	ir.OpLe:           "(%s <= %s)",
	ir.OpGt:           "(%s > %s)",
	ir.OpLt:           "(%s < %s)",
	ir.OpPlus:         "(%s + %s)",
	ir.OpAnd:          "(%s AND %s)",
	ir.OpOr:           "(%s OR %s)",
	ir.OpContains:     "(%[2]s IN %[1]s)",
	ir.OpNotContains:  "(NOT (%[2]s IN %[1]s))",
	ir.OpIntersects:   "any(_ IN %s WHERE _ IN %s)",
	ir.OpHasSubstring: "(%s CONTAINS %s)",
	ir.OpStartsWith:   "(%s STARTS WITH %s)",
	ir.OpEndsWith:     "(%s ENDS WITH %s)",
}

func (em emitter) expression(e ir.Expression) (string, error) {
	switch e := e.(type) {
	case ir.Literal:
		return em.literal(e)

	case ir.Variable:
		if format, ok := ir.IsDateLike(ir.StripNonNull(e.Type)); ok {
			if format == ir.StandardDateFormat {
				return "date(" + e.Name + ")", nil
			}
			return "localdatetime(" + e.Name + ")", nil
		}
		return e.Name, nil

	case ir.ContextField:
		if !e.Location.HasField() {
			return varName(e.Location), nil
		}
		return fieldAccess(varName(e.Location), e.Location.Field()), nil

	case ir.OutputContextField:
		return fieldAccess(varName(e.Location), e.Location.Field()), nil

	case ir.OutputContextVertex:
		return varName(e.Location), nil

	case ir.FoldedContextField:
		if e.Location.Field() == ir.CountMetaField {
			return "", ir.NotImplementedf("Cypher does not support the %s meta field", ir.CountMetaField)
		}
		v := varName(e.Location)
		if em.inFold {
			return fieldAccess(v, e.Location.Field()), nil
		}
		return fmt.Sprintf("[x IN %s | %s]", collectedName(v), fieldAccess("x", e.Location.Field())), nil

	case ir.FoldCountContextField:
		return "", ir.NotImplementedf("Cypher does not support the %s meta field", ir.CountMetaField)

	case ir.UnaryTransformation:
		return "", ir.NotImplementedf("Cypher unary operator %q", e.Op)

	case ir.LocalField:
		return "", ir.Assertf(emitPass, "local field %s was not anchored to a location", e.Name)

	case ir.GlobalContextField, ir.BetweenClause:
		return "", ir.Assertf(emitPass, "%T is specific to MATCH", e)

	case ir.ContextFieldExistence:
		return "", ir.Assertf(emitPass, "ContextFieldExistence at %s was not lowered", e.Location)

	case ir.BinaryComposition:
		if ir.IsNull(e.Left) {
			return "", ir.Assertf(emitPass, "null literal on the left of %q", e.Op)
		}
		left, err := em.expression(e.Left)
		if err != nil {
			return "", err
		}
		if ir.IsNull(e.Right) {
			switch e.Op {
			case ir.OpEq:
				return "(" + left + " IS NULL)", nil
			case ir.OpNe:
				return "(" + left + " IS NOT NULL)", nil
			}
		}
		template, ok := binaryTemplates[e.Op]
		if !ok {
			return "", ir.NotImplementedf("Cypher operator %q", e.Op)
		}
		right, err := em.expression(e.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(template, left, right), nil

	case ir.TernaryConditional:
		pred, err := em.expression(e.Predicate)
		if err != nil {
			return "", err
		}
		ifTrue, err := em.expression(e.IfTrue)
		if err != nil {
			return "", err
		}
		ifFalse, err := em.expression(e.IfFalse)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)", pred, ifTrue, ifFalse), nil
	}
	return "", ir.Assertf(emitPass, "unexpected expression %T", e)
}

func edgePattern(from string, dir ir.Direction, edge, quantifier, to string) (string, error) {
	if err := ir.ValidateSafeString(edge); err != nil {
		return "", err
	}
	if dir == ir.In {
		return fmt.Sprintf("(%s)<-[:%s%s]-(%s)", from, edge, quantifier, to), nil
	}
	return fmt.Sprintf("(%s)-[:%s%s]->(%s)", from, edge, quantifier, to), nil
}

// step renders one MATCH or OPTIONAL MATCH clause.
func (em emitter) step(s Step) (string, error) {
	node := varName(s.As.Location)
	for _, t := range s.StepTypes {
		if err := ir.ValidateSafeString(t); err != nil {
			return "", err
		}
		node += ":" + t
	}

	optional := em.inFold
	var (
		pattern string
		err     error
	)
	switch b := s.StepBlock.(type) {
	case ir.QueryRoot:
		pattern = "(" + node + ")"
	case ir.Traverse:
		optional = optional || b.Optional || b.WithinOptionalScope
		pattern, err = edgePattern(varName(s.LinkedLocation), b.Direction, b.Edge, "", node)
	case ir.Recurse:
		optional = optional || b.WithinOptionalScope
		pattern, err = edgePattern(varName(s.LinkedLocation), b.Direction, b.Edge, fmt.Sprintf("*0..%d", b.Depth), node)
	case ir.Fold:
		first, ok := b.Location.FirstFoldedEdge()
		if !ok {
			return "", ir.Assertf(emitPass, "fold %s has no edge", b.Location)
		}
		pattern, err = edgePattern(varName(s.LinkedLocation), first.Direction, first.Edge, "", node)
	default:
		return "", ir.Assertf(emitPass, "unexpected step block %T", s.StepBlock)
	}
	if err != nil {
		return "", err
	}

	clause := "MATCH " + pattern
	if optional {
		clause = "OPTIONAL " + clause
	}
	if s.Where != nil {
		pred, err := em.expression(s.Where.Predicate)
		if err != nil {
			return "", err
		}
		clause += " WHERE " + pred
	}
	return clause, nil
}

// collectTargets lists the fold vertices whose fields are output, or the
// innermost fold vertex when nothing in the fold is output.
func collectTargets(output ir.ConstructResult, fold ir.FoldScopeLocation, steps []Step) []string {
	var targets []string
	for _, name := range output.SortedNames() {
		ir.Walk(output.Fields[name], func(e ir.Expression) bool {
			f, ok := e.(ir.FoldedContextField)
			if ok && f.Location.MarkName() == fold.MarkName() {
				targets = append(targets, varName(f.Location))
			}
			return true
		})
	}
	if len(targets) == 0 && len(steps) > 0 {
		targets = append(targets, varName(steps[len(steps)-1].As.Location))
	}
	slices.Sort(targets)
	return slices.Compact(targets)
}

// Emit renders q as Cypher. Each fold is matched optionally and then
// aggregated by a WITH clause that carries every variable bound so far.
func Emit(q Query) (string, error) {
	var (
		clauses     []string
		established []string
		collected   []string
	)
	seen := make(map[string]bool)
	top := emitter{}
	for _, s := range q.Steps {
		c, err := top.step(s)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, c)
		if v := varName(s.As.Location); !seen[v] {
			seen[v] = true
			established = append(established, v)
		}
	}

	inner := emitter{inFold: true}
	for _, fold := range q.SortedFolds() {
		steps := q.Folds[fold]
		for _, s := range steps {
			c, err := inner.step(s)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, c)
		}

		with := make([]string, 0, len(established)+len(collected)+1)
		for _, v := range established {
			with = append(with, v+" AS "+v)
		}
		for _, v := range collected {
			with = append(with, v+" AS "+v)
		}
		for _, v := range collectTargets(q.Output, fold, steps) {
			with = append(with, fmt.Sprintf("collect(%s) AS %s", v, collectedName(v)))
			collected = append(collected, collectedName(v))
		}
		clauses = append(clauses, "WITH "+strings.Join(with, ", "))
	}

	if q.GlobalWhere != nil {
		pred, err := top.expression(q.GlobalWhere.Predicate)
		if err != nil {
			return "", err
		}
		if len(q.Folds) == 0 {
			clauses = append(clauses, "WITH *")
		}
		clauses = append(clauses, "WHERE "+pred)
	}

	names := q.Output.SortedNames()
	if len(names) == 0 {
		return "", ir.Assertf(emitPass, "query has no outputs")
	}
	returns := make([]string, len(names))
	for i, name := range names {
		if err := ir.ValidateSafeString(name); err != nil {
			return "", err
		}
		expr, err := top.expression(q.Output.Fields[name])
		if err != nil {
			return "", err
		}
		returns[i] = fmt.Sprintf("%s AS `%s`", expr, name)
	}
	clauses = append(clauses, "RETURN "+strings.Join(returns, ", "))
	return strings.Join(clauses, "\n"), nil
}
