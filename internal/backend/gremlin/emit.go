package gremlin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/graphc/internal/ir"
)

const emitPass = "emit_gremlin"

// quote renders s as a single-quoted Groovy string. Double-quoted Groovy
// strings interpolate "$" expressions and are never emitted.
func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", ir.CompilationErrorf(ir.CodeUnserializableValue, "cannot quote %q: %v", s, err)
	}
	inner := strings.TrimSuffix(buf.String(), "\n")
	inner = inner[1 : len(inner)-1]
	inner = strings.ReplaceAll(inner, `\"`, `"`)
	inner = strings.ReplaceAll(inner, `'`, `\'`)
	return "'" + inner + "'", nil
}

// emitter renders expressions. Local fields read from local, which is "it"
// at top level and "entry" inside fold closures.
type emitter struct {
	folds map[string][]FoldedBlock
	local string
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

func fieldAccess(base, field string) string {
	if strings.Contains(field, "@") {
		return fmt.Sprintf("%s['%s']", base, field)
	}
	return base + "." + field
}

var binaryTemplates = map[ir.Operator]string{
	ir.OpEq:           "(%s == %s)",
	ir.OpNe:           "(%s != %s)",
	ir.OpGe:           "(%s >= %s)",
	ir.OpLe:           "(%s <= %s)",
	ir.OpGt:           "(%s > %s)",
	ir.OpLt:           "(%s < %s)",
	ir.OpPlus:         "(%s + %s)",
	ir.OpAnd:          "(%s && %s)",
	ir.OpOr:           "(%s || %s)",
	ir.OpContains:     "%s.contains(%s)",
	ir.OpNotContains:  "!%s.contains(%s)",
	ir.OpIntersects:   "(!%s.intersect(%s).empty)",
	ir.OpHasSubstring: "%s.contains(%s)",
	ir.OpStartsWith:   "%s.startsWith(%s)",
	ir.OpEndsWith:     "%s.endsWith(%s)",
}

func (em emitter) expression(e ir.Expression) (string, error) {
	switch e := e.(type) {
	case ir.Literal:
		return em.literal(e)

	case ir.Variable:
		if format, ok := ir.IsDateLike(ir.StripNonNull(e.Type)); ok {
			return fmt.Sprintf("Date.parse(%q, %s)", format, e.Name), nil
		}
		return e.Name, nil

	case ir.LocalField:
		if e.Name == "@this" {
			return em.local, nil
		}
		if ir.IsVertexFieldName(e.Name) {
			return "", ir.NotImplementedf("Gremlin filter on vertex field %s", e.Name)
		}
		return fieldAccess(em.local, e.Name), nil

	case ir.ContextField:
		base := "m." + e.Location.MarkName()
		if !e.Location.HasField() {
			return base, nil
		}
		return fieldAccess(base, e.Location.Field()), nil

	case ir.OutputContextField:
		out := fieldAccess("m."+e.Location.MarkName(), e.Location.Field())
		if format, ok := ir.IsDateLike(ir.StripNonNull(e.Type)); ok {
			out += fmt.Sprintf(".format(%q)", format)
		}
		return out, nil

	case ir.OutputContextVertex:
		return "m." + e.Location.MarkName(), nil

	case ir.FoldedContextField:
		return em.foldedOutput(e)

	case ir.GlobalContextField, ir.BetweenClause:
		return "", ir.Assertf(emitPass, "%T is specific to MATCH", e)

	case ir.FoldCountContextField:
		return "", ir.NotImplementedf("Gremlin filtering on fold counts")

	case ir.ContextFieldExistence:
		return "", ir.Assertf(emitPass, "ContextFieldExistence at %s was not lowered", e.Location)

	case ir.UnaryTransformation:
		inner, err := em.expression(e.Inner)
		if err != nil {
			return "", err
		}
		return inner + ".size()", nil

	case ir.BinaryComposition:
		if ir.IsNull(e.Left) {
			return "", ir.Assertf(emitPass, "null literal on the left of %q", e.Op)
		}
		template, ok := binaryTemplates[e.Op]
		if !ok {
			return "", ir.NotImplementedf("Gremlin operator %q", e.Op)
		}
		left, err := em.expression(e.Left)
		if err != nil {
			return "", err
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
		return fmt.Sprintf("(%s ? %s : %s)", pred, ifTrue, ifFalse), nil
	}
	return "", ir.Assertf(emitPass, "unexpected expression %T", e)
}

// foldedOutput collects a field across the vertices of a fold, or counts
// them for the _x_count meta field. A missing edge yields an empty list.
func (em emitter) foldedOutput(e ir.FoldedContextField) (string, error) {
	blocks, ok := em.folds[e.Location.MarkName()]
	if !ok {
		return "", ir.Assertf(emitPass, "no lowered fold for %s", e.Location)
	}
	edge, ok := e.Location.FirstFoldedEdge()
	if !ok {
		return "", ir.Assertf(emitPass, "fold %s has no edge", e.Location)
	}
	edgeList := fmt.Sprintf("m.%s.%s", e.Location.BaseLocation().MarkName(), edge.VertexField())
	vertices := fmt.Sprintf("%s.collect{entry -> entry.%sV.next()}", edgeList, edge.Direction.Inverse())

	inner := emitter{folds: em.folds, local: "entry"}
	var steps strings.Builder
	for _, b := range blocks {
		switch b := b.(type) {
		case FoldedFilter:
			pred, err := inner.expression(b.Predicate)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&steps, ".findAll{entry -> %s}", pred)
		case FoldedTraverse:
			fmt.Fprintf(&steps, ".collectMany{entry -> entry.%s.collect{edge -> edge.%sV.next()}}",
				ir.EdgeStep{Direction: b.Direction, Edge: b.Edge}.VertexField(), b.Direction.Inverse())
		}
	}

	if e.Location.Field() == ir.CountMetaField {
		return fmt.Sprintf("((%s == null) ? 0 : %s%s.size())", edgeList, vertices, steps.String()), nil
	}

	format := ""
	if ir.IsListType(e.Type) {
		if f, ok := ir.IsDateLike(ir.StripNonNull(e.Type.Elem)); ok {
			format = fmt.Sprintf(".format(%q)", f)
		}
	}
	field := fieldAccess("entry", e.Location.Field()) + format
	if len(blocks) == 0 {
		return fmt.Sprintf("((%s == null) ? [] : (%s.collect{entry -> entry.%sV.next().%s%s}))",
			edgeList, edgeList, edge.Direction.Inverse(), e.Location.Field(), format), nil
	}
	return fmt.Sprintf("((%s == null) ? [] : (%s%s.collect{entry -> %s}))", edgeList, vertices, steps.String(), field), nil
}

func recursion(dir ir.Direction, edge string, depth int) string {
	steps := make([]string, depth+1)
	for i := range steps {
		steps[i] = "_()" + strings.Repeat(fmt.Sprintf(".%s('%s')", dir, edge), i)
	}
	return "copySplit(" + strings.Join(steps, ", ") + ").exhaustMerge"
}

// block renders one block, or "" for blocks with no Gremlin form.
func (em emitter) block(b ir.Block) (string, error) {
	switch b := b.(type) {
	case ir.QueryRoot:
		classes := slices.Clone(b.Classes)
		slices.Sort(classes)
		if len(classes) == 1 {
			class, err := quote(classes[0])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("g.V('@class', %s)", class), nil
		}
		list, err := em.literal(ir.Literal{Value: classes})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("g.V.has('@class', T.in, %s)", list), nil

	case ir.Filter:
		pred, err := em.expression(b.Predicate)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("filter{it, m -> %s}", pred), nil

	case ir.MarkLocation:
		mark, err := quote(b.Location.MarkName())
		if err != nil {
			return "", err
		}
		return "as(" + mark + ")", nil

	case ir.Traverse:
		step := fmt.Sprintf("%s('%s')", b.Direction, b.Edge)
		switch {
		case b.Optional:
			return fmt.Sprintf("ifThenElse{it.%s == null}{null}{it.%s}", b.FieldName(), step), nil
		case b.WithinOptionalScope:
			return fmt.Sprintf("ifThenElse{it == null}{null}{it.%s}", step), nil
		}
		return step, nil

	case ir.Recurse:
		r := recursion(b.Direction, b.Edge, b.Depth)
		if b.WithinOptionalScope {
			return fmt.Sprintf("ifThenElse{it == null}{null}{it.%s}", r), nil
		}
		return r, nil

	case ir.Backtrack:
		op := "back"
		if b.Optional {
			op = "optional"
		}
		mark, err := quote(b.Location.MarkName())
		if err != nil {
			return "", err
		}
		return op + "(" + mark + ")", nil

	case ir.ConstructResult:
		names := b.SortedNames()
		fields := make([]string, len(names))
		for i, name := range names {
			expr, err := em.expression(b.Fields[name])
			if err != nil {
				return "", err
			}
			fields[i] = name + ": " + expr
		}
		return "transform{it, m -> new com.orientechnologies.orient.core.record.impl.ODocument([ " +
			strings.Join(fields, ", ") + " ])}", nil

	case ir.OutputSource, ir.EndOptional, ir.GlobalOperationsStart:
		return "", nil

	case ir.CoerceType:
		return "", ir.Assertf(emitPass, "CoerceType must be lowered before emission")

	case ir.Fold, ir.Unfold:
		return "", ir.Assertf(emitPass, "fold scopes must be lowered before emission")
	}
	return "", ir.Assertf(emitPass, "unexpected block %T", b)
}

// Emit joins the Gremlin form of every block with ".".
func Emit(q Query) (string, error) {
	em := emitter{folds: q.Folds, local: "it"}
	parts := make([]string, 0, len(q.Blocks))
	for _, b := range q.Blocks {
		s, err := em.block(b)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "."), nil
}
