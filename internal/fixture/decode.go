package fixture

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"gopkg.in/yaml.v3"

	"github.com/roach88/graphc/internal/ir"
)

// bareBlocks are the blocks that carry no arguments. They may be written as
// a plain string ("- unfold") or a key with an empty value ("- unfold: {}").
var bareBlocks = map[string]ir.Block{
	"unfold":                  ir.Unfold{},
	"output_source":           ir.OutputSource{},
	"end_optional":            ir.EndOptional{},
	"global_operations_start": ir.GlobalOperationsStart{},
}

// single splits a one-key mapping into its key and value.
func single(n *yaml.Node) (string, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, fmt.Errorf("line %d: expected a mapping with exactly one key", n.Line)
	}
	return n.Content[0].Value, n.Content[1], nil
}

// fields decodes a mapping into its values by key, rejecting keys outside
// allowed.
func fields(n *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if !contains(allowed, key) {
			return nil, fmt.Errorf("line %d: field %s not allowed (want one of %s)", n.Content[i].Line, key, strings.Join(allowed, ", "))
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate field %s", n.Content[i].Line, key)
		}
		out[key] = n.Content[i+1]
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func requireField(m map[string]*yaml.Node, key string) (*yaml.Node, error) {
	n, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing field %s", key)
	}
	return n, nil
}

func stringField(m map[string]*yaml.Node, key string) (string, error) {
	n, err := requireField(m, key)
	if err != nil {
		return "", err
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

func optionalBool(m map[string]*yaml.Node, key string) (bool, error) {
	n, ok := m[key]
	if !ok {
		return false, nil
	}
	var b bool
	if err := n.Decode(&b); err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func typeField(m map[string]*yaml.Node, key string) (*ast.Type, error) {
	s, err := stringField(m, key)
	if err != nil {
		return nil, err
	}
	return ir.ParseType(s)
}

func decodeBlock(n *yaml.Node) (ir.Block, error) {
	if n.Kind == yaml.ScalarNode {
		if b, ok := bareBlocks[n.Value]; ok {
			return b, nil
		}
		return nil, fmt.Errorf("line %d: unknown block %q", n.Line, n.Value)
	}
	kind, v, err := single(n)
	if err != nil {
		return nil, err
	}
	if b, ok := bareBlocks[kind]; ok {
		return b, nil
	}

	switch kind {
	case "query_root", "coerce_type":
		var classes []string
		if err := v.Decode(&classes); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		if kind == "query_root" {
			return ir.NewQueryRoot(classes...)
		}
		return ir.NewCoerceType(classes...)

	case "filter":
		pred, err := decodeExpression(v)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		return ir.NewFilter(pred)

	case "mark_location":
		loc, err := ParseLocation(v.Value)
		if err != nil {
			return nil, err
		}
		return ir.NewMarkLocation(loc)

	case "traverse":
		m, err := fields(v, "direction", "edge", "optional", "within_optional_scope")
		if err != nil {
			return nil, err
		}
		dir, edge, err := edgeFields(m)
		if err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		optional, err := optionalBool(m, "optional")
		if err != nil {
			return nil, err
		}
		within, err := optionalBool(m, "within_optional_scope")
		if err != nil {
			return nil, err
		}
		return ir.NewTraverse(dir, edge, optional, within)

	case "recurse":
		m, err := fields(v, "direction", "edge", "depth", "within_optional_scope")
		if err != nil {
			return nil, err
		}
		dir, edge, err := edgeFields(m)
		if err != nil {
			return nil, fmt.Errorf("recurse: %w", err)
		}
		depthNode, err := requireField(m, "depth")
		if err != nil {
			return nil, fmt.Errorf("recurse: %w", err)
		}
		var depth int
		if err := depthNode.Decode(&depth); err != nil {
			return nil, fmt.Errorf("recurse depth: %w", err)
		}
		within, err := optionalBool(m, "within_optional_scope")
		if err != nil {
			return nil, err
		}
		return ir.NewRecurse(dir, edge, depth, within)

	case "backtrack":
		m, err := fields(v, "location", "optional")
		if err != nil {
			return nil, err
		}
		s, err := stringField(m, "location")
		if err != nil {
			return nil, fmt.Errorf("backtrack: %w", err)
		}
		loc, err := parseVertexLocation(s)
		if err != nil {
			return nil, err
		}
		optional, err := optionalBool(m, "optional")
		if err != nil {
			return nil, err
		}
		return ir.NewBacktrack(loc, optional)

	case "construct_result":
		if v.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: construct_result expects a mapping of output names", v.Line)
		}
		out := make(map[string]ir.Expression, len(v.Content)/2)
		for i := 0; i+1 < len(v.Content); i += 2 {
			name := v.Content[i].Value
			e, err := decodeExpression(v.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("output %s: %w", name, err)
			}
			out[name] = e
		}
		return ir.NewConstructResult(out)

	case "fold":
		loc, err := parseFoldLocation(v.Value)
		if err != nil {
			return nil, err
		}
		return ir.NewFold(loc)
	}
	return nil, fmt.Errorf("line %d: unknown block %q", n.Line, kind)
}

func edgeFields(m map[string]*yaml.Node) (ir.Direction, string, error) {
	dir, err := stringField(m, "direction")
	if err != nil {
		return "", "", err
	}
	edge, err := stringField(m, "edge")
	if err != nil {
		return "", "", err
	}
	return ir.Direction(dir), edge, nil
}

func parseFoldLocation(s string) (ir.FoldScopeLocation, error) {
	loc, err := ParseLocation(s)
	if err != nil {
		return ir.FoldScopeLocation{}, err
	}
	f, ok := loc.(ir.FoldScopeLocation)
	if !ok {
		return ir.FoldScopeLocation{}, fmt.Errorf("%q is not a fold location", s)
	}
	return f, nil
}

// typedLocation decodes {location, type} into a vertex-tree location.
func typedLocation(v *yaml.Node) (ir.Location, *ast.Type, error) {
	m, err := fields(v, "location", "type")
	if err != nil {
		return ir.Location{}, nil, err
	}
	s, err := stringField(m, "location")
	if err != nil {
		return ir.Location{}, nil, err
	}
	loc, err := parseLocation(s)
	if err != nil {
		return ir.Location{}, nil, err
	}
	typ, err := typeField(m, "type")
	if err != nil {
		return ir.Location{}, nil, err
	}
	return loc, typ, nil
}

func decodeExpression(n *yaml.Node) (ir.Expression, error) {
	kind, v, err := single(n)
	if err != nil {
		return nil, err
	}
	e, err := decodeExpressionKind(kind, v)
	if err != nil {
		return nil, err
	}
	if err := ir.ValidateExpression(e); err != nil {
		return nil, err
	}
	return e, nil
}

func decodeExpressionKind(kind string, v *yaml.Node) (ir.Expression, error) {
	switch kind {
	case "literal":
		var value any
		if err := v.Decode(&value); err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return ir.NewLiteral(value)

	case "variable", "local":
		m, err := fields(v, "name", "type")
		if err != nil {
			return nil, err
		}
		name, err := stringField(m, "name")
		if err != nil {
			return nil, err
		}
		var typ *ast.Type
		if _, ok := m["type"]; ok || kind == "variable" {
			if typ, err = typeField(m, "type"); err != nil {
				return nil, err
			}
		}
		if kind == "variable" {
			return ir.NewVariable(name, typ)
		}
		return ir.NewLocalField(name, typ)

	case "context", "global", "output", "output_vertex":
		loc, typ, err := typedLocation(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		switch kind {
		case "context":
			return ir.ContextField{Location: loc, Type: typ}, nil
		case "global":
			return ir.GlobalContextField{Location: loc, Type: typ}, nil
		case "output":
			return ir.OutputContextField{Location: loc, Type: typ}, nil
		}
		return ir.OutputContextVertex{Location: loc, Type: typ}, nil

	case "folded":
		m, err := fields(v, "location", "type")
		if err != nil {
			return nil, err
		}
		s, err := stringField(m, "location")
		if err != nil {
			return nil, err
		}
		loc, err := parseFoldLocation(s)
		if err != nil {
			return nil, err
		}
		typ, err := typeField(m, "type")
		if err != nil {
			return nil, err
		}
		return ir.FoldedContextField{Location: loc, Type: typ}, nil

	case "fold_count":
		loc, err := parseFoldLocation(v.Value)
		if err != nil {
			return nil, err
		}
		return ir.FoldCountContextField{Location: loc}, nil

	case "exists":
		loc, err := parseVertexLocation(v.Value)
		if err != nil {
			return nil, err
		}
		return ir.ContextFieldExistence{Location: loc}, nil

	case "unary":
		m, err := fields(v, "op", "inner")
		if err != nil {
			return nil, err
		}
		op := ir.OpSize
		if _, ok := m["op"]; ok {
			if op, err = stringField(m, "op"); err != nil {
				return nil, err
			}
		}
		innerNode, err := requireField(m, "inner")
		if err != nil {
			return nil, err
		}
		inner, err := decodeExpression(innerNode)
		if err != nil {
			return nil, err
		}
		return ir.UnaryTransformation{Op: op, Inner: inner}, nil

	case "binary":
		m, err := fields(v, "op", "left", "right")
		if err != nil {
			return nil, err
		}
		op, err := stringField(m, "op")
		if err != nil {
			return nil, err
		}
		sides, err := subExpressions(m, "left", "right")
		if err != nil {
			return nil, err
		}
		return ir.NewBinaryComposition(ir.Operator(op), sides[0], sides[1])

	case "ternary":
		m, err := fields(v, "if", "then", "else")
		if err != nil {
			return nil, err
		}
		parts, err := subExpressions(m, "if", "then", "else")
		if err != nil {
			return nil, err
		}
		return ir.TernaryConditional{Predicate: parts[0], IfTrue: parts[1], IfFalse: parts[2]}, nil

	case "between":
		m, err := fields(v, "field", "lower", "upper")
		if err != nil {
			return nil, err
		}
		fieldNode, err := requireField(m, "field")
		if err != nil {
			return nil, err
		}
		field, err := decodeExpressionKind("local", fieldNode)
		if err != nil {
			return nil, fmt.Errorf("between field: %w", err)
		}
		bounds, err := subExpressions(m, "lower", "upper")
		if err != nil {
			return nil, err
		}
		return ir.BetweenClause{Field: field.(ir.LocalField), Lower: bounds[0], Upper: bounds[1]}, nil
	}
	return nil, fmt.Errorf("unknown expression %q (want one of %s)", kind, strings.Join(expressionKinds(), ", "))
}

func subExpressions(m map[string]*yaml.Node, keys ...string) ([]ir.Expression, error) {
	out := make([]ir.Expression, len(keys))
	for i, key := range keys {
		n, err := requireField(m, key)
		if err != nil {
			return nil, err
		}
		if out[i], err = decodeExpression(n); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return out, nil
}

func expressionKinds() []string {
	kinds := []string{
		"literal", "variable", "local", "context", "global", "output", "output_vertex",
		"folded", "fold_count", "exists", "unary", "binary", "ternary", "between",
	}
	sort.Strings(kinds)
	return kinds
}
