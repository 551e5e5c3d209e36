package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
//
// Supported values are string, int, int64, bool, []any and map[string]any.
// Object keys are sorted by UTF-16 code units, strings are NFC normalized,
// HTML characters are not escaped, and floats and nulls are rejected.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return writeCanonicalString(buf, val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return writeCanonical(buf, arr)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeysUTF16(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case float64, float32:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// sortedKeysUTF16 orders keys by UTF-16 code units as RFC 8785 requires.
func sortedKeysUTF16(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
	return keys
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	// encoding/json escapes U+2028/U+2029 for JavaScript; RFC 8785 keeps them literal.
	// A preceding odd run of backslashes means the sequence is escaped text.
	if bytes.Contains(out, []byte(`\u202`)) {
		out = []byte(unescapeLineSeparators(string(out)))
	}
	buf.Write(out)
	return nil
}

func unescapeLineSeparators(s string) string {
	var b strings.Builder
	backslashes := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && backslashes%2 == 0 && strings.HasPrefix(s[i:], `\u202`) && i+5 < len(s) && (s[i+5] == '8' || s[i+5] == '9') {
			if s[i+5] == '8' {
				b.WriteString("\u2028")
			} else {
				b.WriteString("\u2029")
			}
			i += 5
			backslashes = 0
			continue
		}
		if s[i] == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// CanonicalBlocks converts an IR block list into the value tree hashed by
// Fingerprint. Map-valued fields come out as JSON objects, so their
// iteration order never leaks into the result.
func CanonicalBlocks(blocks []Block) ([]any, error) {
	out := make([]any, len(blocks))
	for i, b := range blocks {
		c, err := canonicalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("block[%d]: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func canonicalBlock(b Block) (map[string]any, error) {
	switch b := b.(type) {
	case QueryRoot:
		return map[string]any{"kind": "query_root", "classes": b.Classes}, nil
	case CoerceType:
		return map[string]any{"kind": "coerce_type", "classes": b.Classes}, nil
	case Filter:
		p, err := canonicalExpression(b.Predicate)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "filter", "predicate": p}, nil
	case MarkLocation:
		return map[string]any{"kind": "mark_location", "location": canonicalLocation(b.Location)}, nil
	case Traverse:
		return map[string]any{
			"kind": "traverse", "direction": string(b.Direction), "edge": b.Edge,
			"optional": b.Optional, "within_optional_scope": b.WithinOptionalScope,
		}, nil
	case Recurse:
		return map[string]any{
			"kind": "recurse", "direction": string(b.Direction), "edge": b.Edge,
			"depth": b.Depth, "within_optional_scope": b.WithinOptionalScope,
		}, nil
	case Backtrack:
		return map[string]any{"kind": "backtrack", "location": canonicalLocation(b.Location), "optional": b.Optional}, nil
	case ConstructResult:
		fields := make(map[string]any, len(b.Fields))
		for name, e := range b.Fields {
			c, err := canonicalExpression(e)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", name, err)
			}
			fields[name] = c
		}
		return map[string]any{"kind": "construct_result", "fields": fields}, nil
	case Fold:
		return map[string]any{"kind": "fold", "location": canonicalLocation(b.Location)}, nil
	case Unfold:
		return map[string]any{"kind": "unfold"}, nil
	case OutputSource:
		return map[string]any{"kind": "output_source"}, nil
	case EndOptional:
		return map[string]any{"kind": "end_optional"}, nil
	case GlobalOperationsStart:
		return map[string]any{"kind": "global_operations_start"}, nil
	}
	return nil, fmt.Errorf("unsupported block type %T", b)
}

func canonicalLocation(loc BaseLocation) map[string]any {
	switch l := loc.(type) {
	case Location:
		path := l.QueryPath()
		p := make([]any, len(path))
		for i, s := range path {
			p[i] = s
		}
		return map[string]any{"path": p, "field": l.Field(), "visit": l.VisitCounter()}
	case FoldScopeLocation:
		steps := l.FoldPath()
		p := make([]any, len(steps))
		for i, s := range steps {
			p[i] = s.VertexField()
		}
		return map[string]any{"base": canonicalLocation(l.BaseLocation()), "fold_path": p, "field": l.Field()}
	}
	return map[string]any{}
}

func canonicalType(e map[string]any, typ interface{ String() string }, isNil bool) map[string]any {
	if !isNil {
		e["type"] = typ.String()
	}
	return e
}

func canonicalExpression(e Expression) (map[string]any, error) {
	switch e := e.(type) {
	case Literal:
		if e.Value == nil {
			return map[string]any{"kind": "literal", "null": true}, nil
		}
		return map[string]any{"kind": "literal", "value": e.Value}, nil
	case Variable:
		return canonicalType(map[string]any{"kind": "variable", "name": e.Name}, e.Type, e.Type == nil), nil
	case LocalField:
		return canonicalType(map[string]any{"kind": "local_field", "name": e.Name}, e.Type, e.Type == nil), nil
	case ContextField:
		return canonicalType(map[string]any{"kind": "context_field", "location": canonicalLocation(e.Location)}, e.Type, e.Type == nil), nil
	case GlobalContextField:
		return canonicalType(map[string]any{"kind": "global_context_field", "location": canonicalLocation(e.Location)}, e.Type, e.Type == nil), nil
	case OutputContextField:
		return canonicalType(map[string]any{"kind": "output_context_field", "location": canonicalLocation(e.Location)}, e.Type, e.Type == nil), nil
	case OutputContextVertex:
		return canonicalType(map[string]any{"kind": "output_context_vertex", "location": canonicalLocation(e.Location)}, e.Type, e.Type == nil), nil
	case FoldedContextField:
		return canonicalType(map[string]any{"kind": "folded_context_field", "location": canonicalLocation(e.Location)}, e.Type, e.Type == nil), nil
	case FoldCountContextField:
		return map[string]any{"kind": "fold_count_context_field", "location": canonicalLocation(e.Location)}, nil
	case ContextFieldExistence:
		return map[string]any{"kind": "context_field_existence", "location": canonicalLocation(e.Location)}, nil
	case UnaryTransformation:
		inner, err := canonicalExpression(e.Inner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "unary", "op": e.Op, "inner": inner}, nil
	case BinaryComposition:
		l, err := canonicalExpression(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := canonicalExpression(e.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "binary", "op": string(e.Op), "left": l, "right": r}, nil
	case TernaryConditional:
		p, err := canonicalExpression(e.Predicate)
		if err != nil {
			return nil, err
		}
		t, err := canonicalExpression(e.IfTrue)
		if err != nil {
			return nil, err
		}
		f, err := canonicalExpression(e.IfFalse)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "ternary", "predicate": p, "if_true": t, "if_false": f}, nil
	case BetweenClause:
		field, err := canonicalExpression(e.Field)
		if err != nil {
			return nil, err
		}
		lo, err := canonicalExpression(e.Lower)
		if err != nil {
			return nil, err
		}
		hi, err := canonicalExpression(e.Upper)
		if err != nil {
			return nil, err
		}
		return map[string]any{"kind": "between", "field": field, "lower": lo, "upper": hi}, nil
	}
	return nil, fmt.Errorf("unsupported expression type %T", e)
}
