package match

import (
	"slices"
	"sort"
	"strings"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
)

// optionalTree orders complex optional roots by nesting. The zero Location
// is the virtual root of the tree.
type optionalTree struct {
	children map[ir.Location][]ir.Location
}

func newOptionalTree(info lowering.OptionalRootInfo) (optionalTree, error) {
	tree := optionalTree{children: map[ir.Location][]ir.Location{{}: nil}}
	for _, root := range info.ComplexRoots {
		tree.children[root] = nil
	}

	// Iterate in a fixed order so children lists are deterministic.
	locs := make([]ir.Location, 0, len(info.LocationRoots))
	for loc := range info.LocationRoots {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].MarkName() < locs[j].MarkName() })

	for _, loc := range locs {
		parent := ir.Location{}
		sawSimple := false
		for _, root := range info.LocationRoots[loc] {
			if sawSimple {
				return optionalTree{}, ir.Assertf("optional_tree", "complex optional root %s nested in a simple one", root)
			}
			if _, complex := tree.children[root]; !complex {
				sawSimple = true
				continue
			}
			if !slices.Contains(tree.children[parent], root) {
				tree.children[parent] = append(tree.children[parent], root)
			}
			parent = root
		}
	}
	for k := range tree.children {
		sort.Slice(tree.children[k], func(i, j int) bool {
			return tree.children[k][i].MarkName() < tree.children[k][j].MarkName()
		})
	}
	return tree, nil
}

// rootedSubtrees lists every subtree containing start: every choice of
// children, each with every choice of its own rooted subtrees. start itself
// is not included in the lists.
func (t optionalTree) rootedSubtrees(start ir.Location) [][]ir.Location {
	children := t.children[start]
	if len(children) == 0 {
		return [][]ir.Location{{}}
	}

	childSubtrees := make(map[ir.Location][][]ir.Location, len(children))
	for _, c := range children {
		childSubtrees[c] = t.rootedSubtrees(c)
	}

	var out [][]ir.Location
	for size := 0; size <= len(children); size++ {
		for _, subset := range combinations(children, size) {
			combos := [][]ir.Location{slices.Clone(subset)}
			for _, c := range subset {
				var next [][]ir.Location
				for _, prefix := range combos {
					for _, sub := range childSubtrees[c] {
						next = append(next, append(slices.Clone(prefix), sub...))
					}
				}
				combos = next
			}
			out = append(out, combos...)
		}
	}
	return out
}

// combinations returns every size-k subset of items, preserving item order.
func combinations(items []ir.Location, k int) [][]ir.Location {
	if k == 0 {
		return [][]ir.Location{{}}
	}
	if len(items) < k {
		return nil
	}
	var out [][]ir.Location
	for _, rest := range combinations(items[1:], k-1) {
		out = append(out, append([]ir.Location{items[0]}, rest...))
	}
	return append(out, combinations(items[1:], k)...)
}

// omittedSets returns, for every rooted subtree of present complex roots,
// the complementary set of omitted roots. Sets are ordered by decreasing
// size, then by decreasing joined mark names.
func omittedSets(info lowering.OptionalRootInfo) ([]map[ir.Location]bool, error) {
	tree, err := newOptionalTree(info)
	if err != nil {
		return nil, err
	}
	type omitted struct {
		key string
		n   int
		set map[ir.Location]bool
	}
	var sets []omitted
	for _, present := range tree.rootedSubtrees(ir.Location{}) {
		set := make(map[ir.Location]bool)
		var names []string
		for _, root := range info.ComplexRoots {
			if !slices.Contains(present, root) {
				set[root] = true
				names = append(names, root.MarkName())
			}
		}
		sort.Strings(names)
		sets = append(sets, omitted{key: strings.Join(names, ","), n: len(set), set: set})
	}
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].n != sets[j].n {
			return sets[i].n > sets[j].n
		}
		return sets[i].key > sets[j].key
	})
	out := make([]map[ir.Location]bool, len(sets))
	for i, s := range sets {
		out[i] = s.set
	}
	return out, nil
}

func anyOmitted(roots []ir.Location, omitted map[ir.Location]bool) bool {
	for _, r := range roots {
		if omitted[r] {
			return true
		}
	}
	return false
}

// ConvertOptionalTraversalsToCompoundMatchQuery emits one query per
// combination of present complex optional roots. In each query, omitted
// optional edges are required to be absent and present ones become
// mandatory traversals.
func ConvertOptionalTraversalsToCompoundMatchQuery(q Query, info lowering.OptionalRootInfo) (CompoundQuery, error) {
	sets, err := omittedSets(info)
	if err != nil {
		return CompoundQuery{}, err
	}

	var queries []Query
	for _, omitted := range sets {
		var traversals [][]Step
		for _, traversal := range q.Traversals {
			first, ok := traversal[0].Location()
			if !ok {
				return CompoundQuery{}, ir.Assertf("compound_match_query", "traversal starts without a location")
			}
			if anyOmitted(info.LocationRoots[first], omitted) {
				continue
			}
			pruned, err := pruneTraversal(traversal, omitted, info)
			if err != nil {
				return CompoundQuery{}, err
			}
			traversals = append(traversals, pruned)
		}
		queries = append(queries, q.withTraversals(traversals))
	}
	return CompoundQuery{Queries: queries}, nil
}

func pruneTraversal(traversal []Step, omitted map[ir.Location]bool, info lowering.OptionalRootInfo) ([]Step, error) {
	var out []Step
	for _, s := range traversal {
		t, ok := s.Root.(ir.Traverse)
		if !ok || !t.Optional {
			out = append(out, s)
			continue
		}
		loc, ok := s.Location()
		roots := info.LocationRoots[loc]
		if !ok || len(roots) == 0 {
			return nil, ir.Assertf("compound_match_query", "optional traversal %s has no optional root", t.FieldName())
		}
		root := roots[len(roots)-1]
		switch {
		case omitted[root]:
			if len(out) == 0 {
				return nil, ir.Assertf("compound_match_query", "omitted optional %s has no preceding step", t.FieldName())
			}
			prev := out[len(out)-1]
			pred := filterEdgeFieldNonExistence(ir.LocalField{Name: t.FieldName()})
			if prev.Where != nil {
				pred = ir.BinaryComposition{Op: ir.OpAnd, Left: prev.Where.Predicate, Right: pred}
			}
			prev.Where = &ir.Filter{Predicate: pred}
			out[len(out)-1] = prev
			return out, nil
		case info.IsComplex(root):
			t.Optional = false
			s.Root = t
		}
		out = append(out, s)
	}
	return out, nil
}

// presentLocations lists the locations a query still visits, and those
// among them reached by a mandatory Traverse.
func presentLocations(q Query) (present, mandatory map[ir.Location]bool) {
	present = make(map[ir.Location]bool)
	mandatory = make(map[ir.Location]bool)
	for _, traversal := range q.Traversals {
		for _, s := range traversal {
			loc, ok := s.Location()
			if !ok {
				continue
			}
			present[loc] = true
			if t, ok := s.Root.(ir.Traverse); ok && !t.Optional {
				mandatory[loc] = true
			}
		}
	}
	return present, mandatory
}

// PruneNonExistentOutputs drops outputs whose optional location was pruned
// from a sub-query and unwraps guarded outputs whose location is now
// reached by a mandatory traversal.
func PruneNonExistentOutputs(cq CompoundQuery) (CompoundQuery, error) {
	const pass = "prune_non_existent_outputs"
	if len(cq.Queries) <= 1 {
		return cq, nil
	}
	out := CompoundQuery{Queries: make([]Query, len(cq.Queries))}
	for i, q := range cq.Queries {
		present, mandatory := presentLocations(q)
		fields := make(map[string]ir.Expression, len(q.Output.Fields))
		for _, name := range q.Output.SortedNames() {
			switch e := q.Output.Fields[name].(type) {
			case ir.OutputContextField:
				if !present[e.Location.AtVertex()] {
					return CompoundQuery{}, ir.Assertf(pass, "output %q reads absent location %s", name, e.Location)
				}
				fields[name] = e
			case ir.FoldedContextField:
				if !present[e.Location.BaseLocation()] {
					return CompoundQuery{}, ir.Assertf(pass, "output %q folds from absent location %s", name, e.Location)
				}
				fields[name] = e
			case ir.TernaryConditional:
				guarded, ok := e.IfTrue.(ir.OutputContextField)
				if !ok {
					fields[name] = e
					continue
				}
				loc := guarded.Location.AtVertex()
				switch {
				case mandatory[loc]:
					fields[name] = guarded
				case present[loc]:
					fields[name] = e
				}
			default:
				fields[name] = e
			}
		}
		q.Output = ir.ConstructResult{Fields: fields}
		out.Queries[i] = q
	}
	return out, nil
}

// CollectFiltersToFirstLocationOccurrence moves every filter on a location
// to the first step that marks it.
func CollectFiltersToFirstLocationOccurrence(cq CompoundQuery) CompoundQuery {
	out := CompoundQuery{Queries: make([]Query, len(cq.Queries))}
	for i, q := range cq.Queries {
		filters := make(map[ir.Location][]ir.Expression)
		for _, traversal := range q.Traversals {
			for _, s := range traversal {
				if loc, ok := s.Location(); ok && s.Where != nil {
					filters[loc] = append(filters[loc], s.Where.Predicate)
				}
			}
		}
		filtered := make(map[ir.Location]bool)
		q, _ = q.mapSteps(func(s Step) (Step, error) {
			s.Where = nil
			loc, ok := s.Location()
			if !ok || filtered[loc] || len(filters[loc]) == 0 {
				return s, nil
			}
			filtered[loc] = true
			s.Where = &ir.Filter{Predicate: ir.Conjunction(filters[loc])}
			return s, nil
		})
		out.Queries[i] = q
	}
	return out
}

// LowerContextFieldExpressions resolves null checks against locations a
// sub-query no longer visits: (loc = null) holds and (loc != null) does
// not. The resulting literals are folded away. Filters that reduce to true
// are removed.
func LowerContextFieldExpressions(cq CompoundQuery) (CompoundQuery, error) {
	const pass = "lower_context_field_expressions"
	if len(cq.Queries) <= 1 {
		return cq, nil
	}
	out := CompoundQuery{Queries: make([]Query, len(cq.Queries))}
	for i, q := range cq.Queries {
		present, _ := presentLocations(q)
		rewrite := func(e ir.Expression) ir.Expression {
			return simplifyAbsentReferences(e, present)
		}
		lowered, err := q.mapSteps(func(s Step) (Step, error) {
			if s.Where == nil {
				return s, nil
			}
			pred := ir.VisitAndUpdate(s.Where.Predicate, rewrite)
			if loc, ok := referencesAbsentLocation(pred, present); ok {
				return Step{}, ir.Assertf(pass, "filter still references absent location %s", loc)
			}
			s.Where = &ir.Filter{Predicate: pred}
			if ir.IsTrue(pred) {
				s.Where = nil
			}
			return s, nil
		})
		if err != nil {
			return CompoundQuery{}, err
		}
		out.Queries[i] = lowered
	}
	return out, nil
}

func simplifyAbsentReferences(e ir.Expression, present map[ir.Location]bool) ir.Expression {
	switch e := e.(type) {
	case ir.BinaryComposition:
		if cf, other, ok := contextFieldOperand(e); ok && !present[cf.Location.AtVertex()] && ir.IsNull(other) {
			switch e.Op {
			case ir.OpEq:
				return ir.TrueLiteral
			case ir.OpNe:
				return ir.FalseLiteral
			}
		}
		return simplifyBooleanLiterals(e)
	case ir.TernaryConditional:
		return lowering.ShortCircuitTernary(e)
	}
	return e
}

func contextFieldOperand(b ir.BinaryComposition) (ir.ContextField, ir.Expression, bool) {
	if cf, ok := b.Left.(ir.ContextField); ok {
		return cf, b.Right, true
	}
	if cf, ok := b.Right.(ir.ContextField); ok {
		return cf, b.Left, true
	}
	return ir.ContextField{}, nil, false
}

func simplifyBooleanLiterals(b ir.BinaryComposition) ir.Expression {
	switch b.Op {
	case ir.OpAnd:
		switch {
		case ir.IsFalse(b.Left) || ir.IsFalse(b.Right):
			return ir.FalseLiteral
		case ir.IsTrue(b.Left):
			return b.Right
		case ir.IsTrue(b.Right):
			return b.Left
		}
	case ir.OpOr:
		switch {
		case ir.IsTrue(b.Left) || ir.IsTrue(b.Right):
			return ir.TrueLiteral
		case ir.IsFalse(b.Left):
			return b.Right
		case ir.IsFalse(b.Right):
			return b.Left
		}
	case ir.OpEq, ir.OpNe:
		l, lok := b.Left.(ir.Literal)
		r, rok := b.Right.(ir.Literal)
		if lok && rok {
			if ir.Equal(l, r) == (b.Op == ir.OpEq) {
				return ir.TrueLiteral
			}
			return ir.FalseLiteral
		}
	}
	return b
}

func referencesAbsentLocation(e ir.Expression, present map[ir.Location]bool) (ir.Location, bool) {
	var found ir.Location
	ok := ir.Any(e, func(node ir.Expression) bool {
		cf, isCF := node.(ir.ContextField)
		if isCF && !present[cf.Location.AtVertex()] {
			found = cf.Location
			return true
		}
		return false
	})
	return found, ok
}
