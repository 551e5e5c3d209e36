package match

import (
	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
)

// LowerOptionalTraverseBlocks ends a traversal after every optional
// Traverse step that is not already last, and continues from the optional
// destination in a new traversal rooted at its type.
func LowerOptionalTraverseBlocks(q Query, meta *ir.QueryMetadataTable) (Query, error) {
	var traversals [][]Step
	for _, traversal := range q.Traversals {
		var current []Step
		for i, s := range traversal {
			current = append(current, s)
			t, ok := s.Root.(ir.Traverse)
			if !ok || !t.Optional || i == len(traversal)-1 {
				continue
			}
			loc, ok := s.Location()
			if !ok {
				return Query{}, ir.Assertf("lower_optional_traverse_blocks", "optional step %s is not marked", t.FieldName())
			}
			typeName, err := meta.TypeName(loc)
			if err != nil {
				return Query{}, err
			}
			traversals = append(traversals, current)
			current = []Step{{
				Root: ir.QueryRoot{Classes: []string{typeName}},
				As:   &ir.MarkLocation{Location: loc},
			}}
		}
		traversals = append(traversals, current)
	}
	return q.withTraversals(traversals), nil
}

// LowerBacktrackBlocks turns each Backtrack step into the start of a new
// traversal at the backtracked-to location. A location marked right after
// a Backtrack is a revisit; every reference to it is redirected to the
// location it revisits.
func LowerBacktrackBlocks(q Query, meta *ir.QueryMetadataTable) (Query, error) {
	const pass = "lower_backtrack_blocks"
	var traversals [][]Step
	translation := make(lowering.Translation)

	for _, traversal := range q.Traversals {
		var current []Step
		for _, s := range traversal {
			bt, ok := s.Root.(ir.Backtrack)
			if !ok {
				current = append(current, s)
				continue
			}
			if len(current) > 0 {
				traversals = append(traversals, current)
				current = nil
			}
			if s.Coerce != nil || s.Where != nil {
				return Query{}, ir.Assertf(pass, "Backtrack step to %s carries a filter or coercion", bt.Location)
			}
			typeName, err := meta.TypeName(bt.Location)
			if err != nil {
				return Query{}, err
			}
			if revisit, ok := s.Location(); ok {
				translation[revisit] = bt.Location
			}
			current = append(current, Step{
				Root: ir.QueryRoot{Classes: []string{typeName}},
				As:   &ir.MarkLocation{Location: bt.Location},
			})
		}
		traversals = append(traversals, current)
	}

	return translateQuery(q.withTraversals(traversals), translation.Flatten()), nil
}

func translateQuery(q Query, t lowering.Translation) Query {
	if len(t) == 0 {
		return q
	}
	out, _ := q.mapSteps(func(s Step) (Step, error) {
		if bt, ok := s.Root.(ir.Backtrack); ok {
			s.Root = t.Block(bt)
		}
		if s.As != nil {
			as := t.Block(*s.As).(ir.MarkLocation)
			s.As = &as
		}
		if s.Where != nil {
			where := t.Block(*s.Where).(ir.Filter)
			s.Where = &where
		}
		return s, nil
	})

	folds := make(lowering.Folds, len(q.Folds))
	for loc, blocks := range q.Folds {
		folds[t.FoldScopeLocation(loc)] = t.Blocks(blocks)
	}
	out.Folds = folds
	out.Output = t.Block(q.Output).(ir.ConstructResult)
	if q.Where != nil {
		where := t.Block(*q.Where).(ir.Filter)
		out.Where = &where
	}
	return out
}

// TruncateRepeatedSingleStepTraversals drops single-step traversals whose
// location an earlier traversal already visited.
func TruncateRepeatedSingleStepTraversals(q Query) (Query, error) {
	visited := make(map[ir.Location]bool)
	var traversals [][]Step
	for _, traversal := range q.Traversals {
		if len(traversal) == 1 {
			loc, ok := traversal[0].Location()
			if !ok {
				return Query{}, ir.Assertf("truncate_repeated_single_step_traversals", "single-step traversal without a location")
			}
			if visited[loc] {
				continue
			}
		}
		for _, s := range traversal {
			if loc, ok := s.Location(); ok {
				visited[loc] = true
			}
		}
		traversals = append(traversals, traversal)
	}
	return q.withTraversals(traversals), nil
}

// coerceToInstanceOf turns a single-class CoerceType into an INSTANCEOF
// predicate on the current vertex.
func coerceToInstanceOf(c ir.CoerceType) (ir.Expression, error) {
	if len(c.Classes) != 1 {
		return nil, ir.NotImplementedf("MATCH type coercion to more than one class: %v", c.Classes)
	}
	return ir.BinaryComposition{
		Op:    ir.OpInstanceOf,
		Left:  ir.LocalField{Name: "@this"},
		Right: ir.Literal{Value: c.Classes[0]},
	}, nil
}

// coerceIntoWhere prepends the INSTANCEOF form of c to where.
func coerceIntoWhere(c ir.CoerceType, where *ir.Filter) (*ir.Filter, error) {
	pred, err := coerceToInstanceOf(c)
	if err != nil {
		return nil, err
	}
	if where != nil {
		pred = ir.BinaryComposition{Op: ir.OpAnd, Left: pred, Right: where.Predicate}
	}
	return &ir.Filter{Predicate: pred}, nil
}

// WorkaroundTypeCoercionsInRecursions moves the class check of a recursive
// step into its where clause. OrientDB cannot parse class: and while: on the
// same step.
func WorkaroundTypeCoercionsInRecursions(q Query) (Query, error) {
	return q.mapSteps(func(s Step) (Step, error) {
		if _, ok := s.Root.(ir.Recurse); !ok || s.Coerce == nil {
			return s, nil
		}
		where, err := coerceIntoWhere(*s.Coerce, s.Where)
		if err != nil {
			return Step{}, err
		}
		s.Coerce = nil
		s.Where = where
		return s, nil
	})
}

// LowerFolds prepares fold scopes for LET emission: coercions become
// INSTANCEOF filters, Backtracks are dropped and filters are merged.
func LowerFolds(q Query) (Query, error) {
	folds := make(lowering.Folds, len(q.Folds))
	for loc, blocks := range q.Folds {
		var lowered []ir.Block
		for _, b := range blocks {
			switch b := b.(type) {
			case ir.CoerceType:
				pred, err := coerceToInstanceOf(b)
				if err != nil {
					return Query{}, err
				}
				lowered = append(lowered, ir.Filter{Predicate: pred})
			case ir.Backtrack:
			default:
				lowered = append(lowered, b)
			}
		}
		folds[loc] = lowering.MergeConsecutiveFilterClauses(lowered)
	}
	q.Folds = folds
	return q, nil
}
