// Package match lowers IR into OrientDB MATCH queries.
//
// The flat block list is first rewritten in place, then regrouped into a
// Query of traversals and steps, rewritten further in that shape, expanded
// into one Query per combination of present complex optional edges, and
// finally emitted as text.
package match

import (
	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
)

// Step is one MATCH pattern element: a root block plus the optional class,
// where and as clauses attached to it.
type Step struct {
	// Root is a QueryRoot, Traverse, Recurse or Backtrack. It is nil when
	// a query start point pass removed the step's class hint.
	Root   ir.Block
	Coerce *ir.CoerceType
	Where  *ir.Filter
	As     *ir.MarkLocation
}

// Location returns the location the step marks.
func (s Step) Location() (ir.Location, bool) {
	if s.As == nil {
		return ir.Location{}, false
	}
	loc, ok := s.As.Location.(ir.Location)
	return loc, ok
}

// Query is a single MATCH query.
type Query struct {
	Traversals [][]Step
	Folds      lowering.Folds
	Output     ir.ConstructResult
	Where      *ir.Filter
}

// CompoundQuery is the union of several MATCH queries.
type CompoundQuery struct {
	Queries []Query
}

// withTraversals returns a copy of q with new traversals.
func (q Query) withTraversals(traversals [][]Step) Query {
	q.Traversals = traversals
	return q
}

// mapSteps rebuilds q by applying fn to every step.
func (q Query) mapSteps(fn func(Step) (Step, error)) (Query, error) {
	traversals := make([][]Step, len(q.Traversals))
	for i, traversal := range q.Traversals {
		steps := make([]Step, len(traversal))
		for j, step := range traversal {
			s, err := fn(step)
			if err != nil {
				return Query{}, err
			}
			steps[j] = s
		}
		traversals[i] = steps
	}
	return q.withTraversals(traversals), nil
}

const convertPass = "convert_to_match_query"

// ConvertToMatchQuery regroups a lowered flat block list into a Query.
// The last block must be ConstructResult and at most one Filter may follow
// GlobalOperationsStart.
func ConvertToMatchQuery(blocks []ir.Block) (Query, error) {
	if len(blocks) == 0 {
		return Query{}, ir.Assertf(convertPass, "received no blocks")
	}
	output, ok := blocks[len(blocks)-1].(ir.ConstructResult)
	if !ok {
		return Query{}, ir.Assertf(convertPass, "last block must be ConstructResult, got %T", blocks[len(blocks)-1])
	}

	folds, remaining, err := lowering.ExtractFolds(blocks[:len(blocks)-1])
	if err != nil {
		return Query{}, err
	}
	local, where, err := extractGlobalOperations(remaining)
	if err != nil {
		return Query{}, err
	}
	steps, err := splitIntoSteps(local)
	if err != nil {
		return Query{}, err
	}
	traversals, err := splitIntoTraversals(steps)
	if err != nil {
		return Query{}, err
	}
	return Query{Traversals: traversals, Folds: folds, Output: output, Where: where}, nil
}

func extractGlobalOperations(blocks []ir.Block) ([]ir.Block, *ir.Filter, error) {
	start := -1
	for i, b := range blocks {
		if _, ok := b.(ir.GlobalOperationsStart); ok {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil, ir.Assertf(convertPass, "missing GlobalOperationsStart block")
	}
	global := blocks[start+1:]
	if len(global) > 1 {
		return nil, nil, ir.Assertf(convertPass, "expected at most one global block, found %d", len(global))
	}
	var where *ir.Filter
	for _, b := range global {
		f, ok := b.(ir.Filter)
		if !ok {
			return nil, nil, ir.Assertf(convertPass, "unexpected global block %T", b)
		}
		where = &f
	}
	return blocks[:start], where, nil
}

func splitIntoSteps(blocks []ir.Block) ([]Step, error) {
	var steps []Step
	var current *Step
	for _, b := range blocks {
		switch b := b.(type) {
		case ir.OutputSource:
			continue
		case ir.QueryRoot, ir.Traverse, ir.Recurse, ir.Backtrack:
			if current != nil {
				steps = append(steps, *current)
			}
			current = &Step{Root: b}
		case ir.CoerceType, ir.Filter, ir.MarkLocation:
			if current == nil {
				return nil, ir.Assertf(convertPass, "%T before the first step", b)
			}
			if err := attachToStep(current, b); err != nil {
				return nil, err
			}
		default:
			return nil, ir.Assertf(convertPass, "unexpected block %T", b)
		}
	}
	if current == nil {
		return nil, ir.Assertf(convertPass, "no steps found")
	}
	steps = append(steps, *current)

	for _, s := range steps {
		if _, ok := s.Root.(ir.Backtrack); ok && (s.Where != nil || s.Coerce != nil) {
			return nil, ir.Assertf(convertPass, "Backtrack step cannot carry a filter or coercion")
		}
	}
	return steps, nil
}

func attachToStep(s *Step, b ir.Block) error {
	switch b := b.(type) {
	case ir.CoerceType:
		if s.Coerce != nil {
			return ir.Assertf(convertPass, "step has two CoerceType blocks")
		}
		s.Coerce = &b
	case ir.Filter:
		if s.Where != nil {
			return ir.Assertf(convertPass, "step has two Filter blocks")
		}
		if s.As != nil {
			return ir.Assertf(convertPass, "Filter must come before MarkLocation")
		}
		s.Where = &b
	case ir.MarkLocation:
		if s.As != nil {
			return ir.Assertf(convertPass, "step has two MarkLocation blocks")
		}
		if _, ok := b.Location.(ir.Location); !ok {
			return ir.Assertf(convertPass, "fold location %s marked outside of a fold", b.Location)
		}
		s.As = &b
	}
	return nil
}

func splitIntoTraversals(steps []Step) ([][]Step, error) {
	var traversals [][]Step
	var current []Step
	for _, s := range steps {
		if _, ok := s.Root.(ir.QueryRoot); ok {
			if current != nil {
				traversals = append(traversals, current)
			}
			current = []Step{s}
			continue
		}
		if current == nil {
			return nil, ir.Assertf(convertPass, "first step must start at a QueryRoot")
		}
		current = append(current, s)
	}
	return append(traversals, current), nil
}
