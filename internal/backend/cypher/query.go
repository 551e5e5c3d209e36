// Package cypher lowers IR into Neo4j Cypher.
package cypher

import (
	"slices"
	"sort"

	"github.com/roach88/graphc/internal/ir"
)

// Step is one MATCH clause: a pattern from LinkedLocation (nil for the
// query root) to the location marked by As.
type Step struct {
	LinkedLocation ir.BaseLocation
	// StepBlock is a QueryRoot, Traverse, Recurse or Fold.
	StepBlock ir.Block
	StepTypes []string
	Where     *ir.Filter
	As        ir.MarkLocation
}

// Query is a Cypher query assembled from steps.
type Query struct {
	Steps       []Step
	Folds       map[ir.FoldScopeLocation][]Step
	GlobalWhere *ir.Filter
	Output      ir.ConstructResult
}

// SortedFolds returns the fold keys ordered by path name.
func (q Query) SortedFolds() []ir.FoldScopeLocation {
	keys := make([]ir.FoldScopeLocation, 0, len(q.Folds))
	for k := range q.Folds {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].PathName() < keys[j].PathName() })
	return keys
}

const convertPass = "convert_to_cypher_query"

type stepBuilder struct {
	block ir.Block
	types []string
	where *ir.Filter
}

// ConvertToCypherQuery regroups lowered blocks into a Query. Every step
// must end with exactly one MarkLocation, and filters must precede it.
func ConvertToCypherQuery(blocks []ir.Block) (Query, error) {
	if len(blocks) == 0 {
		return Query{}, ir.Assertf(convertPass, "received no blocks")
	}
	output, ok := blocks[len(blocks)-1].(ir.ConstructResult)
	if !ok {
		return Query{}, ir.Assertf(convertPass, "last block must be ConstructResult, got %T", blocks[len(blocks)-1])
	}

	q := Query{Folds: make(map[ir.FoldScopeLocation][]Step), Output: output}
	var (
		linked  ir.BaseLocation
		current *stepBuilder
		fold    *ir.FoldScopeLocation
		global  bool
	)
	for _, b := range blocks[:len(blocks)-1] {
		if global {
			f, ok := b.(ir.Filter)
			if !ok || q.GlobalWhere != nil {
				return Query{}, ir.Assertf(convertPass, "unexpected global block %T", b)
			}
			q.GlobalWhere = &f
			continue
		}

		switch b := b.(type) {
		case ir.QueryRoot, ir.Traverse, ir.Recurse, ir.Fold:
			if current != nil {
				return Query{}, ir.Assertf(convertPass, "%T opens a step before the previous one was marked", b)
			}
			if f, ok := b.(ir.Fold); ok {
				if fold != nil {
					return Query{}, ir.Assertf(convertPass, "nested fold %s", f.Location)
				}
				loc := f.Location
				fold = &loc
			}
			current = &stepBuilder{block: b}
			if r, ok := b.(ir.QueryRoot); ok {
				current.types = slices.Clone(r.Classes)
			}

		case ir.CoerceType:
			if current == nil || current.where != nil {
				return Query{}, ir.Assertf(convertPass, "CoerceType outside of an open step")
			}
			current.types = slices.Clone(b.Classes)

		case ir.Filter:
			if current == nil || current.where != nil {
				return Query{}, ir.Assertf(convertPass, "Filter outside of an open step")
			}
			current.where = &b

		case ir.MarkLocation:
			if current == nil {
				return Query{}, ir.Assertf(convertPass, "MarkLocation %s outside of an open step", b.Location)
			}
			if _, isRoot := current.block.(ir.QueryRoot); !isRoot && linked == nil {
				return Query{}, ir.Assertf(convertPass, "step to %s has no source location", b.Location)
			}
			slices.Sort(current.types)
			step := Step{LinkedLocation: linked, StepBlock: current.block, StepTypes: current.types, Where: current.where, As: b}
			if fold != nil {
				q.Folds[*fold] = append(q.Folds[*fold], step)
			} else {
				q.Steps = append(q.Steps, step)
			}
			linked = b.Location
			current = nil

		case ir.Backtrack:
			if current != nil {
				return Query{}, ir.Assertf(convertPass, "Backtrack inside an open step")
			}
			linked = b.Location

		case ir.Unfold:
			if fold == nil {
				return Query{}, ir.Assertf(convertPass, "Unfold outside of a fold")
			}
			linked = fold.BaseLocation()
			fold = nil

		case ir.GlobalOperationsStart:
			if current != nil || fold != nil {
				return Query{}, ir.Assertf(convertPass, "global operations start inside a step or fold")
			}
			global = true

		case ir.EndOptional, ir.OutputSource:

		default:
			return Query{}, ir.Assertf(convertPass, "unexpected block %T", b)
		}
	}
	if !global {
		return Query{}, ir.Assertf(convertPass, "missing GlobalOperationsStart block")
	}
	if len(q.Steps) == 0 {
		return Query{}, ir.Assertf(convertPass, "no steps found")
	}
	return q, nil
}
