package gremlin

import (
	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
)

// FoldedBlock is a step applied to the list of vertices collected by a fold.
type FoldedBlock interface {
	foldedBlock()
}

// FoldedFilter keeps the fold entries matching Predicate. Local fields in
// the predicate read from the fold entry.
type FoldedFilter struct {
	Predicate ir.Expression
}

// FoldedTraverse replaces each fold entry by its neighbours along an edge.
type FoldedTraverse struct {
	Direction ir.Direction
	Edge      string
}

func (FoldedFilter) foldedBlock()   {}
func (FoldedTraverse) foldedBlock() {}

// Query is a lowered Gremlin query: top-level blocks plus the converted
// contents of every fold, keyed by the fold's mark name.
type Query struct {
	Blocks []ir.Block
	Folds  map[string][]FoldedBlock
}

// LowerFoldedOutputs removes fold scopes from blocks and converts their
// contents into FoldedBlocks consumed when emitting FoldedContextField
// outputs.
func LowerFoldedOutputs(blocks []ir.Block) (Query, error) {
	const pass = "lower_folded_outputs"
	folds, remaining, err := lowering.ExtractFolds(blocks)
	if err != nil {
		return Query{}, err
	}
	if len(remaining) == 0 {
		return Query{}, ir.Assertf(pass, "no blocks left outside folds")
	}
	if _, ok := remaining[len(remaining)-1].(ir.ConstructResult); !ok {
		return Query{}, ir.Assertf(pass, "last block must be ConstructResult, got %T", remaining[len(remaining)-1])
	}

	converted := make(map[string][]FoldedBlock, len(folds))
	for _, loc := range folds.SortedKeys() {
		var out []FoldedBlock
		for _, b := range folds[loc] {
			switch b := b.(type) {
			case ir.Filter:
				out = append(out, FoldedFilter{Predicate: b.Predicate})
			case ir.Traverse:
				out = append(out, FoldedTraverse{Direction: b.Direction, Edge: b.Edge})
			case ir.MarkLocation, ir.Backtrack:
			default:
				return Query{}, ir.Assertf(pass, "unexpected block %T inside fold %s", b, loc)
			}
		}
		converted[loc.MarkName()] = out
	}

	for _, b := range remaining {
		for _, e := range foldedOutputs(b) {
			if _, ok := converted[e.Location.MarkName()]; !ok {
				return Query{}, ir.Assertf(pass, "output reads from unknown fold %s", e.Location)
			}
		}
	}
	return Query{Blocks: remaining, Folds: converted}, nil
}

func foldedOutputs(b ir.Block) []ir.FoldedContextField {
	c, ok := b.(ir.ConstructResult)
	if !ok {
		return nil
	}
	var out []ir.FoldedContextField
	for _, name := range c.SortedNames() {
		ir.Walk(c.Fields[name], func(e ir.Expression) bool {
			if f, ok := e.(ir.FoldedContextField); ok {
				out = append(out, f)
			}
			return true
		})
	}
	return out
}
