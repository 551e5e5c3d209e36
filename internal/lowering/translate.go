package lowering

import (
	"github.com/roach88/graphc/internal/ir"
)

// Translation maps vertex locations to the locations that replace them.
type Translation map[ir.Location]ir.Location

// Flatten resolves chains so that A->B, B->C becomes A->C, B->C.
func (t Translation) Flatten() Translation {
	out := make(Translation, len(t))
	for from, to := range t {
		seen := map[ir.Location]bool{from: true}
		for {
			next, ok := t[to]
			if !ok || seen[to] {
				break
			}
			seen[to] = true
			to = next
		}
		out[from] = to
	}
	return out
}

// Location translates a location, keeping its field.
func (t Translation) Location(loc ir.Location) ir.Location {
	if to, ok := t[loc.AtVertex()]; ok {
		return loc.Relocate(to)
	}
	return loc
}

// BaseLocation translates either location kind. Fold locations are
// re-rooted at their translated base.
func (t Translation) BaseLocation(loc ir.BaseLocation) ir.BaseLocation {
	switch l := loc.(type) {
	case ir.Location:
		return t.Location(l)
	case ir.FoldScopeLocation:
		return t.FoldScopeLocation(l)
	}
	return loc
}

// FoldScopeLocation re-roots a fold location at its translated base.
func (t Translation) FoldScopeLocation(loc ir.FoldScopeLocation) ir.FoldScopeLocation {
	if to, ok := t[loc.BaseLocation()]; ok {
		return loc.WithBase(to)
	}
	return loc
}

// Expression rewrites every location reference inside e.
func (t Translation) Expression(e ir.Expression) ir.Expression {
	if len(t) == 0 {
		return e
	}
	return ir.VisitAndUpdate(e, t.node)
}

func (t Translation) node(e ir.Expression) ir.Expression {
	switch e := e.(type) {
	case ir.ContextField:
		e.Location = t.Location(e.Location)
		return e
	case ir.GlobalContextField:
		e.Location = t.Location(e.Location)
		return e
	case ir.OutputContextField:
		e.Location = t.Location(e.Location)
		return e
	case ir.OutputContextVertex:
		e.Location = t.Location(e.Location)
		return e
	case ir.ContextFieldExistence:
		e.Location = t.Location(e.Location)
		return e
	case ir.FoldedContextField:
		e.Location = t.FoldScopeLocation(e.Location)
		return e
	case ir.FoldCountContextField:
		e.Location = t.FoldScopeLocation(e.Location)
		return e
	}
	return e
}

// Block rewrites the location references held by b.
func (t Translation) Block(b ir.Block) ir.Block {
	switch b := b.(type) {
	case ir.MarkLocation:
		return ir.MarkLocation{Location: t.BaseLocation(b.Location)}
	case ir.Backtrack:
		return ir.Backtrack{Location: t.Location(b.Location), Optional: b.Optional}
	case ir.Fold:
		return ir.Fold{Location: t.FoldScopeLocation(b.Location)}
	}
	return ir.VisitBlockExpressions(b, t.node)
}

// Blocks applies Block to every element.
func (t Translation) Blocks(blocks []ir.Block) []ir.Block {
	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		out[i] = t.Block(b)
	}
	return out
}
