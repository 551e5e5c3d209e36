package lowering

import (
	"sort"

	"github.com/roach88/graphc/internal/ir"
)

// Folds maps each fold scope (keyed by the Fold block's location) to the
// blocks between its Fold and Unfold.
type Folds map[ir.FoldScopeLocation][]ir.Block

// SortedKeys returns fold locations ordered by their path name.
func (f Folds) SortedKeys() []ir.FoldScopeLocation {
	keys := make([]ir.FoldScopeLocation, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].PathName() < keys[j].PathName()
	})
	return keys
}

// ExtractFolds splits blocks into the fold scopes and everything outside of
// them. Fold and Unfold blocks themselves are dropped.
func ExtractFolds(blocks []ir.Block) (Folds, []ir.Block, error) {
	folds := make(Folds)
	var remaining, current []ir.Block
	var inFold *ir.FoldScopeLocation

	for _, b := range blocks {
		switch b := b.(type) {
		case ir.Fold:
			if inFold != nil {
				return nil, nil, ir.Assertf("extract_folds", "found nested fold %s inside %s", b.Location, *inFold)
			}
			loc := b.Location
			inFold = &loc
		case ir.Unfold:
			if inFold == nil {
				return nil, nil, ir.Assertf("extract_folds", "found Unfold outside of any fold")
			}
			folds[*inFold] = current
			current = nil
			inFold = nil
		default:
			if inFold != nil {
				current = append(current, b)
			} else {
				remaining = append(remaining, b)
			}
		}
	}
	if inFold != nil {
		return nil, nil, ir.Assertf("extract_folds", "fold %s is never closed", *inFold)
	}
	return folds, remaining, nil
}
