// Package sanity checks ordering invariants of a front-end IR block list
// before any lowering runs.
//
// Every failure is an *ir.AssertionError: a list that fails here was built
// incorrectly upstream and must not be compiled.
package sanity

import (
	"github.com/roach88/graphc/internal/ir"
)

const pass = "sanity"

// Check validates blocks against the block ordering rules. meta may be nil,
// in which case the location registration checks are skipped.
func Check(blocks []ir.Block, meta *ir.QueryMetadataTable) error {
	if len(blocks) == 0 {
		return ir.Assertf(pass, "received no IR blocks")
	}
	if err := ir.ValidateBlocks(blocks); err != nil {
		return ir.Assertf(pass, "invalid block: %v", err)
	}

	checks := []func([]ir.Block) error{
		checkFoldScopeLocationsAreUnique,
		checkFoldsAreBalancedAndFlat,
		checkQueryRoot,
		checkOutputSourceFollowers,
		checkPairwiseConstraints,
		checkMarkBeforeOptionalTraverse,
		checkEveryLocationIsMarked,
		checkCoerceTypeOutsideFold,
	}
	for _, check := range checks {
		if err := check(blocks); err != nil {
			return err
		}
	}

	if meta != nil {
		if err := checkMarkedLocationsAreRegistered(blocks, meta); err != nil {
			return err
		}
		if err := checkParentLocationsAreRegistered(meta); err != nil {
			return err
		}
	}
	return nil
}

func checkFoldScopeLocationsAreUnique(blocks []ir.Block) error {
	seen := make(map[ir.FoldScopeLocation]bool)
	for _, b := range blocks {
		fold, ok := b.(ir.Fold)
		if !ok {
			continue
		}
		if seen[fold.Location] {
			return ir.Assertf(pass, "fold scope location %s appears in more than one Fold block", fold.Location)
		}
		seen[fold.Location] = true
	}
	return nil
}

func checkFoldsAreBalancedAndFlat(blocks []ir.Block) error {
	inFold := false
	for i, b := range blocks {
		switch b.(type) {
		case ir.Fold:
			if inFold {
				return ir.Assertf(pass, "nested Fold at block %d", i)
			}
			inFold = true
		case ir.Unfold:
			if !inFold {
				return ir.Assertf(pass, "Unfold without a matching Fold at block %d", i)
			}
			inFold = false
		}
	}
	if inFold {
		return ir.Assertf(pass, "Fold is never closed by an Unfold")
	}
	return nil
}

func checkQueryRoot(blocks []ir.Block) error {
	if _, ok := blocks[0].(ir.QueryRoot); !ok {
		return ir.Assertf(pass, "first block must be QueryRoot, got %T", blocks[0])
	}
	for i, b := range blocks[1:] {
		if _, ok := b.(ir.QueryRoot); ok {
			return ir.Assertf(pass, "unexpected second QueryRoot at block %d", i+1)
		}
	}
	return nil
}

func checkOutputSourceFollowers(blocks []ir.Block) error {
	seen := false
	for i, b := range blocks {
		switch b.(type) {
		case ir.OutputSource:
			seen = true
		case ir.Backtrack, ir.Traverse, ir.Recurse:
			if seen {
				return ir.Assertf(pass, "%T at block %d follows OutputSource", b, i)
			}
		}
	}
	return nil
}

func checkPairwiseConstraints(blocks []ir.Block) error {
	for i := 1; i < len(blocks); i++ {
		first, second := blocks[i-1], blocks[i]

		if _, ok := first.(ir.MarkLocation); ok {
			switch second.(type) {
			case ir.Filter:
				return ir.Assertf(pass, "Filter at block %d immediately follows MarkLocation", i)
			case ir.MarkLocation:
				return ir.Assertf(pass, "consecutive MarkLocation blocks at %d and %d", i-1, i)
			}
		}

		if t, ok := first.(ir.Traverse); ok && t.Optional {
			switch second.(type) {
			case ir.MarkLocation, ir.CoerceType, ir.Filter:
			default:
				return ir.Assertf(pass, "optional Traverse at block %d is followed by %T", i-1, second)
			}
		}

		if bt, ok := first.(ir.Backtrack); ok && bt.Optional {
			if _, ok := second.(ir.MarkLocation); !ok {
				return ir.Assertf(pass, "optional Backtrack at block %d is followed by %T", i-1, second)
			}
		}

		if _, ok := second.(ir.Recurse); ok {
			switch first.(type) {
			case ir.MarkLocation, ir.Backtrack:
			default:
				return ir.Assertf(pass, "Recurse at block %d is preceded by %T", i, first)
			}
		}
	}
	return nil
}

func checkMarkBeforeOptionalTraverse(blocks []ir.Block) error {
	for i, b := range blocks {
		t, ok := b.(ir.Traverse)
		if !ok || !t.Optional {
			continue
		}
		if i == 0 {
			return ir.Assertf(pass, "optional Traverse cannot be the first block")
		}
		if _, ok := blocks[i-1].(ir.MarkLocation); !ok {
			return ir.Assertf(pass, "optional Traverse at block %d is preceded by %T, not MarkLocation", i, blocks[i-1])
		}
	}
	return nil
}

// checkEveryLocationIsMarked requires exactly one MarkLocation between a
// block that moves to a new position and the next block that leaves it.
func checkEveryLocationIsMarked(blocks []ir.Block) error {
	open := false
	marks := 0
	for i, b := range blocks {
		switch b.(type) {
		case ir.Backtrack, ir.ConstructResult, ir.Recurse, ir.Traverse, ir.Unfold:
			if open {
				open = false
				if marks != 1 {
					return ir.Assertf(pass, "expected one MarkLocation before %T at block %d, found %d", b, i, marks)
				}
			}
		}
		switch b.(type) {
		case ir.MarkLocation:
			marks++
		case ir.QueryRoot, ir.Traverse, ir.Recurse, ir.Fold:
			open = true
			marks = 0
		}
	}
	return nil
}

func checkCoerceTypeOutsideFold(blocks []ir.Block) error {
	inFold := false
	for i := 1; i < len(blocks); i++ {
		first, second := blocks[i-1], blocks[i]
		if _, ok := first.(ir.Fold); ok {
			inFold = true
		}
		if _, ok := first.(ir.CoerceType); ok && !inFold {
			switch second.(type) {
			case ir.MarkLocation, ir.Filter:
			default:
				return ir.Assertf(pass, "CoerceType at block %d is followed by %T", i-1, second)
			}
		}
		if _, ok := second.(ir.Unfold); ok {
			inFold = false
		}
	}
	return nil
}

func checkMarkedLocationsAreRegistered(blocks []ir.Block, meta *ir.QueryMetadataTable) error {
	for _, b := range blocks {
		m, ok := b.(ir.MarkLocation)
		if !ok {
			continue
		}
		if _, err := meta.LocationInfo(m.Location); err != nil {
			return ir.Assertf(pass, "marked location %s has no metadata", m.Location)
		}
	}
	return nil
}

func checkParentLocationsAreRegistered(meta *ir.QueryMetadataTable) error {
	for _, loc := range meta.RegisteredLocations() {
		info, err := meta.LocationInfo(loc)
		if err != nil {
			return err
		}
		if info.ParentLocation == nil {
			continue
		}
		if _, err := meta.LocationInfo(info.ParentLocation); err != nil {
			return ir.Assertf(pass, "parent %s of location %s is not registered", info.ParentLocation, loc)
		}
	}
	return nil
}
