package match

import (
	"slices"

	"github.com/roach88/graphc/internal/ir"
)

const startPointsPass = "expose_ideal_query_execution_start_points"

type startClass int

const (
	startUnknown startClass = iota
	startPreferred
	startEligible
	startIneligible
)

// isLocalFilter reports whether where reads only the current vertex.
func isLocalFilter(where *ir.Filter) bool {
	return !ir.Any(where.Predicate, func(e ir.Expression) bool {
		switch e.(type) {
		case ir.ContextField, ir.ContextFieldExistence:
			return true
		}
		return false
	})
}

// classifyLocations sorts the locations of q into preferred start points
// (filtered by a local predicate), eligible ones and ineligible ones (inside
// an optional or recursive scope, or filtered by a non-local predicate).
func classifyLocations(q Query) (map[ir.Location]startClass, error) {
	classes := make(map[ir.Location]startClass)
	if len(q.Traversals) == 0 || len(q.Traversals[0]) == 0 {
		return nil, ir.Assertf(startPointsPass, "query has no steps")
	}

	first := q.Traversals[0][0]
	if _, ok := first.Root.(ir.QueryRoot); !ok {
		return nil, ir.Assertf(startPointsPass, "first step must be a QueryRoot, got %T", first.Root)
	}
	firstLoc, ok := first.Location()
	if !ok {
		return nil, ir.Assertf(startPointsPass, "first step is not marked")
	}
	switch {
	case first.Where == nil:
		classes[firstLoc] = startEligible
	case isLocalFilter(first.Where):
		classes[firstLoc] = startPreferred
	default:
		return nil, ir.Assertf(startPointsPass, "first step %s has a non-local filter", firstLoc)
	}

	atEligible := false
	for _, traversal := range q.Traversals {
		for _, s := range traversal {
			loc, ok := s.Location()
			if !ok {
				return nil, ir.Assertf(startPointsPass, "step %T is not marked", s.Root)
			}
			switch root := s.Root.(type) {
			case ir.QueryRoot:
				class := classes[loc]
				if class == startUnknown {
					return nil, ir.Assertf(startPointsPass, "traversal starts at unvisited location %s", loc)
				}
				atEligible = class != startIneligible
				continue
			case ir.Recurse:
				atEligible = false
			case ir.Traverse:
				if root.Optional {
					atEligible = false
				}
			default:
				return nil, ir.Assertf(startPointsPass, "unexpected step root %T", s.Root)
			}

			switch {
			case !atEligible:
				classes[loc] = startIneligible
			case s.Where == nil:
				classes[loc] = startEligible
			case isLocalFilter(s.Where):
				classes[loc] = startPreferred
			default:
				classes[loc] = startIneligible
			}
		}
	}
	return classes, nil
}

// typeBound returns the class a step pins its location to, if any.
func typeBound(s Step) (string, bool, error) {
	var bounds []string
	if r, ok := s.Root.(ir.QueryRoot); ok {
		bounds = append(bounds, r.Classes...)
	}
	if s.Coerce != nil {
		bounds = append(bounds, s.Coerce.Classes...)
	}
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)
	switch len(bounds) {
	case 0:
		return "", false, nil
	case 1:
		return bounds[0], true, nil
	}
	return "", false, ir.Assertf(startPointsPass, "conflicting type bounds %v", bounds)
}

func checkBound(loc ir.Location, seen map[ir.Location]string, bound string) error {
	if prev, ok := seen[loc]; ok && prev != "" && prev != bound {
		return ir.Assertf(startPointsPass, "location %s bound to both %s and %s", loc, prev, bound)
	}
	return nil
}

// ExposeIdealQueryExecutionStartPoints leaves a class: clause only where
// OrientDB should start evaluating: at preferred locations when there are
// any, otherwise at every eligible location. Other type bounds are removed
// or turned into INSTANCEOF filters.
func ExposeIdealQueryExecutionStartPoints(cq CompoundQuery, meta *ir.QueryMetadataTable) (CompoundQuery, error) {
	out := CompoundQuery{Queries: make([]Query, len(cq.Queries))}
	for i, q := range cq.Queries {
		classes, err := classifyLocations(q)
		if err != nil {
			return CompoundQuery{}, err
		}
		var hasPreferred, hasEligible bool
		for _, c := range classes {
			hasPreferred = hasPreferred || c == startPreferred
			hasEligible = hasEligible || c == startEligible
		}
		switch {
		case hasPreferred:
			q, err = exposePreferredLocations(q, classes, meta)
		case hasEligible:
			q, err = exposeEligibleLocations(q, classes, meta)
		default:
			err = ir.Assertf(startPointsPass, "query has no eligible start location")
		}
		if err != nil {
			return CompoundQuery{}, err
		}
		out.Queries[i] = q
	}
	return out, nil
}

func exposePreferredLocations(q Query, classes map[ir.Location]startClass, meta *ir.QueryMetadataTable) (Query, error) {
	preferred := make(map[ir.Location]string)
	eligible := make(map[ir.Location]string)
	return q.mapSteps(func(s Step) (Step, error) {
		loc, _ := s.Location()
		bound, hasBound, err := typeBound(s)
		if err != nil {
			return Step{}, err
		}
		switch classes[loc] {
		case startPreferred:
			if prev, seen := preferred[loc]; seen {
				if hasBound && prev != bound {
					return Step{}, ir.Assertf(startPointsPass, "location %s bound to both %s and %s", loc, prev, bound)
				}
				return s, nil
			}
			if !hasBound {
				if bound, err = meta.TypeName(loc); err != nil {
					return Step{}, err
				}
				s.Coerce = &ir.CoerceType{Classes: []string{bound}}
			}
			preferred[loc] = bound

		case startEligible:
			prev, seen := eligible[loc]
			if !hasBound {
				if !seen {
					eligible[loc] = ""
				}
				return s, nil
			}
			if err := checkBound(loc, eligible, bound); err != nil {
				return Step{}, err
			}
			eligible[loc] = bound

			info, err := meta.LocationInfo(loc)
			if err != nil {
				return Step{}, err
			}
			if info.CoercedFromType == nil || (seen && prev != "") {
				if _, ok := s.Root.(ir.QueryRoot); ok {
					s.Root = nil
				}
				s.Coerce = nil
				return s, nil
			}
			if _, ok := s.Root.(ir.QueryRoot); ok || s.Coerce == nil {
				return Step{}, ir.Assertf(startPointsPass, "coerced location %s has no CoerceType to lower", loc)
			}
			where, err := coerceIntoWhere(*s.Coerce, s.Where)
			if err != nil {
				return Step{}, err
			}
			s.Coerce = nil
			s.Where = where
		}
		return s, nil
	})
}

func exposeEligibleLocations(q Query, classes map[ir.Location]startClass, meta *ir.QueryMetadataTable) (Query, error) {
	eligible := make(map[ir.Location]string)
	return q.mapSteps(func(s Step) (Step, error) {
		loc, _ := s.Location()
		if classes[loc] != startEligible {
			return s, nil
		}
		bound, hasBound, err := typeBound(s)
		if err != nil {
			return Step{}, err
		}
		if hasBound {
			if err := checkBound(loc, eligible, bound); err != nil {
				return Step{}, err
			}
		} else {
			if bound, err = meta.TypeName(loc); err != nil {
				return Step{}, err
			}
			s.Coerce = &ir.CoerceType{Classes: []string{bound}}
		}
		eligible[loc] = bound
		return s, nil
	})
}
