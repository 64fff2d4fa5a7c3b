package mpassembly

import (
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/geomkit"
)

// Assemble builds the validated multipolygon for one relation from its
// member ways. It runs, in order: way validation, ring
// building, dangling-end repair, a second ring-building pass over any
// synthesized filler ways, nesting resolution, inner-ring touch fixing, tag
// reconciliation, and final polygon/multipolygon construction.
func Assemble(rel RelationInput, memberWays []Way, opts Options) (Result, error) {
	adapter := geomkit.New()

	ways := make([]*wayInfo, 0, len(memberWays))
	for i := range memberWays {
		w := &memberWays[i]
		if len(w.Coords) < 2 {
			return Result{}, ErrInvalidWayGeometry
		}
		ways = append(ways, newWayInfoFromWay(w))
	}
	if len(ways) == 0 {
		return Result{}, ErrNoRings
	}

	rings, err := buildRings(adapter, ways, opts)
	if err != nil {
		return Result{}, err
	}

	ways, resolved, err := findAndRepairHoles(adapter, ways, opts)
	if err != nil {
		return Result{}, err
	}
	if !resolved {
		return Result{}, ErrDanglingEnds
	}

	more, err := buildRings(adapter, ways, opts, RingId(len(rings)))
	if err != nil {
		return Result{}, err
	}
	rings = append(rings, more...)

	if len(rings) == 0 {
		return Result{}, ErrNoRings
	}

	if err := resolveNesting(adapter, rings); err != nil {
		return Result{}, err
	}
	if err := fixInnerRingTouches(adapter, rings); err != nil {
		return Result{}, err
	}

	relationTags, tagWarnings := reconcileTags(rel, outerRingWays(ways, rings))

	mp, polyWarnings, err := assemblePolygons(adapter, ways, rings, relationTags, opts)
	if err != nil {
		return Result{}, err
	}

	warnings := append(tagWarnings, polyWarnings...)
	warnings = append(warnings, roleMismatchWarnings(ways, rings)...)

	return Result{
		MultiPolygon: mp,
		Tags:         relationTags,
		Timestamp:    latestTimestamp(rel, ways),
		Warnings:     warnings,
	}, nil
}

// buildRings repeatedly extracts rings from ways starting at startID (default
// 0), stopping as soon as no further ring can be built. A
// ring's id is only consumed on success, so failed attempts don't create
// gaps in the id sequence.
func buildRings(adapter *geomkit.Adapter, ways []*wayInfo, opts Options, startID ...RingId) ([]*ringInfo, error) {
	id := RingId(0)
	if len(startID) > 0 {
		id = startID[0]
	}
	var rings []*ringInfo
	for {
		r, err := buildOneRing(adapter, ways, id, opts)
		if err != nil {
			return rings, err
		}
		if r == nil {
			return rings, nil
		}
		rings = append(rings, r)
		id++
	}
}

// outerRingWays collects the ways belonging to geometrically outer rings
// (rings with no parent), ignoring each way's advisory declared role: a way
// left at RoleUnset, or even one mis-declared as inner, still counts here as
// long as the ring it ended up in nests at the top level.
func outerRingWays(ways []*wayInfo, rings []*ringInfo) []*wayInfo {
	var outer []*wayInfo
	for _, wi := range ways {
		if wi.used < 0 {
			continue
		}
		if ringByID(rings, RingId(wi.used)).parent == noRing {
			outer = append(outer, wi)
		}
	}
	return outer
}

// roleMismatchWarnings flags ways whose declared role disagrees with the
// geometric nesting outcome of the ring they ended up part of.
func roleMismatchWarnings(ways []*wayInfo, rings []*ringInfo) []Warning {
	var warnings []Warning
	for _, wi := range ways {
		if wi.used < 0 || wi.origRole == RoleUnset {
			continue
		}
		r := ringByID(rings, RingId(wi.used))
		isOuter := r.parent == noRing
		if isOuter != (wi.origRole == RoleOuter) {
			warnings = append(warnings, Warning{
				Kind:   warnRoleMismatch,
				Detail: "member way's declared role disagrees with its geometric nesting",
			})
		}
	}
	return warnings
}

func latestTimestamp(rel RelationInput, ways []*wayInfo) time.Time {
	latest := rel.Timestamp
	for _, wi := range ways {
		if wi.source == nil {
			continue
		}
		if wi.source.Timestamp.After(latest) {
			latest = wi.source.Timestamp
		}
	}
	return latest
}
