package mpassembly

import (
	"github.com/MeKo-Tech/osmpolygon/internal/geomkit"
	"github.com/paulmach/orb"
)

// fixOrientation reverses ring if its winding doesn't match want.
func fixOrientation(adapter *geomkit.Adapter, ring orb.Ring, want geomkit.Orientation) orb.Ring {
	if adapter.Orientation(ring) == want {
		return ring
	}
	return adapter.Reverse(ring)
}

// ringTags merges the tags of every way composing ring, skipping ignored
// keys. A ring whose ways are all untagged returns nil.
func ringTags(ways []*wayInfo, ring *ringInfo) map[string]string {
	var result map[string]string
	for _, wid := range ring.ways {
		wi := ways[wid]
		if wi.source == nil || untagged(wi.source.Tags) {
			continue
		}
		result = mergeTags(result, wi.source.Tags)
	}
	return result
}

// assemblePolygons walks the nesting tree and builds one orb.Polygon per
// top-level (parent == noRing) ring, with its direct odd-contained children
// as holes. Orientation is normalized: shells
// counter-clockwise, holes clockwise.
//
// It also emits a SecondaryPolygon for every hole built from a single way
// that carries tags distinct from both the relation's reconciled tags and
// (when the enclosing shell is itself a single way) that way's tags.
func assemblePolygons(adapter *geomkit.Adapter, ways []*wayInfo, rings []*ringInfo, relationTags map[string]string, opts Options) (orb.MultiPolygon, []Warning, error) {
	var mp orb.MultiPolygon
	var warnings []Warning

	for _, o := range rings {
		if o.parent != noRing || o.dropped {
			continue
		}

		shell := fixOrientation(adapter, o.exterior, geomkit.CounterClockwise)

		var holes []orb.Ring
		for _, hid := range o.inner {
			h := ringByID(rings, hid)
			if h.dropped {
				continue
			}
			holes = append(holes, fixOrientation(adapter, h.exterior, geomkit.Clockwise))

			if opts.OnSecondaryPolygon == nil || len(h.ways) != 1 {
				continue
			}
			ht := ringTags(ways, h)
			if len(ht) == 0 {
				continue
			}
			if sameTags(ht, relationTags) {
				warnings = append(warnings, Warning{
					Kind:   warnDuplicateTagsOnInner,
					Detail: "inner ring tags duplicate the relation's reconciled tags; ignoring",
				})
				continue
			}
			if len(o.ways) == 1 && sameTags(ht, ringTags(ways, o)) {
				warnings = append(warnings, Warning{
					Kind:   warnDuplicateTagsOnInner,
					Detail: "inner ring tags duplicate the single enclosing outer way's tags; ignoring",
				})
				continue
			}
			secShell := fixOrientation(adapter, h.exterior, geomkit.CounterClockwise)
			opts.OnSecondaryPolygon(SecondaryPolygon{
				SourceWayID: firstSourceWayID(ways, h),
				Polygon:     orb.Polygon{secShell},
				Tags:        ht,
			})
		}

		poly, ok, err := adapter.ValidatedPolygon(shell, holes)
		if err != nil {
			return nil, warnings, err
		}
		if !ok {
			return nil, warnings, ErrInvalidRing
		}
		mp = append(mp, poly)
	}

	if len(mp) == 0 {
		return nil, warnings, ErrNoRings
	}

	valid, err := adapter.ValidMultiPolygon(mp)
	if err != nil {
		return nil, warnings, err
	}
	if !valid {
		return nil, warnings, ErrInvalidMultiPolygon
	}

	return mp, warnings, nil
}

func firstSourceWayID(ways []*wayInfo, ring *ringInfo) int64 {
	for _, wid := range ring.ways {
		if wi := ways[wid]; wi.source != nil {
			return wi.source.ID
		}
	}
	return 0
}
