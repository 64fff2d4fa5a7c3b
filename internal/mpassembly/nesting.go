package mpassembly

import "github.com/MeKo-Tech/osmpolygon/internal/geomkit"

// resolveNesting computes the pairwise containment matrix over the final
// ring list, reduces it to direct parent/child relations, and assigns each
// ring's parent and inner-ring list. Ring ids are dense
// indices into rings, so RingId doubles as a slice index.
func resolveNesting(adapter *geomkit.Adapter, rings []*ringInfo) error {
	n := len(rings)
	contains := make([][]bool, n)
	containedByEven := make([]bool, n)
	for i := range rings {
		contains[i] = make([]bool, n)
		containedByEven[i] = true
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || contains[j][i] {
				continue
			}
			ok, err := adapter.Contains(rings[i].exterior, rings[j].exterior)
			if err != nil {
				return err
			}
			contains[i][j] = ok
			containedByEven[j] = containedByEven[j] != ok
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !contains[i][j] {
				continue
			}
			for k := 0; k < n; k++ {
				if k == i || k == j {
					continue
				}
				if contains[i][k] && contains[k][j] {
					contains[i][j] = false
					rings[j].nested = true
					break
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if contains[i][j] && !containedByEven[j] {
				rings[j].parent = rings[i].id
				rings[i].inner = append(rings[i].inner, rings[j].id)
			}
		}
	}
	return nil
}

func ringByID(rings []*ringInfo, id RingId) *ringInfo {
	return rings[int(id)]
}

// fixInnerRingTouches merges sibling inner rings of the same outer that
// share a boundary arc rather than just crossing. A merge restarts the scan
// for that outer ring from the beginning.
func fixInnerRingTouches(adapter *geomkit.Adapter, rings []*ringInfo) error {
	for _, o := range rings {
		if o.parent != noRing {
			continue
		}
		inner := o.inner
		j := 0
		for j < len(inner)-1 {
			rj := ringByID(rings, inner[j])
			if rj.dropped {
				j++
				continue
			}
			merged := false
			for k := j + 1; k < len(inner); k++ {
				rk := ringByID(rings, inner[k])
				if rk.dropped {
					continue
				}
				kind, err := adapter.RingsTouch(rj.exterior, rk.exterior)
				if err != nil {
					// A failed intersection test leaves both rings as they are.
					continue
				}
				if kind != geomkit.IntersectionLinear {
					continue
				}
				newRing, ok, err := adapter.MergeTouchingRings(rj.exterior, rk.exterior)
				if err != nil || !ok {
					continue
				}
				rj.exterior = newRing
				rj.dir = adapter.Orientation(newRing)
				rk.dropped = true
				merged = true
				break
			}
			if merged {
				j = 0
				continue
			}
			j++
		}
	}
	return nil
}
