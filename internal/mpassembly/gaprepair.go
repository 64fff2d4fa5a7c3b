package mpassembly

import (
	"sort"

	"github.com/MeKo-Tech/osmpolygon/internal/geomkit"
	"github.com/paulmach/orb"
)

func orbPoint(xy [2]float64) orb.Point {
	return orb.Point{xy[0], xy[1]}
}

// findAndRepairHoles scans every unused way, finds dangling endpoints (node
// ids that terminate exactly one unused way), and synthesizes straight-line
// filler ways connecting nearest pairs until fewer than two remain.
// It returns the possibly-extended ways slice and false if
// dangling endpoints exist but repair is disabled.
func findAndRepairHoles(adapter *geomkit.Adapter, ways []*wayInfo, opts Options) ([]*wayInfo, bool, error) {
	type endpoint struct {
		node NodeID
		pt   [2]float64
	}
	present := map[NodeID]endpoint{}

	toggle := func(nid NodeID, x, y float64) {
		if _, ok := present[nid]; ok {
			delete(present, nid)
		} else {
			present[nid] = endpoint{node: nid, pt: [2]float64{x, y}}
		}
	}

	for _, wi := range ways {
		if wi.used < 0 {
			wi.role = RoleUnset
			wi.used = usedAvailable
			last := wi.coords[len(wi.coords)-1]
			first := wi.coords[0]
			toggle(wi.lastNode, last[0], last[1])
			toggle(wi.firstNode, first[0], first[1])
		}
	}

	for {
		if len(present) == 0 {
			break
		}
		ids := make([]NodeID, 0, len(present))
		for id := range present {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

		n1 := present[ids[0]]
		delete(present, ids[0])

		if len(present) == 0 {
			// A single dangling endpoint with no partner. This shouldn't
			// happen since dangling endpoints come in pairs, but guard
			// against it rather than loop forever.
			break
		}

		bestID := NodeID(0)
		bestDist := -1.0
		for id, ep := range present {
			p1 := orbPoint(n1.pt)
			p2 := orbPoint(ep.pt)
			d := adapter.Distance(p1, p2)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				bestID = id
			}
		}

		if !opts.AttemptRepair {
			return ways, false, nil
		}

		n2 := present[bestID]
		delete(present, bestID)

		ways = append(ways, newGapFillerWayInfo(orbPoint(n1.pt), orbPoint(n2.pt), n1.node, n2.node))
	}

	return ways, true, nil
}
