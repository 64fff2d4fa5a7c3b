package mpassembly

import (
	"sort"

	"github.com/MeKo-Tech/osmpolygon/internal/geomkit"
	"github.com/paulmach/orb"
)

// ringInfo is one assembled ring. Parent/child links are
// expressed as RingId indices into the assembler's ring arena rather than
// pointers.
type ringInfo struct {
	exterior orb.Ring
	dir      geomkit.Orientation
	ways     []WayId // composing WayIds, in build order
	id       RingId
	parent   RingId // noRing if this ring is an outer
	inner    []RingId
	nested   bool
	dropped  bool // set true by the inner-ring touch fixer when merged away
}

// frame is one level of the explicit-stack DFS that replaces native
// recursion: ring chains can run to thousands of ways, deep enough to blow
// a call stack.
type frame struct {
	last         NodeID
	seq          int
	scanFrom     int
	causeIdx     int // way index consumed by the parent frame to create this one; -1 for the root
	causeOldUsed int
}

func resetTried(ways []*wayInfo) {
	for _, wi := range ways {
		if wi.used < 0 {
			wi.tried = false
		}
	}
}

// closeRing performs an "extend" backtracking search: find
// a sequence of unused ways connecting startLast back to first, marking
// each consumed way's used/sequence/invert fields as it goes. It mutates
// ways in place and leaves the winning chain marked with used == ringID on
// success; on failure every way it touched is restored to its prior state.
func closeRing(ways []*wayInfo, first NodeID, ringID RingId, startLast NodeID, startSeq int) bool {
	if first != 0 && first == startLast {
		return true
	}
	resetTried(ways)
	stack := []frame{{last: startLast, seq: startSeq, scanFrom: 0, causeIdx: -1}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		found := -1
		var newLast NodeID
		var invert bool

		for i := top.scanFrom; i < len(ways); i++ {
			wi := ways[i]
			if wi.used >= 0 || wi.tried {
				continue
			}
			wi.tried = true
			switch {
			case wi.firstNode == top.last:
				newLast, invert, found = wi.lastNode, false, i
			case wi.lastNode == top.last:
				newLast, invert, found = wi.firstNode, true, i
			}
			if found >= 0 {
				top.scanFrom = i + 1
				break
			}
		}

		if found < 0 {
			stack = stack[:len(stack)-1]
			if top.causeIdx >= 0 {
				ways[top.causeIdx].used = top.causeOldUsed
			}
			continue
		}

		wi := ways[found]
		oldUsed := wi.used
		wi.used = int(ringID)
		wi.sequence = top.seq
		wi.invert = invert

		if first != 0 && newLast == first {
			return true
		}

		resetTried(ways)
		stack = append(stack, frame{
			last:         newLast,
			seq:          top.seq + 1,
			scanFrom:     0,
			causeIdx:     found,
			causeOldUsed: oldUsed,
		})
	}
	return false
}

// buildOneRing extracts one closed ring from the unused ways. It returns
// (nil, nil) when no further ring can be built — the driver's signal to
// stop the ring-building pass.
func buildOneRing(adapter *geomkit.Adapter, ways []*wayInfo, ringID RingId, opts Options) (*ringInfo, error) {
	seedIdx := -1
	for i, wi := range ways {
		if wi.used == usedAvailable {
			seedIdx = i
			break
		}
	}
	if seedIdx == -1 {
		return nil, nil
	}

	seed := ways[seedIdx]
	seed.used = int(ringID)
	seed.sequence = 0
	seed.invert = false

	if !closeRing(ways, seed.firstNode, ringID, seed.lastNode, 1) {
		seed.used = usedDeadEnd
		return nil, nil
	}

	return assembleRingFromUsed(adapter, ways, ringID, opts)
}

// assembleRingFromUsed concatenates every way currently marked used == ringID
// (in ascending sequence order, reversing inverted ways) into a coordinate
// sequence, then validates or salvages it into a RingInfo.
func assembleRingFromUsed(adapter *geomkit.Adapter, ways []*wayInfo, ringID RingId, opts Options) (*ringInfo, error) {
	var members []WayId
	for i, wi := range ways {
		if wi.used == int(ringID) {
			members = append(members, WayId(i))
		}
	}
	sort.Slice(members, func(a, b int) bool {
		return ways[members[a]].sequence < ways[members[b]].sequence
	})

	var coords []orb.Point
	for _, wid := range members {
		seg := ways[wid].orientedCoords()
		if len(coords) > 0 && len(seg) > 0 && coords[len(coords)-1] == seg[0] {
			seg = seg[1:]
		}
		coords = append(coords, seg...)
	}
	if len(coords) > 1 && coords[0] != coords[len(coords)-1] {
		coords = append(coords, coords[0])
	}

	simple, err := adapter.IsSimpleLineString(coords)
	if err != nil {
		return nil, err
	}
	valid := false
	ring := orb.Ring(coords)
	if simple {
		valid, err = adapter.IsValidRing(coords)
		if err != nil {
			return nil, err
		}
	}

	if !simple || !valid {
		if !opts.AttemptRepair {
			return nil, nil
		}
		salvaged, ok, err := salvageRing(adapter, coords)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		ring = salvaged
	}

	return &ringInfo{
		exterior: ring,
		dir:      adapter.Orientation(ring),
		ways:     members,
		id:       ringID,
		parent:   noRing,
	}, nil
}
