package mpassembly

import "github.com/paulmach/orb"

// WayId and RingId are arena indices into the assembler's way/ring slices,
// avoiding pointer cross-references between the two. RingId -1 means
// "no ring"; WayId has no such sentinel need since it is always a valid
// slice index once assigned.
type WayId int
type RingId int

const noRing RingId = -1

// used sentinel values for wayInfo.used tracking ring-build availability.
const (
	usedAvailable = -1
	usedDeadEnd   = -2
)

// wayInfo wraps one member way (or a synthesized gap-filler) with assembly
// metadata. It is never exposed outside the package; callers only ever see
// Way, Result and SecondaryPolygon.
type wayInfo struct {
	coords    []orb.Point // owned coordinate sequence
	firstNode NodeID
	lastNode  NodeID

	used     int // usedAvailable, usedDeadEnd, or the consuming RingId (as int)
	sequence int // position within the owning ring's way list
	invert   bool
	tried    bool

	origRole Role
	role     Role

	source    *Way // nil for synthesized gap-fillers
	errorhint string
}

func newWayInfoFromWay(w *Way) *wayInfo {
	coords := make([]orb.Point, len(w.Coords))
	copy(coords, w.Coords)
	return &wayInfo{
		coords:    coords,
		firstNode: w.FirstNode,
		lastNode:  w.LastNode,
		used:      usedAvailable,
		origRole:  w.Role,
		role:      w.Role,
		source:    w,
	}
}

func newGapFillerWayInfo(from, to orb.Point, fromID, toID NodeID) *wayInfo {
	return &wayInfo{
		coords:    []orb.Point{from, to},
		firstNode: fromID,
		lastNode:  toID,
		used:      usedAvailable,
		origRole:  RoleUnset,
		role:      RoleUnset,
	}
}

// orientedCoords returns the way's coordinates in ring-build order,
// reversing them when invert is set.
func (wi *wayInfo) orientedCoords() []orb.Point {
	if !wi.invert {
		return wi.coords
	}
	rev := make([]orb.Point, len(wi.coords))
	for i, p := range wi.coords {
		rev[len(wi.coords)-1-i] = p
	}
	return rev
}
