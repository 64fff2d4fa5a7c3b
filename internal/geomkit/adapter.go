// Package geomkit is the geometry backend for internal/mpassembly. It is the
// only package in the module that imports both github.com/paulmach/orb and
// github.com/pmezard/gogeos/geos, and the only package that crosses a cgo
// boundary. The assembler uses orb only for its point, ring and polygon types
// and never imports gogeos; every geometric predicate and construction it
// needs goes through the Adapter methods declared here.
package geomkit

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/pmezard/gogeos/geos"
)

// Orientation mirrors the CW/CCW distinction the assembler cares about for a
// ring's exterior coordinate sequence.
type Orientation int

const (
	Clockwise Orientation = iota
	CounterClockwise
)

func (o Orientation) String() string {
	if o == Clockwise {
		return "clockwise"
	}
	return "counter-clockwise"
}

func (o Orientation) Opposite() Orientation {
	if o == Clockwise {
		return CounterClockwise
	}
	return Clockwise
}

// geosMu serializes every call into the GEOS C library. gogeos's context is
// not safe for concurrent use from multiple goroutines; every exported
// Adapter method takes this lock for the duration of its GEOS calls.
var geosMu sync.Mutex

// Adapter is the thin shim between mpassembly and the underlying geometry
// libraries: it exposes exactly the operations the assembler needs, and
// nothing of either underlying library's surface beyond that.
type Adapter struct{}

// New returns a ready-to-use Adapter. It carries no state; a zero Adapter{}
// would work just as well, but callers construct one via New for symmetry
// with the rest of the module's constructors.
func New() *Adapter {
	return &Adapter{}
}

func toCoord(p orb.Point) geos.Coord {
	return geos.Coord{X: p[0], Y: p[1]}
}

func toCoords(pts []orb.Point) []geos.Coord {
	out := make([]geos.Coord, len(pts))
	for i, p := range pts {
		out[i] = toCoord(p)
	}
	return out
}

func ringPoints(r orb.Ring) []orb.Point {
	return []orb.Point(r)
}

// IsSimpleLineString reports whether an open or closed coordinate sequence
// self-intersects anywhere other than shared endpoints, per GEOS's isSimple.
func (a *Adapter) IsSimpleLineString(coords []orb.Point) (bool, error) {
	if len(coords) < 2 {
		return false, fmt.Errorf("geomkit: line string needs at least 2 points, got %d", len(coords))
	}
	geosMu.Lock()
	defer geosMu.Unlock()
	ls, err := geos.NewLineString(toCoords(coords))
	if err != nil {
		return false, fmt.Errorf("geomkit: build line string: %w", err)
	}
	return ls.IsSimple()
}

// IsSimpleRing reports whether a closed ring is simple.
func (a *Adapter) IsSimpleRing(ring orb.Ring) (bool, error) {
	return a.IsSimpleLineString(ringPoints(ring))
}

// IsValidRing reports whether coords, treated as a closed linear ring, is
// valid per GEOS (closed, ≥4 points, no self-intersections).
func (a *Adapter) IsValidRing(coords []orb.Point) (bool, error) {
	if len(coords) < 4 {
		return false, nil
	}
	geosMu.Lock()
	defer geosMu.Unlock()
	lr, err := geos.NewLinearRing(toCoords(coords))
	if err != nil {
		return false, nil
	}
	return lr.IsValid()
}

// ringToGeosPolygon builds a hole-less GEOS polygon from an orb.Ring.
func ringToGeosPolygon(r orb.Ring) (*geos.Geometry, error) {
	return geos.NewPolygon(toCoords(ringPoints(r)))
}

// Contains reports whether outer's polygon geometrically contains inner's
// polygon (both rings treated as hole-less polygons for the test, matching
// how the nesting resolver uses it to build the containment matrix).
func (a *Adapter) Contains(outer, inner orb.Ring) (bool, error) {
	geosMu.Lock()
	defer geosMu.Unlock()
	op, err := ringToGeosPolygon(outer)
	if err != nil {
		return false, fmt.Errorf("geomkit: outer polygon: %w", err)
	}
	ip, err := ringToGeosPolygon(inner)
	if err != nil {
		return false, fmt.Errorf("geomkit: inner polygon: %w", err)
	}
	return op.Contains(ip)
}

// IntersectionKind classifies the result geometry of an exterior/exterior
// intersection test, matching the type switch the inner-ring touch fixer
// performs on it.
type IntersectionKind int

const (
	IntersectionNone IntersectionKind = iota
	IntersectionLinear                // LineString or MultiLineString
	IntersectionOther
)

// RingsTouch reports whether two ring exteriors intersect, and if so how.
// The inner-ring touch fixer calls Intersects followed by a type check on
// Intersection to decide whether two rings merely cross or share a boundary
// arc.
func (a *Adapter) RingsTouch(x, y orb.Ring) (IntersectionKind, error) {
	geosMu.Lock()
	defer geosMu.Unlock()
	gx, err := geos.NewLinearRing(toCoords(ringPoints(x)))
	if err != nil {
		return IntersectionNone, fmt.Errorf("geomkit: ring x: %w", err)
	}
	gy, err := geos.NewLinearRing(toCoords(ringPoints(y)))
	if err != nil {
		return IntersectionNone, fmt.Errorf("geomkit: ring y: %w", err)
	}
	ok, err := gx.Intersects(gy)
	if err != nil || !ok {
		return IntersectionNone, err
	}
	inter, err := gx.Intersection(gy)
	if err != nil {
		// An intersection that throws is treated as "no usable
		// intersection" rather than fatal.
		return IntersectionNone, nil //nolint:nilerr
	}
	typ, err := inter.Type()
	if err != nil {
		return IntersectionNone, err
	}
	if typ == geos.LINESTRING || typ == geos.MULTILINESTRING {
		return IntersectionLinear, nil
	}
	return IntersectionOther, nil
}

// MergeTouchingRings computes the symmetric difference of two touching ring
// exteriors and polygonizes the result. It returns the single merged ring
// and true only when polygonization yields exactly one polygon; any other
// count is left untouched by the caller.
func (a *Adapter) MergeTouchingRings(x, y orb.Ring) (orb.Ring, bool, error) {
	geosMu.Lock()
	defer geosMu.Unlock()
	gx, err := geos.NewLinearRing(toCoords(ringPoints(x)))
	if err != nil {
		return nil, false, err
	}
	gy, err := geos.NewLinearRing(toCoords(ringPoints(y)))
	if err != nil {
		return nil, false, err
	}
	diff, err := gx.SymDifference(gy)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}
	polys, err := geos.Polygonize(diff)
	if err != nil || polys == nil {
		return nil, false, nil //nolint:nilerr
	}
	n, err := polys.NGeometry()
	if err != nil {
		return nil, false, err
	}
	if n != 1 {
		return nil, false, nil
	}
	poly, err := polys.Geometry(0)
	if err != nil {
		return nil, false, err
	}
	shell, err := poly.Shell()
	if err != nil {
		return nil, false, err
	}
	ring, err := ringFromGeos(shell)
	if err != nil {
		return nil, false, err
	}
	return ring, true, nil
}

func ringFromGeos(g *geos.Geometry) (orb.Ring, error) {
	coords, err := g.Coords()
	if err != nil {
		return nil, err
	}
	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		ring[i] = orb.Point{c.X, c.Y}
	}
	return ring, nil
}

// ValidatedPolygon builds a GEOS polygon from an exterior ring and zero or
// more interior rings and reports whether it is valid. The orientation of
// every ring is exactly as given; the caller (internal/mpassembly) is
// responsible for normalizing orientation before calling this.
func (a *Adapter) ValidatedPolygon(exterior orb.Ring, holes []orb.Ring) (orb.Polygon, bool, error) {
	geosMu.Lock()
	defer geosMu.Unlock()
	shellCoords := toCoords(ringPoints(exterior))
	holeCoords := make([][]geos.Coord, len(holes))
	for i, h := range holes {
		holeCoords[i] = toCoords(ringPoints(h))
	}
	poly, err := geos.NewPolygon(shellCoords, holeCoords...)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}
	valid, err := poly.IsValid()
	if err != nil {
		return nil, false, err
	}
	out := make(orb.Polygon, 0, 1+len(holes))
	out = append(out, append(orb.Ring{}, exterior...))
	out = append(out, holes...)
	return out, valid, nil
}

// ValidMultiPolygon reports whether the union of polygons forms a valid
// GEOS multipolygon.
func (a *Adapter) ValidMultiPolygon(mp orb.MultiPolygon) (bool, error) {
	geosMu.Lock()
	defer geosMu.Unlock()
	geoms := make([]*geos.Geometry, 0, len(mp))
	for _, poly := range mp {
		shellCoords := toCoords(ringPoints(poly[0]))
		holeCoords := make([][]geos.Coord, len(poly)-1)
		for i, h := range poly[1:] {
			holeCoords[i] = toCoords(ringPoints(h))
		}
		g, err := geos.NewPolygon(shellCoords, holeCoords...)
		if err != nil {
			return false, nil //nolint:nilerr
		}
		geoms = append(geoms, g)
	}
	collection, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return false, err
	}
	return collection.IsValid()
}

// Reverse returns a new ring with the coordinate order reversed; it never
// calls into GEOS, since reversal is a pure coordinate-sequence operation.
func (a *Adapter) Reverse(ring orb.Ring) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// Orientation reports the winding direction of a ring's exterior coordinate
// sequence using orb's native CCW test — the one operation the adapter
// serves directly from orb rather than GEOS, since orb.Ring already
// implements it without a cgo round-trip.
func (a *Adapter) Orientation(ring orb.Ring) Orientation {
	if ring.Orientation() == orb.CCW {
		return CounterClockwise
	}
	return Clockwise
}

// Distance returns the planar (non-geodesic) distance between two points,
// matching GEOS's DistanceOp semantics: it operates on raw coordinate
// values, not great-circle distance. OSM node coordinates are close enough
// together within one relation that the planar approximation is accurate
// enough for gap-repair matching.
func (a *Adapter) Distance(p1, p2 orb.Point) float64 {
	dx := p1[0] - p2[0]
	dy := p1[1] - p2[1]
	return math.Sqrt(dx*dx + dy*dy)
}
