// Package mpassembly assembles OpenStreetMap multipolygon relations into
// validated planar multipolygons. It stitches member ways into closed rings,
// repairs dangling ends and self-intersecting rings, resolves inner/outer
// nesting by geometric containment, reconciles tags, and emits secondary
// polygons for tagged inner singletons.
//
// The package never touches a geometry library directly; all geometric
// predicates and constructions go through internal/geomkit.
package mpassembly

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
)

// Role is a member way's advisory position inside a relation. The assembler
// never trusts it for nesting — only for the role-mismatch warnings and the
// final role bookkeeping.
type Role int

const (
	RoleUnset Role = iota
	RoleInner
	RoleOuter
)

func (r Role) String() string {
	switch r {
	case RoleInner:
		return "inner"
	case RoleOuter:
		return "outer"
	default:
		return "unset"
	}
}

// NodeID identifies a way's terminal node. Real OSM node ids are stable
// integers; synthesized gap-filler ways mint a NodeID from the endpoint they
// were built to connect (see internal/datasource for how upstream loaders
// without real node ids derive one).
type NodeID int64

// Way is a single member way as the assembler sees it: read-only input data,
// already resolved by an external loader.
type Way struct {
	ID        int64
	Coords    []orb.Point // ≥2 points, in the way's stored order
	FirstNode NodeID
	LastNode  NodeID
	Tags      map[string]string
	Timestamp time.Time
	Role      Role
}

// RelationInput is the relation-level input: its own tags/timestamp/id. The
// member ways are passed to Assemble separately. Tags are copied into a mutable set internally
// because tag reconciliation can merge way tags into the relation.
type RelationInput struct {
	ID        int64
	Tags      map[string]string
	Timestamp time.Time
}

// Options controls assembly behavior.
type Options struct {
	// AttemptRepair enables the gap repairer and the ring salvager's
	// acceptance of a repaired ring. When false, any dangling endpoint is
	// fatal, and a candidate ring that is not simple and valid is not
	// salvaged: no ring is built from it and that ring-building pass ends.
	AttemptRepair bool
	// OnSecondaryPolygon receives a SecondaryPolygon for every tagged inner
	// singleton. It may be nil.
	OnSecondaryPolygon func(SecondaryPolygon)
}

// SecondaryPolygon is a single-polygon multipolygon emitted via callback for
// a tagged inner ring whose tags are not redundant with the relation's or
// its immediate enclosing outer ring's.
type SecondaryPolygon struct {
	SourceWayID int64
	Polygon     orb.Polygon
	Tags        map[string]string
}

// Warning is a non-fatal diagnostic collected during assembly.
type Warning struct {
	Kind   string
	Detail string
}

// Result is the successful output of Assemble.
type Result struct {
	MultiPolygon orb.MultiPolygon
	Tags         map[string]string
	Timestamp    time.Time
	Warnings     []Warning
}

// The fatal failure modes assembly can report, as sentinel errors.
var (
	ErrInvalidWayGeometry  = errors.New("invalid way geometry in multipolygon relation member")
	ErrDanglingEnds        = errors.New("un-connectable dangling ends")
	ErrNoRings             = errors.New("no rings")
	ErrInvalidRing         = errors.New("invalid ring")
	ErrInvalidMultiPolygon = errors.New("multipolygon invalid")
)

const (
	warnDuplicateTagsOnInner = "duplicate_tags_on_inner"
	warnRoleMismatch         = "role_mismatch"
	warnTagCollision         = "tag_collision"
)
