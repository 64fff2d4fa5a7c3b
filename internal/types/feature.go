package types

import (
	"time"

	"github.com/paulmach/orb"
)

// AssembledRelation is the persisted record for one assembled multipolygon
// relation (internal/relstore): the geometry plus its reconciled tags,
// derived timestamp, and any secondary polygons split out of tagged inner
// rings.
type AssembledRelation struct {
	RelationID   int64
	MultiPolygon orb.MultiPolygon
	Tags         map[string]string
	Timestamp    time.Time
	Secondary    []SecondaryPolygon
}

// SecondaryPolygon is a standalone polygon derived from a tagged inner ring
// of a multipolygon relation (e.g. an island within a lake carrying its own
// feature tags).
type SecondaryPolygon struct {
	SourceWayID int64
	Polygon     orb.Polygon
	Tags        map[string]string
}
