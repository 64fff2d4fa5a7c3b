package datasource

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/paulmach/orb"
)

// nodeIDPrecision matches OSM's own coordinate precision (7 decimal
// degrees). go-overpass exposes way geometry but not the stable node ids
// shared between ways, so two way endpoints are treated as the same node
// whenever they round to the same quantized key.
const nodeIDPrecision = 1e7

func quantizedNodeID(p orb.Point) mpassembly.NodeID {
	lon := int64(math.Round(p[0] * nodeIDPrecision))
	lat := int64(math.Round(p[1] * nodeIDPrecision))
	// Fold into a single 63-bit key; longitude in the high bits keeps
	// collisions between distinct (lon, lat) pairs astronomically unlikely
	// at this precision.
	return mpassembly.NodeID((lon << 28) ^ lat)
}

// UnmarshalOverpassJSON decodes an Overpass API JSON response into an overpass.Result.
// This is used by the WASM playground (browser fetch + Go-side parsing).
func UnmarshalOverpassJSON(data []byte) (*overpass.Result, error) {
	var result overpass.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overpass json: %w", err)
	}
	return &result, nil
}

// ResolveMultipolygonRelation walks rel.Members, takes each member way from
// the member's embedded Way (looking in result.Ways, keyed by wayRefID, only
// when that is nil), and builds the mpassembly inputs needed to assemble the
// relation. It fails if a member way is missing or has fewer than two coordinates —
// the practical origin of ErrInvalidWayGeometry.
func ResolveMultipolygonRelation(result *overpass.Result, rel *overpass.Relation) (mpassembly.RelationInput, []mpassembly.Way, error) {
	relInput := mpassembly.RelationInput{ID: rel.ID, Tags: rel.Tags}

	var ways []mpassembly.Way
	for _, member := range rel.Members {
		if member.Type != "way" {
			continue
		}

		way := member.Way
		if way == nil && result != nil {
			way = result.Ways[wayRefID(member)]
		}
		if way == nil || len(way.Geometry) < 2 {
			return relInput, nil, fmt.Errorf("%w: relation %d member way missing or degenerate", mpassembly.ErrInvalidWayGeometry, rel.ID)
		}

		coords := make([]orb.Point, len(way.Geometry))
		for i, pt := range way.Geometry {
			coords[i] = orb.Point{pt.Lon, pt.Lat}
		}

		role := mpassembly.RoleUnset
		switch member.Role {
		case "outer":
			role = mpassembly.RoleOuter
		case "inner":
			role = mpassembly.RoleInner
		}

		ways = append(ways, mpassembly.Way{
			ID:        way.ID,
			Coords:    coords,
			FirstNode: quantizedNodeID(coords[0]),
			LastNode:  quantizedNodeID(coords[len(coords)-1]),
			Tags:      way.Tags,
			Role:      role,
		})
	}

	return relInput, ways, nil
}

// wayRefID extracts the referenced way id from a relation member. go-overpass
// embeds the way object for fixtures but, against the real API, member ways
// must be fetched separately; this returns 0 when no reference is available,
// which never matches a real way id.
func wayRefID(member overpass.RelationMember) int64 {
	if member.Way != nil {
		return member.Way.ID
	}
	return 0
}
