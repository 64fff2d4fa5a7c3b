package geojson

import (
	"fmt"

	"github.com/MeKo-Tech/osmpolygon/internal/types"
	"github.com/paulmach/orb/geojson"
)

// AssembledRelationToGeoJSON converts an assembled multipolygon relation to a
// single-feature GeoJSON FeatureCollection carrying the relation's
// reconciled tags and id.
func AssembledRelationToGeoJSON(rel types.AssembledRelation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	feature := geojson.NewFeature(rel.MultiPolygon)
	feature.Properties = make(map[string]interface{}, len(rel.Tags)+2)
	for k, v := range rel.Tags {
		feature.Properties[k] = v
	}
	feature.Properties["osm_id"] = fmt.Sprintf("relation/%d", rel.RelationID)
	if !rel.Timestamp.IsZero() {
		feature.Properties["assembled_at"] = rel.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
	}

	fc.Append(feature)
	return fc
}

// SecondaryPolygonsToGeoJSON converts the secondary polygons split out of a
// relation's tagged inner rings into their own FeatureCollection, one
// feature per polygon.
func SecondaryPolygonsToGeoJSON(secondary []types.SecondaryPolygon) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, sp := range secondary {
		feature := geojson.NewFeature(sp.Polygon)
		feature.Properties = make(map[string]interface{}, len(sp.Tags)+1)
		for k, v := range sp.Tags {
			feature.Properties[k] = v
		}
		feature.Properties["osm_id"] = fmt.Sprintf("way/%d", sp.SourceWayID)
		fc.Append(feature)
	}

	return fc
}
