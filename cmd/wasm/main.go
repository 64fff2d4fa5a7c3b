//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"syscall/js"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/datasource"
	"github.com/MeKo-Tech/osmpolygon/internal/geojson"
	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/MeKo-Tech/osmpolygon/internal/types"
)

// AssembleRequest is the payload the playground page sends: a relation id
// plus the raw Overpass JSON for it (and its member ways), pasted or fetched
// by the browser itself since WASM has no direct network access here.
type AssembleRequest struct {
	RelationID   int64  `json:"relationId"`
	OverpassJSON string `json:"overpassJson"`
	Repair       bool   `json:"repair"`
}

func errResult(format string, args ...interface{}) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// overpassQueryForRelation builds the Overpass QL query needed to fetch a
// multipolygon relation and the full geometry of its member ways.
func overpassQueryForRelation(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errResult("missing relation id argument")
	}
	relationID, err := strconv.ParseInt(args[0].String(), 10, 64)
	if err != nil {
		return errResult("invalid relation id: %v", err)
	}

	query := fmt.Sprintf(`
[out:json][timeout:60];
rel(%d);
out tags;
way(r);
out geom qt;
rel(%d);
out body qt;
`, relationID, relationID)

	return map[string]any{"query": query}
}

// assembleFromOverpassJSON parses pasted/fetched Overpass JSON, resolves the
// requested relation's member ways, assembles the multipolygon, and returns
// it as a GeoJSON FeatureCollection.
func assembleFromOverpassJSON(this js.Value, args []js.Value) interface{} {
	start := time.Now()
	if len(args) < 1 {
		return errResult("missing request argument")
	}

	var req AssembleRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return errResult("failed to parse request: %v", err)
	}
	if strings.TrimSpace(req.OverpassJSON) == "" {
		return errResult("empty Overpass JSON")
	}

	result, err := datasource.UnmarshalOverpassJSON([]byte(req.OverpassJSON))
	if err != nil {
		return errResult("failed to parse Overpass JSON: %v", err)
	}

	rel, ok := result.Relations[req.RelationID]
	if !ok {
		return errResult("relation %d not present in the supplied Overpass JSON", req.RelationID)
	}

	relInput, ways, err := datasource.ResolveMultipolygonRelation(result, rel)
	if err != nil {
		return errResult("failed to resolve relation members: %v", err)
	}

	var secondary []types.SecondaryPolygon
	assembleResult, err := mpassembly.Assemble(relInput, ways, mpassembly.Options{
		AttemptRepair: req.Repair,
		OnSecondaryPolygon: func(sp mpassembly.SecondaryPolygon) {
			secondary = append(secondary, types.SecondaryPolygon{
				SourceWayID: sp.SourceWayID,
				Polygon:     sp.Polygon,
				Tags:        sp.Tags,
			})
		},
	})
	if err != nil {
		return errResult("failed to assemble relation %d: %v", req.RelationID, err)
	}

	assembled := types.AssembledRelation{
		RelationID:   req.RelationID,
		MultiPolygon: assembleResult.MultiPolygon,
		Tags:         assembleResult.Tags,
		Timestamp:    assembleResult.Timestamp,
		Secondary:    secondary,
	}

	fc := geojson.AssembledRelationToGeoJSON(assembled)
	data, err := fc.MarshalJSON()
	if err != nil {
		return errResult("failed to marshal geojson: %v", err)
	}

	warnings := make([]string, 0, len(assembleResult.Warnings))
	for _, w := range assembleResult.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s: %s", w.Kind, w.Detail))
	}

	return map[string]any{
		"geojson":   string(data),
		"polygons":  len(assembleResult.MultiPolygon),
		"secondary": len(secondary),
		"warnings":  strings.Join(warnings, "; "),
		"ms":        time.Since(start).Milliseconds(),
	}
}

func initPlayground(this js.Value, args []js.Value) interface{} {
	fmt.Println("osmpolygon WASM module initialized")
	return map[string]any{"status": "ready"}
}

func main() {
	c := make(chan struct{})

	js.Global().Set("osmpolygonQueryForRelation", js.FuncOf(overpassQueryForRelation))
	js.Global().Set("osmpolygonAssembleFromOverpassJSON", js.FuncOf(assembleFromOverpassJSON))
	js.Global().Set("osmpolygonInit", js.FuncOf(initPlayground))

	fmt.Println("osmpolygon WASM module loaded")
	<-c
}
