package mpassembly

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	outerSW NodeID = iota + 1
	outerSE
	outerNE
	outerNW
	innerSW
	innerSE
	innerNE
	innerNW
)

func squareWithHoleWays() []Way {
	return []Way{
		{ID: 1, Coords: []orb.Point{{0, 0}, {10, 0}}, FirstNode: outerSW, LastNode: outerSE, Role: RoleOuter},
		{ID: 2, Coords: []orb.Point{{10, 0}, {10, 10}}, FirstNode: outerSE, LastNode: outerNE, Role: RoleOuter},
		{ID: 3, Coords: []orb.Point{{10, 10}, {0, 10}}, FirstNode: outerNE, LastNode: outerNW, Role: RoleOuter},
		{ID: 4, Coords: []orb.Point{{0, 10}, {0, 0}}, FirstNode: outerNW, LastNode: outerSW, Role: RoleOuter},
		{ID: 5, Coords: []orb.Point{{2, 2}, {8, 2}}, FirstNode: innerSW, LastNode: innerSE, Role: RoleInner},
		{ID: 6, Coords: []orb.Point{{8, 2}, {8, 8}}, FirstNode: innerSE, LastNode: innerNE, Role: RoleInner},
		{ID: 7, Coords: []orb.Point{{8, 8}, {2, 8}}, FirstNode: innerNE, LastNode: innerNW, Role: RoleInner},
		{ID: 8, Coords: []orb.Point{{2, 8}, {2, 2}}, FirstNode: innerNW, LastNode: innerSW, Role: RoleInner},
	}
}

func TestAssembleSquareWithHole(t *testing.T) {
	rel := RelationInput{ID: 100, Tags: map[string]string{"natural": "water"}}

	result, err := Assemble(rel, squareWithHoleWays(), Options{AttemptRepair: true})
	require.NoError(t, err)

	require.Len(t, result.MultiPolygon, 1)
	poly := result.MultiPolygon[0]
	assert.Len(t, poly, 2, "one shell plus one hole")
	assert.Equal(t, "water", result.Tags["natural"])
}

func TestAssembleRejectsEmptyRelation(t *testing.T) {
	rel := RelationInput{ID: 101}
	_, err := Assemble(rel, nil, Options{})
	assert.ErrorIs(t, err, ErrNoRings)
}

func TestAssembleFailsOnDanglingEndsWithoutRepair(t *testing.T) {
	rel := RelationInput{ID: 102}
	ways := squareWithHoleWays()[:3] // drop the fourth outer side

	_, err := Assemble(rel, ways, Options{AttemptRepair: false})
	assert.ErrorIs(t, err, ErrDanglingEnds)
}

func TestAssembleEmitsSecondaryPolygonForTaggedHole(t *testing.T) {
	rel := RelationInput{ID: 103, Tags: map[string]string{"natural": "water"}}
	// Only a hole built from exactly one way yields a secondary polygon, so
	// the hole here is a single closed, tagged way.
	ways := append(squareWithHoleWays()[:4], Way{
		ID:        5,
		Coords:    []orb.Point{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
		FirstNode: innerSW,
		LastNode:  innerSW,
		Role:      RoleInner,
		Tags:      map[string]string{"natural": "wetland"},
	})

	var secondaries []SecondaryPolygon
	opts := Options{
		AttemptRepair: true,
		OnSecondaryPolygon: func(sp SecondaryPolygon) {
			secondaries = append(secondaries, sp)
		},
	}

	_, err := Assemble(rel, ways, opts)
	require.NoError(t, err)
	if assert.Len(t, secondaries, 1) {
		assert.Equal(t, "wetland", secondaries[0].Tags["natural"])
	}
}
