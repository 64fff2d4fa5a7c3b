package mpassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUntagged(t *testing.T) {
	assert.True(t, untagged(nil))
	assert.True(t, untagged(map[string]string{"type": "multipolygon", "source": "survey"}))
	assert.False(t, untagged(map[string]string{"natural": "water"}))
}

func TestSameTags(t *testing.T) {
	a := map[string]string{"natural": "water", "type": "multipolygon"}
	b := map[string]string{"natural": "water", "created_by": "JOSM"}
	assert.True(t, sameTags(a, b))

	c := map[string]string{"natural": "wood"}
	assert.False(t, sameTags(a, c))
}

func TestMergeTags(t *testing.T) {
	dst := map[string]string{"natural": "water"}
	src := map[string]string{"natural": "wood", "name": "Lake", "source": "survey"}
	merged := mergeTags(dst, src)
	assert.Equal(t, "water", merged["natural"], "dst wins on conflict")
	assert.Equal(t, "Lake", merged["name"])
	_, hasSource := merged["source"]
	assert.False(t, hasSource, "ignored keys never merge")
}

func TestReconcileTagsPrefersRelationTags(t *testing.T) {
	rel := RelationInput{Tags: map[string]string{"natural": "water"}}
	tags, warnings := reconcileTags(rel, nil)
	assert.Equal(t, "water", tags["natural"])
	assert.Empty(t, warnings)
}

func TestReconcileTagsFallsBackToOuterWay(t *testing.T) {
	rel := RelationInput{Tags: map[string]string{"type": "multipolygon"}}
	outer := []*wayInfo{
		{source: &Way{Tags: map[string]string{"natural": "water"}}},
	}
	tags, warnings := reconcileTags(rel, outer)
	assert.Equal(t, "water", tags["natural"])
	assert.Empty(t, warnings)
}

func TestReconcileTagsWarnsOnOuterWayConflict(t *testing.T) {
	rel := RelationInput{}
	outer := []*wayInfo{
		{source: &Way{Tags: map[string]string{"natural": "water"}}},
		{source: &Way{Tags: map[string]string{"natural": "wood"}}},
	}
	tags, warnings := reconcileTags(rel, outer)
	assert.Equal(t, "water", tags["natural"], "keeps the first seen")
	if assert.Len(t, warnings, 1) {
		assert.Equal(t, warnTagCollision, warnings[0].Kind)
	}
}
