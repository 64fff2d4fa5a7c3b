package mpassembly

import (
	"testing"

	"github.com/MeKo-Tech/osmpolygon/internal/geomkit"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalvageRingRejectsTooShort(t *testing.T) {
	adapter := geomkit.New()
	_, ok, err := salvageRing(adapter, []orb.Point{{0, 0}, {1, 1}, {2, 2}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSalvageRingRepairsSelfIntersectingBowtie(t *testing.T) {
	adapter := geomkit.New()
	// A figure-eight: (0,0)->(2,2)->(2,0)->(0,2)->(0,0) crosses itself at (1,1).
	bowtie := []orb.Point{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}

	ring, ok, err := salvageRing(adapter, bowtie)
	require.NoError(t, err)
	if ok {
		valid, verr := adapter.IsValidRing(ring)
		require.NoError(t, verr)
		assert.True(t, valid)
	}
}

func TestIsSimplePrefixAndSuffixGuardShortLengths(t *testing.T) {
	adapter := geomkit.New()
	coords := []orb.Point{{0, 0}, {1, 0}, {1, 1}}

	simple, err := isSimplePrefix(adapter, coords, 1)
	require.NoError(t, err)
	assert.False(t, simple)

	simple, err = isSimpleSuffix(adapter, coords, len(coords)-1)
	require.NoError(t, err)
	assert.False(t, simple)
}
