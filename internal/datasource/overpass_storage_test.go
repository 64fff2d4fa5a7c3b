package datasource

import (
	"testing"

	"github.com/MeKo-Christian/go-overpass"
)

// TestWithRawResponseStorage verifies the fluent API for enabling raw response storage
func TestWithRawResponseStorage(t *testing.T) {
	ds := NewOverpassDataSource("")

	if ds.storeRawResponse {
		t.Error("storeRawResponse should be false by default")
	}

	ds = ds.WithRawResponseStorage(true)
	if !ds.storeRawResponse {
		t.Error("storeRawResponse should be true after enabling")
	}

	ds = ds.WithRawResponseStorage(false)
	if ds.storeRawResponse {
		t.Error("storeRawResponse should be false after disabling")
	}
}

// TestFetchedRelationRawOptIn verifies that FetchedRelation.Raw is nil
// unless raw-response storage was explicitly enabled.
func TestFetchedRelationRawOptIn(t *testing.T) {
	mockResult := &overpass.Result{
		Ways: map[int64]*overpass.Way{
			123: {Tags: map[string]string{"natural": "water"}},
		},
	}

	without := &FetchedRelation{}
	if without.Raw != nil {
		t.Error("Raw should be nil by default")
	}

	with := &FetchedRelation{Raw: mockResult}
	if with.Raw == nil {
		t.Fatal("Raw should not be nil when explicitly set")
	}
	if len(with.Raw.Ways) != 1 {
		t.Errorf("expected 1 way, got %d", len(with.Raw.Ways))
	}
}
