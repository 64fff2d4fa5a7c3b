package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/osmpolygon/internal/datasource"
	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/MeKo-Tech/osmpolygon/internal/relstore"
	"github.com/paulmach/orb"
)

type fakeFetcher struct {
	relations map[int64]*datasource.FetchedRelation
}

func (f *fakeFetcher) FetchRelation(_ context.Context, relationID int64) (*datasource.FetchedRelation, error) {
	rel, ok := f.relations[relationID]
	if !ok {
		return nil, errors.New("relation not found")
	}
	return rel, nil
}

func squareRelation(id int64, ways ...mpassembly.Way) *datasource.FetchedRelation {
	return &datasource.FetchedRelation{
		Relation: mpassembly.RelationInput{ID: id, Tags: map[string]string{"natural": "water"}},
		Ways:     ways,
	}
}

func closedSquareWay(wayID int64, x0, y0, size float64) mpassembly.Way {
	coords := []orb.Point{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}
	return mpassembly.Way{
		ID:        wayID,
		Coords:    coords,
		FirstNode: mpassembly.NodeID(wayID * 10),
		LastNode:  mpassembly.NodeID(wayID * 10),
		Role:      mpassembly.RoleOuter,
	}
}

func TestAssembleOneStoresResult(t *testing.T) {
	store, err := relstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	fetcher := &fakeFetcher{relations: map[int64]*datasource.FetchedRelation{
		1: squareRelation(1, closedSquareWay(1, 0, 0, 1)),
	}}

	p := New(fetcher, Options{Store: store})

	assembled, err := p.AssembleOne(context.Background(), 1)
	if err != nil {
		t.Fatalf("AssembleOne failed: %v", err)
	}
	if assembled.RelationID != 1 {
		t.Errorf("expected relation id 1, got %d", assembled.RelationID)
	}
	if len(assembled.MultiPolygon) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(assembled.MultiPolygon))
	}

	if err := store.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	got, err := store.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Tags["natural"] != "water" {
		t.Errorf("expected stored tags to include natural=water, got %v", got.Tags)
	}
}

func TestAssembleOneFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{relations: map[int64]*datasource.FetchedRelation{}}
	p := New(fetcher, Options{})

	_, err := p.AssembleOne(context.Background(), 999)
	if err == nil {
		t.Fatal("expected an error for a missing relation")
	}
}

func TestRunBatchAssemblesAll(t *testing.T) {
	fetcher := &fakeFetcher{relations: map[int64]*datasource.FetchedRelation{
		1: squareRelation(1, closedSquareWay(1, 0, 0, 1)),
		2: squareRelation(2, closedSquareWay(2, 10, 10, 1)),
	}}

	p := New(fetcher, Options{})

	results, err := p.RunBatch(context.Background(), []int64{1, 2}, 2, nil)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected error for relation %d: %v", r.Task.RelationID, r.Err)
		}
	}
}
