package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/paulmach/orb"
)

func TestFetchQueueDefaults(t *testing.T) {
	fq := NewFetchQueue(NewOverpassDataSource(""), FetchQueueConfig{})
	if fq.cfg.Workers != 2 {
		t.Errorf("expected default workers 2, got %d", fq.cfg.Workers)
	}
	if fq.cfg.QueueSize != 100 {
		t.Errorf("expected default queue size 100, got %d", fq.cfg.QueueSize)
	}
	if fq.cfg.DataSizeWarningThreshold != 10*1024*1024 {
		t.Errorf("expected default warning threshold 10MB, got %d", fq.cfg.DataSizeWarningThreshold)
	}
	if fq.cfg.Logger == nil {
		t.Error("expected a default logger")
	}
}

// TestFetchQueueSubmitFull exercises the queue mechanics without starting any
// workers, so nothing drains the channel and the buffer fills deterministically.
func TestFetchQueueSubmitFull(t *testing.T) {
	fq := NewFetchQueue(NewOverpassDataSource(""), FetchQueueConfig{Workers: 1, QueueSize: 2})

	for i := 0; i < 2; i++ {
		if err := fq.Submit(FetchJob{RelationID: int64(i)}); err != nil {
			t.Fatalf("Submit %d: unexpected error: %v", i, err)
		}
	}

	if err := fq.Submit(FetchJob{RelationID: 99}); err == nil {
		t.Error("expected error submitting to a full queue, got nil")
	}

	status := fq.Status()
	if status.QueuedFetches != 2 {
		t.Errorf("expected 2 queued fetches, got %d", status.QueuedFetches)
	}
	if status.ActiveFetches != 0 {
		t.Errorf("expected 0 active fetches with no workers started, got %d", status.ActiveFetches)
	}
}

// TestFetchQueueSubmitAndWaitCanceled verifies a canceled context is honored
// even before any worker could pick the job up.
func TestFetchQueueSubmitAndWaitCanceled(t *testing.T) {
	fq := NewFetchQueue(NewOverpassDataSource(""), FetchQueueConfig{Workers: 1, QueueSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fq.SubmitAndWait(ctx, 42)
	if err == nil {
		t.Error("expected error for a pre-canceled context")
	}
}

// TestFetchQueueStopWithoutStart verifies Stop is safe to call on a queue
// whose workers were never started.
func TestFetchQueueStopWithoutStart(t *testing.T) {
	fq := NewFetchQueue(NewOverpassDataSource(""), FetchQueueConfig{Workers: 2, QueueSize: 1})

	done := make(chan struct{})
	go func() {
		fq.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return for a queue with no started workers")
	}

	status := fq.Status()
	if status.TotalCompleted != 0 || status.TotalFailed != 0 {
		t.Errorf("expected no completed/failed fetches, got %+v", status)
	}
}

func TestEstimateDataSize(t *testing.T) {
	if got := estimateDataSize(nil); got != 0 {
		t.Errorf("estimateDataSize(nil) = %d, want 0", got)
	}

	data := &FetchedRelation{
		Ways: []mpassembly.Way{
			{ID: 1, Coords: make([]orb.Point, 10)},
			{ID: 2, Coords: make([]orb.Point, 5)},
		},
	}
	got := estimateDataSize(data)
	want := int64(10*16+200) + int64(5*16+200)
	if got != want {
		t.Errorf("estimateDataSize = %d, want %d", got, want)
	}
}

// TestFetchQueueRealFetch exercises FetchRelation end to end against the
// public Overpass API. Skipped unless explicitly enabled, matching the other
// integration tests in this package.
func TestFetchQueueRealFetch(t *testing.T) {
	requireIntegration(t)

	fq := NewFetchQueue(NewOverpassDataSource(""), FetchQueueConfig{Workers: 1, QueueSize: 1})
	defer fq.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	const lakeConstanceRelationID = 23698

	fetched, err := fq.FetchRelation(ctx, lakeConstanceRelationID)
	if err != nil {
		t.Fatalf("FetchRelation failed: %v", err)
	}
	if len(fetched.Ways) == 0 {
		t.Fatal("expected member ways, got none")
	}

	status := fq.Status()
	if status.TotalCompleted != 1 {
		t.Errorf("expected 1 completed fetch, got %d", status.TotalCompleted)
	}
}
