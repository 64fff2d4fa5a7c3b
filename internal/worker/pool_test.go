package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/types"
)

// mockAssembler simulates relation assembly for testing
type mockAssembler struct {
	delay         time.Duration
	failRelations map[int64]bool // relation ids that should fail
	callCount     atomic.Int32
}

func (m *mockAssembler) AssembleOne(ctx context.Context, relationID int64) (types.AssembledRelation, error) {
	m.callCount.Add(1)

	select {
	case <-ctx.Done():
		return types.AssembledRelation{}, ctx.Err()
	case <-time.After(m.delay):
	}

	if m.failRelations != nil && m.failRelations[relationID] {
		return types.AssembledRelation{}, errors.New("simulated failure")
	}

	return types.AssembledRelation{RelationID: relationID}, nil
}

func TestPool_BasicExecution(t *testing.T) {
	asm := &mockAssembler{delay: 10 * time.Millisecond}

	pool := New(Config{
		Workers:   2,
		Assembler: asm,
	})

	tasks := []Task{
		{RelationID: 1001},
		{RelationID: 1002},
		{RelationID: 1003},
	}

	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for relation %d: %v", r.Task.RelationID, r.Err)
		}
		if r.Relation.RelationID != r.Task.RelationID {
			t.Errorf("Expected relation id %d, got %d", r.Task.RelationID, r.Relation.RelationID)
		}
	}

	if asm.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d assembler calls, got %d", len(tasks), asm.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	// Use a longer delay to ensure parallelism is tested
	asm := &mockAssembler{delay: 50 * time.Millisecond}

	pool := New(Config{
		Workers:   4,
		Assembler: asm,
	})

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{RelationID: int64(2000 + i)}
	}

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	// Allow some margin for overhead
	maxExpected := 200 * time.Millisecond
	if elapsed > maxExpected {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	t.Logf("Processed %d tasks with %d workers in %v", len(tasks), 4, elapsed)
}

func TestPool_ErrorHandling(t *testing.T) {
	const failRelation = int64(3002)
	asm := &mockAssembler{
		delay:         10 * time.Millisecond,
		failRelations: map[int64]bool{failRelation: true},
	}

	pool := New(Config{
		Workers:   2,
		Assembler: asm,
	})

	tasks := []Task{
		{RelationID: 3001},
		{RelationID: failRelation}, // This one should fail
		{RelationID: 3003},
	}

	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.RelationID != failRelation {
				t.Errorf("Unexpected failure for relation %d", r.Task.RelationID)
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	asm := &mockAssembler{delay: 100 * time.Millisecond}

	pool := New(Config{
		Workers:   2,
		Assembler: asm,
	})

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{RelationID: int64(4000 + i)}
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}

	var cancelledCount int
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}

	t.Logf("Completed with %d results (%d cancelled) in %v", len(results), cancelledCount, elapsed)
}

func TestPool_ProgressCallback(t *testing.T) {
	asm := &mockAssembler{delay: 10 * time.Millisecond}

	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers:   2,
		Assembler: asm,
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := []Task{
		{RelationID: 5001},
		{RelationID: 5002},
		{RelationID: 5003},
	}

	pool.Run(context.Background(), tasks)

	if progressCalls.Load() == 0 {
		t.Error("Expected progress callbacks, got none")
	}

	if lastCompleted != len(tasks) {
		t.Errorf("Expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("Expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	asm := &mockAssembler{}

	pool := New(Config{
		Workers:   2,
		Assembler: asm,
	})

	results := pool.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}

	if asm.callCount.Load() != 0 {
		t.Errorf("Expected 0 assembler calls for empty tasks, got %d", asm.callCount.Load())
	}
}
