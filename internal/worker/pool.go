// Package worker provides a parallel relation-assembly worker pool.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/types"
)

// Assembler is the interface for fetching and assembling a single relation.
// This matches the signature of pipeline.Pipeline.AssembleOne.
type Assembler interface {
	AssembleOne(ctx context.Context, relationID int64) (types.AssembledRelation, error)
}

// Task represents a single relation assembly task.
type Task struct {
	RelationID int64
}

// Result represents the outcome of a relation assembly task.
type Result struct {
	Task     Task
	Relation types.AssembledRelation
	Err      error
	Elapsed  time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Assembler  Assembler
	OnProgress ProgressFunc
}

// Pool manages parallel relation assembly.
type Pool struct {
	workers    int
	assembler  Assembler
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		assembler:  cfg.Assembler,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and returns results.
// Tasks are processed in parallel by the configured number of workers.
// The function blocks until all tasks complete or the context is cancelled.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var (
		completed int
		failed    int
		mu        sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	go func() {
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				break
			}
		}
		close(taskCh)
	}()

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)

			mu.Lock()
			completed++
			if result.Err != nil {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(tasks), f)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

// worker processes tasks from the task channel and sends results to the result channel.
func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			results <- Result{
				Task: task,
				Err:  ctx.Err(),
			}
			continue
		default:
		}

		start := time.Now()
		rel, err := p.assembler.AssembleOne(ctx, task.RelationID)
		elapsed := time.Since(start)

		results <- Result{
			Task:     task,
			Relation: rel,
			Err:      err,
			Elapsed:  elapsed,
		}
	}
}
