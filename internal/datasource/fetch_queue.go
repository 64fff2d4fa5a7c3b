package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FetchJob represents a relation fetch request.
type FetchJob struct {
	RelationID int64
	ResultChan chan FetchResult
}

// FetchResult contains the result of a relation fetch operation.
type FetchResult struct {
	Data     *FetchedRelation
	DataSize int64 // Estimated size of the fetched geometry in bytes
	Error    error
}

// FetchQueueStatus contains current status of the fetch queue.
type FetchQueueStatus struct {
	ActiveFetches    int      `json:"active_fetches"`
	QueuedFetches    int      `json:"queued_fetches"`
	TotalCompleted   int64    `json:"total_completed"`
	TotalFailed      int64    `json:"total_failed"`
	TotalBytes       int64    `json:"total_bytes"`
	CurrentRelations []string `json:"current_relations"`
}

// FetchQueueConfig configures the fetch queue behavior.
type FetchQueueConfig struct {
	// Workers is the number of concurrent fetch workers (default: 2)
	Workers int
	// QueueSize is the maximum number of pending fetch jobs (default: 100)
	QueueSize int
	// DataSizeWarningThreshold warns when a relation's geometry exceeds this
	// size in bytes (default: 10MB)
	DataSizeWarningThreshold int64
	// Logger for fetch operations
	Logger *slog.Logger
}

// DefaultFetchQueueConfig returns sensible defaults.
func DefaultFetchQueueConfig() FetchQueueConfig {
	return FetchQueueConfig{
		Workers:                  2,
		QueueSize:                100,
		DataSizeWarningThreshold: 10 * 1024 * 1024,
		Logger:                   slog.Default(),
	}
}

// FetchQueue manages decoupled relation fetching from assembly/rendering.
// It queues fetch jobs and processes them with a pool of workers.
type FetchQueue struct {
	ds        *OverpassDataSource
	jobs      chan FetchJob
	cfg       FetchQueueConfig
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once

	activeFetches    atomic.Int32
	totalCompleted   atomic.Int64
	totalFailed      atomic.Int64
	totalBytes       atomic.Int64
	currentRelations sync.Map // map[int64]time.Time
}

// NewFetchQueue creates a new fetch queue with the given datasource and config.
func NewFetchQueue(ds *OverpassDataSource, cfg FetchQueueConfig) *FetchQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.DataSizeWarningThreshold <= 0 {
		cfg.DataSizeWarningThreshold = 10 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FetchQueue{
		ds:     ds,
		jobs:   make(chan FetchJob, cfg.QueueSize),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing fetch jobs with the configured number of workers.
func (fq *FetchQueue) Start() {
	fq.startOnce.Do(func() {
		fq.cfg.Logger.Info("starting fetch queue workers", "workers", fq.cfg.Workers)
		for i := 0; i < fq.cfg.Workers; i++ {
			fq.wg.Add(1)
			go fq.worker(i)
		}
	})
}

// Stop gracefully shuts down the fetch queue.
func (fq *FetchQueue) Stop() {
	fq.cancel()
	close(fq.jobs)
	fq.wg.Wait()
}

// Submit adds a fetch job to the queue and returns immediately.
func (fq *FetchQueue) Submit(job FetchJob) error {
	select {
	case fq.jobs <- job:
		return nil
	case <-fq.ctx.Done():
		return fmt.Errorf("fetch queue is shutting down")
	default:
		return fmt.Errorf("fetch queue is full")
	}
}

// SubmitAndWait submits a fetch job and blocks until the result is available.
func (fq *FetchQueue) SubmitAndWait(ctx context.Context, relationID int64) (FetchResult, error) {
	resultChan := make(chan FetchResult, 1)
	job := FetchJob{RelationID: relationID, ResultChan: resultChan}

	select {
	case fq.jobs <- job:
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	case <-fq.ctx.Done():
		return FetchResult{}, fmt.Errorf("fetch queue is shutting down")
	}

	select {
	case result := <-resultChan:
		return result, nil
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	}
}

// FetchSync performs a synchronous fetch, bypassing the queue.
func (fq *FetchQueue) FetchSync(ctx context.Context, relationID int64) FetchResult {
	return fq.doFetch(ctx, relationID)
}

// FetchRelation implements pipeline.RelationFetcher, queuing the fetch and
// blocking for its result. This lets callers cap Overpass concurrency
// independently of assembly worker count. Starts the queue's workers on
// first call.
func (fq *FetchQueue) FetchRelation(ctx context.Context, relationID int64) (*FetchedRelation, error) {
	fq.Start()
	result, err := fq.SubmitAndWait(ctx, relationID)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Data, nil
}

// Status returns the current status of the fetch queue.
func (fq *FetchQueue) Status() FetchQueueStatus {
	var current []string
	fq.currentRelations.Range(func(key, _ any) bool {
		current = append(current, fmt.Sprintf("relation/%d", key.(int64)))
		return true
	})

	return FetchQueueStatus{
		ActiveFetches:    int(fq.activeFetches.Load()),
		QueuedFetches:    len(fq.jobs),
		TotalCompleted:   fq.totalCompleted.Load(),
		TotalFailed:      fq.totalFailed.Load(),
		TotalBytes:       fq.totalBytes.Load(),
		CurrentRelations: current,
	}
}

func (fq *FetchQueue) worker(id int) {
	defer fq.wg.Done()
	log := fq.cfg.Logger.With("worker_id", id)
	log.Debug("fetch worker started")

	for {
		select {
		case <-fq.ctx.Done():
			log.Debug("fetch worker stopping")
			return
		case job, ok := <-fq.jobs:
			if !ok {
				log.Debug("fetch worker channel closed")
				return
			}
			result := fq.doFetch(fq.ctx, job.RelationID)
			if job.ResultChan != nil {
				select {
				case job.ResultChan <- result:
				default:
					log.Warn("result channel full or closed", "relation", job.RelationID)
				}
			}
		}
	}
}

func (fq *FetchQueue) doFetch(ctx context.Context, relationID int64) FetchResult {
	fq.activeFetches.Add(1)
	fq.currentRelations.Store(relationID, time.Now())
	defer func() {
		fq.activeFetches.Add(-1)
		fq.currentRelations.Delete(relationID)
	}()

	start := time.Now()
	log := fq.cfg.Logger.With("relation", relationID)
	log.Info("fetching relation from Overpass API")

	data, err := fq.ds.FetchRelation(ctx, relationID)
	elapsed := time.Since(start)

	if err != nil {
		fq.totalFailed.Add(1)
		log.Error("fetch failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return FetchResult{Error: err}
	}

	dataSize := estimateDataSize(data)
	fq.totalCompleted.Add(1)
	fq.totalBytes.Add(dataSize)

	log.Info("fetch completed",
		"duration_ms", elapsed.Milliseconds(),
		"data_size_bytes", dataSize,
		"member_ways", len(data.Ways),
	)

	if dataSize > fq.cfg.DataSizeWarningThreshold {
		log.Warn("relation geometry exceeds size threshold",
			"threshold_mb", fq.cfg.DataSizeWarningThreshold/(1024*1024),
			"actual_mb", fmt.Sprintf("%.2f", float64(dataSize)/(1024*1024)),
		)
	}

	return FetchResult{Data: data, DataSize: dataSize}
}

// estimateDataSize estimates the in-memory size of a fetched relation from
// its member ways' coordinate counts.
func estimateDataSize(data *FetchedRelation) int64 {
	if data == nil {
		return 0
	}

	const bytesPerCoord = 16
	const metadataPerWay = 200

	var size int64
	for _, w := range data.Ways {
		size += int64(len(w.Coords)*bytesPerCoord + metadataPerWay)
	}
	if data.Raw != nil {
		size += 1024 * 1024
	}
	return size
}
