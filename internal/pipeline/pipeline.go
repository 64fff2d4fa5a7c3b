// Package pipeline orchestrates fetching, assembling, and storing
// multipolygon relations in batch, wiring internal/datasource,
// internal/mpassembly, internal/relstore, and internal/worker together.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/osmpolygon/internal/datasource"
	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/MeKo-Tech/osmpolygon/internal/relstore"
	"github.com/MeKo-Tech/osmpolygon/internal/types"
	"github.com/MeKo-Tech/osmpolygon/internal/worker"
)

// RelationFetcher retrieves a relation and the full geometry of its member
// ways. Implemented by *datasource.OverpassDataSource,
// *datasource.MultiOverpassDataSource, and *datasource.FetchQueue.
type RelationFetcher interface {
	FetchRelation(ctx context.Context, relationID int64) (*datasource.FetchedRelation, error)
}

// Options configures a Pipeline.
type Options struct {
	// AttemptRepair is forwarded to mpassembly.Assemble for every relation.
	AttemptRepair bool
	// Store persists assembled results. May be nil to run without caching.
	Store *relstore.Store
	// Logger receives per-relation progress and error detail.
	Logger *slog.Logger
}

// Pipeline fetches, assembles, and optionally stores multipolygon relations.
type Pipeline struct {
	fetcher RelationFetcher
	opts    Options
}

// New creates a Pipeline backed by the given relation fetcher.
func New(fetcher RelationFetcher, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{fetcher: fetcher, opts: opts}
}

// AssembleOne fetches and assembles a single relation, storing the result if
// a Store is configured. It implements worker.Assembler so a Pipeline can
// drive a worker.Pool directly.
func (p *Pipeline) AssembleOne(ctx context.Context, relationID int64) (types.AssembledRelation, error) {
	log := p.opts.Logger.With("relation", relationID)

	fetched, err := p.fetcher.FetchRelation(ctx, relationID)
	if err != nil {
		return types.AssembledRelation{}, fmt.Errorf("fetch relation %d: %w", relationID, err)
	}

	var secondary []types.SecondaryPolygon
	assembleOpts := mpassembly.Options{
		AttemptRepair: p.opts.AttemptRepair,
		OnSecondaryPolygon: func(sp mpassembly.SecondaryPolygon) {
			secondary = append(secondary, types.SecondaryPolygon{
				SourceWayID: sp.SourceWayID,
				Polygon:     sp.Polygon,
				Tags:        sp.Tags,
			})
		},
	}

	result, err := mpassembly.Assemble(fetched.Relation, fetched.Ways, assembleOpts)
	if err != nil {
		log.Warn("assembly failed", "error", err, "member_ways", len(fetched.Ways))
		return types.AssembledRelation{}, fmt.Errorf("assemble relation %d: %w", relationID, err)
	}
	for _, w := range result.Warnings {
		log.Warn("assembly warning", "kind", w.Kind, "detail", w.Detail)
	}

	assembled := types.AssembledRelation{
		RelationID:   relationID,
		MultiPolygon: result.MultiPolygon,
		Tags:         result.Tags,
		Timestamp:    result.Timestamp,
		Secondary:    secondary,
	}

	if p.opts.Store != nil {
		if err := p.opts.Store.Put(assembled); err != nil {
			return types.AssembledRelation{}, fmt.Errorf("store relation %d: %w", relationID, err)
		}
	}

	log.Info("assembled relation", "polygons", len(result.MultiPolygon), "secondary", len(secondary))
	return assembled, nil
}

// RunBatch assembles every relation in relationIDs using a worker pool of
// the given size, reporting progress via onProgress. It returns one
// worker.Result per relation and flushes the store (if configured) once all
// tasks complete.
func (p *Pipeline) RunBatch(ctx context.Context, relationIDs []int64, workers int, onProgress worker.ProgressFunc) ([]worker.Result, error) {
	tasks := make([]worker.Task, len(relationIDs))
	for i, id := range relationIDs {
		tasks[i] = worker.Task{RelationID: id}
	}

	pool := worker.New(worker.Config{
		Workers:    workers,
		Assembler:  p,
		OnProgress: onProgress,
	})

	results := pool.Run(ctx, tasks)

	if p.opts.Store != nil {
		if err := p.opts.Store.Flush(); err != nil {
			return results, fmt.Errorf("flush store: %w", err)
		}
	}

	return results, nil
}
