package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/osmpolygon/internal/datasource"
	"github.com/MeKo-Tech/osmpolygon/internal/geojson"
	"github.com/MeKo-Tech/osmpolygon/internal/pipeline"
	"github.com/MeKo-Tech/osmpolygon/internal/relstore"
	"github.com/MeKo-Tech/osmpolygon/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble OSM multipolygon relations",
	Long: `Fetch one or more OpenStreetMap multipolygon relations from Overpass,
assemble their member ways into validated planar multipolygons, and write the
result to the relation store (and optionally to stdout as GeoJSON).`,
	RunE: runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)

	assembleCmd.Flags().Int64("relation", 0, "Relation id to assemble (single-relation mode)")
	assembleCmd.Flags().String("relations", "", "Comma-separated relation ids to assemble (batch mode)")
	assembleCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: 4)")
	assembleCmd.Flags().Bool("progress", true, "Show progress bar during batch assembly")
	assembleCmd.Flags().Bool("allow-failures", false, "Continue assembly even if some relations fail")
	assembleCmd.Flags().Bool("repair", true, "Attempt dangling-end and self-intersection repair on malformed rings")
	assembleCmd.Flags().Bool("print", false, "Print the assembled GeoJSON to stdout (single-relation mode only)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"assemble.relation", "relation"},
		{"assemble.relations", "relations"},
		{"assemble.workers", "workers"},
		{"assemble.progress", "progress"},
		{"assemble.allow_failures", "allow-failures"},
		{"assemble.repair", "repair"},
		{"assemble.print", "print"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, assembleCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runAssemble(cmd *cobra.Command, args []string) error {
	relation := viper.GetInt64("assemble.relation")
	relationsStr := viper.GetString("assemble.relations")
	workers := viper.GetInt("assemble.workers")
	showProgress := viper.GetBool("assemble.progress")
	allowFailures := viper.GetBool("assemble.allow_failures")
	repair := viper.GetBool("assemble.repair")
	print := viper.GetBool("assemble.print")
	storePath := viper.GetString("store")
	overpassEndpoint := viper.GetString("overpass-endpoint")

	if logger == nil {
		initLogging()
	}

	if relation == 0 && relationsStr == "" {
		return fmt.Errorf("either --relation or --relations is required")
	}
	if relation != 0 && relationsStr != "" {
		return fmt.Errorf("--relation and --relations are mutually exclusive")
	}

	store, err := relstore.Open(storePath)
	if err != nil {
		return fmt.Errorf("failed to open relation store: %w", err)
	}
	defer store.Close()

	ds := datasource.NewOverpassDataSource(overpassEndpoint)
	defer ds.Close()

	pl := pipeline.New(ds, pipeline.Options{
		AttemptRepair: repair,
		Store:         store,
		Logger:        logger,
	})

	if relationsStr != "" {
		ids, err := parseRelationIDs(relationsStr)
		if err != nil {
			return fmt.Errorf("invalid --relations: %w", err)
		}
		return runBatchAssemble(pl, ids, workers, showProgress, allowFailures)
	}

	return runSingleAssemble(pl, relation, print)
}

func runSingleAssemble(pl *pipeline.Pipeline, relationID int64, print bool) error {
	logger.Info("assembling relation", "relation", relationID)

	assembled, err := pl.AssembleOne(context.Background(), relationID)
	if err != nil {
		return fmt.Errorf("failed to assemble relation %d: %w", relationID, err)
	}

	logger.Info("relation assembled",
		"relation", relationID,
		"polygons", len(assembled.MultiPolygon),
		"secondary_polygons", len(assembled.Secondary),
	)

	if print {
		fc := geojson.AssembledRelationToGeoJSON(assembled)
		data, err := fc.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal geojson: %w", err)
		}
		fmt.Println(string(data))
	}

	return nil
}

func runBatchAssemble(pl *pipeline.Pipeline, ids []int64, workers int, showProgress, allowFailures bool) error {
	if workers <= 0 {
		workers = 4
	}

	logger.Info("starting batch assembly", "relations", len(ids), "workers", workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt signal, cancelling...")
		cancel()
	}()

	progress := worker.NewProgress(len(ids), showProgress)

	results, err := pl.RunBatch(ctx, ids, workers, progress.Callback())
	progress.Done()
	if err != nil {
		return fmt.Errorf("batch assembly failed: %w", err)
	}

	var failedCount int
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("relation assembly failed", "relation", r.Task.RelationID, "error", r.Err)
		}
	}

	logger.Info(progress.Summary())

	if failedCount > 0 {
		if allowFailures {
			logger.Warn("some relations failed to assemble, but continuing due to --allow-failures flag", "failed_count", failedCount)
		} else {
			return fmt.Errorf("%d relations failed to assemble", failedCount)
		}
	}

	return nil
}

// parseRelationIDs parses a comma-separated list of relation ids.
func parseRelationIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid relation id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no relation ids provided")
	}
	return ids, nil
}
