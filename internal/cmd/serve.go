package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/datasource"
	"github.com/MeKo-Tech/osmpolygon/internal/pipeline"
	"github.com/MeKo-Tech/osmpolygon/internal/relstore"
	"github.com/MeKo-Tech/osmpolygon/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve assembled relations over HTTP",
	Long: `Start an HTTP service that assembles OSM multipolygon relations on demand,
caching results in the relation store and serving them as GeoJSON.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int("max-concurrent-assemblies", 4, "Max concurrent relation assemblies")
	serveCmd.Flags().Duration("assembly-timeout", 2*time.Minute, "Timeout per relation assembly")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served relations")
	serveCmd.Flags().Int("overpass-workers", 4, "Number of parallel Overpass API requests (2-4 recommended for public API)")
	serveCmd.Flags().Int("fetch-queue-size", 100, "Max pending relation fetches queued ahead of the Overpass workers")
	serveCmd.Flags().Bool("repair", true, "Attempt dangling-end and self-intersection repair on malformed rings")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.max_concurrent_assemblies", "max-concurrent-assemblies")
	mustBind("serve.assembly_timeout", "assembly-timeout")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.overpass_workers", "overpass-workers")
	mustBind("serve.fetch_queue_size", "fetch-queue-size")
	mustBind("serve.repair", "repair")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	maxConc := viper.GetInt("serve.max_concurrent_assemblies")
	assemblyTimeout := viper.GetDuration("serve.assembly_timeout")
	cacheControl := viper.GetString("serve.cache_control")
	overpassWorkers := viper.GetInt("serve.overpass_workers")
	fetchQueueSize := viper.GetInt("serve.fetch_queue_size")
	repair := viper.GetBool("serve.repair")
	storePath := viper.GetString("store")

	store, err := relstore.Open(storePath)
	if err != nil {
		return fmt.Errorf("failed to open relation store: %w", err)
	}
	defer store.Close()

	fetcher := createOverpassDataSource(overpassWorkers, fetchQueueSize, logger)
	if fq, ok := fetcher.(*datasource.FetchQueue); ok {
		defer fq.Stop()
	}

	pl := pipeline.New(fetcher, pipeline.Options{
		AttemptRepair: repair,
		Store:         store,
		Logger:        logger,
	})

	svc := server.NewRelationService(pl, store, server.Config{
		MaxConcurrentAssemblies: maxConc,
		AssemblyTimeout:         assemblyTimeout,
		CacheControl:            cacheControl,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/status", svc.StatusHandler())
	mux.Handle("/relations/", svc.Handler())

	logger.Info("relation service listening",
		"addr", addr,
		"store", storePath,
		"max_concurrent_assemblies", maxConc,
		"overpass_workers", overpassWorkers,
	)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}

// createOverpassDataSource creates an Overpass datasource from configuration.
// Supports both single-server and multi-server (ordered failover) configurations.
// A single server is wrapped in a FetchQueue so fetch concurrency can be
// capped independently of assembly worker count; the public Overpass API
// tolerates far fewer concurrent queries than a local machine can assemble.
func createOverpassDataSource(overpassWorkers, fetchQueueSize int, logger *slog.Logger) pipeline.RelationFetcher {
	if viper.IsSet("overpass.servers") {
		var configs []map[string]interface{}
		if err := viper.UnmarshalKey("overpass.servers", &configs); err == nil && len(configs) > 0 {
			return createMultiServerDataSource(configs, logger)
		}
	}

	endpoint := viper.GetString("overpass-endpoint")
	if endpoint == "" {
		endpoint = viper.GetString("overpass.endpoint")
	}
	if endpoint == "" {
		endpoint = "https://overpass-api.de/api/interpreter"
	}

	logger.Info("using single Overpass server", "endpoint", endpoint, "workers", overpassWorkers)
	ds := datasource.NewOverpassDataSourceWithWorkers(endpoint, overpassWorkers)

	return datasource.NewFetchQueue(ds, datasource.FetchQueueConfig{
		Workers:   overpassWorkers,
		QueueSize: fetchQueueSize,
		Logger:    logger,
	})
}

// createMultiServerDataSource creates a multi-server failover datasource from config.
func createMultiServerDataSource(configs []map[string]interface{}, logger *slog.Logger) pipeline.RelationFetcher {
	var serverConfigs []datasource.ServerConfig

	for i, cfg := range configs {
		endpoint := getStringOrDefault(cfg, "endpoint", "https://overpass-api.de/api/interpreter")
		workers := getIntOrDefault(cfg, "workers", 2)
		name := getStringOrDefault(cfg, "name", fmt.Sprintf("Server-%d", i+1))

		sc := datasource.ServerConfig{
			Endpoint: endpoint,
			Workers:  workers,
			Name:     name,
		}

		logger.Info("configured Overpass failover server",
			"name", name,
			"endpoint", endpoint,
			"workers", workers)
		serverConfigs = append(serverConfigs, sc)
	}

	return datasource.NewMultiOverpassDataSource(serverConfigs...)
}

func getStringOrDefault(m map[string]interface{}, key, defaultVal string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return defaultVal
}

func getIntOrDefault(m map[string]interface{}, key string, defaultVal int) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	if v, ok := m[key].(int); ok {
		return v
	}
	return defaultVal
}
