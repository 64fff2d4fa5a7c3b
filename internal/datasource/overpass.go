package datasource

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
)

// OverpassConfig contains configuration for the Overpass API client.
type OverpassConfig struct {
	// Endpoint is the Overpass API URL (default: https://overpass-api.de/api/interpreter)
	Endpoint string
	// Workers controls parallelism (default: 2 for public API, increase for private instances)
	Workers int
	// RetryConfig configures retry behavior with exponential backoff
	RetryConfig *overpass.RetryConfig
	// HTTPClient allows custom HTTP client (default: http.DefaultClient)
	HTTPClient *http.Client
}

// DefaultOverpassConfig returns sensible defaults for public Overpass API.
func DefaultOverpassConfig() OverpassConfig {
	retryConfig := overpass.DefaultRetryConfig()
	return OverpassConfig{
		Endpoint:    "https://overpass-api.de/api/interpreter",
		Workers:     2,
		RetryConfig: &retryConfig,
		HTTPClient:  http.DefaultClient,
	}
}

// PrivateInstanceConfig returns config optimized for a private Overpass instance.
// Uses more aggressive retries and higher parallelism.
func PrivateInstanceConfig(endpoint string) OverpassConfig {
	return OverpassConfig{
		Endpoint: endpoint,
		Workers:  10,
		RetryConfig: &overpass.RetryConfig{
			MaxRetries:        5,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 1.5,
			Jitter:            true,
		},
		HTTPClient: http.DefaultClient,
	}
}

// OverpassDataSource fetches OSM relations and their member ways from the
// Overpass API.
type OverpassDataSource struct {
	client           overpass.Client
	storeRawResponse bool
}

// NewOverpassDataSource creates a new Overpass data source with default settings.
func NewOverpassDataSource(endpoint string) *OverpassDataSource {
	return NewOverpassDataSourceWithWorkers(endpoint, 2)
}

// NewOverpassDataSourceWithWorkers creates a new Overpass data source with configurable parallelism.
func NewOverpassDataSourceWithWorkers(endpoint string, workers int) *OverpassDataSource {
	cfg := DefaultOverpassConfig()
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return NewOverpassDataSourceWithConfig(cfg)
}

// NewOverpassDataSourceWithConfig creates a new Overpass data source with full configuration.
func NewOverpassDataSourceWithConfig(cfg OverpassConfig) *OverpassDataSource {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://overpass-api.de/api/interpreter"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	var client overpass.Client
	if cfg.RetryConfig != nil {
		client = overpass.NewWithRetry(cfg.Endpoint, cfg.Workers, cfg.HTTPClient, *cfg.RetryConfig)
	} else {
		client = overpass.NewWithSettings(cfg.Endpoint, cfg.Workers, cfg.HTTPClient)
	}

	return &OverpassDataSource{
		client:           client,
		storeRawResponse: false,
	}
}

// WithRawResponseStorage enables returning the raw Overpass API response
// alongside the resolved relation. Useful for debugging; increases memory
// usage, so it should only be used in tests.
func (ds *OverpassDataSource) WithRawResponseStorage(enabled bool) *OverpassDataSource {
	ds.storeRawResponse = enabled
	return ds
}

// FetchedRelation bundles a resolved relation with its raw Overpass result,
// when raw-response storage is enabled.
type FetchedRelation struct {
	Relation  mpassembly.RelationInput
	Ways      []mpassembly.Way
	FetchedAt time.Time
	Raw       *overpass.Result // nil unless WithRawResponseStorage(true)
}

// FetchRelation retrieves a multipolygon relation and the full geometry of
// its member ways, ready for mpassembly.Assemble.
func (ds *OverpassDataSource) FetchRelation(ctx context.Context, relationID int64) (*FetchedRelation, error) {
	query := buildRelationQuery(relationID)

	result, err := ds.client.Query(query)
	if err != nil {
		return nil, fmt.Errorf("overpass relation %d query failed: %w", relationID, err)
	}

	rel, ok := result.Relations[relationID]
	if !ok {
		return nil, fmt.Errorf("%w: relation %d not present in overpass response", ErrEmptyOverpassResponse, relationID)
	}

	relInput, ways, err := ResolveMultipolygonRelation(&result, rel)
	if err != nil {
		return nil, err
	}

	out := &FetchedRelation{
		Relation:  relInput,
		Ways:      ways,
		FetchedAt: time.Now(),
	}
	if ds.storeRawResponse {
		out.Raw = &result
	}
	return out, nil
}

// buildRelationQuery fetches a relation, its tags, and the full geometry of
// every member way in one round trip: "rel(id); out tags; way(r); out geom
// qt;" asks Overpass to recurse from the relation down to its member ways
// and return their complete, unclipped geometry.
func buildRelationQuery(relationID int64) string {
	return fmt.Sprintf(
		"[out:json][timeout:90];\nrel(%d);\nout tags;\nway(r);\nout geom qt;\nrel(%d);\nout body qt;",
		relationID, relationID,
	)
}

// Close cleans up resources (no-op for current version)
func (ds *OverpassDataSource) Close() error {
	return nil
}

// MultiOverpassDataSource fails over across several Overpass endpoints in
// order, retrying the next one when a query errors. Unlike tile fetching,
// relation fetches have no a-priori geographic extent to route on, so this
// is ordered failover rather than coverage-based routing.
type MultiOverpassDataSource struct {
	servers []namedDataSource
}

type namedDataSource struct {
	ds   *OverpassDataSource
	name string
}

// ServerConfig describes one Overpass endpoint in a failover chain.
type ServerConfig struct {
	Endpoint    string
	Workers     int
	RetryConfig *overpass.RetryConfig
	HTTPClient  *http.Client
	Name        string
}

// NewMultiOverpassDataSource builds a failover chain: the first endpoint is
// queried first, the next only on error.
func NewMultiOverpassDataSource(configs ...ServerConfig) *MultiOverpassDataSource {
	servers := make([]namedDataSource, 0, len(configs))
	for _, cfg := range configs {
		ovConfig := OverpassConfig{
			Endpoint:    cfg.Endpoint,
			Workers:     cfg.Workers,
			RetryConfig: cfg.RetryConfig,
			HTTPClient:  cfg.HTTPClient,
		}
		if ovConfig.Endpoint == "" {
			ovConfig.Endpoint = "https://overpass-api.de/api/interpreter"
		}
		if ovConfig.Workers < 1 {
			ovConfig.Workers = 2
		}
		if ovConfig.RetryConfig == nil {
			defaultRetry := overpass.DefaultRetryConfig()
			ovConfig.RetryConfig = &defaultRetry
		}
		servers = append(servers, namedDataSource{
			ds:   NewOverpassDataSourceWithConfig(ovConfig),
			name: cfg.Name,
		})
	}
	return &MultiOverpassDataSource{servers: servers}
}

// FetchRelation tries each configured server in order, returning the first
// success.
func (mds *MultiOverpassDataSource) FetchRelation(ctx context.Context, relationID int64) (*FetchedRelation, error) {
	var lastErr error
	for _, srv := range mds.servers {
		rel, err := srv.ds.FetchRelation(ctx, relationID)
		if err == nil {
			return rel, nil
		}
		lastErr = fmt.Errorf("[%s] %w", srv.name, err)
	}
	return nil, fmt.Errorf("all overpass servers failed: %w", lastErr)
}

// Close cleans up all underlying datasources.
func (mds *MultiOverpassDataSource) Close() error {
	for _, srv := range mds.servers {
		if err := srv.ds.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ErrEmptyOverpassResponse indicates Overpass returned no data when a
// relation was expected. This is a transient error that should trigger a
// retry.
var ErrEmptyOverpassResponse = fmt.Errorf("overpass returned empty response")
