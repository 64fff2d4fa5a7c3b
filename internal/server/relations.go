// Package server exposes assembled multipolygon relations over HTTP,
// assembling on demand and caching the result.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/geojson"
	"github.com/MeKo-Tech/osmpolygon/internal/mpassembly"
	"github.com/MeKo-Tech/osmpolygon/internal/relstore"
	"github.com/MeKo-Tech/osmpolygon/internal/types"
)

// Assembler fetches and assembles a single relation. *pipeline.Pipeline
// satisfies this.
type Assembler interface {
	AssembleOne(ctx context.Context, relationID int64) (types.AssembledRelation, error)
}

// Config configures a RelationService.
type Config struct {
	MaxConcurrentAssemblies int
	AssemblyTimeout         time.Duration
	CacheControl            string
}

// RelationService serves assembled relations over HTTP, serializing
// concurrent requests for the same relation and answering from an optional
// relstore.Store when it already holds the relation.
type RelationService struct {
	assembler Assembler
	store     *relstore.Store
	logger    *slog.Logger
	cfg       Config
	sem       chan struct{}
	locks     sync.Map // map[int64]*sync.Mutex

	activeAssemblies atomic.Int32
	totalAssembled    atomic.Int64
	totalFailed       atomic.Int64
	currentRelations  sync.Map // map[int64]time.Time
}

// Status summarizes the current state of the relation assembly service.
type Status struct {
	ActiveAssemblies int     `json:"active_assemblies"`
	TotalAssembled   int64   `json:"total_assembled"`
	TotalFailed      int64   `json:"total_failed"`
	CurrentRelations []int64 `json:"current_relations"`
	MaxConcurrent    int     `json:"max_concurrent"`
	CachedRelations  int     `json:"cached_relations,omitempty"`
}

// NewRelationService creates a RelationService. store may be nil to disable
// caching (every request re-fetches and re-assembles).
func NewRelationService(assembler Assembler, store *relstore.Store, cfg Config, logger *slog.Logger) *RelationService {
	if cfg.MaxConcurrentAssemblies <= 0 {
		cfg.MaxConcurrentAssemblies = 4
	}
	if cfg.AssemblyTimeout <= 0 {
		cfg.AssemblyTimeout = 2 * time.Minute
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RelationService{
		assembler: assembler,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrentAssemblies),
	}
}

// Handler returns the HTTP handler for GET /relations/{id} and
// GET /relations/{id}/secondary.
func (s *RelationService) Handler() http.Handler {
	return http.HandlerFunc(s.route)
}

func (s *RelationService) route(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	relationID, secondary, ok := parseRelationPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	rel, err := s.getOrAssemble(r.Context(), relationID)
	if err != nil {
		s.writeError(w, relationID, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", s.cfg.CacheControl)

	var fc interface{}
	if secondary {
		fc = geojson.SecondaryPolygonsToGeoJSON(rel.Secondary)
	} else {
		fc = geojson.AssembledRelationToGeoJSON(rel)
	}

	if err := json.NewEncoder(w).Encode(fc); err != nil {
		s.log().Error("failed to encode geojson response", "relation", relationID, "error", err)
	}
}

// getOrAssemble returns a cached relation if the store has one. Otherwise it
// takes a per-id lock, so requests for one id run one at a time, checks the
// store again, and assembles through the injected Assembler. It does not
// write to the store itself.
func (s *RelationService) getOrAssemble(ctx context.Context, relationID int64) (types.AssembledRelation, error) {
	if s.store != nil {
		if rel, err := s.store.Get(relationID); err == nil {
			return rel, nil
		}
	}

	mu := s.getLock(relationID)
	mu.Lock()
	defer mu.Unlock()

	if s.store != nil {
		if rel, err := s.store.Get(relationID); err == nil {
			return rel, nil
		}
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return types.AssembledRelation{}, ctx.Err()
	}

	assembleCtx, cancel := context.WithTimeout(ctx, s.cfg.AssemblyTimeout)
	defer cancel()

	s.activeAssemblies.Add(1)
	s.currentRelations.Store(relationID, time.Now())
	start := time.Now()

	rel, err := s.assembler.AssembleOne(assembleCtx, relationID)

	s.activeAssemblies.Add(-1)
	s.currentRelations.Delete(relationID)

	if err != nil {
		s.totalFailed.Add(1)
		s.log().Error("failed to assemble relation", "relation", relationID, "error", err)
		return types.AssembledRelation{}, err
	}

	s.totalAssembled.Add(1)
	s.log().Info("assembled relation on demand", "relation", relationID, "ms", time.Since(start).Milliseconds())

	return rel, nil
}

// writeError maps an assembly timeout to HTTP 504, a CORE fatal reason to
// HTTP 422, and everything else (fetch errors, cache I/O, adapter failures)
// to HTTP 500.
func (s *RelationService) writeError(w http.ResponseWriter, relationID int64, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, fmt.Sprintf("relation %d: assembly timed out", relationID), http.StatusGatewayTimeout)
		return
	}

	coreErrors := []error{
		mpassembly.ErrInvalidWayGeometry,
		mpassembly.ErrDanglingEnds,
		mpassembly.ErrNoRings,
		mpassembly.ErrInvalidRing,
		mpassembly.ErrInvalidMultiPolygon,
	}
	for _, sentinel := range coreErrors {
		if errors.Is(err, sentinel) {
			http.Error(w, fmt.Sprintf("relation %d: %v", relationID, err), http.StatusUnprocessableEntity)
			return
		}
	}

	http.Error(w, fmt.Sprintf("relation %d: %v", relationID, err), http.StatusInternalServerError)
}

// Status returns the current state of the service.
func (s *RelationService) Status() Status {
	var current []int64
	s.currentRelations.Range(func(key, _ any) bool {
		current = append(current, key.(int64))
		return true
	})

	status := Status{
		ActiveAssemblies: int(s.activeAssemblies.Load()),
		TotalAssembled:   s.totalAssembled.Load(),
		TotalFailed:      s.totalFailed.Load(),
		CurrentRelations: current,
		MaxConcurrent:    s.cfg.MaxConcurrentAssemblies,
	}
	if s.store != nil {
		if count, err := s.store.Count(); err == nil {
			status.CachedRelations = count
		}
	}
	return status
}

// StatusHandler returns an HTTP handler for the status endpoint (JSON).
func (s *RelationService) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-store")

		if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
			s.log().Error("failed to encode status", "error", err)
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
		}
	})
}

func (s *RelationService) getLock(relationID int64) *sync.Mutex {
	if v, ok := s.locks.Load(relationID); ok {
		return v.(*sync.Mutex)
	}
	mu := &sync.Mutex{}
	actual, _ := s.locks.LoadOrStore(relationID, mu)
	return actual.(*sync.Mutex)
}

func (s *RelationService) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// parseRelationPath parses "/relations/{id}" and "/relations/{id}/secondary".
func parseRelationPath(requestPath string) (relationID int64, secondary bool, ok bool) {
	trimmed := strings.TrimPrefix(requestPath, "/relations/")
	if trimmed == requestPath {
		return 0, false, false
	}
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		return 0, false, false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false, false
	}

	switch len(parts) {
	case 1:
		return id, false, true
	case 2:
		if parts[1] != "secondary" {
			return 0, false, false
		}
		return id, true, true
	default:
		return 0, false, false
	}
}
