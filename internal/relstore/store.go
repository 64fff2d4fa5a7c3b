// Package relstore provides SQLite-backed storage for assembled multipolygon
// relations, keyed by OSM relation id.
package relstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/osmpolygon/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultBatchSize is the number of relations to buffer before flushing to
// the database.
const DefaultBatchSize = 100

// entry is a buffered write pending flush.
type entry struct {
	rel types.AssembledRelation
}

// Store persists assembled relations and their secondary polygons in a
// SQLite database.
type Store struct {
	db        *sql.DB
	path      string
	batch     []entry
	batchSize int
	mu        sync.Mutex
}

// Open creates or opens a relation store at path, creating the schema if
// needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:        db,
		path:      path,
		batch:     make([]entry, 0, DefaultBatchSize),
		batchSize: DefaultBatchSize,
	}, nil
}

// OpenReadOnly opens an existing relation store for reading only.
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='relations'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("database does not contain relations table")
	}

	return &Store{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS relations (
			relation_id INTEGER PRIMARY KEY,
			geometry    BLOB NOT NULL,
			tags        TEXT NOT NULL,
			assembled_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS secondary_polygons (
			relation_id   INTEGER NOT NULL,
			source_way_id INTEGER NOT NULL,
			geometry      BLOB NOT NULL,
			tags          TEXT NOT NULL,
			PRIMARY KEY (relation_id, source_way_id),
			FOREIGN KEY (relation_id) REFERENCES relations(relation_id)
		);

		CREATE INDEX IF NOT EXISTS secondary_by_relation ON secondary_polygons (relation_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Put adds an assembled relation to the write batch. The batch is flushed
// automatically once it reaches batchSize.
func (s *Store) Put(rel types.AssembledRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = append(s.batch, entry{rel: rel})
	if len(s.batch) >= s.batchSize {
		return s.flushLocked()
	}
	return nil
}

// Flush writes any buffered relations to the database.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	relStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO relations (relation_id, geometry, tags, assembled_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare relation insert: %w", err)
	}
	defer relStmt.Close()

	delSecStmt, err := tx.Prepare(`DELETE FROM secondary_polygons WHERE relation_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare secondary delete: %w", err)
	}
	defer delSecStmt.Close()

	secStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO secondary_polygons (relation_id, source_way_id, geometry, tags)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare secondary insert: %w", err)
	}
	defer secStmt.Close()

	for _, e := range s.batch {
		geomBytes, err := wkb.Marshal(e.rel.MultiPolygon)
		if err != nil {
			return fmt.Errorf("failed to encode geometry for relation %d: %w", e.rel.RelationID, err)
		}
		tagsJSON, err := json.Marshal(e.rel.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for relation %d: %w", e.rel.RelationID, err)
		}

		if _, err := relStmt.Exec(e.rel.RelationID, geomBytes, tagsJSON, e.rel.Timestamp.Unix()); err != nil {
			return fmt.Errorf("failed to insert relation %d: %w", e.rel.RelationID, err)
		}

		if _, err := delSecStmt.Exec(e.rel.RelationID); err != nil {
			return fmt.Errorf("failed to clear secondary polygons for relation %d: %w", e.rel.RelationID, err)
		}

		for _, sec := range e.rel.Secondary {
			secGeomBytes, err := wkb.Marshal(sec.Polygon)
			if err != nil {
				return fmt.Errorf("failed to encode secondary polygon for way %d: %w", sec.SourceWayID, err)
			}
			secTagsJSON, err := json.Marshal(sec.Tags)
			if err != nil {
				return fmt.Errorf("failed to encode secondary tags for way %d: %w", sec.SourceWayID, err)
			}
			if _, err := secStmt.Exec(e.rel.RelationID, sec.SourceWayID, secGeomBytes, secTagsJSON); err != nil {
				return fmt.Errorf("failed to insert secondary polygon for way %d: %w", sec.SourceWayID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.batch = s.batch[:0]
	return nil
}

// Get retrieves an assembled relation by id, including its secondary
// polygons. Returns sql.ErrNoRows if the relation is not stored.
func (s *Store) Get(relationID int64) (types.AssembledRelation, error) {
	var geomBytes, tagsJSON []byte
	var assembledAt int64

	err := s.db.QueryRow(
		"SELECT geometry, tags, assembled_at FROM relations WHERE relation_id = ?",
		relationID,
	).Scan(&geomBytes, &tagsJSON, &assembledAt)
	if err != nil {
		return types.AssembledRelation{}, err
	}

	geom, err := wkb.Unmarshal(geomBytes)
	if err != nil {
		return types.AssembledRelation{}, fmt.Errorf("failed to decode geometry for relation %d: %w", relationID, err)
	}
	mp, ok := geom.(orb.MultiPolygon)
	if !ok {
		return types.AssembledRelation{}, fmt.Errorf("relation %d: stored geometry is not a multipolygon", relationID)
	}

	var tags map[string]string
	if err := json.Unmarshal(tagsJSON, &tags); err != nil {
		return types.AssembledRelation{}, fmt.Errorf("failed to decode tags for relation %d: %w", relationID, err)
	}

	secondary, err := s.secondaryPolygons(relationID)
	if err != nil {
		return types.AssembledRelation{}, err
	}

	return types.AssembledRelation{
		RelationID:   relationID,
		MultiPolygon: mp,
		Tags:         tags,
		Timestamp:    time.Unix(assembledAt, 0).UTC(),
		Secondary:    secondary,
	}, nil
}

func (s *Store) secondaryPolygons(relationID int64) ([]types.SecondaryPolygon, error) {
	rows, err := s.db.Query(
		"SELECT source_way_id, geometry, tags FROM secondary_polygons WHERE relation_id = ?",
		relationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query secondary polygons for relation %d: %w", relationID, err)
	}
	defer rows.Close()

	var out []types.SecondaryPolygon
	for rows.Next() {
		var wayID int64
		var geomBytes, tagsJSON []byte
		if err := rows.Scan(&wayID, &geomBytes, &tagsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan secondary polygon row: %w", err)
		}

		geom, err := wkb.Unmarshal(geomBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secondary polygon for way %d: %w", wayID, err)
		}
		poly, ok := geom.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("way %d: stored secondary geometry is not a polygon", wayID)
		}

		var tags map[string]string
		if err := json.Unmarshal(tagsJSON, &tags); err != nil {
			return nil, fmt.Errorf("failed to decode secondary tags for way %d: %w", wayID, err)
		}

		out = append(out, types.SecondaryPolygon{SourceWayID: wayID, Polygon: poly, Tags: tags})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating secondary polygons: %w", err)
	}
	return out, nil
}

// Has reports whether a relation is already stored, without decoding its
// geometry.
func (s *Store) Has(relationID int64) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM relations WHERE relation_id = ?", relationID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check relation %d: %w", relationID, err)
	}
	return count > 0, nil
}

// Count returns the number of stored relations.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM relations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relations: %w", err)
	}
	return count, nil
}

// Close flushes any remaining writes and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
