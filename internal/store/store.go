// Package store keeps the per-website vector databases and the scene history
// in a single SQLite file.
//
// Each scraped website becomes one vector database: a row in
// vector_databases plus one row per embedded chunk in vector_chunks.
// Similarity search ranks chunks in SQL through the registered
// vector_distance_cos function.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"livecast/internal/embedding"
	"livecast/internal/logging"
)

// ErrDatabaseNotFound is returned when a vector database id is unknown.
var ErrDatabaseNotFound = errors.New("vector database not found")

const schema = `
CREATE TABLE IF NOT EXISTS vector_databases (
	id TEXT PRIMARY KEY,
	website TEXT NOT NULL,
	metadata TEXT NOT NULL,
	engine TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vector_chunks (
	id TEXT PRIMARY KEY,
	database_id TEXT NOT NULL REFERENCES vector_databases(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vector_chunks_db ON vector_chunks(database_id, seq);

CREATE TABLE IF NOT EXISTS scene_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id TEXT NOT NULL,
	scene TEXT NOT NULL,
	language TEXT NOT NULL,
	topic TEXT NOT NULL,
	key_messages TEXT NOT NULL,
	script TEXT NOT NULL,
	accurate INTEGER,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scene_history_created ON scene_history(created_at);
`

// Store is the SQLite-backed vector and history store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	engine embedding.Engine
}

// Open opens (or creates) the store at path. ":memory:" is accepted.
func Open(path string, engine embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if engine == nil {
		return nil, fmt.Errorf("store requires an embedding engine")
	}
	if vecCompatErr != nil {
		return nil, vecCompatErr
	}

	logging.Store("Opening store at %s (engine=%s)", path, engine.Name())

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("Failed to apply %q: %v", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Store schema initialized")

	return &Store{db: db, path: path, engine: engine}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logging.Store("Store closed")
	return err
}

// Engine returns the embedding engine used for chunks and queries.
func (s *Store) Engine() embedding.Engine {
	return s.engine
}
