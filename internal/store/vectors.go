package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"livecast/internal/logging"
)

// NoneContent stands in for a website that failed to scrape.
const NoneContent = "None"

// Database is a handle to one website's vector database.
type Database struct {
	ID       string
	Website  string
	Metadata map[string]string
}

// Document is one retrieved chunk.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string // nil for the "None" placeholder
	Distance float64
}

// CreateDatabase embeds texts and stores them as a new vector database for website.
// Every chunk carries the metadata {"website": website}.
func (s *Store) CreateDatabase(ctx context.Context, website string, texts []string) (*Database, error) {
	timer := logging.StartTimer(logging.CategoryStore, "CreateDatabase")
	defer timer.StopWithInfo()

	if len(texts) == 0 {
		return nil, fmt.Errorf("no chunks to store for %s", website)
	}

	vectors, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks for %s: %w", website, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch for %s: got %d, want %d", website, len(vectors), len(texts))
	}

	meta := map[string]string{"website": website}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dbID := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vector_databases (id, website, metadata, engine, created_at) VALUES (?, ?, ?, ?, ?)`,
		dbID, website, string(metaJSON), s.engine.Name(), time.Now().UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("failed to insert database: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vector_chunks (id, database_id, seq, content, metadata, embedding) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, text := range texts {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), dbID, i, text, string(metaJSON), encodeFloat32(vectors[i])); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit database: %w", err)
	}

	logging.Store("Created database %s for %s with %d chunks", dbID, website, len(texts))
	return &Database{ID: dbID, Website: website, Metadata: meta}, nil
}

// GetDatabase loads a database handle by id.
func (s *Store) GetDatabase(ctx context.Context, id string) (*Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	var website, metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT website, metadata FROM vector_databases WHERE id = ?`, id,
	).Scan(&website, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load database %s: %w", id, err)
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
	}
	return &Database{ID: id, Website: website, Metadata: meta}, nil
}

// SimilaritySearch returns the k chunks of db closest to query.
// A nil db yields the single "None" placeholder document.
func (s *Store) SimilaritySearch(ctx context.Context, db *Database, query string, k int) ([]Document, error) {
	if db == nil {
		return []Document{{Content: NoneContent}}, nil
	}
	vec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.searchVector(ctx, []string{db.ID}, vec, k)
}

// searchVector ranks the chunks of the given databases against vec.
// Ties keep insertion order.
func (s *Store) searchVector(ctx context.Context, dbIDs []string, vec []float32, k int) ([]Document, error) {
	if k <= 0 || len(dbIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dbIDs)), ",")
	query := fmt.Sprintf(`
		SELECT id, content, metadata, vector_distance_cos(embedding, ?) AS dist
		FROM vector_chunks
		WHERE database_id IN (%s)
		ORDER BY dist ASC, database_id, seq ASC
		LIMIT ?`, placeholders)

	args := make([]interface{}, 0, len(dbIDs)+2)
	args = append(args, encodeFloat32(vec))
	for _, id := range dbIDs {
		args = append(args, id)
	}
	args = append(args, k)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var metaJSON string
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &d.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// FindRelevantDocs searches every database for query with at most workers
// searches in flight. Contents are joined with ", " in database order.
func (s *Store) FindRelevantDocs(ctx context.Context, query string, dbs []*Database, workers, k int) (string, []map[string]string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "FindRelevantDocs")
	defer timer.Stop()

	results := make([][]Document, len(dbs))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, db := range dbs {
		g.Go(func() error {
			docs, err := s.SimilaritySearch(gctx, db, query, k)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	var contents []string
	var metadata []map[string]string
	for _, docs := range results {
		for _, d := range docs {
			contents = append(contents, d.Content)
			metadata = append(metadata, d.Metadata)
		}
	}
	logging.StoreDebug("Retrieved %d chunks from %d databases for %q", len(contents), len(dbs), query)
	return strings.Join(contents, ", "), metadata, nil
}

// FindRelevantDocsQueries runs several queries against the union of dbs,
// taking the global top k per query. Chunks returned by an earlier query
// are not repeated.
func (s *Store) FindRelevantDocsQueries(ctx context.Context, queries []string, dbs []*Database, k int) (string, []map[string]string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "FindRelevantDocsQueries")
	defer timer.Stop()

	var ids []string
	for _, db := range dbs {
		if db != nil {
			ids = append(ids, db.ID)
		}
	}
	if len(ids) == 0 {
		return NoneContent, []map[string]string{nil}, nil
	}

	seen := make(map[string]bool)
	var contents []string
	var metadata []map[string]string
	for _, q := range queries {
		vec, err := s.engine.Embed(ctx, q)
		if err != nil {
			return "", nil, fmt.Errorf("failed to embed query %q: %w", q, err)
		}
		docs, err := s.searchVector(ctx, ids, vec, k)
		if err != nil {
			return "", nil, err
		}
		for _, d := range docs {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			contents = append(contents, d.Content)
			metadata = append(metadata, d.Metadata)
		}
	}
	return strings.Join(contents, ", "), metadata, nil
}

// RebuildPageContent concatenates a database's chunks in insertion order.
func (s *Store) RebuildPageContent(ctx context.Context, db *Database) (string, error) {
	if db == nil {
		return "", fmt.Errorf("%w: nil database", ErrDatabaseNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return "", fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM vector_chunks WHERE database_id = ? ORDER BY seq ASC`, db.ID)
	if err != nil {
		return "", fmt.Errorf("failed to read chunks: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrDatabaseNotFound, db.ID)
	}
	return strings.Join(parts, " "), nil
}

// PruneDatabases deletes vector databases created before now-olderThan and
// returns how many were removed.
func (s *Store) PruneDatabases(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vector_chunks WHERE database_id IN (SELECT id FROM vector_databases WHERE created_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM vector_databases WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune databases: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Store("Pruned %d vector databases older than %s", n, olderThan)
	}
	return int(n), nil
}

// FormatMetadata renders retrieval metadata for a prompt, one entry per chunk.
// Entries of failed websites render as None.
func FormatMetadata(metadata []map[string]string) string {
	parts := make([]string, len(metadata))
	for i, m := range metadata {
		if m == nil {
			parts[i] = NoneContent
			continue
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for j, k := range keys {
			fields[j] = fmt.Sprintf("%q: %q", k, m[k])
		}
		parts[i] = "{" + strings.Join(fields, ", ") + "}"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
