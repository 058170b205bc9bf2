package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SceneRecord is one generated scene kept in the history.
type SceneRecord struct {
	ID           int64
	CollectionID string
	Scene        string
	Language     string
	Topic        string
	KeyMessages  string
	Script       string
	Accurate     *bool // nil when the script was not judged
	CreatedAt    time.Time
}

// RecordScene appends rec to the scene history and returns its id.
func (s *Store) RecordScene(ctx context.Context, rec SceneRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var accurate sql.NullBool
	if rec.Accurate != nil {
		accurate = sql.NullBool{Bool: *rec.Accurate, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scene_history (collection_id, scene, language, topic, key_messages, script, accurate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CollectionID, rec.Scene, rec.Language, rec.Topic, rec.KeyMessages, rec.Script, accurate, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record scene %s: %w", rec.Scene, err)
	}
	return res.LastInsertId()
}

// RecentScenes returns up to n scenes, newest first.
func (s *Store) RecentScenes(ctx context.Context, n int) ([]SceneRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, scene, language, topic, key_messages, script, accurate, created_at
		FROM scene_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query scene history: %w", err)
	}
	defer rows.Close()

	var out []SceneRecord
	for rows.Next() {
		var rec SceneRecord
		var accurate sql.NullBool
		var created int64
		if err := rows.Scan(&rec.ID, &rec.CollectionID, &rec.Scene, &rec.Language, &rec.Topic,
			&rec.KeyMessages, &rec.Script, &accurate, &created); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		if accurate.Valid {
			v := accurate.Bool
			rec.Accurate = &v
		}
		rec.CreatedAt = time.Unix(0, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
