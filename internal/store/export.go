package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcliao/persona-memory/internal/model"
)

// Dump is the portable form of one pair's store.
type Dump struct {
	Pair     model.Pair             `json:"pair"`
	Memories []model.MemoryEntry    `json:"memories"`
	Details  []model.PersonalDetail `json:"details"`
}

// ExportAll returns every memory and detail of the pair, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*Dump, error) {
	memories, err := queryMemories(ctx, s.db,
		`SELECT `+memoryColumns+` FROM memories ORDER BY timestamp, id`)
	if err != nil {
		return nil, err
	}
	details, err := s.PersonalDetails(ctx)
	if err != nil {
		return nil, err
	}
	return &Dump{Pair: s.pair, Memories: memories, Details: details}, nil
}

// Import writes the memories and details of d as they are, without
// re-analysis. Memories whose id already exists are skipped; the number of
// memories inserted is returned.
func (s *SQLiteStore) Import(ctx context.Context, d *Dump) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for _, m := range d.Memories {
		id := m.ID
		if id == "" {
			id = s.memoryID(m.Content, m.Timestamp.UTC())
		}
		tags, _ := json.Marshal(m.Tags)
		var ctxJSON *string
		if len(m.Context) > 0 {
			b, _ := json.Marshal(m.Context)
			v := string(b)
			ctxJSON = &v
		}
		memoryType := m.MemoryType
		if memoryType == "" {
			memoryType = model.TypeConversation
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO memories (id, character_id, user_id, content, content_lower, memory_type, importance,
			                       emotional_valence, relationship_impact, tags, context, timestamp, access_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			id, s.pair.CharacterID, s.pair.UserID, m.Content, foldContent(m.Content), memoryType, clampImportance(m.Importance),
			clamp(m.EmotionalValence, -1, 1), clamp(m.RelationshipImpact, 0, 1),
			string(tags), ctxJSON, formatTime(m.Timestamp), m.AccessCount)
		if err != nil {
			return imported, fmt.Errorf("import memory %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	for _, det := range d.Details {
		if err := s.upsertDetail(ctx, tx, det); err != nil {
			return imported, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
