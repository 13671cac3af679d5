package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/relationship"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// RelationshipState returns the pair's relationship row, or the stranger
// state when the pair has never interacted.
func (s *SQLiteStore) RelationshipState(ctx context.Context) (model.RelationshipState, error) {
	return s.loadRelationship(ctx, s.db)
}

func (s *SQLiteStore) loadRelationship(ctx context.Context, q queryer) (model.RelationshipState, error) {
	st := model.NewRelationshipState(s.pair)
	var stage string
	var last sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT stage, trust_level, familiarity, interaction_count,
		        positive_interactions, negative_interactions, last_interaction
		 FROM relationship WHERE id = 1`).Scan(
		&stage, &st.TrustLevel, &st.Familiarity, &st.InteractionCount,
		&st.PositiveInteractions, &st.NegativeInteractions, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return model.NewRelationshipState(s.pair), fmt.Errorf("load relationship: %w", err)
	}
	// The stage column is informational; the stage is always derived.
	st.Stage = relationship.StageFor(st.Familiarity)
	if last.Valid {
		t := parseTime(last.String)
		st.LastInteraction = &t
	}
	return st, nil
}

// RecordInteraction advances the relationship by one interaction and journals
// it. The read-modify-write runs in one transaction under the store mutex, so
// concurrent calls never lose an update.
func (s *SQLiteStore) RecordInteraction(ctx context.Context, impact float64) (model.RelationshipState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewRelationshipState(s.pair), err
	}
	defer tx.Rollback()

	cur, err := s.loadRelationship(ctx, tx)
	if err != nil {
		return model.NewRelationshipState(s.pair), err
	}

	now := s.now()
	next := relationship.Advance(cur, impact, now)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO relationship (id, character_id, user_id, stage, trust_level, familiarity,
		                           interaction_count, positive_interactions, negative_interactions, last_interaction)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   stage = excluded.stage,
		   trust_level = excluded.trust_level,
		   familiarity = excluded.familiarity,
		   interaction_count = excluded.interaction_count,
		   positive_interactions = excluded.positive_interactions,
		   negative_interactions = excluded.negative_interactions,
		   last_interaction = excluded.last_interaction`,
		s.pair.CharacterID, s.pair.UserID, string(next.Stage), next.TrustLevel, next.Familiarity,
		next.InteractionCount, next.PositiveInteractions, next.NegativeInteractions,
		formatTime(*next.LastInteraction))
	if err != nil {
		return model.NewRelationshipState(s.pair), fmt.Errorf("save relationship: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO interactions (id, impact, stage_after, at) VALUES (?, ?, ?, ?)`,
		s.newULID(now), impact, string(next.Stage), formatTime(now))
	if err != nil {
		return model.NewRelationshipState(s.pair), fmt.Errorf("journal interaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.NewRelationshipState(s.pair), err
	}

	if next.Stage != cur.Stage {
		s.log.Info().
			Str("from", string(cur.Stage)).
			Str("to", string(next.Stage)).
			Msg("relationship stage advanced")
	}
	return next, nil
}

// Interactions returns the journaled interactions, newest first.
func (s *SQLiteStore) Interactions(ctx context.Context, limit int) ([]model.Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, impact, stage_after, at FROM interactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Interaction{}
	for rows.Next() {
		var in model.Interaction
		var stage, at string
		if err := rows.Scan(&in.ID, &in.Impact, &stage, &at); err != nil {
			return nil, err
		}
		in.StageAfter = model.Stage(stage)
		in.At = parseTime(at)
		out = append(out, in)
	}
	return out, rows.Err()
}
