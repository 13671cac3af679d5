package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rcliao/persona-memory/internal/model"
)

// PersonalDetails returns every detail known for the pair, oldest first.
func (s *SQLiteStore) PersonalDetails(ctx context.Context) ([]model.PersonalDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, detail_type, content, confidence, source, timestamp
		 FROM personal_details ORDER BY timestamp, detail_type, content`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := []model.PersonalDetail{}
	for rows.Next() {
		var d model.PersonalDetail
		var ts string
		if err := rows.Scan(&d.ID, &d.DetailType, &d.Content, &d.Confidence, &d.Source, &ts); err != nil {
			return nil, err
		}
		d.Timestamp = parseTime(ts)
		details = append(details, d)
	}
	return details, rows.Err()
}

// AddPersonalDetail records a manually supplied detail. It shares the upsert
// key of extracted details, so a known fact is not duplicated.
func (s *SQLiteStore) AddPersonalDetail(ctx context.Context, d model.PersonalDetail) error {
	if d.DetailType == "" || d.Content == "" {
		return fmt.Errorf("detail type and content are required")
	}
	if d.Source == "" {
		d.Source = model.SourceManual
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.upsertDetail(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

// upsertDetail inserts d keyed by (pair, type, content). A repeat keeps the
// first timestamp and the higher confidence.
func (s *SQLiteStore) upsertDetail(ctx context.Context, tx *sql.Tx, d model.PersonalDetail) error {
	confidence := d.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	ts := d.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO personal_details (id, detail_type, content, confidence, source, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   confidence = MAX(personal_details.confidence, excluded.confidence)`,
		hashID(s.pair.Key(), d.DetailType, hashID(d.Content)),
		d.DetailType, d.Content, confidence, d.Source, formatTime(ts))
	if err != nil {
		return fmt.Errorf("upsert detail: %w", err)
	}
	return nil
}
