package store

import (
	"context"
	"database/sql"
	"os"

	"github.com/rcliao/persona-memory/internal/model"
)

// Stats returns counts, the type distribution and the mean importance of
// the pair's memories, with its detail count, stage and file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{TypeDistribution: map[string]int{}, Stage: model.StageStranger}

	for _, f := range []string{s.path, s.path + "-wal"} {
		if info, err := os.Stat(f); err == nil {
			st.DBSizeBytes += info.Size()
		}
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(importance) FROM memories`).Scan(&st.TotalCount, &avg); err != nil {
		return st, err
	}
	st.AverageImportance = avg.Float64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM personal_details`).Scan(&st.PersonalDetails); err != nil {
		return st, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return st, err
		}
		st.TypeDistribution[typ] = n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	rel, err := s.RelationshipState(ctx)
	if err != nil {
		return st, err
	}
	st.Stage = rel.Stage
	return st, nil
}
