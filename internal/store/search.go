package store

import (
	"context"
	"strings"

	"github.com/rcliao/persona-memory/internal/model"
)

// Search finds memories whose content contains the query substring, most
// important first and newest first among equals.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]model.MemoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	return queryMemories(ctx, s.db,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE content_lower LIKE ? ESCAPE '\'
		 ORDER BY importance DESC, timestamp DESC
		 LIMIT ?`, pattern, limit)
}
