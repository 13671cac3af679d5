package store

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rcliao/persona-memory/internal/model"
)

// Keyword relevance tiers.
const (
	relevancePhrase = 1.0
	relevancePrefix = 0.8
	relevanceFirst  = 0.6
	relevanceNone   = 0.3
)

// Retrieval shaping.
const (
	ImportantThreshold = 0.7
	RecentCount        = 5
)

// Retrieve ranks memories by keyword relevance (when a query is given) and
// then by importance and recency, filters by minimum importance, limits the
// result and partitions it into identity, personal and other memories in
// that order. Entries returned get their access bookkeeping bumped.
func (s *SQLiteStore) Retrieve(ctx context.Context, p RetrieveParams) (*model.MemoryContext, error) {
	limit := p.MaxMemories
	if limit <= 0 {
		limit = 10
	}

	var (
		ranked []model.MemoryEntry
		err    error
	)
	if words := strings.Fields(strings.ToLower(p.Query)); len(words) > 0 {
		ranked, err = s.rankByKeywords(ctx, words, p.MinImportance, limit)
	} else {
		ranked, err = queryMemories(ctx, s.db,
			`SELECT `+memoryColumns+` FROM memories
			 WHERE importance >= ?
			 ORDER BY importance DESC, timestamp DESC
			 LIMIT ?`, p.MinImportance, limit)
	}
	if err != nil {
		return nil, err
	}

	rel, err := s.RelationshipState(ctx)
	if err != nil {
		return nil, err
	}

	mc := s.partition(ranked)
	if rel.InteractionCount > 0 {
		mc.Relationship = &rel
	}
	if p.IncludeEmotional && len(mc.Memories) > 0 {
		mc.Emotional = Emotional(mc.Memories)
	}

	if err := s.touch(ctx, mc.Memories); err != nil {
		s.log.Warn().Err(err).Str("op", "touch").Msg("access bookkeeping failed")
	}
	return mc, nil
}

// rankByKeywords scores each row by the strongest containment tier it hits:
// the whole phrase, the first two words in order, the first word, or none.
func (s *SQLiteStore) rankByKeywords(ctx context.Context, words []string, minImportance float64, limit int) ([]model.MemoryEntry, error) {
	phrase := "%" + escapeLike(strings.Join(words, " ")) + "%"
	prefix := phrase
	if len(words) >= 2 {
		prefix = "%" + escapeLike(words[0]) + "%" + escapeLike(words[1]) + "%"
	}
	first := "%" + escapeLike(words[0]) + "%"

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+`,
		        CASE
		          WHEN content_lower LIKE ? ESCAPE '\' THEN ?
		          WHEN content_lower LIKE ? ESCAPE '\' THEN ?
		          WHEN content_lower LIKE ? ESCAPE '\' THEN ?
		          ELSE ?
		        END AS relevance
		 FROM memories
		 WHERE importance >= ?
		 ORDER BY relevance DESC, importance DESC, timestamp DESC
		 LIMIT ?`,
		phrase, relevancePhrase, prefix, relevancePrefix, first, relevanceFirst, relevanceNone,
		minImportance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memories := []model.MemoryEntry{}
	for rows.Next() {
		var relevance float64
		m, err := scanMemory(rows, &relevance)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// partition orders identity memories first, then personal, then the rest,
// keeping rank order within each group.
func (s *SQLiteStore) partition(ranked []model.MemoryEntry) *model.MemoryContext {
	mc := model.EmptyContext()
	var other []model.MemoryEntry
	for _, m := range ranked {
		switch {
		case m.HasTag(model.TagIdentity, model.TagName) || s.analyzer.IsSelfIdentification(m.Content):
			mc.IdentityMemories = append(mc.IdentityMemories, m)
		case m.HasTag(model.TagPersonalInfo, model.TagPersonalDetail):
			mc.PersonalMemories = append(mc.PersonalMemories, m)
		default:
			other = append(other, m)
		}
	}

	mc.Memories = append(mc.Memories, mc.IdentityMemories...)
	mc.Memories = append(mc.Memories, mc.PersonalMemories...)
	mc.Memories = append(mc.Memories, other...)

	for _, m := range mc.Memories {
		if m.Importance > ImportantThreshold {
			mc.ImportantMemories = append(mc.ImportantMemories, m)
		}
	}

	recent := append([]model.MemoryEntry(nil), mc.Memories...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > RecentCount {
		recent = recent[:RecentCount]
	}
	mc.RecentMemories = append(mc.RecentMemories, recent...)

	if len(mc.Memories) > 0 {
		mc.Summary = ""
	}
	return mc
}

// Emotional summarizes the valence of memories: the dominant polarity by
// count, with ties read as neutral, and the mean absolute valence bucketed.
func Emotional(memories []model.MemoryEntry) *model.EmotionalSummary {
	if len(memories) == 0 {
		return nil
	}
	var pos, neg, neu int
	var total float64
	for _, m := range memories {
		switch {
		case m.EmotionalValence > 0:
			pos++
		case m.EmotionalValence < 0:
			neg++
		default:
			neu++
		}
		total += math.Abs(m.EmotionalValence)
	}

	dominant := model.ValenceNeutral
	switch {
	case pos > neg && pos > neu:
		dominant = model.ValencePositive
	case neg > pos && neg > neu:
		dominant = model.ValenceNegative
	}

	avg := total / float64(len(memories))
	level := model.IntensityHigh
	switch {
	case avg < 0.3:
		level = model.IntensityLow
	case avg < 0.6:
		level = model.IntensityModerate
	}
	return &model.EmotionalSummary{Dominant: dominant, AverageIntensity: avg, Level: level}
}

func (s *SQLiteStore) touch(ctx context.Context, memories []model.MemoryEntry) error {
	if len(memories) == 0 {
		return nil
	}
	now := formatTime(s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, m := range memories {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
			now, m.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
