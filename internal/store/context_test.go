package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/persona-memory/internal/model"
)

func TestRetrieveEmpty(t *testing.T) {
	s := newTestStore(t)

	mc, err := s.Retrieve(context.Background(), RetrieveParams{MaxMemories: 10, MinImportance: 0.3, IncludeEmotional: true})
	require.NoError(t, err)
	assert.Equal(t, model.NoMemoriesSummary, mc.Summary)
	assert.Empty(t, mc.Memories)
	assert.Nil(t, mc.Emotional)
	assert.Nil(t, mc.Relationship)
}

func TestRetrieveIdentityFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.StoreMemory(ctx, StoreParams{Content: "My name is Ed"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateImportance(ctx, id.ID, 0.4))
	_, err = s.StoreMemory(ctx, StoreParams{Content: "the weather was fine", Importance: ptr(0.95)})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreParams{Content: "I live in Lisbon"})
	require.NoError(t, err)

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10, MinImportance: 0.3})
	require.NoError(t, err)
	require.Len(t, mc.Memories, 3)
	assert.Equal(t, "My name is Ed", mc.Memories[0].Content)
	assert.Equal(t, "I live in Lisbon", mc.Memories[1].Content)
	assert.Equal(t, "the weather was fine", mc.Memories[2].Content)

	require.Len(t, mc.IdentityMemories, 1)
	require.Len(t, mc.PersonalMemories, 1)
	assert.Len(t, mc.ImportantMemories, 2)
	assert.Nil(t, mc.Emotional)
	assert.Empty(t, mc.Summary)
}

func TestRetrieveSelfIdentificationWithoutTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Import(ctx, &Dump{Memories: []model.MemoryEntry{
		{Content: "note", Importance: 0.9, Timestamp: time.Now()},
		{Content: "you can call me Jo", Importance: 0.5, Timestamp: time.Now()},
	}})
	require.NoError(t, err)

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10})
	require.NoError(t, err)
	require.Len(t, mc.IdentityMemories, 1)
	assert.Equal(t, "you can call me Jo", mc.Memories[0].Content)
}

func TestRetrieveKeywordRanking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.StoreMemory(ctx, StoreParams{Content: "I like cats", Importance: ptr(0.9)})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreParams{Content: "I have a dog named Rex", Importance: ptr(0.4)})
	require.NoError(t, err)

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10, Query: "dog"})
	require.NoError(t, err)
	require.Len(t, mc.Memories, 2)
	assert.Equal(t, "I have a dog named Rex", mc.Memories[0].Content)
	assert.Equal(t, "I like cats", mc.Memories[1].Content)
}

func TestRetrieveKeywordTiers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, c := range []string{
		"nothing relevant",
		"my red bike",
		"red paint and a bike",
		"red car bike lane",
	} {
		_, err := s.StoreMemory(ctx, StoreParams{Content: c, Importance: ptr(0.6)})
		require.NoError(t, err)
	}

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10, Query: "Red Bike"})
	require.NoError(t, err)
	require.Len(t, mc.Memories, 4)
	assert.Equal(t, "my red bike", mc.Memories[0].Content)
	// both hit the two-word tier; newer first
	assert.Equal(t, "red car bike lane", mc.Memories[1].Content)
	assert.Equal(t, "red paint and a bike", mc.Memories[2].Content)
	assert.Equal(t, "nothing relevant", mc.Memories[3].Content)
}

func TestRetrieveKeywordsFoldNonASCIICase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.StoreMemory(ctx, StoreParams{Content: "unrelated but vital", Importance: ptr(0.9)})
	s.StoreMemory(ctx, StoreParams{Content: "Øystein fixed the Élan bike", Importance: ptr(0.4)})

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10, Query: "øystein"})
	require.NoError(t, err)
	require.Len(t, mc.Memories, 2)
	assert.Equal(t, "Øystein fixed the Élan bike", mc.Memories[0].Content)
}

func TestRetrieveLikeWildcardsEscaped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.StoreMemory(ctx, StoreParams{Content: "plain text", Importance: ptr(0.9)})
	s.StoreMemory(ctx, StoreParams{Content: "100% sure", Importance: ptr(0.4)})

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10, Query: "100%"})
	require.NoError(t, err)
	assert.Equal(t, "100% sure", mc.Memories[0].Content)

	got, err := s.Search(ctx, "%", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% sure", got[0].Content)
}

func TestRetrieveFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 8; i++ {
		_, err := s.StoreMemory(ctx, StoreParams{
			Content:    fmt.Sprintf("entry %d", i),
			Importance: ptr(0.1 + float64(i)*0.1),
		})
		require.NoError(t, err)
	}

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 3, MinImportance: 0.3})
	require.NoError(t, err)
	require.Len(t, mc.Memories, 3)
	assert.Equal(t, "entry 7", mc.Memories[0].Content)
	assert.Equal(t, "entry 6", mc.Memories[1].Content)
	assert.Equal(t, "entry 5", mc.Memories[2].Content)

	mc, err = s.Retrieve(ctx, RetrieveParams{MaxMemories: 20, MinImportance: 0.55})
	require.NoError(t, err)
	for _, m := range mc.Memories {
		assert.GreaterOrEqual(t, m.Importance, 0.55)
	}
	assert.Len(t, mc.Memories, 3)
}

func TestRetrieveRecentAndEmotional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	contents := []string{
		"I am happy", "I am excited", "I am thrilled",
		"I feel sad", "a neutral line", "wonderful news", "great day",
	}
	for _, c := range contents {
		_, err := s.StoreMemory(ctx, StoreParams{Content: c, Importance: ptr(0.6)})
		require.NoError(t, err)
	}

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 10, IncludeEmotional: true})
	require.NoError(t, err)
	require.Len(t, mc.RecentMemories, RecentCount)
	assert.Equal(t, "great day", mc.RecentMemories[0].Content)
	assert.Equal(t, "wonderful news", mc.RecentMemories[1].Content)
	for i := 1; i < len(mc.RecentMemories); i++ {
		assert.False(t, mc.RecentMemories[i].Timestamp.After(mc.RecentMemories[i-1].Timestamp))
	}

	require.NotNil(t, mc.Emotional)
	assert.Equal(t, model.ValencePositive, mc.Emotional.Dominant)
}

func TestRetrieveAccessBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.StoreMemory(ctx, StoreParams{Content: "remember this", Importance: ptr(0.8)})
	require.NoError(t, err)

	_, err = s.Retrieve(ctx, RetrieveParams{MaxMemories: 5})
	require.NoError(t, err)
	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 5})
	require.NoError(t, err)

	require.Len(t, mc.Memories, 1)
	assert.Equal(t, 1, mc.Memories[0].AccessCount)
	require.NotNil(t, mc.Memories[0].LastAccessedAt)
}

func TestRetrieveIncludesRelationship(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.StoreMemory(ctx, StoreParams{Content: "hello", Importance: ptr(0.8)})
	_, err := s.RecordInteraction(ctx, 0.5)
	require.NoError(t, err)

	mc, err := s.Retrieve(ctx, RetrieveParams{MaxMemories: 5})
	require.NoError(t, err)
	require.NotNil(t, mc.Relationship)
	assert.Equal(t, 1, mc.Relationship.InteractionCount)
}

func TestEmotional(t *testing.T) {
	tests := []struct {
		name     string
		valences []float64
		dominant string
		level    string
	}{
		{"positive high", []float64{0.8, 0.9, -0.7}, model.ValencePositive, model.IntensityHigh},
		{"negative moderate", []float64{-0.5, -0.5, 0}, model.ValenceNegative, model.IntensityModerate},
		{"tie is neutral", []float64{0.2, -0.2}, model.ValenceNeutral, model.IntensityLow},
		{"mostly neutral", []float64{0, 0, 0.1}, model.ValenceNeutral, model.IntensityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ms []model.MemoryEntry
			for _, v := range tt.valences {
				ms = append(ms, model.MemoryEntry{EmotionalValence: v})
			}
			got := Emotional(ms)
			require.NotNil(t, got)
			assert.Equal(t, tt.dominant, got.Dominant)
			assert.Equal(t, tt.level, got.Level)
		})
	}
	assert.Nil(t, Emotional(nil))
}
