package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/persona-memory/internal/model"
)

var testPair = model.Pair{CharacterID: "luna", UserID: "u1"}

// stepClock advances one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), testPair, Options{Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func TestStoreMemoryIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	m1, err := s.StoreMemory(ctx, StoreParams{Content: "I walked the dog", Timestamp: at})
	require.NoError(t, err)
	m2, err := s.StoreMemory(ctx, StoreParams{Content: "I walked the dog", Timestamp: at})
	require.NoError(t, err)
	assert.Equal(t, m1.ID, m2.ID)

	m3, err := s.StoreMemory(ctx, StoreParams{Content: "I walked the dog", Timestamp: at.Add(time.Minute)})
	require.NoError(t, err)
	assert.NotEqual(t, m1.ID, m3.ID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCount)
}

func TestStoreMemoryIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.StoreMemory(ctx, StoreParams{Content: "My name is Ed", MemoryType: model.TypeConversation})
	require.NoError(t, err)
	assert.Equal(t, model.TypePersonalIdentity, m.MemoryType)
	assert.Equal(t, 1.0, m.Importance)
	assert.Subset(t, m.Tags, []string{model.TagIdentity, model.TagName})

	details, err := s.PersonalDetails(ctx)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, model.DetailName, details[0].DetailType)
	assert.Equal(t, "Ed", details[0].Content)
}

func TestStoreMemoryScores(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	explicit, err := s.StoreMemory(ctx, StoreParams{
		Content:            "the weather was fine",
		Importance:         ptr(0.95),
		Valence:            ptr(-0.4),
		RelationshipImpact: ptr(0.9),
		Tags:               []string{"weather"},
		Context:            map[string]string{"channel": "chat"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.95, explicit.Importance)
	assert.Equal(t, -0.4, explicit.EmotionalValence)
	assert.Equal(t, 0.9, explicit.RelationshipImpact)
	assert.Equal(t, []string{"weather"}, explicit.Tags)

	// The caller defaults mean "compute it".
	sentinel, err := s.StoreMemory(ctx, StoreParams{
		Content:    "I am so happy today",
		Importance: ptr(UnsetImportance),
		Valence:    ptr(UnsetValence),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, sentinel.EmotionalValence, 1e-9)
	assert.NotEqual(t, UnsetImportance, sentinel.Importance)

	got, err := s.Search(ctx, "weather", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]string{"channel": "chat"}, got[0].Context)
	assert.True(t, explicit.Timestamp.Equal(got[0].Timestamp))
}

func TestStoreMemoryBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, v := range []float64{-3, 0.01, 7} {
		m, err := s.StoreMemory(ctx, StoreParams{Content: "plain words", Importance: ptr(v), Valence: ptr(v)})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m.Importance, 0.1)
		assert.LessOrEqual(t, m.Importance, 1.0)
		assert.GreaterOrEqual(t, m.EmotionalValence, -1.0)
		assert.LessOrEqual(t, m.EmotionalValence, 1.0)
	}

	all, err := s.ExportAll(ctx)
	require.NoError(t, err)
	for _, m := range all.Memories {
		assert.GreaterOrEqual(t, m.Importance, 0.1)
		assert.LessOrEqual(t, m.Importance, 1.0)
	}
}

func TestPersonalDetailsDeduplicated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.StoreMemory(ctx, StoreParams{Content: "My sister Sarah visited today"})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreParams{Content: "my sister sarah called again"})
	require.NoError(t, err)
	require.NoError(t, s.AddPersonalDetail(ctx, model.PersonalDetail{
		DetailType: model.DetailFamily, Content: "sister: Sarah", Confidence: 1,
	}))

	details, err := s.PersonalDetails(ctx)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "sister: Sarah", details[0].Content)
	assert.Equal(t, model.SourceExtraction, details[0].Source)
	assert.Equal(t, 1.0, details[0].Confidence)

	require.NoError(t, s.AddPersonalDetail(ctx, model.PersonalDetail{
		DetailType: model.DetailOccupation, Content: "nurse", Confidence: 0.6,
	}))
	details, err = s.PersonalDetails(ctx)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, model.SourceManual, details[1].Source)

	assert.Error(t, s.AddPersonalDetail(ctx, model.PersonalDetail{DetailType: model.DetailAge}))
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.StoreMemory(ctx, StoreParams{Content: "I went hiking"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateImportance(ctx, m.ID, 5))
	got, err := s.Search(ctx, "hiking", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[0].Importance)

	typ := model.TypeSessionDiary
	require.NoError(t, s.UpdateMemory(ctx, UpdateParams{
		ID: m.ID, Content: "I went hiking in the rain", MemoryType: &typ, Importance: ptr(0.2),
	}))
	got, err = s.Search(ctx, "rain", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
	assert.Equal(t, typ, got[0].MemoryType)
	assert.Equal(t, 0.2, got[0].Importance)

	require.NoError(t, s.DeleteMemory(ctx, m.ID))
	got, err = s.Search(ctx, "hiking", 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.True(t, errors.Is(s.DeleteMemory(ctx, m.ID), ErrNotFound))
	assert.True(t, errors.Is(s.UpdateImportance(ctx, "nope", 0.5), ErrNotFound))
	assert.True(t, errors.Is(s.UpdateMemory(ctx, UpdateParams{ID: "nope", Content: "x"}), ErrNotFound))
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.StoreMemory(ctx, StoreParams{Content: "old trivia", Importance: ptr(0.2), Timestamp: old})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreParams{Content: "old but vital", Importance: ptr(0.9), Timestamp: old})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreParams{Content: "new trivia", Importance: ptr(0.2)})
	require.NoError(t, err)

	n, err := s.Purge(ctx, PurgeParams{OlderThan: old.Add(24 * time.Hour), BelowImportance: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCount)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalCount)
	assert.Equal(t, 0.0, empty.AverageImportance)
	assert.Equal(t, model.StageStranger, empty.Stage)

	s.StoreMemory(ctx, StoreParams{Content: "a", Importance: ptr(0.2)})
	s.StoreMemory(ctx, StoreParams{Content: "b", Importance: ptr(0.4)})
	s.StoreMemory(ctx, StoreParams{Content: "My name is Ed"})

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalCount)
	assert.Equal(t, map[string]int{model.TypeConversation: 2, model.TypePersonalIdentity: 1}, st.TypeDistribution)
	assert.InDelta(t, (0.2+0.4+1.0)/3, st.AverageImportance, 1e-9)
	assert.Equal(t, 1, st.PersonalDetails)
	assert.Greater(t, st.DBSizeBytes, int64(0))
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, ok, err := s.GetMetadata(ctx, "schema_version")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, schemaVersion, v)

	_, ok, err = s.GetMetadata(ctx, "persona")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(ctx, "persona", "v1"))
	require.NoError(t, s.SetMetadata(ctx, "persona", "v2"))
	v, _, _ = s.GetMetadata(ctx, "persona")
	assert.Equal(t, "v2", v)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	src.StoreMemory(ctx, StoreParams{Content: "My sister Sarah visited today"})
	src.StoreMemory(ctx, StoreParams{Content: "I like tea", Tags: []string{"drinks"}})

	dump, err := src.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, dump.Memories, 2)
	require.Len(t, dump.Details, 1)
	assert.Equal(t, testPair, dump.Pair)

	dst := newTestStore(t)
	n, err := dst.Import(ctx, dump)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = dst.Import(ctx, dump)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := dst.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, dump.Memories, got.Memories)
	assert.Len(t, got.Details, 1)
}

func TestDBPathCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath, testPair, Options{})
	require.NoError(t, err)
	assert.Equal(t, dbPath, s.Path())
	assert.Equal(t, testPair, s.Pair())
	s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.StoreMemory(ctx, StoreParams{Content: "Ärger mit Émile"})
	require.NoError(t, err)

	for _, q := range []string{"ärger", "Ärger", "émile", "ÉMILE", "mit émile"} {
		got, err := s.Search(ctx, q, 5)
		require.NoError(t, err)
		require.Len(t, got, 1, q)
		assert.Equal(t, m.ID, got[0].ID, q)
	}

	require.NoError(t, s.UpdateMemory(ctx, UpdateParams{ID: m.ID, Content: "Besuch von Øystein"}))
	got, err := s.Search(ctx, "øystein", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = s.Search(ctx, "émile", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	dump, err := s.ExportAll(ctx)
	require.NoError(t, err)
	dst := newTestStore(t)
	_, err = dst.Import(ctx, dump)
	require.NoError(t, err)
	got, err = dst.Search(ctx, "ØYSTEIN", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMigrateBackfillsFoldedContent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "old.db")

	s, err := NewSQLiteStore(dbPath, testPair, Options{})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreParams{Content: "Élodie called"})
	require.NoError(t, err)
	// files written before the folded column existed carry the default
	_, err = s.db.ExecContext(ctx, `UPDATE memories SET content_lower = ''`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath, testPair, Options{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Search(ctx, "élodie", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
