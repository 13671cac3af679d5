package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/rcliao/persona-memory/internal/analyzer"
	"github.com/rcliao/persona-memory/internal/extractor"
	"github.com/rcliao/persona-memory/internal/model"
)

const schemaVersion = "2"

// timeLayout is fixed width so that text order in SQLite is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Options configures a SQLiteStore. Zero values select defaults.
type Options struct {
	Analyzer  *analyzer.Analyzer
	Extractor *extractor.Extractor
	Logger    zerolog.Logger
	Now       func() time.Time
}

// SQLiteStore implements Store for a single pair using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	pair model.Pair

	analyzer  *analyzer.Analyzer
	extractor *extractor.Extractor
	log       zerolog.Logger
	now       func() time.Time

	// mu serializes relationship read-modify-write and guards entropy.
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates the store file of pair at dbPath.
func NewSQLiteStore(dbPath string, pair model.Pair, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if opts.Analyzer == nil {
		opts.Analyzer = analyzer.New(nil)
	}
	if opts.Extractor == nil {
		opts.Extractor = extractor.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &SQLiteStore{
		db:        db,
		path:      dbPath,
		pair:      pair,
		analyzer:  opts.Analyzer,
		extractor: opts.Extractor,
		log: opts.Logger.With().
			Str("character_id", pair.CharacterID).
			Str("user_id", pair.UserID).
			Logger(),
		now:     opts.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Pair returns the pair this store belongs to.
func (s *SQLiteStore) Pair() model.Pair { return s.pair }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                  TEXT PRIMARY KEY,
		character_id        TEXT NOT NULL,
		user_id             TEXT NOT NULL,
		content             TEXT NOT NULL,
		content_lower       TEXT NOT NULL DEFAULT '',
		memory_type         TEXT NOT NULL DEFAULT 'conversation',
		importance          REAL NOT NULL DEFAULT 0.5,
		emotional_valence   REAL NOT NULL DEFAULT 0,
		relationship_impact REAL NOT NULL DEFAULT 0,
		tags                TEXT,
		context             TEXT,
		timestamp           TEXT NOT NULL,
		access_count        INTEGER NOT NULL DEFAULT 0,
		last_accessed_at    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);

	CREATE TABLE IF NOT EXISTS personal_details (
		id          TEXT PRIMARY KEY,
		detail_type TEXT NOT NULL,
		content     TEXT NOT NULL,
		confidence  REAL NOT NULL DEFAULT 0.8,
		source      TEXT NOT NULL DEFAULT 'extraction',
		timestamp   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_details_type ON personal_details(detail_type);

	CREATE TABLE IF NOT EXISTS relationship (
		id                    INTEGER PRIMARY KEY CHECK (id = 1),
		character_id          TEXT NOT NULL,
		user_id               TEXT NOT NULL,
		stage                 TEXT NOT NULL DEFAULT 'stranger',
		trust_level           REAL NOT NULL DEFAULT 0,
		familiarity           REAL NOT NULL DEFAULT 0,
		interaction_count     INTEGER NOT NULL DEFAULT 0,
		positive_interactions INTEGER NOT NULL DEFAULT 0,
		negative_interactions INTEGER NOT NULL DEFAULT 0,
		last_interaction      TEXT
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id          TEXT PRIMARY KEY,
		impact      REAL NOT NULL,
		stage_after TEXT NOT NULL,
		at          TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	if err := s.addContentLower(); err != nil {
		return fmt.Errorf("migrate content_lower: %w", err)
	}
	return s.SetMetadata(context.Background(), "schema_version", schemaVersion)
}

// addContentLower brings version 1 files up to date. SQLite's lower() only
// folds ASCII, so substring matching runs against a column folded in Go.
func (s *SQLiteStore) addContentLower() error {
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('memories') WHERE name = 'content_lower'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.db.Exec(`ALTER TABLE memories ADD COLUMN content_lower TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}

	rows, err := s.db.Query(`SELECT id, content FROM memories WHERE content_lower = '' AND content != ''`)
	if err != nil {
		return err
	}
	folded := map[string]string{}
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return err
		}
		folded[id] = foldContent(content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for id, lower := range folded {
		if _, err := s.db.Exec(`UPDATE memories SET content_lower = ? WHERE id = ?`, lower, id); err != nil {
			return err
		}
	}
	return nil
}

// StoreMemory analyzes content, upserts the scored entry and any extracted
// personal details in one transaction. Storing the same content with the same
// timestamp again overwrites the entry rather than duplicating it.
func (s *SQLiteStore) StoreMemory(ctx context.Context, p StoreParams) (*model.MemoryEntry, error) {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC()

	res := s.analyzer.AnalyzeWith(p.Content, p.MemoryType, analyzer.Overrides{
		Importance:         unlessDefault(p.Importance, UnsetImportance),
		Valence:            unlessDefault(p.Valence, UnsetValence),
		RelationshipImpact: unlessDefault(p.RelationshipImpact, UnsetRelationshipImpact),
		Tags:               p.Tags,
	})

	m := &model.MemoryEntry{
		ID:                 s.memoryID(p.Content, ts),
		CharacterID:        s.pair.CharacterID,
		UserID:             s.pair.UserID,
		Content:            p.Content,
		MemoryType:         res.EffectiveType,
		Importance:         res.Importance,
		EmotionalValence:   res.Valence,
		RelationshipImpact: res.RelationshipImpact,
		Tags:               res.Tags,
		Context:            p.Context,
		Timestamp:          ts,
	}

	tagsJSON, _ := json.Marshal(m.Tags)
	var ctxJSON *string
	if len(m.Context) > 0 {
		b, err := json.Marshal(m.Context)
		if err != nil {
			return nil, fmt.Errorf("encode context: %w", err)
		}
		v := string(b)
		ctxJSON = &v
	}

	details := s.extractor.Extract(p.Content)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, character_id, user_id, content, content_lower, memory_type, importance,
		                       emotional_valence, relationship_impact, tags, context, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   memory_type = excluded.memory_type,
		   importance = excluded.importance,
		   emotional_valence = excluded.emotional_valence,
		   relationship_impact = excluded.relationship_impact,
		   tags = excluded.tags,
		   context = excluded.context`,
		m.ID, m.CharacterID, m.UserID, m.Content, foldContent(m.Content), m.MemoryType, m.Importance,
		m.EmotionalValence, m.RelationshipImpact, string(tagsJSON), ctxJSON, formatTime(ts))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	for _, d := range details {
		d.Timestamp = ts
		if err := s.upsertDetail(ctx, tx, d); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ev := s.log.Debug()
	if res.Personal == analyzer.LevelCritical {
		ev = s.log.Info()
	}
	ev.Str("id", m.ID).
		Str("memory_type", m.MemoryType).
		Float64("importance", m.Importance).
		Int("details", len(details)).
		Msg("stored memory")

	return m, nil
}

// UpdateImportance corrects the importance of one memory.
func (s *SQLiteStore) UpdateImportance(ctx context.Context, id string, importance float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET importance = ? WHERE id = ?`, clampImportance(importance), id)
	if err != nil {
		return fmt.Errorf("update importance: %w", err)
	}
	return requireRow(res, id)
}

// UpdateMemory replaces the content and optionally the type and importance
// of a memory. Scores are not recomputed.
func (s *SQLiteStore) UpdateMemory(ctx context.Context, p UpdateParams) error {
	sets := "content = ?, content_lower = ?"
	args := []interface{}{p.Content, foldContent(p.Content)}
	if p.MemoryType != nil {
		sets += ", memory_type = ?"
		args = append(args, *p.MemoryType)
	}
	if p.Importance != nil {
		sets += ", importance = ?"
		args = append(args, clampImportance(*p.Importance))
	}
	args = append(args, p.ID)

	res, err := s.db.ExecContext(ctx, `UPDATE memories SET `+sets+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return requireRow(res, p.ID)
}

// DeleteMemory removes one memory. Details extracted from it are kept.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return requireRow(res, id)
}

// Purge deletes memories that are both older than the cutoff and below the
// importance threshold, and returns how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context, p PurgeParams) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE timestamp < ? AND importance < ?`,
		formatTime(p.OlderThan.UTC()), p.BelowImportance)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, _ := res.RowsAffected()
	s.log.Info().Int64("purged", n).Msg("purged memories")
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) memoryID(content string, ts time.Time) string {
	return hashID(s.pair.Key(), content, formatTime(ts))
}

func (s *SQLiteStore) newULID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

// foldContent is the case-folded form that keyword and substring matching
// run against.
func foldContent(content string) string {
	return strings.ToLower(content)
}

func hashID(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func unlessDefault(v *float64, unset float64) *float64 {
	if v == nil || *v == unset {
		return nil
	}
	return v
}

func clampImportance(v float64) float64 {
	if math.IsNaN(v) {
		return analyzer.MinImportance
	}
	return math.Max(analyzer.MinImportance, math.Min(analyzer.MaxImportance, v))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

const memoryColumns = `id, character_id, user_id, content, memory_type, importance,
	emotional_valence, relationship_impact, tags, context, timestamp, access_count, last_accessed_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner, extra ...interface{}) (model.MemoryEntry, error) {
	var m model.MemoryEntry
	var tagsJSON, ctxJSON, lastAccessed sql.NullString
	var ts string

	dest := []interface{}{
		&m.ID, &m.CharacterID, &m.UserID, &m.Content, &m.MemoryType, &m.Importance,
		&m.EmotionalValence, &m.RelationshipImpact, &tagsJSON, &ctxJSON, &ts,
		&m.AccessCount, &lastAccessed,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return m, err
	}

	m.Timestamp = parseTime(ts)
	if lastAccessed.Valid {
		t := parseTime(lastAccessed.String)
		m.LastAccessedAt = &t
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &m.Tags)
	}
	if ctxJSON.Valid {
		json.Unmarshal([]byte(ctxJSON.String), &m.Context)
	}
	return m, nil
}

func queryMemories(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]model.MemoryEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memories := []model.MemoryEntry{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
