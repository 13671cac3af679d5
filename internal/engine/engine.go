// Package engine is the in-process entry point of the memory system. It maps
// each character↔user pair to its own store file, keeps a bounded cache of
// open stores and applies the failure policy: reads degrade to empty results,
// writes return errors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/persona-memory/internal/analyzer"
	"github.com/rcliao/persona-memory/internal/assemble"
	"github.com/rcliao/persona-memory/internal/extractor"
	"github.com/rcliao/persona-memory/internal/heuristics"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/store"
)

// ErrStoreUnavailable is returned when the data directory or a pair's store
// file cannot be created or opened.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInvalidPair is returned by writes addressed to a pair with an empty id.
var ErrInvalidPair = errors.New("character and user ids are required")

const storeExt = ".db"

// Options configures an Engine.
type Options struct {
	DataDir    string
	CacheSize  int
	Heuristics *heuristics.Set
	Retrieval  store.RetrieveParams
	Assembler  assemble.Options
	SizeBudget int
	Now        func() time.Time
}

// DefaultRetrieval returns the retrieval defaults of the public contract.
func DefaultRetrieval() store.RetrieveParams {
	return store.RetrieveParams{MaxMemories: 10, MinImportance: 0.3, IncludeEmotional: true}
}

// Engine serves the memory contract for any number of pairs.
type Engine struct {
	dataDir    string
	retrieval  store.RetrieveParams
	assembler  assemble.Options
	sizeBudget int

	analyzer  *analyzer.Analyzer
	extractor *extractor.Extractor
	now       func() time.Time
	log       zerolog.Logger
	cache     *storeCache
}

// New creates the data directory and returns a ready engine.
func New(opts Options, logger zerolog.Logger) (*Engine, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data dir is empty", ErrStoreUnavailable)
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.Retrieval.MaxMemories <= 0 {
		opts.Retrieval = DefaultRetrieval()
	}
	if opts.Assembler == (assemble.Options{}) {
		opts.Assembler = assemble.DefaultOptions()
	}
	if opts.Heuristics == nil {
		opts.Heuristics = heuristics.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		dataDir:    opts.DataDir,
		retrieval:  opts.Retrieval,
		assembler:  opts.Assembler,
		sizeBudget: opts.SizeBudget,
		analyzer:   analyzer.New(opts.Heuristics),
		extractor:  extractor.New(opts.Heuristics),
		now:        opts.Now,
		log:        logger,
	}
	cache, err := newStoreCache(opts.CacheSize, e.openStore)
	if err != nil {
		return nil, err
	}
	e.cache = cache

	e.log.Debug().Str("data_dir", e.dataDir).Int("cache_size", opts.CacheSize).Msg("engine ready")
	return e, nil
}

func (e *Engine) openStore(path string, pair model.Pair) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(path, pair, store.Options{
		Analyzer:  e.analyzer,
		Extractor: e.extractor,
		Logger:    e.log,
		Now:       e.now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

// DataDir returns the root directory of the pair stores.
func (e *Engine) DataDir() string { return e.dataDir }

// ContextDefaults returns the configured retrieval parameters, for callers
// that want to adjust one field.
func (e *Engine) ContextDefaults() store.RetrieveParams { return e.retrieval }

// PairPath returns the store file of a pair.
func (e *Engine) PairPath(p model.Pair) string {
	return filepath.Join(e.dataDir, escape(p.CharacterID), escape(p.UserID)+storeExt)
}

// withStore runs fn against the pair's store. When create is false and the
// pair has no store yet, errNoStore is returned without touching disk.
func (e *Engine) withStore(p model.Pair, create bool, fn func(*store.SQLiteStore) error) error {
	if p.CharacterID == "" || p.UserID == "" {
		return ErrInvalidPair
	}
	h, err := e.cache.acquire(e.PairPath(p), p, create)
	if err != nil {
		return err
	}
	defer e.cache.release(h)
	return fn(h.store)
}

// degrade logs a failed read. A missing store is the normal state of a new
// pair and is not logged.
func (e *Engine) degrade(p model.Pair, op string, err error) {
	if errors.Is(err, errNoStore) {
		return
	}
	e.log.Warn().
		Str("character_id", p.CharacterID).
		Str("user_id", p.UserID).
		Str("op", op).
		Err(err).
		Msg("degraded to empty result")
}

// StoreMemory analyzes and persists one utterance and returns its id.
func (e *Engine) StoreMemory(ctx context.Context, p model.Pair, params store.StoreParams) (string, error) {
	var id string
	err := e.withStore(p, true, func(s *store.SQLiteStore) error {
		m, err := s.StoreMemory(ctx, params)
		if err != nil {
			return err
		}
		id = m.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return id, nil
}

// GetMemoryContext retrieves and renders the context of a pair. Zero
// MaxMemories selects the configured defaults for every field but Query;
// start from ContextDefaults to change a single field. It never fails: a
// pair with no history, or a failing store, yields the empty context.
func (e *Engine) GetMemoryContext(ctx context.Context, p model.Pair, params store.RetrieveParams) *model.MemoryContext {
	if params.MaxMemories <= 0 {
		query := params.Query
		params = e.retrieval
		params.Query = query
	}
	var mc *model.MemoryContext
	err := e.withStore(p, false, func(s *store.SQLiteStore) error {
		var err error
		mc, err = s.Retrieve(ctx, params)
		return err
	})
	if err != nil {
		e.degrade(p, "get_memory_context", err)
		return model.EmptyContext()
	}

	rel := model.NewRelationshipState(p)
	if mc.Relationship != nil {
		rel = *mc.Relationship
	}
	mc.Summary = e.assembler.Assemble(mc, rel, e.sizeBudget)
	return mc
}

// Assemble renders a context with the engine's assembler settings.
func (e *Engine) Assemble(mc *model.MemoryContext, rel model.RelationshipState, budget int) string {
	return e.assembler.Assemble(mc, rel, budget)
}

// GetPersonalDetails returns the known details of a pair, or none.
func (e *Engine) GetPersonalDetails(ctx context.Context, p model.Pair) []model.PersonalDetail {
	details := []model.PersonalDetail{}
	err := e.withStore(p, false, func(s *store.SQLiteStore) error {
		var err error
		details, err = s.PersonalDetails(ctx)
		return err
	})
	if err != nil {
		e.degrade(p, "get_personal_details", err)
		return []model.PersonalDetail{}
	}
	return details
}

// AddPersonalDetail records a manually supplied fact.
func (e *Engine) AddPersonalDetail(ctx context.Context, p model.Pair, d model.PersonalDetail) error {
	err := e.withStore(p, true, func(s *store.SQLiteStore) error {
		return s.AddPersonalDetail(ctx, d)
	})
	if err != nil {
		return fmt.Errorf("add personal detail: %w", err)
	}
	return nil
}

// GetRelationshipStage returns the relationship snapshot of a pair, or the
// stranger state.
func (e *Engine) GetRelationshipStage(ctx context.Context, p model.Pair) model.RelationshipState {
	var st model.RelationshipState
	err := e.withStore(p, false, func(s *store.SQLiteStore) error {
		var err error
		st, err = s.RelationshipState(ctx)
		return err
	})
	if err != nil {
		e.degrade(p, "get_relationship_stage", err)
		return model.NewRelationshipState(p)
	}
	return st
}

// RecordInteraction advances the pair's relationship. On failure it returns
// the stranger state along with the error.
func (e *Engine) RecordInteraction(ctx context.Context, p model.Pair, impact float64) (model.RelationshipState, error) {
	var st model.RelationshipState
	err := e.withStore(p, true, func(s *store.SQLiteStore) error {
		var err error
		st, err = s.RecordInteraction(ctx, impact)
		return err
	})
	if err != nil {
		return model.NewRelationshipState(p), fmt.Errorf("record interaction: %w", err)
	}
	return st, nil
}

// Interactions returns the newest journaled interactions of a pair.
func (e *Engine) Interactions(ctx context.Context, p model.Pair, limit int) []model.Interaction {
	out := []model.Interaction{}
	err := e.withStore(p, false, func(s *store.SQLiteStore) error {
		var err error
		out, err = s.Interactions(ctx, limit)
		return err
	})
	if err != nil {
		e.degrade(p, "interactions", err)
		return []model.Interaction{}
	}
	return out
}

// SearchMemories returns memories containing query, or none.
func (e *Engine) SearchMemories(ctx context.Context, p model.Pair, query string, maxResults int) []model.MemoryEntry {
	out := []model.MemoryEntry{}
	err := e.withStore(p, false, func(s *store.SQLiteStore) error {
		var err error
		out, err = s.Search(ctx, query, maxResults)
		return err
	})
	if err != nil {
		e.degrade(p, "search_memories", err)
		return []model.MemoryEntry{}
	}
	return out
}

// GetStatistics summarizes a pair's store, or returns zero statistics.
func (e *Engine) GetStatistics(ctx context.Context, p model.Pair) model.Stats {
	empty := model.Stats{TypeDistribution: map[string]int{}, Stage: model.StageStranger}
	var st *model.Stats
	err := e.withStore(p, false, func(s *store.SQLiteStore) error {
		var err error
		st, err = s.Stats(ctx)
		return err
	})
	if err != nil {
		e.degrade(p, "get_statistics", err)
		return empty
	}
	return *st
}

// UpdateImportance corrects the importance of one memory.
func (e *Engine) UpdateImportance(ctx context.Context, p model.Pair, id string, importance float64) error {
	return e.write(p, "update importance", func(s *store.SQLiteStore) error {
		return s.UpdateImportance(ctx, id, importance)
	})
}

// UpdateMemory replaces a memory's content and optionally its type and
// importance.
func (e *Engine) UpdateMemory(ctx context.Context, p model.Pair, params store.UpdateParams) error {
	return e.write(p, "update memory", func(s *store.SQLiteStore) error {
		return s.UpdateMemory(ctx, params)
	})
}

// DeleteMemory removes one memory.
func (e *Engine) DeleteMemory(ctx context.Context, p model.Pair, id string) error {
	return e.write(p, "delete memory", func(s *store.SQLiteStore) error {
		return s.DeleteMemory(ctx, id)
	})
}

// Purge deletes a pair's memories older than the cutoff and below the
// importance threshold.
func (e *Engine) Purge(ctx context.Context, p model.Pair, params store.PurgeParams) (int, error) {
	var n int
	err := e.write(p, "purge", func(s *store.SQLiteStore) error {
		var err error
		n, err = s.Purge(ctx, params)
		return err
	})
	return n, err
}

// Export dumps a pair's memories and details.
func (e *Engine) Export(ctx context.Context, p model.Pair) (*store.Dump, error) {
	var d *store.Dump
	err := e.write(p, "export", func(s *store.SQLiteStore) error {
		var err error
		d, err = s.ExportAll(ctx)
		return err
	})
	return d, err
}

// Import loads a dump into a pair's store and returns the number of new
// memories.
func (e *Engine) Import(ctx context.Context, p model.Pair, d *store.Dump) (int, error) {
	var n int
	err := e.withStore(p, true, func(s *store.SQLiteStore) error {
		var err error
		n, err = s.Import(ctx, d)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	return n, nil
}

// Metadata returns a free-form value of a pair's store.
func (e *Engine) Metadata(ctx context.Context, p model.Pair, key string) (string, bool, error) {
	var v string
	var ok bool
	err := e.write(p, "get metadata", func(s *store.SQLiteStore) error {
		var err error
		v, ok, err = s.GetMetadata(ctx, key)
		return err
	})
	return v, ok, err
}

// SetMetadata stores a free-form value in a pair's store.
func (e *Engine) SetMetadata(ctx context.Context, p model.Pair, key, value string) error {
	err := e.withStore(p, true, func(s *store.SQLiteStore) error {
		return s.SetMetadata(ctx, key, value)
	})
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// write runs a mutation against an existing store. A pair without a store
// has no memories, so the call reports store.ErrNotFound.
func (e *Engine) write(p model.Pair, op string, fn func(*store.SQLiteStore) error) error {
	err := e.withStore(p, false, fn)
	if errors.Is(err, errNoStore) {
		err = fmt.Errorf("%w: no store for %s/%s", store.ErrNotFound, p.CharacterID, p.UserID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListPairs returns every pair that has a store file, sorted.
func (e *Engine) ListPairs() ([]model.Pair, error) {
	chars, err := os.ReadDir(e.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	var pairs []model.Pair
	for _, c := range chars {
		if !c.IsDir() {
			continue
		}
		charID, ok := unescape(c.Name())
		if !ok {
			continue
		}
		users, err := os.ReadDir(filepath.Join(e.dataDir, c.Name()))
		if err != nil {
			return nil, fmt.Errorf("list pairs: %w", err)
		}
		for _, u := range users {
			name := u.Name()
			if u.IsDir() || !strings.HasSuffix(name, storeExt) {
				continue
			}
			userID, ok := unescape(strings.TrimSuffix(name, storeExt))
			if !ok {
				continue
			}
			pairs = append(pairs, model.Pair{CharacterID: charID, UserID: userID})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].CharacterID != pairs[j].CharacterID {
			return pairs[i].CharacterID < pairs[j].CharacterID
		}
		return pairs[i].UserID < pairs[j].UserID
	})
	return pairs, nil
}

// Close closes every cached store. Stores still in use close when released.
func (e *Engine) Close() error {
	e.cache.purge()
	return nil
}
