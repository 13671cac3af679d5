// Package store persists the memories of one character↔user pair in its own
// SQLite file and answers keyword-ranked retrieval over them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/persona-memory/internal/model"
)

// ErrNotFound is returned when a memory id does not exist in the pair store.
var ErrNotFound = errors.New("memory not found")

// Caller defaults that mean "let the analyzer decide".
const (
	UnsetImportance         = 0.5
	UnsetValence            = 0.0
	UnsetRelationshipImpact = 0.0
)

// StoreParams holds parameters for storing a memory. A nil score, or one
// equal to its Unset default, is computed by the analyzer.
type StoreParams struct {
	Content            string
	MemoryType         string
	Importance         *float64
	Valence            *float64
	RelationshipImpact *float64
	Tags               []string
	Context            map[string]string
	Timestamp          time.Time // zero means now
}

// RetrieveParams holds parameters for context retrieval.
type RetrieveParams struct {
	MaxMemories      int
	MinImportance    float64
	IncludeEmotional bool
	Query            string // keyword query; empty ranks by importance only
}

// UpdateParams holds a direct mutation of one memory. Nil fields are kept.
type UpdateParams struct {
	ID         string
	Content    string
	MemoryType *string
	Importance *float64
}

// PurgeParams selects memories for administrative deletion: older than the
// cutoff and below the importance threshold.
type PurgeParams struct {
	OlderThan       time.Time
	BelowImportance float64
}

// Store defines the per-pair memory storage interface.
type Store interface {
	// StoreMemory scores, persists and extracts details from one utterance.
	StoreMemory(ctx context.Context, p StoreParams) (*model.MemoryEntry, error)

	// Retrieve ranks, filters and partitions memories into a context.
	Retrieve(ctx context.Context, p RetrieveParams) (*model.MemoryContext, error)

	// Search finds memories containing the query substring.
	Search(ctx context.Context, query string, limit int) ([]model.MemoryEntry, error)

	UpdateImportance(ctx context.Context, id string, importance float64) error
	UpdateMemory(ctx context.Context, p UpdateParams) error
	DeleteMemory(ctx context.Context, id string) error
	Purge(ctx context.Context, p PurgeParams) (int, error)

	PersonalDetails(ctx context.Context) ([]model.PersonalDetail, error)
	AddPersonalDetail(ctx context.Context, d model.PersonalDetail) error

	RelationshipState(ctx context.Context) (model.RelationshipState, error)
	RecordInteraction(ctx context.Context, impact float64) (model.RelationshipState, error)
	Interactions(ctx context.Context, limit int) ([]model.Interaction, error)

	Stats(ctx context.Context) (*model.Stats, error)

	// Close closes the store.
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
