package model

// NoMemoriesSummary is the rendered context when nothing is known about a pair.
const NoMemoriesSummary = "No relevant memories found."

// Emotional intensity buckets.
const (
	IntensityLow      = "low"
	IntensityModerate = "moderate"
	IntensityHigh     = "high"
)

// Valence labels.
const (
	ValencePositive = "positive"
	ValenceNegative = "negative"
	ValenceNeutral  = "neutral"
)

// EmotionalSummary aggregates the valence of a set of memories.
type EmotionalSummary struct {
	Dominant         string  `json:"dominant"`
	AverageIntensity float64 `json:"average_intensity"`
	Level            string  `json:"level"`
}

// MemoryContext is the request-scoped result of a retrieval. It is never
// persisted.
type MemoryContext struct {
	Memories          []MemoryEntry      `json:"memories"`
	IdentityMemories  []MemoryEntry      `json:"identity_memories"`
	PersonalMemories  []MemoryEntry      `json:"personal_memories"`
	ImportantMemories []MemoryEntry      `json:"important_memories"`
	RecentMemories    []MemoryEntry      `json:"recent_memories"`
	Emotional         *EmotionalSummary  `json:"emotional,omitempty"`
	Relationship      *RelationshipState `json:"relationship,omitempty"`
	Summary           string             `json:"summary"`
}

// EmptyContext returns a context with no memories and the sentinel summary.
func EmptyContext() *MemoryContext {
	return &MemoryContext{
		Memories:          []MemoryEntry{},
		IdentityMemories:  []MemoryEntry{},
		PersonalMemories:  []MemoryEntry{},
		ImportantMemories: []MemoryEntry{},
		RecentMemories:    []MemoryEntry{},
		Summary:           NoMemoriesSummary,
	}
}
