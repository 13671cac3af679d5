// Package model defines the core memory data types.
package model

import "time"

// Memory types. Callers may use other values; these are the ones the
// analyzer and retrieval treat specially.
const (
	TypeConversation      = "conversation"
	TypePersonalDetail    = "personal_detail"
	TypePersonalIdentity  = "personal_identity"
	TypeEmotion           = "emotion"
	TypeUserMessage       = "user_message"
	TypeCharacterResponse = "character_response"
	TypeSessionDiary      = "session_diary"
)

// MemoryTypes lists the known memory types.
var MemoryTypes = []string{
	TypeConversation,
	TypePersonalDetail,
	TypePersonalIdentity,
	TypeEmotion,
	TypeUserMessage,
	TypeCharacterResponse,
	TypeSessionDiary,
}

// Tags with retrieval meaning.
const (
	TagIdentity       = "identity"
	TagName           = "name"
	TagPersonalInfo   = "personal_info"
	TagPersonalDetail = "personal_detail"
)

// Pair identifies one character↔user store.
type Pair struct {
	CharacterID string `json:"character_id"`
	UserID      string `json:"user_id"`
}

// Key returns the stable textual key of the pair.
func (p Pair) Key() string {
	return p.CharacterID + "_" + p.UserID
}

// MemoryEntry is one stored utterance or system fact.
type MemoryEntry struct {
	ID                 string            `json:"id"`
	CharacterID        string            `json:"character_id"`
	UserID             string            `json:"user_id"`
	Content            string            `json:"content"`
	MemoryType         string            `json:"memory_type"`
	Importance         float64           `json:"importance"`
	EmotionalValence   float64           `json:"emotional_valence"`
	RelationshipImpact float64           `json:"relationship_impact"`
	Tags               []string          `json:"tags,omitempty"`
	Context            map[string]string `json:"context,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
	AccessCount        int               `json:"access_count"`
	LastAccessedAt     *time.Time        `json:"last_accessed_at,omitempty"`
}

// HasTag reports whether the entry carries any of the given tags.
func (m MemoryEntry) HasTag(tags ...string) bool {
	for _, have := range m.Tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Personal detail sources.
const (
	SourceExtraction = "extraction"
	SourceManual     = "manual"
)

// Personal detail types.
const (
	DetailName       = "name"
	DetailAge        = "age"
	DetailLocation   = "location"
	DetailOccupation = "occupation"
	DetailFamily     = "family"
)

// PersonalDetail is a structured fact derived from one or more memories.
type PersonalDetail struct {
	ID         string    `json:"id"`
	DetailType string    `json:"detail_type"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats summarizes one pair's store.
type Stats struct {
	TotalCount        int            `json:"total_count"`
	TypeDistribution  map[string]int `json:"type_distribution"`
	AverageImportance float64        `json:"average_importance"`
	PersonalDetails   int            `json:"personal_details"`
	Stage             Stage          `json:"stage"`
	DBSizeBytes       int64          `json:"db_size_bytes"`
}
