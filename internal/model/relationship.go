package model

import "time"

// Stage is a discrete relationship-progression level.
type Stage string

// Stages in strict progression order.
const (
	StageStranger     Stage = "stranger"
	StageAcquaintance Stage = "acquaintance"
	StageFriend       Stage = "friend"
	StageCloseFriend  Stage = "close_friend"
)

var stageRank = map[Stage]int{
	StageStranger:     0,
	StageAcquaintance: 1,
	StageFriend:       2,
	StageCloseFriend:  3,
}

// Rank returns the position of s in the progression, or -1 for unknown stages.
func (s Stage) Rank() int {
	r, ok := stageRank[s]
	if !ok {
		return -1
	}
	return r
}

// RelationshipState is the single relationship row of a pair.
type RelationshipState struct {
	CharacterID          string     `json:"character_id"`
	UserID               string     `json:"user_id"`
	Stage                Stage      `json:"stage"`
	TrustLevel           float64    `json:"trust_level"`
	Familiarity          float64    `json:"familiarity"`
	InteractionCount     int        `json:"interaction_count"`
	PositiveInteractions int        `json:"positive_interactions"`
	NegativeInteractions int        `json:"negative_interactions"`
	LastInteraction      *time.Time `json:"last_interaction,omitempty"`
}

// NewRelationshipState returns the state of a pair that has never interacted.
func NewRelationshipState(p Pair) RelationshipState {
	return RelationshipState{
		CharacterID: p.CharacterID,
		UserID:      p.UserID,
		Stage:       StageStranger,
	}
}

// Interaction is one journaled recordInteraction call.
type Interaction struct {
	ID         string    `json:"id"`
	Impact     float64   `json:"impact"`
	StageAfter Stage     `json:"stage_after"`
	At         time.Time `json:"at"`
}
