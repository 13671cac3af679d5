// Package relationship implements the trust and familiarity progression of a
// character↔user pair.
package relationship

import (
	"math"
	"time"

	"github.com/rcliao/persona-memory/internal/model"
)

const (
	trustStep       = 0.1
	familiarityStep = 0.05
)

// Familiarity thresholds between consecutive stages.
const (
	AcquaintanceAt = 0.2
	FriendAt       = 0.5
	CloseFriendAt  = 0.8
)

// StageFor maps familiarity to its stage.
func StageFor(familiarity float64) model.Stage {
	switch {
	case familiarity < AcquaintanceAt:
		return model.StageStranger
	case familiarity < FriendAt:
		return model.StageAcquaintance
	case familiarity < CloseFriendAt:
		return model.StageFriend
	default:
		return model.StageCloseFriend
	}
}

// Advance returns the state after one interaction with the given impact.
// Familiarity grows by a fixed step whatever the sign of impact, so the stage
// never moves backwards.
func Advance(s model.RelationshipState, impact float64, at time.Time) model.RelationshipState {
	if math.IsNaN(impact) {
		impact = 0
	}
	s.InteractionCount++
	switch {
	case impact > 0:
		s.PositiveInteractions++
	case impact < 0:
		s.NegativeInteractions++
	}
	s.TrustLevel = clamp01(round(s.TrustLevel + impact*trustStep))
	s.Familiarity = clamp01(round(s.Familiarity + familiarityStep))
	s.Stage = StageFor(s.Familiarity)

	at = at.UTC()
	s.LastInteraction = &at
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round drops accumulated binary drift so that twenty steps of 0.05 land on
// exactly 1.0 and four land on exactly 0.2.
func round(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
