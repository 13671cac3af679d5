// Package analyzer scores raw utterances for emotional valence,
// relationship impact and importance, and tags them.
//
// Analysis is a pure function of the text, the declared memory type and the
// heuristic tables. It never fails: text that matches nothing scores neutral.
package analyzer

import (
	"math"
	"strings"

	"github.com/rcliao/persona-memory/internal/heuristics"
	"github.com/rcliao/persona-memory/internal/model"
)

// Importance weights.
const (
	weightLength       = 0.15
	weightValence      = 0.25
	weightRelationship = 0.25
	weightPersonal     = 0.35

	lengthCap = 200

	MinImportance = 0.1
	MaxImportance = 1.0

	highPriorityImportance = 0.9
)

// Personal-detail levels, strongest first.
type Level int

const (
	LevelNone Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) factor() float64 {
	switch l {
	case LevelCritical:
		return 1.0
	case LevelHigh:
		return 0.9
	case LevelMedium:
		return 0.7
	}
	return 0
}

// Result is the outcome of analyzing one utterance.
type Result struct {
	Valence            float64
	RelationshipImpact float64
	Importance         float64
	Tags               []string
	EffectiveType      string
	Personal           Level
}

// Analyzer scores content against a heuristic set.
type Analyzer struct {
	h *heuristics.Set
}

// New returns an analyzer over h, or over the embedded defaults when h is nil.
func New(h *heuristics.Set) *Analyzer {
	if h == nil {
		h = heuristics.Default()
	}
	return &Analyzer{h: h}
}

// Analyze scores content as if every score were left for the analyzer to
// compute.
func (a *Analyzer) Analyze(content, declaredType string) Result {
	return a.AnalyzeWith(content, declaredType, Overrides{})
}

// Overrides carries caller-supplied scores. A nil field is computed.
type Overrides struct {
	Valence            *float64
	RelationshipImpact *float64
	Importance         *float64
	Tags               []string
}

// AnalyzeWith scores content, trusting any value present in o. Identity and
// high-priority detection are applied last and win over every other
// importance, computed or supplied.
func (a *Analyzer) AnalyzeWith(content, declaredType string, o Overrides) Result {
	lowered := strings.ToLower(content)
	if declaredType == "" {
		declaredType = model.TypeConversation
	}

	r := Result{EffectiveType: declaredType}

	if o.Valence != nil {
		r.Valence = clamp(*o.Valence, -1, 1)
	} else {
		r.Valence = a.Valence(lowered)
	}
	if o.RelationshipImpact != nil {
		r.RelationshipImpact = clamp(*o.RelationshipImpact, 0, 1)
	} else {
		r.RelationshipImpact = a.relationshipImpact(lowered, declaredType)
	}

	r.Personal = a.PersonalLevel(lowered)

	if o.Importance != nil {
		r.Importance = *o.Importance
	} else {
		r.Importance = weightLength*math.Min(1, float64(len(content))/lengthCap) +
			weightValence*math.Abs(r.Valence) +
			weightRelationship*r.RelationshipImpact +
			weightPersonal*r.Personal.factor()
	}

	switch r.Personal {
	case LevelCritical:
		r.Importance = MaxImportance
		r.EffectiveType = model.TypePersonalIdentity
	case LevelHigh:
		r.Importance = math.Max(r.Importance, highPriorityImportance)
		r.EffectiveType = model.TypePersonalDetail
	}
	r.Importance = clamp(r.Importance, MinImportance, MaxImportance)

	tags := o.Tags
	if len(tags) == 0 {
		tags = a.tags(lowered, r.EffectiveType, r.Valence)
	}
	switch r.Personal {
	case LevelCritical:
		tags = append(tags, model.TagPersonalInfo, model.TagIdentity, model.TagName)
	case LevelHigh:
		tags = append(tags, model.TagPersonalInfo)
	}
	r.Tags = dedupe(tags)

	return r
}

// Valence is the mean score of the valence keywords found in lowered
// content, or 0 when none match.
func (a *Analyzer) Valence(lowered string) float64 {
	sum, n := meanHits(a.h.Valence, lowered)
	if n == 0 {
		return 0
	}
	return clamp(sum/float64(n), -1, 1)
}

func (a *Analyzer) relationshipImpact(lowered, declaredType string) float64 {
	typeImpact, ok := a.h.TypeImpact[declaredType]
	if !ok {
		typeImpact = a.h.DefaultTypeImpact
	}
	sum, n := meanHits(a.h.Relationship, lowered)
	if n == 0 {
		return clamp(typeImpact, 0, 1)
	}
	return clamp((sum/float64(n)+typeImpact)/2, 0, 1)
}

// PersonalLevel returns the strongest personal-detail tier matching lowered
// content.
func (a *Analyzer) PersonalLevel(lowered string) Level {
	switch {
	case heuristics.MatchAny(a.h.Critical, lowered):
		return LevelCritical
	case heuristics.MatchAny(a.h.High, lowered):
		return LevelHigh
	case heuristics.MatchAny(a.h.Medium, lowered):
		return LevelMedium
	}
	return LevelNone
}

// IsSelfIdentification reports whether content states who the user is.
func (a *Analyzer) IsSelfIdentification(content string) bool {
	return heuristics.MatchAny(a.h.Critical, strings.ToLower(content))
}

func (a *Analyzer) tags(lowered, effectiveType string, valence float64) []string {
	tags := []string{effectiveType}
	switch {
	case valence > a.h.PolarityThreshold:
		tags = append(tags, "positive_emotion")
	case valence < -a.h.PolarityThreshold:
		tags = append(tags, "negative_emotion")
	default:
		tags = append(tags, "neutral_emotion")
	}
	for _, topic := range a.h.Topics {
		for _, kw := range topic.Keywords {
			if kw.In(lowered) {
				tags = append(tags, topic.Tag)
				break
			}
		}
	}
	return tags
}

func meanHits(lexicon []heuristics.Keyword, lowered string) (float64, int) {
	var sum float64
	var n int
	for _, kw := range lexicon {
		if kw.In(lowered) {
			sum += kw.Score
			n++
		}
	}
	return sum, n
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
