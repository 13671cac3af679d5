// Package extractor pulls structured personal facts out of free text.
//
// Extraction is advisory: patterns are heuristics and callers must tolerate
// false positives. Candidates are filtered through a stop-word list before
// they are returned.
package extractor

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rcliao/persona-memory/internal/heuristics"
	"github.com/rcliao/persona-memory/internal/model"
)

// Confidence assigned to every extracted detail.
const Confidence = 0.8

const maxAge = 130

// Extractor applies the extraction pattern library of a heuristic set.
type Extractor struct {
	h   *heuristics.Set
	now func() time.Time
}

// New returns an extractor over h, or over the embedded defaults when h is nil.
func New(h *heuristics.Set) *Extractor {
	if h == nil {
		h = heuristics.Default()
	}
	return &Extractor{h: h, now: time.Now}
}

// Extract returns the details found in content, in pattern-library order.
// A fact matched by several patterns is returned once.
func (e *Extractor) Extract(content string) []model.PersonalDetail {
	lowered := strings.ToLower(content)
	now := e.now().UTC()

	var out []model.PersonalDetail
	seen := map[string]bool{}
	add := func(typ, value string) {
		if value == "" {
			return
		}
		key := typ + "\x00" + value
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, model.PersonalDetail{
			DetailType: typ,
			Content:    value,
			Confidence: Confidence,
			Source:     model.SourceExtraction,
			Timestamp:  now,
		})
	}

	for _, group := range e.h.Extraction {
		for _, re := range group.Patterns {
			for _, m := range re.FindAllStringSubmatch(lowered, -1) {
				switch group.Type {
				case model.DetailName:
					add(model.DetailName, e.name(m[1]))
				case model.DetailAge:
					add(model.DetailAge, age(m[1]))
				case model.DetailFamily:
					name := e.name(m[2])
					if name == "" {
						continue
					}
					add(model.DetailFamily, strings.TrimSpace(m[1])+": "+name)
				default:
					add(group.Type, phrase(m[1]))
				}
			}
		}
	}
	return out
}

// name normalizes a captured name token, or returns "" when the token is a
// stop word.
func (e *Extractor) name(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || e.h.StopWords[raw] {
		return ""
	}
	if canonical, ok := e.h.Nicknames[raw]; ok {
		return canonical
	}
	return titleCase(raw)
}

func age(raw string) string {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxAge {
		return ""
	}
	return strconv.Itoa(n)
}

// phrase trims a free-text capture such as a city or a job title.
func phrase(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, cut := range []string{" and ", " but ", " because "} {
		if i := strings.Index(raw, cut); i > 0 {
			raw = raw[:i]
		}
	}
	return strings.TrimSpace(raw)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
