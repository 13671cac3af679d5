// Package assemble renders a retrieved memory context into the text block
// handed to the response generator.
package assemble

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/persona-memory/internal/model"
)

const (
	DefaultIdentityLimit  = 2
	DefaultIdentityWidth  = 200
	DefaultImportantLimit = 3
	DefaultImportantWidth = 200
	DefaultRecentLimit    = 3
	DefaultRecentWidth    = 150
)

const ellipsis = "..."

// Options configures per-section caps and truncation widths, in runes.
type Options struct {
	IdentityLimit  int
	IdentityWidth  int
	ImportantLimit int
	ImportantWidth int
	RecentLimit    int
	RecentWidth    int
}

// DefaultOptions returns the default section shaping.
func DefaultOptions() Options {
	return Options{
		IdentityLimit:  DefaultIdentityLimit,
		IdentityWidth:  DefaultIdentityWidth,
		ImportantLimit: DefaultImportantLimit,
		ImportantWidth: DefaultImportantWidth,
		RecentLimit:    DefaultRecentLimit,
		RecentWidth:    DefaultRecentWidth,
	}
}

// Assemble renders mc and rel with the default options.
func Assemble(mc *model.MemoryContext, rel model.RelationshipState, budget int) string {
	return DefaultOptions().Assemble(mc, rel, budget)
}

// Assemble renders, in order: identity memories, important memories, recent
// memories, the emotional line and the relationship line. Empty sections are
// omitted; when all are empty the no-memories sentence is returned.
//
// A positive budget caps the output length in runes. Sections are packed in
// order and packing stops at the first unit that does not fit; a section
// header is only emitted together with its first entry. When not even the
// first unit fits, the no-memories sentence is returned.
func (o Options) Assemble(mc *model.MemoryContext, rel model.RelationshipState, budget int) string {
	if o.IdentityLimit == 0 && o.ImportantLimit == 0 && o.RecentLimit == 0 {
		o = DefaultOptions()
	}
	if mc == nil {
		mc = model.EmptyContext()
	}

	var units []string
	section := func(header string, memories []model.MemoryEntry, limit, width int) {
		n := 0
		for _, m := range memories {
			if n == limit {
				break
			}
			content := strings.TrimSpace(m.Content)
			if content == "" {
				continue
			}
			line := "- " + Truncate(content, width)
			if n == 0 {
				line = header + "\n" + line
				if len(units) > 0 {
					line = "\n" + line
				}
			}
			units = append(units, line)
			n++
		}
	}
	single := func(line string) {
		if len(units) > 0 {
			line = "\n" + line
		}
		units = append(units, line)
	}

	section("User identity:", mc.IdentityMemories, o.IdentityLimit, o.IdentityWidth)
	section("Important memories:", mc.ImportantMemories, o.ImportantLimit, o.ImportantWidth)
	section("Recent context:", mc.RecentMemories, o.RecentLimit, o.RecentWidth)
	if e := mc.Emotional; e != nil {
		single(EmotionalLine(e))
	}
	if rel.InteractionCount > 0 {
		single(RelationshipLine(rel))
	}

	if len(units) == 0 {
		return model.NoMemoriesSummary
	}
	if budget <= 0 {
		return strings.Join(units, "\n")
	}
	if out := pack(units, budget); out != "" {
		return out
	}
	return model.NoMemoriesSummary
}

// EmotionalLine summarizes the emotional tone of the retrieved memories.
func EmotionalLine(e *model.EmotionalSummary) string {
	return fmt.Sprintf("Emotional context: %s, %s intensity (%.2f)", e.Dominant, e.Level, e.AverageIntensity)
}

// RelationshipLine summarizes the relationship state.
func RelationshipLine(rel model.RelationshipState) string {
	return fmt.Sprintf("Relationship: %s (trust: %.2f, familiarity: %.2f)", rel.Stage, rel.TrustLevel, rel.Familiarity)
}

// Truncate shortens s to at most width runes, marking a cut with an
// ellipsis. A non-positive width disables truncation.
func Truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= len(ellipsis) {
		return string(r[:width])
	}
	return strings.TrimRight(string(r[:width-len(ellipsis)]), " ") + ellipsis
}

// pack joins units with newlines greedily until the next one would exceed
// budget runes.
func pack(units []string, budget int) string {
	var b strings.Builder
	used := 0
	for i, u := range units {
		size := utf8.RuneCountInString(u)
		if i > 0 {
			size++ // newline
		}
		if used+size > budget {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(u)
		used += size
	}
	return b.String()
}
