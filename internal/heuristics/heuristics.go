// Package heuristics loads the keyword lexicons and regular-expression
// libraries used by the analyzer and the personal detail extractor.
//
// The tables are data, not code: a default set is embedded in the binary and
// a YAML file can override any section of it.
package heuristics

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Tables is the YAML form of the heuristic configuration.
type Tables struct {
	Valence           map[string]float64  `yaml:"valence"`
	Relationship      map[string]float64  `yaml:"relationship"`
	TypeImpact        map[string]float64  `yaml:"type_impact"`
	DefaultTypeImpact float64             `yaml:"default_type_impact"`
	PolarityThreshold float64             `yaml:"polarity_threshold"`
	Personal          PersonalPatterns    `yaml:"personal"`
	KnownNames        []string            `yaml:"known_names"`
	Topics            map[string][]string `yaml:"topics"`
	Extraction        ExtractionPatterns  `yaml:"extraction"`
	StopWords         []string            `yaml:"stop_words"`
	Nicknames         map[string]string   `yaml:"nicknames"`
}

// PersonalPatterns are the priority tiers of personal-detail detection.
type PersonalPatterns struct {
	Critical []string `yaml:"critical"`
	High     []string `yaml:"high"`
	Medium   []string `yaml:"medium"`
}

// ExtractionPatterns is the ordered regex library per detail type. Every
// pattern captures the detail in group 1; family patterns capture
// (relation, name) in groups 1 and 2.
type ExtractionPatterns struct {
	Name       []string `yaml:"name"`
	Age        []string `yaml:"age"`
	Location   []string `yaml:"location"`
	Occupation []string `yaml:"occupation"`
	Family     []string `yaml:"family"`
}

// Keyword is a lexicon entry with its compiled word-boundary matcher.
type Keyword struct {
	Word  string
	Score float64
	re    *regexp.Regexp
}

// In reports whether the keyword occurs in lowered content.
func (k Keyword) In(lowered string) bool {
	return k.re.MatchString(lowered)
}

// Topic is a tag with the keywords that trigger it.
type Topic struct {
	Tag      string
	Keywords []Keyword
}

// DetailPatterns pairs a detail type with its compiled patterns.
type DetailPatterns struct {
	Type     string
	Patterns []*regexp.Regexp
}

// Set is the compiled, read-only form of Tables. It is safe for concurrent use.
type Set struct {
	Valence           []Keyword
	Relationship      []Keyword
	TypeImpact        map[string]float64
	DefaultTypeImpact float64
	PolarityThreshold float64
	Critical          []*regexp.Regexp
	High              []*regexp.Regexp
	Medium            []*regexp.Regexp
	Topics            []Topic
	Extraction        []DetailPatterns
	StopWords         map[string]bool
	Nicknames         map[string]string
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// Default returns the embedded heuristic set.
func Default() *Set {
	defaultOnce.Do(func() {
		s, err := Parse(nil)
		if err != nil {
			panic(fmt.Sprintf("heuristics: embedded defaults: %v", err))
		}
		defaultSet = s
	})
	return defaultSet
}

// Load reads a YAML override file and compiles it on top of the defaults.
// Maps in the file extend the default maps; lists replace the default lists.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read heuristics: %w", err)
	}
	return Parse(data)
}

// Parse compiles the defaults overlaid with the given YAML document, which
// may be empty.
func Parse(override []byte) (*Set, error) {
	var t Tables
	if err := yaml.Unmarshal(defaultYAML, &t); err != nil {
		return nil, fmt.Errorf("parse default heuristics: %w", err)
	}
	if len(override) > 0 {
		if err := yaml.Unmarshal(override, &t); err != nil {
			return nil, fmt.Errorf("parse heuristics: %w", err)
		}
	}
	return Compile(t)
}

// Compile validates t and compiles every keyword and pattern.
func Compile(t Tables) (*Set, error) {
	s := &Set{
		TypeImpact:        t.TypeImpact,
		DefaultTypeImpact: t.DefaultTypeImpact,
		PolarityThreshold: t.PolarityThreshold,
		StopWords:         make(map[string]bool, len(t.StopWords)),
		Nicknames:         make(map[string]string, len(t.Nicknames)),
	}
	if s.TypeImpact == nil {
		s.TypeImpact = map[string]float64{}
	}

	var err error
	if s.Valence, err = compileLexicon(t.Valence); err != nil {
		return nil, fmt.Errorf("valence: %w", err)
	}
	if s.Relationship, err = compileLexicon(t.Relationship); err != nil {
		return nil, fmt.Errorf("relationship: %w", err)
	}

	critical := t.Personal.Critical
	if names := knownNamesPattern(t.KnownNames); names != "" {
		critical = append(append([]string{}, critical...), names)
	}
	if s.Critical, err = compileAll(critical); err != nil {
		return nil, fmt.Errorf("personal.critical: %w", err)
	}
	if s.High, err = compileAll(t.Personal.High); err != nil {
		return nil, fmt.Errorf("personal.high: %w", err)
	}
	if s.Medium, err = compileAll(t.Personal.Medium); err != nil {
		return nil, fmt.Errorf("personal.medium: %w", err)
	}

	tags := make([]string, 0, len(t.Topics))
	for tag := range t.Topics {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		kws := make(map[string]float64, len(t.Topics[tag]))
		for _, w := range t.Topics[tag] {
			kws[w] = 0
		}
		compiled, err := compileLexicon(kws)
		if err != nil {
			return nil, fmt.Errorf("topics.%s: %w", tag, err)
		}
		s.Topics = append(s.Topics, Topic{Tag: tag, Keywords: compiled})
	}

	// Names found by the known-name tokens are extracted too.
	nameRules := t.Extraction.Name
	if names := knownNamesPattern(t.KnownNames); names != "" {
		nameRules = append(append([]string{}, nameRules...), "("+names+")")
	}
	groups := []struct {
		typ   string
		rules []string
		want  int
	}{
		{"name", nameRules, 1},
		{"age", t.Extraction.Age, 1},
		{"location", t.Extraction.Location, 1},
		{"occupation", t.Extraction.Occupation, 1},
		{"family", t.Extraction.Family, 2},
	}
	for _, g := range groups {
		res, err := compileAll(g.rules)
		if err != nil {
			return nil, fmt.Errorf("extraction.%s: %w", g.typ, err)
		}
		for _, re := range res {
			if re.NumSubexp() < g.want {
				return nil, fmt.Errorf("extraction.%s: pattern %q needs %d capture group(s)", g.typ, re.String(), g.want)
			}
		}
		s.Extraction = append(s.Extraction, DetailPatterns{Type: g.typ, Patterns: res})
	}

	for _, w := range t.StopWords {
		s.StopWords[strings.ToLower(w)] = true
	}
	for nick, canonical := range t.Nicknames {
		s.Nicknames[strings.ToLower(nick)] = canonical
	}
	return s, nil
}

// compileLexicon builds word-boundary matchers, sorted by word so that
// scoring is deterministic.
func compileLexicon(words map[string]float64) ([]Keyword, error) {
	out := make([]Keyword, 0, len(words))
	for w, score := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(w) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", w, err)
		}
		out = append(out, Keyword{Word: w, Score: score, re: re})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func knownNamesPattern(names []string) string {
	var quoted []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return ""
	}
	return `\b(?:` + strings.Join(quoted, "|") + `)\b`
}

// MatchAny reports whether any pattern matches lowered content.
func MatchAny(patterns []*regexp.Regexp, lowered string) bool {
	for _, re := range patterns {
		if re.MatchString(lowered) {
			return true
		}
	}
	return false
}
