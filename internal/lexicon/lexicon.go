// Package lexicon holds the word lists used by rule evaluation and the basic sentiment
// scorer. Lists are plain configuration data and can be replaced from YAML.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon groups the lists consulted during activation and enrichment.
type Lexicon struct {
	Language        string   `yaml:"language"`
	Negations       []string `yaml:"negations"`
	Conjunctions    []string `yaml:"conjunctions"`
	CauseIndicators []string `yaml:"cause_indicators"`
	Uncertainty     []string `yaml:"uncertainty"`
	Emphasis        []string `yaml:"emphasis"`
	Positive        []string `yaml:"positive"`
	Negative        []string `yaml:"negative"`
}

// Default returns the built-in German lexicon.
func Default() Lexicon {
	return Lexicon{
		Language:        "de",
		Negations:       []string{"nicht", "kein", "keine", "niemals", "nie", "nirgends", "niemand"},
		Conjunctions:    []string{"aber", "jedoch", "trotzdem", "dennoch", "obwohl", "allerdings"},
		CauseIndicators: []string{"weil", "da", "denn", "deshalb", "daher", "deswegen"},
		Uncertainty:     []string{"vielleicht", "möglicherweise", "eventuell", "vermutlich"},
		Emphasis:        []string{"wirklich", "tatsächlich", "definitiv", "sicherlich"},
		Positive: []string{
			"gut", "schön", "super", "toll", "freue", "froh", "glücklich", "danke",
			"liebe", "gerne", "prima", "perfekt", "wunderbar", "klasse",
		},
		Negative: []string{
			"schlecht", "traurig", "wütend", "ärger", "angst", "hasse", "schlimm",
			"enttäuscht", "müde", "allein", "leider", "furchtbar", "schrecklich", "sorge",
		},
	}
}

// Load reads a lexicon document from path. Lists absent from the file keep their defaults;
// an empty path returns Default.
func Load(path string) (Lexicon, error) {
	lex := Default()
	if path == "" {
		return lex, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}
	var override Lexicon
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon: %w", err)
	}
	lex.merge(override)
	return lex, nil
}

func (l *Lexicon) merge(o Lexicon) {
	if o.Language != "" {
		l.Language = o.Language
	}
	replace := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	replace(&l.Negations, o.Negations)
	replace(&l.Conjunctions, o.Conjunctions)
	replace(&l.CauseIndicators, o.CauseIndicators)
	replace(&l.Uncertainty, o.Uncertainty)
	replace(&l.Emphasis, o.Emphasis)
	replace(&l.Positive, o.Positive)
	replace(&l.Negative, o.Negative)
}

// Index is a read-only lookup view over a Lexicon. Safe for concurrent use.
type Index struct {
	Negations       WordSet
	Conjunctions    WordSet
	CauseIndicators WordSet
	Uncertainty     WordSet
	Emphasis        WordSet
	Positive        WordSet
	Negative        WordSet
}

// NewIndex lower-cases every list of lex into sets.
func NewIndex(lex Lexicon) *Index {
	return &Index{
		Negations:       NewWordSet(lex.Negations),
		Conjunctions:    NewWordSet(lex.Conjunctions),
		CauseIndicators: NewWordSet(lex.CauseIndicators),
		Uncertainty:     NewWordSet(lex.Uncertainty),
		Emphasis:        NewWordSet(lex.Emphasis),
		Positive:        NewWordSet(lex.Positive),
		Negative:        NewWordSet(lex.Negative),
	}
}

// WordSet matches tokens case-insensitively.
type WordSet map[string]struct{}

// NewWordSet builds a set from words.
func NewWordSet(words []string) WordSet {
	set := make(WordSet, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

// Contains reports whether token is in the set.
func (s WordSet) Contains(token string) bool {
	_, ok := s[strings.ToLower(token)]
	return ok
}

// ContainsAny reports whether any token is in the set.
func (s WordSet) ContainsAny(tokens []string) bool {
	for _, tok := range tokens {
		if s.Contains(tok) {
			return true
		}
	}
	return false
}
