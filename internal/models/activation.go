package models

import "strings"

// RuleKind names an activation strategy for composite markers.
type RuleKind string

const (
	RuleAll       RuleKind = "ALL"
	RuleAny       RuleKind = "ANY"
	RuleAnyN      RuleKind = "ANY_N"
	RuleTemporal  RuleKind = "TEMPORAL"
	RuleSentiment RuleKind = "SENTIMENT"
	RuleProximity RuleKind = "PROXIMITY"
	RuleNegation  RuleKind = "NEGATION"
	RulePattern   RuleKind = "PATTERN"
	RuleComposite RuleKind = "COMPOSITE"
)

// ParseRuleKind upper-cases name and reports whether it is a known rule. An empty name is ALL.
func ParseRuleKind(name string) (RuleKind, bool) {
	kind := RuleKind(strings.ToUpper(strings.TrimSpace(name)))
	switch kind {
	case "":
		return RuleAll, true
	case RuleAll, RuleAny, RuleAnyN, RuleTemporal, RuleSentiment, RuleProximity, RuleNegation, RulePattern, RuleComposite:
		return kind, true
	default:
		return kind, false
	}
}

// ActivationConfig is the activation block of a composite marker. Only the fields relevant
// to Type are read; pointer fields distinguish "absent" from zero.
type ActivationConfig struct {
	Type string `yaml:"type" json:"type"`

	// ANY_N
	Count *int `yaml:"count,omitempty" json:"count,omitempty"`

	// TEMPORAL
	Window      *int `yaml:"window,omitempty" json:"window,omitempty"`
	StrictOrder bool `yaml:"strict_order,omitempty" json:"strict_order,omitempty"`

	// SENTIMENT
	Alignment     string   `yaml:"alignment,omitempty" json:"alignment,omitempty"`
	MinConfidence *float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`

	// PROXIMITY
	MaxDistance *int `yaml:"max_distance,omitempty" json:"max_distance,omitempty"`

	// NEGATION
	NegationWindow *int `yaml:"negation_window,omitempty" json:"negation_window,omitempty"`
	AllowNegation  bool `yaml:"allow_negation,omitempty" json:"allow_negation,omitempty"`

	// PATTERN
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// COMPOSITE
	Rules    []ActivationConfig `yaml:"rules,omitempty" json:"rules,omitempty"`
	Operator string             `yaml:"operator,omitempty" json:"operator,omitempty"`
}

// IntOr returns *p or def when p is nil.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// FloatOr returns *p or def when p is nil.
func FloatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// ActivationOutcome is the transient result of one activation check.
type ActivationOutcome struct {
	Activated   bool           `json:"activated"`
	Confidence  float64        `json:"confidence"`
	Components  []string       `json:"components"`
	Details     map[string]any `json:"details"`
	RuleType    RuleKind       `json:"rule_type"`
	NLPEnhanced bool           `json:"nlp_enhanced"`
}

// IDSet is a set of marker ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
