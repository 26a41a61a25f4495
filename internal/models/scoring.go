package models

// Scoring formulas.
const (
	FormulaLogistic = "logistic"
	FormulaLinear   = "linear"
	FormulaStep     = "step"
)

// ScoringConfig is a marker-local or global scoring block. Nil fields are absent and
// fall through to the next layer when configs are merged.
type ScoringConfig struct {
	Formula   string   `yaml:"formula,omitempty" json:"formula,omitempty"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Base      *float64 `yaml:"base,omitempty" json:"base,omitempty"`
	Weight    *float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	Decay     *float64 `yaml:"decay,omitempty" json:"decay,omitempty"`
	MaxScore  *float64 `yaml:"max_score,omitempty" json:"max_score,omitempty"`
	K         *float64 `yaml:"k,omitempty" json:"k,omitempty"`
}

// Merge returns c overridden by every field set in override.
func (c ScoringConfig) Merge(override *ScoringConfig) ScoringConfig {
	if override == nil {
		return c
	}
	merged := c
	if override.Formula != "" {
		merged.Formula = override.Formula
	}
	if override.Threshold != nil {
		merged.Threshold = override.Threshold
	}
	if override.Base != nil {
		merged.Base = override.Base
	}
	if override.Weight != nil {
		merged.Weight = override.Weight
	}
	if override.Decay != nil {
		merged.Decay = override.Decay
	}
	if override.MaxScore != nil {
		merged.MaxScore = override.MaxScore
	}
	if override.K != nil {
		merged.K = override.K
	}
	return merged
}

// WindowConfig bounds the events considered by the aggregator.
type WindowConfig struct {
	Messages *int     `yaml:"messages,omitempty" json:"messages,omitempty"`
	Seconds  *float64 `yaml:"seconds,omitempty" json:"seconds,omitempty"`
}

// Event is one occurrence of a marker in a session history.
type Event struct {
	Timestamp float64  `json:"timestamp"`
	Weight    *float64 `json:"weight,omitempty"`
	Value     float64  `json:"value,omitempty"`
}

// Amount is Weight when present, otherwise Value.
func (e Event) Amount() float64 {
	if e.Weight != nil {
		return *e.Weight
	}
	return e.Value
}

// ScoreResult is the aggregate of a marker's event history.
type ScoreResult struct {
	RawScore float64 `json:"raw_score"`
	Score    float64 `json:"score"`
}

// Float returns a pointer to v, for building optional config fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building optional config fields.
func Int(v int) *int { return &v }
