// Package scoring turns a marker's event history into a time-aware score.
package scoring

import (
	"math"
	"strings"

	"github.com/miradorstack/marker-engine/internal/models"
)

// Logistic maps raw through 1/(1+e^(-k*raw)).
func Logistic(raw, k float64) float64 {
	return 1.0 / (1.0 + math.Exp(-k*raw))
}

// Linear is the identity.
func Linear(raw float64) float64 {
	return raw
}

// Step is 1 when raw reaches threshold, else 0.
func Step(raw, threshold float64) float64 {
	if raw >= threshold {
		return 1
	}
	return 0
}

// Score applies the formula named in cfg. Unknown or empty formulas are linear.
// Logistic reads k, step reads threshold; both default to 0.
func Score(raw float64, cfg models.ScoringConfig) float64 {
	switch strings.ToLower(cfg.Formula) {
	case models.FormulaLogistic:
		return Logistic(raw, models.FloatOr(cfg.K, 0))
	case models.FormulaStep:
		return Step(raw, models.FloatOr(cfg.Threshold, 0))
	default:
		return Linear(raw)
	}
}
