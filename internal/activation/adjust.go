package activation

import (
	"math"
	"strings"

	"github.com/miradorstack/marker-engine/internal/models"
)

// Adjustment is one linguistic confidence correction applied after activation.
type Adjustment struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// adjust scales an activated outcome for questions, hedging and emphasis.
func (e *Engine) adjust(actx *models.AnalysisContext, out *models.ActivationOutcome) {
	original := out.Confidence
	adjustments := []Adjustment{}

	if isQuestion(actx) {
		out.Confidence *= 0.9
		adjustments = append(adjustments, Adjustment{Name: "question_context", Delta: -0.1})
	}
	if e.lex.Uncertainty.ContainsAny(actx.Tokens) {
		out.Confidence *= 0.85
		adjustments = append(adjustments, Adjustment{Name: "uncertainty_markers", Delta: -0.15})
	}
	if e.lex.Emphasis.ContainsAny(actx.Tokens) {
		out.Confidence = math.Min(1, out.Confidence*1.1)
		adjustments = append(adjustments, Adjustment{Name: "emphasis_markers", Delta: 0.1})
	}

	out.Details["nlp_adjustments"] = map[string]any{
		"original_confidence": original,
		"final_confidence":    out.Confidence,
		"adjustments":         adjustments,
	}
	out.NLPEnhanced = true
}

func isQuestion(actx *models.AnalysisContext) bool {
	if n := len(actx.Tokens); n > 0 && actx.Tokens[n-1] == "?" {
		return true
	}
	return strings.HasSuffix(strings.TrimSpace(actx.Text), "?")
}
