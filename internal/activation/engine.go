// Package activation decides whether composite and meta markers fire, given the markers
// already detected in a text and its NLP annotations.
package activation

import (
	"log/slog"

	"github.com/miradorstack/marker-engine/internal/lexicon"
	"github.com/miradorstack/marker-engine/internal/models"
)

// Rule defaults.
const (
	defaultAnyN           = 2
	defaultTemporalWindow = 10
	defaultMinSentiment   = 0.6
	defaultMaxDistance    = 20
	defaultNegationWindow = 3
)

// Engine evaluates activation rules. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	lex    *lexicon.Index
	logger *slog.Logger
}

// NewEngine constructs an Engine over lex. A nil index uses the default lexicon.
func NewEngine(lex *lexicon.Index, logger *slog.Logger) *Engine {
	if lex == nil {
		lex = lexicon.NewIndex(lexicon.Default())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{lex: lex, logger: logger}
}

// CheckActivation evaluates the marker's rule against actx and the ids detected so far.
// Markers without an activation block or components use the ALL rule and skip the
// linguistic adjustments.
func (e *Engine) CheckActivation(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	if m.Activation == nil || len(m.ComposedOf) == 0 {
		return e.checkAll(m, detected)
	}

	kind, known := models.ParseRuleKind(m.Activation.Type)
	var outcome models.ActivationOutcome
	switch kind {
	case models.RuleAll:
		outcome = e.checkAll(m, detected)
	case models.RuleAny:
		outcome = e.checkAny(m, detected)
	case models.RuleAnyN:
		outcome = e.checkAnyN(m, detected)
	case models.RuleTemporal:
		outcome = e.checkTemporal(m, actx)
	case models.RuleSentiment:
		outcome = e.checkSentiment(m, actx, detected)
	case models.RuleProximity:
		outcome = e.checkProximity(m, actx, detected)
	case models.RuleNegation:
		outcome = e.checkNegation(m, actx, detected)
	case models.RulePattern:
		outcome = e.checkPattern(m, actx, detected)
	case models.RuleComposite:
		outcome = e.checkComposite(m, actx, detected)
	default:
		e.logger.Warn("unknown activation rule type, falling back to ALL",
			slog.String("marker_id", m.ID),
			slog.String("rule_type", string(kind)),
		)
		outcome = e.checkAll(m, detected)
		outcome.Details["fallback_from"] = string(kind)
	}
	if known {
		outcome.RuleType = kind
	}

	if outcome.Activated && len(actx.Tokens) > 0 {
		e.adjust(actx, &outcome)
	}
	return outcome
}

func newOutcome(kind models.RuleKind) models.ActivationOutcome {
	return models.ActivationOutcome{
		RuleType:   kind,
		Components: []string{},
		Details:    map[string]any{},
	}
}

// foundComponents returns the composed_of ids present in detected, in definition order.
func foundComponents(m *models.Marker, detected models.IDSet) []string {
	found := make([]string, 0, len(m.ComposedOf))
	for _, id := range m.ComposedOf {
		if detected.Has(id) {
			found = append(found, id)
		}
	}
	return found
}

func missingComponents(m *models.Marker, detected models.IDSet) []string {
	missing := make([]string, 0)
	for _, id := range m.ComposedOf {
		if !detected.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
