package activation

import (
	"math"
	"testing"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/nlp"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func detection(id string, examples ...string) models.DetectedMarker {
	return models.DetectedMarker{
		MarkerID:        id,
		MarkerType:      models.TypeOf(id),
		Confidence:      0.3,
		DetectionPhase:  models.PhaseInitial,
		ExamplesMatched: examples,
	}
}

func tokenized(text string, markers ...models.DetectedMarker) *models.AnalysisContext {
	actx := models.NewAnalysisContext(text, "", "")
	actx.Tokens = nlp.Tokenize(text)
	actx.DetectedMarkers = markers
	return actx
}

func composite(rule *models.ActivationConfig, components ...string) *models.Marker {
	return &models.Marker{ID: "C_TEST", Examples: []string{"x"}, ComposedOf: components, Activation: rule}
}

func TestAllRule(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "ALL"}, "S_X", "S_Y")
	actx := models.NewAnalysisContext("text", "", "")

	partial := engine.CheckActivation(m, actx, models.NewIDSet("S_X"))
	if partial.Activated || partial.Confidence != 0 {
		t.Fatalf("expected inactive ALL with one component, got %+v", partial)
	}
	full := engine.CheckActivation(m, actx, models.NewIDSet("S_X", "S_Y"))
	if !full.Activated || !approx(full.Confidence, 0.9) {
		t.Fatalf("expected ALL at 0.9, got %+v", full)
	}
	if len(full.Components) != 2 || full.RuleType != models.RuleAll {
		t.Fatalf("unexpected outcome: %+v", full)
	}
}

func TestAllRuleWithoutComponentsDoesNotActivate(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := &models.Marker{ID: "C_EMPTY", Examples: []string{"x"}}
	out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_X"))
	if out.Activated {
		t.Fatalf("marker without components must not activate")
	}
}

func TestAnyRule(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "any"}, "S_A", "S_B", "S_C", "S_D")
	out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A", "S_C"))
	if !out.Activated || !approx(out.Confidence, 0.7) {
		t.Fatalf("expected ANY at 0.7, got %+v", out)
	}
}

func TestAnyNRule(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "ANY_N", Count: models.Int(2)}, "S_A", "S_B", "S_C", "S_D")
	out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A", "S_B", "S_C"))
	if !out.Activated || !approx(out.Confidence, 0.85) {
		t.Fatalf("expected ANY_N at 0.85, got %+v", out)
	}

	below := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A"))
	if below.Activated || below.Confidence != 0 {
		t.Fatalf("expected inactive ANY_N below count, got %+v", below)
	}
}

func TestAnyNNonPositiveCountUsesDefault(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "ANY_N", Count: models.Int(0)}, "S_A", "S_B", "S_C")
	if out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet()); out.Activated {
		t.Fatalf("count 0 must not activate without components, got %+v", out)
	}
	if out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A", "S_B")); !out.Activated {
		t.Fatalf("expected default count of 2 to activate, got %+v", out)
	}
}

func TestTemporalStrictOrder(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("ich bin müde aber ich will reden", detection("S_A", "müde"), detection("S_B", "reden"))
	detected := actx.DetectedIDs()

	inOrder := composite(&models.ActivationConfig{Type: "TEMPORAL", StrictOrder: true}, "S_A", "S_B")
	out := engine.CheckActivation(inOrder, actx, detected)
	if !out.Activated || !approx(out.Confidence, 0.84) {
		t.Fatalf("expected strict temporal at 0.84, got %+v", out)
	}
	if !out.NLPEnhanced {
		t.Fatalf("temporal outcome must be nlp enhanced")
	}

	reversed := composite(&models.ActivationConfig{Type: "TEMPORAL", StrictOrder: true}, "S_B", "S_A")
	if out := engine.CheckActivation(reversed, actx, detected); out.Activated {
		t.Fatalf("expected reversed order to fail, got %+v", out)
	}
}

func TestTemporalWithinWindow(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("ich bin müde aber ich will reden", detection("S_A", "müde"), detection("S_B", "reden"))

	m := composite(&models.ActivationConfig{Type: "TEMPORAL"}, "S_A", "S_B")
	out := engine.CheckActivation(m, actx, actx.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.74) {
		t.Fatalf("expected temporal proximity at 0.74, got %+v", out)
	}

	narrow := composite(&models.ActivationConfig{Type: "TEMPORAL", Window: models.Int(3)}, "S_A", "S_B")
	if out := engine.CheckActivation(narrow, actx, actx.DetectedIDs()); out.Activated {
		t.Fatalf("expected gap of 4 to exceed window 3, got %+v", out)
	}
}

func TestTemporalWithoutTokens(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := models.NewAnalysisContext("ich bin müde", "", "")
	actx.DetectedMarkers = []models.DetectedMarker{detection("S_A", "müde")}

	m := composite(&models.ActivationConfig{Type: "TEMPORAL"}, "S_A")
	out := engine.CheckActivation(m, actx, actx.DetectedIDs())
	if out.Activated || out.Details["reason"] != "No components found in text" {
		t.Fatalf("expected no-position outcome, got %+v", out)
	}
}

func TestProximityRule(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("ich bin müde aber ich will reden", detection("S_A", "müde"), detection("S_B", "reden"))

	near := composite(&models.ActivationConfig{Type: "PROXIMITY"}, "S_A", "S_B")
	out := engine.CheckActivation(near, actx, actx.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.82) {
		t.Fatalf("expected proximity at 0.82, got %+v", out)
	}

	far := composite(&models.ActivationConfig{Type: "PROXIMITY", MaxDistance: models.Int(3)}, "S_A", "S_B")
	out = engine.CheckActivation(far, actx, actx.DetectedIDs())
	if out.Activated || !approx(out.Confidence, 0.5) {
		t.Fatalf("expected inactive proximity with floor confidence, got %+v", out)
	}

	single := composite(&models.ActivationConfig{Type: "PROXIMITY"}, "S_A", "S_Z")
	if out := engine.CheckActivation(single, actx, actx.DetectedIDs()); out.Activated || out.Confidence != 0 {
		t.Fatalf("expected proximity to need two components, got %+v", out)
	}
}

func TestNegationRule(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("ich bin nicht müde", detection("S_A", "müde"))

	strict := composite(&models.ActivationConfig{Type: "NEGATION"}, "S_A")
	out := engine.CheckActivation(strict, actx, actx.DetectedIDs())
	if out.Activated || out.Details["negation_detected"] != true {
		t.Fatalf("expected negation to block activation, got %+v", out)
	}

	tolerant := composite(&models.ActivationConfig{Type: "NEGATION", AllowNegation: true}, "S_A")
	out = engine.CheckActivation(tolerant, actx, actx.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.7) {
		t.Fatalf("expected tolerated negation at 0.7, got %+v", out)
	}

	clean := tokenized("ich bin so müde", detection("S_A", "müde"))
	out = engine.CheckActivation(strict, clean, clean.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.9) {
		t.Fatalf("expected clean activation at 0.9, got %+v", out)
	}
}

func TestConjunctionPattern(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "PATTERN", Pattern: "conjunction"}, "S_A", "S_B")

	with := tokenized("ich bin müde aber ich will reden", detection("S_A", "müde"), detection("S_B", "reden"))
	out := engine.CheckActivation(m, with, with.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.95) || out.Details["conjunction_found"] != "aber" {
		t.Fatalf("expected conjunction activation, got %+v", out)
	}

	without := tokenized("ich bin müde und ich will reden", detection("S_A", "müde"), detection("S_B", "reden"))
	if out := engine.CheckActivation(m, without, without.DetectedIDs()); out.Activated {
		t.Fatalf("expected no activation without conjunction, got %+v", out)
	}
}

func TestConjunctionPatternReportsLastConnector(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "PATTERN", Pattern: "conjunction"}, "S_A", "S_B", "S_C")

	actx := tokenized("ich bin müde aber ich will reden jedoch ich gehe",
		detection("S_A", "müde"), detection("S_B", "reden"), detection("S_C", "gehe"))
	out := engine.CheckActivation(m, actx, actx.DetectedIDs())
	if !out.Activated || out.Details["conjunction_found"] != "jedoch" {
		t.Fatalf("expected the connector of the last gap, got %+v", out)
	}
}

func TestCauseEffectDefersToAll(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "PATTERN", Pattern: "cause_effect"}, "S_A", "S_B")
	out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A", "S_B"))
	if !out.Activated || !approx(out.Confidence, 0.9) {
		t.Fatalf("expected ALL semantics, got %+v", out)
	}
	if out.RuleType != models.RulePattern {
		t.Fatalf("expected PATTERN rule type, got %s", out.RuleType)
	}
}

func TestCompositeOperators(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("ich bin müde aber ich will reden", detection("S_A", "müde"), detection("S_B", "reden"))
	rules := []models.ActivationConfig{
		{Type: "ALL"},
		{Type: "PROXIMITY", MaxDistance: models.Int(3)},
	}

	or := composite(&models.ActivationConfig{Type: "COMPOSITE", Operator: "OR", Rules: rules}, "S_A", "S_B")
	out := engine.CheckActivation(or, actx, actx.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.9) {
		t.Fatalf("expected OR at 0.9, got %+v", out)
	}
	if len(out.Components) != 2 {
		t.Fatalf("expected component union, got %v", out.Components)
	}

	and := composite(&models.ActivationConfig{Type: "COMPOSITE", Rules: rules}, "S_A", "S_B")
	out = engine.CheckActivation(and, actx, actx.DetectedIDs())
	if out.Activated || !approx(out.Confidence, 0.5) {
		t.Fatalf("expected AND inactive at min 0.5, got %+v", out)
	}
}

func TestCompositeWithoutRules(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "COMPOSITE"}, "S_A")
	if out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A")); out.Activated {
		t.Fatalf("composite without rules must not activate")
	}
}

func TestSentimentRule(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := models.NewAnalysisContext("x", "", "")
	detected := models.NewIDSet("S_A", "S_B")

	actx.SentimentScores = map[string]float64{"negative": 0.7, "positive": 0.1, "neutral": 0.2}
	consistent := composite(&models.ActivationConfig{Type: "SENTIMENT"}, "S_A", "S_B")
	out := engine.CheckActivation(consistent, actx, detected)
	if !out.Activated || !approx(out.Confidence, 0.7) {
		t.Fatalf("expected consistent sentiment at 0.7, got %+v", out)
	}

	actx.SentimentScores = map[string]float64{"positive": 0.7, "negative": 0.65}
	contrasting := composite(&models.ActivationConfig{Type: "SENTIMENT", Alignment: "contrasting"}, "S_A", "S_B")
	out = engine.CheckActivation(contrasting, actx, detected)
	if !out.Activated || !approx(out.Confidence, 0.675) {
		t.Fatalf("expected contrasting sentiment at 0.675, got %+v", out)
	}

	actx.SentimentScores = nil
	out = engine.CheckActivation(consistent, actx, detected)
	if !out.Activated || !approx(out.Confidence, 0.9) || out.RuleType != models.RuleSentiment {
		t.Fatalf("expected ALL fallback without sentiment, got %+v", out)
	}
}

func TestLinguisticAdjustments(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("bist du vielleicht wirklich müde ?", detection("S_A", "müde"))
	m := composite(&models.ActivationConfig{Type: "ALL"}, "S_A")

	out := engine.CheckActivation(m, actx, actx.DetectedIDs())
	want := 0.9 * 0.9 * 0.85 * 1.1
	if !out.Activated || !approx(out.Confidence, want) {
		t.Fatalf("expected adjusted confidence %f, got %+v", want, out)
	}
	adj, ok := out.Details["nlp_adjustments"].(map[string]any)
	if !ok {
		t.Fatalf("missing nlp_adjustments: %v", out.Details)
	}
	if list := adj["adjustments"].([]Adjustment); len(list) != 3 {
		t.Fatalf("expected three adjustments, got %v", list)
	}
	if !out.NLPEnhanced {
		t.Fatalf("adjusted outcome must be nlp enhanced")
	}
}

func TestDefaultRuleSkipsAdjustments(t *testing.T) {
	engine := NewEngine(nil, nil)
	actx := tokenized("vielleicht müde ?", detection("S_A", "müde"))
	m := &models.Marker{ID: "C_X", Examples: []string{"x"}, ComposedOf: []string{"S_A"}}

	out := engine.CheckActivation(m, actx, actx.DetectedIDs())
	if !out.Activated || !approx(out.Confidence, 0.9) {
		t.Fatalf("expected plain ALL at 0.9, got %+v", out)
	}
}

func TestUnknownRuleFallsBackToAll(t *testing.T) {
	engine := NewEngine(nil, nil)
	m := composite(&models.ActivationConfig{Type: "MAGIC"}, "S_A")
	out := engine.CheckActivation(m, models.NewAnalysisContext("x", "", ""), models.NewIDSet("S_A"))
	if !out.Activated || out.RuleType != models.RuleAll || out.Details["fallback_from"] != "MAGIC" {
		t.Fatalf("expected ALL fallback, got %+v", out)
	}
}
