package activation

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/miradorstack/marker-engine/internal/models"
)

func (e *Engine) checkAll(m *models.Marker, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RuleAll)
	found := foundComponents(m, detected)
	out.Components = found
	out.Activated = len(m.ComposedOf) > 0 && len(found) == len(m.ComposedOf)
	if out.Activated {
		out.Confidence = 0.9
	}
	out.Details["required"] = len(m.ComposedOf)
	out.Details["found"] = len(found)
	out.Details["missing"] = missingComponents(m, detected)
	return out
}

func (e *Engine) checkAny(m *models.Marker, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RuleAny)
	found := foundComponents(m, detected)
	out.Components = found
	out.Activated = len(found) > 0
	if out.Activated {
		out.Confidence = 0.5 + 0.4*float64(len(found))/float64(len(m.ComposedOf))
	}
	out.Details["required"] = "at least 1"
	out.Details["found"] = len(found)
	out.Details["total_possible"] = len(m.ComposedOf)
	return out
}

func (e *Engine) checkAnyN(m *models.Marker, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RuleAnyN)
	n := models.IntOr(m.Activation.Count, defaultAnyN)
	if n <= 0 {
		n = defaultAnyN
	}
	found := foundComponents(m, detected)
	out.Components = found
	out.Activated = len(found) >= n
	if out.Activated {
		excess := float64(len(found) - n)
		spread := math.Max(1, float64(len(m.ComposedOf)-n))
		out.Confidence = math.Min(1, 0.7+0.3*excess/spread)
	}
	out.Details["required"] = fmt.Sprintf("at least %d", n)
	out.Details["found"] = len(found)
	out.Details["threshold"] = n
	return out
}

func (e *Engine) checkTemporal(m *models.Marker, actx *models.AnalysisContext) models.ActivationOutcome {
	out := newOutcome(models.RuleTemporal)
	window := models.IntOr(m.Activation.Window, defaultTemporalWindow)
	if window <= 0 {
		window = defaultTemporalWindow
	}
	strict := m.Activation.StrictOrder

	pos := findPositions(m.ComposedOf, actx)
	if len(pos) == 0 {
		out.Details["reason"] = "No components found in text"
		return out
	}

	if strict {
		out.Activated, out.Confidence = strictOrder(m.ComposedOf, pos, window)
	} else {
		out.Activated, out.Confidence = withinWindow(pos, window)
	}
	out.Components = pos.ordered(m.ComposedOf)
	out.NLPEnhanced = true
	out.Details["window"] = window
	out.Details["strict_order"] = strict
	out.Details["positions"] = map[string][]int(pos)
	if strict {
		out.Details["temporal_pattern"] = "sequential"
	} else {
		out.Details["temporal_pattern"] = "proximity"
	}
	return out
}

// strictOrder requires every component located, first occurrences ascending in definition
// order and consecutive gaps within window.
func strictOrder(components []string, pos positions, window int) (bool, float64) {
	firsts := make([]int, 0, len(components))
	for _, id := range components {
		list := pos[id]
		if len(list) == 0 {
			return false, 0
		}
		firsts = append(firsts, minInt(list))
	}
	if !slices.IsSorted(firsts) {
		return false, 0
	}
	for i := 1; i < len(firsts); i++ {
		if firsts[i]-firsts[i-1] > window {
			return false, 0
		}
	}
	span := float64(firsts[len(firsts)-1] - firsts[0])
	confidence := 0.9 - 0.3*span/float64(window*len(components))
	return true, math.Max(0.6, confidence)
}

// withinWindow requires at least two located occurrences with no gap wider than window.
func withinWindow(pos positions, window int) (bool, float64) {
	all := pos.flatten()
	if len(all) < 2 {
		return false, 0
	}
	sort.Ints(all)
	maxGap := 0
	for i := 1; i < len(all); i++ {
		if gap := all[i] - all[i-1]; gap > maxGap {
			maxGap = gap
		}
	}
	if maxGap > window {
		return false, 0
	}
	avgGap := float64(all[len(all)-1]-all[0]) / math.Max(1, float64(len(all)-1))
	confidence := 0.9 - 0.4*avgGap/float64(window)
	return true, math.Max(0.5, confidence)
}

func (e *Engine) checkSentiment(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	alignment := m.Activation.Alignment
	if alignment == "" {
		alignment = "consistent"
	}
	minConfidence := models.FloatOr(m.Activation.MinConfidence, defaultMinSentiment)

	found := foundComponents(m, detected)
	if len(found) == 0 || len(actx.SentimentScores) == 0 {
		out := e.checkAll(m, detected)
		out.Details["fallback_from"] = string(models.RuleSentiment)
		return out
	}

	// Sentiment is only available for the whole text, so every component shares it.
	perComponent := make(map[string]map[string]float64, len(found))
	for _, id := range found {
		perComponent[id] = actx.SentimentScores
	}

	out := newOutcome(models.RuleSentiment)
	switch alignment {
	case "consistent":
		out.Activated, out.Confidence = consistentSentiment(found, perComponent, minConfidence)
	case "contrasting":
		out.Activated, out.Confidence = contrastingSentiment(found, perComponent, minConfidence)
	default:
		out.Activated = len(found) == len(m.ComposedOf)
		out.Confidence = 0.7
	}
	out.Components = found
	out.NLPEnhanced = true
	out.Details["sentiment_alignment"] = alignment
	out.Details["component_sentiments"] = perComponent
	out.Details["overall_sentiment"] = actx.SentimentScores
	return out
}

// dominant returns the highest scoring label; ties go to the alphabetically first label.
func dominant(scores map[string]float64) (string, float64) {
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	best, bestScore := "", math.Inf(-1)
	for _, label := range labels {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return best, bestScore
}

func consistentSentiment(ids []string, sentiments map[string]map[string]float64, minConfidence float64) (bool, float64) {
	if len(ids) == 0 {
		return false, 0
	}
	label0, _ := dominant(sentiments[ids[0]])
	total := 0.0
	for _, id := range ids {
		label, score := dominant(sentiments[id])
		if label != label0 {
			return false, 0
		}
		total += score
	}
	avg := total / float64(len(ids))
	return avg >= minConfidence, avg
}

func contrastingSentiment(ids []string, sentiments map[string]map[string]float64, minConfidence float64) (bool, float64) {
	if len(ids) < 2 {
		return false, 0
	}
	maxPos, maxNeg := 0.0, 0.0
	for _, id := range ids {
		maxPos = math.Max(maxPos, sentiments[id]["positive"])
		maxNeg = math.Max(maxNeg, sentiments[id]["negative"])
	}
	if maxPos > minConfidence && maxNeg > minConfidence {
		return true, (maxPos + maxNeg) / 2
	}
	return false, 0
}

// checkProximity reports a floor confidence of 0.5 even when the spread is too wide, so an
// OR composite over it never drops below that.
func (e *Engine) checkProximity(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RuleProximity)
	maxDistance := models.IntOr(m.Activation.MaxDistance, defaultMaxDistance)
	if maxDistance <= 0 {
		maxDistance = defaultMaxDistance
	}

	found := foundComponents(m, detected)
	out.Components = found
	if len(found) < 2 {
		out.Details["reason"] = "Need at least 2 components for proximity check"
		return out
	}

	pos := findPositions(found, actx)
	if len(pos) == 0 {
		fallback := e.checkAll(m, detected)
		fallback.Details["fallback_from"] = string(models.RuleProximity)
		return fallback
	}

	distance := 0
	if all := pos.flatten(); len(all) >= 2 {
		distance = maxInt(all) - minInt(all)
	}
	out.Activated = distance <= maxDistance
	confidence := 0.0
	if out.Activated {
		confidence = 0.9 - 0.4*float64(distance)/float64(maxDistance)
	}
	out.Confidence = math.Max(0.5, confidence)
	out.NLPEnhanced = true
	out.Details["max_allowed_distance"] = maxDistance
	out.Details["actual_max_distance"] = distance
	out.Details["component_positions"] = map[string][]int(pos)
	return out
}

func (e *Engine) checkNegation(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RuleNegation)
	window := models.IntOr(m.Activation.NegationWindow, defaultNegationWindow)
	if window <= 0 {
		window = defaultNegationWindow
	}
	allow := m.Activation.AllowNegation

	found := foundComponents(m, detected)
	out.Components = found
	if len(found) == 0 {
		out.Details["reason"] = "No components found"
		return out
	}

	negated := e.negated(found, actx, window)
	complete := len(found) == len(m.ComposedOf)
	if allow {
		out.Activated = complete
		out.Confidence = 0.9
		if negated {
			out.Confidence = 0.7
		}
	} else {
		out.Activated = complete && !negated
		if out.Activated {
			out.Confidence = 0.9
		}
	}
	out.NLPEnhanced = true
	out.Details["negation_detected"] = negated
	out.Details["allow_negation"] = allow
	out.Details["negation_window"] = window
	return out
}

// negated reports whether a negation word occurs within window tokens of any component.
func (e *Engine) negated(components []string, actx *models.AnalysisContext, window int) bool {
	if len(actx.Tokens) == 0 {
		return false
	}
	for _, list := range findPositions(components, actx) {
		for _, p := range list {
			start := max(0, p-window)
			end := min(len(actx.Tokens), p+window+1)
			if e.lex.Negations.ContainsAny(actx.Tokens[start:end]) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) checkPattern(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	pattern := strings.ToLower(m.Activation.Pattern)
	if pattern == "" {
		pattern = "conjunction"
	}
	switch pattern {
	case "conjunction":
		return e.checkConjunction(m, actx, detected)
	default:
		// cause_effect has no connector logic of its own and defers to ALL, as do unknown patterns.
		out := e.checkAll(m, detected)
		out.Details["pattern"] = pattern
		out.Details["fallback_from"] = string(models.RulePattern)
		return out
	}
}

type span struct {
	first, last int
	id          string
}

func (e *Engine) checkConjunction(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RulePattern)
	found := foundComponents(m, detected)
	out.Components = found
	if len(found) < 2 {
		out.Details["reason"] = "Need at least 2 components for conjunction pattern"
		return out
	}

	pos := findPositions(found, actx)
	hasConjunction := false
	var conjunction any
	if len(pos) >= 2 && len(actx.Tokens) > 0 {
		spans := make([]span, 0, len(pos))
		for id, list := range pos {
			spans = append(spans, span{first: minInt(list), last: maxInt(list), id: id})
		}
		sort.Slice(spans, func(i, j int) bool {
			if spans[i].first != spans[j].first {
				return spans[i].first < spans[j].first
			}
			if spans[i].last != spans[j].last {
				return spans[i].last < spans[j].last
			}
			return spans[i].id < spans[j].id
		})
		// Every adjacent pair is checked; the connector of the last matching gap is reported.
		for i := 0; i+1 < len(spans); i++ {
			start, end := spans[i].last, spans[i+1].first
			if start >= end {
				continue
			}
			for _, tok := range actx.Tokens[start:end] {
				if e.lex.Conjunctions.Contains(tok) {
					hasConjunction = true
					conjunction = tok
					break
				}
			}
		}
	}

	out.Activated = len(found) == len(m.ComposedOf) && hasConjunction
	if out.Activated {
		out.Confidence = 0.95
	}
	out.NLPEnhanced = true
	out.Details["pattern"] = "conjunction"
	out.Details["conjunction_found"] = conjunction
	out.Details["has_conjunction"] = hasConjunction
	return out
}

// checkComposite evaluates every sub-rule as a full activation check of the same marker.
func (e *Engine) checkComposite(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome {
	out := newOutcome(models.RuleComposite)
	operator := strings.ToUpper(m.Activation.Operator)
	if operator == "" {
		operator = "AND"
	}

	results := make([]models.ActivationOutcome, 0, len(m.Activation.Rules))
	for i := range m.Activation.Rules {
		results = append(results, e.CheckActivation(m.WithActivation(&m.Activation.Rules[i]), actx, detected))
	}

	if len(results) > 0 {
		if operator == "AND" {
			out.Activated = true
			out.Confidence = math.Inf(1)
			for _, r := range results {
				out.Activated = out.Activated && r.Activated
				out.Confidence = math.Min(out.Confidence, r.Confidence)
			}
		} else {
			for _, r := range results {
				out.Activated = out.Activated || r.Activated
				out.Confidence = math.Max(out.Confidence, r.Confidence)
			}
		}
	}

	seen := models.IDSet{}
	for _, r := range results {
		for _, id := range r.Components {
			if !seen.Has(id) {
				seen[id] = struct{}{}
				out.Components = append(out.Components, id)
			}
		}
	}
	out.NLPEnhanced = true
	out.Details["composite_operator"] = operator
	out.Details["rule_results"] = results
	return out
}
