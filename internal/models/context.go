package models

import (
	"time"

	"github.com/google/uuid"
)

// Detection phases.
const (
	PhaseInitial    = "initial"
	PhaseContextual = "contextual"
)

// DetectedMarker is one marker found in a text.
type DetectedMarker struct {
	MarkerID          string     `json:"marker_id"`
	MarkerType        MarkerType `json:"marker_type"`
	Confidence        float64    `json:"confidence"`
	DetectionPhase    string     `json:"detection_phase"`
	DetectedAt        time.Time  `json:"detected_at"`
	Frame             *Frame     `json:"frame,omitempty"`
	Components        []string   `json:"components,omitempty"`
	ExamplesMatched   []string   `json:"examples_matched,omitempty"`
	ActivationRule    RuleKind   `json:"activation_rule,omitempty"`
	NLPEnhanced       bool       `json:"nlp_enhanced,omitempty"`
	ConfidenceUpdated bool       `json:"confidence_updated,omitempty"`
	ContextualBoost   float64    `json:"contextual_boost,omitempty"`
}

// POSTag is a token with its part-of-speech label.
type POSTag struct {
	Token string `json:"token"`
	Tag   string `json:"tag"`
}

// NamedEntity is an entity span recognised by the NLP backend.
type NamedEntity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// AnalysisContext is the per-request state threaded through all phases. It is owned by a
// single pipeline run and must not be shared between goroutines.
type AnalysisContext struct {
	RequestID string
	Text      string
	SchemaID  string
	SessionID string
	Language  string
	CreatedAt time.Time

	// Populated by the NLP enricher; nil until phase 2 succeeds.
	Tokens          []string
	Sentences       []string
	POSTags         []POSTag
	NamedEntities   []NamedEntity
	SentimentScores map[string]float64

	DetectedMarkers []DetectedMarker
	Metadata        map[string]any
}

// NewAnalysisContext creates a context with a fresh request id.
func NewAnalysisContext(text, schemaID, sessionID string) *AnalysisContext {
	return &AnalysisContext{
		RequestID: uuid.NewString(),
		Text:      text,
		SchemaID:  schemaID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// DetectedIDs returns the ids of every marker detected so far.
func (c *AnalysisContext) DetectedIDs() IDSet {
	set := make(IDSet, len(c.DetectedMarkers))
	for _, m := range c.DetectedMarkers {
		set[m.MarkerID] = struct{}{}
	}
	return set
}

// Merge folds markers into DetectedMarkers. Unknown ids are appended in order; known ids keep
// the higher confidence and record the boost. It returns the number of appended markers.
// Merging the same set twice leaves the context unchanged.
func (c *AnalysisContext) Merge(markers []DetectedMarker) int {
	index := make(map[string]int, len(c.DetectedMarkers))
	for i, m := range c.DetectedMarkers {
		index[m.MarkerID] = i
	}

	added := 0
	for _, m := range markers {
		i, ok := index[m.MarkerID]
		if !ok {
			index[m.MarkerID] = len(c.DetectedMarkers)
			c.DetectedMarkers = append(c.DetectedMarkers, m)
			added++
			continue
		}
		existing := &c.DetectedMarkers[i]
		if m.Confidence > existing.Confidence {
			existing.ContextualBoost = m.Confidence - existing.Confidence
			existing.Confidence = m.Confidence
			existing.ConfidenceUpdated = true
		}
	}
	return added
}

// ResetEnrichment drops every NLP field, leaving the context as it was before enrichment.
func (c *AnalysisContext) ResetEnrichment() {
	c.Tokens = nil
	c.Sentences = nil
	c.POSTags = nil
	c.NamedEntities = nil
	c.SentimentScores = nil
}

// MetaString returns a metadata value as a string, or "" if absent.
func (c *AnalysisContext) MetaString(key string) string {
	if v, ok := c.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaBool returns a metadata value as a bool, or false if absent.
func (c *AnalysisContext) MetaBool(key string) bool {
	v, _ := c.Metadata[key].(bool)
	return v
}
