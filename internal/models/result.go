package models

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AnalysisRequest is the input of one pipeline run.
type AnalysisRequest struct {
	Text      string `json:"text"`
	SchemaID  string `json:"schema_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AnalysisResult is the envelope handed to transport layers and cached.
type AnalysisResult struct {
	RequestID          string                 `json:"request_id"`
	Status             string                 `json:"status"`
	Error              string                 `json:"error,omitempty"`
	Text               string                 `json:"text"`
	Markers            []DetectedMarker       `json:"markers"`
	MarkerCount        int                    `json:"marker_count"`
	NLPEnriched        bool                   `json:"nlp_enriched"`
	FromCache          bool                   `json:"from_cache,omitempty"`
	Metadata           ResultMetadata         `json:"metadata"`
	Summary            MarkerSummary          `json:"summary"`
	SessionScores      map[string]ScoreResult `json:"session_scores,omitempty"`
	PerformanceMetrics map[string]float64     `json:"performance_metrics"`
}

// ResultMetadata carries request identity and per-phase diagnostics.
type ResultMetadata struct {
	SessionID      string      `json:"session_id,omitempty"`
	SchemaID       string      `json:"schema_id,omitempty"`
	Phases         PhaseReport `json:"phases"`
	NLPService     string      `json:"nlp_service"`
	Cancelled      bool        `json:"cancelled,omitempty"`
	PartialResults int         `json:"partial_results,omitempty"`
}

// PhaseReport groups the three phase reports.
type PhaseReport struct {
	Phase1 Phase1Report `json:"phase1"`
	Phase2 Phase2Report `json:"phase2"`
	Phase3 Phase3Report `json:"phase3"`
}

// Phase1Report describes the initial scan.
type Phase1Report struct {
	MarkersFound int    `json:"markers_found"`
	Error        string `json:"error,omitempty"`
}

// Phase2Report describes NLP enrichment.
type Phase2Report struct {
	Skipped    bool               `json:"skipped,omitempty"`
	Enrichment *EnrichmentSummary `json:"enrichment,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Phase3Report describes the contextual rescan.
type Phase3Report struct {
	Skipped      bool   `json:"skipped,omitempty"`
	MarkersAdded int    `json:"markers_added"`
	Error        string `json:"error,omitempty"`
}

// EnrichmentSummary counts what the NLP enricher produced.
type EnrichmentSummary struct {
	Tokens     int    `json:"tokens"`
	Sentences  int    `json:"sentences"`
	Entities   int    `json:"entities"`
	NLPService string `json:"nlp_service"`
}

// MarkerSummary aggregates the detected markers.
type MarkerSummary struct {
	ByType            map[MarkerType]int `json:"by_type"`
	ByPhase           map[string]int     `json:"by_phase"`
	AverageConfidence float64            `json:"average_confidence"`
	MaxConfidence     float64            `json:"max_confidence"`
}

// Summarize builds a MarkerSummary from markers.
func Summarize(markers []DetectedMarker) MarkerSummary {
	summary := MarkerSummary{
		ByType:  make(map[MarkerType]int),
		ByPhase: make(map[string]int),
	}
	if len(markers) == 0 {
		return summary
	}
	total := 0.0
	for _, m := range markers {
		summary.ByType[m.MarkerType]++
		summary.ByPhase[m.DetectionPhase]++
		total += m.Confidence
		if m.Confidence > summary.MaxConfidence {
			summary.MaxConfidence = m.Confidence
		}
	}
	summary.AverageConfidence = total / float64(len(markers))
	return summary
}
