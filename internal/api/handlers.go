package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/marker-engine/internal/models"
)

// AnalyzeRequest is the Analyze payload.
type AnalyzeRequest = models.AnalysisRequest

// AnalyzeResponse is the Analyze reply.
type AnalyzeResponse = models.AnalysisResult

// BatchRequest carries several analysis requests.
type BatchRequest struct {
	Requests []models.AnalysisRequest `json:"requests"`
}

// BatchResponse keeps the order of BatchRequest.Requests.
type BatchResponse struct {
	Results []models.AnalysisResult `json:"results"`
}

// SessionScoreRequest names a session and a marker.
type SessionScoreRequest struct {
	SessionID string `json:"session_id"`
	MarkerID  string `json:"marker_id"`
}

// SessionScoreResponse is the aggregated score of a marker within a session.
type SessionScoreResponse struct {
	SessionID string  `json:"session_id"`
	MarkerID  string  `json:"marker_id"`
	RawScore  float64 `json:"raw_score"`
	Score     float64 `json:"score"`
}

// ReloadResponse reports the catalog after a reload.
type ReloadResponse struct {
	Markers  int      `json:"markers"`
	Rejected []string `json:"rejected,omitempty"`
}

// StatusResponse describes the running service.
type StatusResponse struct {
	Status        string       `json:"status"`
	Markers       MarkerCounts `json:"markers"`
	NLP           NLPStatus    `json:"nlp"`
	Cache         CacheStatus  `json:"cache"`
	History       bool         `json:"history_enabled"`
	Phases        []string     `json:"phases"`
	LatencyP95Ms  float64      `json:"latency_p95_ms"`
	Analyses      int          `json:"analyses"`
	CatalogLoaded string       `json:"catalog_loaded_at,omitempty"`
}

// MarkerCounts breaks the catalog down by marker type.
type MarkerCounts struct {
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	Schemas []string       `json:"schemas,omitempty"`
}

// NLPStatus reports the enrichment backend.
type NLPStatus struct {
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
}

// CacheStatus reports the analysis cache.
type CacheStatus struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"`
}

// EncodeStruct converts v into a Struct through its JSON form.
func EncodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// DecodeStruct fills out from s. A nil Struct decodes as an empty object.
func DecodeStruct(s *structpb.Struct, out any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
