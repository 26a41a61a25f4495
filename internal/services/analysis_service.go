package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/marker-engine/internal/api"
	"github.com/miradorstack/marker-engine/internal/engine"
	"github.com/miradorstack/marker-engine/internal/metrics"
	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/repo"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// CacheInfo describes the configured analysis cache for status reports.
type CacheInfo struct {
	Enabled bool
	Type    string
}

// AnalysisService implements the gRPC MarkerEngine service.
type AnalysisService struct {
	api.UnimplementedMarkerEngineServer

	logger    *slog.Logger
	pipeline  *engine.Pipeline
	store     *repo.Store
	loader    repo.Loader
	cache     CacheInfo
	latencies *utils.LatencyTracker
	analyses  atomic.Int64
}

const (
	latencyWindow   = 1024
	latencyLogEvery = 20
)

// NewAnalysisService constructs the service facade. loader may be nil, in which case
// ReloadMarkers is refused.
func NewAnalysisService(logger *slog.Logger, pipeline *engine.Pipeline, store *repo.Store, loader repo.Loader, cache CacheInfo) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	if cache.Type == "" {
		cache.Type = "none"
	}
	return &AnalysisService{
		logger:    logger,
		pipeline:  pipeline,
		store:     store,
		loader:    loader,
		cache:     cache,
		latencies: utils.NewLatencyTracker(latencyWindow),
	}
}

// Analyze runs one text through the pipeline.
func (s *AnalysisService) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	var req api.AnalyzeRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := s.AnalyzeRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return encode(result)
}

// AnalyzeRequest is Analyze without the transport envelope.
func (s *AnalysisService) AnalyzeRequest(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if s.pipeline == nil {
		return models.AnalysisResult{}, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	s.logger.Debug("Analyze called", slog.Int("text_length", len(req.Text)), slog.String("schema_id", req.SchemaID), slog.String("session_id", req.SessionID))

	start := time.Now()
	result, err := s.pipeline.Analyze(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		return models.AnalysisResult{}, toStatus(err)
	}
	s.observe(duration, result)
	return result, nil
}

// AnalyzeBatch runs every request of the batch on the pipeline's worker pool.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	var req api.BatchRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if len(req.Requests) == 0 {
		return nil, status.Error(codes.InvalidArgument, "requests cannot be empty")
	}

	start := time.Now()
	results := s.pipeline.AnalyzeBatch(ctx, req.Requests)
	elapsed := time.Since(start)
	for _, r := range results {
		s.observe(elapsed/time.Duration(len(results)), r)
	}
	s.logger.Info("batch analysed", slog.Int("requests", len(results)), slog.Duration("elapsed", elapsed))
	return encode(api.BatchResponse{Results: results})
}

// SessionScore returns the aggregated score of a marker within a session.
func (s *AnalysisService) SessionScore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	var req api.SessionScoreRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionID == "" || req.MarkerID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id and marker_id are required")
	}

	score, err := s.pipeline.SessionScore(ctx, req.SessionID, req.MarkerID)
	if err != nil {
		s.logger.Warn("session score failed", slog.String("session_id", req.SessionID), slog.String("marker_id", req.MarkerID), slog.Any("error", err))
		return nil, toStatus(err)
	}
	return encode(api.SessionScoreResponse{
		SessionID: req.SessionID,
		MarkerID:  req.MarkerID,
		RawScore:  score.RawScore,
		Score:     score.Score,
	})
}

// ReloadMarkers reloads definitions from the configured source and swaps the catalog.
// Rejected definitions are reported; the valid remainder is installed.
func (s *AnalysisService) ReloadMarkers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.store == nil || s.loader == nil {
		return nil, status.Error(codes.FailedPrecondition, "marker source not configured")
	}

	count, err := s.store.Reload(ctx, s.loader)
	resp := api.ReloadResponse{Markers: count}
	if err != nil {
		if !errors.Is(err, utils.ErrConfiguration) {
			s.logger.Error("reload markers failed", slog.Any("error", err))
			return nil, status.Error(codes.Internal, "failed to load marker definitions")
		}
		resp.Rejected = splitErrors(err)
	}
	metrics.SetCatalogSize(count)
	s.logger.Info("markers reloaded", slog.Int("markers", count), slog.Int("rejected", len(resp.Rejected)))
	return encode(resp)
}

// Status reports catalog, NLP and cache state.
func (s *AnalysisService) Status(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.StatusReport())
}

// StatusReport is Status without the transport envelope.
func (s *AnalysisService) StatusReport() api.StatusResponse {
	resp := api.StatusResponse{
		Status:       "ok",
		Markers:      api.MarkerCounts{ByType: map[string]int{}},
		Cache:        api.CacheStatus{Enabled: s.cache.Enabled, Type: s.cache.Type},
		Phases:       []string{"initial_scan"},
		LatencyP95Ms: utils.Milliseconds(s.LatencyP95()),
		Analyses:     int(s.analyses.Load()),
	}
	if s.store != nil {
		snapshot := s.store.Snapshot()
		resp.Markers.Total = snapshot.Count()
		resp.Markers.Schemas = snapshot.Schemas()
		for t, n := range snapshot.CountByType() {
			resp.Markers.ByType[string(t)] = n
		}
		if !snapshot.LoadedAt().IsZero() {
			resp.CatalogLoaded = snapshot.LoadedAt().UTC().Format(time.RFC3339)
		}
	}
	if s.pipeline != nil {
		resp.NLP = api.NLPStatus{Backend: s.pipeline.EnricherName(), Available: s.pipeline.EnricherAvailable()}
		resp.History = s.pipeline.HistoryEnabled()
	}
	if resp.NLP.Available {
		resp.Phases = append(resp.Phases, "nlp_enrichment", "contextual_rescan")
	} else {
		resp.Status = "degraded"
	}
	return resp
}

// LatencyP95 returns the current p95 analysis latency.
func (s *AnalysisService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *AnalysisService) observe(duration time.Duration, result models.AnalysisResult) {
	outcome := metrics.OutcomeSuccess
	switch {
	case result.Status == models.StatusError:
		outcome = metrics.OutcomeError
	case result.FromCache:
		outcome = metrics.OutcomeCached
	}
	metrics.ObserveAnalysis(duration, outcome)
	s.latencies.Observe(duration)
	if n := s.analyses.Add(1); n%latencyLogEvery == 0 {
		s.logger.Info("analysis latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int64("analyses", n),
			slog.Int("samples", s.latencies.Count()),
		)
	}
}

func encode(v any) (*structpb.Struct, error) {
	out, err := api.EncodeStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, utils.ErrConfiguration):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func splitErrors(err error) []string {
	var messages []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			messages = append(messages, e.Error())
		}
	} else {
		messages = append(messages, err.Error())
	}
	sort.Strings(messages)
	return messages
}
