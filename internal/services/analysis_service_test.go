package services

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/marker-engine/internal/activation"
	"github.com/miradorstack/marker-engine/internal/api"
	"github.com/miradorstack/marker-engine/internal/cache"
	"github.com/miradorstack/marker-engine/internal/engine"
	"github.com/miradorstack/marker-engine/internal/history"
	"github.com/miradorstack/marker-engine/internal/lexicon"
	"github.com/miradorstack/marker-engine/internal/markers"
	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/nlp"
	"github.com/miradorstack/marker-engine/internal/repo"
	"github.com/miradorstack/marker-engine/internal/scoring"
	"github.com/miradorstack/marker-engine/internal/utils"
)

const definitions = `
markers:
  - id: S_A
    examples: ["bin müde"]
  - id: S_B
    examples: ["will reden"]
  - id: C_AB
    examples: ["müde aber gesprächsbereit"]
    composed_of: [S_A, S_B]
    activation:
      type: ALL
`

func newTestService(t *testing.T, yamlBody string) *AnalysisService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markers.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write markers: %v", err)
	}
	source := repo.YAMLSource{Path: path}
	store := repo.NewStore(nil)
	if _, err := store.Reload(context.Background(), source); err != nil {
		t.Fatalf("load markers: %v", err)
	}

	index := lexicon.NewIndex(lexicon.Default())
	pipeline := engine.NewPipeline(nil,
		markers.NewService(store, activation.NewEngine(index, nil), nil),
		nlp.NewBasicEnricher(index),
		engine.Options{
			Cache:   cache.NewMemoryProvider(),
			History: history.NewMemoryStore(0),
			Markers: store,
			Scorer:  scoring.NewAggregator(scoring.DefaultSettings(), nil),
		},
	)
	return NewAnalysisService(nil, pipeline, store, source, CacheInfo{Enabled: true, Type: "memory"})
}

func mustStruct(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	s, err := api.EncodeStruct(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return s
}

func TestAnalyzeReturnsEnvelope(t *testing.T) {
	svc := newTestService(t, definitions)

	out, err := svc.Analyze(context.Background(), mustStruct(t, api.AnalyzeRequest{Text: "Ich bin müde, aber ich will reden.", SessionID: "s1"}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var resp api.AnalyzeResponse
	if err := api.DecodeStruct(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != models.StatusSuccess || resp.MarkerCount != 3 || !resp.NLPEnriched {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if _, ok := resp.SessionScores["C_AB"]; !ok {
		t.Fatalf("expected session score for C_AB, got %+v", resp.SessionScores)
	}

	cached, err := svc.AnalyzeRequest(context.Background(), models.AnalysisRequest{Text: "Ich bin müde, aber ich will reden."})
	if err != nil {
		t.Fatalf("AnalyzeRequest: %v", err)
	}
	if !cached.FromCache {
		t.Fatalf("second identical analysis should be served from cache")
	}
	if svc.StatusReport().Analyses != 2 {
		t.Fatalf("expected two observed analyses")
	}
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	svc := newTestService(t, definitions)
	_, err := svc.Analyze(context.Background(), mustStruct(t, api.AnalyzeRequest{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if _, err := svc.Analyze(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for nil request, got %v", err)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	svc := newTestService(t, definitions)
	out, err := svc.AnalyzeBatch(context.Background(), mustStruct(t, api.BatchRequest{Requests: []models.AnalysisRequest{
		{Text: "ich bin müde"}, {Text: ""}, {Text: "ich will reden"},
	}}))
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	var resp api.BatchResponse
	if err := api.DecodeStruct(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	if resp.Results[1].Status != models.StatusError {
		t.Fatalf("empty text should yield an error envelope, got %+v", resp.Results[1])
	}
	if resp.Results[0].MarkerCount != 1 || resp.Results[2].MarkerCount != 1 {
		t.Fatalf("unexpected batch results %+v", resp.Results)
	}

	if _, err := svc.AnalyzeBatch(context.Background(), mustStruct(t, api.BatchRequest{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty batch, got %v", err)
	}
}

func TestSessionScore(t *testing.T) {
	svc := newTestService(t, definitions)
	for i := 0; i < 2; i++ {
		text := []string{"ich bin müde", "ich bin müde heute"}[i]
		if _, err := svc.AnalyzeRequest(context.Background(), models.AnalysisRequest{Text: text, SessionID: "s1"}); err != nil {
			t.Fatalf("AnalyzeRequest: %v", err)
		}
	}

	out, err := svc.SessionScore(context.Background(), mustStruct(t, api.SessionScoreRequest{SessionID: "s1", MarkerID: "S_A"}))
	if err != nil {
		t.Fatalf("SessionScore: %v", err)
	}
	var resp api.SessionScoreResponse
	if err := api.DecodeStruct(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RawScore <= 0 || resp.MarkerID != "S_A" {
		t.Fatalf("unexpected score %+v", resp)
	}

	_, err = svc.SessionScore(context.Background(), mustStruct(t, api.SessionScoreRequest{SessionID: "s1"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	_, err = svc.SessionScore(context.Background(), mustStruct(t, api.SessionScoreRequest{SessionID: "s1", MarkerID: "S_NOPE"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for unknown marker, got %v", err)
	}
}

func TestReloadMarkersReportsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	if err := os.WriteFile(path, []byte(definitions), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := repo.NewStore(nil)
	svc := NewAnalysisService(nil, nil, store, repo.YAMLSource{Path: path}, CacheInfo{})

	out, err := svc.ReloadMarkers(context.Background(), nil)
	if err != nil {
		t.Fatalf("ReloadMarkers: %v", err)
	}
	var resp api.ReloadResponse
	if err := api.DecodeStruct(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Markers != 3 || len(resp.Rejected) != 0 {
		t.Fatalf("unexpected reload %+v", resp)
	}

	broken := definitions + "  - id: S_BAD\n    examples: [x]\n    pattern: \"(\"\n"
	if err := os.WriteFile(path, []byte(broken), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err = svc.ReloadMarkers(context.Background(), nil)
	if err != nil {
		t.Fatalf("ReloadMarkers: %v", err)
	}
	resp = api.ReloadResponse{}
	if err := api.DecodeStruct(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Markers != 3 || len(resp.Rejected) != 1 {
		t.Fatalf("expected one rejected definition, got %+v", resp)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := svc.ReloadMarkers(context.Background(), nil); status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal for a missing source, got %v", err)
	}
	if store.Count() != 3 {
		t.Fatalf("a failed reload must keep the current catalog")
	}
}

func TestStatusReport(t *testing.T) {
	svc := newTestService(t, definitions)
	report := svc.StatusReport()
	if report.Status != "ok" || report.Markers.Total != 3 {
		t.Fatalf("unexpected status %+v", report)
	}
	if report.Markers.ByType["S"] != 2 || report.Markers.ByType["C"] != 1 {
		t.Fatalf("unexpected type counts %+v", report.Markers.ByType)
	}
	if report.NLP.Backend != "basic" || !report.NLP.Available || !report.History {
		t.Fatalf("unexpected nlp/history status %+v", report)
	}
	if len(report.Phases) != 3 || report.Cache.Type != "memory" {
		t.Fatalf("unexpected phases/cache %+v", report)
	}

	bare := NewAnalysisService(nil, nil, nil, nil, CacheInfo{})
	if got := bare.StatusReport(); got.Status != "degraded" || got.Cache.Type != "none" {
		t.Fatalf("unexpected bare status %+v", got)
	}
	if _, err := bare.ReloadMarkers(context.Background(), nil); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestObserveCountsPastLatencyWindow(t *testing.T) {
	var buf bytes.Buffer
	svc := &AnalysisService{
		logger:    slog.New(slog.NewTextHandler(&buf, nil)),
		latencies: utils.NewLatencyTracker(8),
	}
	for i := 0; i < 2*latencyLogEvery; i++ {
		svc.observe(time.Millisecond, models.AnalysisResult{Status: models.StatusSuccess})
	}

	if got := svc.StatusReport().Analyses; got != 2*latencyLogEvery {
		t.Fatalf("expected %d analyses, got %d", 2*latencyLogEvery, got)
	}
	if got := strings.Count(buf.String(), "analysis latency"); got != 2 {
		t.Fatalf("expected two latency log lines, got %d:\n%s", got, buf.String())
	}
}
