// Package engine sequences the three analysis phases for a single text and assembles the
// result envelope.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/miradorstack/marker-engine/internal/cache"
	"github.com/miradorstack/marker-engine/internal/history"
	"github.com/miradorstack/marker-engine/internal/metrics"
	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/nlp"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// Metadata keys written to the analysis context.
const (
	metaPhase1Count   = "phase1_marker_count"
	metaPhase1Error   = "phase1_error"
	metaNLPSkipped    = "nlp_skipped"
	metaPhase2Error   = "phase2_error"
	metaPhase3Added   = "phase3_markers_added"
	metaPhase3Error   = "phase3_error"
	metaCancelled     = "cancelled"
	metaNLPService    = "nlp_service"
	defaultSchemaPart = "default"
)

// Keys of AnalysisResult.PerformanceMetrics, in milliseconds.
const (
	TimingPhase1 = "phase1_initial_scan"
	TimingPhase2 = "phase2_nlp_enrichment"
	TimingPhase3 = "phase3_contextual_rescan"
	TimingTotal  = "total"
)

// Scanner runs the literal scan and the contextual rescan.
type Scanner interface {
	InitialScan(ctx context.Context, text, schemaID string) ([]models.DetectedMarker, error)
	ContextualRescan(ctx context.Context, actx *models.AnalysisContext) ([]models.DetectedMarker, error)
}

// MarkerLookup resolves marker definitions for session scoring.
type MarkerLookup interface {
	Get(id string) (*models.Marker, bool)
}

// Scorer aggregates a marker's session events into a score.
type Scorer interface {
	Aggregate(marker *models.Marker, events []models.Event) (models.ScoreResult, error)
}

// Options carries the optional collaborators of a Pipeline.
type Options struct {
	Cache         cache.Provider
	CacheTTL      time.Duration
	History       history.Store
	Markers       MarkerLookup
	Scorer        Scorer
	MaxTextLength int
	BatchWorkers  int
}

// Pipeline orchestrates initial scan, NLP enrichment and contextual rescan.
type Pipeline struct {
	logger   *slog.Logger
	scanner  Scanner
	enricher nlp.Enricher
	opts     Options
	now      func() time.Time
}

// NewPipeline constructs a pipeline. A nil enricher behaves as an unavailable one and a
// nil cache disables caching.
func NewPipeline(logger *slog.Logger, scanner Scanner, enricher nlp.Enricher, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if enricher == nil {
		enricher = nlp.Unavailable{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopProvider{}
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 100000
	}
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = 4
	}
	return &Pipeline{
		logger:   logger,
		scanner:  scanner,
		enricher: enricher,
		opts:     opts,
		now:      time.Now,
	}
}

// EnricherName reports the configured NLP backend.
func (p *Pipeline) EnricherName() string { return p.enricher.Name() }

// EnricherAvailable reports whether phase 2 would currently run.
func (p *Pipeline) EnricherAvailable() bool { return p.enricherAvailable() }

// Validate rejects requests the pipeline refuses to analyse.
func (p *Pipeline) Validate(req models.AnalysisRequest) error {
	if req.Text == "" {
		return utils.ConfigurationError("pipeline.validate", "text must not be empty", nil)
	}
	if n := utf8.RuneCountInString(req.Text); n > p.opts.MaxTextLength {
		return utils.ConfigurationError("pipeline.validate", fmt.Sprintf("text has %d characters, limit is %d", n, p.opts.MaxTextLength), nil)
	}
	return nil
}

// Analyze runs one request through every phase. The returned error is only set for
// invalid requests; phase and pipeline failures are reported inside the envelope.
func (p *Pipeline) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if err := p.Validate(req); err != nil {
		return models.AnalysisResult{}, err
	}
	if p.scanner == nil {
		return models.AnalysisResult{}, utils.ConfigurationError("pipeline.analyze", "marker scanner not configured", nil)
	}

	key := CacheKey(req.SchemaID, req.Text)
	if cached, ok := p.lookup(ctx, key); ok {
		cached.FromCache = true
		cached.Metadata.SessionID = req.SessionID
		p.recordCachedSession(ctx, req.SessionID, &cached)
		return cached, nil
	}

	start := p.now()
	actx := models.NewAnalysisContext(req.Text, req.SchemaID, req.SessionID)
	timings := make(map[string]float64, 4)

	result, err := p.run(ctx, actx, timings)
	if err != nil {
		p.logger.Error("analysis failed", slog.String("request_id", actx.RequestID), slog.Any("error", err))
		result = errorResult(actx, err)
	}
	timings[TimingTotal] = utils.Milliseconds(p.now().Sub(start))
	result.PerformanceMetrics = timings

	if result.Status == models.StatusSuccess && !result.Metadata.Cancelled {
		p.store(ctx, key, result)
		observeMarkers(result.Markers)
	}

	p.logger.Info("analysis complete",
		slog.String("request_id", actx.RequestID),
		slog.String("status", result.Status),
		slog.Int("markers", result.MarkerCount),
		slog.Float64("total_ms", timings[TimingTotal]),
	)
	return result, nil
}

// run executes the phases and assembles the envelope. Panics escaping the phase
// boundaries surface as a pipeline error.
func (p *Pipeline) run(ctx context.Context, actx *models.AnalysisContext, timings map[string]float64) (result models.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.Recovered(utils.ErrPipeline, "pipeline.run", r)
		}
	}()

	p.phase1(ctx, actx, timings)
	if !p.cancelled(ctx, actx) {
		p.phase2(ctx, actx, timings)
	}
	if !p.cancelled(ctx, actx) {
		p.phase3(ctx, actx, timings)
	}

	result = buildResult(actx)
	p.recordSession(ctx, actx.SessionID, &result)
	return result, nil
}

func (p *Pipeline) cancelled(ctx context.Context, actx *models.AnalysisContext) bool {
	if actx.MetaBool(metaCancelled) {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	actx.Metadata[metaCancelled] = true
	p.logger.Warn("analysis cancelled between phases", slog.String("request_id", actx.RequestID), slog.Any("error", ctx.Err()))
	return true
}

func (p *Pipeline) phase1(ctx context.Context, actx *models.AnalysisContext, timings map[string]float64) {
	start := p.now()
	defer p.finishPhase(TimingPhase1, start, timings, actx)

	markers, err := p.guard("pipeline.phase1", func() ([]models.DetectedMarker, error) {
		return p.scanner.InitialScan(ctx, actx.Text, actx.SchemaID)
	})
	if err != nil {
		p.phaseFailed(actx, TimingPhase1, metaPhase1Error, err)
		actx.DetectedMarkers = []models.DetectedMarker{}
		return
	}
	actx.DetectedMarkers = markers
	actx.Metadata[metaPhase1Count] = len(markers)
	p.logger.Info("phase 1 complete", slog.String("request_id", actx.RequestID), slog.Int("markers", len(markers)))
}

func (p *Pipeline) phase2(ctx context.Context, actx *models.AnalysisContext, timings map[string]float64) {
	start := p.now()
	defer p.finishPhase(TimingPhase2, start, timings, actx)

	if !p.enricherAvailable() {
		p.logger.Warn("nlp enricher unavailable, skipping enrichment", slog.String("request_id", actx.RequestID), slog.String("enricher", p.enricher.Name()))
		actx.Metadata[metaNLPSkipped] = true
		return
	}

	_, err := p.guard("pipeline.phase2", func() ([]models.DetectedMarker, error) {
		return nil, p.enricher.Enrich(ctx, actx)
	})
	if err != nil {
		actx.ResetEnrichment()
		p.phaseFailed(actx, TimingPhase2, metaPhase2Error, err)
		return
	}

	summary := &models.EnrichmentSummary{
		Tokens:     len(actx.Tokens),
		Sentences:  len(actx.Sentences),
		Entities:   len(actx.NamedEntities),
		NLPService: actx.MetaString(metaNLPService),
	}
	if summary.NLPService == "" {
		summary.NLPService = "unknown"
	}
	actx.Metadata["phase2_enrichment"] = summary
	p.logger.Info("phase 2 complete",
		slog.String("request_id", actx.RequestID),
		slog.Int("tokens", summary.Tokens),
		slog.Int("sentences", summary.Sentences),
		slog.String("nlp_service", summary.NLPService),
	)
}

func (p *Pipeline) phase3(ctx context.Context, actx *models.AnalysisContext, timings map[string]float64) {
	if actx.MetaBool(metaNLPSkipped) {
		p.logger.Info("phase 3 skipped", slog.String("request_id", actx.RequestID))
		return
	}
	start := p.now()
	defer p.finishPhase(TimingPhase3, start, timings, actx)

	markers, err := p.guard("pipeline.phase3", func() ([]models.DetectedMarker, error) {
		return p.scanner.ContextualRescan(ctx, actx)
	})
	if err != nil {
		p.phaseFailed(actx, TimingPhase3, metaPhase3Error, err)
		return
	}
	added := actx.Merge(markers)
	actx.Metadata[metaPhase3Added] = added
	p.logger.Info("phase 3 complete", slog.String("request_id", actx.RequestID), slog.Int("markers_added", added))
}

// guard runs fn and turns a returned error or a panic into a phase error.
func (p *Pipeline) guard(op string, fn func() ([]models.DetectedMarker, error)) (markers []models.DetectedMarker, err error) {
	defer func() {
		if r := recover(); r != nil {
			markers = nil
			err = utils.Recovered(utils.ErrPhase, op, r)
		}
	}()
	markers, err = fn()
	if err != nil && !errors.Is(err, utils.ErrPhase) {
		err = utils.PhaseError(op, "phase failed", err)
	}
	return markers, err
}

func (p *Pipeline) enricherAvailable() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("nlp availability probe panicked", slog.Any("panic", r))
			ok = false
		}
	}()
	return p.enricher.IsAvailable()
}

func (p *Pipeline) phaseFailed(actx *models.AnalysisContext, phase, key string, err error) {
	actx.Metadata[key] = err.Error()
	metrics.PhaseFailed(phase)
	p.logger.Warn("phase failed", slog.String("request_id", actx.RequestID), slog.String("phase", phase), slog.Any("error", err))
}

func (p *Pipeline) finishPhase(phase string, start time.Time, timings map[string]float64, actx *models.AnalysisContext) {
	elapsed := p.now().Sub(start)
	timings[phase] = utils.Milliseconds(elapsed)
	metrics.ObservePhase(phase, elapsed)
	p.logger.Debug("phase timing", slog.String("request_id", actx.RequestID), slog.String("phase", phase), slog.Float64("duration_ms", timings[phase]))
}

// CacheKey derives the analysis cache key for a schema filter and text.
func CacheKey(schemaID, text string) string {
	sum := sha256.Sum256([]byte(text))
	schema := schemaID
	if schema == "" {
		schema = defaultSchemaPart
	}
	return "analysis:" + schema + ":" + hex.EncodeToString(sum[:])
}

func (p *Pipeline) lookup(ctx context.Context, key string) (result models.AnalysisResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("cache lookup panicked", slog.Any("panic", r))
			metrics.CacheLookup(metrics.CacheError)
			ok = false
		}
	}()

	payload, err := p.opts.Cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			metrics.CacheLookup(metrics.CacheMiss)
		} else {
			metrics.CacheLookup(metrics.CacheError)
			p.logger.Warn("cache lookup failed", slog.String("key", key), slog.Any("error", err))
		}
		return models.AnalysisResult{}, false
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		metrics.CacheLookup(metrics.CacheError)
		p.logger.Warn("discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		return models.AnalysisResult{}, false
	}
	metrics.CacheLookup(metrics.CacheHit)
	return result, true
}

func (p *Pipeline) store(ctx context.Context, key string, result models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("cache store panicked", slog.Any("panic", r))
		}
	}()

	result.SessionScores = nil
	payload, err := json.Marshal(result)
	if err != nil {
		p.logger.Warn("encode analysis for cache", slog.Any("error", err))
		return
	}
	if err := p.opts.Cache.Set(ctx, key, payload, p.opts.CacheTTL); err != nil {
		p.logger.Warn("cache store failed", slog.String("key", key), slog.Any("error", err))
	}
}

func buildResult(actx *models.AnalysisContext) models.AnalysisResult {
	markers := actx.DetectedMarkers
	if markers == nil {
		markers = []models.DetectedMarker{}
	}

	phase1Count, _ := actx.Metadata[metaPhase1Count].(int)
	phase3Added, _ := actx.Metadata[metaPhase3Added].(int)
	enrichment, _ := actx.Metadata["phase2_enrichment"].(*models.EnrichmentSummary)
	nlpService := actx.MetaString(metaNLPService)
	if nlpService == "" {
		nlpService = "none"
	}
	cancelled := actx.MetaBool(metaCancelled)
	skipped := actx.MetaBool(metaNLPSkipped)
	enriched := enrichment != nil
	phase2Skipped := skipped || (cancelled && !enriched && actx.MetaString(metaPhase2Error) == "")

	return models.AnalysisResult{
		RequestID:   actx.RequestID,
		Status:      models.StatusSuccess,
		Text:        actx.Text,
		Markers:     markers,
		MarkerCount: len(markers),
		NLPEnriched: enriched,
		Metadata: models.ResultMetadata{
			SessionID: actx.SessionID,
			SchemaID:  actx.SchemaID,
			Phases: models.PhaseReport{
				Phase1: models.Phase1Report{MarkersFound: phase1Count, Error: actx.MetaString(metaPhase1Error)},
				Phase2: models.Phase2Report{Skipped: phase2Skipped, Enrichment: enrichment, Error: actx.MetaString(metaPhase2Error)},
				Phase3: models.Phase3Report{Skipped: skipped || cancelled, MarkersAdded: phase3Added, Error: actx.MetaString(metaPhase3Error)},
			},
			NLPService: nlpService,
			Cancelled:  cancelled,
		},
		Summary: models.Summarize(markers),
	}
}

func errorResult(actx *models.AnalysisContext, err error) models.AnalysisResult {
	return models.AnalysisResult{
		RequestID:   actx.RequestID,
		Status:      models.StatusError,
		Error:       err.Error(),
		Text:        actx.Text,
		Markers:     []models.DetectedMarker{},
		MarkerCount: 0,
		Metadata: models.ResultMetadata{
			SessionID:      actx.SessionID,
			SchemaID:       actx.SchemaID,
			NLPService:     "none",
			PartialResults: len(actx.DetectedMarkers),
		},
		Summary: models.Summarize(nil),
	}
}

func observeMarkers(markers []models.DetectedMarker) {
	counts := make(map[models.MarkerType]int)
	for _, m := range markers {
		counts[m.MarkerType]++
	}
	for t, n := range counts {
		metrics.MarkersDetected(string(t), n)
	}
}
