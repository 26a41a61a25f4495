// Package markers runs the two marker scans: the literal scan over atomic and signal
// markers and the contextual rescan over composed and meta markers.
package markers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// Repository serves marker definitions by id prefix. An empty schemaID matches every schema.
type Repository interface {
	FindByIDPrefix(ctx context.Context, prefixes []string, schemaID string) ([]*models.Marker, error)
}

// Activator decides whether a composite marker fires.
type Activator interface {
	CheckActivation(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) models.ActivationOutcome
}

// Service scans texts for markers. It keeps no per-request state.
type Service struct {
	repo      Repository
	activator Activator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires a Service.
func NewService(repo Repository, activator Activator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, activator: activator, logger: logger, now: time.Now}
}

// InitialScan matches atomic and signal markers against the raw text.
func (s *Service) InitialScan(ctx context.Context, text, schemaID string) ([]models.DetectedMarker, error) {
	candidates, err := s.repo.FindByIDPrefix(ctx, models.InitialPrefixes, schemaID)
	if err != nil {
		return nil, fmt.Errorf("load initial markers: %w", err)
	}

	lowered := strings.ToLower(text)
	detected := make([]models.DetectedMarker, 0)
	for _, m := range candidates {
		dm, ok, err := s.scanOne(m, text, lowered)
		if err != nil {
			s.logger.Error("marker scan failed", slog.String("marker_id", m.ID), slog.Any("error", err))
			continue
		}
		if ok {
			detected = append(detected, dm)
		}
	}

	s.logger.Debug("initial scan complete", slog.Int("candidates", len(candidates)), slog.Int("detected", len(detected)))
	return detected, nil
}

func (s *Service) scanOne(m *models.Marker, text, lowered string) (dm models.DetectedMarker, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.Recovered(utils.ErrDetection, "markers.scan", r)
		}
	}()
	if m.IsComposite() {
		return dm, false, nil
	}

	var matched []string
	for _, example := range m.Examples {
		if example != "" && strings.Contains(lowered, strings.ToLower(example)) {
			matched = append(matched, example)
		}
	}
	patternHits := 0
	for _, re := range m.Patterns() {
		if re.MatchString(text) {
			patternHits++
		}
	}
	signalHit := false
	for _, signal := range m.Frame.Signal {
		if signal != "" && strings.Contains(lowered, strings.ToLower(signal)) {
			signalHit = true
			break
		}
	}
	if len(matched) == 0 && patternHits == 0 && !signalHit {
		return dm, false, nil
	}

	confidence := math.Min(1, 0.3*float64(len(matched)))
	for i := 0; i < patternHits && confidence < 1; i++ {
		confidence = math.Min(1, confidence+0.4)
	}

	frame := m.Frame
	return models.DetectedMarker{
		MarkerID:        m.ID,
		MarkerType:      m.Type(),
		Confidence:      confidence,
		DetectionPhase:  models.PhaseInitial,
		DetectedAt:      s.now().UTC(),
		Frame:           &frame,
		ExamplesMatched: matched,
	}, true, nil
}

// ContextualRescan evaluates composed and meta markers against everything detected so far.
// It does not modify actx; callers merge the returned markers.
func (s *Service) ContextualRescan(ctx context.Context, actx *models.AnalysisContext) ([]models.DetectedMarker, error) {
	candidates, err := s.repo.FindByIDPrefix(ctx, models.ContextualPrefixes, actx.SchemaID)
	if err != nil {
		return nil, fmt.Errorf("load contextual markers: %w", err)
	}

	detectedIDs := actx.DetectedIDs()
	activated := make([]models.DetectedMarker, 0)
	for _, m := range candidates {
		outcome, err := s.activate(m, actx, detectedIDs)
		if err != nil {
			s.logger.Error("marker activation failed", slog.String("marker_id", m.ID), slog.Any("error", err))
			continue
		}
		if !outcome.Activated {
			continue
		}
		frame := m.Frame
		activated = append(activated, models.DetectedMarker{
			MarkerID:       m.ID,
			MarkerType:     m.Type(),
			Confidence:     outcome.Confidence,
			DetectionPhase: models.PhaseContextual,
			DetectedAt:     s.now().UTC(),
			Frame:          &frame,
			Components:     outcome.Components,
			ActivationRule: outcome.RuleType,
			NLPEnhanced:    outcome.NLPEnhanced,
		})
	}

	s.logger.Debug("contextual rescan complete",
		slog.String("request_id", actx.RequestID),
		slog.Int("candidates", len(candidates)),
		slog.Int("activated", len(activated)),
	)
	return activated, nil
}

func (s *Service) activate(m *models.Marker, actx *models.AnalysisContext, detected models.IDSet) (outcome models.ActivationOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.Recovered(utils.ErrDetection, "markers.activate", r)
		}
	}()
	return s.activator.CheckActivation(m, actx, detected), nil
}
