package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// HistoryEnabled reports whether session events are recorded.
func (p *Pipeline) HistoryEnabled() bool {
	return p.opts.History != nil && p.opts.Markers != nil && p.opts.Scorer != nil
}

// recordSession appends every finalized marker as a session event and attaches the
// aggregated scores. Per-marker failures are logged and the marker is left out.
func (p *Pipeline) recordSession(ctx context.Context, sessionID string, result *models.AnalysisResult) {
	if sessionID == "" || !p.HistoryEnabled() || len(result.Markers) == 0 {
		return
	}

	now := utils.EpochSeconds(p.now())
	scores := make(map[string]models.ScoreResult, len(result.Markers))
	for _, dm := range result.Markers {
		event := models.Event{Timestamp: now, Weight: models.Float(dm.Confidence)}
		if err := p.opts.History.Append(ctx, sessionID, dm.MarkerID, event); err != nil {
			p.logger.Warn("record session event", slog.String("session_id", sessionID), slog.String("marker_id", dm.MarkerID), slog.Any("error", err))
			continue
		}
		score, err := p.SessionScore(ctx, sessionID, dm.MarkerID)
		if err != nil {
			p.logger.Warn("session score", slog.String("session_id", sessionID), slog.String("marker_id", dm.MarkerID), slog.Any("error", err))
			continue
		}
		scores[dm.MarkerID] = score
	}
	if len(scores) > 0 {
		result.SessionScores = scores
	}
}

func (p *Pipeline) recordCachedSession(ctx context.Context, sessionID string, result *models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("session recording panicked", slog.String("session_id", sessionID), slog.Any("panic", r))
		}
	}()
	result.SessionScores = nil
	p.recordSession(ctx, sessionID, result)
}

// SessionScore aggregates the recorded events of one marker within a session.
func (p *Pipeline) SessionScore(ctx context.Context, sessionID, markerID string) (models.ScoreResult, error) {
	if !p.HistoryEnabled() {
		return models.ScoreResult{}, utils.ConfigurationError("pipeline.session_score", "session history is disabled", nil)
	}
	marker, ok := p.opts.Markers.Get(markerID)
	if !ok {
		return models.ScoreResult{}, utils.ConfigurationError("pipeline.session_score", fmt.Sprintf("unknown marker %s", markerID), nil)
	}
	events, err := p.opts.History.Events(ctx, sessionID, markerID)
	if err != nil {
		return models.ScoreResult{}, fmt.Errorf("load session events: %w", err)
	}
	return p.opts.Scorer.Aggregate(marker, events)
}
