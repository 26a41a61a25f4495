package scoring

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// Type classes used to pick window defaults.
const (
	ClassAtomic   = "ATO"
	ClassSemantic = "SEM"
	ClassCluster  = "CLU"
	ClassMeta     = "MEMA"
)

// Defaults are the global scoring settings layered under every marker.
type Defaults struct {
	Scoring models.ScoringConfig
	Windows map[string]models.WindowConfig
}

// DefaultSettings returns the built-in global scoring block and class windows.
func DefaultSettings() Defaults {
	return Defaults{
		Scoring: models.ScoringConfig{
			Formula:   models.FormulaLinear,
			Threshold: models.Float(1),
			Base:      models.Float(1),
			Weight:    models.Float(1),
		},
		Windows: map[string]models.WindowConfig{
			ClassAtomic:   {Messages: models.Int(10)},
			ClassSemantic: {Messages: models.Int(20)},
			ClassCluster:  {Messages: models.Int(50)},
			ClassMeta:     {Seconds: models.Float(172800)},
		},
	}
}

// ClassOf maps a marker id to its window class, or "" when none applies.
func ClassOf(id string) string {
	if strings.HasPrefix(id, "MM") {
		return ClassMeta
	}
	if id == "" {
		return ""
	}
	switch id[0] {
	case 'A':
		return ClassAtomic
	case 'S':
		return ClassSemantic
	case 'C':
		return ClassCluster
	default:
		return ""
	}
}

// Aggregator computes time-aware scores. The zero value is not usable; use NewAggregator.
type Aggregator struct {
	defaults Defaults
	now      func() time.Time
	logger   *slog.Logger
}

// NewAggregator builds an aggregator over defaults.
func NewAggregator(defaults Defaults, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.Windows == nil {
		defaults.Windows = map[string]models.WindowConfig{}
	}
	return &Aggregator{defaults: defaults, now: time.Now, logger: logger}
}

// WithClock returns a copy of the aggregator reading time from now.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	clone := *a
	clone.now = now
	return &clone
}

// Aggregate scores events (oldest first) for marker.
func (a *Aggregator) Aggregate(marker *models.Marker, events []models.Event) (models.ScoreResult, error) {
	if len(events) == 0 {
		return models.ScoreResult{}, nil
	}

	now := utils.EpochSeconds(a.now())
	filtered := a.window(marker, events, now)

	total := 0.0
	for _, e := range filtered {
		total += e.Amount()
	}

	cfg := a.defaults.Scoring.Merge(marker.Scoring)
	threshold := models.FloatOr(cfg.Threshold, 1)
	if threshold == 0 {
		return models.ScoreResult{}, utils.ConfigurationError("scoring.aggregate", "marker "+marker.ID+" has a zero scoring threshold", nil)
	}
	raw := total / threshold * models.FloatOr(cfg.Base, 1) * models.FloatOr(cfg.Weight, 1)
	score := Score(raw, cfg)

	if decay := models.FloatOr(cfg.Decay, 0); decay != 0 && len(filtered) > 0 {
		last := filtered[0].Timestamp
		for _, e := range filtered[1:] {
			last = math.Max(last, e.Timestamp)
		}
		hours := (now - last) / 3600.0
		score *= math.Exp(-decay * hours)
	}

	if cfg.MaxScore != nil {
		score = math.Min(score, *cfg.MaxScore)
	}

	a.logger.Debug("aggregated marker events",
		slog.String("marker_id", marker.ID),
		slog.Int("events", len(events)),
		slog.Int("windowed", len(filtered)),
		slog.Float64("raw_score", raw),
		slog.Float64("score", score),
	)
	return models.ScoreResult{RawScore: raw, Score: score}, nil
}

// window keeps the last N messages and then those inside the seconds horizon. Marker
// settings override the class defaults field by field.
func (a *Aggregator) window(marker *models.Marker, events []models.Event, now float64) []models.Event {
	win := a.defaults.Windows[ClassOf(marker.ID)]
	if marker.Window != nil {
		if marker.Window.Messages != nil {
			win.Messages = marker.Window.Messages
		}
		if marker.Window.Seconds != nil {
			win.Seconds = marker.Window.Seconds
		}
	}

	filtered := events
	if win.Messages != nil && *win.Messages > 0 && *win.Messages < len(filtered) {
		filtered = filtered[len(filtered)-*win.Messages:]
	}
	if win.Seconds != nil {
		horizon := now - *win.Seconds
		kept := make([]models.Event, 0, len(filtered))
		for _, e := range filtered {
			if e.Timestamp >= horizon {
				kept = append(kept, e)
			}
		}
		filtered = kept
	}
	return filtered
}
