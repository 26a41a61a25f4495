// Package nlp provides the phase 2 enrichment backends.
package nlp

import (
	"context"

	"github.com/miradorstack/marker-engine/internal/models"
)

// Enricher annotates an analysis context in place. Enrich may leave the context partially
// filled when it fails; callers treat any error as a degraded phase.
type Enricher interface {
	Enrich(ctx context.Context, actx *models.AnalysisContext) error
	IsAvailable() bool
	Name() string
}

// Unavailable is the enricher used when NLP is switched off.
type Unavailable struct{}

// Enrich is never called by the pipeline because IsAvailable is false.
func (Unavailable) Enrich(context.Context, *models.AnalysisContext) error { return ErrUnavailable }

// IsAvailable always reports false.
func (Unavailable) IsAvailable() bool { return false }

// Name identifies the backend in result metadata.
func (Unavailable) Name() string { return "none" }
