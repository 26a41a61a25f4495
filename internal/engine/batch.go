package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/marker-engine/internal/models"
)

// AnalyzeBatch runs one independent pipeline per request on a bounded worker pool.
// Results keep the request order; invalid requests yield an error envelope in place.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, reqs []models.AnalysisRequest) []models.AnalysisResult {
	results := make([]models.AnalysisResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.BatchWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			result, err := p.Analyze(gctx, req)
			if err != nil {
				result = rejectedResult(req, err)
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait() // failures are carried in each envelope

	return results
}

func rejectedResult(req models.AnalysisRequest, err error) models.AnalysisResult {
	return models.AnalysisResult{
		Status:  models.StatusError,
		Error:   err.Error(),
		Text:    req.Text,
		Markers: []models.DetectedMarker{},
		Metadata: models.ResultMetadata{
			SessionID:  req.SessionID,
			SchemaID:   req.SchemaID,
			NLPService: "none",
		},
		Summary: models.Summarize(nil),
	}
}
