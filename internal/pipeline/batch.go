package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
)

// MaxBatchSize caps one batch request. Processing is sequential, so the cap
// bounds worst-case request latency rather than memory.
const MaxBatchSize = 100

// ProcessBatch runs the pipeline over each image in order. Items are
// isolated: one failure never stops the rest of the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, imageURLs []string, opts Options) *model.BatchResult {
	batch := &model.BatchResult{
		TotalImages: len(imageURLs),
		Results:     make([]model.BatchItem, 0, len(imageURLs)),
	}

	for _, url := range imageURLs {
		item := model.BatchItem{ImageURL: url}
		result := p.Process(ctx, url, opts)
		if result.Status == model.StatusError {
			item.Error = result.Error
			batch.Failed++
		} else {
			item.Data = result
			batch.Successful++
		}
		batch.Results = append(batch.Results, item)
	}

	switch {
	case batch.Failed == 0:
		batch.Status = model.StatusSuccess
	case batch.Successful == 0:
		batch.Status = model.StatusError
	default:
		batch.Status = model.StatusPartial
	}

	p.logger.Info("batch complete",
		zap.Int("total", batch.TotalImages),
		zap.Int("successful", batch.Successful),
		zap.Int("failed", batch.Failed),
		zap.String("status", string(batch.Status)))
	return batch
}
