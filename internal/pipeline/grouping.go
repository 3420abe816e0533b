package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/model"
)

// groupChunkSize is how many images go into one grouping call. Multimodal
// models degrade noticeably past this many images per request.
const groupChunkSize = 8

// GroupingClient is the multimodal backend for multi-image grouping. It
// receives one chunk of image URLs and returns groups with indices local
// to that chunk. Name and CostPerCall feed usage accounting.
type GroupingClient interface {
	Name() string
	CostPerCall() float64
	GroupChunk(ctx context.Context, imageURLs []string) ([]model.ProductGroup, error)
}

// Grouper partitions a photo dump into distinct products. Chunks are
// independent, so the same physical product photographed across a chunk
// boundary comes back as two groups; callers merge by label if they care.
type Grouper struct {
	client   GroupingClient
	recorder cache.Recorder
	logger   *zap.Logger
}

// NewGrouper creates a Grouper. recorder may be nil.
func NewGrouper(client GroupingClient, recorder cache.Recorder, logger *zap.Logger) *Grouper {
	if recorder == nil {
		recorder = cache.NopRecorder()
	}
	return &Grouper{client: client, recorder: recorder, logger: logger}
}

// GroupImages splits the list into chunks, groups each, and rebases the
// returned indices to the full list. Every input index appears in exactly
// one group: out-of-range or duplicate indices from the backend are
// dropped, and any image the backend missed becomes its own group.
func (g *Grouper) GroupImages(ctx context.Context, imageURLs []string) ([]model.ProductGroup, error) {
	if len(imageURLs) == 0 {
		return nil, nil
	}

	var groups []model.ProductGroup
	covered := make(map[int]bool, len(imageURLs))

	for base := 0; base < len(imageURLs); base += groupChunkSize {
		end := base + groupChunkSize
		if end > len(imageURLs) {
			end = len(imageURLs)
		}
		chunk := imageURLs[base:end]

		chunkGroups, err := g.client.GroupChunk(ctx, chunk)
		// Each chunk is one paid backend call whether or not it succeeds.
		g.recorder.Record(g.client.Name(), "vision.group", false, g.client.CostPerCall())
		if err != nil {
			return nil, fmt.Errorf("grouping chunk starting at %d: %w", base, err)
		}

		for _, cg := range chunkGroups {
			group := model.ProductGroup{Label: cg.Label}
			for _, local := range cg.ImageIndices {
				if local < 0 || local >= len(chunk) {
					g.logger.Warn("grouping backend returned out-of-range index",
						zap.Int("index", local),
						zap.Int("chunk_size", len(chunk)))
					continue
				}
				global := base + local
				if covered[global] {
					continue
				}
				covered[global] = true
				group.ImageIndices = append(group.ImageIndices, global)
			}
			if len(group.ImageIndices) > 0 {
				groups = append(groups, group)
			}
		}
	}

	for i := range imageURLs {
		if !covered[i] {
			groups = append(groups, model.ProductGroup{
				Label:        "ungrouped item",
				ImageIndices: []int{i},
			})
		}
	}
	return groups, nil
}
