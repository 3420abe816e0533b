package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
)

type fakeGroupingClient struct {
	chunks [][]string
	groups [][]model.ProductGroup // per call, local indices
	err    error
}

func (f *fakeGroupingClient) Name() string         { return "gemini" }
func (f *fakeGroupingClient) CostPerCall() float64 { return 0.002 }

func (f *fakeGroupingClient) GroupChunk(_ context.Context, imageURLs []string) ([]model.ProductGroup, error) {
	f.chunks = append(f.chunks, imageURLs)
	if f.err != nil {
		return nil, f.err
	}
	call := len(f.chunks) - 1
	if call < len(f.groups) {
		return f.groups[call], nil
	}
	// Default: everything in the chunk is one product.
	indices := make([]int, len(imageURLs))
	for i := range imageURLs {
		indices[i] = i
	}
	return []model.ProductGroup{{Label: fmt.Sprintf("product %d", call), ImageIndices: indices}}, nil
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://img.test/%d.jpg", i)
	}
	return out
}

func coveredIndices(t *testing.T, groups []model.ProductGroup) []int {
	t.Helper()
	var all []int
	seen := make(map[int]bool)
	for _, g := range groups {
		for _, idx := range g.ImageIndices {
			require.False(t, seen[idx], "index %d appears in more than one group", idx)
			seen[idx] = true
			all = append(all, idx)
		}
	}
	sort.Ints(all)
	return all
}

func TestGroupImagesChunking(t *testing.T) {
	client := &fakeGroupingClient{}
	grouper := NewGrouper(client, nil, zap.NewNop())

	groups, err := grouper.GroupImages(context.Background(), urls(20))
	require.NoError(t, err)

	// ceil(20/8) = 3 chunks of sizes 8, 8, 4.
	require.Len(t, client.chunks, 3)
	assert.Len(t, client.chunks[0], 8)
	assert.Len(t, client.chunks[1], 8)
	assert.Len(t, client.chunks[2], 4)

	all := coveredIndices(t, groups)
	require.Len(t, all, 20)
	for i, idx := range all {
		assert.Equal(t, i, idx)
	}
}

func TestGroupImagesRebasesIndices(t *testing.T) {
	client := &fakeGroupingClient{
		groups: [][]model.ProductGroup{
			{
				{Label: "lamp", ImageIndices: []int{0, 2}},
				{Label: "chair", ImageIndices: []int{1, 3, 4, 5, 6, 7}},
			},
			{
				{Label: "rug", ImageIndices: []int{0, 1}},
			},
		},
	}
	grouper := NewGrouper(client, nil, zap.NewNop())

	groups, err := grouper.GroupImages(context.Background(), urls(10))
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []int{0, 2}, groups[0].ImageIndices)
	assert.Equal(t, []int{1, 3, 4, 5, 6, 7}, groups[1].ImageIndices)
	assert.Equal(t, []int{8, 9}, groups[2].ImageIndices, "second-chunk indices are rebased by 8")
}

func TestGroupImagesRepairsBackendOmissions(t *testing.T) {
	// Backend drops index 2 and invents index 99; both are repaired so the
	// union is still exactly the input set.
	client := &fakeGroupingClient{
		groups: [][]model.ProductGroup{
			{
				{Label: "mug", ImageIndices: []int{0, 1, 99}},
				{Label: "mug again", ImageIndices: []int{1}},
			},
		},
	}
	grouper := NewGrouper(client, nil, zap.NewNop())

	groups, err := grouper.GroupImages(context.Background(), urls(3))
	require.NoError(t, err)

	all := coveredIndices(t, groups)
	assert.Equal(t, []int{0, 1, 2}, all)

	last := groups[len(groups)-1]
	assert.Equal(t, "ungrouped item", last.Label)
	assert.Equal(t, []int{2}, last.ImageIndices)
}

func TestGroupImagesBackendError(t *testing.T) {
	client := &fakeGroupingClient{err: errors.New("model unavailable")}
	grouper := NewGrouper(client, nil, zap.NewNop())

	_, err := grouper.GroupImages(context.Background(), urls(4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestGroupImagesRecordsUsagePerChunk(t *testing.T) {
	recorder := &countingRecorder{}
	grouper := NewGrouper(&fakeGroupingClient{}, recorder, zap.NewNop())

	_, err := grouper.GroupImages(context.Background(), urls(20))
	require.NoError(t, err)

	// 3 chunks means 3 paid backend calls, each at the client's cost.
	require.Len(t, recorder.records, 3)
	for i, rec := range recorder.records {
		assert.Equal(t, "gemini/vision.group", rec)
		assert.False(t, recorder.cached[i])
		assert.Equal(t, 0.002, recorder.costs[i])
	}
}

func TestGroupImagesRecordsFailedChunk(t *testing.T) {
	recorder := &countingRecorder{}
	client := &fakeGroupingClient{err: errors.New("model unavailable")}
	grouper := NewGrouper(client, recorder, zap.NewNop())

	_, err := grouper.GroupImages(context.Background(), urls(4))
	require.Error(t, err)

	// The call was still spent; it must show up in usage accounting.
	assert.Len(t, recorder.records, 1)
}

func TestGroupImagesEmpty(t *testing.T) {
	grouper := NewGrouper(&fakeGroupingClient{}, nil, zap.NewNop())
	groups, err := grouper.GroupImages(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, groups)
}
