package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/node"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.9746318461970762, CosineSimilarity([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)

	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestIndex_SearchOrdersByScore(t *testing.T) {
	ix := NewIndex()
	require.NoError(t, ix.Add(node.New("east"), []float32{1, 0}))
	require.NoError(t, ix.Add(node.New("north"), []float32{0, 1}))
	require.NoError(t, ix.Add(node.New("northeast"), []float32{1, 1}))

	results := ix.Search([]float32{1, 0}, 0)
	require.Len(t, results, 3)
	assert.Equal(t, "east", results[0].Node.Text)
	assert.Equal(t, "northeast", results[1].Node.Text)
	assert.Equal(t, "north", results[2].Node.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, results[1].Score, 1e-6)
}

func TestIndex_SearchTopK(t *testing.T) {
	ix := NewIndex()
	for i := 0; i < 10; i++ {
		require.NoError(t, ix.Add(node.New("n"), []float32{float32(i + 1), 1}))
	}

	results := ix.Search([]float32{1, 0}, 3)
	assert.Len(t, results, 3)
}

func TestIndex_Add_Validation(t *testing.T) {
	ix := NewIndex()
	assert.Error(t, ix.Add(nil, []float32{1}))
	assert.Error(t, ix.Add(node.New("x"), nil))
}

func TestIndex_Build(t *testing.T) {
	embedder := embed.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 1}, nil
	})

	ix := NewIndex()
	nodes := []*node.Node{node.New("short"), node.New("a much longer text")}
	require.NoError(t, ix.Build(context.Background(), embedder, nodes))
	assert.Equal(t, 2, ix.Len())
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	ix := NewIndex()
	n := node.New("persisted").WithMetadata("category", "stored")
	require.NoError(t, ix.Add(n, []float32{0.5, 0.25}))

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	results := loaded.Search([]float32{0.5, 0.25}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, n.ID, results[0].Node.ID)
	assert.Equal(t, "persisted", results[0].Node.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestLoad_MissingSnapshot(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shelf.ErrStoreNotFound)
}

func TestRetriever_Retrieve(t *testing.T) {
	embedder := embed.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if text == "query" {
			return []float32{1, 0}, nil
		}
		return []float32{0, 1}, nil
	})

	ix := NewIndex()
	require.NoError(t, ix.Add(node.New("match"), []float32{1, 0.1}))
	require.NoError(t, ix.Add(node.New("other"), []float32{0, 1}))

	r := NewRetriever(ix, embedder).WithTopK(1)
	results, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "match", results[0].Node.Text)
}
