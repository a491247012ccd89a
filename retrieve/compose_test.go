package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicshelf/shelf/node"
)

func fixedRetriever(texts ...string) Retriever {
	return RetrieverFunc(func(ctx context.Context, query string) ([]node.Scored, error) {
		var out []node.Scored
		for _, text := range texts {
			out = append(out, node.WithScore(node.New(text), 1.0))
		}
		return out, nil
	})
}

func TestCompose_ConcatenatesInOrder(t *testing.T) {
	c := NewCompose(
		fixedRetriever("a", "b"),
		fixedRetriever("c"),
		fixedRetriever(),
	)

	results, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Node.Text)
	assert.Equal(t, "b", results[1].Node.Text)
	assert.Equal(t, "c", results[2].Node.Text)
}

func TestCompose_KeepsDuplicates(t *testing.T) {
	shared := node.New("shared")
	source := RetrieverFunc(func(ctx context.Context, query string) ([]node.Scored, error) {
		return []node.Scored{node.WithScore(shared, 0.5)}, nil
	})

	c := NewCompose(source, source)
	results, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, results[0].Node.ID, results[1].Node.ID)
}

func TestCompose_SourceFailureFailsQuery(t *testing.T) {
	boom := errors.New("boom")
	failing := RetrieverFunc(func(ctx context.Context, query string) ([]node.Scored, error) {
		return nil, boom
	})

	c := NewCompose(fixedRetriever("a"), failing)
	_, err := c.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}

func TestCompose_NoSources(t *testing.T) {
	c := NewCompose()
	results, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
}
