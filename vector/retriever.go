package vector

import (
	"context"
	"fmt"

	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/node"
)

// DefaultTopK is the number of results a Retriever returns when not
// configured otherwise.
const DefaultTopK = 5

// Retriever answers queries against an Index by embedding the query text.
type Retriever struct {
	index    *Index
	embedder embed.Embedder
	topK     int
}

// NewRetriever creates a retriever over the given index.
func NewRetriever(index *Index, embedder embed.Embedder) *Retriever {
	return &Retriever{index: index, embedder: embedder, topK: DefaultTopK}
}

// WithTopK sets the number of results returned per query.
func (r *Retriever) WithTopK(topK int) *Retriever {
	if topK > 0 {
		r.topK = topK
	}
	return r
}

// Retrieve implements retrieve.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]node.Scored, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.index.Search(vec, r.topK), nil
}
