package retrieve

import (
	"context"

	"github.com/magicshelf/shelf/node"
)

// Retriever finds nodes relevant to a natural-language query.
type Retriever interface {
	// Retrieve returns scored nodes for the query, best first when the
	// implementation ranks its results.
	Retrieve(ctx context.Context, query string) ([]node.Scored, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string) ([]node.Scored, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]node.Scored, error) {
	return f(ctx, query)
}
