package retrieve

import (
	"context"

	"github.com/magicshelf/shelf/node"
)

// Compose queries several retrievers in order and concatenates their
// results. Results are NOT deduplicated or re-ranked: a node surfaced by
// two sources appears twice, and downstream synthesis sees it twice. The
// result length is always the sum of the source result lengths.
type Compose struct {
	retrievers []Retriever
}

// NewCompose creates a composite over the given retrievers.
func NewCompose(retrievers ...Retriever) *Compose {
	return &Compose{retrievers: retrievers}
}

// Retrieve implements Retriever. A failure from any source fails the
// whole query.
func (c *Compose) Retrieve(ctx context.Context, query string) ([]node.Scored, error) {
	var out []node.Scored
	for _, r := range c.retrievers {
		results, err := r.Retrieve(ctx, query)
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}
