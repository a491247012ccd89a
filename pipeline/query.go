package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/magicshelf/shelf/cascade"
	"github.com/magicshelf/shelf/classify"
	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
	"github.com/magicshelf/shelf/retrieve"
	"github.com/magicshelf/shelf/vector"
)

// QueryResult is the answer to one query against a finished run.
type QueryResult struct {
	// Answer is the synthesized response.
	Answer string `json:"answer"`

	// Sources are the retrieved nodes the answer was built from, in
	// retrieval order: embedding matches first, then classification
	// matches, duplicates included.
	Sources []node.Scored `json:"sources"`
}

// Querier answers queries against a completed run directory.
type Querier struct {
	store     *classify.Store
	index     *vector.Index
	completer llm.Completer
	embedder  embed.Embedder
	topK      int
	logger    *slog.Logger
}

// NewQuerier loads the final snapshot and vector index of a run. The run
// must have completed its links stage; a missing snapshot is an explicit
// error.
func NewQuerier(runDir string, completer llm.Completer, embedder embed.Embedder, logger *slog.Logger) (*Querier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := classify.Load(filepath.Join(runDir, SnapshotFinal), logger)
	if err != nil {
		return nil, err
	}
	index, err := vector.Load(filepath.Join(runDir, indexFile))
	if err != nil {
		return nil, err
	}

	return &Querier{
		store:     store,
		index:     index,
		completer: completer,
		embedder:  embedder,
		topK:      3,
		logger:    logger,
	}, nil
}

// WithTopK sets the per-retriever result count.
func (q *Querier) WithTopK(topK int) *Querier {
	if topK > 0 {
		q.topK = topK
	}
	return q
}

// Store exposes the loaded classification store.
func (q *Querier) Store() *classify.Store {
	return q.store
}

// Query retrieves with both retrievers and synthesizes an answer from the
// combined results.
func (q *Querier) Query(ctx context.Context, query string) (*QueryResult, error) {
	composed := retrieve.NewCompose(
		vector.NewRetriever(q.index, q.embedder).WithTopK(q.topK),
		classify.NewIndex(q.store, nil, q.logger).AsRetriever(q.completer).WithTopK(q.topK),
	)

	sources, err := composed.Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve for query: %w", err)
	}
	q.logger.Info("retrieved nodes for query", "count", len(sources))

	if len(sources) == 0 {
		return &QueryResult{Answer: "Empty Response"}, nil
	}

	result, err := cascade.NewSummarizer(q.completer, q.logger).Synthesize(ctx, query, sources)
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	return &QueryResult{Answer: result.Response, Sources: sources}, nil
}
