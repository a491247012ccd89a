package classify

import (
	"log/slog"

	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

// Index couples a classification store with retriever construction. It is
// the entry point for callers that hold classified nodes rather than an
// already-filed store.
type Index struct {
	store  *Store
	logger *slog.Logger
}

// NewIndex wraps the store. When the store's tree is still empty the nodes
// are filed into it; a populated store keeps its filing and the nodes are
// ignored.
func NewIndex(store *Store, nodes []*node.Node, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	if len(store.TreeSchema()) == 0 {
		for _, n := range nodes {
			store.Insert(n)
		}
	}
	return &Index{store: store, logger: logger}
}

// Store returns the underlying classification store.
func (i *Index) Store() *Store {
	return i.store
}

// AsRetriever builds a classification retriever over the index's store.
func (i *Index) AsRetriever(completer llm.Completer) *Retriever {
	return NewRetriever(i.store, completer, i.logger)
}
