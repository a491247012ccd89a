package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/node"
)

// Index is an in-memory exact-scan cosine index. Collections in this
// system are small enough (hundreds of summaries, not millions of chunks)
// that a linear scan beats the operational cost of an external store.
type Index struct {
	mu      sync.RWMutex
	nodes   *node.Collection
	vectors map[string][]float32
	order   []string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		nodes:   node.NewCollection(),
		vectors: make(map[string][]float32),
	}
}

// Add indexes a node under the given embedding. Re-adding a node ID
// replaces its vector.
func (ix *Index) Add(n *node.Node, vec []float32) error {
	if n == nil {
		return shelf.NewValidationError("Index.Add", fmt.Errorf("nil node"))
	}
	if len(vec) == 0 {
		return shelf.NewValidationError("Index.Add", fmt.Errorf("empty vector for node %s", n.ID))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.vectors[n.ID]; !exists {
		ix.order = append(ix.order, n.ID)
	}
	ix.nodes.Add(n)
	ix.vectors[n.ID] = vec
	return nil
}

// Build embeds the given nodes in one batch and indexes them. Node text is
// rendered in embedding mode so excluded metadata keys stay out of the
// vector.
func (ix *Index) Build(ctx context.Context, embedder embed.Embedder, nodes []*node.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i] = n.Content(node.RenderForEmbedding)
	}

	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d nodes: %w", len(nodes), err)
	}

	for i, n := range nodes {
		if err := ix.Add(n, vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Vector returns the stored embedding for an indexed node.
func (ix *Index) Vector(id string) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	vec, ok := ix.vectors[id]
	return vec, ok
}

// Search returns the topK nodes most similar to the query vector, best
// first. Ties keep insertion order.
func (ix *Index) Search(query []float32, topK int) []node.Scored {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]node.Scored, 0, len(ix.order))
	for _, id := range ix.order {
		n, ok := ix.nodes.Get(id)
		if !ok {
			continue
		}
		results = append(results, node.WithScore(n, CosineSimilarity(query, ix.vectors[id])))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// snapshot is the JSON layout of a persisted index.
type snapshot struct {
	Nodes   *node.Collection     `json:"nodes"`
	Vectors map[string][]float32 `json:"vectors"`
	Order   []string             `json:"order"`
}

// Save writes the index to path as JSON.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	data, err := json.MarshalIndent(snapshot{
		Nodes:   ix.nodes,
		Vectors: ix.vectors,
		Order:   ix.order,
	}, "", "  ")
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, shelf.NewNotFoundError("vector.Load",
				fmt.Errorf("%w: index snapshot %s", shelf.ErrStoreNotFound, path))
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	snap := snapshot{Nodes: node.NewCollection()}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, shelf.NewParseError("vector.Load", err)
	}
	if snap.Vectors == nil {
		snap.Vectors = make(map[string][]float32)
	}

	return &Index{nodes: snap.Nodes, vectors: snap.Vectors, order: snap.Order}, nil
}
