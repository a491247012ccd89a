package embed

import (
	"context"
	"encoding/json"
	"log/slog"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/llm"
)

// Cached wraps an Embedder with the call budget and the response cache.
// Batch requests are split into cached and missing texts so only the
// missing ones reach the provider.
type Cached struct {
	inner  Embedder
	budget *llm.Budget
	cache  *llm.Cache
	logger *slog.Logger
}

// NewCached creates a caching wrapper around inner. budget is required;
// cache may be nil, in which case every text is a miss.
func NewCached(inner Embedder, budget *llm.Budget, cache *llm.Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, budget: budget, cache: cache, logger: logger}
}

// Model returns the inner model identifier.
func (c *Cached) Model() string { return c.inner.Model() }

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Each text counts as one call; texts not
// found in the cache are fetched from the provider in a single batch and
// each counts as one cache miss.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	var missing []string
	var missingAt []int

	for i, text := range texts {
		if err := c.budget.RecordCall(); err != nil {
			return nil, err
		}
		if vec, ok := c.lookup(text); ok {
			vecs[i] = vec
			continue
		}
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}

	if len(missing) == 0 {
		return vecs, nil
	}

	for range missing {
		if err := c.budget.RecordMiss(); err != nil {
			return nil, err
		}
	}

	fetched, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, shelf.NewParseError("Cached.EmbedBatch", shelf.ErrMalformedResponse)
	}

	for j, vec := range fetched {
		vecs[missingAt[j]] = vec
		c.store(missing[j], vec)
	}
	return vecs, nil
}

func (c *Cached) lookup(text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, hit, err := c.cache.Get(llm.CacheKey(c.inner.Model(), text))
	if err != nil {
		c.logger.Warn("embedding cache read failed, treating as miss", "error", err)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		c.logger.Warn("embedding cache entry corrupt, treating as miss", "error", err)
		return nil, false
	}
	return vec, true
}

func (c *Cached) store(text string, vec []float32) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Put(llm.CacheKey(c.inner.Model(), text), string(raw)); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
}
