package llm

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Guard wraps a Completer with the call budget and the response cache.
// Every call is counted; only cache misses reach the inner completer and
// count against the miss ceiling. Budget errors are fatal for the run.
type Guard struct {
	inner  Completer
	model  string
	budget *Budget
	cache  *Cache
	logger *slog.Logger
	tracer trace.Tracer
}

// NewGuard creates a Guard around inner. budget is required; cache may be
// nil, in which case every call is a miss. The model name participates in
// cache keys so switching models never serves stale responses.
func NewGuard(inner Completer, model string, budget *Budget, cache *Cache, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		inner:  inner,
		model:  model,
		budget: budget,
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer("github.com/magicshelf/shelf/llm"),
	}
}

// Complete implements Completer.
func (g *Guard) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.budget.RecordCall(); err != nil {
		return "", err
	}

	key := CacheKey(g.model, prompt)
	if g.cache != nil {
		cached, hit, err := g.cache.Get(key)
		if err != nil {
			g.logger.Warn("cache read failed, treating as miss", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	if err := g.budget.RecordMiss(); err != nil {
		return "", err
	}

	ctx, span := g.tracer.Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("model", g.model),
			attribute.Int("prompt_chars", len(prompt)),
		))
	defer span.End()

	response, err := g.inner.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if g.cache != nil {
		if err := g.cache.Put(key, response); err != nil {
			g.logger.Warn("cache write failed", "error", err)
		}
	}

	return response, nil
}

// Stats reports the guarded budget usage so far.
func (g *Guard) Stats() BudgetStats {
	return g.budget.Stats()
}
