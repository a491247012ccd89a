package llm

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	shelf "github.com/magicshelf/shelf"
)

// Budget is the call-budget circuit breaker for one provider service.
// It counts total calls and cache-miss calls against configured ceilings
// and fails hard once a ceiling is crossed. A zero ceiling means unlimited.
//
// The budget is an explicit object owned by the pipeline context and
// threaded through constructors; it is never process-wide state.
type Budget struct {
	mu       sync.Mutex
	service  string
	maxCalls int
	maxMiss  int
	calls    int
	misses   int

	callCounter metric.Int64Counter
	missCounter metric.Int64Counter
}

// NewBudget creates a budget for the named service ("llm", "embedding")
// with the given ceilings. A ceiling of 0 disables that check.
func NewBudget(service string, maxCalls, maxCacheMiss int) *Budget {
	meter := otel.Meter("github.com/magicshelf/shelf/llm")
	callCounter, _ := meter.Int64Counter("shelf.provider.calls",
		metric.WithDescription("Total provider calls, cached or not."))
	missCounter, _ := meter.Int64Counter("shelf.provider.cache_misses",
		metric.WithDescription("Provider calls that reached the network."))

	return &Budget{
		service:     service,
		maxCalls:    maxCalls,
		maxMiss:     maxCacheMiss,
		callCounter: callCounter,
		missCounter: missCounter,
	}
}

// RecordCall counts one call against the total ceiling.
// Returns a fatal budget error once the ceiling is exceeded.
func (b *Budget) RecordCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if b.callCounter != nil {
		b.callCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("service", b.service)))
	}
	if b.maxCalls > 0 && b.calls > b.maxCalls {
		return shelf.NewBudgetError("Budget.RecordCall",
			fmt.Errorf("%w: %s calls %d > max %d", shelf.ErrBudgetExceeded, b.service, b.calls, b.maxCalls))
	}
	return nil
}

// RecordMiss counts one cache-miss call against the miss ceiling.
// Returns a fatal budget error once the ceiling is exceeded.
func (b *Budget) RecordMiss() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.misses++
	if b.missCounter != nil {
		b.missCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("service", b.service)))
	}
	if b.maxMiss > 0 && b.misses > b.maxMiss {
		return shelf.NewBudgetError("Budget.RecordMiss",
			fmt.Errorf("%w: %s cache misses %d > max %d", shelf.ErrBudgetExceeded, b.service, b.misses, b.maxMiss))
	}
	return nil
}

// Stats reports the budget usage so far.
func (b *Budget) Stats() BudgetStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetStats{
		Service: b.service,
		Calls:   b.calls,
		Misses:  b.misses,
	}
}

// BudgetStats is a snapshot of budget usage.
type BudgetStats struct {
	Service string
	Calls   int
	Misses  int
}

// String renders the stats with the cache-hit ratio, for end-of-run logs.
func (s BudgetStats) String() string {
	cached := s.Calls - s.Misses
	ratio := 0.0
	if s.Calls > 0 {
		ratio = float64(cached) / float64(s.Calls) * 100
	}
	return fmt.Sprintf("%s: calls:%d, missed:%d, cached:%d(%.0f%%)", s.Service, s.Calls, s.Misses, cached, ratio)
}
