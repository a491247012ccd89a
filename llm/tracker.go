package llm

import "sync"

// TokenTracker tracks token usage across pipeline stages.
type TokenTracker interface {
	// Add records token usage for a specific stage.
	Add(stage string, usage TokenUsage)

	// Total returns the aggregate token usage across all stages.
	Total() TokenUsage

	// ByStage returns the token usage for a specific stage.
	ByStage(stage string) TokenUsage

	// Reset clears all tracked token usage.
	Reset()

	// Stages returns a list of all tracked stage names.
	Stages() []string
}

// DefaultTokenTracker is a thread-safe implementation of TokenTracker.
type DefaultTokenTracker struct {
	mu     sync.RWMutex
	stages map[string]TokenUsage
	total  TokenUsage
}

// NewTokenTracker creates a new DefaultTokenTracker.
func NewTokenTracker() *DefaultTokenTracker {
	return &DefaultTokenTracker{
		stages: make(map[string]TokenUsage),
	}
}

// Add records token usage for a specific stage.
func (t *DefaultTokenTracker) Add(stage string, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.stages[stage]
	t.stages[stage] = current.Add(usage)
	t.total = t.total.Add(usage)
}

// Total returns the aggregate token usage across all stages.
func (t *DefaultTokenTracker) Total() TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// ByStage returns the token usage for a specific stage.
// Returns an empty TokenUsage if the stage has not been used.
func (t *DefaultTokenTracker) ByStage(stage string) TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stages[stage]
}

// Reset clears all tracked token usage.
func (t *DefaultTokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stages = make(map[string]TokenUsage)
	t.total = TokenUsage{}
}

// Stages returns a list of all tracked stage names.
func (t *DefaultTokenTracker) Stages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := make([]string, 0, len(t.stages))
	for stage := range t.stages {
		stages = append(stages, stage)
	}
	return stages
}

// Snapshot is a read-only copy of the current token usage state.
type Snapshot struct {
	// Stages contains token usage by stage name.
	Stages map[string]TokenUsage

	// Total contains aggregate token usage.
	Total TokenUsage
}

// Snapshot returns a snapshot of the current token usage state.
func (t *DefaultTokenTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := make(map[string]TokenUsage, len(t.stages))
	for stage, usage := range t.stages {
		stages[stage] = usage
	}

	return Snapshot{
		Stages: stages,
		Total:  t.total,
	}
}
