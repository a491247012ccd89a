package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/magicshelf/shelf/config"
	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/pipeline"
)

// runtime bundles the configured model clients every subcommand needs.
type runtime struct {
	cfg       *config.Config
	completer *llm.Guard
	embedder  embed.Embedder
	tracker   *llm.DefaultTokenTracker
	logger    *slog.Logger
	cleanup   func()
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromCurrentDir()
}

// buildRuntime loads the configuration and wires the guarded completer
// and cached embedder. The returned cleanup must run before exit.
func buildRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var cache *llm.Cache
	cleanup := func() {}
	if dir := cfg.Cache.GetDir(); dir != "" {
		cache, err = llm.OpenCache(dir)
		if err != nil {
			return nil, fmt.Errorf("open cache at %s: %w", dir, err)
		}
		cleanup = func() { _ = cache.Close() }
	}

	budget := llm.NewBudget("provider", cfg.Budget.GetMaxCalls(), cfg.Budget.GetMaxCacheMisses())
	tracker := llm.NewTokenTracker()

	client := llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.Provider.GetBaseURL(),
		APIKey:  cfg.Provider.GetAPIKey(),
		Model:   cfg.Provider.GetModel(),
		Timeout: cfg.Provider.GetTimeout(),
	}).WithTracker(tracker, "completion")
	completer := llm.NewGuard(client, cfg.Provider.GetModel(), budget, cache, logger)

	embedClient := embed.NewClient(embed.ClientConfig{
		BaseURL: cfg.Embedding.GetBaseURL(),
		APIKey:  cfg.Embedding.GetAPIKey(),
		Model:   cfg.Embedding.GetModel(),
		Timeout: cfg.Embedding.GetTimeout(),
	})
	embedder := embed.NewCached(embedClient, budget, cache, logger)

	return &runtime{
		cfg:       cfg,
		completer: completer,
		embedder:  embedder,
		tracker:   tracker,
		logger:    logger,
		cleanup:   cleanup,
	}, nil
}

func (r *runtime) pipelineConfig(inputDir, runDir string) pipeline.Config {
	return pipeline.Config{
		InputDir:       inputDir,
		RunDir:         runDir,
		SimilarityTopK: r.cfg.Pipeline.GetSimilarityTopK(),
		MaxChunks:      r.cfg.Pipeline.GetMaxChunks(),
		Workers:        r.cfg.Pipeline.GetWorkers(),
		Window: llm.Window{
			ContextSize: r.cfg.Window.GetContextSize(),
			NumOutput:   r.cfg.Window.GetNumOutput(),
			Padding:     r.cfg.Window.GetPadding(),
		},
	}
}

func (r *runtime) printUsage() {
	stats := r.completer.Stats()
	total := r.tracker.Total()
	fmt.Fprintf(os.Stderr, "provider usage: %s, tokens: %d in + %d out\n",
		stats.String(), total.InputTokens, total.OutputTokens)
}
