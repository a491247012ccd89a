// Package config provides loading and parsing of shelf.yaml configuration
// files. A single file configures the model providers, budgets, cache,
// pipeline knobs and the API server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a shelf.yaml configuration file.
type Config struct {
	// Provider configures the chat completion endpoint.
	Provider *ProviderConfig `yaml:"provider,omitempty"`

	// Embedding configures the embedding endpoint.
	Embedding *ProviderConfig `yaml:"embedding,omitempty"`

	// Budget caps provider usage for a whole run.
	Budget *BudgetConfig `yaml:"budget,omitempty"`

	// Cache configures the on-disk response cache.
	Cache *CacheConfig `yaml:"cache,omitempty"`

	// Window configures the prompt packing limits.
	Window *WindowConfig `yaml:"window,omitempty"`

	// Pipeline configures run execution.
	Pipeline *PipelineConfig `yaml:"pipeline,omitempty"`

	// Server configures the HTTP API.
	Server *ServerConfig `yaml:"server,omitempty"`

	// Queue configures the Redis run queue.
	Queue *QueueConfig `yaml:"queue,omitempty"`
}

// ProviderConfig describes one OpenAI-compatible endpoint.
type ProviderConfig struct {
	// BaseURL is the endpoint root (e.g., "https://api.openai.com/v1").
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey authenticates requests. Leave empty to read it from the
	// SHELF_API_KEY environment variable instead of the config file.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`

	// Timeout is the per-request timeout.
	// Format: Go duration string (e.g., "60s", "2m")
	// Default: 60s
	Timeout string `yaml:"timeout,omitempty"`
}

// GetBaseURL returns the endpoint root or the OpenAI default.
func (p *ProviderConfig) GetBaseURL() string {
	if p == nil || p.BaseURL == "" {
		return "https://api.openai.com/v1"
	}
	return p.BaseURL
}

// GetAPIKey returns the configured key, falling back to SHELF_API_KEY.
func (p *ProviderConfig) GetAPIKey() string {
	if p != nil && p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv("SHELF_API_KEY")
}

// GetModel returns the configured model identifier.
func (p *ProviderConfig) GetModel() string {
	if p == nil {
		return ""
	}
	return p.Model
}

// GetTimeout parses the timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (p *ProviderConfig) GetTimeout() time.Duration {
	if p == nil || p.Timeout == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// BudgetConfig caps provider usage. Zero values mean unlimited.
type BudgetConfig struct {
	// MaxCalls is the total number of provider calls allowed per run,
	// cached responses included.
	MaxCalls int `yaml:"max_calls,omitempty"`

	// MaxCacheMisses is the number of calls allowed to actually reach
	// the provider.
	MaxCacheMisses int `yaml:"max_cache_misses,omitempty"`
}

// GetMaxCalls returns the call ceiling, 0 for unlimited.
func (b *BudgetConfig) GetMaxCalls() int {
	if b == nil || b.MaxCalls < 0 {
		return 0
	}
	return b.MaxCalls
}

// GetMaxCacheMisses returns the cache-miss ceiling, 0 for unlimited.
func (b *BudgetConfig) GetMaxCacheMisses() int {
	if b == nil || b.MaxCacheMisses < 0 {
		return 0
	}
	return b.MaxCacheMisses
}

// CacheConfig configures the badger-backed response cache.
type CacheConfig struct {
	// Dir is the cache directory. Empty disables caching.
	Dir string `yaml:"dir,omitempty"`
}

// GetDir returns the cache directory, empty when caching is disabled.
func (c *CacheConfig) GetDir() string {
	if c == nil {
		return ""
	}
	return c.Dir
}

// WindowConfig configures prompt packing.
type WindowConfig struct {
	// ContextSize is the provider's context window in tokens.
	// Default: 8192
	ContextSize int `yaml:"context_size,omitempty"`

	// NumOutput is the number of tokens reserved for the response.
	// Default: 1024
	NumOutput int `yaml:"num_output,omitempty"`

	// Padding is the safety margin in tokens.
	// Default: 128
	Padding int `yaml:"padding,omitempty"`
}

// GetContextSize returns the context window size or the default value.
func (w *WindowConfig) GetContextSize() int {
	if w == nil || w.ContextSize <= 0 {
		return 8192
	}
	return w.ContextSize
}

// GetNumOutput returns the reserved output size or the default value.
func (w *WindowConfig) GetNumOutput() int {
	if w == nil || w.NumOutput <= 0 {
		return 1024
	}
	return w.NumOutput
}

// GetPadding returns the safety margin or the default value.
func (w *WindowConfig) GetPadding() int {
	if w == nil || w.Padding <= 0 {
		return 128
	}
	return w.Padding
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	// RunsDir is the directory that receives one subdirectory per run.
	// Default: "runs"
	RunsDir string `yaml:"runs_dir,omitempty"`

	// SimilarityTopK is how many similar documents to link per document.
	// Default: 3
	SimilarityTopK int `yaml:"similarity_top_k,omitempty"`

	// MaxChunks caps the chunks each summarization level samples.
	// Default: 0 (use everything)
	MaxChunks int `yaml:"max_chunks,omitempty"`

	// Workers bounds concurrent model calls in extraction stages.
	// Default: 4
	Workers int `yaml:"workers,omitempty"`
}

// GetRunsDir returns the runs directory or the default value.
func (p *PipelineConfig) GetRunsDir() string {
	if p == nil || p.RunsDir == "" {
		return "runs"
	}
	return p.RunsDir
}

// GetSimilarityTopK returns the similarity link count or the default value.
func (p *PipelineConfig) GetSimilarityTopK() int {
	if p == nil || p.SimilarityTopK <= 0 {
		return 3
	}
	return p.SimilarityTopK
}

// GetMaxChunks returns the chunk sampling cap, 0 for unlimited.
func (p *PipelineConfig) GetMaxChunks() int {
	if p == nil || p.MaxChunks < 0 {
		return 0
	}
	return p.MaxChunks
}

// GetWorkers returns the worker count or the default value.
func (p *PipelineConfig) GetWorkers() int {
	if p == nil || p.Workers <= 0 {
		return 4
	}
	return p.Workers
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr,omitempty"`

	// QueryTopK is the per-retriever result count for query requests.
	// Default: 3
	QueryTopK int `yaml:"query_top_k,omitempty"`

	// GracefulTimeout is the shutdown grace period.
	// Format: Go duration string (e.g., "30s")
	// Default: 30s
	GracefulTimeout string `yaml:"graceful_timeout,omitempty"`
}

// GetAddr returns the listen address or the default value.
func (s *ServerConfig) GetAddr() string {
	if s == nil || s.Addr == "" {
		return ":8080"
	}
	return s.Addr
}

// GetQueryTopK returns the query result count or the default value.
func (s *ServerConfig) GetQueryTopK() int {
	if s == nil || s.QueryTopK <= 0 {
		return 3
	}
	return s.QueryTopK
}

// GetGracefulTimeout parses the grace period and returns a duration.
// Returns the default value if not set or invalid.
func (s *ServerConfig) GetGracefulTimeout() time.Duration {
	if s == nil || s.GracefulTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.GracefulTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// QueueConfig configures the Redis run queue.
type QueueConfig struct {
	// Enabled switches background runs from in-process goroutines to
	// the Redis queue.
	Enabled bool `yaml:"enabled,omitempty"`

	// URL is the Redis connection string.
	// Default: "redis://localhost:6379"
	URL string `yaml:"url,omitempty"`
}

// GetURL returns the Redis URL or the default value.
func (q *QueueConfig) GetURL() string {
	if q == nil || q.URL == "" {
		return "redis://localhost:6379"
	}
	return q.URL
}

// IsEnabled reports whether the Redis queue is enabled.
func (q *QueueConfig) IsEnabled() bool {
	return q != nil && q.Enabled
}

// Validate checks the parts of the configuration that have no sensible
// default.
func (c *Config) Validate() error {
	if c.Provider.GetModel() == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Embedding.GetModel() == "" {
		return fmt.Errorf("embedding.model is required")
	}
	return nil
}

// Load reads and parses a shelf.yaml file from the given path.
// If the path is a directory, it looks for shelf.yaml or shelf.yml in
// that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		// Try shelf.yaml first, then shelf.yml
		yamlPath := filepath.Join(path, "shelf.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "shelf.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no shelf.yaml or shelf.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadFromDir searches for shelf.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no shelf.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}

// LoadFromCurrentDir loads shelf.yaml from the current working directory.
func LoadFromCurrentDir() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFromDir(cwd)
}
