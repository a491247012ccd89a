package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	shelf "github.com/magicshelf/shelf"
)

// ClientConfig configures the OpenAI-compatible embedding client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.openai.com/v1 or
	// http://localhost:11434/v1 for Ollama in compatibility mode.
	BaseURL string

	// APIKey authenticates requests. Optional for local providers.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// Client is an OpenAI-compatible embedding client against /embeddings.
type Client struct {
	config ClientConfig
	client *http.Client
}

// NewClient creates an embedding client from the given configuration.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed implements Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, shelf.NewParseError("Client.Embed",
			fmt.Errorf("%w: expected 1 embedding, got %d", shelf.ErrMalformedResponse, len(vecs)))
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. The provider returns embeddings keyed by
// input index; results are reordered to match texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, shelf.NewInternalError("Client.EmbedBatch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, shelf.NewInternalError("Client.EmbedBatch", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, shelf.NewTimeoutError("Client.EmbedBatch", err)
		}
		return nil, shelf.NewNetworkError("Client.EmbedBatch", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shelf.NewNetworkError("Client.EmbedBatch", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
		return nil, shelf.NewQuotaError("Client.EmbedBatch",
			fmt.Errorf("%w: status %d", shelf.ErrQuota, resp.StatusCode))
	default:
		return nil, shelf.NewNetworkError("Client.EmbedBatch",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, shelf.NewParseError("Client.EmbedBatch", err)
	}
	if parsed.Error != nil {
		return nil, shelf.NewNetworkError("Client.EmbedBatch",
			fmt.Errorf("provider error: %s", parsed.Error.Message))
	}
	if len(parsed.Data) != len(texts) {
		return nil, shelf.NewParseError("Client.EmbedBatch",
			fmt.Errorf("%w: %d embeddings for %d inputs", shelf.ErrMalformedResponse, len(parsed.Data), len(texts)))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
