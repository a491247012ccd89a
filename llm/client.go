package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	shelf "github.com/magicshelf/shelf"
)

// ClientConfig configures the OpenAI-compatible completion client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://integrate.api.nvidia.com/v1.
	BaseURL string

	// APIKey authenticates requests. Optional for local providers.
	APIKey string

	// Model is the model identifier passed on every request.
	Model string

	// Temperature is passed through to the provider. The pipeline runs
	// with 0 so re-runs are reproducible modulo provider drift.
	Temperature float64

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// Client is an OpenAI-compatible chat-completion client.
// It works against any provider exposing /chat/completions, including
// NVIDIA NIM, OpenAI, and local Ollama in compatibility mode.
type Client struct {
	config  ClientConfig
	client  *http.Client
	tracker TokenTracker
	stage   string
}

// NewClient creates a completion client from the given configuration.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// WithTracker attaches a token tracker; usage reported by the provider is
// recorded under the given stage name.
func (c *Client) WithTracker(tracker TokenTracker, stage string) *Client {
	c.tracker = tracker
	c.stage = stage
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete implements Completer against the provider's chat endpoint.
// Quota and authorization rejections (401/402/403/429) are returned as
// shelf.ErrQuota so the pipeline can distinguish them from transient
// failures; timeouts map to a timeout error.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", shelf.NewInternalError("Client.Complete", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", shelf.NewInternalError("Client.Complete", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", shelf.NewTimeoutError("Client.Complete", err)
		}
		return "", shelf.NewNetworkError("Client.Complete", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shelf.NewNetworkError("Client.Complete", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
		return "", shelf.NewQuotaError("Client.Complete",
			fmt.Errorf("%w: status %d: %s", shelf.ErrQuota, resp.StatusCode, truncate(data, 200)))
	default:
		return "", shelf.NewNetworkError("Client.Complete",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", shelf.NewParseError("Client.Complete", err)
	}
	if parsed.Error != nil {
		return "", shelf.NewNetworkError("Client.Complete",
			fmt.Errorf("provider error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", shelf.NewParseError("Client.Complete",
			fmt.Errorf("%w: no choices", shelf.ErrMalformedResponse))
	}

	if c.tracker != nil {
		c.tracker.Add(c.stage, TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		})
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(data []byte, max int) string {
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
