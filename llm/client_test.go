package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shelf "github.com/magicshelf/shelf"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
}

func TestClient_Complete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "a summary"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16},
		})
	})

	tracker := NewTokenTracker()
	client = client.WithTracker(tracker, "summarize")

	out, err := client.Complete(context.Background(), "summarize this")
	require.NoError(t, err)
	assert.Equal(t, "a summary", out)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "summarize this", gotReq.Messages[0].Content)

	usage := tracker.ByStage("summarize")
	assert.Equal(t, 16, usage.TotalTokens)
}

func TestClient_Complete_QuotaStatuses(t *testing.T) {
	for _, status := range []int{401, 402, 403, 429} {
		client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", status)
		})

		_, err := client.Complete(context.Background(), "p")
		require.Error(t, err, "status %d", status)
		assert.ErrorIs(t, err, shelf.ErrQuota, "status %d", status)
		assert.True(t, shelf.IsFatal(err), "status %d", status)
	}
}

func TestClient_Complete_ServerError(t *testing.T) {
	client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shelf.ErrQuota)
}

func TestClient_Complete_NoChoices(t *testing.T) {
	client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, shelf.ErrMalformedResponse)
}
