package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/pipeline"
	"github.com/magicshelf/shelf/queue"
)

// shelfModel answers every pipeline and retrieval prompt with fixed,
// mutually consistent responses so runs complete offline.
func shelfModel() llm.CompleterFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Provide a title and a list of 10"):
			return "Title: Doc\n- Science\n", nil
		case strings.Contains(prompt, "Define the most user-friendly"):
			return "hierarchical_classification:\n- Science (2)\ntags:\n- Report (2)\n", nil
		case strings.Contains(prompt, "Assign the most relevant location"):
			return "hierarchical_classification:\n- Science\ntags:\n- Report\n", nil
		case strings.Contains(prompt, "Define the document type"):
			return "report\n", nil
		case strings.Contains(prompt, "Clean this list of types"):
			return `{"cleaned_types": ["report"], "mapping": {"report": ["report"]}}`, nil
		case strings.Contains(prompt, "What is the best prompt"):
			return "Summarize this report with a title.", nil
		case strings.Contains(prompt, "Summarize this report with a title."):
			return "# Report Summary", nil
		case strings.Contains(prompt, "Summary with title:"):
			return "# Summary", nil
		case strings.Contains(prompt, pipeline.CategoryIntroQuery):
			return "An introduction.", nil
		case strings.Contains(prompt, "hierarchical classification system"):
			return "hierarchical_classification_locations:\n- Science, score:80\ntags:\n- Report, score:90\n", nil
		default:
			return "the answer", nil
		}
	}
}

func shelfEmbedder() embed.EmbedderFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 1}, nil
	}
}

func testServer(t *testing.T, runQueue queue.Client) (*Server, string) {
	t.Helper()

	runsDir := t.TempDir()
	s, err := New(Config{
		Addr:    "127.0.0.1:0",
		RunsDir: runsDir,
		Pipeline: pipeline.Config{
			Workers: 1,
		},
	}, shelfModel(), shelfEmbedder(), runQueue, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.listener.Close() })

	return s, runsDir
}

func inputDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("alpha document body"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beta.txt"), []byte("beta document body"), 0o644))
	return dir
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

// launchAndWait starts a run through the API and polls until it finishes.
func launchAndWait(t *testing.T, s *Server, input string) string {
	t.Helper()

	rec := doRequest(t, s, http.MethodPost, "/runs",
		fmt.Sprintf(`{"run_id": "run-test", "input_dir": %q}`, input))
	require.Equal(t, http.StatusAccepted, rec.Code)

	deadline := time.After(30 * time.Second)
	for {
		status := doRequest(t, s, http.MethodGet, "/runs/run-test/status", "")
		require.Equal(t, http.StatusOK, status.Code)

		state, _ := decodeBody(t, status)["state"].(string)
		switch state {
		case pipeline.StateCompleted:
			return "run-test"
		case pipeline.StateFailed:
			t.Fatalf("run failed: %s", status.Body.String())
		}

		select {
		case <-deadline:
			t.Fatal("run did not complete in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestLaunchRun_Validation(t *testing.T) {
	s, _ := testServer(t, nil)

	t.Run("missing input_dir", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/runs", `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["error"], "input_dir")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/runs", `{`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("path traversal in run_id", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/runs", `{"run_id": "../evil", "input_dir": "/tmp"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRunLifecycle(t *testing.T) {
	s, _ := testServer(t, nil)
	runID := launchAndWait(t, s, inputDir(t))

	t.Run("status has every stage", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/status", "")
		require.Equal(t, http.StatusOK, rec.Code)

		payload := decodeBody(t, rec)
		assert.Equal(t, pipeline.StateCompleted, payload["state"])
		assert.Len(t, payload["completed_stages"], 11)
	})

	t.Run("logs record start and completion", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/logs", "")
		require.Equal(t, http.StatusOK, rec.Code)

		logs := decodeBody(t, rec)["logs"].([]any)
		require.NotEmpty(t, logs)
		assert.Contains(t, logs[0], "run started")
		assert.Contains(t, logs[len(logs)-1], "run completed")
	})

	t.Run("run listing includes the run", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs", "")
		require.Equal(t, http.StatusOK, rec.Code)

		runs := decodeBody(t, rec)["runs"].([]any)
		require.Len(t, runs, 1)
		entry := runs[0].(map[string]any)
		assert.Equal(t, runID, entry["run_id"])
		assert.Equal(t, pipeline.StateCompleted, entry["state"])
	})

	t.Run("category tree", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/tree", "")
		require.Equal(t, http.StatusOK, rec.Code)

		tree := decodeBody(t, rec)["category_tree"].(map[string]any)
		subs := tree["subcategories"].([]any)
		require.Len(t, subs, 1)
		assert.Equal(t, "Science", subs[0].(map[string]any)["name"])
	})

	t.Run("digraph", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/digraph", "")
		require.Equal(t, http.StatusOK, rec.Code)

		payload := decodeBody(t, rec)
		// root, the Science branch, and two document leaves
		assert.Len(t, payload["nodes"], 4)
		assert.Len(t, payload["edges"], 3)
	})

	t.Run("tags digraph", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/tags", "")
		require.Equal(t, http.StatusOK, rec.Code)

		payload := decodeBody(t, rec)
		// the Report tag and two documents
		assert.Len(t, payload["nodes"], 3)
	})

	t.Run("branch summary", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/nodes/Science/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "# Summary", decodeBody(t, rec)["summary"])
	})

	t.Run("root summary", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/nodes/root/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "An introduction.", decodeBody(t, rec)["summary"])
	})

	t.Run("node text and similar nodes", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/digraph", "")
		require.Equal(t, http.StatusOK, rec.Code)

		// Leaf vertices are document node IDs.
		var docID string
		for _, raw := range decodeBody(t, rec)["nodes"].([]any) {
			n := raw.(map[string]any)
			id := n["id"].(string)
			if id != "root" && id != "Science" {
				docID = id
				break
			}
		}
		require.NotEmpty(t, docID)

		text := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/nodes/"+docID+"/text", "")
		require.Equal(t, http.StatusOK, text.Code)
		assert.Equal(t, "# Report Summary", decodeBody(t, text)["text"])

		similar := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/nodes/"+docID+"/similar", "")
		require.Equal(t, http.StatusOK, similar.Code)
		assert.Len(t, decodeBody(t, similar)["similar_nodes"], 1)
	})

	t.Run("query", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/query?q=what+is+alpha", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "the answer", decodeBody(t, rec)["answer"])
	})

	t.Run("query without parameter", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/query", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUnknownRun(t *testing.T) {
	s, _ := testServer(t, nil)

	for _, target := range []string{
		"/runs/nope/status",
		"/runs/nope/logs",
		"/runs/nope/tree",
		"/runs/nope/digraph",
		"/runs/nope/tags",
		"/runs/nope/nodes/x/text",
		"/runs/nope/nodes/x/summary",
		"/runs/nope/query?q=hello",
	} {
		rec := doRequest(t, s, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestUnknownNode(t *testing.T) {
	s, _ := testServer(t, nil)
	runID := launchAndWait(t, s, inputDir(t))

	rec := doRequest(t, s, http.MethodGet, "/runs/"+runID+"/nodes/missing/text", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/runs/"+runID+"/nodes/missing/summary", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLaunchRun_Queued(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(queue.RedisOptions{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s, runsDir := testServer(t, client)

	rec := doRequest(t, s, http.MethodPost, "/runs", `{"run_id": "queued-run", "input_dir": "/data/docs"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", decodeBody(t, rec)["state"])

	job, err := client.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "queued-run", job.RunID)
	assert.Equal(t, "/data/docs", job.InputDir)
	assert.Equal(t, filepath.Join(runsDir, "queued-run"), job.RunDir)
}
