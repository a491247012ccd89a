package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicshelf/shelf/classify"
	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/extract"
	"github.com/magicshelf/shelf/llm"
)

// scriptedModel answers each pipeline prompt kind with a fixed, mutually
// consistent response, so a whole run works offline.
func scriptedModel() llm.CompleterFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Provide a title and a list of 10"):
			return "Title: Doc\n- Science\n", nil
		case strings.Contains(prompt, "Define the most user-friendly"):
			return "hierarchical_classification:\n- Science (2)\ntags:\n- Report (2)\n", nil
		case strings.Contains(prompt, "Assign the most relevant location"):
			return "hierarchical_classification:\n- Science\ntags:\n- Report\n", nil
		case strings.Contains(prompt, "Define the document type"):
			return "scientific-paper\n", nil
		case strings.Contains(prompt, "Clean this list of types"):
			return `{"cleaned_types": ["paper"], "mapping": {"paper": ["scientific-paper"]}}`, nil
		case strings.Contains(prompt, "What is the best prompt"):
			return "Summarize carefully with a title.", nil
		case strings.Contains(prompt, "Summarize carefully with a title."):
			return "# Typed Summary", nil
		case strings.Contains(prompt, "Summary with title:"):
			return "# Summary", nil
		case strings.Contains(prompt, CategoryIntroQuery):
			return "A gentle introduction.", nil
		case strings.Contains(prompt, "hierarchical classification system"):
			return "hierarchical_classification_locations:\n- Science, score:80\ntags:\n- Report, score:90\n", nil
		default:
			return "final answer", nil
		}
	}
}

func lengthEmbedder() embed.EmbedderFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 1}, nil
	}
}

func writeInput(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestPipeline_FullRun(t *testing.T) {
	inputDir := t.TempDir()
	runDir := filepath.Join(t.TempDir(), "run-1")
	writeInput(t, inputDir, map[string]string{
		"alpha.txt":  "alpha document body",
		"beta.md":    "beta document body",
		"ignore.png": "binary",
	})

	p := New(Config{InputDir: inputDir, RunDir: runDir, Workers: 1},
		scriptedModel(), lengthEmbedder(), nil)

	status := NewStatus("run-1")
	require.NoError(t, p.Run(context.Background(), status))

	snap := status.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, p.StageNames(), snap.CompletedStages)
	assert.NotNil(t, snap.FinishedAt)

	for _, name := range []string{
		documentsFile, summariesFile, indexFile,
		SnapshotClassified, SnapshotTypes, SnapshotTypedSummaries,
		SnapshotBranchSummaries, SnapshotPathSummaries, SnapshotFinal,
		statusFile,
	} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, name)
	}

	store, err := classify.Load(filepath.Join(runDir, SnapshotFinal), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Science"}, store.TreeSchema())
	assert.Equal(t, []string{"Report"}, store.Tags())
	assert.Equal(t, []string{"paper"}, store.Types())

	prompt, ok := store.TypePrompt("paper")
	require.True(t, ok)
	assert.Equal(t, "Summarize carefully with a title.", prompt)

	// Both documents are filed under Science, with typed summaries.
	ids := store.NodesForLocation("Science")
	require.Len(t, ids, 2)
	for _, id := range ids {
		assert.Equal(t, "# Typed Summary", store.NodeText(id))
		assert.Equal(t, "paper", store.Nodes([]string{id})[0].MetadataString(extract.MetaType))
	}

	// Location summary plus a root path summary.
	summaryID, ok := store.SummaryIDForLocation("Science")
	require.True(t, ok)
	assert.Equal(t, "# Summary", store.NodeText(summaryID))

	rootID, ok := store.SummaryIDForLocation("root")
	require.True(t, ok)
	assert.Equal(t, "A gentle introduction.", store.NodeText(rootID))

	// The two summaries point at each other as similar.
	for _, id := range ids {
		similar := store.SimilarNodeIDs(id)
		require.Len(t, similar, 1)
		assert.NotEqual(t, id, similar[0])
	}

	// Every document summary keeps its source link.
	tree := store.CategoryTree()
	require.Len(t, tree.Subcategories, 1)
	for _, doc := range tree.Subcategories[0].Documents {
		assert.NotEmpty(t, doc.SourceNodeID)
		assert.NotEmpty(t, doc.Title)
	}
}

func TestPipeline_EmptyInputFails(t *testing.T) {
	p := New(Config{InputDir: t.TempDir(), RunDir: filepath.Join(t.TempDir(), "run")},
		scriptedModel(), lengthEmbedder(), nil)

	status := NewStatus("run-x")
	err := p.Run(context.Background(), status)
	require.Error(t, err)

	snap := status.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Contains(t, snap.Error, "ingest")
}

func TestQuerier(t *testing.T) {
	inputDir := t.TempDir()
	runDir := filepath.Join(t.TempDir(), "run-q")
	writeInput(t, inputDir, map[string]string{
		"alpha.txt": "alpha document body",
		"beta.txt":  "beta document body",
	})

	p := New(Config{InputDir: inputDir, RunDir: runDir, Workers: 1},
		scriptedModel(), lengthEmbedder(), nil)
	require.NoError(t, p.Run(context.Background(), NewStatus("run-q")))

	q, err := NewQuerier(runDir, scriptedModel(), lengthEmbedder(), nil)
	require.NoError(t, err)

	result, err := q.Query(context.Background(), "what does alpha say?")
	require.NoError(t, err)

	assert.Equal(t, "final answer", result.Answer)

	// Vector top-k plus classification matches, duplicates preserved.
	assert.Len(t, result.Sources, 4)
}

func TestQuerier_MissingRun(t *testing.T) {
	_, err := NewQuerier(filepath.Join(t.TempDir(), "nope"), scriptedModel(), lengthEmbedder(), nil)
	require.Error(t, err)
}

func TestLoadStatusRoundTrip(t *testing.T) {
	dir := t.TempDir()
	status := NewStatus("r")
	status.start()
	status.stageDone("ingest")
	require.NoError(t, status.Save(dir))

	loaded, err := LoadStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, loaded.State)
	assert.Equal(t, []string{"ingest"}, loaded.CompletedStages)
	require.Len(t, loaded.Logs, 2)
	assert.Contains(t, loaded.Logs[0], "run started")
	assert.Contains(t, loaded.Logs[1], "stage ingest completed")
}
