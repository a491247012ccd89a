package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/classify"
	"github.com/magicshelf/shelf/pipeline"
	"github.com/magicshelf/shelf/queue"
)

// launchRequest is the body of POST /runs.
type launchRequest struct {
	RunID    string `json:"run_id,omitempty"`
	InputDir string `json:"input_dir"`
}

// runSummary is one entry of the run listing.
type runSummary struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLaunchRun(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InputDir == "" {
		writeError(w, http.StatusBadRequest, "input_dir is required")
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if strings.ContainsAny(req.RunID, "/\\") {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}

	runDir := filepath.Join(s.config.RunsDir, req.RunID)

	if s.runQueue != nil {
		job := queue.Job{
			RunID:       req.RunID,
			InputDir:    req.InputDir,
			RunDir:      runDir,
			SubmittedAt: time.Now().UnixMilli(),
		}
		if err := s.runQueue.Enqueue(r.Context(), job); err != nil {
			s.logger.Error("failed to enqueue run", "run_id", req.RunID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to enqueue run")
			return
		}
		writeJSON(w, http.StatusAccepted, runSummary{RunID: req.RunID, State: "queued"})
		return
	}

	status := pipeline.NewStatus(req.RunID)
	s.mu.Lock()
	s.live[req.RunID] = status
	s.mu.Unlock()

	cfg := s.config.Pipeline
	cfg.InputDir = req.InputDir
	cfg.RunDir = runDir
	p := pipeline.New(cfg, s.completer, s.embedder, s.logger)

	go func() {
		// The request context dies with the response; the run must not.
		if err := p.Run(context.Background(), status); err != nil {
			s.logger.Error("background run failed", "run_id", req.RunID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, runSummary{RunID: req.RunID, State: pipeline.StateRunning})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.RunsDir)
	if err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	runs := make([]runSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runs = append(runs, runSummary{
			RunID: entry.Name(),
			State: s.runState(entry.Name()),
		})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	s.mu.Lock()
	status, ok := s.live[runID]
	s.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, status.Snapshot())
		return
	}

	loaded, err := pipeline.LoadStatus(filepath.Join(s.config.RunsDir, runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "unknown run "+runID)
			return
		}
		s.logger.Error("failed to load status", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	s.mu.Lock()
	status, ok := s.live[runID]
	s.mu.Unlock()
	if !ok {
		loaded, err := pipeline.LoadStatus(filepath.Join(s.config.RunsDir, runID))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeError(w, http.StatusNotFound, "unknown run "+runID)
				return
			}
			s.logger.Error("failed to load status", "run_id", runID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load status")
			return
		}
		status = loaded
	}

	snap := status.Snapshot()
	logs := snap.Logs
	if logs == nil {
		logs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"logs": logs})
}

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	store, ok := s.loadStore(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category_tree": store.CategoryTree()})
}

func (s *Server) handleTreeDigraph(w http.ResponseWriter, r *http.Request) {
	store, ok := s.loadStore(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.TreeDigraph())
}

func (s *Server) handleTagsDigraph(w http.ResponseWriter, r *http.Request) {
	store, ok := s.loadStore(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.TagsDigraph())
}

func (s *Server) handleNodeText(w http.ResponseWriter, r *http.Request) {
	store, ok := s.loadStore(w, r.PathValue("id"))
	if !ok {
		return
	}
	nodeID := r.PathValue("node")
	if _, found := store.Node(nodeID); !found {
		writeError(w, http.StatusNotFound, "unknown node "+nodeID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": store.NodeText(nodeID)})
}

// handleNodeSummary resolves a digraph vertex to its summary: branch
// vertices carry their location summary, "root" the root introduction.
func (s *Server) handleNodeSummary(w http.ResponseWriter, r *http.Request) {
	store, ok := s.loadStore(w, r.PathValue("id"))
	if !ok {
		return
	}
	nodeID := r.PathValue("node")
	summaryID, found := store.SummaryIDForLocation(nodeID)
	if !found {
		writeError(w, http.StatusNotFound, "no summary for "+nodeID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": store.NodeText(summaryID)})
}

func (s *Server) handleSimilarNodes(w http.ResponseWriter, r *http.Request) {
	store, ok := s.loadStore(w, r.PathValue("id"))
	if !ok {
		return
	}
	similar := store.SimilarNodeIDs(r.PathValue("node"))
	if similar == nil {
		similar = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"similar_nodes": similar})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	query := r.URL.Query().Get("q")
	if query == "" {
		query = r.URL.Query().Get("query")
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	querier, err := pipeline.NewQuerier(filepath.Join(s.config.RunsDir, runID), s.completer, s.embedder, s.logger)
	if err != nil {
		s.writeStoreError(w, runID, err)
		return
	}

	result, err := querier.WithTopK(s.config.QueryTopK).Query(r.Context(), query)
	if err != nil {
		s.logger.Error("query failed", "run_id", runID, "error", err)
		writeError(w, errorStatus(err), "query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// runState reports a run's state from its live record or its persisted
// status file.
func (s *Server) runState(runID string) string {
	s.mu.Lock()
	status, ok := s.live[runID]
	s.mu.Unlock()
	if ok {
		return status.Snapshot().State
	}
	if loaded, err := pipeline.LoadStatus(filepath.Join(s.config.RunsDir, runID)); err == nil {
		return loaded.State
	}
	return pipeline.StateNotStarted
}

// loadStore reads the final snapshot of a run, writing the error response
// itself when the run is missing or unfinished.
func (s *Server) loadStore(w http.ResponseWriter, runID string) (*classify.Store, bool) {
	store, err := classify.Load(filepath.Join(s.config.RunsDir, runID, pipeline.SnapshotFinal), s.logger)
	if err != nil {
		s.writeStoreError(w, runID, err)
		return nil, false
	}
	return store, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, shelf.ErrStoreNotFound) {
		writeError(w, http.StatusNotFound, "run "+runID+" has no finished shelf")
		return
	}
	s.logger.Error("failed to load run", "run_id", runID, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to load run")
}

// errorStatus maps pipeline errors to HTTP statuses. Provider quota
// failures surface as 401 so clients know the API key is the problem.
func errorStatus(err error) int {
	var shelfErr *shelf.Error
	if errors.As(err, &shelfErr) {
		switch shelfErr.Kind {
		case shelf.KindNotFound:
			return http.StatusNotFound
		case shelf.KindValidation:
			return http.StatusBadRequest
		case shelf.KindQuota:
			return http.StatusUnauthorized
		case shelf.KindBudget:
			return http.StatusTooManyRequests
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
