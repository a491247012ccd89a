package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Run states as exposed by the API.
const (
	StateNotStarted = "not started"
	StateRunning    = "running"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// statusFile is the status record's file name inside a run directory.
const statusFile = "status.json"

// Status is the progress record of one run. It is safe for concurrent use
// so a background run and the API can share it.
type Status struct {
	mu sync.Mutex

	RunID           string     `json:"run_id"`
	State           string     `json:"state"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	CompletedStages []string   `json:"completed_stages"`
	Error           string     `json:"error,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`

	// Logs holds timestamped progress lines, appended only by the run
	// itself.
	Logs []string `json:"logs"`
}

// NewStatus creates a not-started status for the run.
func NewStatus(runID string) *Status {
	return &Status{RunID: runID, State: StateNotStarted}
}

func (s *Status) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.State = StateRunning
	s.StartedAt = &now
	s.FinishedAt = nil
	s.Error = ""
	s.appendLog("run started")
}

func (s *Status) enterStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentStage = stage
	s.appendLog("stage " + stage + " started")
}

// appendLog must be called with the mutex held.
func (s *Status) appendLog(line string) {
	s.Logs = append(s.Logs, time.Now().UTC().Format(time.RFC3339)+" "+line)
}

func (s *Status) stageDone(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompletedStages = append(s.CompletedStages, stage)
	s.CurrentStage = ""
	s.appendLog("stage " + stage + " completed")
}

func (s *Status) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.State = StateCompleted
	s.CurrentStage = ""
	s.FinishedAt = &now
	s.appendLog("run completed")
}

func (s *Status) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.State = StateFailed
	s.Error = err.Error()
	s.FinishedAt = &now
	s.appendLog("run failed: " + err.Error())
}

// Snapshot returns a copy safe to serve while the run keeps mutating the
// status.
func (s *Status) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		RunID:           s.RunID,
		State:           s.State,
		CurrentStage:    s.CurrentStage,
		CompletedStages: append([]string(nil), s.CompletedStages...),
		Error:           s.Error,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		Logs:            append([]string(nil), s.Logs...),
	}
}

// Save writes the status record into the run directory.
func (s *Status) Save(runDir string) error {
	snap := s.Snapshot()
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, statusFile), data, 0o644); err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

// LoadStatus reads the status record of a run directory.
func LoadStatus(runDir string) (*Status, error) {
	data, err := os.ReadFile(filepath.Join(runDir, statusFile))
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &s, nil
}
