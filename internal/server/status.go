package server

import (
	"sync"
	"time"

	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/scheduler"
)

const (
	StateRunning  = "running"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// RunStatus is the JSON view of the current run.
type RunStatus struct {
	RunID      string            `json:"run_id"`
	State      string            `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Summary    scheduler.Summary `json:"summary"`
	Checkpoint map[string]int    `json:"checkpoint,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Tracker follows a run as tasks finish. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status RunStatus
	// Stats, when set, adds checkpoint counts to every snapshot.
	Stats func() map[string]int
}

func NewTracker(runID string, total int) *Tracker {
	return &Tracker{
		status: RunStatus{
			RunID:     runID,
			State:     StateRunning,
			StartedAt: time.Now(),
			Summary:   scheduler.Summary{Total: total},
		},
	}
}

// Observe matches scheduler.OnResult.
func (t *Tracker) Observe(_ models.SkuTask, record *models.ExtractedRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if record != nil {
		t.status.Summary.Succeeded++
	} else {
		t.status.Summary.Failed++
	}
}

// Finish stores the final summary of the run.
func (t *Tracker) Finish(summary scheduler.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.status.FinishedAt = &now
	t.status.Summary = summary
	t.status.State = StateFinished
	if err != nil {
		t.status.State = StateFailed
		t.status.Error = err.Error()
	}
}

func (t *Tracker) Snapshot() RunStatus {
	t.mu.RLock()
	s := t.status
	t.mu.RUnlock()

	if t.Stats != nil {
		s.Checkpoint = t.Stats()
	}
	return s
}
