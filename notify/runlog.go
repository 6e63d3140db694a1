package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/tuition-engine/coverage"
)

// =============================================================================
// RUN LOG - What the scheduler did, and the once-per-day guard
// =============================================================================

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one invocation of Policy.RunOnce.
type RunRecord struct {
	ID          string
	Date        coverage.Date
	Trigger     Trigger
	Status      RunStatus
	Summary     Summary
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// RunLog persists run records.
type RunLog interface {
	// SaveRun inserts or updates the record with the same ID.
	SaveRun(ctx context.Context, r RunRecord) error
	// ListRuns returns the latest runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	// HasCompletedRun reports whether any run finished for date.
	HasCompletedRun(ctx context.Context, date coverage.Date) (bool, error)
}

// MemoryRunLog keeps runs in memory.
type MemoryRunLog struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{runs: make(map[string]RunRecord)}
}

func (m *MemoryRunLog) SaveRun(_ context.Context, r RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *MemoryRunLog) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRunLog) HasCompletedRun(_ context.Context, date coverage.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		if r.Status == RunCompleted && r.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}
