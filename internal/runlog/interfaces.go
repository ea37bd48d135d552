package runlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder audits sync runs. Nothing read back from a Recorder feeds
// reconciliation.
type Recorder interface {
	StartRun(ctx context.Context, budgetID, trigger string, dryRun bool) (string, error)
	MarkRunSucceeded(ctx context.Context, runID string, stats Stats) error
	MarkRunFailed(ctx context.Context, runID string, runErr error)
	ListRecentRuns(ctx context.Context, limit int) ([]*Run, error)
}

// MemoryRecorder keeps runs in process memory. It is the recorder used when
// no BigQuery project is configured.
type MemoryRecorder struct {
	mu   sync.RWMutex
	runs map[string]*Run
	now  func() time.Time
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string]*Run), now: time.Now}
}

func (m *MemoryRecorder) StartRun(ctx context.Context, budgetID, trigger string, dryRun bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := uuid.NewString()
	m.runs[runID] = &Run{
		RunID:     runID,
		BudgetID:  budgetID,
		Trigger:   trigger,
		DryRun:    dryRun,
		Status:    StatusRunning,
		StartedAt: m.now(),
	}
	return runID, nil
}

func (m *MemoryRecorder) MarkRunSucceeded(ctx context.Context, runID string, stats Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run, ok := m.runs[runID]; ok {
		finished := m.now()
		run.Status = StatusSuccess
		run.FinishedAt = &finished
		run.ErrorMessage = ""
		run.Stats = &stats
	}
	return nil
}

func (m *MemoryRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run, ok := m.runs[runID]; ok {
		finished := m.now()
		run.Status = StatusFailed
		run.FinishedAt = &finished
		run.ErrorMessage = truncateError(runErr)
	}
}

// ListRecentRuns returns copies of up to limit runs, newest first.
func (m *MemoryRecorder) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		cp := *run
		runs = append(runs, &cp)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

var _ Recorder = (*MemoryRecorder)(nil)
