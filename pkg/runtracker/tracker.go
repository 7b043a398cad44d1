package runtracker

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker provides thread-safe management of backtest run state.
type Tracker struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	logger *slog.Logger

	startedAt time.Time
	version   string
}

// NewTracker creates a new run tracker.
func NewTracker(logger *slog.Logger, version string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Tracker{
		runs:      make(map[string]*Run),
		logger:    logger,
		startedAt: time.Now(),
		version:   version,
	}
}

// Version returns the version string.
func (t *Tracker) Version() string {
	return t.version
}

// UptimeSeconds returns seconds since the tracker was created.
func (t *Tracker) UptimeSeconds() float64 {
	return time.Since(t.startedAt).Seconds()
}

// StartRun registers a run with the given stages, all pending, and returns
// its run_id.
func (t *Tracker) StartRun(strategyID, symbol, timeframe string, stages []string) string {
	runID := uuid.NewString()

	states := make([]StageState, len(stages))
	for i, name := range stages {
		states[i] = StageState{Name: name, Status: StagePending}
	}

	run := &Run{
		RunID:      runID,
		StrategyID: strategyID,
		Symbol:     symbol,
		Timeframe:  timeframe,
		StartTime:  time.Now(),
		Status:     StatusRunning,
		Stages:     states,
	}

	t.mu.Lock()
	t.runs[runID] = run
	t.mu.Unlock()

	t.logger.Info("Backtest run started",
		"run_id", runID,
		"strategy_id", strategyID,
		"symbol", symbol,
		"stages", len(stages),
	)
	return runID
}

// MarkStageRunning marks a stage as running.
func (t *Tracker) MarkStageRunning(runID, stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stageLocked(runID, stage, "MarkStageRunning")
	if s == nil {
		return
	}
	now := time.Now()
	s.Status = StageRunning
	s.StartTime = &now
	t.logger.Debug("Stage running", "run_id", runID, "stage", stage)
}

// MarkStageCompleted marks a stage as completed. The run finishes when no
// stage is left pending or running.
func (t *Tracker) MarkStageCompleted(runID, stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stageLocked(runID, stage, "MarkStageCompleted")
	if s == nil {
		return
	}
	endStageLocked(s, StageCompleted)
	t.logger.Debug("Stage completed",
		"run_id", runID, "stage", stage, "duration_secs", s.DurationSecs,
	)
	t.maybeFinishRunLocked(t.runs[runID])
}

// MarkStageFailed marks a stage as failed and every pending stage after it
// as skipped, which fails the run.
func (t *Tracker) MarkStageFailed(runID, stage, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stageLocked(runID, stage, "MarkStageFailed")
	if s == nil {
		return
	}
	endStageLocked(s, StageFailed)
	s.ErrorMessage = errMsg

	run := t.runs[runID]
	run.Error = errMsg
	for i := range run.Stages {
		if run.Stages[i].Status == StagePending {
			run.Stages[i].Status = StageSkipped
		}
	}
	t.logger.Warn("Stage failed", "run_id", runID, "stage", stage, "error", errMsg)
	t.maybeFinishRunLocked(run)
}

// SetTrades records the number of trades the run produced.
func (t *Tracker) SetTrades(runID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if run, ok := t.runs[runID]; ok {
		run.Trades = n
	}
}

func (t *Tracker) stageLocked(runID, stage, op string) *StageState {
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn(op+": run not found", "run_id", runID)
		return nil
	}
	for i := range run.Stages {
		if run.Stages[i].Name == stage {
			return &run.Stages[i]
		}
	}
	t.logger.Warn(op+": stage not found in run", "run_id", runID, "stage", stage)
	return nil
}

func endStageLocked(s *StageState, status StageStatus) {
	now := time.Now()
	s.Status = status
	s.EndTime = &now
	if s.StartTime != nil {
		s.DurationSecs = now.Sub(*s.StartTime).Seconds()
	}
}

// maybeFinishRunLocked finalises the run once every stage is done. Must be
// called with t.mu held.
func (t *Tracker) maybeFinishRunLocked(run *Run) {
	completed, running, pending, failed := run.Counts()
	if running > 0 || pending > 0 {
		return
	}
	now := time.Now()
	run.EndTime = &now
	if failed > 0 {
		run.Status = StatusFailed
	} else {
		run.Status = StatusCompleted
	}
	t.logger.Info("Backtest run finished",
		"run_id", run.RunID,
		"status", run.Status,
		"completed", completed,
		"failed", failed,
		"elapsed_secs", run.ElapsedSeconds(),
	)
}

// GetRun returns a snapshot of the run with the given ID, or nil if not found.
func (t *Tracker) GetRun(runID string) *Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return nil
	}
	return run.clone()
}

// ListRuns returns snapshots of all runs, newest first. Empty filters match
// everything.
func (t *Tracker) ListRuns(statusFilter, strategyFilter string, limit int) []*Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Run, 0, len(t.runs))
	for _, run := range t.runs {
		if statusFilter != "" && string(run.Status) != statusFilter {
			continue
		}
		if strategyFilter != "" && run.StrategyID != strategyFilter {
			continue
		}
		result = append(result, run.clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
