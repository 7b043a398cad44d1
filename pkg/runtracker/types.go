// Package runtracker provides in-memory tracking of backtest run progress.
// It is queried by the API so clients can poll a run started
// asynchronously and see which stage it is in.
package runtracker

import (
	"time"
)

// RunStatus represents the overall status of a backtest run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// StageStatus represents the execution status of one stage of a run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageState tracks one stage of a run.
type StageState struct {
	Name         string      `json:"name"`
	Status       StageStatus `json:"status"`
	StartTime    *time.Time  `json:"start_time"`
	EndTime      *time.Time  `json:"end_time"`
	DurationSecs float64     `json:"duration_seconds"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Run tracks one backtest of one strategy.
type Run struct {
	RunID      string       `json:"run_id"`
	StrategyID string       `json:"strategy_id"`
	Symbol     string       `json:"symbol"`
	Timeframe  string       `json:"timeframe"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    *time.Time   `json:"end_time"`
	Status     RunStatus    `json:"status"`
	Stages     []StageState `json:"stages"`
	Trades     int          `json:"trades"`
	Error      string       `json:"error,omitempty"`
}

// Counts returns the number of completed, running, pending and failed
// stages. Skipped stages count as failed.
func (r *Run) Counts() (completed, running, pending, failed int) {
	for i := range r.Stages {
		switch r.Stages[i].Status {
		case StageCompleted:
			completed++
		case StageRunning:
			running++
		case StagePending:
			pending++
		case StageFailed, StageSkipped:
			failed++
		}
	}
	return
}

// ProgressPercent returns the completion percentage (0-100).
func (r *Run) ProgressPercent() int {
	if len(r.Stages) == 0 {
		return 0
	}
	completed, _, _, _ := r.Counts()
	return completed * 100 / len(r.Stages)
}

// ElapsedSeconds returns the number of seconds elapsed since the run started.
func (r *Run) ElapsedSeconds() float64 {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime).Seconds()
	}
	return time.Since(r.StartTime).Seconds()
}

func (r *Run) clone() *Run {
	cp := *r
	cp.Stages = make([]StageState, len(r.Stages))
	copy(cp.Stages, r.Stages)
	return &cp
}
