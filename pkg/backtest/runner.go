// Package backtest hands validated strategies to the external code
// generator and backtester, then collects their trade log and metrics.
//
// The external tools share one working directory: codegen reads
// strategy.json there, and the backtester writes trades_<SYM>.csv,
// metrics_<SYM>.txt and indicators_<SYM>.csv next to it. Runs are therefore
// serialized per Runner.
package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/algomatic/stratgraph/pkg/metrics"
	"github.com/algomatic/stratgraph/pkg/persistence"
	"github.com/algomatic/stratgraph/pkg/runtracker"
)

// Stages of one run, in order.
const (
	StageCodegen  = "codegen"
	StageBacktest = "backtest"
	StageCollect  = "collect"
)

// Stages lists every stage of a run.
var Stages = []string{StageCodegen, StageBacktest, StageCollect}

// StrategyFile is the name of the hand-off document in the work directory.
const StrategyFile = "strategy.json"

// DefaultTimeout bounds one run when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

var (
	// ErrInvalidStrategy is returned for strategies whose last validation
	// failed.
	ErrInvalidStrategy = errors.New("cannot backtest invalid strategy")

	// ErrBadRequest is returned for malformed run parameters.
	ErrBadRequest = errors.New("invalid backtest request")
)

var symbolRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config locates the external tools.
type Config struct {
	WorkDir      string
	CodegenPath  string
	BacktestPath string
	Timeout      time.Duration
}

// Window optionally restricts the backtest to [Start, End], both
// YYYY-MM-DD. Either both are set or neither.
type Window struct {
	Start string `json:"startDate,omitempty"`
	End   string `json:"endDate,omitempty"`
}

func (w Window) validate() error {
	if w.Start == "" && w.End == "" {
		return nil
	}
	if w.Start == "" || w.End == "" {
		return fmt.Errorf("%w: startDate and endDate must be given together", ErrBadRequest)
	}
	start, err := time.Parse(time.DateOnly, w.Start)
	if err != nil {
		return fmt.Errorf("%w: startDate %q is not YYYY-MM-DD", ErrBadRequest, w.Start)
	}
	end, err := time.Parse(time.DateOnly, w.End)
	if err != nil {
		return fmt.Errorf("%w: endDate %q is not YYYY-MM-DD", ErrBadRequest, w.End)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: endDate is before startDate", ErrBadRequest)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	RunID         string                 `json:"runId"`
	StrategyID    string                 `json:"strategyId"`
	Symbol        string                 `json:"symbol"`
	Timeframe     string                 `json:"timeframe"`
	Trades        []persistence.TradeRow `json:"trades"`
	Metrics       map[string]float64     `json:"metrics"`
	Indicators    []persistence.TradeRow `json:"indicators"`
	ConsoleOutput string                 `json:"consoleOutput"`
	BacktestDate  time.Time              `json:"backtestDate"`
}

// Record converts the result into its stored form.
func (r *Result) Record() *persistence.BacktestRecord {
	return &persistence.BacktestRecord{
		RunID:      r.RunID,
		StrategyID: r.StrategyID,
		Symbol:     r.Symbol,
		Metrics:    r.Metrics,
		Trades:     r.Trades,
		CreatedAt:  r.BacktestDate,
	}
}

// Runner drives the external tools.
type Runner struct {
	cfg     Config
	tracker *runtracker.Tracker
	metrics *metrics.Registry
	logger  *slog.Logger

	mu sync.Mutex
}

// NewRunner creates a Runner. A nil tracker gets a private one; reg may be
// nil.
func NewRunner(cfg Config, tracker *runtracker.Tracker, reg *metrics.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = runtracker.NewTracker(logger, "")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	// Tools run inside WorkDir, so every path is made absolute up front.
	for _, p := range []*string{&cfg.WorkDir, &cfg.CodegenPath, &cfg.BacktestPath} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
	return &Runner{cfg: cfg, tracker: tracker, metrics: reg, logger: logger}
}

// Tracker returns the run tracker.
func (r *Runner) Tracker() *runtracker.Tracker { return r.tracker }

// Run backtests a stored strategy. Invalid strategies are refused before
// anything is written.
func (r *Runner) Run(ctx context.Context, s *persistence.Strategy, w Window) (*Result, error) {
	if !s.IsValid {
		return nil, ErrInvalidStrategy
	}
	if s.Graph == nil {
		return nil, fmt.Errorf("%w: strategy has no graph", ErrBadRequest)
	}
	symbol := s.Graph.Symbol
	if symbol == "" {
		symbol = s.Symbol
	}
	if !symbolRe.MatchString(symbol) {
		return nil, fmt.Errorf("%w: unusable symbol %q", ErrBadRequest, symbol)
	}
	if err := w.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	runID := r.tracker.StartRun(s.ID, symbol, s.Timeframe, Stages)
	res, err := r.run(ctx, runID, s, symbol, w)
	r.metrics.ObserveBacktest(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("backtest run %s: %w", runID, err)
	}

	r.logger.Info("Backtest completed",
		"run_id", runID,
		"strategy_id", s.ID,
		"symbol", symbol,
		"trades", len(res.Trades),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, runID string, s *persistence.Strategy, symbol string, w Window) (*Result, error) {
	doc := s.Graph.BacktestDocument(s.Timeframe)
	doc.Symbol = symbol
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, r.fail(runID, StageCodegen, fmt.Errorf("encoding strategy: %w", err))
	}
	strategyPath := filepath.Join(r.cfg.WorkDir, StrategyFile)

	r.tracker.MarkStageRunning(runID, StageCodegen)
	if err := os.WriteFile(strategyPath, data, 0o644); err != nil {
		return nil, r.fail(runID, StageCodegen, fmt.Errorf("writing %s: %w", StrategyFile, err))
	}
	if _, err := r.exec(ctx, r.cfg.CodegenPath, strategyPath); err != nil {
		return nil, r.fail(runID, StageCodegen, err)
	}
	r.tracker.MarkStageCompleted(runID, StageCodegen)

	r.tracker.MarkStageRunning(runID, StageBacktest)
	args := []string{symbol}
	if w.Start != "" {
		args = append(args, w.Start, w.End)
	}
	output, err := r.exec(ctx, r.cfg.BacktestPath, args...)
	if err != nil {
		return nil, r.fail(runID, StageBacktest, err)
	}
	r.tracker.MarkStageCompleted(runID, StageBacktest)

	r.tracker.MarkStageRunning(runID, StageCollect)
	res, err := r.collect(symbol)
	if err != nil {
		return nil, r.fail(runID, StageCollect, err)
	}
	res.RunID = runID
	res.StrategyID = s.ID
	res.Timeframe = s.Timeframe
	res.ConsoleOutput = output
	r.tracker.SetTrades(runID, len(res.Trades))
	r.tracker.MarkStageCompleted(runID, StageCollect)
	return res, nil
}

func (r *Runner) fail(runID, stage string, err error) error {
	r.tracker.MarkStageFailed(runID, stage, err.Error())
	return fmt.Errorf("%s: %w", stage, err)
}

func (r *Runner) exec(ctx context.Context, path string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running external tool", "path", path, "args", args)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", filepath.Base(path), ctx.Err())
		}
		return "", fmt.Errorf("%s failed: %w: %s", filepath.Base(path), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}

func (r *Runner) collect(symbol string) (*Result, error) {
	trades, err := readCSV(filepath.Join(r.cfg.WorkDir, "trades_"+symbol+".csv"))
	if err != nil {
		return nil, err
	}
	indicators, err := readCSV(filepath.Join(r.cfg.WorkDir, "indicators_"+symbol+".csv"))
	if err != nil {
		return nil, err
	}

	metricsPath := filepath.Join(r.cfg.WorkDir, "metrics_"+symbol+".txt")
	text, err := os.ReadFile(metricsPath)
	if err != nil {
		return nil, fmt.Errorf("reading metrics: %w", err)
	}

	return &Result{
		Symbol:       symbol,
		Trades:       trades,
		Indicators:   indicators,
		Metrics:      ParseMetrics(string(text)),
		BacktestDate: time.Now().UTC(),
	}, nil
}

// HealthStatus reports whether the external tools are in place.
type HealthStatus struct {
	Healthy bool              `json:"success"`
	Message string            `json:"message"`
	Checks  map[string]bool   `json:"checks"`
	Paths   map[string]string `json:"paths"`
}

// Health checks that both executables and the work directory exist.
func (r *Runner) Health() HealthStatus {
	checks := map[string]bool{
		"backtestExe": isFile(r.cfg.BacktestPath),
		"codegenExe":  isFile(r.cfg.CodegenPath),
		"strategyDir": isDir(r.cfg.WorkDir),
	}
	healthy := true
	for _, ok := range checks {
		healthy = healthy && ok
	}
	msg := "Backtest system is ready"
	if !healthy {
		msg = "Backtest system has missing components"
	}
	return HealthStatus{
		Healthy: healthy,
		Message: msg,
		Checks:  checks,
		Paths: map[string]string{
			"backtestExe": r.cfg.BacktestPath,
			"codegenExe":  r.cfg.CodegenPath,
			"strategyDir": r.cfg.WorkDir,
		},
	}
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
