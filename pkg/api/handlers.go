// Package api provides the HTTP handlers for the strategy graph service.
//
// Endpoints:
//
//	GET    /api/v1/status                  - Service health check
//	GET    /api/v1/catalog                 - DSL catalog
//	POST   /api/v1/validate                - Validate a graph
//	POST   /api/v1/repair                  - Normalize and validate a graph
//	POST   /api/v1/strategies/interpret    - Interpret a natural-language strategy
//	GET    /api/v1/strategies              - List stored strategies
//	GET    /api/v1/strategies/{id}         - Get one strategy
//	PUT    /api/v1/strategies/{id}         - Replace a strategy's graph
//	DELETE /api/v1/strategies/{id}         - Delete a strategy
//	POST   /api/v1/backtest/{id}           - Backtest a stored strategy
//	GET    /api/v1/backtest/health         - Backtest tool readiness
//	GET    /api/v1/backtest/runs           - List backtest runs
//	GET    /api/v1/backtest/runs/{run_id}  - Backtest run progress
//	GET    /metrics                        - Prometheus metrics
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/algomatic/stratgraph/pkg/backtest"
	"github.com/algomatic/stratgraph/pkg/catalog"
	"github.com/algomatic/stratgraph/pkg/dsl"
	"github.com/algomatic/stratgraph/pkg/events"
	"github.com/algomatic/stratgraph/pkg/interpret"
	"github.com/algomatic/stratgraph/pkg/ir"
	"github.com/algomatic/stratgraph/pkg/metrics"
	"github.com/algomatic/stratgraph/pkg/persistence"
	"github.com/algomatic/stratgraph/pkg/runtracker"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server holds dependencies for the API handlers.
type Server struct {
	Service *interpret.Service
	Store   persistence.Store
	Runner  *backtest.Runner
	Tracker *runtracker.Tracker
	Bus     interpret.Publisher
	Metrics *metrics.Registry
	Logger  *slog.Logger

	validate *validator.Validate
}

// NewServer creates a new API server. runner, bus and reg may be nil; the
// backtest endpoints then answer 503.
func NewServer(svc *interpret.Service, store persistence.Store, runner *backtest.Runner,
	bus interpret.Publisher, reg *metrics.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var tracker *runtracker.Tracker
	if runner != nil {
		tracker = runner.Tracker()
	} else {
		tracker = runtracker.NewTracker(logger, "")
	}
	return &Server{
		Service:  svc,
		Store:    store,
		Runner:   runner,
		Tracker:  tracker,
		Bus:      bus,
		Metrics:  reg,
		Logger:   logger,
		validate: validator.New(),
	}
}

// RegisterRoutes registers all API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.HandleStatus)
	mux.HandleFunc("GET /api/v1/catalog", s.HandleCatalog)
	mux.HandleFunc("POST /api/v1/validate", s.HandleValidate)
	mux.HandleFunc("POST /api/v1/repair", s.HandleRepair)

	mux.HandleFunc("POST /api/v1/strategies/interpret", s.HandleInterpret)
	mux.HandleFunc("GET /api/v1/strategies", s.HandleListStrategies)
	mux.HandleFunc("GET /api/v1/strategies/{id}", s.HandleGetStrategy)
	mux.HandleFunc("PUT /api/v1/strategies/{id}", s.HandleUpdateStrategy)
	mux.HandleFunc("DELETE /api/v1/strategies/{id}", s.HandleDeleteStrategy)

	// More specific patterns win, so health and runs never match {id}.
	mux.HandleFunc("GET /api/v1/backtest/health", s.HandleBacktestHealth)
	mux.HandleFunc("GET /api/v1/backtest/runs", s.HandleListRuns)
	mux.HandleFunc("GET /api/v1/backtest/runs/{run_id}", s.HandleGetRun)
	mux.HandleFunc("POST /api/v1/backtest/{id}", s.HandleBacktest)

	mux.Handle("GET /metrics", s.Metrics.Handler())
}

// ---------------------------------------------------------------------------
// Request and response types
// ---------------------------------------------------------------------------

type statusResponse struct {
	Status          string  `json:"status"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	Version         string  `json:"version"`
	CatalogVersion  string  `json:"catalog_version"`
	LLMConfigured   bool    `json:"llm_configured"`
	BacktestEnabled bool    `json:"backtest_enabled"`
}

type catalogResponse struct {
	Version     string                 `json:"version"`
	Description string                 `json:"description"`
	Types       []string               `json:"types"`
	Comparison  []string               `json:"comparisonOperators"`
	Arithmetic  []string               `json:"arithmeticOperators"`
	OffsetUnits []string               `json:"offsetUnits"`
	QtyTypes    []string               `json:"qtyTypes"`
	Timeframes  []string               `json:"timeframes"`
	Functions   []catalog.FunctionSpec `json:"functions"`
	Actions     []catalog.ActionSpec   `json:"actions"`
}

type validateRequest struct {
	Graph     json.RawMessage `json:"graph" validate:"required"`
	Timeframe string          `json:"timeframe" validate:"required"`
}

type repairRequest struct {
	Graph     json.RawMessage `json:"graph" validate:"required"`
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe" validate:"required"`
}

type updateRequest struct {
	EntryNode string            `json:"entryNode" validate:"required"`
	Nodes     []json.RawMessage `json:"nodes" validate:"required,min=1"`
}

type issueItem struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	NodeID   string `json:"nodeId,omitempty"`
	Message  string `json:"message"`
}

type validationResponse struct {
	IsValid  bool        `json:"isValid"`
	Errors   []string    `json:"errors"`
	Warnings []string    `json:"warnings"`
	Issues   []issueItem `json:"issues"`
}

type repairResponse struct {
	Graph      *ir.Graph          `json:"graph"`
	Fixes      []string           `json:"fixes"`
	Validation validationResponse `json:"validation"`
}

type strategyListResponse struct {
	Strategies []*persistence.Strategy `json:"strategies"`
	Total      int                     `json:"total"`
}

type backtestResponse struct {
	Success bool             `json:"success"`
	Result  *backtest.Result `json:"result"`
}

type runListResponse struct {
	Runs      []*runtracker.Run `json:"runs"`
	TotalRuns int               `json:"total_runs"`
}

type runDetailResponse struct {
	*runtracker.Run
	ProgressPercent    int     `json:"progress_percent"`
	ElapsedTimeSeconds float64 `json:"elapsed_time_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandleStatus returns overall service health and readiness.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:          "healthy",
		UptimeSeconds:   s.Tracker.UptimeSeconds(),
		Version:         s.Tracker.Version(),
		CatalogVersion:  s.Service.Catalog().Version(),
		LLMConfigured:   s.Service.HasOracle(),
		BacktestEnabled: s.Runner != nil,
	})
}

// HandleCatalog returns the DSL catalog the service validates against.
func (s *Server) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.Service.Catalog()
	resp := catalogResponse{
		Version:     cat.Version(),
		Description: cat.Description(),
		Types:       cat.Types(),
		Comparison:  cat.ComparisonOperators(),
		Arithmetic:  cat.ArithmeticOperators(),
		OffsetUnits: cat.OffsetUnits(),
		QtyTypes:    cat.QtyKinds(),
		Timeframes:  cat.Timeframes(),
		Functions:   cat.Functions(),
		Actions:     cat.Actions(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleValidate validates a graph without storing it.
func (s *Server) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := ir.ParseGraph(req.Graph)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("graph: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, buildValidation(s.Service.Check(g, req.Timeframe)))
}

// HandleRepair normalizes a graph, then validates the result.
func (s *Server) HandleRepair(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := ir.ParseGraph(req.Graph)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("graph: %v", err)})
		return
	}
	fixed, notes, res := s.Service.Repair(g, req.Symbol, req.Timeframe)
	if notes == nil {
		notes = []string{}
	}
	writeJSON(w, http.StatusOK, repairResponse{Graph: fixed, Fixes: notes, Validation: buildValidation(res)})
}

// HandleInterpret turns a natural-language request into a stored strategy.
func (s *Server) HandleInterpret(w http.ResponseWriter, r *http.Request) {
	var req interpret.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}
	st, err := s.Service.Interpret(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// HandleListStrategies lists stored strategies, newest first.
func (s *Server) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := persistence.ListFilter{
		Symbol: strings.ToUpper(q.Get("symbol")),
		Limit:  100,
	}
	if v, err := strconv.ParseBool(q.Get("valid")); err == nil {
		f.ValidOnly = v
	}
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			f.Limit = parsed
		}
	}

	list, err := s.Store.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []*persistence.Strategy{}
	}
	writeJSON(w, http.StatusOK, strategyListResponse{Strategies: list, Total: len(list)})
}

// HandleGetStrategy returns one stored strategy.
func (s *Server) HandleGetStrategy(w http.ResponseWriter, r *http.Request) {
	st, err := s.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleUpdateStrategy replaces a strategy's graph and re-validates it.
func (s *Server) HandleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.Service.Update(r.Context(), r.PathValue("id"), req.EntryNode, ir.DecodeNodes(req.Nodes))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleDeleteStrategy deletes a stored strategy.
func (s *Server) HandleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.Logger.Info("Deleted strategy", "strategy_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleBacktest runs a stored strategy through the external backtester
// and records the outcome. The body is optional.
func (s *Server) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backtesting is not configured"})
		return
	}

	var win backtest.Window
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&win); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return
	}

	st, err := s.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.Runner.Run(r.Context(), st, win)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Store.SaveBacktest(r.Context(), res.Record()); err != nil {
		s.Logger.Error("Failed to save backtest", "run_id", res.RunID, "error", err)
	}
	s.publishBacktest(r, res)

	writeJSON(w, http.StatusOK, backtestResponse{Success: true, Result: res})
}

// HandleBacktestHealth reports whether the external tools are in place.
func (s *Server) HandleBacktestHealth(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backtesting is not configured"})
		return
	}
	h := s.Runner.Health()
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// HandleListRuns lists tracked backtest runs.
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs := s.Tracker.ListRuns(q.Get("status"), q.Get("strategy_id"), limit)
	if runs == nil {
		runs = []*runtracker.Run{}
	}
	writeJSON(w, http.StatusOK, runListResponse{Runs: runs, TotalRuns: len(runs)})
}

// HandleGetRun returns the stage-by-stage progress of one backtest run.
func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "run_id is required"})
		return
	}
	run := s.Tracker.GetRun(runID)
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, runDetailResponse{
		Run:                run,
		ProgressPercent:    run.ProgressPercent(),
		ElapsedTimeSeconds: run.ElapsedSeconds(),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// decode reads a JSON body into v and checks its validate tags. On failure
// it writes a 400 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if !s.decodeJSON(w, r, v) {
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// writeError maps service errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interpret.ErrInvalidRequest),
		errors.Is(err, backtest.ErrInvalidStrategy),
		errors.Is(err, backtest.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, interpret.ErrInterpretation):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) publishBacktest(r *http.Request, res *backtest.Result) {
	if s.Bus == nil {
		return
	}
	ev := events.NewEvent(events.EventBacktestCompleted, res.RunID, map[string]any{
		"run_id":      res.RunID,
		"strategy_id": res.StrategyID,
		"symbol":      res.Symbol,
		"trades":      len(res.Trades),
		"metrics":     res.Metrics,
	})
	if err := s.Bus.Publish(r.Context(), ev); err != nil {
		s.Logger.Warn("Failed to publish backtest event", "run_id", res.RunID, "error", err)
	}
}

func buildValidation(res dsl.Result) validationResponse {
	out := validationResponse{
		IsValid:  res.IsValid,
		Errors:   nonNil(res.Errors),
		Warnings: nonNil(res.Warnings),
		Issues:   make([]issueItem, len(res.Issues)),
	}
	for i, d := range res.Issues {
		out.Issues[i] = issueItem{
			Category: d.Category.String(),
			Severity: d.Severity.String(),
			NodeID:   d.NodeID,
			Message:  d.Msg,
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}
