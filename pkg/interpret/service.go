// Package interpret turns natural-language strategy descriptions into
// validated, persisted strategy graphs.
//
// A request flows through the language model, JSON extraction, the
// normalizer and the validator, then is stored whether or not it is valid
// so the user can fix it up with Update.
package interpret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/algomatic/stratgraph/pkg/catalog"
	"github.com/algomatic/stratgraph/pkg/dsl"
	"github.com/algomatic/stratgraph/pkg/events"
	"github.com/algomatic/stratgraph/pkg/ir"
	"github.com/algomatic/stratgraph/pkg/llm"
	"github.com/algomatic/stratgraph/pkg/metrics"
	"github.com/algomatic/stratgraph/pkg/persistence"
	"github.com/algomatic/stratgraph/pkg/prompt"
	"github.com/algomatic/stratgraph/pkg/repair"
)

var (
	// ErrInvalidRequest is returned for requests rejected before the model
	// is called.
	ErrInvalidRequest = errors.New("invalid interpretation request")

	// ErrInterpretation is returned when the model fails or its output
	// cannot be read as a strategy graph.
	ErrInterpretation = errors.New("failed to interpret strategy")
)

// Oracle produces a completion for a system and user prompt.
// Implemented by *llm.Client.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (*llm.Completion, error)
}

// Publisher announces strategy lifecycle events.
// Implemented by *events.Bus.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Request is a strategy to interpret.
type Request struct {
	UserQuery string `json:"userQuery" validate:"required,max=4000"`
	Symbol    string `json:"symbol" validate:"required,max=32"`
	Timeframe string `json:"timeframe" validate:"required"`
}

// Deps wires a Service. Oracle is needed only by Interpret. Publisher and
// Metrics may be nil.
type Deps struct {
	Catalog   *catalog.Catalog
	Oracle    Oracle
	Store     persistence.Store
	Publisher Publisher
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Service runs the interpretation pipeline. It is safe for concurrent use.
type Service struct {
	cat       *catalog.Catalog
	validator *dsl.Validator
	oracle    Oracle
	store     persistence.Store
	bus       Publisher
	metrics   *metrics.Registry
	logger    *slog.Logger
	checker   *validator.Validate

	systemPrompt  string
	promptVersion string
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cat:           d.Catalog,
		validator:     dsl.NewValidator(d.Catalog),
		oracle:        d.Oracle,
		store:         d.Store,
		bus:           d.Publisher,
		metrics:       d.Metrics,
		logger:        logger,
		checker:       validator.New(),
		systemPrompt:  prompt.System(d.Catalog),
		promptVersion: prompt.Version(d.Catalog),
	}
}

// Catalog returns the catalog the service validates against.
func (s *Service) Catalog() *catalog.Catalog { return s.cat }

// HasOracle reports whether Interpret can reach a language model.
func (s *Service) HasOracle() bool { return s.oracle != nil }

// Check validates g and records the outcome in metrics.
func (s *Service) Check(g *ir.Graph, timeframe string) dsl.Result {
	start := time.Now()
	res := s.validator.Validate(g, timeframe)
	s.metrics.ObserveValidation(res, time.Since(start))
	return res
}

// Repair normalizes a copy of g, then validates the copy.
func (s *Service) Repair(g *ir.Graph, symbol, timeframe string) (*ir.Graph, []string, dsl.Result) {
	fixed, notes := repair.Normalized(g, repair.Options{DefaultSymbol: symbol})
	s.metrics.ObserveRepair(len(notes))
	return fixed, notes, s.Check(fixed, timeframe)
}

// ValidateRequest checks the request fields and the timeframe.
func (s *Service) ValidateRequest(req Request) error {
	if err := s.checker.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field()
			}
			return fmt.Errorf("%w: userQuery, symbol, and timeframe are required (bad: %s)",
				ErrInvalidRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !s.cat.IsTimeframe(req.Timeframe) {
		return fmt.Errorf("%w: Invalid timeframe. Supported: %s",
			ErrInvalidRequest, strings.Join(s.cat.Timeframes(), ", "))
	}
	return nil
}

// Interpret asks the model for a graph, repairs and validates it, then
// stores the result. The stored strategy is returned even when invalid.
func (s *Service) Interpret(ctx context.Context, req Request) (*persistence.Strategy, error) {
	if err := s.ValidateRequest(req); err != nil {
		return nil, err
	}
	if s.oracle == nil {
		return nil, fmt.Errorf("%w: no language model configured", ErrInterpretation)
	}

	start := time.Now()
	out, err := s.oracle.Complete(ctx, s.systemPrompt, prompt.User(req.UserQuery, req.Symbol, req.Timeframe))
	s.metrics.ObserveLLM(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterpretation, err)
	}

	raw, err := llm.ExtractJSON(out.Content)
	if err != nil {
		s.logger.Warn("Model output held no usable JSON",
			"error", err, "preview", preview(out.Content, 200),
		)
		return nil, fmt.Errorf("%w: %w", ErrInterpretation, err)
	}
	g, err := ir.ParseGraph(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterpretation, err)
	}

	notes := repair.Normalize(g, repair.Options{DefaultSymbol: req.Symbol})
	s.metrics.ObserveRepair(len(notes))
	res := s.Check(g, req.Timeframe)

	st := &persistence.Strategy{
		Symbol:        strings.ToUpper(g.Symbol),
		Timeframe:     req.Timeframe,
		UserQuery:     req.UserQuery,
		Description:   fmt.Sprintf("Interpreted from: %q", req.UserQuery),
		Graph:         g,
		LLMModel:      out.Model,
		PromptVersion: s.promptVersion,
	}
	applyResult(st, res, append(append([]string{}, g.Warnings...), res.Warnings...))

	if err := s.store.Create(ctx, st); err != nil {
		return nil, fmt.Errorf("saving strategy: %w", err)
	}

	s.logger.Info("Strategy interpreted",
		"strategy_id", st.ID,
		"symbol", st.Symbol,
		"is_valid", st.IsValid,
		"errors", len(st.ValidationErrors),
		"auto_fixes", len(notes),
	)
	s.publish(ctx, st)
	return st, nil
}

// Update replaces the graph of a stored strategy and re-validates it
// against the strategy's timeframe. Warnings are replaced by the new
// validation warnings.
func (s *Service) Update(ctx context.Context, id, entryNode string, nodes []ir.Node) (*persistence.Strategy, error) {
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	g := &ir.Graph{EntryNode: entryNode, Nodes: nodes}
	if st.Graph != nil {
		g.Symbol = st.Graph.Symbol
		g.SuggestedEdits = st.Graph.SuggestedEdits
	}
	if g.Symbol == "" {
		g.Symbol = st.Symbol
	}

	res := s.Check(g, st.Timeframe)
	st.Graph = g
	applyResult(st, res, res.Warnings)

	if err := s.store.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("updating strategy: %w", err)
	}

	s.logger.Info("Strategy updated",
		"strategy_id", st.ID, "is_valid", st.IsValid, "errors", len(st.ValidationErrors),
	)
	s.publish(ctx, st)
	return st, nil
}

func applyResult(st *persistence.Strategy, res dsl.Result, warnings []string) {
	st.IsValid = res.IsValid
	st.ValidationErrors = []string{}
	if !res.IsValid {
		st.ValidationErrors = res.Errors
	}
	st.Warnings = warnings
	if st.Warnings == nil {
		st.Warnings = []string{}
	}
}

// publish announces the validation outcome. Bus failures are logged only.
func (s *Service) publish(ctx context.Context, st *persistence.Strategy) {
	if s.bus == nil {
		return
	}
	eventType := events.EventStrategyValidated
	if !st.IsValid {
		eventType = events.EventStrategyInvalid
	}
	ev := events.NewEvent(eventType, "", map[string]any{
		"strategy_id": st.ID,
		"symbol":      st.Symbol,
		"timeframe":   st.Timeframe,
		"is_valid":    st.IsValid,
		"errors":      len(st.ValidationErrors),
		"warnings":    len(st.Warnings),
	})
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish strategy event",
			"strategy_id", st.ID, "event_type", eventType, "error", err,
		)
	}
}

// preview shortens s to at most n bytes without splitting a rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
