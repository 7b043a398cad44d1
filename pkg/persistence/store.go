// Package persistence stores interpreted strategies and their backtest
// results.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// ErrNotFound is returned when no strategy has the requested id.
var ErrNotFound = errors.New("strategy not found")

// Strategy is a persisted strategy graph with its last validation outcome.
// The graph is stored whether or not it is valid.
type Strategy struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Timeframe        string    `json:"timeframe"`
	UserQuery        string    `json:"userQuery,omitempty"`
	Description      string    `json:"description,omitempty"`
	Graph            *ir.Graph `json:"graph"`
	IsValid          bool      `json:"isValid"`
	ValidationErrors []string  `json:"validationErrors"`
	Warnings         []string  `json:"warnings"`
	LLMModel         string    `json:"llmModel,omitempty"`
	PromptVersion    string    `json:"promptVersion,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Symbol    string
	ValidOnly bool
	Limit     int
}

// Store persists strategies keyed by an opaque id.
// Implemented by MemoryStore and PostgresStore.
type Store interface {
	// Create assigns an id and timestamps when they are unset, then stores s.
	Create(ctx context.Context, s *Strategy) error

	// Get returns the strategy with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Strategy, error)

	// Update replaces a stored strategy and refreshes UpdatedAt.
	Update(ctx context.Context, s *Strategy) error

	// List returns strategies, newest first.
	List(ctx context.Context, f ListFilter) ([]*Strategy, error)

	// Delete removes a strategy. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// SaveBacktest records the outcome of a backtest run.
	SaveBacktest(ctx context.Context, r *BacktestRecord) error

	// Close releases resources.
	Close()
}

// BacktestRecord is the stored outcome of one backtest run.
type BacktestRecord struct {
	RunID      string             `json:"runId"`
	StrategyID string             `json:"strategyId"`
	Symbol     string             `json:"symbol"`
	Metrics    map[string]float64 `json:"metrics"`
	Trades     []TradeRow         `json:"trades"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// TradeRow is one row of the backtester's trade log. Columns are kept as
// strings keyed by header, since the backtester's CSV layout is its own.
type TradeRow map[string]string
