package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// Schema creates the tables PostgresStore uses.
const Schema = `
CREATE TABLE IF NOT EXISTS strategies (
	id                UUID PRIMARY KEY,
	symbol            TEXT NOT NULL,
	timeframe         TEXT NOT NULL,
	user_query        TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	graph             JSONB NOT NULL,
	is_valid          BOOLEAN NOT NULL DEFAULT false,
	validation_errors JSONB NOT NULL DEFAULT '[]',
	warnings          JSONB NOT NULL DEFAULT '[]',
	llm_model         TEXT NOT NULL DEFAULT '',
	prompt_version    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategies_symbol ON strategies (symbol);

CREATE TABLE IF NOT EXISTS strategy_backtests (
	run_id      UUID PRIMARY KEY,
	strategy_id UUID NOT NULL REFERENCES strategies (id) ON DELETE CASCADE,
	symbol      TEXT NOT NULL,
	metrics     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_backtest_trades (
	run_id UUID NOT NULL REFERENCES strategy_backtests (run_id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	trade  JSONB NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// PostgresStore is a Store backed by PostgreSQL. The graph is kept as JSONB
// in its wire form.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// EnsureSchema creates the store's tables when they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
	p.logger.Info("Database connection pool closed")
}

const strategyColumns = `id, symbol, timeframe, user_query, description, graph,
	is_valid, validation_errors, warnings, llm_model, prompt_version,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, s *Strategy) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	graph, errs, warns, err := encodeStrategy(s)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO strategies (`+strategyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		s.ID, s.Symbol, s.Timeframe, s.UserQuery, s.Description, graph,
		s.IsValid, errs, warns, s.LLMModel, s.PromptVersion,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating strategy: %w", err)
	}

	p.logger.Info("Created strategy",
		"strategy_id", s.ID, "symbol", s.Symbol, "is_valid", s.IsValid,
	)
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Strategy, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, id)
	s, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("getting strategy %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting strategy %s: %w", id, err)
	}
	return s, nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Strategy) error {
	s.UpdatedAt = time.Now().UTC()
	graph, errs, warns, err := encodeStrategy(s)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE strategies
		SET symbol = $2, timeframe = $3, user_query = $4, description = $5, graph = $6,
			is_valid = $7, validation_errors = $8, warnings = $9,
			llm_model = $10, prompt_version = $11, updated_at = $12
		WHERE id = $1
	`,
		s.ID, s.Symbol, s.Timeframe, s.UserQuery, s.Description, graph,
		s.IsValid, errs, warns, s.LLMModel, s.PromptVersion, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating strategy %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating strategy %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Strategy, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+strategyColumns+`
		FROM strategies
		WHERE ($1 = '' OR symbol = $1) AND (NOT $2 OR is_valid)
		ORDER BY created_at DESC, id
		LIMIT $3
	`, f.Symbol, f.ValidOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	defer rows.Close()

	var out []*Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning strategy: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strategies: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting strategy %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting strategy %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveBacktest inserts the run summary and bulk-copies its trades in one
// transaction.
func (p *PostgresStore) SaveBacktest(ctx context.Context, r *BacktestRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO strategy_backtests (run_id, strategy_id, symbol, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.RunID, r.StrategyID, r.Symbol, json.RawMessage(metrics), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting backtest: %w", err)
	}

	if len(r.Trades) > 0 {
		rows := make([][]any, len(r.Trades))
		for i, t := range r.Trades {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("encoding trade %d: %w", i, err)
			}
			rows[i] = []any{r.RunID, i, json.RawMessage(data)}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"strategy_backtest_trades"},
			[]string{"run_id", "seq", "trade"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("bulk inserting trades: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing backtest transaction: %w", err)
	}

	p.logger.Info("Saved backtest",
		"run_id", r.RunID, "strategy_id", r.StrategyID, "trades", len(r.Trades),
	)
	return nil
}

func encodeStrategy(s *Strategy) (graph, errs, warns json.RawMessage, err error) {
	if s.Graph == nil {
		return nil, nil, nil, fmt.Errorf("strategy %s has no graph", s.ID)
	}
	if graph, err = json.Marshal(s.Graph); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding graph: %w", err)
	}
	if errs, err = json.Marshal(nonNil(s.ValidationErrors)); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding validation errors: %w", err)
	}
	if warns, err = json.Marshal(nonNil(s.Warnings)); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding warnings: %w", err)
	}
	return graph, errs, warns, nil
}

func scanStrategy(row pgx.Row) (*Strategy, error) {
	var (
		s                  Strategy
		graph, errs, warns []byte
	)
	err := row.Scan(
		&s.ID, &s.Symbol, &s.Timeframe, &s.UserQuery, &s.Description, &graph,
		&s.IsValid, &errs, &warns, &s.LLMModel, &s.PromptVersion,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.Graph, err = ir.ParseGraph(graph); err != nil {
		return nil, fmt.Errorf("decoding graph of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(errs, &s.ValidationErrors); err != nil {
		return nil, fmt.Errorf("decoding validation errors of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(warns, &s.Warnings); err != nil {
		return nil, fmt.Errorf("decoding warnings of %s: %w", s.ID, err)
	}
	return &s, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
