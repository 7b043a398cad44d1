package persistence

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It returns copies, so callers may
// modify what they get back without affecting stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
	backtests  map[string][]*BacktestRecord
	now        func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strategies: make(map[string]*Strategy),
		backtests:  make(map[string][]*BacktestRecord),
		now:        time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := m.strategies[s.ID]; exists {
		return fmt.Errorf("creating strategy %s: id already exists", s.ID)
	}
	now := m.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.strategies[s.ID] = copyStrategy(s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("getting strategy %s: %w", id, ErrNotFound)
	}
	return copyStrategy(s), nil
}

func (m *MemoryStore) Update(_ context.Context, s *Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.strategies[s.ID]
	if !ok {
		return fmt.Errorf("updating strategy %s: %w", s.ID, ErrNotFound)
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = m.now().UTC()
	m.strategies[s.ID] = copyStrategy(s)
	return nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		if f.Symbol != "" && s.Symbol != f.Symbol {
			continue
		}
		if f.ValidOnly && !s.IsValid {
			continue
		}
		out = append(out, copyStrategy(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[id]; !ok {
		return fmt.Errorf("deleting strategy %s: %w", id, ErrNotFound)
	}
	delete(m.strategies, id)
	delete(m.backtests, id)
	return nil
}

func (m *MemoryStore) SaveBacktest(_ context.Context, r *BacktestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[r.StrategyID]; !ok {
		return fmt.Errorf("saving backtest for %s: %w", r.StrategyID, ErrNotFound)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	c := *r
	c.Trades = slices.Clone(r.Trades)
	m.backtests[r.StrategyID] = append(m.backtests[r.StrategyID], &c)
	return nil
}

// Backtests returns the backtest records saved for a strategy, oldest first.
func (m *MemoryStore) Backtests(strategyID string) []*BacktestRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.backtests[strategyID])
}

func (m *MemoryStore) Close() {}

func copyStrategy(s *Strategy) *Strategy {
	c := *s
	c.Graph = s.Graph.Clone()
	c.ValidationErrors = slices.Clone(s.ValidationErrors)
	c.Warnings = slices.Clone(s.Warnings)
	return &c
}
