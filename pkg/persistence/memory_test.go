package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/algomatic/stratgraph/pkg/ir"
)

func sampleGraph(symbol string) *ir.Graph {
	return &ir.Graph{
		Symbol:    symbol,
		EntryNode: "buy",
		Nodes: []ir.Node{
			&ir.ActionNode{ID: "buy", ActionType: ir.EnterLong, Qty: ir.Numeric(10)},
		},
	}
}

func newTestStore() *MemoryStore {
	m := NewMemoryStore()
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return m
}

func TestMemoryStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	m := newTestStore()

	s := &Strategy{Symbol: "SPY", Timeframe: "1D", Graph: sampleGraph("SPY"), IsValid: true}
	if err := m.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("Create did not assign an id")
	}
	if s.CreatedAt.IsZero() || !s.CreatedAt.Equal(s.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", s.CreatedAt, s.UpdatedAt)
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Symbol != "SPY" || got.Graph.EntryNode != "buy" {
		t.Errorf("got %+v", got)
	}

	// Mutating the returned copy must not change the stored record.
	got.Graph.Nodes[0].(*ir.ActionNode).ActionType = ir.ExitLong
	got.Symbol = "QQQ"
	again, _ := m.Get(ctx, s.ID)
	if again.Symbol != "SPY" || again.Graph.Nodes[0].(*ir.ActionNode).ActionType != ir.EnterLong {
		t.Errorf("stored strategy was mutated through a copy: %+v", again)
	}

	if err := m.Create(ctx, &Strategy{ID: s.ID, Graph: sampleGraph("SPY")}); err == nil {
		t.Error("Create with a duplicate id succeeded")
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	m := newTestStore()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v", err)
	}
	if err := m.Update(ctx, &Strategy{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update err = %v", err)
	}
	if err := m.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v", err)
	}
	if err := m.SaveBacktest(ctx, &BacktestRecord{StrategyID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveBacktest err = %v", err)
	}
}

func TestMemoryStoreUpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := newTestStore()

	s := &Strategy{Symbol: "SPY", Graph: sampleGraph("SPY")}
	if err := m.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	created := s.CreatedAt

	upd := &Strategy{ID: s.ID, Symbol: "SPY", Graph: sampleGraph("SPY"), IsValid: true}
	if err := m.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := m.Get(ctx, s.ID)
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed: %v -> %v", created, got.CreatedAt)
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt not refreshed: %v", got.UpdatedAt)
	}
	if !got.IsValid {
		t.Error("update not applied")
	}
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	m := newTestStore()

	for _, s := range []*Strategy{
		{ID: "a", Symbol: "SPY", IsValid: true, Graph: sampleGraph("SPY")},
		{ID: "b", Symbol: "QQQ", IsValid: false, Graph: sampleGraph("QQQ")},
		{ID: "c", Symbol: "SPY", IsValid: false, Graph: sampleGraph("SPY")},
	} {
		if err := m.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"all newest first", ListFilter{}, []string{"c", "b", "a"}},
		{"by symbol", ListFilter{Symbol: "SPY"}, []string{"c", "a"}},
		{"valid only", ListFilter{ValidOnly: true}, []string{"a"}},
		{"limit", ListFilter{Limit: 2}, []string{"c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.List(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d strategies, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestMemoryStoreBacktests(t *testing.T) {
	ctx := context.Background()
	m := newTestStore()

	s := &Strategy{Symbol: "SPY", Graph: sampleGraph("SPY")}
	if err := m.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	rec := &BacktestRecord{
		RunID:      "run-1",
		StrategyID: s.ID,
		Symbol:     "SPY",
		Metrics:    map[string]float64{"total_return": 12.5},
		Trades:     []TradeRow{{"side": "long", "pnl": "10.5"}},
	}
	if err := m.SaveBacktest(ctx, rec); err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got := m.Backtests(s.ID)
	if len(got) != 1 || got[0].RunID != "run-1" || len(got[0].Trades) != 1 {
		t.Fatalf("backtests = %+v", got)
	}

	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if got := m.Backtests(s.ID); len(got) != 0 {
		t.Errorf("backtests survived delete: %d", len(got))
	}
}
