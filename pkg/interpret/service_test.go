package interpret

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/algomatic/stratgraph/pkg/catalog"
	"github.com/algomatic/stratgraph/pkg/events"
	"github.com/algomatic/stratgraph/pkg/ir"
	"github.com/algomatic/stratgraph/pkg/llm"
	"github.com/algomatic/stratgraph/pkg/metrics"
	"github.com/algomatic/stratgraph/pkg/persistence"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeOracle struct {
	content string
	err     error

	system, user string
}

func (f *fakeOracle) Complete(_ context.Context, system, user string) (*llm.Completion, error) {
	f.system, f.user = system, user
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Content: f.content, Model: "test-model"}, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (b *fakeBus) Publish(_ context.Context, ev *events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return b.err
}

// modelReply is a typical model answer: fenced, with a trailing comma, no
// graph symbol, a buy without qty and a textual exit qty.
const modelReply = "Here is your strategy:\n```json\n" + `{
  "entryNode": "cond1",
  "nodes": [
    {"id":"cond1","type":"condition","expr":{"kind":"binary","op":"<",
      "left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"},{"kind":"numberLiteral","value":14}]},
      "right":{"kind":"numberLiteral","value":30}},
     "nextIfTrue":"buy","nextIfFalse":"cond2"},
    {"id":"cond2","type":"condition","expr":{"kind":"binary","op":">",
      "left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"},{"kind":"numberLiteral","value":14}]},
      "right":{"kind":"numberLiteral","value":70}},
     "nextIfTrue":"sell","nextIfFalse":"noop"},
    {"id":"buy","type":"action","actionType":"ENTER_LONG","next":null},
    {"id":"sell","type":"action","actionType":"EXIT_LONG","qty":"ALL","next":null},
    {"id":"noop","type":"action","actionType":"NO_ACTION","next":null},
  ]
}` + "\n```\n"

func newTestService(t *testing.T, oracle Oracle) (*Service, *persistence.MemoryStore, *fakeBus, *metrics.Registry) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := persistence.NewMemoryStore()
	bus := &fakeBus{}
	reg := metrics.NewRegistry()
	svc := NewService(Deps{
		Catalog:   cat,
		Oracle:    oracle,
		Store:     store,
		Publisher: bus,
		Metrics:   reg,
	})
	return svc, store, bus, reg
}

func hasPrefix(msgs []string, prefix string) bool {
	for _, m := range msgs {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestInterpret(t *testing.T) {
	oracle := &fakeOracle{content: modelReply}
	svc, store, bus, _ := newTestService(t, oracle)
	ctx := context.Background()

	st, err := svc.Interpret(ctx, Request{UserQuery: "buy when RSI is oversold", Symbol: "aapl", Timeframe: "1D"})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}

	if !st.IsValid || len(st.ValidationErrors) != 0 {
		t.Fatalf("strategy invalid: %v", st.ValidationErrors)
	}
	if st.ValidationErrors == nil {
		t.Error("ValidationErrors should be an empty list, not nil")
	}
	if st.Symbol != "AAPL" || st.Graph.Symbol != "AAPL" {
		t.Errorf("symbol = %q / %q", st.Symbol, st.Graph.Symbol)
	}
	if st.Description != `Interpreted from: "buy when RSI is oversold"` {
		t.Errorf("description = %q", st.Description)
	}
	if st.LLMModel != "test-model" || !strings.HasPrefix(st.PromptVersion, "dsl-v") {
		t.Errorf("model = %q, prompt = %q", st.LLMModel, st.PromptVersion)
	}
	if !hasPrefix(st.Warnings, "Auto-fixed: Added default qty") {
		t.Errorf("warnings missing repair note: %v", st.Warnings)
	}
	if !hasPrefix(st.Warnings, `Auto-fixed: Converted string qty "ALL"`) {
		t.Errorf("warnings missing exit qty note: %v", st.Warnings)
	}

	buy := st.Graph.Node("buy").(*ir.ActionNode)
	if buy.Qty == nil || buy.Qty.Value != 10 || buy.Symbol != "AAPL" {
		t.Errorf("buy = %+v", buy)
	}

	if !strings.Contains(oracle.user, "AAPL") && !strings.Contains(oracle.user, "aapl") {
		t.Errorf("user prompt = %q", oracle.user)
	}
	if !strings.Contains(oracle.system, "rsi(") {
		t.Error("system prompt does not list functions")
	}

	got, err := store.Get(ctx, st.ID)
	if err != nil || got.Timeframe != "1D" {
		t.Fatalf("stored = %+v, %v", got, err)
	}

	if len(bus.events) != 1 || bus.events[0].EventType != events.EventStrategyValidated {
		t.Fatalf("events = %+v", bus.events)
	}
	if bus.events[0].Payload["strategy_id"] != st.ID {
		t.Errorf("payload = %v", bus.events[0].Payload)
	}
}

func TestInterpretStoresInvalid(t *testing.T) {
	reply := `{"symbol":"SPY","entryNode":"missing","nodes":[
	  {"id":"a","type":"action","actionType":"NO_ACTION","next":null}]}`
	svc, store, bus, _ := newTestService(t, &fakeOracle{content: reply})

	st, err := svc.Interpret(context.Background(), Request{UserQuery: "q", Symbol: "SPY", Timeframe: "1H"})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if st.IsValid || len(st.ValidationErrors) == 0 {
		t.Errorf("expected invalid strategy, got %+v", st)
	}
	if _, err := store.Get(context.Background(), st.ID); err != nil {
		t.Errorf("invalid strategy not stored: %v", err)
	}
	if len(bus.events) != 1 || bus.events[0].EventType != events.EventStrategyInvalid {
		t.Errorf("events = %+v", bus.events)
	}
}

func TestInterpretRejectsRequest(t *testing.T) {
	oracle := &fakeOracle{content: modelReply}
	svc, _, _, _ := newTestService(t, oracle)

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"missing query", Request{Symbol: "SPY", Timeframe: "1D"}, "required"},
		{"missing symbol", Request{UserQuery: "q", Timeframe: "1D"}, "required"},
		{"bad timeframe", Request{UserQuery: "q", Symbol: "SPY", Timeframe: "2D"}, "Supported: 1M, 5M, 15M, 1H, 4H, 1D, 1W"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Interpret(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
	if oracle.user != "" {
		t.Error("model called for a rejected request")
	}
}

func TestInterpretModelFailures(t *testing.T) {
	tests := []struct {
		name   string
		oracle *fakeOracle
	}{
		{"model error", &fakeOracle{err: &llm.APIError{StatusCode: 500, Message: "boom"}}},
		{"no json", &fakeOracle{content: "I cannot help with that."}},
		{"broken json", &fakeOracle{content: `{"nodes": [}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, bus, _ := newTestService(t, tt.oracle)
			_, err := svc.Interpret(context.Background(), Request{UserQuery: "q", Symbol: "SPY", Timeframe: "1D"})
			if !errors.Is(err, ErrInterpretation) {
				t.Fatalf("err = %v, want ErrInterpretation", err)
			}
			list, _ := store.List(context.Background(), persistence.ListFilter{})
			if len(list) != 0 || len(bus.events) != 0 {
				t.Errorf("failure left traces: %d stored, %d events", len(list), len(bus.events))
			}
		})
	}
}

func TestInterpretWithoutOracle(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	_, err := svc.Interpret(context.Background(), Request{UserQuery: "q", Symbol: "SPY", Timeframe: "1D"})
	if !errors.Is(err, ErrInterpretation) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	svc, _, bus, _ := newTestService(t, &fakeOracle{content: modelReply})
	bus.err = errors.New("redis down")

	if _, err := svc.Interpret(context.Background(), Request{UserQuery: "q", Symbol: "SPY", Timeframe: "1D"}); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	svc, _, bus, _ := newTestService(t, &fakeOracle{content: modelReply})
	ctx := context.Background()

	st, err := svc.Interpret(ctx, Request{UserQuery: "q", Symbol: "SPY", Timeframe: "1D"})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}

	// Point the entry at a node that does not exist.
	broken, err := svc.Update(ctx, st.ID, "ghost", st.Graph.Clone().Nodes)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if broken.IsValid || len(broken.ValidationErrors) == 0 {
		t.Errorf("update should be invalid: %+v", broken)
	}
	if hasPrefix(broken.Warnings, "Auto-fixed") {
		t.Errorf("repair notes kept after update: %v", broken.Warnings)
	}
	if broken.Graph.Symbol != "SPY" {
		t.Errorf("graph symbol = %q", broken.Graph.Symbol)
	}

	fixed, err := svc.Update(ctx, st.ID, "cond1", broken.Graph.Nodes)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !fixed.IsValid || len(fixed.ValidationErrors) != 0 {
		t.Errorf("update should be valid: %v", fixed.ValidationErrors)
	}

	if n := len(bus.events); n != 3 || bus.events[1].EventType != events.EventStrategyInvalid {
		t.Errorf("events = %d", n)
	}

	if _, err := svc.Update(ctx, "nope", "x", nil); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRepairLeavesInputAlone(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	g := &ir.Graph{
		EntryNode: "buy",
		Nodes:     []ir.Node{&ir.ActionNode{ID: "buy", ActionType: ir.EnterLong}},
	}

	fixed, notes, res := svc.Repair(g, "qqq", "1D")
	if len(notes) == 0 || fixed.Symbol != "QQQ" {
		t.Errorf("notes = %v, symbol = %q", notes, fixed.Symbol)
	}
	if !res.IsValid {
		t.Errorf("repaired graph invalid: %v", res.Errors)
	}
	if g.Symbol != "" || g.Nodes[0].(*ir.ActionNode).Qty != nil || len(g.Warnings) != 0 {
		t.Errorf("input graph modified: %+v", g)
	}
}

func TestPreviewKeepsRunes(t *testing.T) {
	s := strings.Repeat("€", 100)
	got := preview(s, 200)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("€", 66) + "..."; got != want {
		t.Errorf("preview = %q, want %q", got, want)
	}
	if got := preview("ok", 200); got != "ok" {
		t.Errorf("preview = %q", got)
	}
}
