package dsl

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/algomatic/stratgraph/pkg/catalog"
	"github.com/algomatic/stratgraph/pkg/ir"
)

// scenarioB is the canonical RSI oversold entry.
const scenarioB = `{"symbol":"AAPL","entryNode":"cond1","nodes":[
  {"id":"cond1","type":"condition","expr":{"kind":"binary","op":"<",
    "left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"},{"kind":"numberLiteral","value":14}]},
    "right":{"kind":"numberLiteral","value":30}},
   "nextIfTrue":"buy","nextIfFalse":"noop"},
  {"id":"buy","type":"action","actionType":"ENTER_LONG","symbol":"AAPL","qty":10,"qtyType":"PERCENT_EQUITY","next":null},
  {"id":"noop","type":"action","actionType":"NO_ACTION","next":null}]}`

func newTestValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewValidator(cat, opts...)
}

func parse(t *testing.T, doc string) *ir.Graph {
	t.Helper()
	g, err := ir.ParseGraph([]byte(doc))
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	return g
}

func containsMsg(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

// simpleGraph returns cond -> (yes, no) with NO_ACTION leaves and the given
// expression.
func simpleGraph(expr ir.Expr) *ir.Graph {
	return &ir.Graph{
		Symbol:    "SPY",
		EntryNode: "c",
		Nodes: []ir.Node{
			&ir.ConditionNode{ID: "c", Expr: expr, NextIfTrue: "yes", NextIfFalse: "no"},
			&ir.ActionNode{ID: "yes", ActionType: ir.NoAction},
			&ir.ActionNode{ID: "no", ActionType: ir.NoAction},
		},
	}
}

func TestScenarioB(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(parse(t, scenarioB), "1D")

	if !res.IsValid {
		t.Fatalf("expected valid, errors: %v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v", res.Errors)
	}
	if !containsMsg(res.Warnings, "enters positions but has no explicit exit") {
		t.Errorf("missing unprotected-entry warning: %v", res.Warnings)
	}
}

func TestScenarioC(t *testing.T) {
	v := newTestValidator(t)
	doc := strings.Replace(scenarioB, `"nextIfTrue":"buy"`, `"nextIfTrue":"missing"`, 1)
	res := v.Validate(parse(t, doc), "1D")

	if res.IsValid {
		t.Fatal("expected invalid")
	}
	if !containsMsg(res.Errors, "'missing'") {
		t.Errorf("expected reference error naming 'missing': %v", res.Errors)
	}
	if !errors.Is(res.Err(), ErrReference) {
		t.Errorf("Err() = %v, want ErrReference", res.Err())
	}
}

func TestScenarioD(t *testing.T) {
	v := newTestValidator(t)
	doc := strings.Replace(scenarioB, `"qty":10,`, ``, 1)
	res := v.Validate(parse(t, doc), "1D")

	if res.IsValid {
		t.Fatal("expected invalid")
	}
	if !containsMsg(res.Errors, "Action node buy: ENTER_LONG requires qty") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, strings.Replace(scenarioB, `"nextIfFalse":"noop"`, `"nextIfFalse":null`, 1))
	before := g.Clone()

	first := v.Validate(g, "1H")
	second := v.Validate(g, "1H")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(g, before) {
		t.Error("Validate mutated the graph")
	}
}

func TestValidateConcurrent(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, scenarioB)
	want := v.Validate(g, "1D")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := v.Validate(g, "1D"); !reflect.DeepEqual(got, want) {
					t.Errorf("concurrent result differs: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestStructuralErrors(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(&ir.Graph{}, "1D")
	want := []string{"Missing or invalid symbol", "Missing or invalid entryNode", "nodes must be a non-empty array"}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Errorf("errors = %v, want %v", res.Errors, want)
	}
	for _, d := range res.Issues {
		if !errors.Is(&d, ErrStructural) {
			t.Errorf("%q is not structural", d.Msg)
		}
	}

	if res := v.Validate(nil, "1D"); res.IsValid || len(res.Errors) != 3 {
		t.Errorf("nil graph: %+v", res)
	}
}

func TestMissingEntryNode(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, scenarioB)
	g.EntryNode = "ghost"

	res := v.Validate(g, "1D")
	if !containsMsg(res.Errors, "Entry node 'ghost' does not exist") {
		t.Errorf("errors = %v", res.Errors)
	}
	// Node checks and lint still run.
	if !containsMsg(res.Warnings, "enters positions") {
		t.Errorf("lint should still run: %v", res.Warnings)
	}
}

func TestDuplicateIDs(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, scenarioB)
	g.Nodes = append(g.Nodes, &ir.ActionNode{ID: "noop", ActionType: ir.NoAction})

	res := v.Validate(g, "1D")
	n := 0
	for _, e := range res.Errors {
		if e == "Duplicate node ID: noop" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected one duplicate error, got %v", res.Errors)
	}
}

func TestOperandDiagnostics(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr string
		wantWrn string
	}{
		{
			name:    "missing kind",
			expr:    `{"kind":"binary","op":"<","left":{"name":"close"},"right":{"kind":"numberLiteral","value":1}}`,
			wantErr: "Expression left in node c: missing 'kind' field",
		},
		{
			name:    "invalid kind",
			expr:    `{"kind":"binary","op":"<","left":{"kind":"column","name":"close"},"right":{"kind":"numberLiteral","value":1}}`,
			wantErr: "invalid kind 'column'. Valid: numberLiteral",
		},
		{
			name:    "number host type",
			expr:    `{"kind":"binary","op":"<","left":{"kind":"identifier","name":"close"},"right":{"kind":"numberLiteral","value":"30"}}`,
			wantErr: "numberLiteral must have numeric value",
		},
		{
			name:    "unknown function",
			expr:    `{"kind":"binary","op":">","left":{"kind":"funcCall","name":"supertrend","args":[]},"right":{"kind":"numberLiteral","value":0}}`,
			wantErr: "unknown function 'supertrend'. Valid: rsi",
		},
		{
			name:    "arity",
			expr:    `{"kind":"binary","op":">","left":{"kind":"funcCall","name":"ema","args":[{"kind":"identifier","name":"close"}]},"right":{"kind":"numberLiteral","value":0}}`,
			wantErr: "Function ema in node c: requires 2 args, got 1",
		},
		{
			name:    "nested argument",
			expr:    `{"kind":"binary","op":">","left":{"kind":"funcCall","name":"ema","args":[{"kind":"funcCall","name":"nope","args":[]},{"kind":"numberLiteral","value":5}]},"right":{"kind":"numberLiteral","value":0}}`,
			wantErr: "Expression left.args[0] in node c: unknown function 'nope'",
		},
		{
			name:    "offset unit",
			expr:    `{"kind":"binary","op":">","left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"}],"offset":{"unit":"ticks","value":1}},"right":{"kind":"numberLiteral","value":0}}`,
			wantErr: "Offset in node c: invalid unit 'ticks'",
		},
		{
			name:    "offset value",
			expr:    `{"kind":"binary","op":">","left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"}],"offset":{"unit":"bars","value":-1}},"right":{"kind":"numberLiteral","value":0}}`,
			wantErr: "Offset in node c: value must be a non-negative number",
		},
		{
			name:    "unknown identifier",
			expr:    `{"kind":"binary","op":">","left":{"kind":"identifier","name":"vix"},"right":{"kind":"numberLiteral","value":20}}`,
			wantWrn: "identifier 'vix' may not be recognized",
		},
		{
			name:    "arithmetic operator",
			expr:    `{"kind":"binary","op":"+","left":{"kind":"identifier","name":"close"},"right":{"kind":"numberLiteral","value":1}}`,
			wantErr: "arithmetic operator '+' cannot be the comparison",
		},
		{
			name:    "bad operator",
			expr:    `{"kind":"binary","op":"AND","left":{"kind":"identifier","name":"close"},"right":{"kind":"numberLiteral","value":1}}`,
			wantErr: "invalid comparison operator 'AND'",
		},
		{
			name:    "missing right",
			expr:    `{"kind":"binary","op":"<","left":{"kind":"identifier","name":"close"}}`,
			wantErr: "Expression in node c: missing right operand",
		},
		{
			name:    "bare funcCall",
			expr:    `{"kind":"funcCall","name":"has_position","args":[{"kind":"stringLiteral","value":"SPY"}]}`,
			wantErr: "expr.kind must be 'binary', got 'funcCall'",
		},
		{
			name:    "negation",
			expr:    `{"kind":"unary","op":"!","right":{"kind":"funcCall","name":"sessionOpen","args":[]}}`,
			wantErr: "negation operator '!' is not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"symbol":"SPY","entryNode":"c","nodes":[
			  {"id":"c","type":"condition","expr":` + tt.expr + `,"nextIfTrue":"y","nextIfFalse":"n"},
			  {"id":"y","type":"action","actionType":"NO_ACTION"},
			  {"id":"n","type":"action","actionType":"NO_ACTION"}]}`
			res := v.Validate(parse(t, doc), "1H")

			if tt.wantErr != "" {
				if res.IsValid || !containsMsg(res.Errors, tt.wantErr) {
					t.Errorf("want error containing %q, got %v", tt.wantErr, res.Errors)
				}
			}
			if tt.wantWrn != "" {
				if !res.IsValid {
					t.Errorf("warning case should stay valid: %v", res.Errors)
				}
				if !containsMsg(res.Warnings, tt.wantWrn) {
					t.Errorf("want warning containing %q, got %v", tt.wantWrn, res.Warnings)
				}
			}
		})
	}
}

func TestActionDiagnostics(t *testing.T) {
	v := newTestValidator(t)
	ids := map[string]bool{"a": true}

	tests := []struct {
		name    string
		node    *ir.ActionNode
		wantErr string
		wantWrn string
	}{
		{"missing type", &ir.ActionNode{ID: "a"}, "Action node a: missing actionType", ""},
		{"unknown type", &ir.ActionNode{ID: "a", ActionType: "BUY"}, "unsupported actionType 'BUY'", ""},
		{"string qty", &ir.ActionNode{ID: "a", ActionType: ir.ExitLong, Symbol: "X", Qty: &ir.Quantity{Text: "ALL"}}, `qty must be a number, got "ALL"`, ""},
		{"bad qty type", &ir.ActionNode{ID: "a", ActionType: ir.EnterLong, Symbol: "X", Qty: ir.Numeric(1), QtyType: "LOTS"}, "qtyType must be one of", ""},
		{"dangling next", &ir.ActionNode{ID: "a", ActionType: ir.NoAction, Next: "zzz"}, "next points to non-existent node 'zzz'", ""},
		{"no symbol", &ir.ActionNode{ID: "a", ActionType: ir.CancelOrders}, "", "CANCEL_ORDERS should have a symbol"},
		{"stop params", &ir.ActionNode{ID: "a", ActionType: ir.SetStop, Symbol: "X"}, "", "SET_STOP should have params.stop_price"},
		{"trail params", &ir.ActionNode{ID: "a", ActionType: ir.SetTrailingStop, Symbol: "X"}, "", "params.trail_percent"},
		{"take profit params", &ir.ActionNode{ID: "a", ActionType: ir.SetTakeProfit, Symbol: "X", Params: map[string]any{}}, "", "params.take_profit_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.ValidateNode(tt.node, ids)
			if tt.wantErr != "" && !containsMsg(r.Errors(), tt.wantErr) {
				t.Errorf("want error %q, got %v", tt.wantErr, r.Errors())
			}
			if tt.wantWrn != "" {
				if r.HasErrors() {
					t.Errorf("unexpected errors: %v", r.Errors())
				}
				if !containsMsg(r.Warnings(), tt.wantWrn) {
					t.Errorf("want warning %q, got %v", tt.wantWrn, r.Warnings())
				}
			}
		})
	}
}

func TestPercentPositionAccepted(t *testing.T) {
	v := newTestValidator(t)
	n := &ir.ActionNode{ID: "x", ActionType: ir.ExitLong, Symbol: "X", Qty: ir.Numeric(100), QtyType: ir.QtyPercentPosition}
	if r := v.ValidateNode(n, map[string]bool{"x": true}); r.HasErrors() {
		t.Errorf("PERCENT_POSITION should be accepted: %v", r.Errors())
	}
}

func TestUnknownNodeType(t *testing.T) {
	v := newTestValidator(t)
	r := v.ValidateNode(&ir.UnknownNode{ID: "g", Type: "gate"}, nil)
	if !containsMsg(r.Errors(), "Node g: invalid type 'gate', must be 'condition' or 'action'") {
		t.Errorf("errors = %v", r.Errors())
	}
	if !errors.Is(&r.Issues[0], ErrSchema) {
		t.Error("unknown node type should be a schema error")
	}
}

func TestImplicitBranchWarnedOnce(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, strings.Replace(scenarioB, `"nextIfFalse":"noop"`, `"nextIfFalse":null`, 1))

	res := v.Validate(g, "1D")
	if !res.IsValid {
		t.Fatalf("errors: %v", res.Errors)
	}
	n := 0
	for _, w := range res.Warnings {
		if strings.Contains(w, "no explicit nextIfFalse") {
			n++
		}
	}
	if n != 1 {
		t.Errorf("implicit branch warned %d times: %v", n, res.Warnings)
	}
}

func TestUnreachableNode(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, scenarioB)
	g.Nodes = append(g.Nodes, &ir.ActionNode{ID: "orphan", ActionType: ir.NoAction})

	res := v.Validate(g, "1D")
	if !res.IsValid {
		t.Fatalf("errors: %v", res.Errors)
	}
	if !containsMsg(res.Warnings, "Node orphan is not reachable from entry node 'cond1'") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func cyclicGraph() *ir.Graph {
	cmp := func() ir.Expr {
		return &ir.BinaryExpr{Op: ">", Left: &ir.Identifier{Name: "close"}, Right: ir.Number(1)}
	}
	return &ir.Graph{
		Symbol:    "SPY",
		EntryNode: "a",
		Nodes: []ir.Node{
			&ir.ConditionNode{ID: "a", Expr: cmp(), NextIfTrue: "b", NextIfFalse: "stop"},
			&ir.ConditionNode{ID: "b", Expr: cmp(), NextIfTrue: "a", NextIfFalse: "stop"},
			&ir.ActionNode{ID: "stop", ActionType: ir.NoAction},
		},
	}
}

func TestCycleRejected(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(cyclicGraph(), "1D")

	if res.IsValid {
		t.Fatal("cycle should make the graph invalid")
	}
	if !containsMsg(res.Errors, "Cycle detected: a -> b -> a") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestSelfLoop(t *testing.T) {
	v := newTestValidator(t)
	g := cyclicGraph()
	g.Nodes[0].(*ir.ConditionNode).NextIfTrue = "a"

	r := v.AnalyzeConnectivity(g)
	if !containsMsg(r.Errors(), "Cycle detected: a -> a") {
		t.Errorf("errors = %v", r.Errors())
	}
}

func TestCycleCheckDisabled(t *testing.T) {
	v := newTestValidator(t, WithCycleCheck(false))
	if res := v.Validate(cyclicGraph(), "1D"); !res.IsValid {
		t.Errorf("cycle tolerated when check is off, got %v", res.Errors)
	}
}

func TestDiamondIsNotACycle(t *testing.T) {
	v := newTestValidator(t)
	cmp := &ir.BinaryExpr{Op: ">", Left: &ir.Identifier{Name: "close"}, Right: ir.Number(1)}
	g := &ir.Graph{
		Symbol:    "SPY",
		EntryNode: "a",
		Nodes: []ir.Node{
			&ir.ConditionNode{ID: "a", Expr: cmp, NextIfTrue: "b", NextIfFalse: "c"},
			&ir.ConditionNode{ID: "b", Expr: cmp, NextIfTrue: "d", NextIfFalse: "d"},
			&ir.ConditionNode{ID: "c", Expr: cmp, NextIfTrue: "d", NextIfFalse: "d"},
			&ir.ActionNode{ID: "d", ActionType: ir.NoAction},
		},
	}
	if r := v.AnalyzeConnectivity(g); r.HasErrors() {
		t.Errorf("diamond reported as cycle: %v", r.Errors())
	}
}

func nestedRSI(levels int) ir.Operand {
	var o ir.Operand = &ir.Identifier{Name: "close"}
	for i := 0; i < levels; i++ {
		o = &ir.FuncCall{Name: "rsi", Args: []ir.Operand{o}}
	}
	return o
}

func TestDepthLimit(t *testing.T) {
	v := newTestValidator(t)

	// 31 calls put the identifier at depth 32.
	ok := simpleGraph(&ir.BinaryExpr{Op: "<", Left: nestedRSI(31), Right: ir.Number(1)})
	if res := v.Validate(ok, "1H"); !res.IsValid {
		t.Errorf("depth 32 should pass: %v", res.Errors)
	}

	deep := simpleGraph(&ir.BinaryExpr{Op: "<", Left: nestedRSI(5000), Right: ir.Number(1)})
	res := v.Validate(deep, "1H")
	if res.IsValid {
		t.Fatal("deep operand should fail")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "nesting exceeds maximum depth 32") {
		t.Errorf("errors = %v", res.Errors)
	}
	if !errors.Is(res.Err(), ErrSchema) {
		t.Error("depth error should be a schema error")
	}

	shallow := newTestValidator(t, WithMaxDepth(2))
	if res := shallow.Validate(ok, "1H"); res.IsValid {
		t.Error("WithMaxDepth(2) should reject deep nesting")
	}
}

func TestLintFinancials(t *testing.T) {
	v := newTestValidator(t)

	rsi := func(period float64) ir.Operand {
		return &ir.FuncCall{Name: "rsi", Args: []ir.Operand{&ir.Identifier{Name: "close"}, ir.Number(period)}}
	}
	ma := func(name string, period float64) ir.Operand {
		return &ir.FuncCall{Name: name, Args: []ir.Operand{&ir.Identifier{Name: "close"}, ir.Number(period)}}
	}

	tests := []struct {
		name string
		expr ir.Expr
		tf   string
		want string
	}{
		{"short rsi", &ir.BinaryExpr{Op: "<", Left: rsi(2), Right: ir.Number(30)}, "1H", "RSI period 2 in node c is unusually short"},
		{"long rsi", &ir.BinaryExpr{Op: "<", Left: rsi(60), Right: ir.Number(30)}, "1H", "RSI period 60 in node c is unusually long"},
		{"short ma", &ir.BinaryExpr{Op: ">", Left: &ir.Identifier{Name: "close"}, Right: ma("sma", 1)}, "1H", "Moving average period 1 in node c is too short"},
		{"long ma", &ir.BinaryExpr{Op: ">", Left: &ir.Identifier{Name: "close"}, Right: ma("wma", 900)}, "1H", "Moving average period 900 in node c is unusually long"},
		{"nested ma", &ir.BinaryExpr{Op: ">", Left: &ir.FuncCall{Name: "highest", Args: []ir.Operand{ma("ema", 1000), ir.Number(5)}}, Right: ir.Number(0)}, "1H", "Moving average period 1000"},
		{"intraday on daily", &ir.BinaryExpr{Op: "==", Left: &ir.FuncCall{Name: "sessionOpen", Args: []ir.Operand{}}, Right: ir.Number(1)}, "1D", "Intraday time filters on 1D timeframe"},
		{"nested intraday", &ir.BinaryExpr{Op: ">", Left: &ir.FuncCall{Name: "highest", Args: []ir.Operand{&ir.FuncCall{Name: "timeOfDay", Args: []ir.Operand{}}, ir.Number(3)}}, Right: ir.Number(0)}, "1W", "Intraday time filters on 1W timeframe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.LintFinancials(simpleGraph(tt.expr), tt.tf)
			if !containsMsg(got, tt.want) {
				t.Errorf("want %q in %v", tt.want, got)
			}
		})
	}

	intraday := simpleGraph(&ir.BinaryExpr{Op: "==", Left: &ir.FuncCall{Name: "sessionOpen", Args: []ir.Operand{}}, Right: ir.Number(1)})
	if got := LintFinancials(intraday, "5M"); len(got) != 0 {
		t.Errorf("intraday filter on 5M should be fine: %v", got)
	}
}

func TestLintExitSuppressesWarning(t *testing.T) {
	g := parse(t, scenarioB)
	g.Nodes = append(g.Nodes, &ir.ActionNode{ID: "stop", ActionType: ir.SetTrailingStop, Symbol: "AAPL", Params: map[string]any{"trail_percent": 5.0}})
	if got := LintFinancials(g, "1D"); containsMsg(got, "enters positions") {
		t.Errorf("trailing stop counts as protection: %v", got)
	}
}

func TestRequiredFunctions(t *testing.T) {
	g := simpleGraph(&ir.BinaryExpr{
		Op:    ">",
		Left:  &ir.FuncCall{Name: "ema", Args: []ir.Operand{&ir.FuncCall{Name: "rsi", Args: []ir.Operand{&ir.Identifier{Name: "close"}}}, ir.Number(9)}},
		Right: &ir.FuncCall{Name: "atr", Args: []ir.Operand{}},
	})
	got := RequiredFunctions(g)
	want := []string{"atr", "ema", "rsi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RequiredFunctions = %v, want %v", got, want)
	}
}

func TestValidatedGraphReferenceIntegrity(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, scenarioB)
	res := v.Validate(g, "1D")
	if !res.IsValid {
		t.Fatalf("errors: %v", res.Errors)
	}

	ids := g.NodeIDs()
	if !ids[g.EntryNode] {
		t.Error("entry node unresolved")
	}
	cat := v.Catalog()
	for _, n := range g.Nodes {
		switch n := n.(type) {
		case *ir.ConditionNode:
			for _, s := range []string{n.NextIfTrue, n.NextIfFalse} {
				if s != "" && !ids[s] {
					t.Errorf("unresolved successor %s", s)
				}
			}
			for _, fc := range ir.FuncCalls(n.Expr) {
				if !cat.HasFunction(fc.Name) {
					t.Errorf("function %s not in catalog", fc.Name)
				}
			}
		case *ir.ActionNode:
			if !cat.HasAction(string(n.ActionType)) {
				t.Errorf("action %s not in catalog", n.ActionType)
			}
		}
	}
}

const chainedActions = `{"symbol":"AAPL","entryNode":"c","nodes":[
  {"id":"c","type":"condition","expr":{"kind":"binary","op":"<",
    "left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"},{"kind":"numberLiteral","value":14}]},
    "right":{"kind":"numberLiteral","value":30}},
   "nextIfTrue":"buy","nextIfFalse":"noop"},
  {"id":"buy","type":"action","actionType":"ENTER_LONG","symbol":"AAPL","qty":10,"qtyType":"PERCENT_EQUITY","next":"stop"},
  {"id":"stop","type":"action","actionType":"SET_STOP","symbol":"AAPL","params":{"stop_price":95},"next":null},
  {"id":"noop","type":"action","actionType":"NO_ACTION","next":null}]}`

func TestChainedActionsReachable(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(parse(t, chainedActions), "1D")
	if !res.IsValid {
		t.Fatalf("errors: %v", res.Errors)
	}
	if containsMsg(res.Warnings, "not reachable") {
		t.Errorf("follow-up action reported unreachable: %v", res.Warnings)
	}
}

func TestCycleThroughActionNext(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, chainedActions)
	for _, n := range g.Nodes {
		if a, ok := n.(*ir.ActionNode); ok && a.ID == "stop" {
			a.Next = "c"
		}
	}

	res := v.Validate(g, "1D")
	if res.IsValid {
		t.Fatal("cycle through an action's next should make the graph invalid")
	}
	if !containsMsg(res.Errors, "Cycle detected: c -> buy -> stop -> c") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestEmptyEntryNodeReportedOnce(t *testing.T) {
	v := newTestValidator(t)
	g := parse(t, scenarioB)
	g.EntryNode = ""

	res := v.Validate(g, "1D")
	want := []string{"Missing or invalid entryNode"}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Errorf("errors = %v, want %v", res.Errors, want)
	}
}
