// Package ir defines the strategy graph intermediate representation.
//
// A strategy is a directed graph of condition and action nodes produced by a
// language model from a plain-language trading rule:
//   - Graph = top-level unit (symbol, entry node, nodes, advisory notes)
//   - ConditionNode = one binary comparison branching to two successors
//   - ActionNode = a trading action (enter, exit, set stop, no-op)
//   - Operand = literal, identifier or function call inside a comparison
//
// The JSON encoding of these types is the wire format shared with the model
// and with the external code generator. Decoding is deliberately tolerant:
// the model's output is untrusted, so malformed pieces are kept as dedicated
// variants (UnknownNode, UnknownExpr, MalformedOperand, ...) for the
// validator to report instead of failing the whole decode.
package ir

// ActionKind identifies a trading action.
type ActionKind string

const (
	EnterLong       ActionKind = "ENTER_LONG"
	EnterShort      ActionKind = "ENTER_SHORT"
	ExitLong        ActionKind = "EXIT_LONG"
	ExitShort       ActionKind = "EXIT_SHORT"
	ExitAll         ActionKind = "EXIT_ALL"
	SetStop         ActionKind = "SET_STOP"
	SetTrailingStop ActionKind = "SET_TRAILING_STOP"
	SetTakeProfit   ActionKind = "SET_TAKE_PROFIT"
	CancelOrders    ActionKind = "CANCEL_ORDERS"
	NoAction        ActionKind = "NO_ACTION"
)

// ActionKinds lists every action the IR models, in catalog order.
var ActionKinds = []ActionKind{
	EnterLong, EnterShort, ExitLong, ExitShort, ExitAll,
	SetStop, SetTrailingStop, SetTakeProfit, CancelOrders, NoAction,
}

// Known reports whether k is one of the modeled action kinds.
func (k ActionKind) Known() bool {
	for _, a := range ActionKinds {
		if a == k {
			return true
		}
	}
	return false
}

// IsEntry reports whether the action opens a position.
func (k ActionKind) IsEntry() bool {
	return k == EnterLong || k == EnterShort
}

// IsExit reports whether the action closes part or all of a position.
func (k ActionKind) IsExit() bool {
	return k == ExitLong || k == ExitShort || k == ExitAll
}

// QtyKind is the unit of an action quantity.
type QtyKind string

const (
	QtyAbsolute        QtyKind = "ABSOLUTE"
	QtyPercentEquity   QtyKind = "PERCENT_EQUITY"
	QtyPercentPosition QtyKind = "PERCENT_POSITION"
)

// Node type tags.
const (
	TypeCondition = "condition"
	TypeAction    = "action"
)

// Operand and expression kind tags.
const (
	KindBinary        = "binary"
	KindNumberLiteral = "numberLiteral"
	KindStringLiteral = "stringLiteral"
	KindBoolLiteral   = "boolLiteral"
	KindIdentifier    = "identifier"
	KindFuncCall      = "funcCall"
)

// OperandKinds lists the operand kind tags accepted on the wire.
var OperandKinds = []string{
	KindNumberLiteral, KindStringLiteral, KindIdentifier, KindFuncCall, KindBoolLiteral,
}

// Graph is the top-level strategy IR.
type Graph struct {
	Symbol         string
	EntryNode      string
	Nodes          []Node
	Warnings       []string
	SuggestedEdits []string
}

// NodeIDs returns the set of node ids present in the graph.
func (g *Graph) NodeIDs() map[string]bool {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n == nil {
			continue
		}
		ids[n.NodeID()] = true
	}
	return ids
}

// Node returns the first node with the given id, or nil.
func (g *Graph) Node(id string) Node {
	for _, n := range g.Nodes {
		if n != nil && n.NodeID() == id {
			return n
		}
	}
	return nil
}

// AddWarning appends an advisory note to the graph.
func (g *Graph) AddWarning(msg string) {
	g.Warnings = append(g.Warnings, msg)
}

// BacktestDocument is the file handed to the external code generator:
// the persisted graph minus its advisory metadata.
type BacktestDocument struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	EntryNode string `json:"entryNode"`
	Nodes     []Node `json:"nodes"`
}

// BacktestDocument builds the code generator hand-off for this graph.
func (g *Graph) BacktestDocument(timeframe string) BacktestDocument {
	return BacktestDocument{
		Symbol:    g.Symbol,
		Timeframe: timeframe,
		EntryNode: g.EntryNode,
		Nodes:     g.Nodes,
	}
}
