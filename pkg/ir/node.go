package ir

import (
	"encoding/json"
	"strconv"
)

// Node is a graph node. Implementations are *ConditionNode, *ActionNode and
// *UnknownNode.
type Node interface {
	NodeID() string
	NodeType() string
	isNode()
}

// ConditionNode evaluates one binary comparison and branches.
// An empty successor means the branch is absent (implicit "no trade").
type ConditionNode struct {
	ID          string
	Expr        Expr
	NextIfTrue  string
	NextIfFalse string
}

func (n *ConditionNode) NodeID() string   { return n.ID }
func (n *ConditionNode) NodeType() string { return TypeCondition }
func (*ConditionNode) isNode()            {}

// ActionNode is a trading action. An empty Next marks a terminal node.
type ActionNode struct {
	ID         string
	ActionType ActionKind
	Symbol     string
	Qty        *Quantity
	QtyType    QtyKind
	Params     map[string]any
	Next       string
}

func (n *ActionNode) NodeID() string   { return n.ID }
func (n *ActionNode) NodeType() string { return TypeAction }
func (*ActionNode) isNode()            {}

// HasParam reports whether params carries the given key.
func (n *ActionNode) HasParam(key string) bool {
	if n.Params == nil {
		return false
	}
	_, ok := n.Params[key]
	return ok
}

// UnknownNode keeps a node whose type tag is neither condition nor action.
type UnknownNode struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

func (n *UnknownNode) NodeID() string   { return n.ID }
func (n *UnknownNode) NodeType() string { return n.Type }
func (*UnknownNode) isNode()            {}

// Quantity is an action quantity as the model emitted it. Text is non-empty
// when the model sent a string ("ALL", "50%") instead of a number.
type Quantity struct {
	Value float64
	Text  string
}

// Numeric returns a quantity holding a plain number.
func Numeric(v float64) *Quantity {
	return &Quantity{Value: v}
}

// IsNumeric reports whether the quantity is a number.
func (q *Quantity) IsNumeric() bool {
	return q != nil && q.Text == ""
}

func (q *Quantity) String() string {
	if q == nil {
		return "<nil>"
	}
	if q.Text != "" {
		return strconv.Quote(q.Text)
	}
	return strconv.FormatFloat(q.Value, 'f', -1, 64)
}
